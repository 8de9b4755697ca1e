package tasks

import (
	"fmt"

	"github.com/desertthunder/botm/internal/models"
)

// ProgressUpdate represents a progress event during a generation run.
//
// Used to send real-time updates to the CLI or server layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Run phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Run phase enumeration
type Phase int

const (
	StartRun Phase = iota
	SelectUsers
	ProcessUsers
	Finalize
)

func (p Phase) String() string {
	switch p {
	case StartRun:
		return "start_run"
	case SelectUsers:
		return "select_users"
	case ProcessUsers:
		return "process_users"
	case Finalize:
		return "finalize"
	default:
		return ""
	}
}

// sendProgress delivers an update without blocking: a slow or absent
// consumer never stalls the run.
func sendProgress(ch chan<- ProgressUpdate, update ProgressUpdate) {
	if ch == nil {
		return
	}
	select {
	case ch <- update:
	default:
	}
}

func startRunUpdate(run *models.Run) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StartRun,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Run %d opened for %s", run.ID, run.DateKey()),
		Data:    run,
	}
}

func selectUsersUpdate(selected, skipped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SelectUsers,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Selected %d users (%d already committed)", selected, skipped),
	}
}

func userCommittedUpdate(step, total int, spotifyID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProcessUsers,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, spotifyID),
	}
}

func userFailedUpdate(step, total int, spotifyID string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProcessUsers,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, spotifyID, err),
	}
}

func finalizeUpdate(result *RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finalize,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Run %d finished: %d committed, %d failed, %d skipped", result.Run.ID, result.Committed, result.Failed, result.Skipped),
		Data:    result,
	}
}
