package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/botm/internal/models"
	"github.com/desertthunder/botm/internal/shared"
)

// RunRepository is the run ledger: it records monthly runs and which users
// completed each one.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new [RunRepository] with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun returns the run for the given date, creating it when absent.
//
// The date is normalized to the first of its month so every trigger within a
// month resolves to the same ledger row. The UNIQUE constraint on the date
// column makes the create race-safe: a concurrent insert loses and falls
// back to reading the winner's row.
func (r *RunRepository) StartRun(ctx context.Context, date time.Time) (*models.Run, error) {
	normalized := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	key := normalized.Format(models.RunDateLayout)

	if run, err := r.getByDate(ctx, key, normalized); err == nil {
		return run, nil
	} else if !errors.Is(err, shared.ErrRunNotFound) {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx, "INSERT OR IGNORE INTO botm_runs (date) VALUES (?)", key)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 1 {
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read run id: %w", err)
		}
		return &models.Run{ID: id, Date: normalized}, nil
	}

	// Lost the insert race; the row exists now.
	return r.getByDate(ctx, key, normalized)
}

func (r *RunRepository) getByDate(ctx context.Context, key string, date time.Time) (*models.Run, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, "SELECT id FROM botm_runs WHERE date = ?", key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrRunNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &models.Run{ID: id, Date: date}, nil
}

// Commit durably records that a user's playlist was published for a run.
//
// The insert is atomic insert-if-absent via the composite primary key, so a
// second commit for the same pair returns [shared.ErrAlreadyCommitted]
// instead of a duplicate row, even under concurrent retries.
func (r *RunRepository) Commit(ctx context.Context, runID int64, spotifyID string) error {
	result, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO user_botm_runs (spotify_id, botm_run_id) VALUES (?, ?)",
		spotifyID, runID)
	if err != nil {
		return fmt.Errorf("failed to commit user run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %s, run %d", shared.ErrAlreadyCommitted, spotifyID, runID)
	}

	return nil
}

// IsCommitted reports whether the user already completed the run.
func (r *RunRepository) IsCommitted(ctx context.Context, runID int64, spotifyID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM user_botm_runs WHERE spotify_id = ? AND botm_run_id = ?)",
		spotifyID, runID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query commit record: %w", err)
	}
	return exists, nil
}

// CommittedUsers returns the spotify ids already committed for a run.
//
// Used to skip completed users when a run is resumed after a crash.
func (r *RunRepository) CommittedUsers(ctx context.Context, runID int64) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT spotify_id FROM user_botm_runs WHERE botm_run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query committed users: %w", err)
	}
	defer rows.Close()

	committed := make(map[string]bool)
	for rows.Next() {
		var spotifyID string
		if err := rows.Scan(&spotifyID); err != nil {
			return nil, fmt.Errorf("failed to scan spotify id: %w", err)
		}
		committed[spotifyID] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return committed, nil
}

// ListRuns returns every recorded run, newest first, for audit output.
func (r *RunRepository) ListRuns(ctx context.Context) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, date FROM botm_runs ORDER BY date DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		var (
			id  int64
			key string
		)
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		date, err := time.ParseInLocation(models.RunDateLayout, key, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run date %q: %w", key, err)
		}
		runs = append(runs, &models.Run{ID: id, Date: date})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}
