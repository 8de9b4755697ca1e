package playlist

import (
	"fmt"
	"time"
)

// MonthFor maps a generation time to the month the playlist is named after.
//
// Runs triggered before the 15th reflect mostly the previous month's
// listening (and absorb timezone skew between the external scheduler and the
// host), so they are attributed to the month before.
func MonthFor(now time.Time) time.Time {
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if now.Day() < 15 {
		month = month.AddDate(0, -1, 0)
	}
	return month
}

// Title returns the playlist name for a month, e.g. "2026-08 (Aug) BOTM".
func Title(month time.Time) string {
	return month.Format("2006-01 (Jan) BOTM")
}

// Description returns the playlist description for a month.
func Description(month, generatedOn time.Time) string {
	return fmt.Sprintf("Bangers of the month for %s, (generated on %s)",
		month.Format("January 2006"), generatedOn.Format("2006-01-02"))
}
