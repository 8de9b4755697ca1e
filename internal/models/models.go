// package models defines the data model for the best-of-the-month playlist service
package models

import (
	"fmt"
	"time"
)

// RunDateLayout is the canonical encoding of a run date in the ledger.
//
// One run per calendar month is the product cadence, so the date is always
// normalized to the first of the month before it reaches the database.
const RunDateLayout = "2006-01-02"

// User is an enrolled Spotify account.
//
// The Spotify user id is the primary key; it never changes for the lifetime
// of the account. A user is either active with a usable refresh token, or
// excluded from every run.
type User struct {
	SpotifyID       string
	Active          bool
	RefreshToken    string
	AccessToken     string
	ExpiryTimestamp time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks that the user carries the credentials runs depend on.
func (u *User) Validate() error {
	if u.SpotifyID == "" {
		return fmt.Errorf("user is missing spotify id")
	}
	if u.RefreshToken == "" {
		return fmt.Errorf("user %s is missing a refresh token", u.SpotifyID)
	}
	return nil
}

// TokenValid reports whether the stored access token is still usable with at
// least margin left before expiry.
func (u *User) TokenValid(now time.Time, margin time.Duration) bool {
	return u.AccessToken != "" && now.Add(margin).Before(u.ExpiryTimestamp)
}

// Run is one monthly generation run. Immutable once created.
type Run struct {
	ID   int64
	Date time.Time
}

// DateKey returns the run date in ledger encoding.
func (r *Run) DateKey() string {
	return r.Date.Format(RunDateLayout)
}

// UserRun records that a user's playlist was published for a run.
//
// Presence is the only signal: the row is inserted after the external
// publish succeeds and never updated.
type UserRun struct {
	SpotifyID string
	RunID     int64
}

// Track is a single entry of a user's listening history, as ranked by Spotify.
type Track struct {
	ID     string // Spotify track id
	URI    string // spotify:track:... URI used when publishing
	Name   string
	Artist string
}
