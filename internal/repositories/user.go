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

// UserRepository persists enrolled users and their Spotify credentials.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts a user or, when the spotify id already exists, replaces its
// credentials and re-activates the account. Used by the OAuth callback when a
// user connects (or re-connects) their account.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO users (spotify_id, active, refresh_token, access_token, expiry_timestamp, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(spotify_id) DO UPDATE SET
			active = 1,
			refresh_token = excluded.refresh_token,
			access_token = excluded.access_token,
			expiry_timestamp = excluded.expiry_timestamp,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		user.SpotifyID, user.RefreshToken, user.AccessToken, user.ExpiryTimestamp, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// Get retrieves a user by spotify id.
func (r *UserRepository) Get(ctx context.Context, spotifyID string) (*models.User, error) {
	query := `
		SELECT spotify_id, active, refresh_token, access_token, expiry_timestamp, created_at, updated_at
		FROM users
		WHERE spotify_id = ?
	`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, spotifyID).Scan(
		&user.SpotifyID, &user.Active, &user.RefreshToken,
		&user.AccessToken, &user.ExpiryTimestamp, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, spotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// ListActive returns every user eligible for a run.
//
// The result is a consistent snapshot: users activated after the query runs
// are not retroactively included in an in-flight run.
func (r *UserRepository) ListActive(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT spotify_id, active, refresh_token, access_token, expiry_timestamp, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY spotify_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		err := rows.Scan(&user.SpotifyID, &user.Active, &user.RefreshToken,
			&user.AccessToken, &user.ExpiryTimestamp, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

// UpdateTokens persists a freshly minted access token and expiry inside a
// transaction. When the provider rotated the refresh token, newRefreshToken
// carries the replacement; an empty string keeps the stored one.
func (r *UserRepository) UpdateTokens(ctx context.Context, spotifyID, accessToken string, expiry time.Time, newRefreshToken string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET access_token = ?, expiry_timestamp = ?, updated_at = ?
		WHERE spotify_id = ?
	`, accessToken, expiry, now, spotifyID)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, spotifyID)
	}

	if newRefreshToken != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET refresh_token = ?, updated_at = ? WHERE spotify_id = ?
		`, newRefreshToken, now, spotifyID); err != nil {
			return fmt.Errorf("failed to store rotated refresh token: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token update: %w", err)
	}

	return nil
}

// SetActive toggles a user's participation in runs.
//
// The token manager deactivates users whose refresh grant was revoked; the
// OAuth callback re-activates them on re-authorization.
func (r *UserRepository) SetActive(ctx context.Context, spotifyID string, active bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET active = ?, updated_at = ? WHERE spotify_id = ?
	`, active, time.Now().UTC(), spotifyID)
	if err != nil {
		return fmt.Errorf("failed to update user active flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, spotifyID)
	}

	return nil
}
