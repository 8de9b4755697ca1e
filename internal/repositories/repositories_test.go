package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/botm/internal/models"
	"github.com/desertthunder/botm/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Each pool connection to :memory: would open a separate database.
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func testUser(spotifyID string, active bool) *models.User {
	return &models.User{
		SpotifyID:       spotifyID,
		Active:          active,
		RefreshToken:    "refresh-" + spotifyID,
		AccessToken:     "access-" + spotifyID,
		ExpiryTimestamp: time.Now().UTC().Add(time.Hour),
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert And Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := testUser("spotify_user_1", true)

		if err := repo.Upsert(ctx, user); err != nil {
			t.Fatalf("failed to upsert user: %v", err)
		}

		got, err := repo.Get(ctx, "spotify_user_1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if got.RefreshToken != user.RefreshToken {
			t.Errorf("expected refresh token %s, got %s", user.RefreshToken, got.RefreshToken)
		}
		if !got.Active {
			t.Error("upserted user should be active")
		}
	})

	t.Run("Upsert Reactivates", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := testUser("spotify_user_1", true)

		if err := repo.Upsert(ctx, user); err != nil {
			t.Fatalf("failed to upsert user: %v", err)
		}
		if err := repo.SetActive(ctx, "spotify_user_1", false); err != nil {
			t.Fatalf("failed to deactivate user: %v", err)
		}

		user.RefreshToken = "rotated-refresh"
		if err := repo.Upsert(ctx, user); err != nil {
			t.Fatalf("failed to re-upsert user: %v", err)
		}

		got, err := repo.Get(ctx, "spotify_user_1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if !got.Active {
			t.Error("re-enrolled user should be active again")
		}
		if got.RefreshToken != "rotated-refresh" {
			t.Errorf("expected rotated refresh token, got %s", got.RefreshToken)
		}
	})

	t.Run("Get Missing User", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		if _, err := repo.Get(ctx, "nope"); !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("ListActive Excludes Inactive", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		for _, u := range []*models.User{
			testUser("active_1", true),
			testUser("active_2", true),
			testUser("revoked", true),
		} {
			if err := repo.Upsert(ctx, u); err != nil {
				t.Fatalf("failed to upsert %s: %v", u.SpotifyID, err)
			}
		}
		if err := repo.SetActive(ctx, "revoked", false); err != nil {
			t.Fatalf("failed to deactivate user: %v", err)
		}

		users, err := repo.ListActive(ctx)
		if err != nil {
			t.Fatalf("failed to list active users: %v", err)
		}

		if len(users) != 2 {
			t.Fatalf("expected 2 active users, got %d", len(users))
		}
		for _, u := range users {
			if u.SpotifyID == "revoked" {
				t.Error("deactivated user should not be listed")
			}
		}
	})

	t.Run("UpdateTokens", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		if err := repo.Upsert(ctx, testUser("spotify_user_1", true)); err != nil {
			t.Fatalf("failed to upsert user: %v", err)
		}

		expiry := time.Now().UTC().Add(45 * time.Minute).Truncate(time.Second)
		if err := repo.UpdateTokens(ctx, "spotify_user_1", "new-access", expiry, ""); err != nil {
			t.Fatalf("failed to update tokens: %v", err)
		}

		got, err := repo.Get(ctx, "spotify_user_1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.AccessToken != "new-access" {
			t.Errorf("expected new access token, got %s", got.AccessToken)
		}
		if got.RefreshToken != "refresh-spotify_user_1" {
			t.Error("refresh token should be unchanged when no rotation occurred")
		}
		if !got.ExpiryTimestamp.Equal(expiry) {
			t.Errorf("expected expiry %v, got %v", expiry, got.ExpiryTimestamp)
		}
	})

	t.Run("UpdateTokens With Rotation", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		if err := repo.Upsert(ctx, testUser("spotify_user_1", true)); err != nil {
			t.Fatalf("failed to upsert user: %v", err)
		}

		expiry := time.Now().UTC().Add(time.Hour)
		if err := repo.UpdateTokens(ctx, "spotify_user_1", "new-access", expiry, "new-refresh"); err != nil {
			t.Fatalf("failed to update tokens: %v", err)
		}

		got, err := repo.Get(ctx, "spotify_user_1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.RefreshToken != "new-refresh" {
			t.Errorf("expected rotated refresh token, got %s", got.RefreshToken)
		}
	})

	t.Run("UpdateTokens Missing User", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		err := repo.UpdateTokens(ctx, "nope", "tok", time.Now(), "")
		if !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("StartRun Creates Then Reuses", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		date := time.Date(2026, time.August, 14, 9, 30, 0, 0, time.UTC)

		first, err := repo.StartRun(ctx, date)
		if err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
		if first.DateKey() != "2026-08-01" {
			t.Errorf("expected run date normalized to 2026-08-01, got %s", first.DateKey())
		}

		// A second trigger in the same month resolves to the same run.
		second, err := repo.StartRun(ctx, date.AddDate(0, 0, 10))
		if err != nil {
			t.Fatalf("failed to start run second time: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("expected run id %d to be reused, got %d", first.ID, second.ID)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM botm_runs").Scan(&count); err != nil {
			t.Fatalf("failed to count runs: %v", err)
		}
		if count != 1 {
			t.Errorf("expected exactly one run row, got %d", count)
		}
	})

	t.Run("StartRun Distinct Months", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		aug, err := repo.StartRun(ctx, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("failed to start august run: %v", err)
		}
		sep, err := repo.StartRun(ctx, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("failed to start september run: %v", err)
		}
		if aug.ID == sep.ID {
			t.Error("different months should produce different runs")
		}
	})

	t.Run("Commit Is Insert If Absent", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		users := NewUserRepository(db)
		if err := users.Upsert(ctx, testUser("spotify_user_1", true)); err != nil {
			t.Fatalf("failed to upsert user: %v", err)
		}

		repo := NewRunRepository(db)
		run, err := repo.StartRun(ctx, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("failed to start run: %v", err)
		}

		if err := repo.Commit(ctx, run.ID, "spotify_user_1"); err != nil {
			t.Fatalf("first commit should succeed: %v", err)
		}

		err = repo.Commit(ctx, run.ID, "spotify_user_1")
		if !errors.Is(err, shared.ErrAlreadyCommitted) {
			t.Errorf("expected ErrAlreadyCommitted, got %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM user_botm_runs").Scan(&count); err != nil {
			t.Fatalf("failed to count commit rows: %v", err)
		}
		if count != 1 {
			t.Errorf("expected exactly one commit row, got %d", count)
		}
	})

	t.Run("IsCommitted And CommittedUsers", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		users := NewUserRepository(db)
		for _, id := range []string{"u1", "u2"} {
			if err := users.Upsert(ctx, testUser(id, true)); err != nil {
				t.Fatalf("failed to upsert %s: %v", id, err)
			}
		}

		repo := NewRunRepository(db)
		run, err := repo.StartRun(ctx, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("failed to start run: %v", err)
		}

		if err := repo.Commit(ctx, run.ID, "u1"); err != nil {
			t.Fatalf("failed to commit u1: %v", err)
		}

		committed, err := repo.IsCommitted(ctx, run.ID, "u1")
		if err != nil {
			t.Fatalf("failed to check commit: %v", err)
		}
		if !committed {
			t.Error("u1 should be committed")
		}

		committed, err = repo.IsCommitted(ctx, run.ID, "u2")
		if err != nil {
			t.Fatalf("failed to check commit: %v", err)
		}
		if committed {
			t.Error("u2 should not be committed")
		}

		all, err := repo.CommittedUsers(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to list committed users: %v", err)
		}
		if len(all) != 1 || !all["u1"] {
			t.Errorf("expected committed set {u1}, got %v", all)
		}
	})

	t.Run("ListRuns Newest First", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewRunRepository(db)
		for _, m := range []time.Month{time.June, time.August, time.July} {
			if _, err := repo.StartRun(ctx, time.Date(2026, m, 1, 0, 0, 0, 0, time.UTC)); err != nil {
				t.Fatalf("failed to start run for %v: %v", m, err)
			}
		}

		runs, err := repo.ListRuns(ctx)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		if runs[0].Date.Month() != time.August || runs[2].Date.Month() != time.June {
			t.Errorf("runs not ordered newest first: %v, %v, %v",
				runs[0].Date, runs[1].Date, runs[2].Date)
		}
	})
}
