package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/botm/internal/repositories"
	"github.com/desertthunder/botm/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ExpiryMargin is how much lifetime a stored access token must have left to
// be handed out without a refresh.
const ExpiryMargin = 60 * time.Second

// TokenManager returns currently valid access tokens for enrolled users,
// refreshing through the OAuth refresh grant when needed.
type TokenManager struct {
	users  *repositories.UserRepository
	config *oauth2.Config
	margin time.Duration
	group  singleflight.Group
	logger *log.Logger
}

// TokenManagerOpts contains configuration for creating a [TokenManager].
type TokenManagerOpts struct {
	Users  *repositories.UserRepository
	Config *oauth2.Config // Endpoint and client credentials for the refresh grant
	Margin time.Duration  // Expiry safety margin (default: [ExpiryMargin])
	Logger *log.Logger
}

// NewTokenManager creates a [TokenManager] with the provided options.
func NewTokenManager(opts TokenManagerOpts) *TokenManager {
	if opts.Margin <= 0 {
		opts.Margin = ExpiryMargin
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &TokenManager{
		users:  opts.Users,
		config: opts.Config,
		margin: opts.Margin,
		logger: opts.Logger,
	}
}

// Token returns a valid access token for the user, refreshing when the
// stored token is expired or within the safety margin of its expiry.
func (m *TokenManager) Token(ctx context.Context, spotifyID string) (string, error) {
	user, err := m.users.Get(ctx, spotifyID)
	if err != nil {
		return "", err
	}

	if user.TokenValid(time.Now(), m.margin) {
		return user.AccessToken, nil
	}

	return m.refresh(ctx, spotifyID, false)
}

// ForceRefresh discards the stored access token and mints a new one.
//
// Used after the API rejects a token that looked valid by its expiry.
func (m *TokenManager) ForceRefresh(ctx context.Context, spotifyID string) (string, error) {
	return m.refresh(ctx, spotifyID, true)
}

// refresh exchanges the user's refresh token for a new access token and
// persists it. Concurrent refreshes for the same user collapse into a single
// exchange via singleflight; different users never contend.
func (m *TokenManager) refresh(ctx context.Context, spotifyID string, force bool) (string, error) {
	token, err, _ := m.group.Do(spotifyID, func() (any, error) {
		user, err := m.users.Get(ctx, spotifyID)
		if err != nil {
			return "", err
		}

		// Another caller may have refreshed while this one waited.
		if !force && user.TokenValid(time.Now(), m.margin) {
			return user.AccessToken, nil
		}

		if user.RefreshToken == "" {
			return "", fmt.Errorf("%w: %s", shared.ErrNoRefreshToken, spotifyID)
		}

		m.logger.Debug("refreshing access token", "user", spotifyID, "forced", force)

		source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: user.RefreshToken})
		fresh, err := source.Token()
		if err != nil {
			var retrieveErr *oauth2.RetrieveError
			if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
				m.logger.Warn("refresh grant revoked, deactivating user", "user", spotifyID)
				if deactivateErr := m.users.SetActive(ctx, spotifyID, false); deactivateErr != nil {
					m.logger.Error("failed to deactivate user", "user", spotifyID, "error", deactivateErr)
				}
				return "", fmt.Errorf("%w: %s", shared.ErrGrantRevoked, spotifyID)
			}
			return "", fmt.Errorf("%w for %s: %v", shared.ErrRefreshFailed, spotifyID, err)
		}

		// Spotify occasionally rotates the refresh token on exchange.
		rotated := ""
		if fresh.RefreshToken != "" && fresh.RefreshToken != user.RefreshToken {
			rotated = fresh.RefreshToken
		}

		if err := m.users.UpdateTokens(ctx, spotifyID, fresh.AccessToken, fresh.Expiry.UTC(), rotated); err != nil {
			return "", fmt.Errorf("failed to persist refreshed token: %w", err)
		}

		return fresh.AccessToken, nil
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}
