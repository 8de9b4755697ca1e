package services

import (
	"context"

	"github.com/desertthunder/botm/internal/models"
)

// MusicService defines the Spotify Web API operations the generator depends on.
type MusicService interface {
	// Me returns the spotify id of the user the token belongs to.
	Me(ctx context.Context, token string) (string, error)

	// TopTracks retrieves the user's most played tracks for the period
	// ("short_term", "medium_term", "long_term"), in Spotify's ranking order.
	TopTracks(ctx context.Context, token, period string, limit int) ([]models.Track, error)

	// CreatePlaylist creates an empty playlist owned by the user and returns its id.
	CreatePlaylist(ctx context.Context, token, spotifyUserID, name, description string) (string, error)

	// ReplaceTracks replaces the playlist's full track list with the given URIs.
	// Replace (not append) keeps retries of a partial publish convergent.
	ReplaceTracks(ctx context.Context, token, playlistID string, uris []string) error
}
