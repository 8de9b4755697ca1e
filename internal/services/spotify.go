// Spotify Web API implementation of [MusicService]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/botm/internal/models"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultRateLimit   = 5.0
)

// SpotifyOpts contains configuration for the Spotify client.
type SpotifyOpts struct {
	BaseURL     string        // API base URL, overridden in tests
	HTTPClient  *http.Client  // Shared process-wide client (connection pooling)
	Timeout     time.Duration // Per-attempt timeout (default: 10s)
	MaxRetries  int           // Retries after the first attempt (default: 3)
	BackoffBase time.Duration // First backoff delay, doubled per retry (default: 500ms)
	RateLimit   float64       // Requests per second (default: 5)
}

// SpotifyClient implements [MusicService] against the Spotify Web API.
//
// Constructed once at process scope and passed explicitly to the generator;
// the embedded [http.Client] owns connection pooling.
type SpotifyClient struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewSpotifyClient creates a Spotify client with the given options.
func NewSpotifyClient(opts SpotifyOpts) *SpotifyClient {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}

	return &SpotifyClient{
		baseURL:     opts.BaseURL,
		httpClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff returns the delay before the given retry attempt (0-based), with jitter.
func (s *SpotifyClient) backoff(attempt int) time.Duration {
	d := s.backoffBase << attempt
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

// doRequest performs one authenticated request with retries.
//
// 5xx and network errors retry with backoff; 429 retries after the
// Retry-After hint. 401 and the remaining 4xx return immediately as
// Unauthorized and Permanent respectively.
func (s *SpotifyClient) doRequest(ctx context.Context, op, token, method, endpoint string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &APIError{Kind: KindPermanent, Op: op, Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
	}

	var lastErr *APIError
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return &APIError{Kind: KindTransient, Op: op, Err: err}
		}

		apiErr := s.attempt(ctx, op, token, method, endpoint, payload, result)
		if apiErr == nil {
			return nil
		}
		if !apiErr.Retryable() {
			return apiErr
		}

		lastErr = apiErr
		if attempt == s.maxRetries {
			break
		}

		delay := s.backoff(attempt)
		if apiErr.Kind == KindRateLimited && apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		}
		if err := s.sleep(ctx, delay); err != nil {
			return &APIError{Kind: KindTransient, Op: op, Err: err}
		}
	}

	return lastErr
}

// attempt performs a single HTTP round trip and classifies the outcome.
func (s *SpotifyClient) attempt(ctx context.Context, op, token, method, endpoint string, payload []byte, result any) *APIError {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reqBody *bytes.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, s.baseURL+endpoint, reqBody)
	if err != nil {
		return &APIError{Kind: KindPermanent, Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return &APIError{Kind: KindPermanent, StatusCode: resp.StatusCode, Op: op,
					Err: fmt.Errorf("failed to decode response: %w", err)}
			}
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized:
		return &APIError{Kind: KindUnauthorized, StatusCode: resp.StatusCode, Op: op}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &APIError{
			Kind:       KindRateLimited,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Op:         op,
		}

	case resp.StatusCode >= 500:
		return &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Op: op}

	default:
		return &APIError{Kind: KindPermanent, StatusCode: resp.StatusCode, Op: op}
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID      string          `json:"id"`
	URI     string          `json:"uri"`
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
}

type topTracksResponse struct {
	Items []spotifyTrack `json:"items"`
}

type meResponse struct {
	ID string `json:"id"`
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

type createPlaylistResponse struct {
	ID string `json:"id"`
}

type replaceTracksRequest struct {
	URIs []string `json:"uris"`
}

// Me returns the spotify id of the token's owner.
func (s *SpotifyClient) Me(ctx context.Context, token string) (string, error) {
	var me meResponse
	if err := s.doRequest(ctx, "me", token, http.MethodGet, "/me", nil, &me); err != nil {
		return "", err
	}
	if me.ID == "" {
		return "", &APIError{Kind: KindPermanent, Op: "me", Err: fmt.Errorf("profile response missing id")}
	}
	return me.ID, nil
}

// TopTracks retrieves the user's top tracks for the given period in ranking order.
func (s *SpotifyClient) TopTracks(ctx context.Context, token, period string, limit int) ([]models.Track, error) {
	if period == "" {
		period = "short_term"
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/top/tracks?time_range=%s&limit=%d", url.QueryEscape(period), limit)

	var response topTracksResponse
	if err := s.doRequest(ctx, "top_tracks", token, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Items))
	for _, item := range response.Items {
		track := models.Track{ID: item.ID, URI: item.URI, Name: item.Name}
		if len(item.Artists) > 0 {
			track.Artist = item.Artists[0].Name
		}
		tracks = append(tracks, track)
	}

	return tracks, nil
}

// CreatePlaylist creates a private playlist for the user and returns its id.
func (s *SpotifyClient) CreatePlaylist(ctx context.Context, token, spotifyUserID, name, description string) (string, error) {
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(spotifyUserID))
	body := createPlaylistRequest{Name: name, Description: description, Public: false}

	var response createPlaylistResponse
	if err := s.doRequest(ctx, "create_playlist", token, http.MethodPost, endpoint, body, &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", &APIError{Kind: KindPermanent, Op: "create_playlist", Err: fmt.Errorf("create response missing playlist id")}
	}

	return response.ID, nil
}

// ReplaceTracks replaces the playlist's contents with the given track URIs.
func (s *SpotifyClient) ReplaceTracks(ctx context.Context, token, playlistID string, uris []string) error {
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, "replace_tracks", token, http.MethodPut, endpoint, replaceTracksRequest{URIs: uris}, nil)
}
