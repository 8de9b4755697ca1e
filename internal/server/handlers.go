package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/botm/internal/models"
	"github.com/desertthunder/botm/internal/repositories"
	"github.com/desertthunder/botm/internal/services"
	"github.com/desertthunder/botm/internal/shared"
	"github.com/desertthunder/botm/internal/tasks"
	"golang.org/x/oauth2"
)

const stateCookie = "botm_oauth_state"

// EnrollmentHandler serves the OAuth enrollment flow for new users and the
// disconnect endpoint for existing ones.
//
// Implements the [Handler] interface for registration with a [Router].
type EnrollmentHandler struct {
	config *oauth2.Config
	users  *repositories.UserRepository
	music  services.MusicService
	logger *log.Logger
}

// NewEnrollmentHandler creates an enrollment handler with the given OAuth2
// config, user repository, and music service.
func NewEnrollmentHandler(config *oauth2.Config, users *repositories.UserRepository, music services.MusicService, logger *log.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		config: config,
		users:  users,
		music:  music,
		logger: logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *EnrollmentHandler) Routes() []string {
	return []string{"/connect", "/callback", "/disconnect"}
}

func (h *EnrollmentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/connect":
		h.connect(w, r)
	case "/callback":
		h.callback(w, r)
	case "/disconnect":
		h.disconnect(w, r)
	default:
		http.NotFound(w, r)
	}
}

// connect starts the authorization code flow: a random state token goes into
// a short-lived cookie and the user is sent to the Spotify consent page.
func (h *EnrollmentHandler) connect(w http.ResponseWriter, r *http.Request) {
	state := shared.GenerateState()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.AuthCodeURL(state), http.StatusFound)
}

// callback validates the state parameter, exchanges the authorization code
// for tokens, resolves the Spotify profile, and enrolls the user.
func (h *EnrollmentHandler) callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	// The state token is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		errParam := r.URL.Query().Get("error")
		h.logger.Warn("authorization declined", "error", errParam)
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", "error", err)
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	spotifyID, err := h.music.Me(r.Context(), token.AccessToken)
	if err != nil {
		h.logger.Error("profile lookup failed", "error", err)
		http.Error(w, "Profile lookup failed", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		SpotifyID:       spotifyID,
		Active:          true,
		RefreshToken:    token.RefreshToken,
		AccessToken:     token.AccessToken,
		ExpiryTimestamp: token.Expiry,
	}
	if err := h.users.Upsert(r.Context(), user); err != nil {
		h.logger.Error("enrollment failed", "user", spotifyID, "error", err)
		http.Error(w, "Enrollment failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user enrolled", "user", spotifyID)

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Enrollment Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Enrollment Successful</h1>
        <p>%s will receive a fresh playlist every month. You can close this window.</p>
    </div>
</body>
</html>
`, spotifyID)
}

// disconnect deactivates a user so future runs skip them. Tokens are kept so
// a later /connect simply re-activates the row.
func (h *EnrollmentHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	spotifyID := r.URL.Query().Get("spotify_id")
	if spotifyID == "" {
		http.Error(w, "Missing spotify_id parameter", http.StatusBadRequest)
		return
	}

	if err := h.users.SetActive(r.Context(), spotifyID, false); err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			http.Error(w, "Unknown user", http.StatusNotFound)
			return
		}
		h.logger.Error("disconnect failed", "user", spotifyID, "error", err)
		http.Error(w, "Disconnect failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user disconnected", "user", spotifyID)
	fmt.Fprintf(w, "Disconnected %s\n", spotifyID)
}

// RunTrigger starts generation runs. Implemented by [tasks.Generator].
type RunTrigger interface {
	Run(ctx context.Context, now time.Time, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)
	RunUser(ctx context.Context, now time.Time, spotifyID string, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)
}

// GenerateHandler triggers a generation run over HTTP. The route carries
// basic auth; see [BasicAuth].
type GenerateHandler struct {
	trigger RunTrigger
	logger  *log.Logger
	now     func() time.Time
}

// NewGenerateHandler creates a trigger handler backed by the given run
// orchestrator.
func NewGenerateHandler(trigger RunTrigger, logger *log.Logger) *GenerateHandler {
	return &GenerateHandler{
		trigger: trigger,
		logger:  logger,
		now:     time.Now,
	}
}

type generateFailure struct {
	SpotifyID string `json:"spotify_id"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}

type generateResponse struct {
	RunID     int64             `json:"run_id"`
	Month     string            `json:"month"`
	Selected  int               `json:"selected"`
	Skipped   int               `json:"skipped"`
	Committed int               `json:"committed"`
	Failed    int               `json:"failed"`
	Failures  []generateFailure `json:"failures,omitempty"`
}

func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		result *tasks.RunResult
		err    error
	)

	if spotifyID := r.URL.Query().Get("spotify_id"); spotifyID != "" {
		result, err = h.trigger.RunUser(r.Context(), h.now(), spotifyID, nil)
	} else {
		result, err = h.trigger.Run(r.Context(), h.now(), nil)
	}
	if err != nil {
		h.logger.Error("run failed to start", "error", err)
		http.Error(w, "Run failed to start", http.StatusInternalServerError)
		return
	}

	resp := generateResponse{
		RunID:     result.Run.ID,
		Month:     result.Month.Format("2006-01"),
		Selected:  result.Selected,
		Skipped:   result.Skipped,
		Committed: result.Committed,
		Failed:    result.Failed,
	}
	for _, outcome := range result.Outcomes {
		if outcome.Committed {
			continue
		}
		resp.Failures = append(resp.Failures, generateFailure{
			SpotifyID: outcome.SpotifyID,
			Attempts:  outcome.Attempts,
			Error:     outcome.Err.Error(),
		})
	}

	// A partial run is still an error to the caller: crontab mails the
	// operator when the trigger exits non-2xx.
	status := http.StatusOK
	if result.Failed > 0 {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
