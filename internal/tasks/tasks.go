package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/botm/internal/models"
	"github.com/desertthunder/botm/internal/playlist"
	"github.com/desertthunder/botm/internal/repositories"
	"github.com/desertthunder/botm/internal/services"
	"github.com/desertthunder/botm/internal/shared"
	"golang.org/x/time/rate"
)

// TokenProvider hands out valid access tokens for enrolled users.
// Implemented by [services.TokenManager].
type TokenProvider interface {
	Token(ctx context.Context, spotifyID string) (string, error)
	ForceRefresh(ctx context.Context, spotifyID string) (string, error)
}

// UserOutcome is the terminal state of one user's job within a run.
type UserOutcome struct {
	SpotifyID string
	Committed bool
	Attempts  int
	Err       error // Failure reason, nil when committed
}

// RunResult contains the tally for one generation run.
type RunResult struct {
	Run       *models.Run
	Month     time.Time // Month the playlists are named after
	Selected  int       // Users dispatched in this invocation
	Skipped   int       // Users already committed for the run
	Committed int
	Failed    int
	Outcomes  []UserOutcome
}

// GeneratorOpts contains configuration and dependencies for a [Generator].
type GeneratorOpts struct {
	Users  *repositories.UserRepository
	Runs   *repositories.RunRepository
	Tokens TokenProvider
	Music  services.MusicService
	Logger *log.Logger

	Workers       int           // Concurrent per-user jobs (default: 5, max: 10)
	RateLimit     float64       // Job dispatches per second (default: 5)
	MaxAttempts   int           // Per-user pipeline attempts (default: 3)
	PlaylistLimit int           // Maximum tracks per playlist (default: 50)
	Backoff       time.Duration // Base delay between per-user attempts (default: 1s)
}

// Generator orchestrates one monthly run across all eligible users.
type Generator struct {
	users  *repositories.UserRepository
	runs   *repositories.RunRepository
	tokens TokenProvider
	music  services.MusicService
	logger *log.Logger

	workers       int
	rateLimit     float64
	maxAttempts   int
	playlistLimit int
	backoff       time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewGenerator creates a [Generator] with the provided dependencies.
func NewGenerator(opts GeneratorOpts) *Generator {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Workers > 10 {
		opts.Workers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.PlaylistLimit <= 0 {
		opts.PlaylistLimit = playlist.DefaultLimit
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Generator{
		users:         opts.Users,
		runs:          opts.Runs,
		tokens:        opts.Tokens,
		music:         opts.Music,
		logger:        opts.Logger,
		workers:       opts.Workers,
		rateLimit:     opts.RateLimit,
		maxAttempts:   opts.MaxAttempts,
		playlistLimit: opts.PlaylistLimit,
		backoff:       opts.Backoff,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// Run executes the generation run for the month derived from now, for every
// eligible user. Re-invoking it for the same month resumes: the existing
// ledger row is reused and committed users are skipped.
func (g *Generator) Run(ctx context.Context, now time.Time, progress chan<- ProgressUpdate) (*RunResult, error) {
	return g.run(ctx, now, "", progress)
}

// RunUser executes the run pipeline for a single user, used by the trigger
// endpoint's spotify_id parameter. The user must be active and not yet
// committed for the month's run.
func (g *Generator) RunUser(ctx context.Context, now time.Time, spotifyID string, progress chan<- ProgressUpdate) (*RunResult, error) {
	if spotifyID == "" {
		return nil, fmt.Errorf("%w: spotify id", shared.ErrMissingArgument)
	}
	return g.run(ctx, now, spotifyID, progress)
}

func (g *Generator) run(ctx context.Context, now time.Time, only string, progress chan<- ProgressUpdate) (*RunResult, error) {
	month := playlist.MonthFor(now)

	// Ledger unavailability here is the one run-level failure: either the
	// row exists after this call, or the run never started.
	run, err := g.runs.StartRun(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	logger := g.logger.With("run", run.ID, "month", run.DateKey())
	logger.Info("run started")
	sendProgress(progress, startRunUpdate(run))

	// Selection is a consistent snapshot taken before any job is dispatched;
	// users activated afterwards wait for the next run.
	active, err := g.users.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}

	committed, err := g.runs.CommittedUsers(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load committed users: %w", err)
	}

	result := &RunResult{Run: run, Month: month}

	var selected []*models.User
	for _, user := range active {
		if only != "" && user.SpotifyID != only {
			continue
		}
		if committed[user.SpotifyID] {
			result.Skipped++
			continue
		}
		selected = append(selected, user)
	}
	result.Selected = len(selected)

	logger.Info("users selected", "selected", len(selected), "skipped", result.Skipped)
	sendProgress(progress, selectUsersUpdate(len(selected), result.Skipped))

	if len(selected) == 0 {
		logger.Info("nothing to do")
		return result, nil
	}

	limiter := rate.NewLimiter(rate.Limit(g.rateLimit), 1)
	jobs := make(chan *models.User, len(selected))
	results := make(chan UserOutcome, len(selected))

	var wg sync.WaitGroup
	for i := 0; i < g.workers; i++ {
		wg.Add(1)
		go g.worker(ctx, &wg, run, now, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, user := range selected {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- user:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for outcome := range results {
		done++
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Committed {
			result.Committed++
			sendProgress(progress, userCommittedUpdate(done, len(selected), outcome.SpotifyID))
		} else {
			result.Failed++
			logger.Error("user failed", "user", outcome.SpotifyID, "attempts", outcome.Attempts, "error", outcome.Err)
			sendProgress(progress, userFailedUpdate(done, len(selected), outcome.SpotifyID, outcome.Err))
		}
	}

	logger.Info("run finalized", "committed", result.Committed, "failed", result.Failed, "skipped", result.Skipped)
	sendProgress(progress, finalizeUpdate(result))

	return result, nil
}

// worker drains the jobs channel, running the per-user pipeline for each.
func (g *Generator) worker(ctx context.Context, wg *sync.WaitGroup, run *models.Run, now time.Time, jobs <-chan *models.User, results chan<- UserOutcome) {
	defer wg.Done()

	for user := range jobs {
		select {
		case <-ctx.Done():
			results <- UserOutcome{SpotifyID: user.SpotifyID, Err: ctx.Err()}
			continue
		default:
		}

		results <- g.processUser(ctx, run, now, user)
	}
}

// processUser runs the whole pipeline for one user with the per-user retry
// policy: transient failures retry the pipeline from the top, a stale-token
// 401 forces exactly one refresh, permanent failures stop immediately.
func (g *Generator) processUser(ctx context.Context, run *models.Run, now time.Time, user *models.User) UserOutcome {
	outcome := UserOutcome{SpotifyID: user.SpotifyID}
	logger := g.logger.With("run", run.ID, "user", user.SpotifyID)

	// The playlist id survives attempts so a retry after a failure past
	// creation reuses the playlist instead of creating another.
	var playlistID string
	forceNext := false
	refreshTried := false

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		outcome.Attempts = attempt

		err := g.pipeline(ctx, run, now, user.SpotifyID, forceNext, &playlistID)
		if err == nil {
			outcome.Committed = true
			logger.Info("user committed", "attempts", attempt)
			return outcome
		}

		outcome.Err = err
		forceNext = false

		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return outcome

		case errors.Is(err, shared.ErrGrantRevoked) || errors.Is(err, shared.ErrNoRefreshToken) || errors.Is(err, shared.ErrUserNotFound):
			return outcome

		default:
			switch services.KindOf(err) {
			case services.KindUnauthorized:
				// One shot at a forced refresh; a second 401 with a brand
				// new token is not going to heal.
				if refreshTried {
					return outcome
				}
				refreshTried = true
				forceNext = true
				logger.Warn("stale token rejected, forcing refresh", "attempt", attempt)

			case services.KindPermanent:
				return outcome

			default:
				logger.Warn("transient failure, retrying pipeline", "attempt", attempt, "error", err)
			}
		}

		if attempt < g.maxAttempts {
			if err := g.sleep(ctx, g.backoff*time.Duration(attempt)); err != nil {
				outcome.Err = err
				return outcome
			}
		}
	}

	return outcome
}

// pipeline performs one end-to-end attempt for a user: token, top tracks,
// build, create-or-reuse playlist, replace tracks, commit.
func (g *Generator) pipeline(ctx context.Context, run *models.Run, now time.Time, spotifyID string, forceRefresh bool, playlistID *string) error {
	var (
		token string
		err   error
	)
	if forceRefresh {
		token, err = g.tokens.ForceRefresh(ctx, spotifyID)
	} else {
		token, err = g.tokens.Token(ctx, spotifyID)
	}
	if err != nil {
		return err
	}

	tracks, err := g.music.TopTracks(ctx, token, "short_term", g.playlistLimit)
	if err != nil {
		return err
	}

	list := playlist.Build(tracks, g.playlistLimit)

	if *playlistID == "" {
		month := playlist.MonthFor(now)
		id, err := g.music.CreatePlaylist(ctx, token, spotifyID,
			playlist.Title(month), playlist.Description(month, now))
		if err != nil {
			return err
		}
		*playlistID = id
	}

	if err := g.music.ReplaceTracks(ctx, token, *playlistID, playlist.URIs(list)); err != nil {
		return err
	}

	// The single durable point separating "published" from "unknown".
	if err := g.runs.Commit(ctx, run.ID, spotifyID); err != nil {
		if errors.Is(err, shared.ErrAlreadyCommitted) {
			return nil
		}
		return err
	}

	return nil
}
