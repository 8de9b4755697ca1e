package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/botm/internal/repositories"
	"github.com/desertthunder/botm/internal/services"
	"github.com/desertthunder/botm/internal/shared"
	"github.com/desertthunder/botm/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, generateCommand, usersCommand, runsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the configuration for a command, preferring the file
// named by the --config flag over the config loaded at startup.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	configPath := cmd.String("config")
	if configPath == "" {
		return r.config
	}

	if _, err := os.Stat(configPath); err != nil {
		return r.config
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		return r.config
	}

	return config
}

// deps bundles the service graph every run-facing command needs.
type deps struct {
	db     *sql.DB
	users  *repositories.UserRepository
	runs   *repositories.RunRepository
	music  *services.SpotifyClient
	tokens *services.TokenManager
	gen    *tasks.Generator
}

func (d *deps) Close() error {
	return d.db.Close()
}

// openDeps opens the database and wires the repositories, Spotify client,
// token manager, and generator together.
func (r *Runner) openDeps(config *shared.Config) (*deps, error) {
	creds := config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client id and secret are required", shared.ErrMissingCredentials)
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	users := repositories.NewUserRepository(db)
	runs := repositories.NewRunRepository(db)

	music := services.NewSpotifyClient(services.SpotifyOpts{
		HTTPClient: r.httpClient,
		RateLimit:  config.Generator.RateLimit,
	})

	tokens := services.NewTokenManager(services.TokenManagerOpts{
		Users:  users,
		Config: services.OAuthConfig(creds),
		Logger: r.logger,
	})

	gen := tasks.NewGenerator(tasks.GeneratorOpts{
		Users:         users,
		Runs:          runs,
		Tokens:        tokens,
		Music:         music,
		Logger:        r.logger,
		Workers:       config.Generator.Workers,
		RateLimit:     config.Generator.RateLimit,
		MaxAttempts:   config.Generator.MaxAttempts,
		PlaylistLimit: config.Generator.PlaylistLimit,
	})

	return &deps{
		db:     db,
		users:  users,
		runs:   runs,
		music:  music,
		tokens: tokens,
		gen:    gen,
	}, nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
