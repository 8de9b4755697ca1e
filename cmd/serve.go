package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/botm/internal/server"
	"github.com/desertthunder/botm/internal/services"
	"github.com/urfave/cli/v3"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the enrollment and trigger HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Serve,
	}
}

// Serve runs the HTTP server until interrupted, then drains in-flight
// requests before exiting.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	d, err := r.openDeps(config)
	if err != nil {
		return err
	}
	defer d.Close()

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))

	oauthConfig := services.OAuthConfig(config.Credentials.Spotify)
	router.Handler(server.NewEnrollmentHandler(oauthConfig, d.users, d.music, r.logger))

	if config.Generator.Username == "" || config.Generator.Password == "" {
		r.logger.Warn("generator credentials not configured, /generate disabled")
	} else {
		auth := server.BasicAuth(config.Generator.Username, config.Generator.Password)
		router.Handle("POST", "/generate", auth(server.NewGenerateHandler(d.gen, r.logger)))
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		r.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}
