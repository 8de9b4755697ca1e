package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/botm/internal/tasks"
	"github.com/urfave/cli/v3"
)

func generateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Run playlist generation for the current month",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Generate for a single Spotify user id",
			},
		},
		Action: r.Generate,
	}
}

// Generate runs the orchestrator once from the command line, streaming
// progress to stdout. A re-run after a partial failure picks up only the
// users that missed their playlist.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	d, err := r.openDeps(config)
	if err != nil {
		return err
	}
	defer d.Close()

	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
	}()

	now := time.Now().UTC()

	var result *tasks.RunResult
	if user := cmd.String("user"); user != "" {
		result, err = d.gen.RunUser(ctx, now, user, progress)
	} else {
		result, err = d.gen.Run(ctx, now, progress)
	}

	close(progress)
	<-done

	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	r.writePlainln("Run %d (%s): %d committed, %d failed, %d skipped",
		result.Run.ID, result.Month.Format("2006-01"), result.Committed, result.Failed, result.Skipped)

	if result.Failed > 0 {
		return fmt.Errorf("run finished with %d failed users", result.Failed)
	}

	return nil
}
