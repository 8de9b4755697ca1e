package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Run ledger operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List past runs with commit counts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.RunsList,
			},
		},
	}
}

// RunsList prints the run ledger, newest first.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	d, err := r.openDeps(config)
	if err != nil {
		return err
	}
	defer d.Close()

	runs, err := d.runs.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		r.writePlain("No runs yet.\n")
		return nil
	}

	for _, run := range runs {
		committed, err := d.runs.CommittedUsers(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load commits for run %d: %w", run.ID, err)
		}
		r.writePlain("Run %d (%s): %d users committed\n", run.ID, run.Date.Format("2006-01"), len(committed))
	}

	return nil
}
