package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/botm/internal/formatter"
	"github.com/desertthunder/botm/internal/playlist"
	"github.com/urfave/cli/v3"
)

func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Enrolled user operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List active users",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.UsersList,
			},
			{
				Name:  "disconnect",
				Usage: "Deactivate a user so runs skip them",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "spotify_id",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.UsersDisconnect,
			},
			{
				Name:  "top",
				Usage: "Preview the tracks the next run would publish for a user",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "spotify_id",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv, or markdown",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.UsersTop,
			},
		},
	}
}

// UsersList prints every active user with their enrollment timestamps.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	d, err := r.openDeps(config)
	if err != nil {
		return err
	}
	defer d.Close()

	users, err := d.users.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		r.writePlain("No active users.\n")
		return nil
	}

	for _, user := range users {
		r.writePlain("%s (enrolled %s, token expires %s)\n",
			user.SpotifyID,
			user.CreatedAt.Format("2006-01-02"),
			user.ExpiryTimestamp.Format("2006-01-02 15:04"),
		)
	}
	r.writePlainln("%d active users", len(users))

	return nil
}

// UsersDisconnect deactivates a user from the command line.
func (r *Runner) UsersDisconnect(ctx context.Context, cmd *cli.Command) error {
	spotifyID := cmd.StringArg("spotify_id")
	if spotifyID == "" {
		return fmt.Errorf("spotify_id argument is required")
	}

	config := r.loadConfig(cmd)

	d, err := r.openDeps(config)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.users.SetActive(ctx, spotifyID, false); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", spotifyID, err)
	}

	r.writePlain("Disconnected %s\n", spotifyID)
	return nil
}

// UsersTop fetches a user's current short-term top tracks and renders the
// selection the next run would publish.
func (r *Runner) UsersTop(ctx context.Context, cmd *cli.Command) error {
	spotifyID := cmd.StringArg("spotify_id")
	if spotifyID == "" {
		return fmt.Errorf("spotify_id argument is required")
	}

	config := r.loadConfig(cmd)

	d, err := r.openDeps(config)
	if err != nil {
		return err
	}
	defer d.Close()

	token, err := d.tokens.Token(ctx, spotifyID)
	if err != nil {
		return fmt.Errorf("failed to get token for %s: %w", spotifyID, err)
	}

	limit := config.Generator.PlaylistLimit
	tracks, err := d.music.TopTracks(ctx, token, "short_term", limit)
	if err != nil {
		return fmt.Errorf("failed to fetch top tracks: %w", err)
	}

	selection := playlist.Build(tracks, limit)
	month := playlist.MonthFor(time.Now().UTC())

	var rendered []byte
	switch format := cmd.String("format"); format {
	case "text":
		rendered = formatter.ToText(selection)
	case "csv":
		rendered, err = formatter.ToCSV(selection)
		if err != nil {
			return fmt.Errorf("failed to render CSV: %w", err)
		}
	case "markdown", "md":
		rendered = formatter.ToMarkdown(playlist.Title(month), selection)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if outputPath := cmd.String("output"); outputPath != "" {
		if err := os.WriteFile(outputPath, rendered, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		r.writePlain("Saved %d tracks to %s\n", len(selection), outputPath)
		return nil
	}

	if _, err := r.output.Write(rendered); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}
