package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/bgcheck/internal/bgcheck"
	"github.com/robalyx/bgcheck/internal/identity"
	"github.com/robalyx/bgcheck/internal/progress"
	"github.com/robalyx/bgcheck/internal/setup"
	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/urfave/cli/v3"
)

var ErrSubjectRequired = errors.New("one of --discord, --roblox-id or --username is required")

// CheckCommand returns the command running a background check.
func CheckCommand(deps *CLIDependencies) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Run a background check and print the report as JSON",
		Flags: []cli.Flag{
			guildFlag(),
			&cli.StringFlag{
				Name:    "discord",
				Aliases: []string{"d"},
				Usage:   "Discord user ID, resolved through the verification registry",
			},
			&cli.StringFlag{
				Name:    "roblox-id",
				Aliases: []string{"r"},
				Usage:   "Roblox user ID",
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Roblox username",
			},
			&cli.BoolFlag{
				Name:  "show-all",
				Usage: "Include memberships that match no rule",
			},
			&cli.BoolFlag{
				Name:  "value",
				Usage: "Estimate the inventory value",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Draw a progress bar while the check runs",
			},
		},
		Action: deps.withApp(deps.handleCheck),
	}
}

// handleCheck handles the 'check' command.
func (d *CLIDependencies) handleCheck(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	input, err := parseInput(c)
	if err != nil {
		return err
	}

	opts := bgcheck.Options{
		ShowAll:      c.Bool("show-all"),
		IncludeValue: c.Bool("value"),
	}

	var rendered chan struct{}
	if c.Bool("progress") {
		interval := progress.DefaultMinInterval
		if app.Config.Valuation.ProgressInterval > 0 {
			interval = config.Duration(app.Config.Valuation.ProgressInterval)
		}

		opts.Progress = progress.NewStream(progress.WithMinInterval(interval))
		rendered = make(chan struct{})

		go func() {
			defer close(rendered)
			progress.NewRenderer(d.Progress).Render(opts.Progress.Updates())
		}()
	}

	report, err := app.Service.Run(ctx, guildID, input, opts)
	if rendered != nil {
		<-rendered
	}
	if err != nil {
		return err
	}

	return d.writeJSON(report)
}

// parseInput builds the identity input from the subject flags.
// Several subjects are passed through so the resolver reports them as invalid.
func parseInput(c *cli.Command) (identity.Input, error) {
	var input identity.Input

	if raw := c.String("discord"); raw != "" {
		id, err := snowflake.Parse(raw)
		if err != nil {
			return input, fmt.Errorf("invalid discord ID %q: %w", raw, err)
		}
		input.DiscordUserID = &id
	}

	if raw := c.String("roblox-id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return input, fmt.Errorf("invalid roblox ID %q: %w", raw, err)
		}
		input.RobloxUserID = &id
	}

	input.Username = c.String("username")

	if input.DiscordUserID == nil && input.RobloxUserID == nil && input.Username == "" {
		return input, ErrSubjectRequired
	}

	return input, nil
}
