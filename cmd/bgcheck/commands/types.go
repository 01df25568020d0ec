package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/bgcheck/internal/setup"
	"github.com/urfave/cli/v3"
)

var (
	ErrGuildRequired  = errors.New("--guild is required")
	ErrIDRequired     = errors.New("ID argument required")
	ErrRankOutOfRange = errors.New("rank must be between 0 and 255")
	ErrReasonRequired = errors.New("--reason is required")
	ErrTooManyArgs    = errors.New("too many arguments")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	Output   io.Writer // JSON results
	Progress io.Writer // Progress bar and prompts

	// Initialize overrides application bootstrap, used by tests.
	Initialize func(ctx context.Context, opts setup.Options) (*setup.App, error)
}

// appAction is a command action that needs the initialized application.
type appAction func(ctx context.Context, c *cli.Command, app *setup.App) error

// withApp initializes the application from the global flags for the duration of the action.
func (d *CLIDependencies) withApp(action appAction) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		initialize := d.Initialize
		if initialize == nil {
			initialize = setup.InitializeApp
		}

		app, err := initialize(ctx, setup.Options{
			ConfigPath:  c.String("config"),
			LogLevel:    c.String("log-level"),
			AutoMigrate: c.Bool("auto-migrate"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Cleanup(context.WithoutCancel(ctx))

		return action(ctx, c, app)
	}
}

// writeJSON prints v as indented JSON.
func (d *CLIDependencies) writeJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	_, err = fmt.Fprintln(d.Output, string(data))

	return err
}

// guildFlag is the tenant every policy and check command is scoped to.
func guildFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "guild",
		Aliases: []string{"g"},
		Usage:   "Discord server ID the rules belong to",
	}
}

func actorFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "by",
		Usage: "Discord user ID recorded as the author of the change",
	}
}

func parseGuild(c *cli.Command) (snowflake.ID, error) {
	raw := c.String("guild")
	if raw == "" {
		return 0, ErrGuildRequired
	}

	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid guild ID %q: %w", raw, err)
	}

	return id, nil
}

// parseActor returns the --by flag, zero when unset.
func parseActor(c *cli.Command) (snowflake.ID, error) {
	raw := c.String("by")
	if raw == "" {
		return 0, nil
	}

	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid actor ID %q: %w", raw, err)
	}

	return id, nil
}

// parseIDs reads one positional Roblox ID per name.
func parseIDs(c *cli.Command, names ...string) ([]uint64, error) {
	if c.Args().Len() < len(names) {
		return nil, fmt.Errorf("%w: %v", ErrIDRequired, names)
	}
	if c.Args().Len() > len(names) {
		return nil, ErrTooManyArgs
	}

	return parseUints(c.Args().Slice()...)
}

// parseUints parses positive decimal IDs.
func parseUints(raw ...string) ([]uint64, error) {
	ids := make([]uint64, len(raw))
	for i, value := range raw {
		id, err := strconv.ParseUint(value, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: %q is not a valid ID", ErrIDRequired, value)
		}
		ids[i] = id
	}

	return ids, nil
}

func parseRank(raw string) (uint8, error) {
	rank, err := strconv.Atoi(raw)
	if err != nil || rank < 0 || rank > 255 {
		return 0, fmt.Errorf("%w: %q", ErrRankOutOfRange, raw)
	}

	return uint8(rank), nil
}
