package commands

import "github.com/urfave/cli/v3"

// Root returns the bgcheck command tree.
func Root(deps *CLIDependencies) *cli.Command {
	return &cli.Command{
		Name:  "bgcheck",
		Usage: "Background checks of Roblox accounts against server policy rules",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config.toml, searched in the default paths when empty",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "auto-migrate",
				Usage: "Apply pending database migrations on startup",
			},
		},
		Commands: append([]*cli.Command{CheckCommand(deps)}, PolicyCommands(deps)...),
	}
}
