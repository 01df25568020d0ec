package commands

import (
	"context"

	"github.com/robalyx/bgcheck/internal/setup"
	"github.com/urfave/cli/v3"
)

// removed is printed by every remove command.
type removed struct {
	Removed bool `json:"removed"`
}

// PolicyCommands returns the commands managing the four rule tables.
func PolicyCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "watch",
			Usage: "Manage watched groups",
			Commands: []*cli.Command{
				{
					Name:      "set",
					Usage:     "Watch a group",
					ArgsUsage: "GROUP_ID",
					Flags: []cli.Flag{
						guildFlag(), actorFlag(),
						&cli.StringFlag{Name: "label", Usage: "Optional note shown with matches"},
					},
					Action: deps.withApp(deps.handleWatchSet),
				},
				{
					Name:      "remove",
					Usage:     "Stop watching a group",
					ArgsUsage: "GROUP_ID",
					Flags:     []cli.Flag{guildFlag()},
					Action:    deps.withApp(deps.handleWatchRemove),
				},
				{
					Name:   "list",
					Usage:  "List watched groups",
					Flags:  []cli.Flag{guildFlag()},
					Action: deps.withApp(deps.handleWatchList),
				},
			},
		},
		{
			Name:  "rank-blacklist",
			Usage: "Manage blacklisted group ranks",
			Commands: []*cli.Command{
				{
					Name:      "set",
					Usage:     "Blacklist a rank within a group",
					ArgsUsage: "GROUP_ID RANK",
					Flags:     []cli.Flag{guildFlag(), actorFlag(), reasonFlag()},
					Action:    deps.withApp(deps.handleRankBlacklistSet),
				},
				{
					Name:      "remove",
					Usage:     "Remove a blacklisted rank",
					ArgsUsage: "GROUP_ID RANK",
					Flags:     []cli.Flag{guildFlag()},
					Action:    deps.withApp(deps.handleRankBlacklistRemove),
				},
				{
					Name:   "list",
					Usage:  "List blacklisted ranks",
					Flags:  []cli.Flag{guildFlag()},
					Action: deps.withApp(deps.handleRankBlacklistList),
				},
			},
		},
		{
			Name:  "blacklist",
			Usage: "Manage blacklisted Roblox accounts",
			Commands: []*cli.Command{
				{
					Name:      "set",
					Usage:     "Blacklist a Roblox account",
					ArgsUsage: "ROBLOX_USER_ID",
					Flags:     []cli.Flag{guildFlag(), actorFlag(), reasonFlag()},
					Action:    deps.withApp(deps.handleBlacklistSet),
				},
				{
					Name:      "remove",
					Usage:     "Remove a blacklisted account",
					ArgsUsage: "ROBLOX_USER_ID",
					Flags:     []cli.Flag{guildFlag()},
					Action:    deps.withApp(deps.handleBlacklistRemove),
				},
				{
					Name:      "check",
					Usage:     "Show the blacklist entry of an account",
					ArgsUsage: "ROBLOX_USER_ID",
					Flags:     []cli.Flag{guildFlag()},
					Action:    deps.withApp(deps.handleBlacklistCheck),
				},
			},
		},
		{
			Name:  "ranklock",
			Usage: "Manage per-account rank locks",
			Commands: []*cli.Command{
				{
					Name:      "set",
					Usage:     "Cap the rank an account may hold in a group",
					ArgsUsage: "ROBLOX_USER_ID GROUP_ID MAX_RANK",
					Flags:     []cli.Flag{guildFlag(), actorFlag(), reasonFlag()},
					Action:    deps.withApp(deps.handleRankLockSet),
				},
				{
					Name:      "remove",
					Usage:     "Remove a rank lock",
					ArgsUsage: "ROBLOX_USER_ID GROUP_ID",
					Flags:     []cli.Flag{guildFlag()},
					Action:    deps.withApp(deps.handleRankLockRemove),
				},
				{
					Name:      "list",
					Usage:     "List the rank locks of an account",
					ArgsUsage: "ROBLOX_USER_ID",
					Flags:     []cli.Flag{guildFlag()},
					Action:    deps.withApp(deps.handleRankLockList),
				},
			},
		},
	}
}

func reasonFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "reason",
		Aliases: []string{"m"},
		Usage:   "Why the rule exists",
	}
}

func requireReason(c *cli.Command) (string, error) {
	reason := c.String("reason")
	if reason == "" {
		return "", ErrReasonRequired
	}
	return reason, nil
}

// handleWatchSet handles the 'watch set' command.
func (d *CLIDependencies) handleWatchSet(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	actor, err := parseActor(c)
	if err != nil {
		return err
	}

	ids, err := parseIDs(c, "group ID")
	if err != nil {
		return err
	}

	rule, err := app.Store.SetWatch(ctx, guildID, ids[0], c.String("label"), actor)
	if err != nil {
		return err
	}

	return d.writeJSON(rule)
}

// handleWatchRemove handles the 'watch remove' command.
func (d *CLIDependencies) handleWatchRemove(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	ids, err := parseIDs(c, "group ID")
	if err != nil {
		return err
	}

	ok, err := app.Store.RemoveWatch(ctx, guildID, ids[0])
	if err != nil {
		return err
	}

	return d.writeJSON(removed{Removed: ok})
}

// handleWatchList handles the 'watch list' command.
func (d *CLIDependencies) handleWatchList(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	rules, err := app.Store.ListWatch(ctx, guildID)
	if err != nil {
		return err
	}

	return d.writeJSON(rules)
}

// handleRankBlacklistSet handles the 'rank-blacklist set' command.
func (d *CLIDependencies) handleRankBlacklistSet(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	actor, err := parseActor(c)
	if err != nil {
		return err
	}

	reason, err := requireReason(c)
	if err != nil {
		return err
	}

	groupID, rank, err := parseGroupRank(c)
	if err != nil {
		return err
	}

	rule, err := app.Store.SetRankBlacklist(ctx, guildID, groupID, rank, reason, actor)
	if err != nil {
		return err
	}

	return d.writeJSON(rule)
}

// handleRankBlacklistRemove handles the 'rank-blacklist remove' command.
func (d *CLIDependencies) handleRankBlacklistRemove(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	groupID, rank, err := parseGroupRank(c)
	if err != nil {
		return err
	}

	ok, err := app.Store.RemoveRankBlacklist(ctx, guildID, groupID, rank)
	if err != nil {
		return err
	}

	return d.writeJSON(removed{Removed: ok})
}

// handleRankBlacklistList handles the 'rank-blacklist list' command.
func (d *CLIDependencies) handleRankBlacklistList(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	rules, err := app.Store.ListRankBlacklist(ctx, guildID)
	if err != nil {
		return err
	}

	return d.writeJSON(rules)
}

// handleBlacklistSet handles the 'blacklist set' command.
func (d *CLIDependencies) handleBlacklistSet(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	actor, err := parseActor(c)
	if err != nil {
		return err
	}

	reason, err := requireReason(c)
	if err != nil {
		return err
	}

	ids, err := parseIDs(c, "roblox user ID")
	if err != nil {
		return err
	}

	rule, err := app.Store.SetSubjectBlacklist(ctx, guildID, ids[0], reason, actor)
	if err != nil {
		return err
	}

	return d.writeJSON(rule)
}

// handleBlacklistRemove handles the 'blacklist remove' command.
func (d *CLIDependencies) handleBlacklistRemove(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	ids, err := parseIDs(c, "roblox user ID")
	if err != nil {
		return err
	}

	ok, err := app.Store.RemoveSubjectBlacklist(ctx, guildID, ids[0])
	if err != nil {
		return err
	}

	return d.writeJSON(removed{Removed: ok})
}

// handleBlacklistCheck handles the 'blacklist check' command. Prints null when not blacklisted.
func (d *CLIDependencies) handleBlacklistCheck(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	ids, err := parseIDs(c, "roblox user ID")
	if err != nil {
		return err
	}

	rule, err := app.Store.CheckSubjectBlacklist(ctx, guildID, ids[0])
	if err != nil {
		return err
	}

	return d.writeJSON(rule)
}

// handleRankLockSet handles the 'ranklock set' command.
func (d *CLIDependencies) handleRankLockSet(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	actor, err := parseActor(c)
	if err != nil {
		return err
	}

	reason, err := requireReason(c)
	if err != nil {
		return err
	}

	if c.Args().Len() != 3 {
		return ErrIDRequired
	}

	ids, err := parseUints(c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}

	maxRank, err := parseRank(c.Args().Get(2))
	if err != nil {
		return err
	}

	rule, err := app.Store.SetRankLock(ctx, guildID, ids[0], ids[1], maxRank, reason, actor)
	if err != nil {
		return err
	}

	return d.writeJSON(rule)
}

// handleRankLockRemove handles the 'ranklock remove' command.
func (d *CLIDependencies) handleRankLockRemove(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	ids, err := parseIDs(c, "roblox user ID", "group ID")
	if err != nil {
		return err
	}

	ok, err := app.Store.RemoveRankLock(ctx, guildID, ids[0], ids[1])
	if err != nil {
		return err
	}

	return d.writeJSON(removed{Removed: ok})
}

// handleRankLockList handles the 'ranklock list' command.
func (d *CLIDependencies) handleRankLockList(ctx context.Context, c *cli.Command, app *setup.App) error {
	guildID, err := parseGuild(c)
	if err != nil {
		return err
	}

	ids, err := parseIDs(c, "roblox user ID")
	if err != nil {
		return err
	}

	rules, err := app.Store.ListRankLock(ctx, guildID, ids[0])
	if err != nil {
		return err
	}

	return d.writeJSON(rules)
}

// parseGroupRank reads the GROUP_ID RANK positional arguments.
func parseGroupRank(c *cli.Command) (uint64, uint8, error) {
	if c.Args().Len() != 2 {
		return 0, 0, ErrIDRequired
	}

	ids, err := parseUints(c.Args().Get(0))
	if err != nil {
		return 0, 0, err
	}

	rank, err := parseRank(c.Args().Get(1))
	if err != nil {
		return 0, 0, err
	}

	return ids[0], rank, nil
}
