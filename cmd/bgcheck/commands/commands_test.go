package commands_test

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/robalyx/bgcheck/cmd/bgcheck/commands"
	"github.com/robalyx/bgcheck/internal/database"
	"github.com/robalyx/bgcheck/internal/database/migrations"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/robalyx/bgcheck/internal/redis"
	"github.com/robalyx/bgcheck/internal/setup"
	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/robalyx/bgcheck/internal/setup/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap/zaptest"
)

// newCLI returns a runner backed by one in-memory store shared across invocations.
func newCLI(t *testing.T) func(args ...string) (string, error) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, migrations.CreateSchema(t.Context(), db))
	t.Cleanup(func() { _ = db.Close() })

	logger := zaptest.NewLogger(t)
	cfg := &config.Config{Version: config.CurrentVersion}

	// Closing is left to the test cleanup so later invocations reuse the data
	store := noClose{database.NewFromDB(db, logger, 0)}
	initialize := func(context.Context, setup.Options) (*setup.App, error) {
		return &setup.App{
			Config:       cfg,
			Logger:       logger,
			Store:        store,
			RedisManager: redis.NewManager(&cfg.Redis, logger),
			Telemetry:    telemetry.NewManager(&cfg.Telemetry, "test", logger),
		}, nil
	}

	return func(args ...string) (string, error) {
		var out bytes.Buffer
		deps := &commands.CLIDependencies{Output: &out, Progress: &bytes.Buffer{}, Initialize: initialize}

		err := commands.Root(deps).Run(t.Context(), append([]string{"bgcheck"}, args...))
		return out.String(), err
	}
}

type noClose struct {
	database.Store
}

func (noClose) Close() error { return nil }

func TestWatchCommands(t *testing.T) {
	t.Parallel()
	run := newCLI(t)

	_, err := run("watch", "set", "--guild", "1", "--by", "9", "--label", "Raiders", "500")
	require.NoError(t, err)

	out, err := run("watch", "list", "--guild", "1")
	require.NoError(t, err)

	var watched []types.WatchedGroup
	require.NoError(t, sonic.UnmarshalString(out, &watched))
	require.Len(t, watched, 1)
	assert.Equal(t, uint64(500), watched[0].GroupID)
	assert.Equal(t, "Raiders", watched[0].Label)
	assert.Equal(t, uint64(9), watched[0].AddedBy)

	out, err = run("watch", "remove", "--guild", "1", "500")
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed": true}`, out)

	out, err = run("watch", "remove", "--guild", "1", "500")
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed": false}`, out)
}

func TestRankCommands(t *testing.T) {
	t.Parallel()
	run := newCLI(t)

	_, err := run("rank-blacklist", "set", "--guild", "1", "--reason", "raid leaders", "500", "10")
	require.NoError(t, err)

	out, err := run("rank-blacklist", "list", "--guild", "1")
	require.NoError(t, err)

	var blacklist []types.RankBlacklist
	require.NoError(t, sonic.UnmarshalString(out, &blacklist))
	require.Len(t, blacklist, 1)
	assert.Equal(t, uint8(10), blacklist[0].Rank)

	_, err = run("ranklock", "set", "--guild", "1", "--reason", "demoted", "42", "500", "3")
	require.NoError(t, err)

	out, err = run("ranklock", "list", "--guild", "1", "42")
	require.NoError(t, err)

	var locks []types.RankLock
	require.NoError(t, sonic.UnmarshalString(out, &locks))
	require.Len(t, locks, 1)
	assert.Equal(t, uint8(3), locks[0].MaxRank)
}

func TestBlacklistCommands(t *testing.T) {
	t.Parallel()
	run := newCLI(t)

	out, err := run("blacklist", "check", "--guild", "1", "42")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)

	_, err = run("blacklist", "set", "--guild", "1", "--reason", "alt account", "42")
	require.NoError(t, err)

	out, err = run("blacklist", "check", "--guild", "1", "42")
	require.NoError(t, err)

	var rule types.SubjectBlacklist
	require.NoError(t, sonic.UnmarshalString(out, &rule))
	assert.Equal(t, "alt account", rule.Reason)
}

func TestCommandValidation(t *testing.T) {
	t.Parallel()
	run := newCLI(t)

	tests := []struct {
		name     string
		args     []string
		expected error
	}{
		{
			name:     "missing guild",
			args:     []string{"watch", "list"},
			expected: commands.ErrGuildRequired,
		},
		{
			name:     "missing reason",
			args:     []string{"blacklist", "set", "--guild", "1", "42"},
			expected: commands.ErrReasonRequired,
		},
		{
			name:     "rank out of range",
			args:     []string{"rank-blacklist", "set", "--guild", "1", "--reason", "x", "500", "256"},
			expected: commands.ErrRankOutOfRange,
		},
		{
			name:     "missing id",
			args:     []string{"watch", "set", "--guild", "1"},
			expected: commands.ErrIDRequired,
		},
		{
			name:     "too many ids",
			args:     []string{"watch", "remove", "--guild", "1", "500", "600"},
			expected: commands.ErrTooManyArgs,
		},
		{
			name:     "check without subject",
			args:     []string{"check", "--guild", "1"},
			expected: commands.ErrSubjectRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(tt.args...)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}
