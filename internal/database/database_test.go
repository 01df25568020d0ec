package database_test

import (
	"database/sql"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/bgcheck/internal/database"
	"github.com/robalyx/bgcheck/internal/database/migrations"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap/zaptest"
)

const (
	guildID  = snowflake.ID(1111)
	otherID  = snowflake.ID(2222)
	staffID  = snowflake.ID(9999)
	subject  = uint64(42)
	groupID  = uint64(500)
	group2ID = uint64(600)
)

func setupStore(t *testing.T) (database.Client, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)

	// Every connection to :memory: opens a separate database
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, migrations.CreateSchema(t.Context(), db))

	client := database.NewFromDB(db, zaptest.NewLogger(t), 0)
	t.Cleanup(func() { _ = client.Close() })

	return client, db
}

func TestWatchUpsert(t *testing.T) {
	t.Parallel()
	store, _ := setupStore(t)
	ctx := t.Context()

	_, err := store.SetWatch(ctx, guildID, groupID, "first", staffID)
	require.NoError(t, err)

	watch, err := store.SetWatch(ctx, guildID, groupID, "  second \n label ", staffID)
	require.NoError(t, err)
	assert.Equal(t, "second label", watch.Label)

	_, err = store.SetWatch(ctx, otherID, groupID, "other guild", staffID)
	require.NoError(t, err)

	watches, err := store.ListWatch(ctx, guildID)
	require.NoError(t, err)
	require.Len(t, watches, 1)
	assert.Equal(t, "second label", watches[0].Label)
	assert.Equal(t, uint64(staffID), watches[0].AddedBy)

	removed, err := store.RemoveWatch(ctx, guildID, groupID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.RemoveWatch(ctx, guildID, groupID)
	require.NoError(t, err)
	assert.False(t, removed)

	watches, err = store.ListWatch(ctx, otherID)
	require.NoError(t, err)
	assert.Len(t, watches, 1)
}

func TestRankBlacklistUpsert(t *testing.T) {
	t.Parallel()
	store, _ := setupStore(t)
	ctx := t.Context()

	_, err := store.SetRankBlacklist(ctx, guildID, groupID, 10, "old reason", staffID)
	require.NoError(t, err)

	_, err = store.SetRankBlacklist(ctx, guildID, groupID, 10, "new reason", staffID)
	require.NoError(t, err)

	_, err = store.SetRankBlacklist(ctx, guildID, groupID, 20, "different rank", staffID)
	require.NoError(t, err)

	entries, err := store.ListRankBlacklist(ctx, guildID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint8(10), entries[0].Rank)
	assert.Equal(t, "new reason", entries[0].Reason)
	assert.Equal(t, uint8(20), entries[1].Rank)

	removed, err := store.RemoveRankBlacklist(ctx, guildID, groupID, 10)
	require.NoError(t, err)
	assert.True(t, removed)

	entries, err = store.ListRankBlacklist(ctx, guildID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSubjectBlacklistUpsert(t *testing.T) {
	t.Parallel()
	store, _ := setupStore(t)
	ctx := t.Context()

	entry, err := store.CheckSubjectBlacklist(ctx, guildID, subject)
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = store.SetSubjectBlacklist(ctx, guildID, subject, "first", staffID)
	require.NoError(t, err)

	_, err = store.SetSubjectBlacklist(ctx, guildID, subject, "second", staffID)
	require.NoError(t, err)

	entry, err = store.CheckSubjectBlacklist(ctx, guildID, subject)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "second", entry.Reason)

	entry, err = store.CheckSubjectBlacklist(ctx, otherID, subject)
	require.NoError(t, err)
	assert.Nil(t, entry)

	removed, err := store.RemoveSubjectBlacklist(ctx, guildID, subject)
	require.NoError(t, err)
	assert.True(t, removed)

	entry, err = store.CheckSubjectBlacklist(ctx, guildID, subject)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRankLockUpsert(t *testing.T) {
	t.Parallel()
	store, _ := setupStore(t)
	ctx := t.Context()

	_, err := store.SetRankLock(ctx, guildID, subject, groupID, 5, "first", staffID)
	require.NoError(t, err)

	_, err = store.SetRankLock(ctx, guildID, subject, groupID, 8, "raised", staffID)
	require.NoError(t, err)

	_, err = store.SetRankLock(ctx, guildID, subject, group2ID, 1, "other group", staffID)
	require.NoError(t, err)

	_, err = store.SetRankLock(ctx, guildID, subject+1, groupID, 1, "other subject", staffID)
	require.NoError(t, err)

	locks, err := store.ListRankLock(ctx, guildID, subject)
	require.NoError(t, err)
	require.Len(t, locks, 2)
	assert.Equal(t, groupID, locks[0].GroupID)
	assert.Equal(t, uint8(8), locks[0].MaxRank)
	assert.Equal(t, "raised", locks[0].Reason)
	assert.Equal(t, group2ID, locks[1].GroupID)

	removed, err := store.RemoveRankLock(ctx, guildID, subject, group2ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.RemoveRankLock(ctx, guildID, subject, group2ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLoadRules(t *testing.T) {
	t.Parallel()
	store, _ := setupStore(t)
	ctx := t.Context()

	_, err := store.SetWatch(ctx, guildID, groupID, "watched", staffID)
	require.NoError(t, err)
	_, err = store.SetRankBlacklist(ctx, guildID, groupID, 10, "blacklisted", staffID)
	require.NoError(t, err)
	_, err = store.SetRankLock(ctx, guildID, subject, group2ID, 3, "capped", staffID)
	require.NoError(t, err)
	_, err = store.SetRankLock(ctx, guildID, subject+1, groupID, 3, "someone else", staffID)
	require.NoError(t, err)
	_, err = store.SetSubjectBlacklist(ctx, guildID, subject, "alt", staffID)
	require.NoError(t, err)

	rules, err := store.LoadRules(ctx, guildID, subject)
	require.NoError(t, err)

	assert.Contains(t, rules.Watched, groupID)
	assert.Contains(t, rules.RankBlacklist, types.RankKey{GroupID: groupID, Rank: 10})
	require.Len(t, rules.RankLocks, 1)
	assert.Equal(t, uint8(3), rules.RankLocks[group2ID].MaxRank)
	require.NotNil(t, rules.Subject)
	assert.Equal(t, "alt", rules.Subject.Reason)

	empty, err := store.LoadRules(ctx, otherID, subject)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestInvalidRule(t *testing.T) {
	t.Parallel()
	store, _ := setupStore(t)
	ctx := t.Context()

	_, err := store.SetWatch(ctx, 0, groupID, "", staffID)
	require.ErrorIs(t, err, database.ErrInvalidRule)

	_, err = store.SetRankLock(ctx, guildID, 0, groupID, 1, "", staffID)
	require.ErrorIs(t, err, database.ErrInvalidRule)
}

func TestClosedStoreIsDisabled(t *testing.T) {
	t.Parallel()
	store, db := setupStore(t)

	require.NoError(t, db.Close())

	_, err := store.ListWatch(t.Context(), guildID)
	require.ErrorIs(t, err, database.ErrStoreDisabled)
}

func TestDisabledStore(t *testing.T) {
	t.Parallel()
	store := database.NewDisabled(nil)
	ctx := t.Context()

	_, err := store.SetWatch(ctx, guildID, groupID, "", staffID)
	require.ErrorIs(t, err, database.ErrStoreDisabled)

	_, err = store.RemoveRankLock(ctx, guildID, subject, groupID)
	require.ErrorIs(t, err, database.ErrStoreDisabled)

	_, err = store.LoadRules(ctx, guildID, subject)
	require.ErrorIs(t, err, database.ErrStoreDisabled)

	assert.NoError(t, store.Close())
}
