package models

import (
	"context"
	"fmt"

	"github.com/robalyx/bgcheck/internal/database/dbretry"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RankBlacklistModel handles database operations for blacklisted group ranks.
type RankBlacklistModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewRankBlacklist creates a new rank blacklist model instance.
func NewRankBlacklist(db *bun.DB, logger *zap.Logger) *RankBlacklistModel {
	return &RankBlacklistModel{
		db:     db,
		logger: logger.Named("db_rank_blacklist"),
	}
}

// Upsert stores a blacklisted rank, replacing the reason and actor of an existing entry.
func (m *RankBlacklistModel) Upsert(ctx context.Context, entry *types.RankBlacklist) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(entry).
			On("CONFLICT (guild_id, group_id, rank) DO UPDATE").
			Set("reason = EXCLUDED.reason").
			Set("created_by = EXCLUDED.created_by").
			Set("created_at = EXCLUDED.created_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert rank blacklist: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted rank blacklist",
		zap.Uint64("guildID", entry.GuildID),
		zap.Uint64("groupID", entry.GroupID),
		zap.Uint8("rank", entry.Rank))

	return nil
}

// Delete removes a blacklisted rank. Returns false if no entry existed.
func (m *RankBlacklistModel) Delete(ctx context.Context, guildID, groupID uint64, rank uint8) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewDelete().
			Model((*types.RankBlacklist)(nil)).
			Where("guild_id = ?", guildID).
			Where("group_id = ?", groupID).
			Where("rank = ?", rank).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete rank blacklist: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get affected rows: %w", err)
		}

		return affected > 0, nil
	})
}

// List retrieves every blacklisted rank of a guild ordered by group and rank.
func (m *RankBlacklistModel) List(ctx context.Context, guildID uint64) ([]*types.RankBlacklist, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.RankBlacklist, error) {
		var entries []*types.RankBlacklist

		err := m.db.NewSelect().
			Model(&entries).
			Where("guild_id = ?", guildID).
			Order("group_id ASC", "rank ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list rank blacklists: %w", err)
		}

		return entries, nil
	})
}
