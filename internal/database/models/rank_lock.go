package models

import (
	"context"
	"fmt"

	"github.com/robalyx/bgcheck/internal/database/dbretry"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RankLockModel handles database operations for per-subject rank caps.
type RankLockModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewRankLock creates a new rank lock model instance.
func NewRankLock(db *bun.DB, logger *zap.Logger) *RankLockModel {
	return &RankLockModel{
		db:     db,
		logger: logger.Named("db_rank_lock"),
	}
}

// Upsert stores a rank lock, replacing the cap, reason and actor of an existing entry.
func (m *RankLockModel) Upsert(ctx context.Context, lock *types.RankLock) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(lock).
			On("CONFLICT (guild_id, roblox_user_id, group_id) DO UPDATE").
			Set("max_rank = EXCLUDED.max_rank").
			Set("reason = EXCLUDED.reason").
			Set("set_by = EXCLUDED.set_by").
			Set("set_at = EXCLUDED.set_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert rank lock: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted rank lock",
		zap.Uint64("guildID", lock.GuildID),
		zap.Uint64("robloxUserID", lock.RobloxUserID),
		zap.Uint64("groupID", lock.GroupID),
		zap.Uint8("maxRank", lock.MaxRank))

	return nil
}

// Delete removes a rank lock. Returns false if no entry existed.
func (m *RankLockModel) Delete(ctx context.Context, guildID, robloxUserID, groupID uint64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewDelete().
			Model((*types.RankLock)(nil)).
			Where("guild_id = ?", guildID).
			Where("roblox_user_id = ?", robloxUserID).
			Where("group_id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete rank lock: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get affected rows: %w", err)
		}

		return affected > 0, nil
	})
}

// List retrieves the rank locks of one subject in a guild ordered by group ID.
func (m *RankLockModel) List(ctx context.Context, guildID, robloxUserID uint64) ([]*types.RankLock, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.RankLock, error) {
		var locks []*types.RankLock

		err := m.db.NewSelect().
			Model(&locks).
			Where("guild_id = ?", guildID).
			Where("roblox_user_id = ?", robloxUserID).
			Order("group_id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list rank locks: %w", err)
		}

		return locks, nil
	})
}
