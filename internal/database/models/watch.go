package models

import (
	"context"
	"fmt"

	"github.com/robalyx/bgcheck/internal/database/dbretry"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// WatchModel handles database operations for watched groups.
type WatchModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewWatch creates a new watch model instance.
func NewWatch(db *bun.DB, logger *zap.Logger) *WatchModel {
	return &WatchModel{
		db:     db,
		logger: logger.Named("db_watch"),
	}
}

// Upsert stores a watched group, replacing the label and actor of an existing entry.
func (m *WatchModel) Upsert(ctx context.Context, watch *types.WatchedGroup) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(watch).
			On("CONFLICT (guild_id, group_id) DO UPDATE").
			Set("label = EXCLUDED.label").
			Set("added_by = EXCLUDED.added_by").
			Set("added_at = EXCLUDED.added_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert watched group: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted watched group",
		zap.Uint64("guildID", watch.GuildID),
		zap.Uint64("groupID", watch.GroupID))

	return nil
}

// Delete removes a watched group. Returns false if no entry existed.
func (m *WatchModel) Delete(ctx context.Context, guildID, groupID uint64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewDelete().
			Model((*types.WatchedGroup)(nil)).
			Where("guild_id = ?", guildID).
			Where("group_id = ?", groupID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete watched group: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get affected rows: %w", err)
		}

		return affected > 0, nil
	})
}

// List retrieves every watched group of a guild ordered by group ID.
func (m *WatchModel) List(ctx context.Context, guildID uint64) ([]*types.WatchedGroup, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.WatchedGroup, error) {
		var watches []*types.WatchedGroup

		err := m.db.NewSelect().
			Model(&watches).
			Where("guild_id = ?", guildID).
			Order("group_id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list watched groups: %w", err)
		}

		return watches, nil
	})
}
