package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/robalyx/bgcheck/internal/database/dbretry"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SubjectBlacklistModel handles database operations for blacklisted Roblox accounts.
type SubjectBlacklistModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewSubjectBlacklist creates a new subject blacklist model instance.
func NewSubjectBlacklist(db *bun.DB, logger *zap.Logger) *SubjectBlacklistModel {
	return &SubjectBlacklistModel{
		db:     db,
		logger: logger.Named("db_subject_blacklist"),
	}
}

// Upsert stores a blacklisted subject, replacing the reason and actor of an existing entry.
func (m *SubjectBlacklistModel) Upsert(ctx context.Context, entry *types.SubjectBlacklist) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(entry).
			On("CONFLICT (guild_id, roblox_user_id) DO UPDATE").
			Set("reason = EXCLUDED.reason").
			Set("created_by = EXCLUDED.created_by").
			Set("created_at = EXCLUDED.created_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert subject blacklist: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted subject blacklist",
		zap.Uint64("guildID", entry.GuildID),
		zap.Uint64("robloxUserID", entry.RobloxUserID))

	return nil
}

// Delete removes a blacklisted subject. Returns false if no entry existed.
func (m *SubjectBlacklistModel) Delete(ctx context.Context, guildID, robloxUserID uint64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		result, err := m.db.NewDelete().
			Model((*types.SubjectBlacklist)(nil)).
			Where("guild_id = ?", guildID).
			Where("roblox_user_id = ?", robloxUserID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete subject blacklist: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get affected rows: %w", err)
		}

		return affected > 0, nil
	})
}

// Get retrieves the blacklist entry of a subject. Returns nil if the subject is not blacklisted.
func (m *SubjectBlacklistModel) Get(ctx context.Context, guildID, robloxUserID uint64) (*types.SubjectBlacklist, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.SubjectBlacklist, error) {
		var entry types.SubjectBlacklist

		err := m.db.NewSelect().
			Model(&entry).
			Where("guild_id = ?", guildID).
			Where("roblox_user_id = ?", robloxUserID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get subject blacklist: %w", err)
		}

		return &entry, nil
	})
}
