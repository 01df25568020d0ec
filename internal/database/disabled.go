package database

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/bgcheck/internal/database/types"
)

// disabledStore answers every operation with ErrStoreDisabled.
type disabledStore struct {
	reason error
}

// NewDisabled returns a Store whose operations all fail with ErrStoreDisabled.
// The reason is attached to every error when set.
func NewDisabled(reason error) Store {
	return &disabledStore{reason: reason}
}

func (d *disabledStore) err() error {
	if d.reason == nil {
		return ErrStoreDisabled
	}

	return fmt.Errorf("%w: %w", ErrStoreDisabled, d.reason)
}

func (d *disabledStore) SetWatch(context.Context, snowflake.ID, uint64, string, snowflake.ID) (*types.WatchedGroup, error) {
	return nil, d.err()
}

func (d *disabledStore) RemoveWatch(context.Context, snowflake.ID, uint64) (bool, error) {
	return false, d.err()
}

func (d *disabledStore) ListWatch(context.Context, snowflake.ID) ([]*types.WatchedGroup, error) {
	return nil, d.err()
}

func (d *disabledStore) SetRankBlacklist(
	context.Context, snowflake.ID, uint64, uint8, string, snowflake.ID,
) (*types.RankBlacklist, error) {
	return nil, d.err()
}

func (d *disabledStore) RemoveRankBlacklist(context.Context, snowflake.ID, uint64, uint8) (bool, error) {
	return false, d.err()
}

func (d *disabledStore) ListRankBlacklist(context.Context, snowflake.ID) ([]*types.RankBlacklist, error) {
	return nil, d.err()
}

func (d *disabledStore) SetSubjectBlacklist(
	context.Context, snowflake.ID, uint64, string, snowflake.ID,
) (*types.SubjectBlacklist, error) {
	return nil, d.err()
}

func (d *disabledStore) RemoveSubjectBlacklist(context.Context, snowflake.ID, uint64) (bool, error) {
	return false, d.err()
}

func (d *disabledStore) CheckSubjectBlacklist(context.Context, snowflake.ID, uint64) (*types.SubjectBlacklist, error) {
	return nil, d.err()
}

func (d *disabledStore) SetRankLock(
	context.Context, snowflake.ID, uint64, uint64, uint8, string, snowflake.ID,
) (*types.RankLock, error) {
	return nil, d.err()
}

func (d *disabledStore) RemoveRankLock(context.Context, snowflake.ID, uint64, uint64) (bool, error) {
	return false, d.err()
}

func (d *disabledStore) ListRankLock(context.Context, snowflake.ID, uint64) ([]*types.RankLock, error) {
	return nil, d.err()
}

func (d *disabledStore) LoadRules(context.Context, snowflake.ID, uint64) (*types.RuleSet, error) {
	return nil, d.err()
}

func (d *disabledStore) Close() error {
	return nil
}
