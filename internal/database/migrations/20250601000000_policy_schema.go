package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/uptrace/bun"
)

// policyTables lists the policy rule tables in creation order.
var policyTables = []struct {
	model any
	name  string
}{
	{(*types.WatchedGroup)(nil), "watched_groups"},
	{(*types.RankBlacklist)(nil), "rank_blacklists"},
	{(*types.SubjectBlacklist)(nil), "subject_blacklists"},
	{(*types.RankLock)(nil), "rank_locks"},
}

func init() {
	Migrations.MustRegister(CreateSchema, DropSchema)
}

// CreateSchema creates the policy rule tables and their indexes.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, table := range policyTables {
		_, err := db.NewCreateTable().
			Model(table.model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}

	// Rules are always read per guild, and rank locks per guild and subject
	_, err := db.NewCreateIndex().
		Model((*types.RankLock)(nil)).
		Index("idx_rank_locks_subject").
		Column("guild_id", "roblox_user_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create rank lock index: %w", err)
	}

	return nil
}

// DropSchema removes the policy rule tables.
func DropSchema(ctx context.Context, db *bun.DB) error {
	for i := len(policyTables) - 1; i >= 0; i-- {
		_, err := db.NewDropTable().
			Model(policyTables[i].model).
			IfExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop table %s: %w", policyTables[i].name, err)
		}
	}

	return nil
}
