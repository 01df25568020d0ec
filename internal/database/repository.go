package database

import (
	"github.com/robalyx/bgcheck/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	watch            *models.WatchModel
	rankBlacklist    *models.RankBlacklistModel
	subjectBlacklist *models.SubjectBlacklistModel
	rankLock         *models.RankLockModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		watch:            models.NewWatch(db, logger),
		rankBlacklist:    models.NewRankBlacklist(db, logger),
		subjectBlacklist: models.NewSubjectBlacklist(db, logger),
		rankLock:         models.NewRankLock(db, logger),
	}
}

// Watch returns the watched group model.
func (r *Repository) Watch() *models.WatchModel {
	return r.watch
}

// RankBlacklist returns the rank blacklist model.
func (r *Repository) RankBlacklist() *models.RankBlacklistModel {
	return r.rankBlacklist
}

// SubjectBlacklist returns the subject blacklist model.
func (r *Repository) SubjectBlacklist() *models.SubjectBlacklistModel {
	return r.subjectBlacklist
}

// RankLock returns the rank lock model.
func (r *Repository) RankLock() *models.RankLockModel {
	return r.rankLock
}
