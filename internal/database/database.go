package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/bgcheck/internal/database/dbretry"
	"github.com/robalyx/bgcheck/internal/database/migrations"
	"github.com/robalyx/bgcheck/internal/database/types"
	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/robalyx/bgcheck/pkg/utils"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/extra/bunotel"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// DefaultOperationTimeout bounds a single store operation including retries.
const DefaultOperationTimeout = 5 * time.Second

var (
	// ErrStoreDisabled indicates the policy store is unconfigured or unreachable.
	ErrStoreDisabled = errors.New("policy store disabled")
	// ErrInvalidRule indicates a rule is missing a required identifier.
	ErrInvalidRule = errors.New("invalid rule")
)

// sonicProvider is a JSON provider that uses Sonic for encoding and decoding.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

// Store defines the policy rule operations available to background checks.
// Every operation is scoped to a guild and every Set operation is an upsert.
type Store interface {
	SetWatch(ctx context.Context, guildID snowflake.ID, groupID uint64, label string, by snowflake.ID) (*types.WatchedGroup, error)
	RemoveWatch(ctx context.Context, guildID snowflake.ID, groupID uint64) (bool, error)
	ListWatch(ctx context.Context, guildID snowflake.ID) ([]*types.WatchedGroup, error)

	SetRankBlacklist(
		ctx context.Context, guildID snowflake.ID, groupID uint64, rank uint8, reason string, by snowflake.ID,
	) (*types.RankBlacklist, error)
	RemoveRankBlacklist(ctx context.Context, guildID snowflake.ID, groupID uint64, rank uint8) (bool, error)
	ListRankBlacklist(ctx context.Context, guildID snowflake.ID) ([]*types.RankBlacklist, error)

	SetSubjectBlacklist(
		ctx context.Context, guildID snowflake.ID, robloxUserID uint64, reason string, by snowflake.ID,
	) (*types.SubjectBlacklist, error)
	RemoveSubjectBlacklist(ctx context.Context, guildID snowflake.ID, robloxUserID uint64) (bool, error)
	CheckSubjectBlacklist(ctx context.Context, guildID snowflake.ID, robloxUserID uint64) (*types.SubjectBlacklist, error)

	SetRankLock(
		ctx context.Context, guildID snowflake.ID, robloxUserID, groupID uint64, maxRank uint8, reason string, by snowflake.ID,
	) (*types.RankLock, error)
	RemoveRankLock(ctx context.Context, guildID snowflake.ID, robloxUserID, groupID uint64) (bool, error)
	ListRankLock(ctx context.Context, guildID snowflake.ID, robloxUserID uint64) ([]*types.RankLock, error)

	// LoadRules returns every rule of the guild that applies to the subject.
	LoadRules(ctx context.Context, guildID snowflake.ID, robloxUserID uint64) (*types.RuleSet, error)

	// Close gracefully shuts down the store.
	Close() error
}

// Client is a Store backed by a database connection.
type Client interface {
	Store
	// Model returns the repository containing all model operations.
	Model() *Repository
	// DB returns the underlying bun.DB instance.
	DB() *bun.DB
}

// clientImpl represents the concrete implementation of the database client.
type clientImpl struct {
	db      *bun.DB
	logger  *zap.Logger
	repo    *Repository
	timeout time.Duration
	now     func() time.Time
}

// NewConnection establishes a new database connection and returns a Client instance.
// An unreachable database fails with an error wrapping ErrStoreDisabled.
func NewConnection(
	ctx context.Context, config *config.PostgreSQL, logger *zap.Logger, autoMigrate bool,
) (Client, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("%w: no postgresql host configured", ErrStoreDisabled)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", config.Host, config.Port)),
		pgdriver.WithUser(config.User),
		pgdriver.WithPassword(config.Password),
		pgdriver.WithDatabase(config.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("bgcheck"),
	))

	// Set connection pool settings
	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}

	sqldb.SetMaxOpenConns(maxOpen)
	sqldb.SetMaxIdleConns(min(config.MaxIdleConns, maxOpen))
	sqldb.SetConnMaxLifetime(time.Duration(config.MaxLifetime) * time.Minute)
	sqldb.SetConnMaxIdleTime(time.Duration(config.MaxIdleTime) * time.Minute)

	bunjson.SetProvider(sonicProvider{})

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(config.DBName)))

	timeout := DefaultOperationTimeout
	if config.OperationTimeout > 0 {
		timeout = time.Duration(config.OperationTimeout) * time.Millisecond
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreDisabled, err)
	}

	if autoMigrate {
		if err := Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	client := NewFromDB(db, logger, timeout)

	logger.Info("Database connection established",
		zap.String("host", config.Host),
		zap.Int("maxOpenConns", maxOpen))

	return client, nil
}

// NewFromDB wraps an existing bun.DB. A non-positive timeout uses DefaultOperationTimeout.
func NewFromDB(db *bun.DB, logger *zap.Logger, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}

	db.AddQueryHook(NewHook(logger))

	return &clientImpl{
		db:      db,
		logger:  logger.Named("database"),
		repo:    NewRepository(db, logger),
		timeout: timeout,
		now:     time.Now,
	}
}

// Migrate runs every pending migration.
func Migrate(ctx context.Context, db *bun.DB, logger *zap.Logger) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if !group.IsZero() {
		logger.Info("Automatically ran migrations", zap.String("group", group.String()))
	}

	return nil
}

// Close gracefully shuts down the database connection.
func (c *clientImpl) Close() error {
	err := c.db.Close()
	if err != nil {
		c.logger.Error("Failed to close database connection", zap.Error(err))
		return err
	}

	c.logger.Info("Database connection closed")

	return nil
}

// Model returns the repository containing all model operations.
func (c *clientImpl) Model() *Repository {
	return c.repo
}

// DB returns the underlying bun.DB instance.
func (c *clientImpl) DB() *bun.DB {
	return c.db
}

// SetWatch adds a watched group or replaces its label.
func (c *clientImpl) SetWatch(
	ctx context.Context, guildID snowflake.ID, groupID uint64, label string, by snowflake.ID,
) (*types.WatchedGroup, error) {
	if guildID == 0 || groupID == 0 {
		return nil, fmt.Errorf("%w: guild and group are required", ErrInvalidRule)
	}

	watch := &types.WatchedGroup{
		GuildID: uint64(guildID),
		GroupID: groupID,
		Label:   utils.SanitizeText(label, utils.MaxReasonLength),
		AddedBy: uint64(by),
		AddedAt: c.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.repo.Watch().Upsert(ctx, watch); err != nil {
		return nil, c.wrap("set watch", err)
	}

	return watch, nil
}

// RemoveWatch removes a watched group. Returns false if it was not watched.
func (c *clientImpl) RemoveWatch(ctx context.Context, guildID snowflake.ID, groupID uint64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	removed, err := c.repo.Watch().Delete(ctx, uint64(guildID), groupID)
	if err != nil {
		return false, c.wrap("remove watch", err)
	}

	return removed, nil
}

// ListWatch lists the watched groups of a guild.
func (c *clientImpl) ListWatch(ctx context.Context, guildID snowflake.ID) ([]*types.WatchedGroup, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	watches, err := c.repo.Watch().List(ctx, uint64(guildID))
	if err != nil {
		return nil, c.wrap("list watch", err)
	}

	return watches, nil
}

// SetRankBlacklist blacklists a rank of a group or replaces its reason.
func (c *clientImpl) SetRankBlacklist(
	ctx context.Context, guildID snowflake.ID, groupID uint64, rank uint8, reason string, by snowflake.ID,
) (*types.RankBlacklist, error) {
	if guildID == 0 || groupID == 0 {
		return nil, fmt.Errorf("%w: guild and group are required", ErrInvalidRule)
	}

	entry := &types.RankBlacklist{
		GuildID:   uint64(guildID),
		GroupID:   groupID,
		Rank:      rank,
		Reason:    utils.SanitizeText(reason, utils.MaxReasonLength),
		CreatedBy: uint64(by),
		CreatedAt: c.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.repo.RankBlacklist().Upsert(ctx, entry); err != nil {
		return nil, c.wrap("set rank blacklist", err)
	}

	return entry, nil
}

// RemoveRankBlacklist removes a blacklisted rank. Returns false if it was not blacklisted.
func (c *clientImpl) RemoveRankBlacklist(ctx context.Context, guildID snowflake.ID, groupID uint64, rank uint8) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	removed, err := c.repo.RankBlacklist().Delete(ctx, uint64(guildID), groupID, rank)
	if err != nil {
		return false, c.wrap("remove rank blacklist", err)
	}

	return removed, nil
}

// ListRankBlacklist lists the blacklisted ranks of a guild.
func (c *clientImpl) ListRankBlacklist(ctx context.Context, guildID snowflake.ID) ([]*types.RankBlacklist, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entries, err := c.repo.RankBlacklist().List(ctx, uint64(guildID))
	if err != nil {
		return nil, c.wrap("list rank blacklist", err)
	}

	return entries, nil
}

// SetSubjectBlacklist blacklists a Roblox account or replaces its reason.
func (c *clientImpl) SetSubjectBlacklist(
	ctx context.Context, guildID snowflake.ID, robloxUserID uint64, reason string, by snowflake.ID,
) (*types.SubjectBlacklist, error) {
	if guildID == 0 || robloxUserID == 0 {
		return nil, fmt.Errorf("%w: guild and user are required", ErrInvalidRule)
	}

	entry := &types.SubjectBlacklist{
		GuildID:      uint64(guildID),
		RobloxUserID: robloxUserID,
		Reason:       utils.SanitizeText(reason, utils.MaxReasonLength),
		CreatedBy:    uint64(by),
		CreatedAt:    c.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.repo.SubjectBlacklist().Upsert(ctx, entry); err != nil {
		return nil, c.wrap("set subject blacklist", err)
	}

	return entry, nil
}

// RemoveSubjectBlacklist removes a blacklisted account. Returns false if it was not blacklisted.
func (c *clientImpl) RemoveSubjectBlacklist(ctx context.Context, guildID snowflake.ID, robloxUserID uint64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	removed, err := c.repo.SubjectBlacklist().Delete(ctx, uint64(guildID), robloxUserID)
	if err != nil {
		return false, c.wrap("remove subject blacklist", err)
	}

	return removed, nil
}

// CheckSubjectBlacklist returns the blacklist entry of an account or nil.
func (c *clientImpl) CheckSubjectBlacklist(
	ctx context.Context, guildID snowflake.ID, robloxUserID uint64,
) (*types.SubjectBlacklist, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entry, err := c.repo.SubjectBlacklist().Get(ctx, uint64(guildID), robloxUserID)
	if err != nil {
		return nil, c.wrap("check subject blacklist", err)
	}

	return entry, nil
}

// SetRankLock caps the rank of an account in a group or replaces the existing cap.
func (c *clientImpl) SetRankLock(
	ctx context.Context, guildID snowflake.ID, robloxUserID, groupID uint64, maxRank uint8, reason string, by snowflake.ID,
) (*types.RankLock, error) {
	if guildID == 0 || robloxUserID == 0 || groupID == 0 {
		return nil, fmt.Errorf("%w: guild, user and group are required", ErrInvalidRule)
	}

	lock := &types.RankLock{
		GuildID:      uint64(guildID),
		RobloxUserID: robloxUserID,
		GroupID:      groupID,
		MaxRank:      maxRank,
		Reason:       utils.SanitizeText(reason, utils.MaxReasonLength),
		SetBy:        uint64(by),
		SetAt:        c.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.repo.RankLock().Upsert(ctx, lock); err != nil {
		return nil, c.wrap("set rank lock", err)
	}

	return lock, nil
}

// RemoveRankLock removes a rank lock. Returns false if none existed.
func (c *clientImpl) RemoveRankLock(ctx context.Context, guildID snowflake.ID, robloxUserID, groupID uint64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	removed, err := c.repo.RankLock().Delete(ctx, uint64(guildID), robloxUserID, groupID)
	if err != nil {
		return false, c.wrap("remove rank lock", err)
	}

	return removed, nil
}

// ListRankLock lists the rank locks of an account in a guild.
func (c *clientImpl) ListRankLock(ctx context.Context, guildID snowflake.ID, robloxUserID uint64) ([]*types.RankLock, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	locks, err := c.repo.RankLock().List(ctx, uint64(guildID), robloxUserID)
	if err != nil {
		return nil, c.wrap("list rank lock", err)
	}

	return locks, nil
}

// LoadRules returns every rule of the guild that applies to the subject.
func (c *clientImpl) LoadRules(ctx context.Context, guildID snowflake.ID, robloxUserID uint64) (*types.RuleSet, error) {
	watched, err := c.ListWatch(ctx, guildID)
	if err != nil {
		return nil, err
	}

	blacklist, err := c.ListRankBlacklist(ctx, guildID)
	if err != nil {
		return nil, err
	}

	locks, err := c.ListRankLock(ctx, guildID, robloxUserID)
	if err != nil {
		return nil, err
	}

	subject, err := c.CheckSubjectBlacklist(ctx, guildID, robloxUserID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Loaded rules",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("robloxUserID", robloxUserID),
		zap.Int("watched", len(watched)),
		zap.Int("rankBlacklist", len(blacklist)),
		zap.Int("rankLocks", len(locks)),
		zap.Bool("subjectBlacklisted", subject != nil))

	return types.NewRuleSetFrom(watched, blacklist, locks, subject), nil
}

// wrap marks connection failures with ErrStoreDisabled.
func (c *clientImpl) wrap(op string, err error) error {
	if dbretry.IsConnectionError(err) {
		c.logger.Warn("Policy store unreachable", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("%s: %w: %w", op, ErrStoreDisabled, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
