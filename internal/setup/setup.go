package setup

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/robalyx/bgcheck/internal/bgcheck"
	"github.com/robalyx/bgcheck/internal/database"
	"github.com/robalyx/bgcheck/internal/database/migrations"
	"github.com/robalyx/bgcheck/internal/identity"
	"github.com/robalyx/bgcheck/internal/redis"
	"github.com/robalyx/bgcheck/internal/roblox/checker"
	"github.com/robalyx/bgcheck/internal/roblox/fetcher"
	"github.com/robalyx/bgcheck/internal/setup/client"
	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/robalyx/bgcheck/internal/setup/logger"
	"github.com/robalyx/bgcheck/internal/setup/telemetry"
	"github.com/robalyx/bgcheck/internal/valuation"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations indicates the schema is behind and auto migration is off.
var ErrPendingMigrations = errors.New("database migrations are pending, run `db migrate`")

// Options control application bootstrap.
type Options struct {
	ConfigPath  string // Explicit config file, searched in the default paths when empty
	LogLevel    string // Overrides the configured log level when set
	AutoMigrate bool   // Apply pending migrations instead of disabling the store
}

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	Store        database.Store     // Policy store, degraded when the database is unavailable
	DB           database.Client    // Database connection, nil when the store is disabled
	RedisManager *redis.Manager     // Redis connection manager
	Clients      *client.Clients    // Upstream fetch clients
	Service      *bgcheck.Service   // Background check service
	Telemetry    *telemetry.Manager // Tracing exporter
}

// InitializeApp bootstraps all application dependencies in the correct order.
// An unreachable database degrades the policy store instead of failing.
func InitializeApp(ctx context.Context, opts Options) (*App, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Debug.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	zapLogger, err := logger.NewZap(level)
	if err != nil {
		return nil, err
	}

	telemetryManager := telemetry.NewManager(&cfg.Telemetry, fmt.Sprintf("v%d", cfg.Version), zapLogger)

	// Redis manager provides connection pools for the distributed rate limiter
	redisManager := redis.NewManager(&cfg.Redis, zapLogger)

	db, err := openDatabase(ctx, &cfg.PostgreSQL, zapLogger, opts.AutoMigrate)

	var store database.Store = db
	if err != nil {
		zapLogger.Warn("Policy store disabled", zap.Error(err))
		store = database.NewDisabled(err)
		db = nil
	}

	clients := client.NewClients(cfg, redisManager, zapLogger)
	service := NewService(cfg, clients, store, zapLogger)

	return &App{
		Config:       cfg,
		Logger:       zapLogger,
		Store:        store,
		DB:           db,
		RedisManager: redisManager,
		Clients:      clients,
		Service:      service,
		Telemetry:    telemetryManager,
	}, nil
}

// NewService wires the fetchers and engines of a background check.
func NewService(cfg *config.Config, clients *client.Clients, store database.Store, zapLogger *zap.Logger) *bgcheck.Service {
	endpoints := fetcher.Endpoints{
		Rover:     cfg.Upstream.RoverBaseURL,
		Users:     cfg.Upstream.UsersBaseURL,
		Groups:    cfg.Upstream.GroupsBaseURL,
		Inventory: cfg.Upstream.InventoryBaseURL,
		Economy:   cfg.Upstream.EconomyBaseURL,
	}.WithDefaults()

	verification := fetcher.NewVerificationFetcher(clients.Primary, endpoints.Rover, cfg.Upstream.RoverAPIKey, zapLogger)
	users := fetcher.NewUserFetcher(clients.Primary, endpoints.Users, zapLogger)
	groups := fetcher.NewGroupFetcher(clients.Primary, endpoints.Groups, zapLogger)
	inventory := fetcher.NewInventoryFetcher(clients.Primary, endpoints.Inventory, zapLogger)
	economy := fetcher.NewEconomyFetcher(clients.Pricing, endpoints.Economy, zapLogger)

	return bgcheck.NewService(bgcheck.Dependencies{
		Resolver:    identity.NewResolver(verification, users, zapLogger),
		Profiles:    users,
		Memberships: groups,
		Store:       store,
		Checker:     checker.NewMembershipChecker(zapLogger),
		Valuer:      valuation.NewEstimator(inventory, economy, valuation.OptionsFromConfig(&cfg.Valuation), zapLogger),
	}, zapLogger)
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (a *App) Cleanup(ctx context.Context) {
	if err := a.Store.Close(); err != nil && !errors.Is(err, database.ErrStoreDisabled) {
		a.Logger.Error("Failed to close policy store", zap.Error(err))
	}

	a.Telemetry.Stop(ctx)

	// Close Redis connections last as other components might need it during cleanup
	a.RedisManager.Close()

	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	cfg, _, err := config.LoadConfig()
	return cfg, err
}

// openDatabase connects to the database and checks the migration status.
func openDatabase(
	ctx context.Context, cfg *config.PostgreSQL, zapLogger *zap.Logger, autoMigrate bool,
) (database.Client, error) {
	db, err := database.NewConnection(ctx, cfg, zapLogger, autoMigrate)
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		return db, nil
	}

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to check migration status: %w", database.ErrStoreDisabled, err)
	}

	if unapplied := ms.Unapplied(); len(unapplied) > 0 {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w (%d unapplied)", database.ErrStoreDisabled, ErrPendingMigrations, len(unapplied))
	}

	return db, nil
}
