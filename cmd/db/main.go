package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/robalyx/bgcheck/cmd/db/commands"
	"github.com/robalyx/bgcheck/internal/database"
	"github.com/robalyx/bgcheck/internal/database/migrations"
	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/robalyx/bgcheck/internal/setup/logger"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	deps, err := setupDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup migrator: %w", err)
	}
	defer deps.DB.Close()

	app := &cli.Command{
		Name:     "db",
		Usage:    "Policy store schema management",
		Commands: commands.MigrationCommands(deps),
	}

	return app.Run(ctx, os.Args)
}

// setupDependencies connects to the configured database and creates the migrator.
func setupDependencies(ctx context.Context) (*commands.CLIDependencies, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	zapLogger, err := logger.NewZap(cfg.Debug.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, zapLogger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &commands.CLIDependencies{
		DB:       db,
		Migrator: migrate.NewMigrator(db.DB(), migrations.Migrations),
		Logger:   zapLogger,
		Output:   os.Stdout,
	}, nil
}
