package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"conformity-backend/internal/shared/config"
	"conformity-backend/internal/shared/storage/db"
	"conformity-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	names, _ := db.MigrationNames()
	telemetry.Info("migrate.done", map[string]any{"migrations": len(names)})
}
