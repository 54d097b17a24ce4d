package repository

import (
	"context"
	"fmt"

	"demand-forecast/internal/config"
	"demand-forecast/migrations"
	"demand-forecast/pkg/database"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// DriverMemory selects the in-process store.
const DriverMemory = "memory"

// Open builds the store selected by cfg.Driver. SQLite databases are
// migrated on open; PostgreSQL schemas are applied with cmd/migrate.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger, m *metrics.Collector) (Store, error) {
	if cfg.Driver == DriverMemory || cfg.Driver == "" {
		logger.Info(ctx, "[REPO_INIT] Using in-memory registries", logging.Fields{})
		return NewMemoryStore(), nil
	}

	db, err := database.Open(DatabaseConfig(cfg), logger, m)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == database.DriverSQLite {
		if err := Migrate(ctx, db, migrations.Up); err != nil {
			db.Close()
			return nil, err
		}
	}
	return NewSQLStore(db, logger), nil
}

// DatabaseConfig converts the application settings into pkg/database form.
func DatabaseConfig(cfg config.DatabaseConfig) *database.Config {
	return &database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// Migrate applies the embedded schema migration in direction.
func Migrate(ctx context.Context, db *database.DB, direction string) error {
	schema, err := migrations.Load(direction)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "migrate_"+direction, schema); err != nil {
		return fmt.Errorf("failed to apply %s: %w", migrations.Name(direction), err)
	}
	return nil
}
