package app

import (
	"context"
	"fmt"

	"feedcraft/internal/config"
	"feedcraft/internal/store"
	"feedcraft/internal/store/memory"
	"feedcraft/internal/store/postgres"
	"feedcraft/internal/store/sqlite"
)

// OpenStore opens the adapter named by cfg.Driver. The schema is not touched;
// callers run EnsureSchema when they own the database.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		c, err := sqlite.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.DriverPostgres:
		c, err := postgres.New(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
}
