// Package bootstrap opens the configured store and loads the species catalog
// for the api and reconcile processes.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/hatchery/internal/catalog"
	"example.com/hatchery/internal/config"
	"example.com/hatchery/internal/domain"
	"example.com/hatchery/internal/persistence/memory"
	"example.com/hatchery/internal/persistence/postgres"
	"example.com/hatchery/internal/persistence/sqlite"
)

// ErrNoCatalog is returned when neither a catalog file nor stored species are available.
var ErrNoCatalog = errors.New("no species catalog: set CATALOG_PATH or seed the store")

// OpenStore opens the store selected by cfg.StoreDriver. Postgres migrations
// run before the store is returned.
func OpenStore(ctx context.Context, cfg config.Config) (domain.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.NewRepository(pool), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// LoadCatalog reads the catalog file when one is configured and seeds the
// store with it; otherwise it rebuilds the catalog from stored species.
func LoadCatalog(ctx context.Context, path string, store domain.CatalogStore, logger *slog.Logger) (*catalog.Catalog, error) {
	if path == "" {
		cat, err := domain.LoadCatalog(ctx, store)
		if err != nil {
			return nil, err
		}
		if cat.Len() == 0 {
			return nil, ErrNoCatalog
		}
		return cat, nil
	}

	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, err
	}
	seeded, err := store.SeedCatalog(ctx, cat.All())
	if err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	if seeded {
		logger.Info("catalog seeded", "species", cat.Len(), "path", path)
	}
	return cat, nil
}
