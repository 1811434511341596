// Package backend opens the scan cache selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/fogoscan/service/config"
	"github.com/brojonat/fogoscan/service/db"
	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/scancache"
)

// Store is an open scan cache plus the function that releases it.
type Store struct {
	scancache.Store
	Backend string
	close   func() error
}

// Close releases the underlying database handle, if any.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open opens the store named by cfg.StoreBackend. The postgres backend is
// migrated before it is returned.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Info("using in-memory scan cache")
		return &Store{Store: scancache.NewMemoryStore(), Backend: cfg.StoreBackend}, nil

	case config.StoreLevelDB:
		s, err := scancache.OpenLevelDBStore(cfg.LevelDBPath)
		if err != nil {
			return nil, err
		}
		logger.Info("opened leveldb scan cache", "path", cfg.LevelDBPath)
		return &Store{Store: s, Backend: cfg.StoreBackend, close: s.Close}, nil

	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to postgres scan cache")
		return &Store{
			Store:   db.NewStore(pool, m),
			Backend: cfg.StoreBackend,
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
