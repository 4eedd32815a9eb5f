// File: cmd/store.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/observability"
	"github.com/xkilldash9x/devicesweep/internal/results"
	"github.com/xkilldash9x/devicesweep/internal/store"
)

// runStore is the part of store.Store the commands use.
type runStore interface {
	SaveRun(ctx context.Context, res *results.Results) error
	LoadRun(ctx context.Context, runID string) (*results.Results, error)
}

// storeProvider creates a run store. Tests inject a mock instead of a live
// database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (runStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects using database.url, verifies the connection and applies the schema.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (DEVICESWEEP_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}
