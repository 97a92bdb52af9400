// Package store opens the configured feedback repository.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/community"
	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/database"
)

// Open connects to the store named by cfg.Driver and prepares its schema.
// The returned close function releases the underlying connections.
func Open(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (community.Repository, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory feedback store, data is lost on restart")
		return community.NewInMemoryRepository(), func() {}, nil

	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().
			Str("host", cfg.Postgres.Host).
			Int("port", cfg.Postgres.Port).
			Str("database", cfg.Postgres.Database).
			Msg("postgres feedback store connected")
		return community.NewPostgresRepository(pool), pool.Close, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite feedback store opened")
		return community.NewSQLiteRepository(db), func() { _ = db.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
}
