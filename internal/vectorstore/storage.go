// Package vectorstore selects the configured vector store backend.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"minirag/internal/config"
	"minirag/internal/domain"
	"minirag/internal/vectorstore/memory"
	"minirag/internal/vectorstore/postgres"
	"minirag/internal/vectorstore/qdrant"
	"minirag/internal/vectorstore/redis"
	"minirag/internal/vectorstore/sqlite"
)

// New opens the store selected by cfg. The returned close func releases its
// connections and is never nil.
func New(ctx context.Context, cfg config.VectorStoreConfig) (domain.VectorStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), noop, nil
	case "qdrant":
		q := cfg.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Distance:   q.Distance,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), noop, nil
	case "postgres":
		pg := cfg.Postgres
		if pg.AutoMigrate {
			if err := postgres.Migrate(pg.MigrationsDir, pg.URL, "up", 0); err != nil {
				return nil, nil, fmt.Errorf("%w: migrate: %w", domain.ErrStoreUnavailable, err)
			}
		}
		st, err := postgres.NewWithDSN(ctx, pg.URL)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "redis":
		r := cfg.Redis
		st, client, err := redis.NewStorage(ctx, redis.Config{
			Addr:           r.Addr,
			Password:       r.Password,
			DB:             r.DB,
			IndexName:      r.Index,
			KeyPrefix:      r.Prefix,
			EFConstruction: r.EFConstruction,
			M:              r.M,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, client.Close, nil
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}
