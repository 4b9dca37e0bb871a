// Package embedding selects and assembles the configured text embedder.
package embedding

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"minirag/internal/config"
	"minirag/internal/domain"
	"minirag/internal/embedding/cache"
	"minirag/internal/embedding/eino"
	"minirag/internal/embedding/hashing"
	"minirag/internal/embedding/openai"
)

// New returns the embedder selected by cfg, wrapped in the Redis cache when
// it is enabled.
func New(ctx context.Context, cfg config.EmbedderConfig) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Type {
	case "hashing", "":
		emb = hashing.NewEmbedder(cfg.Dimension)
	case "openai":
		c, err := openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKeyEnv:         cfg.OpenAI.APIKeyEnv,
			Model:             cfg.OpenAI.Model,
			Timeout:           time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = c
	case "eino":
		e, err := eino.New(ctx, eino.Config{
			APIKey:  os.Getenv(cfg.OpenAI.APIKeyEnv),
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("eino embedder: %w", err)
		}
		emb = e
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}

	if !cfg.Cache.Enabled {
		return emb, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	ttl := time.Duration(cfg.Cache.TTLSecs) * time.Second
	return cache.New(emb, rdb, cfg.Cache.Prefix, ttl, nil), nil
}
