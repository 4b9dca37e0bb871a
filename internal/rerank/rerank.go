// Package rerank selects the second-pass reranker and holds the trivial ones.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"minirag/internal/config"
	"minirag/internal/domain"
	"minirag/internal/rerank/jina"
	"minirag/internal/rerank/lexical"
)

// Passthrough keeps the incoming order and only truncates.
type Passthrough struct{}

func (Passthrough) Name() string { return "none" }

func (Passthrough) Rerank(_ context.Context, _ string, hits []domain.CandidateHit, topK int) ([]domain.CandidateHit, error) {
	if topK <= 0 {
		return nil, domain.Invalid("top_k must be positive, got %d", topK)
	}
	if topK > len(hits) {
		topK = len(hits)
	}
	return append([]domain.CandidateHit(nil), hits[:topK]...), nil
}

// Fallback answers with Secondary when Primary reports ErrRerankUnavailable.
type Fallback struct {
	Primary   domain.Reranker
	Secondary domain.Reranker
	Logger    *log.Logger
}

func (f *Fallback) Name() string { return f.Primary.Name() + "|" + f.Secondary.Name() }

func (f *Fallback) Rerank(ctx context.Context, query string, hits []domain.CandidateHit, topK int) ([]domain.CandidateHit, error) {
	out, err := f.Primary.Rerank(ctx, query, hits, topK)
	if err == nil || !errors.Is(err, domain.ErrRerankUnavailable) || ctx.Err() != nil {
		return out, err
	}
	if f.Logger != nil {
		f.Logger.Printf("reranker %s failed, using %s: %v", f.Primary.Name(), f.Secondary.Name(), err)
	}
	return f.Secondary.Rerank(ctx, query, hits, topK)
}

// New returns the reranker selected by cfg.
func New(cfg config.RerankerConfig, logger *log.Logger) (domain.Reranker, error) {
	switch cfg.Type {
	case "lexical", "":
		return lexical.New(), nil
	case "none":
		return Passthrough{}, nil
	case "jina":
		c, err := jina.NewClient(jina.Config{
			BaseURL:           cfg.Jina.BaseURL,
			APIKeyEnv:         cfg.Jina.APIKeyEnv,
			Model:             cfg.Jina.Model,
			Timeout:           time.Duration(cfg.Jina.TimeoutSecs) * time.Second,
			RequestsPerSecond: cfg.Jina.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("jina reranker: %w", err)
		}
		if cfg.FallbackOnError {
			return &Fallback{Primary: c, Secondary: lexical.New(), Logger: logger}, nil
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown reranker: %s", cfg.Type)
	}
}
