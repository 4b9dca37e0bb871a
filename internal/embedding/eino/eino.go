// Package eino adapts an eino embedding component to the pipeline's Embedder.
package eino

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"

	"minirag/internal/domain"
)

// Config defines the configuration for creating an OpenAI-compatible eino embedder.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Embedder wraps an eino embedding model.
type Embedder struct {
	embedder einoEmbedding.Embedder
	model    string
	dim      atomic.Int64
}

// New builds the eino OpenAI embedding component and wraps it.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}
	emb, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("create eino embedder: %w", err)
	}
	return Wrap(emb, modelName), nil
}

// Wrap adapts an existing eino embedder.
func Wrap(emb einoEmbedding.Embedder, model string) *Embedder {
	return &Embedder{embedder: emb, model: model}
}

func (e *Embedder) Name() string { return "eino:" + e.model }

// Dimension is 0 until the first successful call.
func (e *Embedder) Dimension() int { return int(e.dim.Load()) }

// Embed generates an embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, domain.Invalid("no texts to embed")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, domain.Invalid("text %d is empty", i)
		}
	}
	vectors, err := e.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: eino embed: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: eino embed: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty embedding returned", domain.ErrEmbeddingUnavailable)
		}
	}
	e.dim.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors, nil
}
