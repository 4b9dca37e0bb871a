// Package llm selects the answer generator.
package llm

import (
	"context"
	"fmt"
	"os"

	"minirag/internal/config"
	"minirag/internal/domain"
	"minirag/internal/llm/eino"
	"minirag/internal/llm/extractive"
)

// New returns the generator selected by cfg.
func New(ctx context.Context, cfg config.GeneratorConfig) (domain.Generator, error) {
	chatCfg := eino.ChatModelConfig{
		APIKey:      os.Getenv(cfg.APIKeyEnv),
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	switch cfg.Type {
	case "extractive", "":
		return extractive.New(cfg.MaxSentences), nil
	case "openai":
		g, err := eino.NewOpenAI(ctx, chatCfg)
		if err != nil {
			return nil, fmt.Errorf("openai generator (key from %s): %w", cfg.APIKeyEnv, err)
		}
		return g, nil
	case "gemini":
		g, err := eino.NewGemini(ctx, chatCfg)
		if err != nil {
			return nil, fmt.Errorf("gemini generator (key from %s): %w", cfg.APIKeyEnv, err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}
