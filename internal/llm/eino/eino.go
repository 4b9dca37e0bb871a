// Package eino generates answers with an eino chat model.
package eino

import (
	"context"
	"fmt"
	"strings"

	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"minirag/internal/domain"
)

// ChatModelConfig defines the configuration for creating a chat model.
type ChatModelConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generator sends the grounded prompt as a single user message.
type Generator struct {
	chat        model.BaseChatModel
	name        string
	temperature float32
	maxTokens   int
}

// Wrap adapts an existing chat model.
func Wrap(chat model.BaseChatModel, name string, temperature float64, maxTokens int) *Generator {
	return &Generator{chat: chat, name: name, temperature: float32(temperature), maxTokens: maxTokens}
}

// NewOpenAI creates an OpenAI-compatible chat model generator.
func NewOpenAI(ctx context.Context, cfg ChatModelConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	chat, err := openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}
	return Wrap(chat, "openai:"+modelName, cfg.Temperature, cfg.MaxTokens), nil
}

// NewGemini creates a Google Gemini chat model generator.
func NewGemini(ctx context.Context, cfg ChatModelConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	chat, err := geminiModel.NewChatModel(ctx, &geminiModel.Config{
		Client: client,
		Model:  modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}
	return Wrap(chat, "gemini:"+modelName, cfg.Temperature, cfg.MaxTokens), nil
}

func (g *Generator) Name() string { return g.name }

// Generate returns the model's answer text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []model.Option{model.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(g.maxTokens))
	}
	msg, err := g.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrGenerationFailed, g.name, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: %s returned no content", domain.ErrGenerationFailed, g.name)
	}
	return msg.Content, nil
}
