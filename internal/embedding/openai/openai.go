package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"minirag/internal/domain"
	"minirag/internal/httpretry"
)

// Client is an OpenAI-compatible embeddings client. It also understands the
// Ollama response shapes, so a local Ollama server can stand in for OpenAI.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  atomic.Int64
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	// APIKey takes precedence over APIKeyEnv.
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 5
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		maxRetries: retries,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the dimensionality seen on the first successful call, or 0.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, retrying throttling and server errors.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, domain.Invalid("no texts to embed")
	}
	body, err := json.Marshal(map[string]any{"model": c.model, "input": texts})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
			}
		}
		vecs, wait, retry, err := c.post(ctx, url, body, len(texts), attempt)
		if err == nil {
			c.dimension.CompareAndSwap(0, int64(len(vecs[0])))
			return vecs, nil
		}
		if !retry || attempt >= c.maxRetries {
			return nil, fmt.Errorf("%w: openai embeddings: %w", domain.ErrEmbeddingUnavailable, err)
		}
		if err := httpretry.Sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
	}
}

// post performs one attempt and reports whether a failure may be retried after wait.
func (c *Client) post(ctx context.Context, url string, body []byte, n, attempt int) ([][]float64, time.Duration, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, false, err
		}
		return nil, httpretry.Delay(attempt), true, err
	}
	defer resp.Body.Close()

	if httpretry.Retryable(resp.StatusCode) {
		return nil, httpretry.After(resp, attempt), true, fmt.Errorf("status %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, false, fmt.Errorf("status %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httpretry.Delay(attempt), true, err
	}
	vecs, err := decodeEmbeddings(payload, n)
	if err != nil {
		return nil, httpretry.Delay(attempt), true, err
	}
	return vecs, 0, false, nil
}

func decodeEmbeddings(payload []byte, n int) ([][]float64, error) {
	// OpenAI-compatible response first
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) == n {
		sort.SliceStable(openaiOut.Data, func(i, j int) bool { return openaiOut.Data[i].Index < openaiOut.Data[j].Index })
		out := make([][]float64, n)
		for i, d := range openaiOut.Data {
			if len(d.Embedding) == 0 {
				return nil, errors.New("empty embedding returned")
			}
			out[i] = d.Embedding
		}
		return out, nil
	}
	// Ollama shapes: {"embeddings": [[...]]} and the single {"embedding": [...]}
	var ollamaOut struct {
		Embeddings [][]float64 `json:"embeddings"`
		Embedding  []float64   `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil {
		if len(ollamaOut.Embeddings) == n && len(ollamaOut.Embeddings[0]) > 0 {
			return ollamaOut.Embeddings, nil
		}
		if n == 1 && len(ollamaOut.Embedding) > 0 {
			return [][]float64{ollamaOut.Embedding}, nil
		}
	}
	return nil, errors.New("no embedding returned")
}
