// Package jina calls the Jina rerank API.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"minirag/internal/domain"
	"minirag/internal/httpretry"
)

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

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

func NewClient(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.jina.ai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "jina-reranker-v2-base-multilingual"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
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

func (c *Client) Name() string { return "jina:" + c.model }

type document struct {
	Text string `json:"text"`
}

type request struct {
	Model     string     `json:"model"`
	Query     string     `json:"query"`
	Documents []document `json:"documents"`
	TopN      int        `json:"top_n"`
}

type response struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank sends every candidate text to the API and returns the topK hits
// ordered by relevance_score, with Score replaced by that value.
func (c *Client) Rerank(ctx context.Context, query string, hits []domain.CandidateHit, topK int) ([]domain.CandidateHit, error) {
	if topK <= 0 {
		return nil, domain.Invalid("top_k must be positive, got %d", topK)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	docs := make([]document, len(hits))
	for i, h := range hits {
		docs[i] = document{Text: h.Chunk.Text}
	}
	body, err := json.Marshal(request{Model: c.model, Query: query, Documents: docs, TopN: min(topK, len(hits))})
	if err != nil {
		return nil, err
	}

	var resp response
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrRerankUnavailable, err)
			}
		}
		wait, retry, err := c.post(ctx, body, &resp, attempt)
		if err == nil {
			break
		}
		if !retry || attempt >= c.maxRetries {
			return nil, fmt.Errorf("%w: jina rerank: %w", domain.ErrRerankUnavailable, err)
		}
		if err := httpretry.Sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrRerankUnavailable, err)
		}
	}

	sort.SliceStable(resp.Results, func(i, j int) bool {
		return resp.Results[i].RelevanceScore > resp.Results[j].RelevanceScore
	})
	out := make([]domain.CandidateHit, 0, topK)
	seen := make(map[int]bool, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(hits) || seen[r.Index] {
			return nil, fmt.Errorf("%w: jina returned invalid index %d", domain.ErrRerankUnavailable, r.Index)
		}
		seen[r.Index] = true
		h := hits[r.Index]
		h.Score = r.RelevanceScore
		out = append(out, h)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// post performs one attempt and reports whether a failure may be retried after wait.
func (c *Client) post(ctx context.Context, body []byte, out *response, attempt int) (time.Duration, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, err
		}
		return httpretry.Delay(attempt), true, err
	}
	defer resp.Body.Close()
	if httpretry.Retryable(resp.StatusCode) {
		return httpretry.After(resp, attempt), true, fmt.Errorf("status %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, false, fmt.Errorf("status %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	*out = response{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, false, fmt.Errorf("decode response: %w", err)
	}
	return 0, false, nil
}
