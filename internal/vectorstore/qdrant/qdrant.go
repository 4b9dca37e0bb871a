package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"minirag/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// It creates the collection on Init when it does not exist yet.
type Storage struct {
	url        string
	apiKey     string
	collection string
	distance   string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distance := cfg.Distance
	if distance == "" {
		distance = "Cosine"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   distance,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a chunk id onto the UUID Qdrant requires for point ids.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Invalid("invalid dimension %d", dimension)
	}
	collURL := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	status, err := s.do(ctx, http.MethodGet, collURL, nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.distance,
		},
	}
	_, err = s.do(ctx, http.MethodPut, collURL, body, nil)
	return err
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return domain.Invalid("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		points[i] = map[string]any{
			"id":     PointID(c.ChunkID),
			"vector": vectors[i],
			"payload": map[string]any{
				"document_id": c.DocumentID,
				"chunk_id":    c.ChunkID,
				"position":    c.Position,
				"text":        c.Text,
				"token_count": c.TokenCount,
				"source":      c.Source,
				"title":       c.Title,
			},
		}
	}
	body := map[string]any{"points": points}
	_, err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
	return err
}

type payload struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Position   int    `json:"position"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Source     string `json:"source"`
	Title      string `json:"title"`
}

func (s *Storage) Search(ctx context.Context, vector []float64, topN int) ([]domain.CandidateHit, error) {
	if topN <= 0 {
		topN = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topN,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []struct {
			Score   float64   `json:"score"`
			Payload payload   `json:"payload"`
			Vector  []float64 `json:"vector"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp)
	if status == http.StatusNotFound {
		// nothing ingested yet
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.CandidateHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		results = append(results, domain.CandidateHit{
			Chunk: domain.Chunk{
				ChunkID:    p.ChunkID,
				DocumentID: p.DocumentID,
				Text:       p.Text,
				TokenCount: p.TokenCount,
				Position:   p.Position,
				Source:     p.Source,
				Title:      p.Title,
			},
			Score:  r.Score,
			Vector: r.Vector,
		})
	}
	return results, nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// do sends body as JSON and decodes the response into out when given. The
// returned status is 0 when no response arrived.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s %s: %w", domain.ErrStoreUnavailable, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s failed: %s %s", domain.ErrStoreUnavailable, method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode qdrant response: %w", domain.ErrStoreUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}
