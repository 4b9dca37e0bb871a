package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minirag/internal/domain"
)

// fakeQdrant keeps one collection in memory and answers searches with every
// point in upsert order.
type fakeQdrant struct {
	mu      sync.Mutex
	exists  bool
	creates int
	points  []map[string]any
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/test":
		if !f.exists {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/test":
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Vectors.Size <= 0 || body.Vectors.Distance != "Cosine" {
			http.Error(w, "bad schema", http.StatusBadRequest)
			return
		}
		f.exists = true
		f.creates++
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/test/points":
		var body struct {
			Points []map[string]any `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.points = append(f.points, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collections/test/points/search":
		if !f.exists {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		result := make([]map[string]any, 0, len(f.points))
		for i, p := range f.points {
			result = append(result, map[string]any{
				"id":      p["id"],
				"score":   1.0 - 0.1*float64(i),
				"payload": p["payload"],
				"vector":  p["vector"],
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
	case r.Method == http.MethodDelete && r.URL.Path == "/collections/test":
		if !f.exists {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		f.exists = false
		f.points = nil
		_, _ = w.Write([]byte(`{"result":true}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

func TestRoundTrip(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()
	s := NewStorage(Config{URL: srv.URL, Collection: "test"})

	hits, err := s.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Init(ctx, 2))
	assert.Equal(t, 1, fake.creates)

	c := domain.Chunk{ChunkID: "abc:0", DocumentID: "abc", Text: "hello", TokenCount: 1, Position: 0, Title: "T"}
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{c}, [][]float64{{1, 0}}))
	assert.Equal(t, PointID("abc:0"), fake.points[0]["id"])

	hits, err = s.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, c, hits[0].Chunk)
	assert.Equal(t, []float64{1, 0}, hits[0].Vector)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
}

func TestErrorsWrapStoreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL, Collection: "test"})

	err := s.Init(context.Background(), 4)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = s.Search(context.Background(), []float64{1}, 1)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestPointIDIsStableUUID(t *testing.T) {
	assert.Equal(t, PointID("doc:1"), PointID("doc:1"))
	assert.NotEqual(t, PointID("doc:1"), PointID("doc:2"))
	assert.Len(t, PointID("doc:1"), 36)
}
