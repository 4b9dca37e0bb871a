package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"minirag/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Entries are keyed by chunk id, so re-upserting a chunk replaces it in place.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	index     map[string]int
	vectors   [][]float64
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{index: map[string]int{}} }

// Init fixes the vector dimension. Calling it again with the same dimension
// is a no-op and keeps stored data.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Invalid("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.chunks) > 0 {
		return fmt.Errorf("%w: store holds %d-dimensional vectors, got %d", domain.ErrStoreUnavailable, s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return domain.Invalid("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return fmt.Errorf("%w: store not initialised", domain.ErrStoreUnavailable)
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: vector dimension %d, want %d", domain.ErrStoreUnavailable, len(v), s.dimension)
		}
	}
	for i, c := range chunks {
		vec := append([]float64(nil), vectors[i]...)
		if j, ok := s.index[c.ChunkID]; ok {
			s.chunks[j] = c
			s.vectors[j] = vec
			continue
		}
		s.index[c.ChunkID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.vectors = append(s.vectors, vec)
	}
	return nil
}

// Search returns up to topN chunks by descending cosine similarity. Equal
// scores keep insertion order.
func (s *Storage) Search(_ context.Context, vector []float64, topN int) ([]domain.CandidateHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topN <= 0 {
		topN = 5
	}
	scores := make([]float64, len(s.vectors))
	idxs := make([]int, len(s.vectors))
	for i := range s.vectors {
		scores[i] = domain.Cosine(s.vectors[i], vector)
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topN > len(idxs) {
		topN = len(idxs)
	}
	results := make([]domain.CandidateHit, 0, topN)
	for _, j := range idxs[:topN] {
		results = append(results, domain.CandidateHit{
			Chunk:  s.chunks[j],
			Score:  scores[j],
			Vector: append([]float64(nil), s.vectors[j]...),
		})
	}
	return results, nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = map[string]int{}
	s.vectors = nil
	s.chunks = nil
	return nil
}

// Len reports how many chunks are stored.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
