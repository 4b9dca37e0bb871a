package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minirag/internal/domain"
)

func chunk(id string) domain.Chunk {
	return domain.Chunk{ChunkID: id, DocumentID: "doc", Text: "text " + id}
}

func TestSearchOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{chunk("a"), chunk("b"), chunk("c")},
		[][]float64{{0, 1}, {1, 0}, {1, 1}},
	))

	hits, err := s.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].Chunk.ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "c", hits[1].Chunk.ChunkID)
	assert.Equal(t, []float64{1, 0}, hits[0].Vector)
}

func TestUpsertReplacesByChunkID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("a")}, [][]float64{{1, 0}}))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("a")}, [][]float64{{0, 1}}))
	assert.Equal(t, 1, s.Len())

	hits, err := s.Search(ctx, []float64{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("a")}, [][]float64{{1, 0}}))
	require.NoError(t, s.Init(ctx, 2))
	assert.Equal(t, 1, s.Len())

	assert.ErrorIs(t, s.Init(ctx, 3), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Init(ctx, 0), domain.ErrInvalidInput)
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	assert.ErrorIs(t, s.Upsert(ctx, []domain.Chunk{chunk("a")}, [][]float64{{1}}), domain.ErrStoreUnavailable)

	require.NoError(t, s.Init(ctx, 2))
	assert.ErrorIs(t, s.Upsert(ctx, []domain.Chunk{chunk("a")}, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, s.Upsert(ctx, []domain.Chunk{chunk("a")}, [][]float64{{1}}), domain.ErrStoreUnavailable)
}

func TestEmptyAndClearedStoreReturnsNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	hits, err := s.Search(ctx, []float64{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("a")}, [][]float64{{1, 0}}))
	require.NoError(t, s.Clear(ctx))
	hits, err = s.Search(ctx, []float64{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
