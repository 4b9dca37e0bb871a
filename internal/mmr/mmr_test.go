package mmr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minirag/internal/domain"
)

func hit(id string, vec ...float64) domain.CandidateHit {
	return domain.CandidateHit{Chunk: domain.Chunk{ChunkID: id}, Vector: vec}
}

func ids(hits []domain.CandidateHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.ChunkID
	}
	return out
}

func TestSelectEmptyCandidates(t *testing.T) {
	_, err := Select([]float64{1, 0}, nil, 5, 0.5)
	assert.ErrorIs(t, err, domain.ErrEmptyCandidateSet)
}

func TestSelectInvalidParameters(t *testing.T) {
	cands := []domain.CandidateHit{hit("a", 1, 0)}
	_, err := Select([]float64{1, 0}, cands, 0, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = Select([]float64{1, 0}, cands, 1, -0.1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = Select([]float64{1, 0}, cands, 1, 1.1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSelectPureRelevanceKeepsRanking(t *testing.T) {
	q := []float64{1, 0}
	cands := []domain.CandidateHit{
		hit("a", 1, 0),
		hit("b", 1, 0),
		hit("c", 1, 0.2),
		hit("d", 1, 0.5),
		hit("e", 0, 1),
	}
	got, err := Select(q, cands, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestSelectReturnsEveryCandidateOnceWhenKExceedsPool(t *testing.T) {
	q := []float64{1, 1}
	cands := []domain.CandidateHit{
		hit("a", 1, 0.8),
		hit("b", 1, 0.79),
		hit("c", 0.8, 1),
		hit("d", -1, 0),
	}
	got, err := Select(q, cands, 10, 0.5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, ids(got))
	assert.Len(t, got, 4)
}

func TestSelectPrefersDiverseCandidate(t *testing.T) {
	q := []float64{1, 1}
	cands := []domain.CandidateHit{
		hit("a", 1, 0.8),
		hit("a-dup", 1, 0.79),
		hit("b", 0.8, 1),
	}
	got, err := Select(q, cands, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestSelectTiesGoToEarlierRank(t *testing.T) {
	q := []float64{0, 1}
	cands := []domain.CandidateHit{
		hit("first", 1, 1),
		hit("second", 1, 1),
	}
	got, err := Select(q, cands, 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, ids(got))
}

func TestSelectIsDeterministic(t *testing.T) {
	q := []float64{0.3, 0.9, 0.1}
	cands := []domain.CandidateHit{
		hit("a", 0.2, 0.9, 0.1),
		hit("b", 0.3, 0.8, 0.3),
		hit("c", 0.9, 0.1, 0.1),
		hit("d", 0.1, 0.95, 0.0),
		hit("e", 0.0, 0.0, 1.0),
	}
	first, err := Select(q, cands, 4, 0.6)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Select(q, cands, 4, 0.6)
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(again))
	}
}

func TestSelectFallsBackToScoreWithoutVectors(t *testing.T) {
	cands := []domain.CandidateHit{
		{Chunk: domain.Chunk{ChunkID: "low"}, Score: 0.1},
		{Chunk: domain.Chunk{ChunkID: "high"}, Score: 0.9},
	}
	got, err := Select([]float64{1}, cands, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, ids(got))
}

func TestSelectSurvivesNaN(t *testing.T) {
	nan := math.NaN()
	cands := []domain.CandidateHit{hit("a", nan, 1), hit("b", 1, 0), hit("c", nan, nan)}
	got, err := Select([]float64{1, 0}, cands, 3, 0.5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, "b", got[0].Chunk.ChunkID)

	scored := []domain.CandidateHit{
		{Chunk: domain.Chunk{ChunkID: "x"}, Score: nan},
		{Chunk: domain.Chunk{ChunkID: "y"}, Score: nan},
	}
	got, err = Select([]float64{1}, scored, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids(got))
}
