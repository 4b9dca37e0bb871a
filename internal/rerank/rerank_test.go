package rerank

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minirag/internal/config"
	"minirag/internal/domain"
	"minirag/internal/rerank/lexical"
)

type failing struct{ err error }

func (f failing) Name() string { return "failing" }
func (f failing) Rerank(context.Context, string, []domain.CandidateHit, int) ([]domain.CandidateHit, error) {
	return nil, f.err
}

func hits(n int) []domain.CandidateHit {
	out := make([]domain.CandidateHit, n)
	for i := range out {
		out[i] = domain.CandidateHit{Chunk: domain.Chunk{ChunkID: fmt.Sprint(i), Text: "text"}}
	}
	return out
}

func TestPassthroughTruncates(t *testing.T) {
	out, err := Passthrough{}.Rerank(context.Background(), "q", hits(4), 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "0", out[0].Chunk.ChunkID)

	out, err = Passthrough{}.Rerank(context.Background(), "q", hits(1), 5)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFallbackOnlyOnUnavailable(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	fb := &Fallback{
		Primary:   failing{err: fmt.Errorf("%w: boom", domain.ErrRerankUnavailable)},
		Secondary: Passthrough{},
		Logger:    quiet,
	}
	out, err := fb.Rerank(context.Background(), "q", hits(3), 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	fb.Primary = failing{err: domain.Invalid("bad")}
	_, err = fb.Rerank(context.Background(), "q", hits(3), 2)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewSelectsReranker(t *testing.T) {
	r, err := New(config.RerankerConfig{Type: "lexical"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &lexical.Reranker{}, r)

	r, err = New(config.RerankerConfig{Type: "none"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", r.Name())

	t.Setenv("MINIRAG_TEST_JINA_KEY", "secret")
	r, err = New(config.RerankerConfig{Type: "jina", FallbackOnError: true, Jina: config.JinaConfig{APIKeyEnv: "MINIRAG_TEST_JINA_KEY"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Fallback{}, r)

	_, err = New(config.RerankerConfig{Type: "colbert"}, nil)
	assert.Error(t, err)
}
