package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minirag/internal/config"
	"minirag/internal/domain"
	"minirag/internal/tokenizer"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func tokensOf(t *testing.T, tok domain.Tokenizer, text string) []string {
	t.Helper()
	var out []string
	for _, s := range tok.Spans(text) {
		out = append(out, text[s.Start:s.End])
	}
	return out
}

func TestStep(t *testing.T) {
	assert.Equal(t, 880, Step(1000, 0.12))
	assert.Equal(t, 10, Step(10, 0))
	assert.Equal(t, 1, Step(1, 0.9))
	assert.Equal(t, 1, Step(4, 0.99))
}

func TestSplitDefaultWindowOverlap(t *testing.T) {
	tok := tokenizer.NewWord()
	text := words(2500)

	segs, err := Split(tok, text, 1000, 0.12)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, []int{1000, 1000, 740}, []int{segs[0].TokenCount, segs[1].TokenCount, segs[2].TokenCount})
	for i := 0; i+1 < len(segs); i++ {
		cur := tokensOf(t, tok, segs[i].Text)
		next := tokensOf(t, tok, segs[i+1].Text)
		assert.Equal(t, cur[len(cur)-120:], next[:120], "chunks %d and %d must share 120 tokens", i, i+1)
	}
	assert.True(t, strings.HasPrefix(text, segs[0].Text))
	assert.True(t, strings.HasSuffix(text, segs[2].Text))
}

func TestSplitBounds(t *testing.T) {
	tok := tokenizer.NewWord()
	for _, tc := range []struct {
		n, size int
		overlap float64
	}{
		{n: 37, size: 10, overlap: 0.3},
		{n: 100, size: 7, overlap: 0},
		{n: 55, size: 5, overlap: 0.5},
		{n: 11, size: 10, overlap: 0.12},
	} {
		t.Run(fmt.Sprintf("n=%d size=%d overlap=%g", tc.n, tc.size, tc.overlap), func(t *testing.T) {
			segs, err := Split(tok, words(tc.n), tc.size, tc.overlap)
			require.NoError(t, err)
			for _, s := range segs {
				assert.Greater(t, s.TokenCount, 0)
				assert.LessOrEqual(t, s.TokenCount, tc.size)
				assert.Equal(t, s.TokenCount, tok.Count(s.Text))
			}
			last := tokensOf(t, tok, segs[len(segs)-1].Text)
			assert.Equal(t, fmt.Sprintf("w%d", tc.n-1), last[len(last)-1])
		})
	}
}

func TestSplitShortTextIsWholeInput(t *testing.T) {
	tok := tokenizer.NewWord()
	text := "  AI is intelligence demonstrated by machines.\n"
	segs, err := Split(tok, text, 1000, 0.12)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, text, segs[0].Text)
	assert.Equal(t, 7, segs[0].TokenCount)
}

func TestSplitExactlySizeTokens(t *testing.T) {
	tok := tokenizer.NewWord()
	segs, err := Split(tok, words(10), 10, 0.5)
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

func TestSplitInvalidInput(t *testing.T) {
	tok := tokenizer.NewWord()
	cases := map[string]struct {
		text    string
		size    int
		overlap float64
	}{
		"empty text":       {"", 10, 0.1},
		"whitespace only":  {"  \n ", 10, 0.1},
		"zero size":        {"a b", 0, 0.1},
		"negative size":    {"a b", -1, 0.1},
		"overlap one":      {"a b", 10, 1},
		"negative overlap": {"a b", 10, -0.1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Split(tok, tc.text, tc.size, tc.overlap)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestTokenChunkerMetadata(t *testing.T) {
	c := NewTokenChunker(tokenizer.NewWord(), WithChunkSize(4), WithOverlap(0.25))
	doc := domain.Document{ID: "doc1", Title: "T", Source: "s.txt", Content: words(10)}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		assert.Equal(t, fmt.Sprintf("doc1:%d", i), ch.ChunkID)
		assert.Equal(t, "doc1", ch.DocumentID)
		assert.Equal(t, "T", ch.Title)
		assert.Equal(t, "s.txt", ch.Source)
	}
	assert.Equal(t, "w0 w1 w2 w3", chunks[0].Text)
	assert.Equal(t, "w3 w4 w5 w6", chunks[1].Text)
	assert.Equal(t, "w6 w7 w8 w9", chunks[2].Text)

	again, err := c.Chunk(doc)
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
}

func TestSentenceChunkerPacksSentences(t *testing.T) {
	tok := tokenizer.NewWord()
	c := NewSentenceChunker(tok, WithChunkSize(10), WithOverlap(0.4))
	// Each sentence is 4 tokens including the period.
	text := "One two three. Four five six. Seven eight nine. Ten eleven twelve. Tail words"
	chunks, err := c.Chunk(domain.Document{ID: "d", Content: text})
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "One two three. Four five six.", chunks[0].Text)
	assert.Equal(t, "Four five six. Seven eight nine.", chunks[1].Text)
	assert.Equal(t, "Seven eight nine. Ten eleven twelve. Tail words", chunks[2].Text)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 10)
		assert.Equal(t, tok.Count(ch.Text), ch.TokenCount)
	}
}

func TestSentenceChunkerSplitsLongSentence(t *testing.T) {
	tok := tokenizer.NewWord()
	c := NewSentenceChunker(tok, WithChunkSize(5), WithOverlap(0))
	text := "Short one. " + words(12) + "."
	chunks, err := c.Chunk(domain.Document{ID: "d", Content: text})
	require.NoError(t, err)

	require.Len(t, chunks, 4)
	assert.Equal(t, "Short one.", chunks[0].Text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
		assert.LessOrEqual(t, ch.TokenCount, 5)
	}
}

func TestSentenceChunkerShortText(t *testing.T) {
	c := NewSentenceChunker(tokenizer.NewWord())
	text := "AI is intelligence demonstrated by machines."
	chunks, err := c.Chunk(domain.Document{ID: "d", Content: text})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestSentenceChunkerRejectsEmpty(t *testing.T) {
	c := NewSentenceChunker(tokenizer.NewWord())
	_, err := c.Chunk(domain.Document{ID: "d", Content: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewSelectsChunker(t *testing.T) {
	tok := tokenizer.NewWord()
	c, err := New(config.ChunkerConfig{Type: "sentence", ChunkSize: 10, Overlap: 0.1}, tok)
	require.NoError(t, err)
	assert.IsType(t, &SentenceChunker{}, c)

	c, err = New(config.ChunkerConfig{ChunkSize: 10}, tok)
	require.NoError(t, err)
	assert.IsType(t, &TokenChunker{}, c)

	_, err = New(config.ChunkerConfig{Type: "paragraph"}, tok)
	assert.Error(t, err)
}
