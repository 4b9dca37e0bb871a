package chunker

import (
	"strconv"

	"minirag/internal/domain"
)

// DefaultChunkSize is the default number of tokens per chunk.
const DefaultChunkSize = 1000

// DefaultOverlap is the default fraction of a chunk repeated in the next one.
const DefaultOverlap = 0.12

// TokenChunker cuts documents into fixed-size token windows.
type TokenChunker struct {
	tokenizer domain.Tokenizer
	size      int
	overlap   float64
}

// Option configures a chunker.
type Option func(*options)

type options struct {
	size    int
	overlap float64
}

// WithChunkSize sets the chunk size in tokens.
func WithChunkSize(size int) Option {
	return func(o *options) { o.size = size }
}

// WithOverlap sets the overlap as a fraction of the chunk size.
func WithOverlap(overlap float64) Option {
	return func(o *options) { o.overlap = overlap }
}

func buildOptions(opts []Option) options {
	o := options{size: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewTokenChunker creates a token window chunker. Invalid sizes are reported
// by Chunk, not silently corrected.
func NewTokenChunker(tok domain.Tokenizer, opts ...Option) *TokenChunker {
	o := buildOptions(opts)
	return &TokenChunker{tokenizer: tok, size: o.size, overlap: o.overlap}
}

func (c *TokenChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	segments, err := Split(c.tokenizer, document.Content, c.size, c.overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = newChunk(document, i, seg)
	}
	return chunks, nil
}

func newChunk(document domain.Document, position int, seg Segment) domain.Chunk {
	return domain.Chunk{
		ChunkID:    ChunkID(document.ID, position),
		DocumentID: document.ID,
		Text:       seg.Text,
		TokenCount: seg.TokenCount,
		Position:   position,
		Source:     document.Source,
		Title:      document.Title,
	}
}

// ChunkID is the stable identifier of the chunk at position in a document.
func ChunkID(documentID string, position int) string {
	return documentID + ":" + strconv.Itoa(position)
}
