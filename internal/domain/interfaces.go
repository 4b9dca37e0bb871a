package domain

import (
	"context"
	"time"
)

// Document is a piece of submitted text before chunking.
type Document struct {
	ID      string
	Title   string
	Source  string
	Content string
}

// Chunk is a token-bounded segment of a document.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Position   int    `json:"position"`
	Source     string `json:"source,omitempty"`
	Title      string `json:"title,omitempty"`
}

// CandidateHit is a chunk returned by similarity search, scoped to one query.
// Vector is the stored embedding and is required for diversity selection.
type CandidateHit struct {
	Chunk  Chunk
	Score  float64
	Vector []float64
}

// Citation binds an answer marker [Number] to a source chunk.
type Citation struct {
	Number   int    `json:"citation_number"`
	Text     string `json:"text"`
	Source   string `json:"source,omitempty"`
	Title    string `json:"title,omitempty"`
	Position int    `json:"position"`
}

// QueryResult is the outcome of a query.
type QueryResult struct {
	Answer         string
	Citations      []Citation
	RetrievedCount int
	Latency        time.Duration
	// Ungrounded holds marker numbers that were removed from Answer because
	// they pointed outside Citations.
	Ungrounded []int
}

// IngestRequest is the input of an ingest.
type IngestRequest struct {
	Text   string
	Title  string
	Source string
}

// IngestResult describes what an ingest stored.
type IngestResult struct {
	DocumentID  string
	Chunks      []Chunk
	VectorCount int
}

// Span is a half-open byte range [Start, End) of a token in its source text.
type Span struct {
	Start int
	End   int
}

// Tokenizer maps text to token spans.
type Tokenizer interface {
	Name() string
	Spans(text string) []Span
	Count(text string) int
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
// Dimension may return 0 until the first successful Embed for remote models.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbedder is implemented by embedders that can embed several texts per call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorStore persists vectors and supports similarity search.
// Upsert is keyed by ChunkID so re-ingesting a chunk replaces it.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topN int) ([]CandidateHit, error)
	Clear(ctx context.Context) error
}

// Reranker reorders hits by relevance to the query and keeps the best topK.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, hits []CandidateHit, topK int) ([]CandidateHit, error)
}

// Generator produces an answer for a fully built prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// SourcesGenerator is implemented by generators that answer from the ranked
// hits directly. Citation n is ranked[n-1].
type SourcesGenerator interface {
	Generator
	GenerateFromSources(ctx context.Context, question string, ranked []CandidateHit) (string, error)
}

// Pipeline defines the operations exposed by the application core.
type Pipeline interface {
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)
	Query(ctx context.Context, question string, topK int) (QueryResult, error)
}
