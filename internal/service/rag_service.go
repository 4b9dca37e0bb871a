package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"minirag/internal/composer"
	"minirag/internal/config"
	"minirag/internal/domain"
	"minirag/internal/mmr"
)

// Observer receives per-request outcomes and per-stage latencies.
type Observer interface {
	ObserveRequest(flow, outcome string)
	ObserveStage(flow, stage string, d time.Duration)
	AddChunks(n int)
	AddUngrounded(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string)              {}
func (nopObserver) ObserveStage(string, string, time.Duration) {}
func (nopObserver) AddChunks(int)                              {}
func (nopObserver) AddUngrounded(int)                          {}

// Options tunes the retrieval side of the query flow.
type Options struct {
	RetrievalTopN  int
	MMRK           int
	MMRLambda      float64
	TopK           int
	EmbedBatchSize int
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{RetrievalTopN: 20, MMRK: 20, MMRLambda: 0.5, TopK: 5, EmbedBatchSize: 32}
}

// OptionsFromConfig builds Options from the retrieval and reranker sections.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	o := DefaultOptions()
	if cfg == nil {
		return o
	}
	if cfg.Retrieval.TopN > 0 {
		o.RetrievalTopN = cfg.Retrieval.TopN
	}
	if cfg.Retrieval.MMRK > 0 {
		o.MMRK = cfg.Retrieval.MMRK
	}
	o.MMRLambda = cfg.Retrieval.MMRLambda
	if cfg.Reranker.TopK > 0 {
		o.TopK = cfg.Reranker.TopK
	}
	if cfg.Embedder.OpenAI.BatchSize > 0 {
		o.EmbedBatchSize = cfg.Embedder.OpenAI.BatchSize
	}
	return o
}

// Option configures a RAGServiceImpl.
type Option func(*RAGServiceImpl)

// WithLogger sets the logger used for stage transitions.
func WithLogger(l *log.Logger) Option {
	return func(s *RAGServiceImpl) { s.logger = l }
}

// WithObserver sets the metrics sink.
func WithObserver(o Observer) Option {
	return func(s *RAGServiceImpl) { s.observer = o }
}

// RAGServiceImpl wires the ingest and query flows.
type RAGServiceImpl struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	store    domain.VectorStore
	reranker domain.Reranker
	composer *composer.Composer
	opts     Options
	logger   *log.Logger
	observer Observer
}

var _ domain.Pipeline = (*RAGServiceImpl)(nil)

func NewRAGService(chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, reranker domain.Reranker, comp *composer.Composer, opts Options, options ...Option) *RAGServiceImpl {
	def := DefaultOptions()
	if opts.RetrievalTopN <= 0 {
		opts.RetrievalTopN = def.RetrievalTopN
	}
	if opts.MMRK <= 0 {
		opts.MMRK = def.MMRK
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = def.EmbedBatchSize
	}
	s := &RAGServiceImpl{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		reranker: reranker,
		composer: comp,
		opts:     opts,
		observer: nopObserver{},
	}
	for _, o := range options {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return s
}

// DocumentID derives a stable id so re-ingesting the same text replaces its chunks.
func DocumentID(source, title, text string) string {
	return hashString(source + "\x00" + title + "\x00" + text)
}

// Ingest chunks, embeds and upserts one document.
func (s *RAGServiceImpl) Ingest(ctx context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	reqID := uuid.NewString()
	s.logger.Printf("req=%s stage=received flow=ingest source=%q bytes=%d", reqID, req.Source, len(req.Text))
	res, err := s.ingest(ctx, reqID, req)
	s.observer.ObserveRequest("ingest", Outcome(err))
	if err != nil {
		s.logger.Printf("req=%s stage=failed flow=ingest err=%v", reqID, err)
		return domain.IngestResult{}, err
	}
	s.logger.Printf("req=%s stage=done flow=ingest doc=%s chunks=%d", reqID, res.DocumentID, len(res.Chunks))
	return res, nil
}

func (s *RAGServiceImpl) ingest(ctx context.Context, reqID string, req domain.IngestRequest) (domain.IngestResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return domain.IngestResult{}, domain.Invalid("text must not be empty")
	}
	doc := domain.Document{
		ID:      DocumentID(req.Source, req.Title, req.Text),
		Title:   req.Title,
		Source:  req.Source,
		Content: req.Text,
	}

	start := time.Now()
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return domain.IngestResult{}, err
	}
	if len(chunks) == 0 {
		return domain.IngestResult{}, domain.Invalid("text produced no chunks")
	}
	s.stage(reqID, "ingest", "chunked", start, "chunks=%d", len(chunks))

	start = time.Now()
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return domain.IngestResult{}, err
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return domain.IngestResult{}, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrEmbeddingUnavailable, i, len(v), dim)
		}
	}
	s.stage(reqID, "ingest", "embedded", start, "dim=%d", dim)

	start = time.Now()
	if err := s.store.Init(ctx, dim); err != nil {
		return domain.IngestResult{}, err
	}
	if err := s.store.Upsert(ctx, chunks, vectors); err != nil {
		return domain.IngestResult{}, err
	}
	s.stage(reqID, "ingest", "upserted", start, "vectors=%d", len(vectors))
	s.observer.AddChunks(len(chunks))

	return domain.IngestResult{DocumentID: doc.ID, Chunks: chunks, VectorCount: len(vectors)}, nil
}

func (s *RAGServiceImpl) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	if be, ok := s.embedder.(domain.BatchEmbedder); ok {
		out := make([][]float64, 0, len(texts))
		for i := 0; i < len(texts); i += s.opts.EmbedBatchSize {
			end := min(i+s.opts.EmbedBatchSize, len(texts))
			vecs, err := be.EmbedBatch(ctx, texts[i:end])
			if err != nil {
				return nil, err
			}
			if len(vecs) != end-i {
				return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vecs), end-i)
			}
			out = append(out, vecs...)
		}
		return out, nil
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := s.embedder.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Query retrieves, diversifies, reranks and composes a cited answer.
// topK 0 selects the configured default.
func (s *RAGServiceImpl) Query(ctx context.Context, question string, topK int) (domain.QueryResult, error) {
	reqID := uuid.NewString()
	begin := time.Now()
	s.logger.Printf("req=%s stage=received flow=query top_k=%d", reqID, topK)
	res, err := s.query(ctx, reqID, question, topK)
	s.observer.ObserveRequest("query", Outcome(err))
	if err != nil {
		s.logger.Printf("req=%s stage=failed flow=query err=%v", reqID, err)
		return domain.QueryResult{}, err
	}
	res.Latency = time.Since(begin)
	s.logger.Printf("req=%s stage=done flow=query retrieved=%d latency=%s", reqID, res.RetrievedCount, res.Latency)
	return res, nil
}

func (s *RAGServiceImpl) query(ctx context.Context, reqID, question string, topK int) (domain.QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return domain.QueryResult{}, domain.Invalid("query must not be empty")
	}
	if topK == 0 {
		topK = s.opts.TopK
	}
	if topK < 1 || topK > config.MaxTopK {
		return domain.QueryResult{}, domain.Invalid("top_k must be between 1 and %d, got %d", config.MaxTopK, topK)
	}

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return domain.QueryResult{}, err
	}
	s.stage(reqID, "query", "embedded", start, "dim=%d", len(vec))

	start = time.Now()
	hits, err := s.store.Search(ctx, vec, s.opts.RetrievalTopN)
	if err != nil {
		return domain.QueryResult{}, err
	}
	s.stage(reqID, "query", "retrieved", start, "hits=%d", len(hits))
	if len(hits) == 0 {
		return noInformation(), nil
	}

	start = time.Now()
	selected, err := mmr.Select(vec, hits, s.opts.MMRK, s.opts.MMRLambda)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCandidateSet) {
			return noInformation(), nil
		}
		return domain.QueryResult{}, err
	}
	s.stage(reqID, "query", "selected", start, "selected=%d", len(selected))

	start = time.Now()
	ranked, err := s.reranker.Rerank(ctx, question, selected, topK)
	if err != nil {
		return domain.QueryResult{}, err
	}
	s.stage(reqID, "query", "reranked", start, "reranker=%s kept=%d", s.reranker.Name(), len(ranked))
	if len(ranked) == 0 {
		return noInformation(), nil
	}

	start = time.Now()
	res, err := s.composer.Compose(ctx, question, ranked)
	if err != nil {
		var ue *domain.UngroundedCitationError
		if errors.As(err, &ue) {
			s.observer.AddUngrounded(len(ue.Numbers))
		}
		return domain.QueryResult{}, err
	}
	s.observer.AddUngrounded(len(res.Ungrounded))
	s.stage(reqID, "query", "composed", start, "citations=%d ungrounded=%d", len(res.Citations), len(res.Ungrounded))
	return res, nil
}

// Reset drops every stored chunk.
func (s *RAGServiceImpl) Reset(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// IngestDocuments expands glob patterns (doublestar syntax) and ingests every
// .txt and .md file found, using the path as source and the file name as title.
func (s *RAGServiceImpl) IngestDocuments(ctx context.Context, patterns []string) ([]domain.IngestResult, error) {
	var paths []string
	seen := map[string]struct{}{}
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, domain.Invalid("bad pattern %q: %v", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !ingestible(m) {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	if len(paths) == 0 {
		return nil, domain.Invalid("no .txt or .md documents found")
	}

	results := make([]domain.IngestResult, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return results, err
		}
		title := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		res, err := s.Ingest(ctx, domain.IngestRequest{Text: string(data), Title: title, Source: p})
		if err != nil {
			return results, fmt.Errorf("ingest %s: %w", p, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Outcome maps an error onto the metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, domain.ErrRerankUnavailable):
		return "rerank_unavailable"
	case errors.Is(err, domain.ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, domain.ErrUngroundedCitation):
		return "ungrounded_citation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (s *RAGServiceImpl) stage(reqID, flow, stage string, start time.Time, format string, args ...any) {
	d := time.Since(start)
	s.observer.ObserveStage(flow, stage, d)
	s.logger.Printf("req=%s stage=%s took=%s "+format, append([]any{reqID, stage, d}, args...)...)
}

func noInformation() domain.QueryResult {
	return domain.QueryResult{Answer: composer.NoInformationAnswer, Citations: []domain.Citation{}}
}

func ingestible(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
