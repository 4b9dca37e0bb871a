package main

import (
	"context"
	"io"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"minirag/internal/chunker"
	"minirag/internal/composer"
	"minirag/internal/config"
	"minirag/internal/embedding"
	"minirag/internal/llm"
	"minirag/internal/metrics"
	"minirag/internal/rerank"
	"minirag/internal/service"
	"minirag/internal/tokenizer"
	"minirag/internal/vectorstore"
)

// app holds the assembled pipeline and what must be released on exit.
type app struct {
	cfg      *config.AppConfig
	svc      *service.RAGServiceImpl
	registry *prometheus.Registry
	close    func() error
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

// newLogger writes to log.Writer() when verbose, and nowhere otherwise.
func newLogger(prefix string, verbose bool) *log.Logger {
	var w io.Writer = io.Discard
	if verbose {
		w = log.Writer()
	}
	return log.New(w, prefix, log.LstdFlags)
}

// buildApp assembles components from cfg, selecting each adapter by type.
func buildApp(ctx context.Context, cfg *config.AppConfig, verbose bool) (*app, error) {
	tok, err := tokenizer.New(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunker, tok)
	if err != nil {
		return nil, err
	}
	emb, err := embedding.New(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	rr, err := rerank.New(cfg.Reranker, newLogger("[RERANK] ", verbose))
	if err != nil {
		return nil, err
	}
	gen, err := llm.New(ctx, cfg.Generator)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := vectorstore.New(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	comp := composer.New(gen,
		composer.WithPolicy(composer.Policy(cfg.Generator.CitationPolicy)),
		composer.WithLogger(newLogger("[COMPOSER] ", verbose)),
	)
	svc := service.NewRAGService(ch, emb, store, rr, comp, service.OptionsFromConfig(cfg),
		service.WithLogger(newLogger("[PIPELINE] ", verbose)),
		service.WithObserver(m),
	)
	return &app{cfg: cfg, svc: svc, registry: reg, close: closeStore}, nil
}

func (a *app) Close() error {
	if a == nil || a.close == nil {
		return nil
	}
	return a.close()
}
