package config

import "github.com/spf13/viper"

// MaxTopK bounds the number of reranked chunks a query may ask for.
const MaxTopK = 20

// Default returns the built-in configuration: everything runs offline.
func Default() *AppConfig {
	cfg := &AppConfig{
		Server:      ServerConfig{Address: ":8000", CORSOrigins: []string{"*"}, RequestTimeoutSecs: 120},
		Tokenizer:   TokenizerConfig{Type: "word"},
		Chunker:     ChunkerConfig{Type: "token", ChunkSize: 1000, Overlap: 0.12},
		Embedder:    EmbedderConfig{Type: "hashing", Dimension: 512},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retrieval:   RetrievalConfig{TopN: 20, MMRK: 20, MMRLambda: 0.5},
		Reranker:    RerankerConfig{Type: "lexical", TopK: 5},
		Generator:   GeneratorConfig{Type: "extractive", Temperature: 0.3, MaxTokens: 1024, MaxSentences: 3, CitationPolicy: "strip"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.request_timeout_secs", d.Server.RequestTimeoutSecs)

	v.SetDefault("tokenizer.type", d.Tokenizer.Type)
	v.SetDefault("tokenizer.encoding", d.Tokenizer.Encoding)

	v.SetDefault("chunker.type", d.Chunker.Type)
	v.SetDefault("chunker.chunk_size", d.Chunker.ChunkSize)
	v.SetDefault("chunker.overlap", d.Chunker.Overlap)

	v.SetDefault("embedder.type", d.Embedder.Type)
	v.SetDefault("embedder.dimension", d.Embedder.Dimension)
	v.SetDefault("embedder.openai.base_url", d.Embedder.OpenAI.BaseURL)
	v.SetDefault("embedder.openai.api_key_env", d.Embedder.OpenAI.APIKeyEnv)
	v.SetDefault("embedder.openai.model", d.Embedder.OpenAI.Model)
	v.SetDefault("embedder.openai.timeout_secs", d.Embedder.OpenAI.TimeoutSecs)
	v.SetDefault("embedder.openai.batch_size", d.Embedder.OpenAI.BatchSize)
	v.SetDefault("embedder.openai.requests_per_second", d.Embedder.OpenAI.RequestsPerSecond)
	v.SetDefault("embedder.cache.enabled", false)
	v.SetDefault("embedder.cache.redis_addr", d.Embedder.Cache.RedisAddr)
	v.SetDefault("embedder.cache.password", "")
	v.SetDefault("embedder.cache.db", 0)
	v.SetDefault("embedder.cache.prefix", d.Embedder.Cache.Prefix)
	v.SetDefault("embedder.cache.ttl_secs", d.Embedder.Cache.TTLSecs)

	v.SetDefault("vector_store.type", d.VectorStore.Type)
	v.SetDefault("vector_store.qdrant.url", d.VectorStore.Qdrant.URL)
	v.SetDefault("vector_store.qdrant.api_key", "")
	v.SetDefault("vector_store.qdrant.collection", d.VectorStore.Qdrant.Collection)
	v.SetDefault("vector_store.qdrant.distance", d.VectorStore.Qdrant.Distance)
	v.SetDefault("vector_store.qdrant.timeout_secs", d.VectorStore.Qdrant.TimeoutSecs)
	v.SetDefault("vector_store.postgres.url", d.VectorStore.Postgres.URL)
	v.SetDefault("vector_store.postgres.migrations_dir", d.VectorStore.Postgres.MigrationsDir)
	v.SetDefault("vector_store.postgres.auto_migrate", d.VectorStore.Postgres.AutoMigrate)
	v.SetDefault("vector_store.redis.addr", d.VectorStore.Redis.Addr)
	v.SetDefault("vector_store.redis.password", "")
	v.SetDefault("vector_store.redis.db", 0)
	v.SetDefault("vector_store.redis.index", d.VectorStore.Redis.Index)
	v.SetDefault("vector_store.redis.prefix", d.VectorStore.Redis.Prefix)
	v.SetDefault("vector_store.redis.ef_construction", d.VectorStore.Redis.EFConstruction)
	v.SetDefault("vector_store.redis.m", d.VectorStore.Redis.M)
	v.SetDefault("vector_store.sqlite.path", d.VectorStore.SQLite.Path)

	v.SetDefault("retrieval.top_n", d.Retrieval.TopN)
	v.SetDefault("retrieval.mmr_k", d.Retrieval.MMRK)
	v.SetDefault("retrieval.mmr_lambda", d.Retrieval.MMRLambda)

	v.SetDefault("reranker.type", d.Reranker.Type)
	v.SetDefault("reranker.top_k", d.Reranker.TopK)
	v.SetDefault("reranker.fallback_on_error", d.Reranker.FallbackOnError)
	v.SetDefault("reranker.jina.base_url", d.Reranker.Jina.BaseURL)
	v.SetDefault("reranker.jina.api_key_env", d.Reranker.Jina.APIKeyEnv)
	v.SetDefault("reranker.jina.model", d.Reranker.Jina.Model)
	v.SetDefault("reranker.jina.timeout_secs", d.Reranker.Jina.TimeoutSecs)
	v.SetDefault("reranker.jina.requests_per_second", d.Reranker.Jina.RequestsPerSecond)

	v.SetDefault("generator.type", d.Generator.Type)
	v.SetDefault("generator.model", d.Generator.Model)
	v.SetDefault("generator.base_url", d.Generator.BaseURL)
	v.SetDefault("generator.api_key_env", d.Generator.APIKeyEnv)
	v.SetDefault("generator.temperature", d.Generator.Temperature)
	v.SetDefault("generator.max_tokens", d.Generator.MaxTokens)
	v.SetDefault("generator.max_sentences", d.Generator.MaxSentences)
	v.SetDefault("generator.citation_policy", d.Generator.CitationPolicy)

	v.SetDefault("log.verbose", false)
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8000"
	}
	if cfg.Tokenizer.Type == "tiktoken" && cfg.Tokenizer.Encoding == "" {
		cfg.Tokenizer.Encoding = "cl100k_base"
	}
	if cfg.Retrieval.MMRK == 0 {
		cfg.Retrieval.MMRK = cfg.Retrieval.TopN
	}

	oa := &cfg.Embedder.OpenAI
	if oa.BaseURL == "" {
		oa.BaseURL = "https://api.openai.com/v1"
	}
	if oa.APIKeyEnv == "" {
		oa.APIKeyEnv = "OPENAI_API_KEY"
	}
	if oa.Model == "" {
		oa.Model = "text-embedding-3-small"
	}
	if oa.TimeoutSecs == 0 {
		oa.TimeoutSecs = 30
	}
	if oa.BatchSize == 0 {
		oa.BatchSize = 32
	}
	if cfg.Embedder.Cache.RedisAddr == "" {
		cfg.Embedder.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.Embedder.Cache.Prefix == "" {
		cfg.Embedder.Cache.Prefix = "minirag:emb:"
	}
	if cfg.Embedder.Cache.TTLSecs == 0 {
		cfg.Embedder.Cache.TTLSecs = 7 * 24 * 3600
	}

	q := &cfg.VectorStore.Qdrant
	if q.URL == "" {
		q.URL = "http://localhost:6333"
	}
	if q.Collection == "" {
		q.Collection = "minirag"
	}
	if q.Distance == "" {
		q.Distance = "Cosine"
	}
	if q.TimeoutSecs == 0 {
		q.TimeoutSecs = 15
	}
	if cfg.VectorStore.Postgres.MigrationsDir == "" {
		cfg.VectorStore.Postgres.MigrationsDir = "file://migrations"
	}
	r := &cfg.VectorStore.Redis
	if r.Addr == "" {
		r.Addr = "localhost:6379"
	}
	if r.Index == "" {
		r.Index = "minirag-chunks"
	}
	if r.Prefix == "" {
		r.Prefix = "chunk:"
	}
	if r.EFConstruction == 0 {
		r.EFConstruction = 200
	}
	if r.M == 0 {
		r.M = 16
	}
	if cfg.VectorStore.SQLite.Path == "" {
		cfg.VectorStore.SQLite.Path = "minirag.db"
	}

	j := &cfg.Reranker.Jina
	if j.BaseURL == "" {
		j.BaseURL = "https://api.jina.ai/v1"
	}
	if j.APIKeyEnv == "" {
		j.APIKeyEnv = "JINA_API_KEY"
	}
	if j.Model == "" {
		j.Model = "jina-reranker-v2-base-multilingual"
	}
	if j.TimeoutSecs == 0 {
		j.TimeoutSecs = 30
	}

	g := &cfg.Generator
	switch g.Type {
	case "openai":
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "OPENAI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gpt-4o-mini"
		}
	case "gemini":
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gemini-2.0-flash"
		}
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 1024
	}
	if g.MaxSentences == 0 {
		g.MaxSentences = 3
	}
	if g.CitationPolicy == "" {
		g.CitationPolicy = "strip"
	}
}
