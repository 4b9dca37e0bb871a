package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.Chunker.Type)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.InDelta(t, 0.12, cfg.Chunker.Overlap, 1e-12)
	assert.Equal(t, 20, cfg.Retrieval.TopN)
	assert.Equal(t, 20, cfg.Retrieval.MMRK)
	assert.InDelta(t, 0.5, cfg.Retrieval.MMRLambda, 1e-12)
	assert.Equal(t, 5, cfg.Reranker.TopK)
	assert.Equal(t, "jina-reranker-v2-base-multilingual", cfg.Reranker.Jina.Model)
	assert.InDelta(t, 0.3, cfg.Generator.Temperature, 1e-12)
	assert.Equal(t, 1024, cfg.Generator.MaxTokens)
	assert.Equal(t, "strip", cfg.Generator.CitationPolicy)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
chunker:
  chunk_size: 200
  overlap: 0.25
vector_store:
  type: qdrant
  qdrant:
    url: http://qdrant:6333
generator:
  type: openai
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("MINIRAG_RERANKER_TOP_K", "7")
	t.Setenv("MINIRAG_VECTOR_STORE_QDRANT_COLLECTION", "docs")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Chunker.ChunkSize)
	assert.InDelta(t, 0.25, cfg.Chunker.Overlap, 1e-12)
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "http://qdrant:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "docs", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, 7, cfg.Reranker.TopK)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Generator.APIKeyEnv)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.Model)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"overlap":  "chunker:\n  overlap: 1.0\n",
		"size":     "chunker:\n  chunk_size: -3\n",
		"lambda":   "retrieval:\n  mmr_lambda: 1.5\n",
		"top_k":    "reranker:\n  top_k: 21\n",
		"policy":   "generator:\n  citation_policy: ignore\n",
		"bad yaml": "chunker: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.VectorStore.Type = "sqlite"
	cfg.VectorStore.SQLite.Path = "/tmp/x.db"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", got.VectorStore.Type)
	assert.Equal(t, "/tmp/x.db", got.VectorStore.SQLite.Path)
	assert.Equal(t, cfg.Chunker, got.Chunker)
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "minirag", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
}
