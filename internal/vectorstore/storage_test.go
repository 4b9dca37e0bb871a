package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minirag/internal/config"
	"minirag/internal/vectorstore/memory"
	"minirag/internal/vectorstore/qdrant"
	"minirag/internal/vectorstore/sqlite"
)

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	st, closeFn, err := New(ctx, config.VectorStoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, st)
	assert.NoError(t, closeFn())

	st, _, err = New(ctx, config.VectorStoreConfig{Type: "qdrant", Qdrant: config.QdrantConfig{URL: "http://localhost:6333", Collection: "c"}})
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Storage{}, st)

	path := filepath.Join(t.TempDir(), "v.db")
	st, closeFn, err = New(ctx, config.VectorStoreConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: path}})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Storage{}, st)
	assert.NoError(t, closeFn())
}

func TestNewRejectsUnknown(t *testing.T) {
	_, _, err := New(context.Background(), config.VectorStoreConfig{Type: "faiss"})
	assert.Error(t, err)
}
