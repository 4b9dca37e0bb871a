package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("query", "ok")
	m.ObserveRequest("query", "ok")
	m.ObserveRequest("ingest", "invalid_input")
	m.ObserveStage("query", "retrieve", 15*time.Millisecond)
	m.AddChunks(3)
	m.AddUngrounded(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("query", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("ingest", "invalid_input")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.chunks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ungrounded))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stages))

	expected := `
# HELP minirag_chunks_ingested_total Chunks written to the vector store.
# TYPE minirag_chunks_ingested_total counter
minirag_chunks_ingested_total 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "minirag_chunks_ingested_total"))
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
