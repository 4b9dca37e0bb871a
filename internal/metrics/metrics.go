// Package metrics exposes pipeline counters and stage latencies to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "minirag"

// Metrics implements the pipeline observer on Prometheus collectors.
type Metrics struct {
	requests   *prometheus.CounterVec
	stages     *prometheus.HistogramVec
	chunks     prometheus.Counter
	ungrounded prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Pipeline requests by flow and outcome.",
		}, []string{"flow", "outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"flow", "stage"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Chunks written to the vector store.",
		}),
		ungrounded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ungrounded_citations_total",
			Help:      "Answer markers that pointed outside the retrieved sources.",
		}),
	}
	reg.MustRegister(m.requests, m.stages, m.chunks, m.ungrounded)
	return m
}

func (m *Metrics) ObserveRequest(flow, outcome string) {
	m.requests.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) ObserveStage(flow, stage string, d time.Duration) {
	m.stages.WithLabelValues(flow, stage).Observe(d.Seconds())
}

func (m *Metrics) AddChunks(n int) { m.chunks.Add(float64(n)) }

func (m *Metrics) AddUngrounded(n int) { m.ungrounded.Add(float64(n)) }
