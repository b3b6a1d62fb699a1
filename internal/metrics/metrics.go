// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus counters for model usage, prompt-cache
// effectiveness, memory derivation and pipeline outcomes.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdiddy/curation-engine/internal/knowledge"
	"github.com/pdiddy/curation-engine/internal/llm"
	"github.com/pdiddy/curation-engine/pkg/types"
)

const namespace = "curation_engine"

// Metrics holds the application's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	AgentCalls   *prometheus.CounterVec
	AgentTokens  *prometheus.CounterVec
	AgentLatency *prometheus.HistogramVec

	CacheLookups *prometheus.CounterVec

	MemoriesCreated *prometheus.CounterVec

	Documents      *prometheus.CounterVec
	IngestDuration prometheus.Histogram
	Edges          *prometheus.CounterVec
	StepFailures   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		AgentCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Model calls by agent and model.",
		}, []string{"agent", "model"}),

		AgentTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tokens_total",
			Help:      "Tokens by agent and kind (in, out, cached).",
		}, []string{"agent", "kind"}),

		// up to two minutes for slow model responses
		AgentLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_call_duration_seconds",
			Help:      "Model call latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"agent"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_cache_lookups_total",
			Help:      "Prompt-session lookups by session and result (hit, miss).",
		}, []string{"session", "result"}),

		MemoriesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_created_total",
			Help:      "Pending memories created by source agent and kind.",
		}, []string{"agent", "kind"}),

		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents processed by curation status.",
		}, []string{"status"}),

		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		Edges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_total",
			Help:      "Relationship edges by result (written, skipped).",
		}, []string{"result"}),

		StepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_step_failures_total",
			Help:      "Pipeline step failures by step.",
		}, []string{"step"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// CacheHit counts a prompt-session cache hit.
func (m *Metrics) CacheHit(name string) {
	m.CacheLookups.WithLabelValues(name, "hit").Inc()
}

// CacheMiss counts a prompt-session cache miss.
func (m *Metrics) CacheMiss(name string) {
	m.CacheLookups.WithLabelValues(name, "miss").Inc()
}

// MemoryCreated counts a new pending memory.
func (m *Metrics) MemoryCreated(agent types.Agent, kind types.MemoryKind) {
	m.MemoriesCreated.WithLabelValues(string(agent), string(kind)).Inc()
}

// DocumentProcessed counts a finished ingestion.
func (m *Metrics) DocumentProcessed(status types.CurationStatus, elapsed time.Duration) {
	m.Documents.WithLabelValues(string(status)).Inc()
	m.IngestDuration.Observe(elapsed.Seconds())
}

// EdgesWritten counts the outcome of one graph-write step.
func (m *Metrics) EdgesWritten(s knowledge.EdgeSummary) {
	m.Edges.WithLabelValues("written").Add(float64(s.Written))
	m.Edges.WithLabelValues("skipped").Add(float64(s.Skipped))
}

// StepFailed counts a failed pipeline step.
func (m *Metrics) StepFailed(step string) {
	m.StepFailures.WithLabelValues(step).Inc()
}

// Recorder wraps next so every logged model call is also counted. next may
// be nil.
func (m *Metrics) Recorder(next llm.Recorder) llm.Recorder {
	return &recorder{m: m, next: next}
}

type recorder struct {
	m    *Metrics
	next llm.Recorder
}

func (r *recorder) RecordCall(ctx context.Context, entry types.AgentCallLog) error {
	agent := string(entry.Agent)
	r.m.AgentCalls.WithLabelValues(agent, entry.Model).Inc()
	r.m.AgentTokens.WithLabelValues(agent, "in").Add(float64(entry.Usage.TokensIn))
	r.m.AgentTokens.WithLabelValues(agent, "out").Add(float64(entry.Usage.TokensOut))
	r.m.AgentTokens.WithLabelValues(agent, "cached").Add(float64(entry.Usage.CachedTokens))
	r.m.AgentLatency.WithLabelValues(agent).Observe(float64(entry.LatencyMs) / 1000)

	if r.next == nil {
		return nil
	}
	return r.next.RecordCall(ctx, entry)
}
