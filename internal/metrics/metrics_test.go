// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/curation-engine/internal/knowledge"
	"github.com/pdiddy/curation-engine/internal/llm/llmtest"
	"github.com/pdiddy/curation-engine/pkg/types"
)

func TestRecorderCountsAndForwards(t *testing.T) {
	m := New()
	next := &llmtest.Recorder{}
	rec := m.Recorder(next)

	entry := types.AgentCallLog{
		Agent:     types.AgentCurator,
		Model:     "gemini-2.5-flash-lite",
		Usage:     types.Usage{TokensIn: 900, TokensOut: 40, CachedTokens: 800},
		LatencyMs: 1500,
	}
	require.NoError(t, rec.RecordCall(context.Background(), entry))
	require.NoError(t, rec.RecordCall(context.Background(), entry))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AgentCalls.WithLabelValues("curator", "gemini-2.5-flash-lite")))
	assert.Equal(t, 1600.0, testutil.ToFloat64(m.AgentTokens.WithLabelValues("curator", "cached")))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.AgentTokens.WithLabelValues("curator", "out")))
	assert.Len(t, next.Entries, 2)
}

func TestRecorderWithoutNext(t *testing.T) {
	m := New()
	err := m.Recorder(nil).RecordCall(context.Background(), types.AgentCallLog{Agent: types.AgentSynthesizer})
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentCalls.WithLabelValues("synthesizer", "")))
}

func TestObservers(t *testing.T) {
	m := New()

	m.CacheMiss("curator")
	m.CacheHit("curator")
	m.CacheHit("curator")
	m.MemoryCreated(types.AgentCurator, types.MemoryEpisodic)
	m.DocumentProcessed(types.StatusApproved, 2*time.Second)
	m.DocumentProcessed(types.StatusRejected, time.Second)
	m.EdgesWritten(knowledge.EdgeSummary{Written: 2, Skipped: 1})
	m.StepFailed("graph")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("curator", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("curator", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MemoriesCreated.WithLabelValues("curator", "episodic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues("approved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Edges.WithLabelValues("written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Edges.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepFailures.WithLabelValues("graph")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.CacheHit("synthesizer")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `curation_engine_prompt_cache_lookups_total{result="hit",session="synthesizer"} 1`))
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.StepFailed("curate")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.StepFailures.WithLabelValues("curate")))
}
