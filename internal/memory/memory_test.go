// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/curation-engine/internal/knowledge"
	"github.com/pdiddy/curation-engine/pkg/types"
)

func testService(t *testing.T) *Service {
	t.Helper()
	store, err := knowledge.Open(context.Background(), types.StoreConfig{
		Driver:  knowledge.DriverSQLite,
		DataDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(store.DB(), nil)
}

func semantic(content string) Candidate {
	return Candidate{
		Kind:        types.MemorySemantic,
		Content:     content,
		SourceAgent: types.AgentCurator,
	}
}

func TestCreatePendingDefaults(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	id, err := svc.CreatePending(ctx, Candidate{
		Kind:        types.MemoryEpisodic,
		Content:     "Rejected a physics paper.",
		SourceAgent: types.AgentCurator,
		Evidence:    &types.Evidence{DocumentIDs: []string{"doc-1"}},
	})
	require.NoError(t, err)

	m, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryPending, m.Status)
	assert.Equal(t, DefaultConfidence, m.Confidence)
	assert.Equal(t, 0, m.UseCount)
	assert.Nil(t, m.ReviewedAt)
	require.NotNil(t, m.Evidence)
	assert.Equal(t, []string{"doc-1"}, m.Evidence.DocumentIDs)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestCreatePendingInvalid(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		c    Candidate
	}{
		{"bad kind", Candidate{Kind: "dream", Content: "x", SourceAgent: types.AgentCurator}},
		{"empty content", Candidate{Kind: types.MemorySemantic, Content: "  ", SourceAgent: types.AgentCurator}},
		{"confidence high", Candidate{Kind: types.MemorySemantic, Content: "x", Confidence: 1.5, SourceAgent: types.AgentCurator}},
		{"bad agent", Candidate{Kind: types.MemorySemantic, Content: "x", SourceAgent: "librarian"}},
		{"missing agent", Candidate{Kind: types.MemorySemantic, Content: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePending(ctx, tt.c)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestExists(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	long := "Documents about mobile money agents in rural districts tend to score high on relevance."
	_, err := svc.CreatePending(ctx, semantic(long))
	require.NoError(t, err)

	found, err := svc.Exists(ctx, strings.ToUpper(long[:60])+" and something else entirely")
	require.NoError(t, err)
	assert.True(t, found, "shared 50-character prefix should match")

	found, err = svc.Exists(ctx, "  "+long[:55]+"  ")
	require.NoError(t, err)
	assert.True(t, found, "probe contained in stored content should match")

	found, err = svc.Exists(ctx, "Edge inference on low-power devices.")
	require.NoError(t, err)
	assert.False(t, found)

	found, err = svc.Exists(ctx, "   ")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreateIfNotSimilar(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	c := semantic("Document has high relevance (90%) but low accessibility (20%). Domain: ai")
	c.DedupOn = highRelevanceLowAccessibility

	id, created, err := svc.CreateIfNotSimilar(ctx, c)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	other := semantic("Document has high relevance (80%) but low accessibility (10%). Domain: iot")
	other.DedupOn = highRelevanceLowAccessibility
	_, created, err = svc.CreateIfNotSimilar(ctx, other)
	require.NoError(t, err)
	assert.False(t, created, "same dedup probe should collapse")

	_, created, err = svc.CreateIfNotSimilar(ctx, semantic("Approved documents often use the edgechain tag."))
	require.NoError(t, err)
	assert.True(t, created)

	all, err := svc.List(ctx, "all")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateIfNotSimilarConcurrent(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	c := semantic(`Concept "ledger": a shared record`)
	c.DedupOn = "concept ledger"

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := svc.CreateIfNotSimilar(ctx, c)
			if err == nil && ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	all, err := svc.List(ctx, "all")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, created)
}

func TestListByStatus(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	a, err := svc.CreatePending(ctx, semantic("first observation"))
	require.NoError(t, err)
	_, err = svc.CreatePending(ctx, semantic("second observation"))
	require.NoError(t, err)
	_, err = svc.Review(ctx, a, types.MemoryValidated, "admin-1", "")
	require.NoError(t, err)

	pending, err := svc.List(ctx, "pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	validated, err := svc.List(ctx, "validated")
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.Equal(t, a, validated[0].ID)

	_, err = svc.List(ctx, "forgotten")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestReview(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	id, err := svc.CreatePending(ctx, semantic("an observation"))
	require.NoError(t, err)

	m, err := svc.Review(ctx, id, types.MemoryValidated, "admin-1", "looks right")
	require.NoError(t, err)
	assert.Equal(t, types.MemoryValidated, m.Status)
	assert.Equal(t, "admin-1", m.ReviewedBy)
	assert.Equal(t, "looks right", m.ReviewNotes)
	require.NotNil(t, m.ReviewedAt)

	_, err = svc.Review(ctx, id, types.MemoryRejected, "admin-2", "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	m, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryValidated, m.Status, "second review must not change state")
	assert.Equal(t, "admin-1", m.ReviewedBy)
}

func TestReviewErrors(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	id, err := svc.CreatePending(ctx, semantic("an observation"))
	require.NoError(t, err)

	_, err = svc.Review(ctx, "missing", types.MemoryValidated, "admin-1", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Review(ctx, id, types.MemoryArchived, "admin-1", "")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Review(ctx, id, types.MemoryRejected, " ", "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestArchive(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	id, err := svc.CreatePending(ctx, semantic("an observation"))
	require.NoError(t, err)

	err = svc.Archive(ctx, id, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot be archived")

	_, err = svc.Review(ctx, id, types.MemoryRejected, "admin-1", "noise")
	require.NoError(t, err)
	require.NoError(t, svc.Archive(ctx, id, "admin-1"))

	m, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryArchived, m.Status)

	err = svc.Archive(ctx, id, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = svc.Archive(ctx, "missing", "admin-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecall(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	low, err := svc.CreatePending(ctx, Candidate{Kind: types.MemorySemantic, Content: "low confidence", Confidence: 0.2, SourceAgent: types.AgentTutor})
	require.NoError(t, err)
	high, err := svc.CreatePending(ctx, Candidate{Kind: types.MemorySemantic, Content: "high confidence", Confidence: 0.9, SourceAgent: types.AgentTutor})
	require.NoError(t, err)
	episodic, err := svc.CreatePending(ctx, Candidate{Kind: types.MemoryEpisodic, Content: "an event", SourceAgent: types.AgentTutor})
	require.NoError(t, err)
	pending, err := svc.CreatePending(ctx, Candidate{Kind: types.MemorySemantic, Content: "still pending", SourceAgent: types.AgentTutor})
	require.NoError(t, err)

	for _, id := range []string{low, high, episodic} {
		_, err := svc.Review(ctx, id, types.MemoryValidated, "admin-1", "")
		require.NoError(t, err)
	}

	got, err := svc.Recall(ctx, types.MemorySemantic)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, high, got[0].ID)
	assert.Equal(t, low, got[1].ID)
	assert.Equal(t, 1, got[0].UseCount)
	require.NotNil(t, got[0].LastUsedAt)

	got, err = svc.Recall(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	m, err := svc.Get(ctx, high)
	require.NoError(t, err)
	assert.Equal(t, 2, m.UseCount)

	m, err = svc.Get(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, 0, m.UseCount)
	assert.Nil(t, m.LastUsedAt)

	_, err = svc.Recall(ctx, "dream")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFormatTimeOrdersWithinOneSecond(t *testing.T) {
	base := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	whole := formatTime(base)
	half := formatTime(base.Add(500 * time.Millisecond))
	twelve := formatTime(base.Add(120 * time.Millisecond))
	oneTwoThree := formatTime(base.Add(123 * time.Millisecond))

	assert.Less(t, whole, twelve)
	assert.Less(t, twelve, oneTwoThree)
	assert.Less(t, oneTwoThree, half)
	assert.Len(t, half, len(whole))
	assert.True(t, parseTime(half).Equal(base.Add(500*time.Millisecond)))
}

func TestFromCuration(t *testing.T) {
	rejected := FromCuration("doc-1", "A paper", types.CurationResult{
		Status:         types.StatusRejected,
		RelevanceScore: 0.1,
		Notes:          "Outside the domains.",
	})
	require.Len(t, rejected, 1)
	assert.Equal(t, types.MemoryEpisodic, rejected[0].Kind)
	assert.Equal(t, 0.6, rejected[0].Confidence)
	assert.Equal(t, "Outside the domains.", rejected[0].DedupOn)

	hard := FromCuration("doc-2", "Hard paper", types.CurationResult{
		Status:             types.StatusApproved,
		RelevanceScore:     0.9,
		AccessibilityScore: 0.2,
		DomainTags:         []string{"ai"},
		EcosystemTags:      []string{"ndani"},
	})
	require.Len(t, hard, 2)
	assert.Equal(t, highRelevanceLowAccessibility, hard[0].DedupOn)
	assert.Contains(t, hard[0].Content, "90%")
	assert.Equal(t, "ecosystem ndani / ai", hard[1].DedupOn)

	none := FromCuration("doc-3", "Plain", types.CurationResult{
		Status:             types.StatusNeedsReview,
		RelevanceScore:     0.5,
		AccessibilityScore: 0.5,
	})
	assert.Empty(t, none)
}

func TestFromSynthesis(t *testing.T) {
	res := types.SynthesisResult{
		Summaries: types.Summaries{Rich: strings.Repeat("a", 30)},
		KeyConcepts: []types.KeyConcept{
			{Term: "ledger", SimpleDefinition: "a shared record", Analogy: "a savings-group notebook"},
			{Term: " "},
		},
		RelatedDocuments: []types.RelatedDocument{
			{DocumentID: "doc-0", Relationship: types.RelBuildsUpon, Strength: 0.8, Explanation: "extends it"},
			{DocumentID: "doc-9", Relationship: types.RelBuildsUpon, Strength: 0.4},
		},
	}

	got := FromSynthesis("doc-1", "A paper", res, 20)
	require.Len(t, got, 4)

	assert.Equal(t, types.MemorySemantic, got[0].Kind)
	assert.Equal(t, "concept ledger", got[0].DedupOn)
	assert.Contains(t, got[0].Content, "savings-group")

	assert.Equal(t, types.MemoryProcedural, got[1].Kind)

	assert.Equal(t, types.MemoryEpisodic, got[2].Kind)
	assert.Equal(t, 0.8, got[2].Confidence)
	assert.NotEqual(t, got[2].DedupOn, got[3].DedupOn, "edges to different targets must not collapse")

	short := FromSynthesis("doc-1", "A paper", res, 0)
	assert.Len(t, short, 3, "default threshold skips the procedural memory")
}

type countingObserver struct {
	created map[types.MemoryKind]int
}

func (o *countingObserver) MemoryCreated(_ types.Agent, kind types.MemoryKind) {
	o.created[kind]++
}

func TestExtractor(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	obs := &countingObserver{created: map[types.MemoryKind]int{}}
	ex := NewExtractor(svc, types.MemoryConfig{Enabled: true}, nil)
	ex.SetObserver(obs)

	res := types.CurationResult{Status: types.StatusRejected, Notes: "Not about any target domain."}
	n, err := ex.FromCuration(ctx, "doc-1", "Paper one", res)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ex.FromCuration(ctx, "doc-2", "Paper two", res)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "same rejection reason is deduplicated")
	assert.Equal(t, 1, obs.created[types.MemoryEpisodic])

	n, err = ex.Extract(ctx, []Candidate{{Kind: "dream", Content: "x"}, semantic("fine")})
	assert.ErrorIs(t, err, ErrMemoryExtraction)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 1, n, "valid candidates are still applied")
}

func TestExtractorDisabled(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	ex := NewExtractor(svc, types.MemoryConfig{Enabled: false}, nil)
	assert.False(t, ex.Enabled())

	n, err := ex.FromCuration(ctx, "doc-1", "Paper", types.CurationResult{Status: types.StatusRejected, Notes: "no"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := svc.List(ctx, "all")
	require.NoError(t, err)
	assert.Empty(t, all)
}
