// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one document through curation, synthesis,
// persistence, graph writing and memory extraction.
//
// Persistence is a saga anchored on the document upsert. The edge and
// memory steps that follow are idempotent and stamp completion markers
// on the document, so Resume can finish any run that stopped between
// steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdiddy/curation-engine/internal/analysis"
	"github.com/pdiddy/curation-engine/internal/curator"
	"github.com/pdiddy/curation-engine/internal/knowledge"
	"github.com/pdiddy/curation-engine/internal/llm"
	"github.com/pdiddy/curation-engine/internal/synthesizer"
	"github.com/pdiddy/curation-engine/pkg/types"
)

// ErrValidation reports an ingest request that cannot be processed.
var ErrValidation = errors.New("invalid ingest request")

// State is a step of one ingestion.
type State string

const (
	StateReceived        State = "received"
	StateCurating        State = "curating"
	StateRejected        State = "rejected"
	StateNeedsReview     State = "needs-review"
	StateSynthesizing    State = "synthesizing"
	StatePersisted       State = "persisted"
	StateGraphWritten    State = "graph-written"
	StateMemoryExtracted State = "memory-extracted"
)

// backoffBase controls the base duration for exponential backoff between
// agent retries. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// Curator is the admission-control agent.
type Curator interface {
	Curate(ctx context.Context, docID string, in curator.Input) (types.CurationResult, error)
	VocabularyVersion() string
}

// Synthesizer is the enrichment agent.
type Synthesizer interface {
	Synthesize(ctx context.Context, in synthesizer.Input) (types.SynthesisResult, error)
}

// Store is the persistence the pipeline writes through.
type Store interface {
	UpsertDocument(ctx context.Context, doc *types.Document) error
	ListApproved(ctx context.Context, excludeID string) ([]types.DocumentRef, error)
	WriteEdges(ctx context.Context, sourceID, run string, rels []types.RelatedDocument) (knowledge.EdgeSummary, error)
	MarkEdgesWritten(ctx context.Context, id string) error
	MarkMemoriesExtracted(ctx context.Context, id string) error
	PendingFollowUps(ctx context.Context) ([]types.Document, error)
}

// Memories derives pending memories from agent outputs.
type Memories interface {
	FromCuration(ctx context.Context, docID, title string, res types.CurationResult) (int, error)
	FromSynthesis(ctx context.Context, docID, title string, res types.SynthesisResult) (int, error)
}

// Observer receives per-ingestion outcomes.
type Observer interface {
	DocumentProcessed(status types.CurationStatus, elapsed time.Duration)
	EdgesWritten(summary knowledge.EdgeSummary)
	StepFailed(step string)
}

// Outcome is the result of one ingestion. A rejected document is an
// outcome, not an error.
type Outcome struct {
	DocumentID      string                 `json:"documentId"`
	Status          types.CurationStatus   `json:"status"`
	State           State                  `json:"state"`
	Curation        types.CurationResult   `json:"curation"`
	Synthesis       *types.SynthesisResult `json:"synthesis,omitempty"`
	Edges           knowledge.EdgeSummary  `json:"edges"`
	MemoriesCreated int                    `json:"memoriesCreated"`
}

// Orchestrator drives the ingestion state machine.
type Orchestrator struct {
	curator     Curator
	synthesizer Synthesizer
	store       Store
	memories    Memories
	observer    Observer
	logger      *slog.Logger
	tracer      trace.Tracer

	maxRetries            int
	maxExcerptChars       int
	maxAnalysisChars      int
	synthesizeNeedsReview bool
}

// New returns an orchestrator. memories may be nil to skip extraction.
func New(c Curator, s Synthesizer, store Store, memories Memories, cfg types.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		curator:               c,
		synthesizer:           s,
		store:                 store,
		memories:              memories,
		logger:                logger,
		tracer:                otel.Tracer("github.com/pdiddy/curation-engine/internal/pipeline"),
		maxRetries:            max(cfg.AI.MaxRetries, 0),
		maxExcerptChars:       cfg.Curator.MaxExcerptChars,
		maxAnalysisChars:      cfg.Curator.MaxAnalysisChars,
		synthesizeNeedsReview: cfg.Pipeline.SynthesizeNeedsReview,
	}
}

// SetObserver installs outcome reporting.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// Ingest runs req through the pipeline.
func (o *Orchestrator) Ingest(ctx context.Context, req types.IngestRequest) (*Outcome, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "pipeline.ingest")
	defer span.End()

	if strings.TrimSpace(req.Title) == "" {
		err := fmt.Errorf("%w: title is required", ErrValidation)
		fail(span, err)
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("document.id", req.ID))

	out := &Outcome{DocumentID: req.ID, State: StateReceived}
	doc := o.newDocument(req)

	out.State = StateCurating
	res, err := o.curate(ctx, req)
	if err != nil {
		o.stepFailed("curate")
		fail(span, err)
		return nil, err
	}
	doc.Curation = res
	doc.VocabularyVersion = o.curator.VocabularyVersion()
	out.Status = res.Status
	out.Curation = res
	span.SetAttributes(attribute.String("curation.status", string(res.Status)))

	synthesize := res.Status == types.StatusApproved ||
		(res.Status == types.StatusNeedsReview && o.synthesizeNeedsReview)

	if !synthesize {
		if err := o.persist(ctx, doc); err != nil {
			o.stepFailed("persist")
			fail(span, err)
			return nil, err
		}
		out.MemoriesCreated, _ = o.extractMemories(ctx, doc)
		out.State = StateRejected
		if res.Status == types.StatusNeedsReview {
			out.State = StateNeedsReview
		}
		o.logger.Info("document not synthesized", "doc", doc.ID, "status", res.Status)
		o.processed(res.Status, start)
		return out, nil
	}

	out.State = StateSynthesizing
	synth, err := o.synthesize(ctx, doc)
	if err != nil {
		o.stepFailed("synthesize")
		fail(span, err)
		return nil, err
	}
	doc.Synthesis = &synth
	doc.SynthesisRun = uuid.NewString()
	out.Synthesis = &synth

	if err := o.persist(ctx, doc); err != nil {
		o.stepFailed("persist")
		fail(span, err)
		return nil, err
	}
	out.State = StatePersisted

	summary, err := o.writeGraph(ctx, doc)
	if err != nil {
		// The document is durable; Resume finishes the graph step.
		o.stepFailed("graph")
		fail(span, err)
		return nil, err
	}
	out.Edges = summary
	out.State = StateGraphWritten

	out.MemoriesCreated, _ = o.extractMemories(ctx, doc)
	out.State = StateMemoryExtracted

	o.logger.Info("document ingested",
		"doc", doc.ID, "status", res.Status,
		"edges_written", summary.Written, "edges_skipped", summary.Skipped,
		"memories", out.MemoriesCreated)
	o.processed(res.Status, start)
	return out, nil
}

// Resume completes the edge and memory steps of documents that were
// persisted but not finished. It returns the number of documents
// completed.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.resume")
	defer span.End()

	docs, err := o.store.PendingFollowUps(ctx)
	if err != nil {
		fail(span, err)
		return 0, fmt.Errorf("resuming: %w", err)
	}

	done := 0
	var errs []error
	for i := range docs {
		doc := &docs[i]
		if doc.Synthesis != nil && doc.EdgesWrittenAt == nil {
			if _, err := o.writeGraph(ctx, doc); err != nil {
				o.stepFailed("graph")
				errs = append(errs, err)
				continue
			}
		}
		if doc.MemoriesExtractedAt == nil {
			if _, ok := o.extractMemories(ctx, doc); !ok {
				continue
			}
		}
		done++
	}
	span.SetAttributes(attribute.Int("resume.pending", len(docs)), attribute.Int("resume.completed", done))
	if len(docs) > 0 {
		o.logger.Info("resumed pending documents", "pending", len(docs), "completed", done)
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		fail(span, err)
		return done, fmt.Errorf("resuming: %w", err)
	}
	return done, nil
}

func (o *Orchestrator) curate(ctx context.Context, req types.IngestRequest) (types.CurationResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.curate")
	defer span.End()

	in := curator.Input{Title: req.Title, Abstract: req.Abstract, FullText: req.FullText}
	if req.Sections != nil && !req.Sections.IsEmpty() {
		in.Abstract = analysis.Prepare(req.Title, *req.Sections, o.maxAnalysisChars)
	}

	res, err := withRetry(ctx, o, "curator", func(ctx context.Context) (types.CurationResult, error) {
		return o.curator.Curate(ctx, req.ID, in)
	})
	if err != nil {
		fail(span, err)
	}
	return res, err
}

func (o *Orchestrator) synthesize(ctx context.Context, doc *types.Document) (types.SynthesisResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.synthesize")
	defer span.End()

	existing, err := o.store.ListApproved(ctx, doc.ID)
	if err != nil {
		fail(span, err)
		return types.SynthesisResult{}, fmt.Errorf("listing approved documents: %w", err)
	}
	span.SetAttributes(attribute.Int("synthesis.existing", len(existing)))

	res, err := withRetry(ctx, o, "synthesizer", func(ctx context.Context) (types.SynthesisResult, error) {
		return o.synthesizer.Synthesize(ctx, synthesizer.Input{Document: *doc, Existing: existing})
	})
	if err != nil {
		fail(span, err)
	}
	return res, err
}

func (o *Orchestrator) persist(ctx context.Context, doc *types.Document) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.persist")
	defer span.End()

	doc.ProcessedAt = time.Now().UTC()
	doc.EdgesWrittenAt = nil
	doc.MemoriesExtractedAt = nil
	if err := o.store.UpsertDocument(ctx, doc); err != nil {
		fail(span, err)
		return fmt.Errorf("persisting document %s: %w", doc.ID, err)
	}
	return nil
}

func (o *Orchestrator) writeGraph(ctx context.Context, doc *types.Document) (knowledge.EdgeSummary, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.graph")
	defer span.End()

	summary, err := o.store.WriteEdges(ctx, doc.ID, doc.SynthesisRun, doc.Synthesis.RelatedDocuments)
	if err != nil {
		fail(span, err)
		return summary, fmt.Errorf("writing edges for %s: %w", doc.ID, err)
	}
	if err := o.store.MarkEdgesWritten(ctx, doc.ID); err != nil {
		fail(span, err)
		return summary, fmt.Errorf("marking edges for %s: %w", doc.ID, err)
	}
	span.SetAttributes(attribute.Int("edges.written", summary.Written), attribute.Int("edges.skipped", summary.Skipped))
	if o.observer != nil {
		o.observer.EdgesWritten(summary)
	}
	return summary, nil
}

// extractMemories derives memories for both agents independently and
// never fails the run. It reports whether the completion marker was set;
// the marker is set even when extraction is disabled so the document
// leaves the follow-up queue.
func (o *Orchestrator) extractMemories(ctx context.Context, doc *types.Document) (int, bool) {
	ctx, span := o.tracer.Start(ctx, "pipeline.memories")
	defer span.End()

	created := 0
	complete := true
	if o.memories != nil {
		n, err := o.memories.FromCuration(ctx, doc.ID, doc.Title, doc.Curation)
		created += n
		if err != nil {
			complete = false
			o.stepFailed("memories")
			o.logger.Warn("curation memory extraction failed", "doc", doc.ID, "error", err)
		}
		if doc.Synthesis != nil {
			n, err := o.memories.FromSynthesis(ctx, doc.ID, doc.Title, *doc.Synthesis)
			created += n
			if err != nil {
				complete = false
				o.stepFailed("memories")
				o.logger.Warn("synthesis memory extraction failed", "doc", doc.ID, "error", err)
			}
		}
	}
	span.SetAttributes(attribute.Int("memories.created", created))

	if !complete {
		return created, false
	}
	if err := o.store.MarkMemoriesExtracted(ctx, doc.ID); err != nil {
		o.logger.Warn("marking memories extracted failed", "doc", doc.ID, "error", err)
		return created, false
	}
	return created, true
}

// withRetry runs call up to maxRetries+1 times with exponential backoff.
// Missing credentials and validation failures are not retried.
func withRetry[T any](ctx context.Context, o *Orchestrator, agent string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			o.logger.Warn("retrying agent call", "agent", agent, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
		res, err := call(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(err) {
			return zero, err
		}
	}
	if o.maxRetries == 0 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("after %d retries: %w", o.maxRetries, lastErr)
}

func retryable(err error) bool {
	return !errors.Is(err, llm.ErrProviderUnavailable) &&
		!errors.Is(err, ErrValidation) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (o *Orchestrator) newDocument(req types.IngestRequest) *types.Document {
	abstract := req.Abstract
	if abstract == "" && req.Sections != nil {
		abstract = req.Sections.Abstract
	}
	var excerpt string
	if req.FullText != "" {
		excerpt = analysis.Truncate(req.FullText, o.maxExcerptChars)
	}
	return &types.Document{
		ID:          req.ID,
		Title:       strings.TrimSpace(req.Title),
		Abstract:    abstract,
		Excerpt:     excerpt,
		Authors:     req.Authors,
		Year:        req.Year,
		Venue:       req.Venue,
		Identifiers: req.Identifiers,
		Citation:    req.Citation,
	}
}

func (o *Orchestrator) processed(status types.CurationStatus, start time.Time) {
	if o.observer != nil {
		o.observer.DocumentProcessed(status, time.Since(start))
	}
}

func (o *Orchestrator) stepFailed(step string) {
	if o.observer != nil {
		o.observer.StepFailed(step)
	}
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
