// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesizer enriches approved documents: it writes the three
// summary registers, explains key concepts and proposes typed
// relationships to documents already in the knowledge base.
package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdiddy/curation-engine/internal/llm"
	"github.com/pdiddy/curation-engine/pkg/types"
)

// SessionName keys the Synthesizer's cached prompt session.
const SessionName = "synthesizer"

// maxOneLiner bounds the one-liner summary, in runes.
const maxOneLiner = 100

// Model is the slice of the gateway the Synthesizer calls.
type Model interface {
	Model() string
	Invoke(ctx context.Context, systemPrompt, userPrompt string, out any) (types.Usage, error)
	InvokeSession(ctx context.Context, s *llm.Session, userPrompt string, out any) (types.Usage, error)
}

// Sessions hands out cached prompt sessions.
type Sessions interface {
	GetSession(ctx context.Context, name, systemPrompt string) (*llm.Session, error)
}

// Input is the document to enrich and the approved documents it may relate
// to. Existing must not contain the document itself.
type Input struct {
	Document types.Document
	Existing []types.DocumentRef
}

// Synthesizer enriches documents through the model gateway.
type Synthesizer struct {
	model    Model
	sessions Sessions
	recorder llm.Recorder
	logger   *slog.Logger
}

// New returns a Synthesizer. sessions and recorder may be nil.
func New(model Model, sessions Sessions, recorder llm.Recorder, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{model: model, sessions: sessions, recorder: recorder, logger: logger}
}

// Synthesize enriches in.Document.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (types.SynthesisResult, error) {
	userPrompt, err := renderUserPrompt(in)
	if err != nil {
		return types.SynthesisResult{}, err
	}

	start := time.Now()
	var raw types.SynthesisResult
	usage, err := s.invoke(ctx, userPrompt, &raw)
	s.record(ctx, in.Document.ID, usage, time.Since(start))
	if err != nil {
		return types.SynthesisResult{}, fmt.Errorf("synthesizing %s: %w", in.Document.ID, err)
	}

	res, err := s.validate(in, raw)
	if err != nil {
		return types.SynthesisResult{}, fmt.Errorf("synthesizing %s: %w", in.Document.ID, err)
	}
	s.logger.Info("document synthesized",
		"doc", in.Document.ID,
		"concepts", len(res.KeyConcepts),
		"relations", len(res.RelatedDocuments),
		"cached_tokens", usage.CachedTokens)
	return res, nil
}

func (s *Synthesizer) invoke(ctx context.Context, userPrompt string, out *types.SynthesisResult) (types.Usage, error) {
	if s.sessions == nil {
		return s.model.Invoke(ctx, systemPrompt, userPrompt, out)
	}
	sess, err := s.sessions.GetSession(ctx, SessionName, systemPrompt)
	if err != nil {
		return types.Usage{}, err
	}
	return s.model.InvokeSession(ctx, sess, userPrompt, out)
}

func (s *Synthesizer) record(ctx context.Context, docID string, usage types.Usage, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.RecordCall(ctx, types.AgentCallLog{
		DocumentID: docID,
		Agent:      types.AgentSynthesizer,
		Model:      s.model.Model(),
		Usage:      usage,
		LatencyMs:  elapsed.Milliseconds(),
	})
	if err != nil {
		s.logger.Warn("recording synthesizer call failed", "doc", docID, "error", err)
	}
}

func (s *Synthesizer) validate(in Input, raw types.SynthesisResult) (types.SynthesisResult, error) {
	res := raw
	res.Summaries.OneLiner = truncateRunes(strings.TrimSpace(raw.Summaries.OneLiner), maxOneLiner)
	res.Summaries.Paragraph = strings.TrimSpace(raw.Summaries.Paragraph)
	res.Summaries.Rich = strings.TrimSpace(raw.Summaries.Rich)
	if res.Summaries.Rich == "" {
		return types.SynthesisResult{}, fmt.Errorf("%w: rich summary is empty", llm.ErrMalformedResponse)
	}

	known := make(map[string]bool, len(in.Existing))
	for _, ref := range in.Existing {
		if ref.ID != in.Document.ID {
			known[ref.ID] = true
		}
	}

	res.RelatedDocuments = make([]types.RelatedDocument, 0, len(raw.RelatedDocuments))
	seen := map[string]bool{}
	for _, rel := range raw.RelatedDocuments {
		switch {
		case rel.DocumentID == in.Document.ID:
			s.logger.Warn("dropped self relationship", "doc", in.Document.ID)
			continue
		case !known[rel.DocumentID]:
			s.logger.Warn("dropped relationship to unknown document", "doc", in.Document.ID, "target", rel.DocumentID)
			continue
		case !rel.Relationship.Valid():
			s.logger.Warn("dropped relationship of unknown kind", "doc", in.Document.ID, "kind", rel.Relationship)
			continue
		}
		key := rel.DocumentID + "\x00" + string(rel.Relationship)
		if seen[key] {
			continue
		}
		seen[key] = true
		rel.Strength = clamp01(rel.Strength)
		res.RelatedDocuments = append(res.RelatedDocuments, rel)
	}

	var prereqs []string
	for _, id := range raw.Prerequisites {
		if known[id] {
			prereqs = append(prereqs, id)
		}
	}
	res.Prerequisites = prereqs
	return res, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
