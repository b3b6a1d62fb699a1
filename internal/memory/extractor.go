// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// Observer is notified of each pending memory the extractor creates.
type Observer interface {
	MemoryCreated(agent types.Agent, kind types.MemoryKind)
}

// Extractor turns agent outputs into pending memories. A disabled
// extractor accepts every call and creates nothing.
type Extractor struct {
	svc       *Service
	enabled   bool
	richChars int
	logger    *slog.Logger
	observer  Observer
}

// NewExtractor returns an extractor writing through svc.
func NewExtractor(svc *Service, cfg types.MemoryConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	rich := cfg.RichSummaryChars
	if rich <= 0 {
		rich = DefaultRichSummaryChars
	}
	return &Extractor{svc: svc, enabled: cfg.Enabled && svc != nil, richChars: rich, logger: logger}
}

// SetObserver registers o for creation events.
func (e *Extractor) SetObserver(o Observer) { e.observer = o }

// Enabled reports whether extraction writes anything.
func (e *Extractor) Enabled() bool { return e.enabled }

// FromCuration extracts memories from a curation result.
func (e *Extractor) FromCuration(ctx context.Context, docID, title string, res types.CurationResult) (int, error) {
	return e.Extract(ctx, FromCuration(docID, title, res))
}

// FromSynthesis extracts memories from a synthesis result.
func (e *Extractor) FromSynthesis(ctx context.Context, docID, title string, res types.SynthesisResult) (int, error) {
	return e.Extract(ctx, FromSynthesis(docID, title, res, e.richChars))
}

// Extract stores each candidate unless a similar memory exists. Every
// candidate is attempted; failures are joined and wrapped in
// ErrMemoryExtraction.
func (e *Extractor) Extract(ctx context.Context, cands []Candidate) (int, error) {
	if !e.enabled || len(cands) == 0 {
		return 0, nil
	}

	created := 0
	var errs []error
	for _, c := range cands {
		id, ok, err := e.svc.CreateIfNotSimilar(ctx, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			e.logger.Debug("similar memory exists", "kind", c.Kind, "agent", c.SourceAgent)
			continue
		}
		created++
		if e.observer != nil {
			e.observer.MemoryCreated(c.SourceAgent, c.Kind)
		}
		e.logger.Debug("memory extracted", "id", id, "kind", c.Kind)
	}

	if len(errs) > 0 {
		return created, fmt.Errorf("%w: %w", ErrMemoryExtraction, errors.Join(errs...))
	}
	return created, nil
}
