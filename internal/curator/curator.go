// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package curator implements admission control: one model call scores a
// document for relevance and accessibility, tags it from the controlled
// vocabulary and decides whether it enters the knowledge base.
package curator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdiddy/curation-engine/internal/llm"
	"github.com/pdiddy/curation-engine/internal/vocab"
	"github.com/pdiddy/curation-engine/pkg/types"
)

// SessionName keys the Curator's cached prompt session.
const SessionName = "curator"

// Model is the slice of the gateway the Curator calls.
type Model interface {
	Model() string
	Invoke(ctx context.Context, systemPrompt, userPrompt string, out any) (types.Usage, error)
	InvokeSession(ctx context.Context, s *llm.Session, userPrompt string, out any) (types.Usage, error)
}

// Sessions hands out cached prompt sessions.
type Sessions interface {
	GetSession(ctx context.Context, name, systemPrompt string) (*llm.Session, error)
}

// Input is one document to curate. Title is required.
type Input struct {
	Title    string
	Abstract string
	FullText string
}

// response mirrors the JSON the model is asked to return.
type response struct {
	RelevanceScore       float64  `json:"relevanceScore"`
	AccessibilityScore   float64  `json:"accessibilityScore"`
	Difficulty           int      `json:"difficulty"`
	DomainTags           []string `json:"domainTags"`
	EcosystemTags        []string `json:"ecosystemTags"`
	KeyContributions     []string `json:"keyContributions"`
	Status               string   `json:"status"`
	Notes                string   `json:"notes"`
	PlainLanguageSummary string   `json:"plainLanguageSummary"`
}

// Curator evaluates documents through the model gateway.
type Curator struct {
	model    Model
	sessions Sessions
	vocab    *vocab.Vocabulary
	recorder llm.Recorder
	cfg      types.CuratorConfig
	logger   *slog.Logger

	systemPrompt string
}

// New returns a Curator. sessions and recorder may be nil: without
// sessions every call sends the system prompt inline, and without a
// recorder calls are not logged.
func New(model Model, sessions Sessions, v *vocab.Vocabulary, recorder llm.Recorder, cfg types.CuratorConfig, logger *slog.Logger) (*Curator, error) {
	if v == nil {
		v = vocab.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RejectThreshold <= 0 {
		cfg.RejectThreshold = 0.3
	}
	if cfg.MaxExcerptChars <= 0 {
		cfg.MaxExcerptChars = 2000
	}
	prompt, err := SystemPrompt(v)
	if err != nil {
		return nil, err
	}
	return &Curator{
		model:        model,
		sessions:     sessions,
		vocab:        v,
		recorder:     recorder,
		cfg:          cfg,
		logger:       logger,
		systemPrompt: prompt,
	}, nil
}

// VocabularyVersion is the version of the vocabulary results are validated against.
func (c *Curator) VocabularyVersion() string {
	return c.vocab.Version
}

// Curate evaluates one document. docID is recorded with the call log and
// may be empty.
func (c *Curator) Curate(ctx context.Context, docID string, in Input) (types.CurationResult, error) {
	if strings.TrimSpace(in.Title) == "" {
		return types.CurationResult{}, fmt.Errorf("curating: title is required")
	}
	userPrompt, err := renderUserPrompt(in, c.cfg.MaxExcerptChars)
	if err != nil {
		return types.CurationResult{}, err
	}

	start := time.Now()
	var raw response
	usage, err := c.invoke(ctx, userPrompt, &raw)
	c.record(ctx, docID, usage, time.Since(start))
	if err != nil {
		return types.CurationResult{}, fmt.Errorf("curating %q: %w", in.Title, err)
	}

	res, err := c.validate(raw)
	if err != nil {
		return types.CurationResult{}, fmt.Errorf("curating %q: %w", in.Title, err)
	}
	c.logger.Info("document curated",
		"doc", docID, "status", res.Status,
		"relevance", res.RelevanceScore, "accessibility", res.AccessibilityScore,
		"cached_tokens", usage.CachedTokens)
	return res, nil
}

func (c *Curator) invoke(ctx context.Context, userPrompt string, out *response) (types.Usage, error) {
	if c.sessions == nil {
		return c.model.Invoke(ctx, c.systemPrompt, userPrompt, out)
	}
	s, err := c.sessions.GetSession(ctx, SessionName, c.systemPrompt)
	if err != nil {
		return types.Usage{}, err
	}
	return c.model.InvokeSession(ctx, s, userPrompt, out)
}

func (c *Curator) record(ctx context.Context, docID string, usage types.Usage, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	err := c.recorder.RecordCall(ctx, types.AgentCallLog{
		DocumentID: docID,
		Agent:      types.AgentCurator,
		Model:      c.model.Model(),
		Usage:      usage,
		LatencyMs:  elapsed.Milliseconds(),
	})
	if err != nil {
		c.logger.Warn("recording curator call failed", "doc", docID, "error", err)
	}
}

// validate applies the boundary rules to a decoded response.
func (c *Curator) validate(raw response) (types.CurationResult, error) {
	status := types.CurationStatus(strings.TrimSpace(raw.Status))
	if !status.Valid() {
		return types.CurationResult{}, fmt.Errorf("%w: unknown curation status %q", llm.ErrMalformedResponse, raw.Status)
	}

	res := types.CurationResult{
		RelevanceScore:       clamp01(raw.RelevanceScore),
		AccessibilityScore:   clamp01(raw.AccessibilityScore),
		Difficulty:           clampInt(raw.Difficulty, 1, 5),
		KeyContributions:     raw.KeyContributions,
		Status:               status,
		Notes:                strings.TrimSpace(raw.Notes),
		PlainLanguageSummary: strings.TrimSpace(raw.PlainLanguageSummary),
	}

	var dropped []string
	res.DomainTags, dropped = c.vocab.FilterDomain(raw.DomainTags)
	if len(dropped) > 0 {
		c.logger.Warn("dropped unknown domain tags", "tags", dropped, "vocabulary", c.vocab.Version)
	}
	res.EcosystemTags, dropped = c.vocab.FilterEcosystem(raw.EcosystemTags)
	if len(dropped) > 0 {
		c.logger.Warn("dropped unknown ecosystem tags", "tags", dropped, "vocabulary", c.vocab.Version)
	}

	if res.RelevanceScore < c.cfg.RejectThreshold && res.Status != types.StatusRejected {
		res.Status = types.StatusRejected
		res.Notes = appendNote(res.Notes, fmt.Sprintf("Relevance %.2f is below the %.2f threshold.", res.RelevanceScore, c.cfg.RejectThreshold))
	}
	if res.Status == types.StatusApproved && res.PlainLanguageSummary == "" {
		res.Status = types.StatusNeedsReview
		res.Notes = appendNote(res.Notes, "Approved without a plain-language summary.")
	}
	if res.Status != types.StatusApproved {
		res.PlainLanguageSummary = ""
	}
	return res, nil
}

func appendNote(notes, add string) string {
	if notes == "" {
		return add
	}
	return notes + " " + add
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

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
