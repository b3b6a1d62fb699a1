// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the model gateway: it turns a (system prompt, user prompt)
// pair into a decoded JSON result plus token usage, and is the single place
// where provider failures are translated into ErrProviderUnavailable and
// ErrMalformedResponse. The gateway never retries; retry policy belongs to
// the caller.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/curation-engine/pkg/types"
)

var (
	// ErrProviderUnavailable reports missing or invalid model credentials.
	ErrProviderUnavailable = errors.New("model provider unavailable")

	// ErrMalformedResponse reports model output that could not be decoded
	// into the expected structure.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Session binds a name to a fixed system prompt so repeated calls can reuse
// it. Providers that support server-side caching record the cache handle in
// CachedContent.
type Session struct {
	Name         string
	SystemPrompt string
	Model        string

	// CachedContent is the provider-side cache resource name. Empty means
	// the system prompt is sent inline with every call.
	CachedContent string

	CreatedAt time.Time
}

// Completion is the raw text returned by a provider with its usage counters.
type Completion struct {
	Text  string
	Usage types.Usage
}

// Provider performs exactly one outbound model call.
type Provider interface {
	Generate(ctx context.Context, s *Session, userPrompt string) (Completion, error)
}

// SessionPreparer is implemented by providers that can cache a system
// prompt on their side when a session is created.
type SessionPreparer interface {
	PrepareSession(ctx context.Context, s *Session) error
}

// Recorder persists one AgentCallLog per model invocation.
type Recorder interface {
	RecordCall(ctx context.Context, entry types.AgentCallLog) error
}

// Gateway wraps the configured provider. The provider may be nil when no
// credentials are configured; every call then fails with
// ErrProviderUnavailable.
type Gateway struct {
	mu       sync.RWMutex
	provider Provider
	model    string
	logger   *slog.Logger
}

// NewGateway returns a gateway for provider p serving model.
func NewGateway(p Provider, model string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: p, model: model, logger: logger}
}

// Model returns the model identifier used for new sessions.
func (g *Gateway) Model() string {
	return g.model
}

// SetProvider swaps the provider, e.g. after a credential change. Callers
// holding cached sessions must drop them.
func (g *Gateway) SetProvider(p Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.provider = p
}

func (g *Gateway) current() (Provider, error) {
	g.mu.RLock()
	p := g.provider
	g.mu.RUnlock()
	if p == nil {
		g.logger.Error("model provider not configured: set an API key")
		return nil, fmt.Errorf("%w: no API key configured", ErrProviderUnavailable)
	}
	return p, nil
}

// NewSession creates a session for systemPrompt. When the provider supports
// server-side caching the prompt is uploaded once here; a failure to cache
// falls back to sending the prompt inline.
func (g *Gateway) NewSession(ctx context.Context, name, systemPrompt string) (*Session, error) {
	p, err := g.current()
	if err != nil {
		return nil, err
	}

	s := &Session{
		Name:         name,
		SystemPrompt: systemPrompt,
		Model:        g.model,
		CreatedAt:    time.Now().UTC(),
	}
	if prep, ok := p.(SessionPreparer); ok {
		if err := prep.PrepareSession(ctx, s); err != nil {
			if errors.Is(err, ErrProviderUnavailable) {
				return nil, err
			}
			g.logger.Warn("server-side prompt cache unavailable, sending system prompt inline",
				"session", name, "error", err)
			s.CachedContent = ""
		}
	}
	return s, nil
}

// Invoke sends a one-off call without a cached session and decodes the
// JSON result into out.
func (g *Gateway) Invoke(ctx context.Context, systemPrompt, userPrompt string, out any) (types.Usage, error) {
	s := &Session{SystemPrompt: systemPrompt, Model: g.model, CreatedAt: time.Now().UTC()}
	return g.InvokeSession(ctx, s, userPrompt, out)
}

// InvokeSession sends userPrompt within session s and decodes the JSON
// result into out. Usage is returned even when decoding fails.
func (g *Gateway) InvokeSession(ctx context.Context, s *Session, userPrompt string, out any) (types.Usage, error) {
	p, err := g.current()
	if err != nil {
		return types.Usage{}, err
	}

	comp, err := p.Generate(ctx, s, userPrompt)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			g.logger.Error("model provider rejected credentials", "session", s.Name, "error", err)
		}
		return comp.Usage, fmt.Errorf("calling model: %w", err)
	}

	if err := DecodeJSON(comp.Text, out); err != nil {
		g.logger.Warn("model returned undecodable output", "session", s.Name, "bytes", len(comp.Text))
		return comp.Usage, err
	}
	return comp.Usage, nil
}

// DecodeJSON unmarshals model text into out, tolerating a surrounding
// Markdown code fence.
func DecodeJSON(text string, out any) error {
	body := stripFence(strings.TrimSpace(text))
	if body == "" {
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
