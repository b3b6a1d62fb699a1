// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llmtest provides a scripted model provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pdiddy/curation-engine/internal/llm"
	"github.com/pdiddy/curation-engine/pkg/types"
)

// Reply is one scripted model answer.
type Reply struct {
	Text  string
	Usage types.Usage
	Err   error
}

// Call is one request seen by the provider.
type Call struct {
	Session       string
	SystemPrompt  string
	CachedContent string
	UserPrompt    string
}

// Provider answers Generate calls from per-agent scripts. The agent is
// taken from the session name, or detected from the system prompt when
// the session is unnamed. Each script is consumed in order and its last
// reply repeats.
type Provider struct {
	mu       sync.Mutex
	scripts  map[string][]Reply
	calls    []Call
	prepared int

	// ServerCache makes PrepareSession attach a cached-content handle.
	ServerCache bool
}

// New returns an empty scripted provider.
func New() *Provider {
	return &Provider{scripts: map[string][]Reply{}}
}

// Script appends replies for agent ("curator" or "synthesizer").
func (p *Provider) Script(agent string, replies ...Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[agent] = append(p.scripts[agent], replies...)
	return p
}

// JSON is shorthand for a reply carrying text and a fixed usage.
func JSON(text string) Reply {
	return Reply{Text: text, Usage: types.Usage{TokensIn: 100, TokensOut: 20}}
}

// Generate implements llm.Provider.
func (p *Provider) Generate(_ context.Context, s *llm.Session, userPrompt string) (llm.Completion, error) {
	agent := s.Name
	if agent == "" {
		agent = detect(s.SystemPrompt)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{
		Session:       s.Name,
		SystemPrompt:  s.SystemPrompt,
		CachedContent: s.CachedContent,
		UserPrompt:    userPrompt,
	})

	script := p.scripts[agent]
	if len(script) == 0 {
		return llm.Completion{}, fmt.Errorf("llmtest: no reply scripted for %q", agent)
	}
	r := script[0]
	if len(script) > 1 {
		p.scripts[agent] = script[1:]
	}
	if r.Err != nil {
		return llm.Completion{Usage: r.Usage}, r.Err
	}
	return llm.Completion{Text: r.Text, Usage: r.Usage}, nil
}

// PrepareSession implements llm.SessionPreparer.
func (p *Provider) PrepareSession(_ context.Context, s *llm.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prepared++
	if p.ServerCache {
		s.CachedContent = "cachedContents/" + s.Name
	}
	return nil
}

// Calls returns a copy of the requests seen so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsFor returns the requests addressed to agent.
func (p *Provider) CallsFor(agent string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		name := c.Session
		if name == "" {
			name = detect(c.SystemPrompt)
		}
		if name == agent {
			out = append(out, c)
		}
	}
	return out
}

// Prepared reports how many sessions were created.
func (p *Provider) Prepared() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepared
}

func detect(systemPrompt string) string {
	switch {
	case strings.Contains(systemPrompt, "You are the Curator"):
		return "curator"
	case strings.Contains(systemPrompt, "You are the Synthesizer"):
		return "synthesizer"
	}
	return ""
}

// Recorder collects call logs in memory.
type Recorder struct {
	mu      sync.Mutex
	Entries []types.AgentCallLog
	Err     error
}

// RecordCall implements llm.Recorder.
func (r *Recorder) RecordCall(_ context.Context, entry types.AgentCallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, entry)
	return r.Err
}
