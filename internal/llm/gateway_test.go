// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// --- fake provider ---

type fakeProvider struct {
	text     string
	usage    types.Usage
	err      error
	prepErr  error
	calls    int
	prepared int
	lastSess *Session
}

func (f *fakeProvider) Generate(_ context.Context, s *Session, _ string) (Completion, error) {
	f.calls++
	f.lastSess = s
	if f.err != nil {
		return Completion{}, f.err
	}
	return Completion{Text: f.text, Usage: f.usage}, nil
}

func (f *fakeProvider) PrepareSession(_ context.Context, s *Session) error {
	f.prepared++
	if f.prepErr != nil {
		return f.prepErr
	}
	s.CachedContent = "cachedContents/" + s.Name
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type result struct {
	Status string  `json:"status"`
	Score  float64 `json:"score"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    result
		wantErr bool
	}{
		{"plain object", `{"status":"approved","score":0.8}`, result{"approved", 0.8}, false},
		{"json fence", "```json\n{\"status\":\"rejected\",\"score\":0.1}\n```", result{"rejected", 0.1}, false},
		{"bare fence", "```\n{\"status\":\"x\"}\n```", result{Status: "x"}, false},
		{"surrounding whitespace", "\n  {\"score\":1}  \n", result{Score: 1}, false},
		{"empty", "   ", result{}, true},
		{"prose", "I think this paper is great.", result{}, true},
		{"truncated", `{"status":"appr`, result{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got result
			err := DecodeJSON(tt.text, &got)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("err = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInvokeNoProvider(t *testing.T) {
	g := NewGateway(nil, "m", quietLogger())
	var out result
	_, err := g.Invoke(context.Background(), "sys", "user", &out)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}

	if _, err := g.NewSession(context.Background(), "curator", "sys"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("NewSession err = %v, want ErrProviderUnavailable", err)
	}
}

func TestInvokeDecodesAndReportsUsage(t *testing.T) {
	p := &fakeProvider{
		text:  `{"status":"approved","score":0.9}`,
		usage: types.Usage{TokensIn: 120, TokensOut: 30, CachedTokens: 100},
	}
	g := NewGateway(p, "test-model", quietLogger())

	var out result
	usage, err := g.Invoke(context.Background(), "sys", "user", &out)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Status != "approved" || out.Score != 0.9 {
		t.Errorf("out = %+v", out)
	}
	if usage != p.usage {
		t.Errorf("usage = %+v, want %+v", usage, p.usage)
	}
	if p.lastSess.Model != "test-model" {
		t.Errorf("session model = %q", p.lastSess.Model)
	}
}

func TestInvokeMalformedKeepsUsage(t *testing.T) {
	p := &fakeProvider{text: "not json", usage: types.Usage{TokensIn: 10, TokensOut: 2}}
	g := NewGateway(p, "m", quietLogger())

	var out result
	usage, err := g.Invoke(context.Background(), "sys", "user", &out)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	if usage.TokensIn != 10 {
		t.Errorf("usage.TokensIn = %d, want 10", usage.TokensIn)
	}
}

func TestInvokeProviderErrorsPropagate(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"unavailable", fmt.Errorf("%w: 401", ErrProviderUnavailable), ErrProviderUnavailable},
		{"malformed", fmt.Errorf("%w: no text", ErrMalformedResponse), ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(&fakeProvider{err: tt.err}, "m", quietLogger())
			var out result
			_, err := g.Invoke(context.Background(), "s", "u", &out)
			if !errors.Is(err, tt.target) {
				t.Errorf("err = %v, want %v", err, tt.target)
			}
		})
	}

	// Transport errors carry neither sentinel.
	g := NewGateway(&fakeProvider{err: errors.New("connection reset")}, "m", quietLogger())
	var out result
	_, err := g.Invoke(context.Background(), "s", "u", &out)
	if err == nil || errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v, want plain transport error", err)
	}
}

func TestNewSessionPreparesCache(t *testing.T) {
	p := &fakeProvider{text: `{}`}
	g := NewGateway(p, "m", quietLogger())

	s, err := g.NewSession(context.Background(), "curator", "long instructions")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.CachedContent != "cachedContents/curator" {
		t.Errorf("CachedContent = %q", s.CachedContent)
	}
	if p.prepared != 1 {
		t.Errorf("prepared = %d, want 1", p.prepared)
	}
}

func TestNewSessionFallsBackInline(t *testing.T) {
	p := &fakeProvider{text: `{}`, prepErr: errors.New("cached content too small")}
	g := NewGateway(p, "m", quietLogger())

	s, err := g.NewSession(context.Background(), "synthesizer", "short")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.CachedContent != "" {
		t.Errorf("CachedContent = %q, want empty", s.CachedContent)
	}
	if s.SystemPrompt != "short" {
		t.Errorf("SystemPrompt = %q", s.SystemPrompt)
	}
}

func TestSetProvider(t *testing.T) {
	g := NewGateway(nil, "m", quietLogger())
	g.SetProvider(&fakeProvider{text: `{"status":"ok"}`})

	var out result
	if _, err := g.Invoke(context.Background(), "s", "u", &out); err != nil {
		t.Fatalf("Invoke after SetProvider: %v", err)
	}
	if out.Status != "ok" {
		t.Errorf("Status = %q", out.Status)
	}
}

func TestNewProviderMissingKey(t *testing.T) {
	for _, prov := range []types.AIProvider{types.ProviderGemini, types.ProviderClaude} {
		_, err := NewProvider(context.Background(), types.AIConfig{Provider: prov})
		if !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("%s: err = %v, want ErrProviderUnavailable", prov, err)
		}
	}

	_, err := NewProvider(context.Background(), types.AIConfig{Provider: "openai", APIKey: "k"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("unknown provider: err = %v", err)
	}
}
