// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdiddy/curation-engine/internal/httputil"
)

func withClaudeServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	orig := claudeAPIURL
	claudeAPIURL = srv.URL
	t.Cleanup(func() { claudeAPIURL = orig })
}

func TestClaudeGenerate(t *testing.T) {
	var got claudeRequest
	withClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "{\"status\":\"approved\"}"}],
			"usage": {"input_tokens": 40, "output_tokens": 12, "cache_read_input_tokens": 900}
		}`))
	})

	p := &ClaudeProvider{APIKey: "test-key", MaxTokens: 512}
	s := &Session{Name: "curator", SystemPrompt: "You are a curator.", Model: "claude-test"}
	comp, err := p.Generate(context.Background(), s, "Title: X")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if comp.Text != `{"status":"approved"}` {
		t.Errorf("Text = %q", comp.Text)
	}
	if comp.Usage.TokensIn != 940 || comp.Usage.TokensOut != 12 || comp.Usage.CachedTokens != 900 {
		t.Errorf("Usage = %+v", comp.Usage)
	}
	if got.Model != "claude-test" || got.MaxTokens != 512 {
		t.Errorf("request model/max_tokens = %q/%d", got.Model, got.MaxTokens)
	}
	if len(got.System) != 1 || got.System[0].CacheControl == nil || got.System[0].CacheControl.Type != "ephemeral" {
		t.Errorf("system block = %+v, want ephemeral cache_control", got.System)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "Title: X" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestClaudeGenerateUnnamedSessionNotCached(t *testing.T) {
	var got claudeRequest
	withClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{}"}]}`))
	})

	p := &ClaudeProvider{APIKey: "k"}
	if _, err := p.Generate(context.Background(), &Session{SystemPrompt: "sys", Model: "m"}, "u"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got.System) != 1 || got.System[0].CacheControl != nil {
		t.Errorf("system block = %+v, want no cache_control", got.System)
	}
	if got.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want default 4096", got.MaxTokens)
	}
}

func TestClaudeGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid x-api-key"}`, ErrProviderUnavailable},
		{"forbidden", http.StatusForbidden, `{}`, ErrProviderUnavailable},
		{"bad json", http.StatusOK, `{"content": [`, ErrMalformedResponse},
		{"no text block", http.StatusOK, `{"content":[{"type":"tool_use"}]}`, ErrMalformedResponse},
		{"server error", http.StatusInternalServerError, `overloaded`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withClaudeServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			p := &ClaudeProvider{APIKey: "k"}
			_, err := p.Generate(context.Background(), &Session{Model: "m"}, "u")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("err = %v, want %v", err, tt.target)
			}
			if tt.target == nil && (errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrMalformedResponse)) {
				t.Errorf("err = %v, want untyped error", err)
			}
		})
	}
}

func TestClaudeGenerateMissingKey(t *testing.T) {
	p := &ClaudeProvider{}
	_, err := p.Generate(context.Background(), &Session{Model: "m"}, "u")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestClaudeGenerateRetriesOverloaded(t *testing.T) {
	orig := httputil.RetryBaseDelay
	httputil.RetryBaseDelay = time.Millisecond
	t.Cleanup(func() { httputil.RetryBaseDelay = orig })

	var calls int32
	withClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("attempt %d: decoding request: %v", atomic.LoadInt32(&calls)+1, err)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(529)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{}"}]}`))
	})

	p := &ClaudeProvider{APIKey: "k", RateLimitRetries: 2}
	comp, err := p.Generate(context.Background(), &Session{Model: "m"}, "u")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if comp.Text != "{}" {
		t.Errorf("Text = %q", comp.Text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}
