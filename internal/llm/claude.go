// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/curation-engine/internal/httputil"
	"github.com/pdiddy/curation-engine/pkg/types"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeProvider calls the Claude Messages API. The session's system prompt
// is marked with an ephemeral cache_control block so the provider reuses it
// across calls.
type ClaudeProvider struct {
	APIKey      string
	MaxTokens   int
	Temperature float64
	Client      *http.Client

	// RateLimitRetries is how many times a 429 or 529 response is retried
	// at the transport. Zero sends each request once.
	RateLimitRetries int
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	System      []claudeBlock   `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

// claudeBlock is a system content block.
type claudeBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
	Usage   claudeUsage     `json:"usage"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
}

// Generate sends one Messages API request.
func (c *ClaudeProvider) Generate(ctx context.Context, s *Session, userPrompt string) (Completion, error) {
	if c.APIKey == "" {
		return Completion{}, fmt.Errorf("%w: missing Claude API key", ErrProviderUnavailable)
	}

	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqBody := claudeRequest{
		Model:       s.Model,
		MaxTokens:   maxTokens,
		Temperature: c.Temperature,
		Messages: []claudeMessage{
			{Role: "user", Content: userPrompt},
		},
	}
	if s.SystemPrompt != "" {
		block := claudeBlock{Type: "text", Text: s.SystemPrompt}
		if s.Name != "" {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		reqBody.System = []claudeBlock{block}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return Completion{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, c.RateLimitRetries)
	if err != nil {
		return Completion{}, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(resp.Body)
		return Completion{}, fmt.Errorf("%w: Claude API returned %d: %s", ErrProviderUnavailable, resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return Completion{}, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return Completion{}, fmt.Errorf("%w: decoding Claude response: %v", ErrMalformedResponse, err)
	}

	comp := Completion{
		Usage: usageFromClaude(cResp.Usage),
	}
	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		comp.Text = block.Text
		return comp, nil
	}

	return comp, fmt.Errorf("%w: no text content in Claude API response", ErrMalformedResponse)
}

func usageFromClaude(u claudeUsage) (out types.Usage) {
	out.TokensIn = u.InputTokens + u.CacheReadInputTokens
	out.TokensOut = u.OutputTokens
	out.CachedTokens = u.CacheReadInputTokens
	return out
}
