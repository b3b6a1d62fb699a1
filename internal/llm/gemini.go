// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/pdiddy/curation-engine/pkg/types"
)

// GeminiProvider calls the Gemini API through the genai client and asks for
// JSON output.
type GeminiProvider struct {
	client      *genai.Client
	temperature float32
	serverCache bool
	cacheTTL    time.Duration
}

// NewGeminiProvider builds a Gemini provider from cfg.
func NewGeminiProvider(ctx context.Context, cfg types.AIConfig, httpClient *http.Client) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing Gemini API key", ErrProviderUnavailable)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiProvider{
		client:      client,
		temperature: float32(cfg.Temperature),
		serverCache: cfg.ServerCache,
		cacheTTL:    cfg.CacheTTL,
	}, nil
}

// PrepareSession uploads the system prompt as cached content when server
// caching is enabled. Gemini enforces a minimum cached token count, so short
// prompts fail here and the gateway falls back to inline instructions.
func (p *GeminiProvider) PrepareSession(ctx context.Context, s *Session) error {
	if !p.serverCache || s.SystemPrompt == "" {
		return nil
	}

	cc, err := p.client.Caches.Create(ctx, s.Model, &genai.CreateCachedContentConfig{
		DisplayName:       s.Name,
		TTL:               p.cacheTTL,
		SystemInstruction: genai.NewContentFromText(s.SystemPrompt, genai.RoleUser),
	})
	if err != nil {
		return classifyGeminiError("creating cached content", err)
	}
	s.CachedContent = cc.Name
	return nil
}

// Generate sends one GenerateContent request.
func (p *GeminiProvider) Generate(ctx context.Context, s *Session, userPrompt string) (Completion, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(p.temperature),
	}
	if s.CachedContent != "" {
		cfg.CachedContent = s.CachedContent
	} else if s.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(s.SystemPrompt, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, s.Model, genai.Text(userPrompt), cfg)
	if err != nil {
		return Completion{}, classifyGeminiError("calling Gemini API", err)
	}

	comp := Completion{Text: resp.Text()}
	if um := resp.UsageMetadata; um != nil {
		comp.Usage = types.Usage{
			TokensIn:     int(um.PromptTokenCount),
			TokensOut:    int(um.CandidatesTokenCount),
			CachedTokens: int(um.CachedContentTokenCount),
		}
	}
	return comp, nil
}

// classifyGeminiError wraps err, marking rejected credentials as
// ErrProviderUnavailable. Gemini answers a bad key with 400
// API_KEY_INVALID, and a revoked or unauthorized one with 401 or 403.
func classifyGeminiError(op string, err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		apiErr = *ptr
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %s: Gemini API returned %d: %s", ErrProviderUnavailable, op, apiErr.Code, apiErr.Message)
	case apiErr.Code == http.StatusBadRequest && invalidKeyMessage(apiErr):
		return fmt.Errorf("%w: %s: Gemini API rejected the key: %s", ErrProviderUnavailable, op, apiErr.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func invalidKeyMessage(e genai.APIError) bool {
	text := strings.ToLower(e.Status + " " + e.Message + " " + fmt.Sprint(e.Details))
	return strings.Contains(text, "api_key_invalid") || strings.Contains(text, "api key not valid") ||
		strings.Contains(text, "api key expired")
}

// NewProvider builds the provider selected by cfg.Provider. A missing API key
// yields ErrProviderUnavailable.
func NewProvider(ctx context.Context, cfg types.AIConfig) (Provider, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case types.ProviderClaude:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: missing Claude API key", ErrProviderUnavailable)
		}
		return &ClaudeProvider{
			APIKey:      cfg.APIKey,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Client:      httpClient,

			RateLimitRetries: cfg.RateLimitRetries,
		}, nil
	case types.ProviderGemini, "":
		return NewGeminiProvider(ctx, cfg, httpClient)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderUnavailable, cfg.Provider)
	}
}
