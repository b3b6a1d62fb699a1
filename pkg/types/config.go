// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AIProvider identifies the model backend behind the gateway.
type AIProvider string

const (
	ProviderGemini AIProvider = "gemini"
	ProviderClaude AIProvider = "claude"
)

// AIConfig holds shared settings for the model gateway.
type AIConfig struct {
	// Provider selects the backend: gemini or claude (default gemini).
	Provider AIProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "gemini-2.5-flash-lite").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint, for proxies and gateways.
	// Empty uses the provider default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Temperature is the sampling temperature (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens caps the response length for providers that require it (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout bounds one model call at the transport (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of orchestrator retries for failed agent calls (default 0).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// RateLimitRetries retries 429 and 529 responses at the HTTP transport
	// for providers that use it (default 0).
	RateLimitRetries int `json:"rate_limit_retries" yaml:"rate_limit_retries" mapstructure:"rate_limit_retries"`

	// ServerCache requests provider-side cached content for system prompts
	// when the provider supports it.
	ServerCache bool `json:"server_cache" yaml:"server_cache" mapstructure:"server_cache"`

	// CacheTTL is the lifetime of provider-side cached content (default 1h).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// CacheConfig holds settings for the prompt-cache layer.
type CacheConfig struct {
	// Enabled routes agent calls through cached sessions (default true).
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// MaxSessions bounds the number of live sessions (default 32).
	MaxSessions int `json:"max_sessions" yaml:"max_sessions" mapstructure:"max_sessions"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is "sqlite3" or "pgx" (default sqlite3).
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN is the data source. For sqlite3 it is a file path; empty means
	// DataDir/curation.db.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`

	// DataDir is the base directory for the database and exports (default "data").
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
}

// CuratorConfig holds admission-control settings.
type CuratorConfig struct {
	// RejectThreshold forces rejection below this relevance (default 0.3).
	RejectThreshold float64 `json:"reject_threshold" yaml:"reject_threshold" mapstructure:"reject_threshold"`

	// MaxExcerptChars bounds the full-text excerpt sent to the model (default 2000).
	MaxExcerptChars int `json:"max_excerpt_chars" yaml:"max_excerpt_chars" mapstructure:"max_excerpt_chars"`

	// MaxAnalysisChars bounds prepared section text (default 15000).
	MaxAnalysisChars int `json:"max_analysis_chars" yaml:"max_analysis_chars" mapstructure:"max_analysis_chars"`

	// VocabularyFile overrides the built-in tag vocabulary.
	VocabularyFile string `json:"vocabulary_file,omitempty" yaml:"vocabulary_file,omitempty" mapstructure:"vocabulary_file"`
}

// MemoryConfig holds pending-memory learning settings.
type MemoryConfig struct {
	// Enabled turns memory derivation on (default true).
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// RichSummaryChars is the length above which a rich summary is
	// recorded as a procedural memory (default 1200).
	RichSummaryChars int `json:"rich_summary_chars" yaml:"rich_summary_chars" mapstructure:"rich_summary_chars"`
}

// PipelineConfig groups the orchestrator settings.
type PipelineConfig struct {
	// SynthesizeNeedsReview enriches needs-review documents too (default false).
	SynthesizeNeedsReview bool `json:"synthesize_needs_review" yaml:"synthesize_needs_review" mapstructure:"synthesize_needs_review"`

	// ResumeSchedule is the cron spec for the follow-up resume job in serve
	// (default "@every 5m").
	ResumeSchedule string `json:"resume_schedule" yaml:"resume_schedule" mapstructure:"resume_schedule"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// AdminToken guards review and cache routes. Empty disables them.
	AdminToken string `json:"admin_token,omitempty" yaml:"admin_token,omitempty" mapstructure:"admin_token"`
}

// Config is the complete application configuration.
type Config struct {
	AI       AIConfig       `json:"ai" yaml:"ai" mapstructure:"ai"`
	Cache    CacheConfig    `json:"cache" yaml:"cache" mapstructure:"cache"`
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	Curator  CuratorConfig  `json:"curator" yaml:"curator" mapstructure:"curator"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory" mapstructure:"memory"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
}

// WithDefaults returns a copy of c with zero fields set to their defaults.
// Boolean switches that default to true are set by the config loader, not here.
func (c Config) WithDefaults() Config {
	if c.AI.Provider == "" {
		c.AI.Provider = ProviderGemini
	}
	if c.AI.Model == "" {
		switch c.AI.Provider {
		case ProviderClaude:
			c.AI.Model = "claude-sonnet-4-5-20250929"
		default:
			c.AI.Model = "gemini-2.5-flash-lite"
		}
	}
	if c.AI.Temperature == 0 {
		c.AI.Temperature = 0.7
	}
	if c.AI.MaxTokens <= 0 {
		c.AI.MaxTokens = 4096
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 120 * time.Second
	}
	if c.AI.MaxRetries < 0 {
		c.AI.MaxRetries = 0
	}
	if c.AI.CacheTTL <= 0 {
		c.AI.CacheTTL = time.Hour
	}
	if c.Cache.MaxSessions <= 0 {
		c.Cache.MaxSessions = 32
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite3"
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data"
	}
	if c.Curator.RejectThreshold <= 0 {
		c.Curator.RejectThreshold = 0.3
	}
	if c.Curator.MaxExcerptChars <= 0 {
		c.Curator.MaxExcerptChars = 2000
	}
	if c.Curator.MaxAnalysisChars <= 0 {
		c.Curator.MaxAnalysisChars = 15000
	}
	if c.Memory.RichSummaryChars <= 0 {
		c.Memory.RichSummaryChars = 1200
	}
	if c.Pipeline.ResumeSchedule == "" {
		c.Pipeline.ResumeSchedule = "@every 5m"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	return c
}
