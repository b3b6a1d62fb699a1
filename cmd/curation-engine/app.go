// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdiddy/curation-engine/internal/curator"
	"github.com/pdiddy/curation-engine/internal/knowledge"
	"github.com/pdiddy/curation-engine/internal/llm"
	"github.com/pdiddy/curation-engine/internal/memory"
	"github.com/pdiddy/curation-engine/internal/metrics"
	"github.com/pdiddy/curation-engine/internal/pipeline"
	"github.com/pdiddy/curation-engine/internal/promptcache"
	"github.com/pdiddy/curation-engine/internal/synthesizer"
	"github.com/pdiddy/curation-engine/internal/vocab"
	"github.com/pdiddy/curation-engine/pkg/types"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg    types.Config
	logger *slog.Logger

	store     *knowledge.Store
	metrics   *metrics.Metrics
	gateway   *llm.Gateway
	sessions  *promptcache.Manager
	memories  *memory.Service
	extractor *memory.Extractor
	pipeline  *pipeline.Orchestrator
}

// openStore opens only the knowledge store, for commands that never call a
// model.
func openStore(ctx context.Context) (*knowledge.Store, types.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	store, err := knowledge.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, cfg, err
	}
	return store, cfg, nil
}

// newApp builds every component from cfg. A missing API key is not fatal:
// the gateway reports ErrProviderUnavailable on each model call instead.
func newApp(ctx context.Context, cfg types.Config, logger *slog.Logger) (*app, error) {
	store, err := knowledge.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store, metrics: metrics.New()}

	provider, err := newProvider(ctx, cfg.AI, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.gateway = llm.NewGateway(provider, cfg.AI.Model, logger)

	var cache promptcache.Cache
	if cfg.Cache.Enabled {
		lru, err := promptcache.NewLRU(cfg.Cache.MaxSessions)
		if err != nil {
			store.Close()
			return nil, err
		}
		cache = lru
	}
	a.sessions = promptcache.NewManager(cache, a.gateway, logger)
	a.sessions.SetObserver(a.metrics)
	a.sessions.Rotate(cfg.AI.APIKey)

	v := vocab.Default()
	if cfg.Curator.VocabularyFile != "" {
		if v, err = vocab.Load(cfg.Curator.VocabularyFile); err != nil {
			store.Close()
			return nil, err
		}
	}

	recorder := a.metrics.Recorder(store)
	cur, err := curator.New(a.gateway, a.sessions, v, recorder, cfg.Curator, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	syn := synthesizer.New(a.gateway, a.sessions, recorder, logger)

	a.memories = memory.NewService(store.DB(), logger)
	a.extractor = memory.NewExtractor(a.memories, cfg.Memory, logger)
	a.extractor.SetObserver(a.metrics)

	a.pipeline = pipeline.New(cur, syn, store, a.extractor, cfg, logger)
	a.pipeline.SetObserver(a.metrics)

	logger.Debug("curation engine ready",
		"provider", cfg.AI.Provider, "model", cfg.AI.Model,
		"cache", cfg.Cache.Enabled, "memory", a.extractor.Enabled(),
		"vocabulary", v.Version)
	return a, nil
}

// newProvider builds the configured provider, or nil when no key is set.
func newProvider(ctx context.Context, cfg types.AIConfig, logger *slog.Logger) (llm.Provider, error) {
	p, err := llm.NewProvider(ctx, cfg)
	if errors.Is(err, llm.ErrProviderUnavailable) {
		logger.Warn("model provider unavailable; model calls will fail", "provider", cfg.Provider, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", cfg.Provider, err)
	}
	return p, nil
}

// reconfigure swaps the provider and drops cached sessions when the model
// credential or provider changed.
func (a *app) reconfigure(ctx context.Context, next types.Config) {
	if next.AI.Provider == a.cfg.AI.Provider && next.AI.APIKey == a.cfg.AI.APIKey {
		return
	}
	provider, err := newProvider(ctx, next.AI, a.logger)
	if err != nil {
		a.logger.Error("config reload: keeping previous provider", "error", err)
		return
	}
	a.gateway.SetProvider(provider)
	if !a.sessions.Rotate(next.AI.APIKey) {
		a.sessions.ClearAll()
	}
	a.cfg.AI = next.AI
	a.logger.Info("model provider reconfigured", "provider", next.AI.Provider)
}

func (a *app) Close() error {
	return a.store.Close()
}
