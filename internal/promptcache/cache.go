// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package promptcache keeps one model session per named system prompt so
// agents reuse provider-side prompt caching across documents.
//
// Sessions are cached by name only: a later GetSession with a different
// prompt under the same name returns the original session. Callers that
// change a prompt must Clear the name first.
package promptcache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/curation-engine/internal/llm"
)

// Cache stores sessions by name. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(name string) (*llm.Session, bool)
	Put(name string, s *llm.Session)
	Clear(name string)
	ClearAll()
	Names() []string
}

// LRU is a Cache bounded to a fixed number of sessions.
type LRU struct {
	c *lru.Cache[string, *llm.Session]
}

// NewLRU returns a cache that holds at most size sessions.
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = 32
	}
	c, err := lru.New[string, *llm.Session](size)
	if err != nil {
		return nil, fmt.Errorf("creating session cache: %w", err)
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Get(name string) (*llm.Session, bool) { return l.c.Get(name) }
func (l *LRU) Put(name string, s *llm.Session)      { l.c.Add(name, s) }
func (l *LRU) Clear(name string)                    { l.c.Remove(name) }
func (l *LRU) ClearAll()                            { l.c.Purge() }

// Names returns the cached session names in sorted order.
func (l *LRU) Names() []string {
	names := l.c.Keys()
	sort.Strings(names)
	return names
}

// SessionFactory creates a new session for a system prompt.
// *llm.Gateway satisfies it.
type SessionFactory interface {
	NewSession(ctx context.Context, name, systemPrompt string) (*llm.Session, error)
}

// Observer receives cache hit and miss events.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
}

// Manager hands out cached sessions and drops them when credentials change.
type Manager struct {
	cache    Cache
	factory  SessionFactory
	observer Observer
	logger   *slog.Logger

	mu          sync.Mutex
	fingerprint string
}

// NewManager returns a manager backed by cache. A nil cache disables
// caching: every GetSession creates a fresh session.
func NewManager(cache Cache, factory SessionFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cache: cache, factory: factory, logger: logger}
}

// SetObserver installs hit/miss reporting.
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

// GetSession returns the session cached under name, creating it on first
// use. Two concurrent first calls may both create a session; the last Put
// wins.
func (m *Manager) GetSession(ctx context.Context, name, systemPrompt string) (*llm.Session, error) {
	if m.cache != nil {
		if s, ok := m.cache.Get(name); ok {
			if m.observer != nil {
				m.observer.CacheHit(name)
			}
			return s, nil
		}
	}
	if m.observer != nil {
		m.observer.CacheMiss(name)
	}

	s, err := m.factory.NewSession(ctx, name, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("creating session %q: %w", name, err)
	}
	if m.cache != nil {
		m.cache.Put(name, s)
		m.logger.Debug("prompt session cached", "session", name, "server_cached", s.CachedContent != "")
	}
	return s, nil
}

// Clear drops one named session.
func (m *Manager) Clear(name string) {
	if m.cache != nil {
		m.cache.Clear(name)
	}
}

// ClearAll drops every session.
func (m *Manager) ClearAll() {
	if m.cache != nil {
		m.cache.ClearAll()
	}
}

// Names lists the cached session names.
func (m *Manager) Names() []string {
	if m.cache == nil {
		return []string{}
	}
	return m.cache.Names()
}

// Rotate clears every session when credential differs from the one seen
// last, and reports whether it did. The first call only records the
// fingerprint.
func (m *Manager) Rotate(credential string) bool {
	fp := fingerprint(credential)

	m.mu.Lock()
	prev := m.fingerprint
	m.fingerprint = fp
	m.mu.Unlock()

	if prev == "" || prev == fp {
		return false
	}
	m.ClearAll()
	m.logger.Info("model credential changed, prompt sessions cleared")
	return true
}

func fingerprint(credential string) string {
	if credential == "" {
		return "none"
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(credential)))[:12]
}
