// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package promptcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/curation-engine/internal/llm"
)

type countingFactory struct {
	created int
	err     error
}

func (f *countingFactory) NewSession(_ context.Context, name, systemPrompt string) (*llm.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	return &llm.Session{Name: name, SystemPrompt: systemPrompt}, nil
}

type countingObserver struct {
	hits, misses int
}

func (o *countingObserver) CacheHit(string)  { o.hits++ }
func (o *countingObserver) CacheMiss(string) { o.misses++ }

func newManager(t *testing.T, size int) (*Manager, *countingFactory) {
	t.Helper()
	c, err := NewLRU(size)
	require.NoError(t, err)
	f := &countingFactory{}
	return NewManager(c, f, nil), f
}

func TestGetSessionCachesByName(t *testing.T) {
	m, f := newManager(t, 4)
	obs := &countingObserver{}
	m.SetObserver(obs)
	ctx := context.Background()

	s1, err := m.GetSession(ctx, "curator", "prompt v1")
	require.NoError(t, err)
	s2, err := m.GetSession(ctx, "curator", "prompt v2")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, "prompt v1", s2.SystemPrompt, "cached by name, prompt not compared")
	assert.Equal(t, 1, f.created)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)
}

func TestClearAndNames(t *testing.T) {
	m, f := newManager(t, 4)
	ctx := context.Background()

	_, _ = m.GetSession(ctx, "synthesizer", "s")
	_, _ = m.GetSession(ctx, "curator", "c")
	assert.Equal(t, []string{"curator", "synthesizer"}, m.Names())

	m.Clear("curator")
	assert.Equal(t, []string{"synthesizer"}, m.Names())

	s, err := m.GetSession(ctx, "curator", "c2")
	require.NoError(t, err)
	assert.Equal(t, "c2", s.SystemPrompt)
	assert.Equal(t, 3, f.created)

	m.ClearAll()
	assert.Empty(t, m.Names())
}

func TestLRUEvictsOldest(t *testing.T) {
	m, _ := newManager(t, 2)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := m.GetSession(ctx, name, name)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"b", "c"}, m.Names())
}

func TestRotate(t *testing.T) {
	m, f := newManager(t, 4)
	ctx := context.Background()

	assert.False(t, m.Rotate("key-1"), "first credential only recorded")
	_, _ = m.GetSession(ctx, "curator", "c")

	assert.False(t, m.Rotate("key-1"))
	assert.Equal(t, []string{"curator"}, m.Names())

	assert.True(t, m.Rotate("key-2"))
	assert.Empty(t, m.Names())

	_, _ = m.GetSession(ctx, "curator", "c")
	assert.Equal(t, 2, f.created)
}

func TestGetSessionFactoryError(t *testing.T) {
	c, err := NewLRU(4)
	require.NoError(t, err)
	f := &countingFactory{err: llm.ErrProviderUnavailable}
	m := NewManager(c, f, nil)

	_, err = m.GetSession(context.Background(), "curator", "c")
	assert.True(t, errors.Is(err, llm.ErrProviderUnavailable))
	assert.Empty(t, m.Names())
}

func TestNilCacheDisablesCaching(t *testing.T) {
	f := &countingFactory{}
	m := NewManager(nil, f, nil)
	ctx := context.Background()

	_, _ = m.GetSession(ctx, "curator", "c")
	_, _ = m.GetSession(ctx, "curator", "c")
	assert.Equal(t, 2, f.created)
	assert.Empty(t, m.Names())
}
