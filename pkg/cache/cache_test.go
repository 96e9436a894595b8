package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestStaleCacheServesFreshValueWithoutReload(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := New[[]string](newMemoryStore(), "esc:cache:banks", time.Hour, WithClock(clk.Now))
	require.NoError(t, err)

	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"058", "044"}, nil
	}

	first, err := c.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"058", "044"}, first.Value)

	clk.now = clk.now.Add(30 * time.Minute)
	second, err := c.Get(ctx, load)
	require.NoError(t, err)
	assert.False(t, second.Stale)
	assert.Equal(t, 1, calls)
}

func TestStaleCacheReloadsAfterTTL(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := New[int](newMemoryStore(), "k", time.Hour, WithClock(clk.Now))
	require.NoError(t, err)

	version := 0
	load := func(context.Context) (int, error) {
		version++
		return version, nil
	}

	_, err = c.Get(ctx, load)
	require.NoError(t, err)
	clk.now = clk.now.Add(2 * time.Hour)

	res, err := c.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value)
}

func TestStaleCacheFallsBackWhenLoaderFails(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := New[string](newMemoryStore(), "k", time.Hour, WithClock(clk.Now), WithMaxStale(24*time.Hour))
	require.NoError(t, err)

	_, err = c.Get(ctx, func(context.Context) (string, error) { return "v1", nil })
	require.NoError(t, err)

	clk.now = clk.now.Add(3 * time.Hour)
	res, err := c.Get(ctx, func(context.Context) (string, error) { return "", errors.New("provider down") })
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, "v1", res.Value)
}

func TestStaleCacheGivesUpPastMaxStale(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := New[string](newMemoryStore(), "k", time.Hour, WithClock(clk.Now), WithMaxStale(time.Hour))
	require.NoError(t, err)

	_, err = c.Get(ctx, func(context.Context) (string, error) { return "v1", nil })
	require.NoError(t, err)

	clk.now = clk.now.Add(5 * time.Hour)
	_, err = c.Get(ctx, func(context.Context) (string, error) { return "", errors.New("provider down") })
	require.Error(t, err)
}

func TestStaleCacheMissWithFailingLoader(t *testing.T) {
	c, err := New[string](newMemoryStore(), "k", time.Hour)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), func(context.Context) (string, error) { return "", errors.New("boom") })
	require.Error(t, err)
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New[string](nil, "k", time.Hour)
	assert.Error(t, err)
	_, err = New[string](newMemoryStore(), "", time.Hour)
	assert.Error(t, err)
	_, err = New[string](newMemoryStore(), "k", 0)
	assert.Error(t, err)
}
