// Package cache provides a read-through cache with a freshness TTL and a
// stale fallback used when the loader fails.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store is the key/value surface the cache needs. *pkg/redis.Client
// satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Loader fetches the authoritative value.
type Loader[T any] func(ctx context.Context) (T, error)

// Result reports where a value came from.
type Result[T any] struct {
	Value    T
	Stale    bool
	StoredAt time.Time
}

type entry[T any] struct {
	Value    T         `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// StaleCache serves a value while it is younger than ttl, reloads it once it
// is older, and keeps serving the old copy for up to maxStale if reloading
// fails.
type StaleCache[T any] struct {
	store    Store
	key      string
	ttl      time.Duration
	maxStale time.Duration
	now      func() time.Time
}

// Option customises a StaleCache.
type Option func(*options)

type options struct {
	maxStale time.Duration
	now      func() time.Time
}

// WithMaxStale bounds how long an expired copy may still be served.
func WithMaxStale(d time.Duration) Option {
	return func(o *options) { o.maxStale = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New[T any](store Store, key string, ttl time.Duration, opts ...Option) (*StaleCache[T], error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if key == "" {
		return nil, errors.New("cache key is required")
	}
	if ttl <= 0 {
		return nil, errors.New("cache ttl must be positive")
	}
	o := options{maxStale: 7 * 24 * time.Hour, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &StaleCache[T]{store: store, key: key, ttl: ttl, maxStale: o.maxStale, now: o.now}, nil
}

// Get returns the cached value, loading it when missing or expired.
func (c *StaleCache[T]) Get(ctx context.Context, load Loader[T]) (Result[T], error) {
	cached, found := c.read(ctx)
	if found && c.now().Sub(cached.StoredAt) < c.ttl {
		return Result[T]{Value: cached.Value, StoredAt: cached.StoredAt}, nil
	}

	value, err := load(ctx)
	if err != nil {
		if found {
			return Result[T]{Value: cached.Value, Stale: true, StoredAt: cached.StoredAt}, nil
		}
		var zero T
		return Result[T]{Value: zero}, fmt.Errorf("load %s: %w", c.key, err)
	}

	storedAt := c.now()
	c.write(ctx, entry[T]{Value: value, StoredAt: storedAt})
	return Result[T]{Value: value, StoredAt: storedAt}, nil
}

// Invalidate drops the cached copy, stale fallback included.
func (c *StaleCache[T]) Invalidate(ctx context.Context) error {
	return c.store.Del(ctx, c.key)
}

func (c *StaleCache[T]) read(ctx context.Context) (entry[T], bool) {
	var e entry[T]
	raw, err := c.store.Get(ctx, c.key)
	if err != nil {
		// Any read failure degrades to a miss.
		return e, false
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return e, false
	}
	if c.maxStale > 0 && c.now().Sub(e.StoredAt) > c.ttl+c.maxStale {
		return e, false
	}
	return e, true
}

func (c *StaleCache[T]) write(ctx context.Context, e entry[T]) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	expiry := time.Duration(0)
	if c.maxStale > 0 {
		expiry = c.ttl + c.maxStale
	}
	_ = c.store.Set(ctx, c.key, string(raw), expiry)
}
