// Package redistest provides in-memory stand-ins for the redis surfaces
// package tests depend on.
package redistest

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a goroutine-safe map standing in for redis. TTLs are recorded but
// never expire.
type Store struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
	TTLs     map[string]time.Duration
	// SetNXErr, when set, is returned by every SetNX call.
	SetNXErr error
}

func New() *Store {
	return &Store{values: map[string]string{}, counters: map[string]int64{}, TTLs: map[string]time.Duration{}}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *Store) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = toString(value)
	s.TTLs[key] = ttl
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetNXErr != nil {
		return false, s.SetNXErr
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = toString(value)
	s.TTLs[key] = ttl
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.TTLs, key)
	}
	return nil
}

func (s *Store) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[key] != owner {
		return false, nil
	}
	delete(s.values, key)
	delete(s.TTLs, key)
	return true, nil
}

func (s *Store) IdempotencyKey(scope, id string) string {
	return "esc:idempotency:" + scope + ":" + id
}

func (s *Store) LockKey(name string) string {
	return "esc:lock:" + name
}

// FixedWindowAllow counts calls per scope; windows never roll over.
func (s *Store) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[scope]++
	s.TTLs["esc:rate_limit:"+scope] = window
	count := s.counters[scope]
	return count <= limit, count, nil
}

// Has reports whether key is currently stored.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return "1"
	}
}
