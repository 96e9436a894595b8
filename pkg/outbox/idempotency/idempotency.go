// Package idempotency lets at-least-once consumers skip messages they have
// already handled.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/redis"
)

const processedScope = "evt:processed"

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrKeyRequired      = errors.New("message key is required")
)

// Guard records the message keys one consumer has claimed. A claim lives
// for the guard's TTL under esc:idempotency:evt:processed:<consumer>:<key>.
type Guard struct {
	store    redis.IdempotencyStore
	consumer string
	ttl      time.Duration
}

func NewGuard(store redis.IdempotencyStore, consumer string, ttl time.Duration) (*Guard, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, ErrConsumerRequired
	case ttl <= 0:
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	return &Guard{store: store, consumer: consumer, ttl: ttl}, nil
}

func (g *Guard) Consumer() string { return g.consumer }

// CheckAndMark reports whether key was claimed before. When it was not,
// the call claims it.
func (g *Guard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	storeKey, err := g.key(key)
	if err != nil {
		return false, err
	}
	claimed, err := g.store.SetNX(ctx, storeKey, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", storeKey, err)
	}
	return !claimed, nil
}

// CheckAndMarkEvent keys the claim by outbox event id.
func (g *Guard) CheckAndMarkEvent(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, ErrKeyRequired
	}
	return g.CheckAndMark(ctx, eventID.String())
}

// Release drops a claim so redelivery of a failed message is processed.
func (g *Guard) Release(ctx context.Context, key string) error {
	storeKey, err := g.key(key)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, storeKey)
}

func (g *Guard) key(key string) (string, error) {
	if strings.Trim(key, ": ") == "" {
		return "", ErrKeyRequired
	}
	return g.store.IdempotencyKey(processedScope+":"+g.consumer, key), nil
}
