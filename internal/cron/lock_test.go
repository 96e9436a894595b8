package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/escrow-backend/pkg/redis/redistest"
)

func TestRedisLockIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	store := redistest.New()
	first, err := NewRedisLock(store, "cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second worker acquired a held lock")
	}
	if ttl := store.TTLs["esc:lock:cron"]; ttl != time.Minute {
		t.Fatalf("unexpected lock ttl %s", ttl)
	}

	// Releasing a lock it never held must not free the owner's lease.
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if !store.Has("esc:lock:cron") {
		t.Fatal("non-owner released the lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("lock not free after release")
	}
}

func TestRedisLockReportsExpiredLease(t *testing.T) {
	ctx := context.Background()
	store := redistest.New()
	lock, err := NewRedisLock(store, "cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if _, err := lock.Acquire(ctx); err == nil {
		t.Fatal("expected re-acquire of a held lease to fail")
	}

	// simulate the TTL lapsing and another worker taking over
	if err := store.Del(ctx, lock.Key()); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := store.SetNX(ctx, lock.Key(), "other-worker", time.Minute); err != nil {
		t.Fatalf("setnx: %v", err)
	}

	if err := lock.Release(ctx); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if !store.Has(lock.Key()) {
		t.Fatal("release removed another worker's lease")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}

func TestNewRedisLockValidatesInputs(t *testing.T) {
	if _, err := NewRedisLock(nil, "cron", time.Minute); err == nil {
		t.Fatal("expected error for missing store")
	}
	if _, err := NewRedisLock(redistest.New(), "", time.Minute); err == nil {
		t.Fatal("expected error for empty name")
	}
	lock, err := NewRedisLock(redistest.New(), "cron", 0)
	if err != nil || lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v (err %v)", lock, err)
	}
}
