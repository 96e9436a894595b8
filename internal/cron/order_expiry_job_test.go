package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

type fakePendingOrders struct {
	cutoff time.Time
	limit  int
	orders []models.Order
}

func (f *fakePendingOrders) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.orders, nil
}

type fakeExpirer struct {
	failFor  uuid.UUID
	expired  []uuid.UUID
	attempts int
}

func (f *fakeExpirer) Expire(_ context.Context, orderID uuid.UUID) (bool, error) {
	f.attempts++
	if orderID == f.failFor {
		return false, errors.New("ledger unavailable")
	}
	f.expired = append(f.expired, orderID)
	return true, nil
}

func TestOrderExpiryJobExpiresEveryCandidate(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	failing := uuid.New()
	reader := &fakePendingOrders{orders: []models.Order{{ID: uuid.New()}, {ID: failing}, {ID: uuid.New()}}}
	expirer := &fakeExpirer{failFor: failing}

	jobIface, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:    logger.Nop(),
		Orders:    reader,
		Expirer:   expirer,
		TTL:       48 * time.Hour,
		BatchSize: 25,
	})
	if err != nil {
		t.Fatalf("NewOrderExpiryJob: %v", err)
	}
	job := jobIface.(*orderExpiryJob)
	job.now = func() time.Time { return now }

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected the failed expiry to surface")
	}
	if !reader.cutoff.Equal(now.Add(-48 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", reader.cutoff)
	}
	if reader.limit != 25 {
		t.Fatalf("unexpected batch size %d", reader.limit)
	}
	if expirer.attempts != 3 || len(expirer.expired) != 2 {
		t.Fatalf("expected 3 attempts and 2 expiries, got %d and %d", expirer.attempts, len(expirer.expired))
	}
}
