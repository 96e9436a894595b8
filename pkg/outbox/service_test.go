package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

func newTestOutbox(t *testing.T) (*gorm.DB, *Repository, *Service) {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	logg := logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard})
	return conn, repo, NewService(repo, logg)
}

func TestEmitRequiresTransaction(t *testing.T) {
	_, _, svc := newTestOutbox(t)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventNotificationRequested})
	require.Error(t, err)
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn, _, svc := newTestOutbox(t)
	aggregateID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: enums.RoleBuyer}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   aggregateID,
			Actor:         actor,
			Data:          map[string]string{"title": "Wallet funded"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", aggregateID).First(&row).Error)
	assert.Equal(t, enums.EventNotificationRequested, row.EventType)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, CurrentEnvelopeVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, enums.EventNotificationRequested, envelope.EventType)
	assert.Equal(t, aggregateID, envelope.AggregateID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"title":"Wallet funded"}`, string(envelope.Data))
}

func TestEmitInfersAggregateFromEventType(t *testing.T) {
	conn, _, svc := newTestOutbox(t)
	orderID := uuid.New()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:   enums.EventOrderSettled,
			AggregateID: orderID,
			Data:        map[string]any{"amount": 250000},
		})
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.Where("aggregate_id = ?", orderID).First(&row).Error)
	assert.Equal(t, enums.AggregateOrder, row.AggregateType)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn, _, svc := newTestOutbox(t)
	cases := map[string]DomainEvent{
		"unknown type":         {EventType: "wallet_exploded", AggregateID: uuid.New()},
		"aggregate mismatch":   {EventType: enums.EventPayoutSettled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
		"missing aggregate id": {EventType: enums.EventDisputeResolved},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := conn.Transaction(func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			})
			require.Error(t, err)
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn, _, svc := newTestOutbox(t)
	aggregateID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   aggregateID,
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", aggregateID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn, repo, svc := newTestOutbox(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, DomainEvent{
				EventType:     enums.EventNotificationRequested,
				AggregateType: enums.AggregateNotification,
				AggregateID:   uuid.New(),
				Data:          map[string]int{"n": i},
			})
		}))
	}

	var batch []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, batch[0].ID, time.Now()); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, batch[1].ID, errors.New("transient")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, batch[2].ID, errors.New("poison"), 3)
	}))
	require.Len(t, batch, 3)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		remaining, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, remaining, 1)
	assert.Equal(t, batch[1].ID, remaining[0].ID)
	assert.Equal(t, 1, remaining[0].AttemptCount)
	require.NotNil(t, remaining[0].LastError)
	assert.Equal(t, "transient", *remaining[0].LastError)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	eventID := uuid.New()
	long := make([]byte, 2048)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &msg,
		})
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, found.ErrorReason)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxLastErrorLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDLQRepositoryDeleteBefore(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	park := func(failedAt time.Time) uuid.UUID {
		eventID := uuid.New()
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return dlq.InsertTx(tx, models.OutboxDLQ{
				EventID:       eventID,
				EventType:     enums.EventPayoutSettled,
				AggregateType: enums.AggregatePayout,
				AggregateID:   uuid.New(),
				Payload:       json.RawMessage(`{}`),
				ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
				FailedAt:      failedAt,
			})
		}))
		return eventID
	}
	stale := park(cutoff.Add(-time.Hour))
	fresh := park(cutoff.Add(time.Hour))

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = dlq.DeleteBefore(tx, cutoff)
		return err
	}))
	assert.Equal(t, int64(1), deleted)

	gone, err := dlq.FindByEventID(context.Background(), stale)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := dlq.FindByEventID(context.Background(), fresh)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestDLQRequeueResetsParkedRow(t *testing.T) {
	conn, repo, svc := newTestOutbox(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	park := func(reason enums.OutboxDLQErrorReason) models.OutboxEvent {
		aggregateID := uuid.New()
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, DomainEvent{
				EventType:   enums.EventPayoutSettled,
				AggregateID: aggregateID,
				Data:        map[string]string{"reference": "PAY-1"},
			})
		}))
		var row models.OutboxEvent
		require.NoError(t, conn.Where("aggregate_id = ?", aggregateID).Take(&row).Error)
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			cause := errors.New("broker unavailable")
			if err := dlq.InsertTx(tx, row.DeadLetter(reason, cause, time.Now())); err != nil {
				return err
			}
			return repo.MarkTerminalTx(tx, row.ID, cause, 5)
		}))
		return row
	}

	parked := park(enums.OutboxDLQReasonMaxAttempts)
	require.NoError(t, dlq.Requeue(ctx, repo, parked.ID))

	var pending []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		pending, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	require.Len(t, pending, 1)
	assert.Equal(t, parked.ID, pending[0].ID)
	assert.Zero(t, pending[0].AttemptCount)
	assert.Nil(t, pending[0].LastError)

	gone, err := dlq.FindByEventID(ctx, parked.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	unsupported := park(enums.OutboxDLQReasonUnsupported)
	assert.ErrorIs(t, dlq.Requeue(ctx, repo, unsupported.ID), ErrNotReplayable)
	assert.ErrorIs(t, dlq.Requeue(ctx, repo, uuid.New()), ErrDeadLetterNotFound)
}
