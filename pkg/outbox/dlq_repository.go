package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
)

var (
	// ErrDeadLetterNotFound is returned when no DLQ entry exists for an event.
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	// ErrNotReplayable is returned for entries that would fail again unchanged.
	ErrNotReplayable = errors.New("dead letter is not replayable")
)

// DLQRepository parks outbox rows the relay gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx parks entry in the same transaction that marks the source row
// terminal, so a row is never both pending and dead-lettered.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	if entry.ErrorMessage != nil {
		clipped := clip(*entry.ErrorMessage)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil when the event was never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &entry, nil
}

// Requeue hands a dead-lettered event back to the relay: the source row's
// attempts are reset and the DLQ entry removed in one transaction.
func (r *DLQRepository) Requeue(ctx context.Context, events *Repository, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.OutboxDLQ
		err := tx.Where("event_id = ?", eventID).Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeadLetterNotFound
		}
		if err != nil {
			return err
		}
		if !entry.ErrorReason.Replayable() {
			return fmt.Errorf("%w: %s", ErrNotReplayable, entry.ErrorReason)
		}
		reset, err := events.ResetAttemptsTx(tx, eventID)
		if err != nil {
			return fmt.Errorf("reset outbox row: %w", err)
		}
		if !reset {
			return fmt.Errorf("outbox row %s is missing or already published", eventID)
		}
		return tx.Where("id = ?", entry.ID).Delete(&models.OutboxDLQ{}).Error
	})
}

// DeleteBefore drops dead letters that failed before cutoff.
func (r *DLQRepository) DeleteBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errTxRequired
	}
	res := tx.Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}
