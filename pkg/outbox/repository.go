package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
)

const maxLastErrorLen = 1024

var errTxRequired = errors.New("transaction required")

// Repository owns the outbox_events table. Every write takes the caller's
// transaction so bookkeeping commits with the relay's batch lock.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish locks the oldest pending rows that still have
// attempts left. Rows held by another relay are skipped, not waited on.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return r.pending(tx, id).Update("published_at", at.UTC()).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return r.pending(tx, id).Updates(map[string]any{
		"last_error":    clipError(err),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	}).Error
}

// MarkTerminalTx parks a row at terminalAttempts so the fetch query never
// returns it again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return r.pending(tx, id).Updates(map[string]any{
		"last_error":    clipError(err),
		"attempt_count": terminalAttempts,
	}).Error
}

// ResetAttemptsTx makes a parked row eligible for relay again. It reports
// false when the row is missing or already published.
func (r *Repository) ResetAttemptsTx(tx *gorm.DB, id uuid.UUID) (bool, error) {
	res := r.pending(tx, id).Updates(map[string]any{
		"last_error":    nil,
		"attempt_count": 0,
	})
	return res.RowsAffected == 1, res.Error
}

// DeletePublishedBefore removes events published before cutoff. Pending and
// parked rows are never swept.
func (r *Repository) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errTxRequired
	}
	res := tx.Where("published_at IS NOT NULL AND published_at < ?", cutoff).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *Repository) pending(tx *gorm.DB, id uuid.UUID) *gorm.DB {
	return tx.Model(&models.OutboxEvent{}).Where("id = ? AND published_at IS NULL", id)
}

func clipError(err error) string {
	if err == nil {
		return ""
	}
	return clip(err.Error())
}

func clip(msg string) string {
	if len(msg) > maxLastErrorLen {
		return msg[:maxLastErrorLen]
	}
	return msg
}
