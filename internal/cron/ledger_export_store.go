package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

type ledgerExportStore interface {
	LoadCursor(ctx context.Context, name string) (*models.LedgerExportCursor, error)
	ListSettledAfter(ctx context.Context, cursor *models.LedgerExportCursor, limit int) ([]models.Transaction, error)
	SaveCursor(ctx context.Context, cursor *models.LedgerExportCursor) error
}

type gormLedgerExportStore struct {
	db *gorm.DB
}

// NewLedgerExportStore reads settled transactions and persists the export
// cursor in the primary database.
func NewLedgerExportStore(db *gorm.DB) ledgerExportStore {
	return &gormLedgerExportStore{db: db}
}

func (s *gormLedgerExportStore) LoadCursor(ctx context.Context, name string) (*models.LedgerExportCursor, error) {
	var cursor models.LedgerExportCursor
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.LedgerExportCursor{Name: name, LastUpdatedAt: time.Unix(0, 0).UTC()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (s *gormLedgerExportStore) ListSettledAfter(ctx context.Context, cursor *models.LedgerExportCursor, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status IN ?", []enums.TransactionStatus{enums.TransactionStatusSuccessful, enums.TransactionStatusFailed}).
		Where("updated_at > ? OR (updated_at = ? AND reference > ?)", cursor.LastUpdatedAt, cursor.LastUpdatedAt, cursor.LastReference).
		Order("updated_at ASC").
		Order("reference ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *gormLedgerExportStore) SaveCursor(ctx context.Context, cursor *models.LedgerExportCursor) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_updated_at", "last_reference", "updated_at"}),
	}).Create(cursor).Error
}
