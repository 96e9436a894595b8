package models

import "time"

// LedgerExportCursor remembers how far a ledger export has progressed.
type LedgerExportCursor struct {
	Name          string    `gorm:"column:name;type:text;primaryKey"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at;not null"`
	LastReference string    `gorm:"column:last_reference;type:text;not null;default:''"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
