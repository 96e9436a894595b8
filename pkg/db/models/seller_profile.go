package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// SellerProfile tracks per-seller settlement counters.
type SellerProfile struct {
	SellerID              uuid.UUID        `gorm:"column:seller_id;type:uuid;primaryKey"`
	Kind                  enums.SellerKind `gorm:"column:kind;type:text;primaryKey"`
	CompletedTransactions int64            `gorm:"column:completed_transactions;not null;default:0"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
