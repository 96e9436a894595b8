package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

// Transaction is an append-only ledger entry. Only Status (and UpdatedAt) may
// change, and only from pending to a terminal status.
type Transaction struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Reference     string                    `gorm:"column:reference;type:text;not null;uniqueIndex:uq_transactions_reference"`
	Kind          enums.TransactionKind     `gorm:"column:kind;type:text;not null"`
	Status        enums.TransactionStatus   `gorm:"column:status;type:text;not null;index:idx_transactions_status_updated"`
	Amount        int64                     `gorm:"column:amount;not null;check:chk_transactions_amount_positive,amount > 0"`
	Currency      string                    `gorm:"column:currency;type:text;not null;default:'NGN'"`
	FromAccount   *string                   `gorm:"column:from_account;type:text;index"`
	ToAccount     *string                   `gorm:"column:to_account;type:text;index"`
	InitiatorID   uuid.UUID                 `gorm:"column:initiator_id;type:uuid;not null"`
	InitiatorRole enums.Role                `gorm:"column:initiator_role;type:text;not null"`
	OrderID       *uuid.UUID                `gorm:"column:order_id;type:uuid;index"`
	DisputeID     *uuid.UUID                `gorm:"column:dispute_id;type:uuid;index"`
	PayoutID      *uuid.UUID                `gorm:"column:payout_id;type:uuid;index"`
	BalanceAfter  *int64                    `gorm:"column:balance_after"`
	Description   string                    `gorm:"column:description;type:text;not null;default:''"`
	Metadata      types.TransactionMetadata `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime;index:idx_transactions_status_updated"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
