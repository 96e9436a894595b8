package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// Wallet holds one party's spendable balance in minor currency units.
type Wallet struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID        uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:uq_wallets_owner_role"`
	Role           enums.AccountRole `gorm:"column:role;type:text;not null;uniqueIndex:uq_wallets_owner_role"`
	Balance        int64             `gorm:"column:balance;not null;default:0;check:chk_wallets_balance_non_negative,balance >= 0"`
	VirtualAccount string            `gorm:"column:virtual_account;type:text;not null;uniqueIndex:uq_wallets_virtual_account"`
	Currency       string            `gorm:"column:currency;type:text;not null;default:'NGN'"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
