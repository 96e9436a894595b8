package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// BankAccount is a payout destination verified against the provider.
type BankAccount struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID       uuid.UUID `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:uq_bank_accounts_owner_number"`
	AccountNumber string    `gorm:"column:account_number;type:text;not null;uniqueIndex:uq_bank_accounts_owner_number"`
	BankCode      string    `gorm:"column:bank_code;type:text;not null;uniqueIndex:uq_bank_accounts_owner_number"`
	BankName      string    `gorm:"column:bank_name;type:text;not null;default:''"`
	AccountName   string    `gorm:"column:account_name;type:text;not null"`
	RecipientCode *string   `gorm:"column:recipient_code;type:text"`
	Verified      bool      `gorm:"column:verified;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *BankAccount) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// PayoutRequest is a withdrawal from a seller wallet to a bank account.
type PayoutRequest struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID       uuid.UUID          `gorm:"column:owner_id;type:uuid;not null;index"`
	OwnerRole     enums.AccountRole  `gorm:"column:owner_role;type:text;not null"`
	BankAccountID uuid.UUID          `gorm:"column:bank_account_id;type:uuid;not null"`
	Amount        int64              `gorm:"column:amount;not null;check:chk_payout_requests_amount_positive,amount > 0"`
	Fee           int64              `gorm:"column:fee;not null;default:0"`
	NetAmount     int64              `gorm:"column:net_amount;not null"`
	Status        enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	Reference     string             `gorm:"column:reference;type:text;not null;uniqueIndex:uq_payout_requests_reference"`
	TransferCode  *string            `gorm:"column:transfer_code;type:text"`
	FailureReason *string            `gorm:"column:failure_reason;type:text"`
	CompletedAt   *time.Time         `gorm:"column:completed_at"`
	BankAccount   *BankAccount       `gorm:"foreignKey:BankAccountID"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PayoutRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
