package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

// Order is a buyer purchase from a single seller, produced by checkout.
type Order struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutID       uuid.UUID              `gorm:"column:checkout_id;type:uuid;not null;index"`
	BuyerID          uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID         uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;index"`
	SellerKind       enums.SellerKind       `gorm:"column:seller_kind;type:text;not null"`
	Status           enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'pending'"`
	Escrow           bool                   `gorm:"column:escrow;not null;default:false"`
	TotalAmount      int64                  `gorm:"column:total_amount;not null;check:chk_orders_total_positive,total_amount > 0"`
	Currency         string                 `gorm:"column:currency;type:text;not null;default:'NGN'"`
	DeliveryLocation string                 `gorm:"column:delivery_location;type:text;not null"`
	Resolution       *types.OrderResolution `gorm:"column:resolution;type:jsonb"`
	AcceptedAt       *time.Time             `gorm:"column:accepted_at"`
	DeliveredAt      *time.Time             `gorm:"column:delivered_at"`
	FulfilledAt      *time.Time             `gorm:"column:fulfilled_at"`
	CancelledAt      *time.Time             `gorm:"column:cancelled_at"`
	Items            []OrderLineItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// SellerAccountRole is the wallet role the seller is settled into.
func (o Order) SellerAccountRole() enums.AccountRole {
	return o.SellerKind.AccountRole()
}
