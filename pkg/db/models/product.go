package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// Product is a seller listing. Available stock is Stock - Reserved.
type Product struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	SellerID   uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;index"`
	SellerKind enums.SellerKind `gorm:"column:seller_kind;type:text;not null"`
	Name       string           `gorm:"column:name;type:text;not null"`
	Price      int64            `gorm:"column:price;not null;check:chk_products_price_positive,price > 0"`
	Stock      int              `gorm:"column:stock;not null;default:0;check:chk_products_stock_non_negative,stock >= 0"`
	Reserved   int              `gorm:"column:reserved;not null;default:0;check:chk_products_reserved_within_stock,reserved >= 0 AND reserved <= stock"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Available returns the quantity that can still be reserved.
func (p Product) Available() int {
	return p.Stock - p.Reserved
}
