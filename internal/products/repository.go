package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/pagination"
)

// ListFilter narrows a listing page.
type ListFilter struct {
	SellerID    uuid.UUID
	InStockOnly bool
}

// Repository persists listings. Stock changes that race checkout
// reservations go through conditional updates, never read-modify-write.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Take(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Restock adds qty units to a product owned by sellerID and reports
// whether a row matched.
func (r *Repository) Restock(ctx context.Context, id, sellerID uuid.UUID, qty int) (bool, error) {
	res := r.owned(ctx, id, sellerID).UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	return res.RowsAffected > 0, res.Error
}

// Reprice changes the unit price. Orders already placed keep the price
// captured on their line items.
func (r *Repository) Reprice(ctx context.Context, id, sellerID uuid.UUID, price int64) (bool, error) {
	res := r.owned(ctx, id, sellerID).Update("price", price)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.SellerID != uuid.Nil {
		query = query.Where("seller_id = ?", filter.SellerID)
	}
	if filter.InStockOnly {
		query = query.Where("stock > reserved")
	}
	var rows []models.Product
	if err := pagination.Apply(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) owned(ctx context.Context, id, sellerID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ? AND seller_id = ?", id, sellerID)
}
