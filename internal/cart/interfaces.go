package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart
// service and by checkout.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	UpsertItem(ctx context.Context, item *models.CartItem) error
	RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (int64, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}
