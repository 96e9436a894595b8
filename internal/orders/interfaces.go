package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and seller counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByCheckout(ctx context.Context, checkoutID uuid.UUID) ([]models.Order, error)
	ListOrders(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	HasActiveDispute(ctx context.Context, orderID uuid.UUID) (bool, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (int64, error)
	IncrementCompletedTransactions(ctx context.Context, sellerID uuid.UUID, kind enums.SellerKind) error
	FindSellerProfile(ctx context.Context, sellerID uuid.UUID, kind enums.SellerKind) (*models.SellerProfile, error)
}

// ListFilters narrows an order listing to one side of the order.
type ListFilters struct {
	BuyerID    *uuid.UUID
	SellerID   *uuid.UUID
	SellerKind enums.SellerKind
	Status     enums.OrderStatus
}
