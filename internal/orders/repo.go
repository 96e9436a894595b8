package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order together with its line items.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByCheckout(ctx context.Context, checkoutID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("checkout_id = ?", checkoutID).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListOrders(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if filters.BuyerID != nil {
		query = query.Where("buyer_id = ?", *filters.BuyerID)
	}
	if filters.SellerID != nil {
		query = query.Where("seller_id = ? AND seller_kind = ?", *filters.SellerID, filters.SellerKind)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	var orders []models.Order
	if err := pagination.Apply(query, cursor, limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListPendingBefore returns the oldest pending orders placed before cutoff.
// Orders frozen by an active dispute are skipped.
func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Where("NOT EXISTS (?)", r.db.Model(&models.Dispute{}).Select("1").Scopes(activeDispute).Where("disputes.order_id = orders.id")).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// HasActiveDispute reports whether a dispute that is neither resolved nor
// closed holds the order's escrow.
func (r *repository) HasActiveDispute(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Scopes(activeDispute).
		Where("order_id = ?", orderID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func activeDispute(db *gorm.DB) *gorm.DB {
	return db.Where("disputes.status NOT IN ?", []enums.DisputeStatus{enums.DisputeStatusResolved, enums.DisputeStatusClosed})
}

// TransitionStatus moves the order to `to` only while it is still in `from`.
// Zero rows affected means another writer got there first.
func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (int64, error) {
	columns := map[string]any{"status": to}
	for key, value := range updates {
		columns[key] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(columns)
	return res.RowsAffected, res.Error
}

func (r *repository) IncrementCompletedTransactions(ctx context.Context, sellerID uuid.UUID, kind enums.SellerKind) error {
	profile := &models.SellerProfile{SellerID: sellerID, Kind: kind}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(profile).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.SellerProfile{}).
		Where("seller_id = ? AND kind = ?", sellerID, kind).
		UpdateColumn("completed_transactions", gorm.Expr("completed_transactions + ?", 1)).Error
}

func (r *repository) FindSellerProfile(ctx context.Context, sellerID uuid.UUID, kind enums.SellerKind) (*models.SellerProfile, error) {
	var profile models.SellerProfile
	if err := r.db.WithContext(ctx).Where("seller_id = ? AND kind = ?", sellerID, kind).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}
