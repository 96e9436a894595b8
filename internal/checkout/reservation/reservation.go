// Package reservation holds the conditional stock updates that keep
// Product.Reserved consistent with in-flight orders.
package reservation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
)

// InventoryReservationRequest asks for Qty units of ProductID.
type InventoryReservationRequest struct {
	CartItemID uuid.UUID
	ProductID  uuid.UUID
	Qty        int
}

// InventoryReservationResult reports the outcome for one request.
type InventoryReservationResult struct {
	CartItemID uuid.UUID
	ProductID  uuid.UUID
	Qty        int
	Reserved   bool
	Available  int
	Reason     string
}

// ReserveInventory increments reserved stock for each request only while
// stock - reserved still covers it. Requests are applied in order, so two
// requests for the same product compete for the same units.
func ReserveInventory(ctx context.Context, tx *gorm.DB, requests []InventoryReservationRequest) ([]InventoryReservationResult, error) {
	if err := validate(requests); err != nil {
		return nil, err
	}

	results := make([]InventoryReservationResult, 0, len(requests))
	for _, req := range requests {
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND stock - reserved >= ?", req.ProductID, req.Qty).
			UpdateColumn("reserved", gorm.Expr("reserved + ?", req.Qty))
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve inventory")
		}

		result := InventoryReservationResult{
			CartItemID: req.CartItemID,
			ProductID:  req.ProductID,
			Qty:        req.Qty,
			Reserved:   res.RowsAffected == 1,
		}
		if !result.Reserved {
			result.Available, result.Reason = shortfall(ctx, tx, req.ProductID)
		}
		results = append(results, result)
	}
	return results, nil
}

// ReleaseInventory returns reserved units to available stock.
func ReleaseInventory(ctx context.Context, tx *gorm.DB, requests []InventoryReservationRequest) error {
	if err := validate(requests); err != nil {
		return err
	}
	for _, req := range requests {
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND reserved >= ?", req.ProductID, req.Qty).
			UpdateColumn("reserved", gorm.Expr("reserved - ?", req.Qty))
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "release inventory")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reserved stock below release quantity").
				WithDetails(map[string]any{"product_id": req.ProductID, "qty": req.Qty})
		}
	}
	return nil
}

// FinalizeInventory removes sold units from both stock and reserved.
func FinalizeInventory(ctx context.Context, tx *gorm.DB, requests []InventoryReservationRequest) error {
	if err := validate(requests); err != nil {
		return err
	}
	for _, req := range requests {
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND reserved >= ?", req.ProductID, req.Qty).
			UpdateColumns(map[string]any{
				"stock":    gorm.Expr("stock - ?", req.Qty),
				"reserved": gorm.Expr("reserved - ?", req.Qty),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "finalize inventory")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reserved stock below sold quantity").
				WithDetails(map[string]any{"product_id": req.ProductID, "qty": req.Qty})
		}
	}
	return nil
}

func validate(requests []InventoryReservationRequest) error {
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": req.ProductID})
		}
	}
	return nil
}

func shortfall(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, string) {
	var product models.Product
	if err := tx.WithContext(ctx).Select("stock", "reserved").First(&product, "id = ?", productID).Error; err != nil {
		return 0, "product unavailable"
	}
	return product.Available(), "insufficient stock"
}
