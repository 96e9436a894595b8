package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
)

// SellerKey identifies one seller of one kind.
type SellerKey struct {
	SellerID uuid.UUID
	Kind     enums.SellerKind
}

// SellerGroup is the part of a cart bought from a single seller.
type SellerGroup struct {
	Key   SellerKey
	Items []models.CartItem
	Total int64
}

// GroupCartItemsBySeller groups priced cart items by seller, keeping the
// order in which each seller first appears in the cart.
func GroupCartItemsBySeller(items []models.CartItem) []SellerGroup {
	index := make(map[SellerKey]int, len(items))
	groups := make([]SellerGroup, 0)
	for _, item := range items {
		key := SellerKey{SellerID: item.Product.SellerID, Kind: item.Product.SellerKind}
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, SellerGroup{Key: key})
		}
		groups[pos].Items = append(groups[pos].Items, item)
		groups[pos].Total += LineTotal(item)
	}
	return groups
}

// LineTotal prices an item at its product's current price.
func LineTotal(item models.CartItem) int64 {
	return item.Product.Price * int64(item.Quantity)
}

// ValidateCartItems rejects carts with missing products or non-positive
// quantities before any money moves.
func ValidateCartItems(buyerID uuid.UUID, items []models.CartItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, item := range items {
		if item.Product == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item references a missing product").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if item.Product.Price <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item has no price").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if item.Product.SellerID == buyerID {
			return pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own product").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
	}
	return nil
}
