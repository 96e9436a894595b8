package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/api/validators"
	cartsvc "github.com/angelmondragon/escrow-backend/internal/cart"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

type cartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// GetCart returns the buyer's cart priced at current listing prices.
func GetCart(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return partyHandler(logg, svc != nil, "cart", http.StatusOK, func(r *http.Request, buyer ledger.Party) (any, error) {
		return svc.Get(r.Context(), buyer.ID)
	})
}

// AddCartItem sets, not increments, the quantity held for a product.
func AddCartItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return partyHandler(logg, svc != nil, "cart", http.StatusOK, func(r *http.Request, buyer ledger.Party) (any, error) {
		var payload cartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), buyer.ID, cartsvc.AddItemInput{
			ProductID: payload.ProductID,
			Quantity:  payload.Quantity,
		})
	})
}

func RemoveCartItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return partyHandler(logg, svc != nil, "cart", http.StatusOK, func(r *http.Request, buyer ledger.Party) (any, error) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), buyer.ID, productID)
	})
}
