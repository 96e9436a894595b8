package controllers

import (
	"net/http"

	"github.com/angelmondragon/escrow-backend/api/validators"
	"github.com/angelmondragon/escrow-backend/internal/checkout"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

const maxDeliveryLocation = 512

type checkoutRequest struct {
	DeliveryLocation string `json:"delivery_location" validate:"required,max=512"`
}

// Checkout turns the buyer's cart into one order per seller, paid with a
// single wallet debit into escrow.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return partyHandler(logg, svc != nil, "checkout", http.StatusCreated, func(r *http.Request, buyer ledger.Party) (any, error) {
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Execute(r.Context(), buyer, checkout.CheckoutInput{
			DeliveryLocation: validators.SanitizeString(payload.DeliveryLocation, maxDeliveryLocation),
		})
	})
}
