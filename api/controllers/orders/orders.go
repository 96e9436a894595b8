package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/api/controllers"
	"github.com/angelmondragon/escrow-backend/api/responses"
	"github.com/angelmondragon/escrow-backend/api/validators"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	internalorders "github.com/angelmondragon/escrow-backend/internal/orders"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type orderAction func(r *http.Request, svc internalorders.Service, actor ledger.Party, orderID uuid.UUID) (*models.Order, error)

// List returns the caller's orders from their side of the trade.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := controllers.Caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalorders.ListParams{
			Limit:  page.Limit,
			Cursor: page.Cursor,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = status
		}

		list, err := svc.List(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order the caller is party to.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc internalorders.Service, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
		return svc.Get(r.Context(), actor, orderID)
	})
}

// Accept moves a pending order to accepted on behalf of its seller.
func Accept(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc internalorders.Service, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
		return svc.Accept(r.Context(), actor, orderID)
	})
}

// Advance steps an accepted order through fulfilment.
func Advance(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc internalorders.Service, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
		return svc.Advance(r.Context(), actor, orderID)
	})
}

// ConfirmDelivery releases escrow to the seller once the buyer has the goods.
func ConfirmDelivery(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc internalorders.Service, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
		return svc.ConfirmDelivery(r.Context(), actor, orderID)
	})
}

// Reject declines a pending order and refunds the buyer.
func Reject(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc internalorders.Service, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
		reason, err := decodeReason(r)
		if err != nil {
			return nil, err
		}
		return svc.Reject(r.Context(), actor, orderID, reason)
	})
}

// Cancel withdraws an order before it ships and refunds the buyer.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc internalorders.Service, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
		reason, err := decodeReason(r)
		if err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), actor, orderID, reason)
	})
}

func handle(svc internalorders.Service, logg *logger.Logger, action orderAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := controllers.Caller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		r = r.WithContext(ctx)

		order, err := action(r, svc, actor, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// decodeReason accepts an empty body.
func decodeReason(r *http.Request) (string, error) {
	var payload reasonRequest
	if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
		return "", err
	}
	return validators.SanitizeString(payload.Reason, 500), nil
}
