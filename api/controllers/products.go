package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/api/responses"
	"github.com/angelmondragon/escrow-backend/api/validators"
	"github.com/angelmondragon/escrow-backend/internal/products"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

const maxProductName = 160

var errProductsUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable")

type createProductRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=160"`
	Price int64  `json:"price" validate:"required,kobo"`
	Stock int    `json:"stock" validate:"min=0"`
}

type restockRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type repriceRequest struct {
	Price int64 `json:"price" validate:"required,kobo"`
}

func CreateProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errProductsUnavailable)
			return
		}
		seller, err := Caller(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		product, err := svc.CreateProduct(ctx, seller.ID, seller.Role, products.CreateProductInput{
			Name:  validators.SanitizeString(payload.Name, maxProductName),
			Price: payload.Price,
			Stock: payload.Stock,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

// RestockProduct serves POST /products/{productId}/restock for the owning
// seller.
func RestockProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return ownedProductUpdate(svc, logg, func(r *http.Request, sellerID, productID uuid.UUID) (any, error) {
		var payload restockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Restock(r.Context(), sellerID, productID, payload.Quantity)
	})
}

// RepriceProduct serves POST /products/{productId}/price. Existing orders
// keep the price they were placed at.
func RepriceProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return ownedProductUpdate(svc, logg, func(r *http.Request, sellerID, productID uuid.UUID) (any, error) {
		var payload repriceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Reprice(r.Context(), sellerID, productID, payload.Price)
	})
}

func ownedProductUpdate(svc products.Service, logg *logger.Logger, apply func(r *http.Request, sellerID, productID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errProductsUnavailable)
			return
		}
		seller, err := Caller(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		product, err := apply(r, seller.ID, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// GetProduct is public.
func GetProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errProductsUnavailable)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		product, err := svc.GetProduct(ctx, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// ListProducts serves GET /products?seller_id=&inStock=&limit=&cursor=.
// Without seller_id the caller's own listings are returned.
func ListProducts(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errProductsUnavailable)
			return
		}
		sellerID, err := validators.ParseQueryUUID(r, "seller_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if sellerID == uuid.Nil {
			caller, err := Caller(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			sellerID = caller.ID
		}
		inStock, err := validators.ParseQueryBool(r, "inStock")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.ListProducts(ctx, products.ListParams{
			SellerID:    sellerID,
			InStockOnly: inStock,
			Cursor:      page.Cursor,
			Limit:       page.Limit,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
