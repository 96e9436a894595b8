package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
)

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service manages a buyer's cart.
type Service interface {
	AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) (*View, error)
	RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*View, error)
	Get(ctx context.Context, buyerID uuid.UUID) (*View, error)
}

// AddItemInput sets the quantity of one product in the cart.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// Line is a cart item priced at the product's current price.
type Line struct {
	ProductID uuid.UUID `json:"product_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	LineTotal int64     `json:"line_total"`
}

// View is the priced cart.
type View struct {
	Items []Line `json:"items"`
	Total int64  `json:"total"`
}

type service struct {
	repo     CartRepository
	products productLoader
}

// NewService builds the cart service.
func NewService(repo CartRepository, products productLoader) (Service, error) {
	if repo == nil {
		return nil, errors.New("cart repository required")
	}
	if products == nil {
		return nil, errors.New("product loader required")
	}
	return &service{repo: repo, products: products}, nil
}

func (s *service) AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) (*View, error) {
	if buyerID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and product are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if product.SellerID == buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own product")
	}
	if product.Available() < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").
			WithDetails(map[string]any{"product_id": product.ID, "available": product.Available(), "requested": input.Quantity})
	}

	if err := s.repo.UpsertItem(ctx, &models.CartItem{
		BuyerID:   buyerID,
		ProductID: product.ID,
		Quantity:  input.Quantity,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
	}
	return s.Get(ctx, buyerID)
}

func (s *service) RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*View, error) {
	rows, err := s.repo.RemoveItem(ctx, buyerID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart item")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.Get(ctx, buyerID)
}

func (s *service) Get(ctx context.Context, buyerID uuid.UUID) (*View, error) {
	items, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return Price(items), nil
}

// Price totals items at their products' current prices. Items whose product
// was not loaded are skipped.
func Price(items []models.CartItem) *View {
	view := &View{Items: make([]Line, 0, len(items))}
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		line := Line{
			ProductID: item.ProductID,
			SellerID:  item.Product.SellerID,
			Name:      item.Product.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Product.Price,
			LineTotal: item.Product.Price * int64(item.Quantity),
		}
		view.Items = append(view.Items, line)
		view.Total += line.LineTotal
	}
	return view
}
