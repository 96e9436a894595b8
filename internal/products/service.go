package products

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/pagination"
)

// Service manages seller listings. Only vendors and agents sell.
type Service interface {
	CreateProduct(ctx context.Context, sellerID uuid.UUID, role enums.Role, input CreateProductInput) (*models.Product, error)
	Restock(ctx context.Context, sellerID, productID uuid.UUID, qty int) (*models.Product, error)
	Reprice(ctx context.Context, sellerID, productID uuid.UUID, price int64) (*models.Product, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, params ListParams) (*ProductListResult, error)
}

type CreateProductInput struct {
	Name  string
	Price int64
	Stock int
}

type ListParams struct {
	SellerID    uuid.UUID
	InStockOnly bool
	Cursor      string
	Limit       int
}

type ProductListResult struct {
	Items  []models.Product `json:"items"`
	Cursor string           `json:"cursor"`
}

var errProductNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "product not found")

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateProduct(ctx context.Context, sellerID uuid.UUID, role enums.Role, input CreateProductInput) (*models.Product, error) {
	kind, ok := enums.SellerKindFor(role)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and agents can list products")
	}
	product := &models.Product{
		SellerID:   sellerID,
		SellerKind: kind,
		Name:       strings.TrimSpace(input.Name),
		Price:      input.Price,
		Stock:      input.Stock,
	}
	if err := validateListing(product); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return product, nil
}

func validateListing(p *models.Product) error {
	switch {
	case p.SellerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	case p.Name == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case p.Price <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	case p.Stock < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}
	return nil
}

func (s *service) Restock(ctx context.Context, sellerID, productID uuid.UUID, qty int) (*models.Product, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	found, err := s.repo.Restock(ctx, productID, sellerID, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restock product")
	}
	if !found {
		return nil, errProductNotFound
	}
	return s.GetProduct(ctx, productID)
}

func (s *service) Reprice(ctx context.Context, sellerID, productID uuid.UUID, price int64) (*models.Product, error) {
	if price <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	found, err := s.repo.Reprice(ctx, productID, sellerID, price)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reprice product")
	}
	if !found {
		return nil, errProductNotFound
	}
	return s.GetProduct(ctx, productID)
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errProductNotFound
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context, params ListParams) (*ProductListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, ListFilter{SellerID: params.SellerID, InStockOnly: params.InStockOnly}, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	items, next := pagination.Trim(rows, params.Limit)
	if items == nil {
		items = []models.Product{}
	}
	return &ProductListResult{Items: items, Cursor: next}, nil
}
