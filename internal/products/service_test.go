package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
)

func TestCreateProductTagsSellerKind(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	seller := uuid.New()

	created, err := svc.CreateProduct(context.Background(), seller, enums.RoleAgent, CreateProductInput{Name: " Rice ", Price: 450000, Stock: 3})
	require.NoError(t, err)
	assert.Equal(t, enums.SellerKindAgent, created.SellerKind)
	assert.Equal(t, "Rice", created.Name)
	assert.Equal(t, 3, created.Available())
}

func TestCreateProductValidation(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	ctx := context.Background()
	seller := uuid.New()

	cases := []struct {
		name  string
		role  enums.Role
		input CreateProductInput
		code  pkgerrors.Code
	}{
		{name: "buyer cannot sell", role: enums.RoleBuyer, input: CreateProductInput{Name: "x", Price: 1}, code: pkgerrors.CodeForbidden},
		{name: "blank name", role: enums.RoleVendor, input: CreateProductInput{Name: " ", Price: 1}, code: pkgerrors.CodeValidation},
		{name: "zero price", role: enums.RoleVendor, input: CreateProductInput{Name: "x"}, code: pkgerrors.CodeValidation},
		{name: "negative stock", role: enums.RoleVendor, input: CreateProductInput{Name: "x", Price: 1, Stock: -1}, code: pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, seller, tc.role, tc.input)
			assert.Equal(t, tc.code, pkgerrors.CodeOf(err))
		})
	}
}

func TestRestockOnlyForOwner(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	ctx := context.Background()
	seller := uuid.New()

	created, err := svc.CreateProduct(ctx, seller, enums.RoleVendor, CreateProductInput{Name: "Yam", Price: 1000, Stock: 1})
	require.NoError(t, err)

	_, err = svc.Restock(ctx, uuid.New(), created.ID, 5)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	updated, err := svc.Restock(ctx, seller, created.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Stock)
}

func TestListProductsPaginates(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	ctx := context.Background()
	seller := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := svc.CreateProduct(ctx, seller, enums.RoleVendor, CreateProductInput{Name: "Item", Price: 100, Stock: 1})
		require.NoError(t, err)
	}

	page, err := svc.ListProducts(ctx, ListParams{SellerID: seller, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.Cursor)

	rest, err := svc.ListProducts(ctx, ListParams{SellerID: seller, Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
	assert.Empty(t, rest.Cursor)

	_, err = svc.GetProduct(ctx, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestListProductsInStockOnly(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()
	seller := uuid.New()

	soldOut, err := svc.CreateProduct(ctx, seller, enums.RoleVendor, CreateProductInput{Name: "Garri", Price: 2500, Stock: 0})
	require.NoError(t, err)
	reserved, err := svc.CreateProduct(ctx, seller, enums.RoleVendor, CreateProductInput{Name: "Beans", Price: 3000, Stock: 2})
	require.NoError(t, err)
	require.NoError(t, conn.Model(reserved).UpdateColumn("reserved", 2).Error)
	open, err := svc.CreateProduct(ctx, seller, enums.RoleVendor, CreateProductInput{Name: "Palm oil", Price: 9000, Stock: 4})
	require.NoError(t, err)

	page, err := svc.ListProducts(ctx, ListParams{SellerID: seller, InStockOnly: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, open.ID, page.Items[0].ID)
	assert.NotEqual(t, soldOut.ID, page.Items[0].ID)
}

func TestRepriceOnlyForOwner(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)
	ctx := context.Background()
	seller := uuid.New()

	created, err := svc.CreateProduct(ctx, seller, enums.RoleVendor, CreateProductInput{Name: "Yam", Price: 1000, Stock: 1})
	require.NoError(t, err)

	_, err = svc.Reprice(ctx, uuid.New(), created.ID, 1500)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	_, err = svc.Reprice(ctx, seller, created.ID, 0)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	updated, err := svc.Reprice(ctx, seller, created.ID, 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), updated.Price)
}
