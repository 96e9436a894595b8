package reservation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
)

func seedProduct(t *testing.T, conn *gorm.DB, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		SellerID:   uuid.New(),
		SellerKind: enums.SellerKindVendor,
		Name:       "Garri",
		Price:      150000,
		Stock:      stock,
	}
	require.NoError(t, conn.Create(product).Error)
	return product
}

func reload(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", id).Error)
	return product
}

func TestReserveInventory(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	productA := seedProduct(t, conn, 5)
	productB := seedProduct(t, conn, 1)

	requests := []InventoryReservationRequest{
		{CartItemID: uuid.New(), ProductID: productA.ID, Qty: 3},
		{CartItemID: uuid.New(), ProductID: productA.ID, Qty: 4},
		{CartItemID: uuid.New(), ProductID: productB.ID, Qty: 1},
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		results, err := ReserveInventory(ctx, tx, requests)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.True(t, results[0].Reserved)
		assert.Empty(t, results[0].Reason)
		assert.False(t, results[1].Reserved)
		assert.Equal(t, "insufficient stock", results[1].Reason)
		assert.Equal(t, 2, results[1].Available)
		assert.True(t, results[2].Reserved)
		return nil
	})
	require.NoError(t, err)

	a := reload(t, conn, productA.ID)
	assert.Equal(t, 5, a.Stock)
	assert.Equal(t, 3, a.Reserved)
	b := reload(t, conn, productB.ID)
	assert.Equal(t, 0, b.Available())
}

func TestReserveInventoryInvalidQty(t *testing.T) {
	conn := dbtest.Open(t)
	product := seedProduct(t, conn, 5)

	_, err := ReserveInventory(context.Background(), conn, []InventoryReservationRequest{{ProductID: product.ID, Qty: 0}})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestReserveUnknownProduct(t *testing.T) {
	conn := dbtest.Open(t)
	results, err := ReserveInventory(context.Background(), conn, []InventoryReservationRequest{{ProductID: uuid.New(), Qty: 1}})
	require.NoError(t, err)
	assert.False(t, results[0].Reserved)
	assert.Equal(t, "product unavailable", results[0].Reason)
}

func TestReleaseAndFinalize(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	product := seedProduct(t, conn, 4)
	req := []InventoryReservationRequest{{ProductID: product.ID, Qty: 2}}

	_, err := ReserveInventory(ctx, conn, req)
	require.NoError(t, err)
	_, err = ReserveInventory(ctx, conn, req)
	require.NoError(t, err)

	require.NoError(t, ReleaseInventory(ctx, conn, req))
	released := reload(t, conn, product.ID)
	assert.Equal(t, 4, released.Stock)
	assert.Equal(t, 2, released.Reserved)

	require.NoError(t, FinalizeInventory(ctx, conn, req))
	sold := reload(t, conn, product.ID)
	assert.Equal(t, 2, sold.Stock)
	assert.Equal(t, 0, sold.Reserved)

	err = ReleaseInventory(ctx, conn, req)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	err = FinalizeInventory(ctx, conn, req)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}
