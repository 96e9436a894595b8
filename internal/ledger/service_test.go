package ledger

import (
	"context"
	"strings"
	"sync"
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

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc
}

func fundedWallet(t *testing.T, svc Service, balance int64) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	wallet, err := svc.EnsureWallet(ctx, nil, uuid.New(), enums.AccountRoleBuyer)
	require.NoError(t, err)
	if balance > 0 {
		_, err = svc.Credit(ctx, nil, Entry{
			Reference: NewReference(PrefixFunding),
			Kind:      enums.TransactionKindFund,
			Amount:    balance,
			From:      ExternalAccount,
			To:        wallet.VirtualAccount,
			Initiator: Party{ID: wallet.OwnerID, Role: enums.RoleBuyer},
		})
		require.NoError(t, err)
	}
	return wallet
}

func reloadBalance(t *testing.T, conn *gorm.DB, account string) int64 {
	t.Helper()
	var wallet models.Wallet
	require.NoError(t, conn.Where("virtual_account = ?", account).First(&wallet).Error)
	return wallet.Balance
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestEnsureWalletIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	ctx := context.Background()
	owner := uuid.New()

	first, err := svc.EnsureWallet(ctx, nil, owner, enums.AccountRoleVendor)
	require.NoError(t, err)
	second, err := svc.EnsureWallet(ctx, nil, owner, enums.AccountRoleVendor)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.VirtualAccount, second.VirtualAccount)
	assert.True(t, strings.HasPrefix(first.VirtualAccount, "ESC"))
	assert.Zero(t, first.Balance)

	buyerWallet, err := svc.EnsureWallet(ctx, nil, owner, enums.AccountRoleBuyer)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, buyerWallet.ID)

	var count int64
	require.NoError(t, conn.Model(&models.Wallet{}).Where("owner_id = ?", owner).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestEnsureWalletValidatesInput(t *testing.T) {
	svc := newTestService(t, dbtest.Open(t))

	_, err := svc.EnsureWallet(context.Background(), nil, uuid.Nil, enums.AccountRoleBuyer)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = svc.EnsureWallet(context.Background(), nil, uuid.New(), enums.AccountRole("admin"))
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestGetWalletNotFound(t *testing.T) {
	svc := newTestService(t, dbtest.Open(t))
	_, err := svc.GetWallet(context.Background(), uuid.New(), enums.AccountRoleBuyer)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestCreditRecordsBalanceAfter(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	wallet := fundedWallet(t, svc, 0)

	txn, err := svc.Credit(context.Background(), nil, Entry{
		Reference: "FND-TEST-1",
		Kind:      enums.TransactionKindFund,
		Amount:    50000,
		From:      ExternalAccount,
		To:        wallet.VirtualAccount,
		Initiator: Party{ID: wallet.OwnerID, Role: enums.RoleBuyer},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.TransactionStatusSuccessful, txn.Status)
	require.NotNil(t, txn.BalanceAfter)
	assert.EqualValues(t, 50000, *txn.BalanceAfter)
	assert.EqualValues(t, 50000, reloadBalance(t, conn, wallet.VirtualAccount))
}

func TestCreditUnknownAccount(t *testing.T) {
	svc := newTestService(t, dbtest.Open(t))
	_, err := svc.Credit(context.Background(), nil, Entry{
		Reference: "FND-TEST-2",
		Kind:      enums.TransactionKindFund,
		Amount:    100,
		To:        "ESCDOESNOTEXIST00",
		Initiator: Party{ID: uuid.New(), Role: enums.RoleBuyer},
	})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestDebitInsufficientFundsLeavesBalance(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	wallet := fundedWallet(t, svc, 1000)

	_, err := svc.Debit(context.Background(), nil, Entry{
		Reference: "CHK-TEST-1",
		Kind:      enums.TransactionKindTransfer,
		Amount:    1001,
		From:      wallet.VirtualAccount,
		To:        EscrowAccount,
		Initiator: Party{ID: wallet.OwnerID, Role: enums.RoleBuyer},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficient, pkgerrors.CodeOf(err))
	assert.EqualValues(t, 1000, reloadBalance(t, conn, wallet.VirtualAccount))

	var count int64
	require.NoError(t, conn.Model(&models.Transaction{}).Where("reference = ?", "CHK-TEST-1").Count(&count).Error)
	assert.Zero(t, count)
}

func TestDebitExactBalance(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	wallet := fundedWallet(t, svc, 1000)

	txn, err := svc.Debit(context.Background(), nil, Entry{
		Reference: "CHK-TEST-2",
		Kind:      enums.TransactionKindTransfer,
		Amount:    1000,
		From:      wallet.VirtualAccount,
		To:        EscrowAccount,
		Initiator: Party{ID: wallet.OwnerID, Role: enums.RoleBuyer},
	})
	require.NoError(t, err)
	require.NotNil(t, txn.BalanceAfter)
	assert.Zero(t, *txn.BalanceAfter)
	assert.Zero(t, reloadBalance(t, conn, wallet.VirtualAccount))
}

func TestDuplicateReferenceRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	wallet := fundedWallet(t, svc, 0)
	ctx := context.Background()

	entry := Entry{
		Reference: "FND-DUP",
		Kind:      enums.TransactionKindFund,
		Amount:    700,
		From:      ExternalAccount,
		To:        wallet.VirtualAccount,
		Initiator: Party{ID: wallet.OwnerID, Role: enums.RoleBuyer},
	}
	_, err := svc.Credit(ctx, nil, entry)
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Credit(ctx, tx, entry)
		return err
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeProcessed, pkgerrors.CodeOf(err))
	assert.EqualValues(t, 700, reloadBalance(t, conn, wallet.VirtualAccount))
}

func TestCompleteMovesPendingOnce(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.Record(ctx, nil, Entry{
		Reference: "FND-PENDING",
		Kind:      enums.TransactionKindFund,
		Status:    enums.TransactionStatusPending,
		Amount:    2500,
		From:      ExternalAccount,
		Initiator: Party{ID: owner, Role: enums.RoleBuyer},
	})
	require.NoError(t, err)

	txn, err := svc.Complete(ctx, nil, "FND-PENDING", enums.TransactionStatusSuccessful)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusSuccessful, txn.Status)

	txn, err = svc.Complete(ctx, nil, "FND-PENDING", enums.TransactionStatusFailed)
	assert.Equal(t, pkgerrors.CodeProcessed, pkgerrors.CodeOf(err))
	require.NotNil(t, txn)
	assert.Equal(t, enums.TransactionStatusSuccessful, txn.Status)

	_, err = svc.Complete(ctx, nil, "FND-MISSING", enums.TransactionStatusSuccessful)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = svc.Complete(ctx, nil, "FND-PENDING", enums.TransactionStatusPending)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestRecordValidation(t *testing.T) {
	svc := newTestService(t, dbtest.Open(t))
	initiator := Party{ID: uuid.New(), Role: enums.RoleBuyer}

	cases := map[string]Entry{
		"missing reference": {Kind: enums.TransactionKindFund, Amount: 1, Initiator: initiator},
		"zero amount":       {Reference: "R-1", Kind: enums.TransactionKindFund, Initiator: initiator},
		"bad kind":          {Reference: "R-2", Kind: "gift", Amount: 1, Initiator: initiator},
		"no initiator":      {Reference: "R-3", Kind: enums.TransactionKindFund, Amount: 1},
	}
	for name, entry := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), nil, entry)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	conn := dbtest.OpenFile(t)
	svc := newTestService(t, conn)
	wallet := fundedWallet(t, svc, 1000)
	ctx := context.Background()

	const attempts = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := conn.Transaction(func(tx *gorm.DB) error {
				_, err := svc.Debit(ctx, tx, Entry{
					Reference: NewReference(PrefixCheckout),
					Kind:      enums.TransactionKindTransfer,
					Amount:    400,
					From:      wallet.VirtualAccount,
					To:        EscrowAccount,
					Initiator: Party{ID: wallet.OwnerID, Role: enums.RoleBuyer},
				})
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.EqualValues(t, 200, reloadBalance(t, conn, wallet.VirtualAccount))
}

func TestListForAccountAndOrder(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn)
	wallet := fundedWallet(t, svc, 5000)
	ctx := context.Background()
	orderID := uuid.New()

	_, err := svc.Debit(ctx, nil, Entry{
		Reference: ReferenceFor(PrefixCheckout, orderID),
		Kind:      enums.TransactionKindTransfer,
		Amount:    1200,
		From:      wallet.VirtualAccount,
		To:        EscrowAccount,
		Initiator: Party{ID: wallet.OwnerID, Role: enums.RoleBuyer},
		OrderID:   &orderID,
	})
	require.NoError(t, err)

	history, err := svc.ListForAccount(ctx, wallet.VirtualAccount, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	byOrder, err := svc.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
	assert.EqualValues(t, 1200, byOrder[0].Amount)
}

func TestReferenceHelpers(t *testing.T) {
	id := uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f")
	assert.Equal(t, "REL-6F1C2D3E4A5B4C6D8E9F0A1B2C3D4E5F", ReferenceFor(PrefixRelease, id))
	assert.Equal(t, "DSP-6F1C2D3E4A5B4C6D8E9F0A1B2C3D4E5F-buyer", ReferenceFor(PrefixDispute, id, "buyer"))
	assert.Equal(t, "FND-1-CR", CreditReference("FND-1"))
	assert.Len(t, NewVirtualAccount(), 19)
}
