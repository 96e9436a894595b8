package orders

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
)

type recordingNotifier struct {
	mu       sync.Mutex
	requests []notifications.Request
}

func (r *recordingNotifier) Notify(_ context.Context, requests ...notifications.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, requests...)
}

func (r *recordingNotifier) types() []enums.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.NotificationType, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req.Type)
	}
	return out
}

type harness struct {
	conn     *gorm.DB
	ledger   ledger.Service
	notifier *recordingNotifier
	svc      Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	h := &harness{conn: conn, ledger: ledgerSvc, notifier: &recordingNotifier{}}
	h.svc, err = NewService(ServiceParams{
		DB:       db.Wrap(conn),
		Repo:     NewRepository(conn),
		Ledger:   ledgerSvc,
		Notifier: h.notifier,
		Events:   outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Clock:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return h
}

type fixture struct {
	order   *models.Order
	buyer   ledger.Party
	seller  ledger.Party
	product *models.Product
}

// seedOrder creates an escrowed order in the given status with its stock
// reserved, as checkout would have left it.
func (h *harness) seedOrder(t *testing.T, status enums.OrderStatus, amount int64) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		buyer:  ledger.Party{ID: uuid.New(), Role: enums.RoleBuyer},
		seller: ledger.Party{ID: uuid.New(), Role: enums.RoleVendor},
	}
	f.product = &models.Product{SellerID: f.seller.ID, SellerKind: enums.SellerKindVendor, Name: "Palm oil", Price: amount, Stock: 3, Reserved: 1}
	require.NoError(t, h.conn.Create(f.product).Error)

	_, err := h.ledger.EnsureWallet(ctx, nil, f.buyer.ID, enums.AccountRoleBuyer)
	require.NoError(t, err)

	order := &models.Order{
		CheckoutID:       uuid.New(),
		BuyerID:          f.buyer.ID,
		SellerID:         f.seller.ID,
		SellerKind:       enums.SellerKindVendor,
		Status:           status,
		Escrow:           true,
		TotalAmount:      amount,
		DeliveryLocation: "Wuse II, Abuja",
		Items: []models.OrderLineItem{{
			ProductID: f.product.ID,
			Name:      f.product.Name,
			Quantity:  1,
			UnitPrice: amount,
			LineTotal: amount,
		}},
	}
	created, err := NewRepository(h.conn).CreateOrder(ctx, order)
	require.NoError(t, err)
	f.order = created
	return f
}

func (h *harness) balance(t *testing.T, owner uuid.UUID, role enums.AccountRole) int64 {
	t.Helper()
	wallet, err := h.ledger.GetWallet(context.Background(), owner, role)
	if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
		return 0
	}
	require.NoError(t, err)
	return wallet.Balance
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := NewRepository(h.conn).FindOrder(context.Background(), id)
	require.NoError(t, err)
	return order
}

func TestConfirmDeliveryReleasesEscrowToSeller(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder(t, enums.OrderStatusDelivered, 1_000_000)

	order, err := h.svc.ConfirmDelivery(context.Background(), f.buyer, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFulfilled, order.Status)
	require.NotNil(t, order.FulfilledAt)

	assert.EqualValues(t, 1_000_000, h.balance(t, f.seller.ID, enums.AccountRoleVendor))
	assert.Zero(t, h.balance(t, f.buyer.ID, enums.AccountRoleBuyer))

	txns, err := h.ledger.ListByOrder(context.Background(), f.order.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, enums.TransactionKindTransfer, txns[0].Kind)
	assert.Equal(t, ledger.EscrowAccount, *txns[0].FromAccount)

	profile, err := NewRepository(h.conn).FindSellerProfile(context.Background(), f.seller.ID, enums.SellerKindVendor)
	require.NoError(t, err)
	assert.EqualValues(t, 1, profile.CompletedTransactions)

	var product models.Product
	require.NoError(t, h.conn.First(&product, "id = ?", f.product.ID).Error)
	assert.Equal(t, 2, product.Stock)
	assert.Zero(t, product.Reserved)

	assert.Contains(t, h.notifier.types(), enums.NotificationTypeFundsReleased)
}

func (h *harness) settledEvents(t *testing.T, orderID uuid.UUID) []payloads.OrderSettledEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ? AND event_type = ?", orderID, enums.EventOrderSettled).Find(&rows).Error)
	out := make([]payloads.OrderSettledEvent, 0, len(rows))
	for _, row := range rows {
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		var event payloads.OrderSettledEvent
		require.NoError(t, json.Unmarshal(envelope.Data, &event))
		out = append(out, event)
	}
	return out
}

func TestSettlementRecordsOneOutboxEvent(t *testing.T) {
	h := newHarness(t)
	released := h.seedOrder(t, enums.OrderStatusDelivered, 400_000)
	refunded := h.seedOrder(t, enums.OrderStatusPending, 150_000)

	_, err := h.svc.ConfirmDelivery(context.Background(), released.buyer, released.order.ID)
	require.NoError(t, err)
	_, err = h.svc.ConfirmDelivery(context.Background(), released.buyer, released.order.ID)
	require.Error(t, err)
	_, err = h.svc.Cancel(context.Background(), refunded.buyer, refunded.order.ID, "changed my mind")
	require.NoError(t, err)

	events := h.settledEvents(t, released.order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, payloads.SettlementReleased, events[0].Outcome)
	assert.EqualValues(t, 400_000, events[0].Amount)
	assert.Equal(t, enums.OrderStatusFulfilled, events[0].Status)

	events = h.settledEvents(t, refunded.order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, payloads.SettlementRefunded, events[0].Outcome)
	assert.Equal(t, "changed my mind", events[0].Reason)
	assert.Equal(t, refunded.buyer.ID, events[0].BuyerID)
}

func TestConfirmDeliveryTwiceDoesNotPayTwice(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder(t, enums.OrderStatusDelivered, 500_000)

	_, err := h.svc.ConfirmDelivery(context.Background(), f.buyer, f.order.ID)
	require.NoError(t, err)
	_, err = h.svc.ConfirmDelivery(context.Background(), f.buyer, f.order.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	assert.EqualValues(t, 500_000, h.balance(t, f.seller.ID, enums.AccountRoleVendor))
}

func TestConfirmDeliveryRequiresBuyerAndDeliveredStatus(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder(t, enums.OrderStatusOutForDelivery, 500_000)

	_, err := h.svc.ConfirmDelivery(context.Background(), f.seller, f.order.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = h.svc.ConfirmDelivery(context.Background(), f.buyer, f.order.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	_, err = h.svc.ConfirmDelivery(context.Background(), f.buyer, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestSellerDrivesFulfillmentSteps(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder(t, enums.OrderStatusPending, 250_000)
	ctx := context.Background()

	order, err := h.svc.Accept(ctx, f.seller, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusAccepted, order.Status)

	for _, want := range []enums.OrderStatus{enums.OrderStatusPreparing, enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered} {
		order, err = h.svc.Advance(ctx, f.seller, f.order.ID)
		require.NoError(t, err)
		assert.Equal(t, want, order.Status)
	}
	require.NotNil(t, h.reload(t, f.order.ID).DeliveredAt)

	_, err = h.svc.Advance(ctx, f.seller, f.order.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	agent := ledger.Party{ID: f.seller.ID, Role: enums.RoleAgent}
	_, err = h.svc.Accept(ctx, agent, f.order.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
}

func TestCancelRefundsBuyerAndReleasesStock(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder(t, enums.OrderStatusAccepted, 750_000)

	order, err := h.svc.Cancel(context.Background(), f.buyer, f.order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	assert.EqualValues(t, 750_000, h.balance(t, f.buyer.ID, enums.AccountRoleBuyer))
	assert.Zero(t, h.balance(t, f.seller.ID, enums.AccountRoleVendor))

	txns, err := h.ledger.ListByOrder(context.Background(), f.order.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, enums.TransactionKindRefund, txns[0].Kind)

	var product models.Product
	require.NoError(t, h.conn.First(&product, "id = ?", f.product.ID).Error)
	assert.Equal(t, 3, product.Stock)
	assert.Zero(t, product.Reserved)
}

func TestCancelNotAllowedOnceShipped(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder(t, enums.OrderStatusPreparing, 750_000)

	_, err := h.svc.Cancel(context.Background(), f.buyer, f.order.ID, "")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	assert.Zero(t, h.balance(t, f.buyer.ID, enums.AccountRoleBuyer))
}

func TestRejectOnlyFromPending(t *testing.T) {
	h := newHarness(t)
	pending := h.seedOrder(t, enums.OrderStatusPending, 300_000)
	accepted := h.seedOrder(t, enums.OrderStatusAccepted, 300_000)

	order, err := h.svc.Reject(context.Background(), pending.seller, pending.order.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRejected, order.Status)
	assert.EqualValues(t, 300_000, h.balance(t, pending.buyer.ID, enums.AccountRoleBuyer))

	_, err = h.svc.Reject(context.Background(), accepted.seller, accepted.order.ID, "")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestEscrowConservedAcrossOutcomes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fulfilled := h.seedOrder(t, enums.OrderStatusDelivered, 420_000)
	_, err := h.svc.ConfirmDelivery(ctx, fulfilled.buyer, fulfilled.order.ID)
	require.NoError(t, err)

	cancelled := h.seedOrder(t, enums.OrderStatusPending, 180_000)
	_, err = h.svc.Cancel(ctx, cancelled.buyer, cancelled.order.ID, "")
	require.NoError(t, err)

	for _, f := range []fixture{fulfilled, cancelled} {
		txns, err := h.ledger.ListByOrder(ctx, f.order.ID)
		require.NoError(t, err)
		var credited int64
		for _, txn := range txns {
			credited += txn.Amount
		}
		assert.Equal(t, f.order.TotalAmount, credited)
	}
}

func TestListScopesToCaller(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder(t, enums.OrderStatusPending, 100_000)
	h.seedOrder(t, enums.OrderStatusPending, 100_000)

	res, err := h.svc.List(context.Background(), f.buyer, ListParams{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, f.order.ID, res.Items[0].ID)

	res, err = h.svc.List(context.Background(), f.seller, ListParams{Status: enums.OrderStatusPending})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)

	_, err = h.svc.Get(context.Background(), ledger.Party{ID: uuid.New(), Role: enums.RoleBuyer}, f.order.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = h.svc.Get(context.Background(), ledger.Party{ID: uuid.New(), Role: enums.RoleSupport}, f.order.ID)
	assert.NoError(t, err)
}

func TestExpireRefundsOnlyPendingOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pending := h.seedOrder(t, enums.OrderStatusPending, 80_000)
	accepted := h.seedOrder(t, enums.OrderStatusAccepted, 50_000)

	stale, err := NewRepository(h.conn).ListPendingBefore(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, pending.order.ID, stale[0].ID)

	expired, err := h.svc.Expire(ctx, pending.order.ID)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.EqualValues(t, 80_000, h.balance(t, pending.buyer.ID, enums.AccountRoleBuyer))

	expired, err = h.svc.Expire(ctx, pending.order.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.EqualValues(t, 80_000, h.balance(t, pending.buyer.ID, enums.AccountRoleBuyer))

	expired, err = h.svc.Expire(ctx, accepted.order.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", pending.order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	var product models.Product
	require.NoError(t, h.conn.First(&product, "id = ?", pending.product.ID).Error)
	assert.Zero(t, product.Reserved)
}

func (h *harness) seedDispute(t *testing.T, f fixture, status enums.DisputeStatus) {
	t.Helper()
	require.NoError(t, h.conn.Create(&models.Dispute{
		Code:            "DSP-20260301-" + f.order.ID.String()[:6],
		OrderID:         f.order.ID,
		ComplainantID:   f.seller.ID,
		ComplainantRole: enums.AccountRoleVendor,
		RespondentID:    f.buyer.ID,
		RespondentRole:  enums.AccountRoleBuyer,
		Category:        enums.DisputeCategoryPaymentIssue,
		Description:     "buyer unreachable",
		Status:          status,
	}).Error)
}

func TestActiveDisputeFreezesEscrow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	accepted := h.seedOrder(t, enums.OrderStatusAccepted, 10_000)
	h.seedDispute(t, accepted, enums.DisputeStatusAssigned)
	_, err := h.svc.Cancel(ctx, accepted.buyer, accepted.order.ID, "changed my mind")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	pending := h.seedOrder(t, enums.OrderStatusPending, 20_000)
	h.seedDispute(t, pending, enums.DisputeStatusOpen)
	_, err = h.svc.Reject(ctx, pending.seller, pending.order.ID, "")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	delivered := h.seedOrder(t, enums.OrderStatusDelivered, 30_000)
	h.seedDispute(t, delivered, enums.DisputeStatusEscalated)
	_, err = h.svc.ConfirmDelivery(ctx, delivered.buyer, delivered.order.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	for _, f := range []fixture{accepted, pending, delivered} {
		assert.Zero(t, h.balance(t, f.buyer.ID, enums.AccountRoleBuyer))
		assert.Zero(t, h.balance(t, f.seller.ID, enums.AccountRoleVendor))
		assert.Equal(t, f.order.Status, h.reload(t, f.order.ID).Status)
		txns, err := h.ledger.ListByOrder(ctx, f.order.ID)
		require.NoError(t, err)
		assert.Empty(t, txns)
	}
}

func TestClosedDisputeNoLongerFreezesEscrow(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder(t, enums.OrderStatusAccepted, 10_000)
	h.seedDispute(t, f, enums.DisputeStatusClosed)

	order, err := h.svc.Cancel(context.Background(), f.buyer, f.order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	assert.EqualValues(t, 10_000, h.balance(t, f.buyer.ID, enums.AccountRoleBuyer))
}

func TestExpirySkipsDisputedOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	disputed := h.seedOrder(t, enums.OrderStatusPending, 40_000)
	h.seedDispute(t, disputed, enums.DisputeStatusUnderReview)
	idle := h.seedOrder(t, enums.OrderStatusPending, 60_000)

	stale, err := NewRepository(h.conn).ListPendingBefore(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, idle.order.ID, stale[0].ID)

	expired, err := h.svc.Expire(ctx, disputed.order.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, enums.OrderStatusPending, h.reload(t, disputed.order.ID).Status)
	assert.Zero(t, h.balance(t, disputed.buyer.ID, enums.AccountRoleBuyer))
}
