package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/checkout/reservation"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/escrow-backend/pkg/pagination"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

const expiryReason = "not accepted by the seller in time"

// Service drives the order lifecycle after checkout.
type Service interface {
	Get(ctx context.Context, actor ledger.Party, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, actor ledger.Party, params ListParams) (*ListResult, error)
	Accept(ctx context.Context, actor ledger.Party, orderID uuid.UUID) (*models.Order, error)
	Reject(ctx context.Context, actor ledger.Party, orderID uuid.UUID, reason string) (*models.Order, error)
	Advance(ctx context.Context, actor ledger.Party, orderID uuid.UUID) (*models.Order, error)
	ConfirmDelivery(ctx context.Context, actor ledger.Party, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, actor ledger.Party, orderID uuid.UUID, reason string) (*models.Order, error)
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// ListParams selects a page of the caller's orders.
type ListParams struct {
	Status enums.OrderStatus
	Cursor string
	Limit  int
}

// ListResult is one page of orders.
type ListResult struct {
	Items  []models.Order `json:"items"`
	Cursor string         `json:"cursor"`
}

// ServiceParams groups dependencies for the orders service.
type ServiceParams struct {
	DB       db.TxRunner
	Repo     Repository
	Ledger   ledger.Service
	Notifier notifications.Notifier
	// Events receives order_settled inside the settling transaction. Optional.
	Events  outbox.Emitter
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	db       db.TxRunner
	repo     Repository
	ledger   ledger.Service
	notifier notifications.Notifier
	events   outbox.Emitter
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Repo == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		ledger:   params.Ledger,
		notifier: params.Notifier,
		events:   params.Events,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      params.Clock,
	}, nil
}

func (s *service) Get(ctx context.Context, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && !isBuyer(order, actor) && !isSeller(order, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, actor ledger.Party, params ListParams) (*ListResult, error) {
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filters := ListFilters{Status: params.Status}
	if kind, ok := enums.SellerKindFor(actor.Role); ok {
		filters.SellerID = &actor.ID
		filters.SellerKind = kind
	} else if actor.Role == enums.RoleBuyer {
		filters.BuyerID = &actor.ID
	} else {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}

	rows, err := s.repo.ListOrders(ctx, filters, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	items, next := pagination.Trim(rows, params.Limit)
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) Accept(ctx context.Context, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.loadAsSeller(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return stateConflict(order, "only pending orders can be accepted")
		}
		now := s.now().UTC()
		if err := s.transition(ctx, tx, order, enums.OrderStatusAccepted, map[string]any{"accepted_at": now}); err != nil {
			return err
		}
		order.AcceptedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, order)
	return order, nil
}

func (s *service) Advance(ctx context.Context, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.loadAsSeller(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		next, ok := order.Status.NextFulfillmentStep()
		if !ok {
			return stateConflict(order, "order cannot be advanced from its current status")
		}
		updates := map[string]any{}
		now := s.now().UTC()
		if next == enums.OrderStatusDelivered {
			updates["delivered_at"] = now
		}
		if err := s.transition(ctx, tx, order, next, updates); err != nil {
			return err
		}
		if next == enums.OrderStatusDelivered {
			order.DeliveredAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, order)
	return order, nil
}

func (s *service) Reject(ctx context.Context, actor ledger.Party, orderID uuid.UUID, reason string) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.loadAsSeller(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return stateConflict(order, "only pending orders can be rejected")
		}
		return s.unwind(ctx, tx, actor, order, enums.OrderStatusRejected, reason)
	})
	if err != nil {
		return nil, err
	}
	s.afterUnwind(ctx, order)
	return order, nil
}

func (s *service) Cancel(ctx context.Context, actor ledger.Party, orderID uuid.UUID, reason string) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.load(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if !isBuyer(order, actor) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can cancel this order")
		}
		if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusAccepted {
			return stateConflict(order, "only pending or accepted orders can be cancelled")
		}
		return s.unwind(ctx, tx, actor, order, enums.OrderStatusCancelled, reason)
	})
	if err != nil {
		return nil, err
	}
	s.afterUnwind(ctx, order)
	return order, nil
}

// Expire cancels an order the seller never accepted and refunds the buyer.
// It reports false when the order has already left pending.
func (s *service) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.load(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			order = nil
			return nil
		}
		buyer := ledger.Party{ID: order.BuyerID, Role: enums.RoleBuyer}
		return s.unwind(ctx, tx, buyer, order, enums.OrderStatusCancelled, expiryReason)
	})
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeStateConflict {
			return false, nil
		}
		return false, err
	}
	if order == nil {
		return false, nil
	}
	s.afterUnwind(ctx, order)
	return true, nil
}

// ConfirmDelivery releases escrow to the seller once the buyer attests
// receipt of a delivered order.
func (s *service) ConfirmDelivery(ctx context.Context, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var order *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if !isBuyer(order, actor) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm delivery")
		}
		if order.Status != enums.OrderStatusDelivered {
			return stateConflict(order, "only delivered orders can be confirmed")
		}
		if err := s.ensureNotDisputed(ctx, repo, order); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := s.transition(ctx, tx, order, enums.OrderStatusFulfilled, map[string]any{"fulfilled_at": now}); err != nil {
			return err
		}
		order.FulfilledAt = &now

		if err := repo.IncrementCompletedTransactions(ctx, order.SellerID, order.SellerKind); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment seller counter")
		}
		if _, err := ReleaseToSeller(ctx, s.ledger, tx, actor, order, Disbursement{
			Reference:   ledger.ReferenceFor(ledger.PrefixRelease, order.ID),
			Kind:        enums.TransactionKindTransfer,
			Amount:      order.TotalAmount,
			Description: "escrow released to seller",
			Metadata:    types.TransactionMetadata{Source: "delivery_confirmation"},
		}); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, SettledEvent(actor, order, payloads.SettlementReleased, "", now)); err != nil {
			return err
		}
		return reservation.FinalizeInventory(ctx, tx, InventoryRequests(order))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePosting(string(enums.TransactionKindTransfer), order.TotalAmount)
	s.logg.Info(ctx, "escrow released to seller")
	s.notifier.Notify(ctx,
		notifications.Request{
			RecipientID:   order.SellerID,
			RecipientRole: order.SellerKind.Role(),
			Type:          enums.NotificationTypeFundsReleased,
			Args:          orderArgs(order),
		},
		notifications.Request{
			RecipientID:   order.BuyerID,
			RecipientRole: enums.RoleBuyer,
			Type:          enums.NotificationTypeOrderUpdated,
			Args:          orderArgs(order),
		},
	)
	return order, nil
}

// unwind moves a not-yet-shipped order to a cancelled state, refunds the
// buyer and releases reserved stock, all inside tx.
func (s *service) unwind(ctx context.Context, tx *gorm.DB, actor ledger.Party, order *models.Order, to enums.OrderStatus, reason string) error {
	if err := s.ensureNotDisputed(ctx, s.repo.WithTx(tx), order); err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.transition(ctx, tx, order, to, map[string]any{"cancelled_at": now}); err != nil {
		return err
	}
	order.CancelledAt = &now
	if _, err := RefundToBuyer(ctx, s.ledger, tx, actor, order, Disbursement{
		Reference:   ledger.ReferenceFor(ledger.PrefixRefund, order.ID),
		Kind:        enums.TransactionKindRefund,
		Amount:      order.TotalAmount,
		Description: "escrow refunded to buyer",
		Metadata:    types.TransactionMetadata{Source: string(to), Note: reason},
	}); err != nil {
		return err
	}
	if err := s.emit(ctx, tx, SettledEvent(actor, order, payloads.SettlementRefunded, reason, now)); err != nil {
		return err
	}
	return reservation.ReleaseInventory(ctx, tx, InventoryRequests(order))
}

// ensureNotDisputed refuses to move escrow while a dispute holds the order.
func (s *service) ensureNotDisputed(ctx context.Context, repo Repository, order *models.Order) error {
	disputed, err := repo.HasActiveDispute(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open disputes")
	}
	if disputed {
		return stateConflict(order, "order escrow is frozen by an open dispute")
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record order event")
	}
	return nil
}

func (s *service) afterUnwind(ctx context.Context, order *models.Order) {
	s.metrics.ObservePosting(string(enums.TransactionKindRefund), order.TotalAmount)
	s.logg.Info(ctx, "escrow refunded to buyer")
	s.notifier.Notify(ctx,
		notifications.Request{
			RecipientID:   order.BuyerID,
			RecipientRole: enums.RoleBuyer,
			Type:          enums.NotificationTypeOrderCancelled,
			Args:          orderArgs(order),
		},
		notifications.Request{
			RecipientID:   order.SellerID,
			RecipientRole: order.SellerKind.Role(),
			Type:          enums.NotificationTypeOrderCancelled,
			Args:          orderArgs(order),
		},
	)
}

func (s *service) notifyStatus(ctx context.Context, order *models.Order) {
	s.notifier.Notify(ctx, notifications.Request{
		RecipientID:   order.BuyerID,
		RecipientRole: enums.RoleBuyer,
		Type:          enums.NotificationTypeOrderUpdated,
		Args:          orderArgs(order),
	})
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, updates map[string]any) error {
	if !order.Status.CanTransitionTo(to) {
		return stateConflict(order, "order status transition not allowed")
	}
	rows, err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, order.Status, to, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if rows == 0 {
		return stateConflict(order, "order status changed concurrently")
	}
	order.Status = to
	return nil
}

func (s *service) loadAsSeller(ctx context.Context, tx *gorm.DB, actor ledger.Party, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, s.repo.WithTx(tx), orderID)
	if err != nil {
		return nil, err
	}
	if !isSeller(order, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
	}
	return order, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func isBuyer(order *models.Order, actor ledger.Party) bool {
	return actor.Role == enums.RoleBuyer && order.BuyerID == actor.ID
}

func isSeller(order *models.Order, actor ledger.Party) bool {
	kind, ok := enums.SellerKindFor(actor.Role)
	return ok && kind == order.SellerKind && order.SellerID == actor.ID
}

func stateConflict(order *models.Order, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
}

func orderArgs(order *models.Order) map[string]string {
	return map[string]string{
		notifications.ArgOrderID: order.ID.String(),
		notifications.ArgStatus:  order.Status.String(),
		notifications.ArgAmount:  notifications.Amount(order.TotalAmount),
	}
}
