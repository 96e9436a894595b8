package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/cart"
	"github.com/angelmondragon/escrow-backend/internal/checkout/helpers"
	"github.com/angelmondragon/escrow-backend/internal/checkout/reservation"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/internal/orders"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

type reservationRunner interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []reservation.InventoryReservationRequest) ([]reservation.InventoryReservationResult, error)
}

type reservationEngine struct{}

func (reservationEngine) Reserve(ctx context.Context, tx *gorm.DB, requests []reservation.InventoryReservationRequest) ([]reservation.InventoryReservationResult, error) {
	return reservation.ReserveInventory(ctx, tx, requests)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, buyer ledger.Party, input CheckoutInput) (*Result, error)
}

// CheckoutInput captures the data supplied with a checkout.
type CheckoutInput struct {
	DeliveryLocation string
}

// Result describes the orders a checkout produced and the escrow debit that
// funds them.
type Result struct {
	CheckoutID  uuid.UUID           `json:"checkout_id"`
	Total       int64               `json:"total"`
	Orders      []models.Order      `json:"orders"`
	Transaction *models.Transaction `json:"transaction"`
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	DB          db.TxRunner
	Cart        cart.CartRepository
	Orders      orders.Repository
	Ledger      ledger.Service
	Reservation reservationRunner
	Notifier    notifications.Notifier
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
}

type service struct {
	db          db.TxRunner
	cartRepo    cart.CartRepository
	ordersRepo  orders.Repository
	ledger      ledger.Service
	reservation reservationRunner
	notifier    notifications.Notifier
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Cart == nil {
		return nil, errors.New("cart repository required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier required")
	}
	if params.Reservation == nil {
		params.Reservation = reservationEngine{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		db:          params.DB,
		cartRepo:    params.Cart,
		ordersRepo:  params.Orders,
		ledger:      params.Ledger,
		reservation: params.Reservation,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// Execute turns the buyer's cart into one escrow-funded order per seller.
// The debit, the stock reservations, the orders and the cart clear commit
// together or not at all.
func (s *service) Execute(ctx context.Context, buyer ledger.Party, input CheckoutInput) (*Result, error) {
	if buyer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if buyer.Role != enums.RoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can check out")
	}
	location := strings.TrimSpace(input.DeliveryLocation)
	if location == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery location is required")
	}

	checkoutID := uuid.New()
	reference := ledger.ReferenceFor(ledger.PrefixCheckout, checkoutID)
	ctx = s.logg.WithReference(ctx, reference)

	var result *Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		items, err := cartRepo.ListByBuyer(ctx, buyer.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}
		if err := helpers.ValidateCartItems(buyer.ID, items); err != nil {
			return err
		}

		groups := helpers.GroupCartItemsBySeller(items)
		orderIDs := make([]uuid.UUID, len(groups))
		orderRefs := make([]string, len(groups))
		var total int64
		for i, group := range groups {
			orderIDs[i] = uuid.New()
			orderRefs[i] = orderIDs[i].String()
			total += group.Total
		}

		wallet, err := s.ledger.EnsureWallet(ctx, tx, buyer.ID, enums.AccountRoleBuyer)
		if err != nil {
			return err
		}
		debit, err := s.ledger.Debit(ctx, tx, ledger.Entry{
			Reference:   reference,
			Kind:        enums.TransactionKindFund,
			Amount:      total,
			From:        wallet.VirtualAccount,
			To:          ledger.EscrowAccount,
			Initiator:   buyer,
			Description: "held in escrow",
			Metadata: types.TransactionMetadata{
				Source:     "checkout",
				CheckoutID: checkoutID.String(),
				OrderIDs:   orderRefs,
			},
		})
		if err != nil {
			return err
		}

		if err := s.reserve(ctx, tx, items); err != nil {
			return err
		}

		created := make([]models.Order, 0, len(groups))
		for i, group := range groups {
			order, err := ordersRepo.CreateOrder(ctx, buildOrder(orderIDs[i], checkoutID, buyer.ID, location, group))
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
			}
			created = append(created, *order)
		}

		if err := cartRepo.Clear(ctx, buyer.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}

		result = &Result{
			CheckoutID:  checkoutID,
			Total:       total,
			Orders:      created,
			Transaction: debit,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePosting(string(enums.TransactionKindFund), result.Total)
	s.logg.Info(ctx, "checkout completed")
	s.notifier.Notify(ctx, placedNotifications(result.Orders)...)
	return result, nil
}

func (s *service) reserve(ctx context.Context, tx *gorm.DB, items []models.CartItem) error {
	requests := make([]reservation.InventoryReservationRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, reservation.InventoryReservationRequest{
			CartItemID: item.ID,
			ProductID:  item.ProductID,
			Qty:        item.Quantity,
		})
	}
	results, err := s.reservation.Reserve(ctx, tx, requests)
	if err != nil {
		return err
	}

	var failed []map[string]any
	for _, res := range results {
		if res.Reserved {
			continue
		}
		failed = append(failed, map[string]any{
			"product_id": res.ProductID,
			"requested":  res.Qty,
			"available":  res.Available,
			"reason":     res.Reason,
		})
	}
	if len(failed) > 0 {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "one or more items are out of stock").
			WithDetails(map[string]any{"items": failed})
	}
	return nil
}

func buildOrder(orderID, checkoutID, buyerID uuid.UUID, location string, group helpers.SellerGroup) *models.Order {
	lines := make([]models.OrderLineItem, 0, len(group.Items))
	for _, item := range group.Items {
		lines = append(lines, models.OrderLineItem{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Name:      item.Product.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Product.Price,
			LineTotal: helpers.LineTotal(item),
		})
	}
	return &models.Order{
		ID:               orderID,
		CheckoutID:       checkoutID,
		BuyerID:          buyerID,
		SellerID:         group.Key.SellerID,
		SellerKind:       group.Key.Kind,
		Status:           enums.OrderStatusPending,
		Escrow:           true,
		TotalAmount:      group.Total,
		Currency:         "NGN",
		DeliveryLocation: location,
		Items:            lines,
	}
}

func placedNotifications(created []models.Order) []notifications.Request {
	requests := make([]notifications.Request, 0, len(created)*2)
	for _, order := range created {
		args := map[string]string{
			notifications.ArgOrderID: order.ID.String(),
			notifications.ArgAmount:  notifications.Amount(order.TotalAmount),
		}
		requests = append(requests,
			notifications.Request{
				RecipientID:   order.BuyerID,
				RecipientRole: enums.RoleBuyer,
				Type:          enums.NotificationTypeOrderPlaced,
				Args:          args,
			},
			notifications.Request{
				RecipientID:   order.SellerID,
				RecipientRole: order.SellerKind.Role(),
				Type:          enums.NotificationTypeOrderReceived,
				Args:          args,
			},
		)
	}
	return requests
}
