package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/checkout/reservation"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

// Disbursement is one movement of escrowed order funds to a wallet.
type Disbursement struct {
	Reference   string
	Kind        enums.TransactionKind
	Amount      int64
	DisputeID   *uuid.UUID
	Description string
	Metadata    types.TransactionMetadata
}

// RefundToBuyer credits the order's buyer from escrow inside tx.
func RefundToBuyer(ctx context.Context, ledgerSvc ledger.Service, tx *gorm.DB, actor ledger.Party, order *models.Order, d Disbursement) (*models.Transaction, error) {
	return disburse(ctx, ledgerSvc, tx, actor, order, order.BuyerID, enums.AccountRoleBuyer, d)
}

// ReleaseToSeller credits the order's seller from escrow inside tx, into the
// wallet matching the seller's kind.
func ReleaseToSeller(ctx context.Context, ledgerSvc ledger.Service, tx *gorm.DB, actor ledger.Party, order *models.Order, d Disbursement) (*models.Transaction, error) {
	return disburse(ctx, ledgerSvc, tx, actor, order, order.SellerID, order.SellerAccountRole(), d)
}

func disburse(ctx context.Context, ledgerSvc ledger.Service, tx *gorm.DB, actor ledger.Party, order *models.Order, ownerID uuid.UUID, role enums.AccountRole, d Disbursement) (*models.Transaction, error) {
	wallet, err := ledgerSvc.EnsureWallet(ctx, tx, ownerID, role)
	if err != nil {
		return nil, err
	}
	metadata := d.Metadata
	if metadata.CheckoutID == "" {
		metadata.CheckoutID = order.CheckoutID.String()
	}
	return ledgerSvc.Credit(ctx, tx, ledger.Entry{
		Reference:   d.Reference,
		Kind:        d.Kind,
		Amount:      d.Amount,
		From:        ledger.EscrowAccount,
		To:          wallet.VirtualAccount,
		Initiator:   actor,
		OrderID:     &order.ID,
		DisputeID:   d.DisputeID,
		Description: d.Description,
		Metadata:    metadata,
	})
}

// InventoryRequests maps an order's line items to stock adjustments.
func InventoryRequests(order *models.Order) []reservation.InventoryReservationRequest {
	requests := make([]reservation.InventoryReservationRequest, 0, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, reservation.InventoryReservationRequest{
			CartItemID: item.ID,
			ProductID:  item.ProductID,
			Qty:        item.Quantity,
		})
	}
	return requests
}

// SettledEvent describes the whole order total leaving escrow in one
// direction.
func SettledEvent(actor ledger.Party, order *models.Order, outcome payloads.SettlementOutcome, reason string, at time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:   enums.EventOrderSettled,
		AggregateID: order.ID,
		Actor:       actor.ActorRef(),
		OccurredAt:  at,
		Data: payloads.OrderSettledEvent{
			OrderID:    order.ID,
			CheckoutID: order.CheckoutID,
			BuyerID:    order.BuyerID,
			SellerID:   order.SellerID,
			Amount:     order.TotalAmount,
			Outcome:    outcome,
			Status:     order.Status,
			Reason:     reason,
			SettledAt:  at,
		},
	}
}
