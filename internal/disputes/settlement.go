package disputes

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/checkout/reservation"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/orders"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

const (
	partyBuyer  = "buyer"
	partySeller = "seller"
)

// settleOrder moves the order to resolved and pays out the allocation from
// escrow. Stock is sold when the seller keeps any of the money and returned
// to the shelf otherwise.
func (s *service) settleOrder(ctx context.Context, tx *gorm.DB, actor ledger.Party, dispute *models.Dispute, allocation Allocation, resolvedAt time.Time) error {
	order := dispute.Order
	resolution := &types.OrderResolution{
		DisputeID:    dispute.ID.String(),
		DisputeCode:  dispute.Code,
		Decision:     dispute.Decision.String(),
		BuyerAmount:  allocation.Buyer,
		SellerAmount: allocation.Seller,
		ResolvedBy:   actor.ID.String(),
		ResolvedAt:   resolvedAt,
	}
	rows, err := s.orders.WithTx(tx).TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusResolved, map[string]any{
		"resolution": resolution,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve order")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
			WithDetails(map[string]any{"order_id": order.ID})
	}
	order.Status = enums.OrderStatusResolved
	order.Resolution = resolution

	metadata := func(party string) types.TransactionMetadata {
		return types.TransactionMetadata{
			Source:         "dispute",
			ResolutionType: dispute.Decision.String(),
			Party:          party,
			Note:           dispute.Code,
		}
	}
	if allocation.Buyer > 0 {
		if _, err := orders.RefundToBuyer(ctx, s.ledger, tx, actor, order, orders.Disbursement{
			Reference:   ledger.ReferenceFor(ledger.PrefixDispute, dispute.ID, "B"),
			Kind:        enums.TransactionKindCredit,
			Amount:      allocation.Buyer,
			DisputeID:   &dispute.ID,
			Description: "dispute settlement to buyer",
			Metadata:    metadata(partyBuyer),
		}); err != nil {
			return err
		}
	}
	if allocation.Seller > 0 {
		if _, err := orders.ReleaseToSeller(ctx, s.ledger, tx, actor, order, orders.Disbursement{
			Reference:   ledger.ReferenceFor(ledger.PrefixDispute, dispute.ID, "S"),
			Kind:        enums.TransactionKindCredit,
			Amount:      allocation.Seller,
			DisputeID:   &dispute.ID,
			Description: "dispute settlement to seller",
			Metadata:    metadata(partySeller),
		}); err != nil {
			return err
		}
	}

	if err := s.emitResolved(ctx, tx, actor, dispute, allocation, resolvedAt); err != nil {
		return err
	}

	requests := orders.InventoryRequests(order)
	if len(requests) == 0 {
		return nil
	}
	if allocation.Seller > 0 {
		return reservation.FinalizeInventory(ctx, tx, requests)
	}
	return reservation.ReleaseInventory(ctx, tx, requests)
}

func (s *service) emitResolved(ctx context.Context, tx *gorm.DB, actor ledger.Party, dispute *models.Dispute, allocation Allocation, resolvedAt time.Time) error {
	if s.events == nil {
		return nil
	}
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:   enums.EventDisputeResolved,
		AggregateID: dispute.ID,
		Actor:       actor.ActorRef(),
		OccurredAt:  resolvedAt,
		Data: payloads.DisputeResolvedEvent{
			DisputeID:    dispute.ID,
			Code:         dispute.Code,
			OrderID:      dispute.OrderID,
			Decision:     *dispute.Decision,
			BuyerAmount:  allocation.Buyer,
			SellerAmount: allocation.Seller,
			ResolvedBy:   actor.ID,
			ResolvedAt:   resolvedAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record dispute event")
	}
	return nil
}
