package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// NotificationRequestedEvent asks the delivery worker to push a stored
// notification to its recipient.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	RecipientID    uuid.UUID              `json:"recipient_id"`
	RecipientRole  enums.Role             `json:"recipient_role"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Args           map[string]string      `json:"args,omitempty"`
}

// SettlementOutcome says where escrowed order funds went.
type SettlementOutcome string

const (
	SettlementReleased SettlementOutcome = "released"
	SettlementRefunded SettlementOutcome = "refunded"
)

// OrderSettledEvent is emitted once per order when its escrow hold leaves
// the system account. Amounts are kobo.
type OrderSettledEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CheckoutID uuid.UUID         `json:"checkout_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	SellerID   uuid.UUID         `json:"seller_id"`
	Amount     int64             `json:"amount"`
	Outcome    SettlementOutcome `json:"outcome"`
	Status     enums.OrderStatus `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	SettledAt  time.Time         `json:"settled_at"`
}

// DisputeResolvedEvent carries the money split a resolution applied.
type DisputeResolvedEvent struct {
	DisputeID    uuid.UUID             `json:"dispute_id"`
	Code         string                `json:"code"`
	OrderID      uuid.UUID             `json:"order_id"`
	Decision     enums.DisputeDecision `json:"decision"`
	BuyerAmount  int64                 `json:"buyer_amount"`
	SellerAmount int64                 `json:"seller_amount"`
	ResolvedBy   uuid.UUID             `json:"resolved_by"`
	ResolvedAt   time.Time             `json:"resolved_at"`
}

// PayoutSettledEvent is emitted when a payout reaches a terminal state.
type PayoutSettledEvent struct {
	PayoutID      uuid.UUID          `json:"payout_id"`
	OwnerID       uuid.UUID          `json:"owner_id"`
	Reference     string             `json:"reference"`
	Amount        int64              `json:"amount"`
	Fee           int64              `json:"fee"`
	Status        enums.PayoutStatus `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
}
