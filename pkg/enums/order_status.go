package enums

import "fmt"

// OrderStatus tracks the lifecycle of an escrow-bearing order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusAccepted       OrderStatus = "accepted"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusFulfilled      OrderStatus = "fulfilled"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRejected       OrderStatus = "rejected"
	OrderStatusResolved       OrderStatus = "resolved"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusFulfilled,
	OrderStatusCancelled,
	OrderStatusRejected,
	OrderStatusResolved,
}

// EscrowEligibleOrderStatuses are the states in which funds are still held
// and a dispute may be raised.
var EscrowEligibleOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusAccepted, OrderStatusCancelled, OrderStatusRejected, OrderStatusResolved},
	OrderStatusAccepted:       {OrderStatusPreparing, OrderStatusCancelled, OrderStatusResolved},
	OrderStatusPreparing:      {OrderStatusOutForDelivery, OrderStatusResolved},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusResolved},
	OrderStatusDelivered:      {OrderStatusFulfilled, OrderStatusResolved},
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	_, ok := orderTransitions[s]
	return s.IsValid() && !ok
}

func (s OrderStatus) IsEscrowEligible() bool {
	for _, candidate := range EscrowEligibleOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// NextFulfillmentStep returns the seller-driven successor of s, if any.
func (s OrderStatus) NextFulfillmentStep() (OrderStatus, bool) {
	switch s {
	case OrderStatusAccepted:
		return OrderStatusPreparing, true
	case OrderStatusPreparing:
		return OrderStatusOutForDelivery, true
	case OrderStatusOutForDelivery:
		return OrderStatusDelivered, true
	default:
		return "", false
	}
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
