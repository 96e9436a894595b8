package enums

import "fmt"

// NotificationType selects the message template a recipient sees.
type NotificationType string

const (
	NotificationTypeWalletFunded    NotificationType = "wallet_funded"
	NotificationTypeOrderPlaced     NotificationType = "order_placed"
	NotificationTypeOrderReceived   NotificationType = "order_received"
	NotificationTypeOrderUpdated    NotificationType = "order_updated"
	NotificationTypeOrderCancelled  NotificationType = "order_cancelled"
	NotificationTypeFundsReleased   NotificationType = "funds_released"
	NotificationTypeDisputeOpened   NotificationType = "dispute_opened"
	NotificationTypeDisputeAssigned NotificationType = "dispute_assigned"
	NotificationTypeDisputeResolved NotificationType = "dispute_resolved"
	NotificationTypePayoutInitiated NotificationType = "payout_initiated"
	NotificationTypePayoutCompleted NotificationType = "payout_completed"
	NotificationTypePayoutFailed    NotificationType = "payout_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeWalletFunded,
	NotificationTypeOrderPlaced,
	NotificationTypeOrderReceived,
	NotificationTypeOrderUpdated,
	NotificationTypeOrderCancelled,
	NotificationTypeFundsReleased,
	NotificationTypeDisputeOpened,
	NotificationTypeDisputeAssigned,
	NotificationTypeDisputeResolved,
	NotificationTypePayoutInitiated,
	NotificationTypePayoutCompleted,
	NotificationTypePayoutFailed,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
