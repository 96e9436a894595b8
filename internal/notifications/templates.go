package notifications

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// Argument keys understood by the message templates.
const (
	ArgAmount      = "amount"
	ArgOrderID     = "order_id"
	ArgStatus      = "status"
	ArgDisputeCode = "dispute_code"
	ArgDecision    = "decision"
	ArgReference   = "reference"
	ArgReason      = "reason"
)

type template struct {
	title   string
	message func(args map[string]string) string
}

var templates = map[enums.NotificationType]template{
	enums.NotificationTypeWalletFunded: {
		title: "Wallet funded",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Your wallet was credited with %s.", naira(a[ArgAmount]))
		},
	},
	enums.NotificationTypeOrderPlaced: {
		title: "Order placed",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Order %s was placed and %s is held in escrow.", a[ArgOrderID], naira(a[ArgAmount]))
		},
	},
	enums.NotificationTypeOrderReceived: {
		title: "New order",
		message: func(a map[string]string) string {
			return fmt.Sprintf("You received order %s worth %s.", a[ArgOrderID], naira(a[ArgAmount]))
		},
	},
	enums.NotificationTypeOrderUpdated: {
		title: "Order updated",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Order %s is now %s.", a[ArgOrderID], a[ArgStatus])
		},
	},
	enums.NotificationTypeOrderCancelled: {
		title: "Order cancelled",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Order %s was %s and %s was returned to the buyer.", a[ArgOrderID], a[ArgStatus], naira(a[ArgAmount]))
		},
	},
	enums.NotificationTypeFundsReleased: {
		title: "Funds released",
		message: func(a map[string]string) string {
			return fmt.Sprintf("%s for order %s was released to your wallet.", naira(a[ArgAmount]), a[ArgOrderID])
		},
	},
	enums.NotificationTypeDisputeOpened: {
		title: "Dispute opened",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Dispute %s was opened on order %s. Funds stay in escrow until it is resolved.", a[ArgDisputeCode], a[ArgOrderID])
		},
	},
	enums.NotificationTypeDisputeAssigned: {
		title: "Dispute assigned",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Dispute %s was assigned to you.", a[ArgDisputeCode])
		},
	},
	enums.NotificationTypeDisputeResolved: {
		title: "Dispute resolved",
		message: func(a map[string]string) string {
			if a[ArgAmount] == "" || a[ArgAmount] == "0" {
				return fmt.Sprintf("Dispute %s was resolved (%s). No funds were credited to you.", a[ArgDisputeCode], a[ArgDecision])
			}
			return fmt.Sprintf("Dispute %s was resolved (%s). %s was credited to your wallet.", a[ArgDisputeCode], a[ArgDecision], naira(a[ArgAmount]))
		},
	},
	enums.NotificationTypePayoutInitiated: {
		title: "Payout initiated",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Your withdrawal of %s is on its way (ref %s).", naira(a[ArgAmount]), a[ArgReference])
		},
	},
	enums.NotificationTypePayoutCompleted: {
		title: "Payout completed",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Your withdrawal of %s was paid out (ref %s).", naira(a[ArgAmount]), a[ArgReference])
		},
	},
	enums.NotificationTypePayoutFailed: {
		title: "Payout failed",
		message: func(a map[string]string) string {
			return fmt.Sprintf("Your withdrawal of %s failed and was returned to your wallet: %s", naira(a[ArgAmount]), a[ArgReason])
		},
	},
}

func render(kind enums.NotificationType, args map[string]string) (string, string, bool) {
	tpl, ok := templates[kind]
	if !ok {
		return "", "", false
	}
	if args == nil {
		args = map[string]string{}
	}
	return tpl.title, tpl.message(args), true
}

// Amount formats a kobo amount for notification args.
func Amount(kobo int64) string {
	return strconv.FormatInt(kobo, 10)
}

func naira(kobo string) string {
	value, err := decimal.NewFromString(kobo)
	if err != nil {
		return "NGN " + kobo
	}
	return "NGN " + value.Shift(-2).StringFixed(2)
}
