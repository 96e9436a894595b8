package disputes

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
)

// Allocation splits an order's escrow between buyer and seller. The two
// amounts always sum to the order total.
type Allocation struct {
	Buyer  int64
	Seller int64
}

// Allocate applies the resolution policy. The buyer is refunded the full
// order amount on full_refund, favor_complainant and no_action, the seller
// is paid in full on favor_respondent, and partial_refund splits it in half
// with the odd kobo going to the buyer. Client-supplied amounts are never
// consulted.
func Allocate(decision enums.DisputeDecision, total int64) (Allocation, error) {
	if total <= 0 {
		return Allocation{}, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	switch decision {
	case enums.DisputeDecisionNoAction, enums.DisputeDecisionFullRefund, enums.DisputeDecisionFavorComplainant:
		return Allocation{Buyer: total}, nil
	case enums.DisputeDecisionFavorRespondent:
		return Allocation{Seller: total}, nil
	case enums.DisputeDecisionPartialRefund:
		buyer := decimal.NewFromInt(total).Div(decimal.NewFromInt(2)).Ceil().IntPart()
		return Allocation{Buyer: buyer, Seller: total - buyer}, nil
	default:
		return Allocation{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute decision")
	}
}
