package types

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TransactionMetadata is the free-form context attached to a ledger entry.
type TransactionMetadata struct {
	Source         string   `json:"source,omitempty"`
	Note           string   `json:"note,omitempty"`
	CheckoutID     string   `json:"checkout_id,omitempty"`
	OrderIDs       []string `json:"order_ids,omitempty"`
	ResolutionType string   `json:"resolution_type,omitempty"`
	Party          string   `json:"party,omitempty"`
	ProviderStatus string   `json:"provider_status,omitempty"`
	FailureReason  string   `json:"failure_reason,omitempty"`
	ParentRef      string   `json:"parent_reference,omitempty"`
}

func (m TransactionMetadata) Value() (driver.Value, error) {
	return jsonValue(m)
}

func (m *TransactionMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = TransactionMetadata{}
		return nil
	}
	var decoded TransactionMetadata
	if err := scanJSON(value, &decoded); err != nil {
		return fmt.Errorf("TransactionMetadata: %w", err)
	}
	*m = decoded
	return nil
}

// OrderResolution records how a dispute settled an order's escrow.
type OrderResolution struct {
	DisputeID    string    `json:"dispute_id"`
	DisputeCode  string    `json:"dispute_code"`
	Decision     string    `json:"decision"`
	BuyerAmount  int64     `json:"buyer_amount"`
	SellerAmount int64     `json:"seller_amount"`
	ResolvedBy   string    `json:"resolved_by"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

func (r OrderResolution) Value() (driver.Value, error) {
	return jsonValue(r)
}

func (r *OrderResolution) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var decoded OrderResolution
	if err := scanJSON(value, &decoded); err != nil {
		return fmt.Errorf("OrderResolution: %w", err)
	}
	*r = decoded
	return nil
}
