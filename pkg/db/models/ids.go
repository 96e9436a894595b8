package models

import "github.com/google/uuid"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order. Used by AutoMigrate
// in sqlite mode and in tests; postgres schemas come from goose migrations.
func All() []any {
	return []any{
		&Wallet{},
		&Transaction{},
		&Product{},
		&CartItem{},
		&Order{},
		&OrderLineItem{},
		&SellerProfile{},
		&Dispute{},
		&DisputeStaff{},
		&BankAccount{},
		&PayoutRequest{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&LedgerExportCursor{},
	}
}
