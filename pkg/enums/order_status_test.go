package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to OrderStatus
	}{
		{OrderStatusPending, OrderStatusAccepted},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusPending, OrderStatusRejected},
		{OrderStatusAccepted, OrderStatusCancelled},
		{OrderStatusAccepted, OrderStatusPreparing},
		{OrderStatusPreparing, OrderStatusOutForDelivery},
		{OrderStatusOutForDelivery, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusFulfilled},
		{OrderStatusDelivered, OrderStatusResolved},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to OrderStatus
	}{
		{OrderStatusAccepted, OrderStatusRejected},
		{OrderStatusPreparing, OrderStatusCancelled},
		{OrderStatusPending, OrderStatusFulfilled},
		{OrderStatusFulfilled, OrderStatusResolved},
		{OrderStatusResolved, OrderStatusPending},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestOrderStatusTerminalAndEscrowEligibility(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusFulfilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusResolved} {
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
		if s.IsEscrowEligible() {
			t.Fatalf("terminal %s must not be escrow eligible", s)
		}
	}
	for _, s := range EscrowEligibleOrderStatuses {
		if s.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
	if OrderStatus("bogus").IsTerminal() {
		t.Fatal("unknown status must not be terminal")
	}
}

func TestNextFulfillmentStep(t *testing.T) {
	next, ok := OrderStatusAccepted.NextFulfillmentStep()
	if !ok || next != OrderStatusPreparing {
		t.Fatalf("expected preparing after accepted, got %s", next)
	}
	if _, ok := OrderStatusDelivered.NextFulfillmentStep(); ok {
		t.Fatal("delivered has no seller-driven successor")
	}
}

func TestSellerKindAccountRole(t *testing.T) {
	if SellerKindAgent.AccountRole() != AccountRoleAgent {
		t.Fatal("agent sellers are paid into agent wallets")
	}
	if SellerKindVendor.AccountRole() != AccountRoleVendor {
		t.Fatal("vendor sellers are paid into vendor wallets")
	}
	if _, ok := SellerKindFor(RoleBuyer); ok {
		t.Fatal("buyers are not sellers")
	}
}

func TestDisputeStatusTransitions(t *testing.T) {
	if !DisputeStatusOpen.CanTransitionTo(DisputeStatusAssigned) {
		t.Fatal("open -> assigned must be allowed")
	}
	if DisputeStatusOpen.CanTransitionTo(DisputeStatusResolved) {
		t.Fatal("an unassigned dispute cannot be resolved")
	}
	if DisputeStatusResolved.CanTransitionTo(DisputeStatusClosed) {
		t.Fatal("resolved disputes are final")
	}
	if StaffRoleSupervisor.Seniority() <= StaffRoleAgent.Seniority() {
		t.Fatal("supervisors outrank agents")
	}
}
