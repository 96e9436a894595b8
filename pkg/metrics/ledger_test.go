package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsCountsPostings(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.ObservePosting("fund", 1500000)
	m.ObservePosting("fund", 500000)
	m.ObserveReconcile("credited")
	m.ObserveCompensation("provider_error")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchValue(mfs, "ledger_postings_total", map[string]string{"kind": "fund"}); err != nil || got != 2 {
		t.Fatalf("expected 2 fund postings, got %f err=%v", got, err)
	}
	if got, err := fetchValue(mfs, "ledger_posted_minor_units_total", map[string]string{"kind": "fund"}); err != nil || got != 2000000 {
		t.Fatalf("expected 2000000 posted, got %f err=%v", got, err)
	}
	if got, err := fetchValue(mfs, "payment_reconcile_outcomes_total", map[string]string{"outcome": "credited"}); err != nil || got != 1 {
		t.Fatalf("expected 1 credited reconcile, got %f err=%v", got, err)
	}
	if got, err := fetchValue(mfs, "payout_compensations_total", map[string]string{"trigger": "provider_error"}); err != nil || got != 1 {
		t.Fatalf("expected 1 compensation, got %f err=%v", got, err)
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.ObservePosting("fund", 1)
	m.ObserveReconcile("credited")
	m.ObserveCompensation("webhook")

	NewLedgerMetrics(nil).ObservePosting("fund", 1)
}
