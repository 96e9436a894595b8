package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts committed money movements and their exceptional paths.
type LedgerMetrics struct {
	postings      *prometheus.CounterVec
	amount        *prometheus.CounterVec
	reconcile     *prometheus.CounterVec
	compensations *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Committed ledger transactions by kind.",
	}, []string{"kind"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_posted_minor_units_total",
		Help: "Sum of committed transaction amounts in minor currency units.",
	}, []string{"kind"})
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_outcomes_total",
		Help: "Payment reconciliation attempts by outcome.",
	}, []string{"outcome"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_compensations_total",
		Help: "Payout debits credited back, by trigger.",
	}, []string{"trigger"})
	reg.MustRegister(postings, amount, reconcile, compensations)
	return &LedgerMetrics{
		postings:      postings,
		amount:        amount,
		reconcile:     reconcile,
		compensations: compensations,
	}
}

// ObservePosting records one committed transaction.
func (l *LedgerMetrics) ObservePosting(kind string, amount int64) {
	if l == nil || l.postings == nil {
		return
	}
	label := normalizeLabel(kind)
	l.postings.WithLabelValues(label).Inc()
	if amount > 0 {
		l.amount.WithLabelValues(label).Add(float64(amount))
	}
}

// ObserveReconcile records a reconciliation outcome.
func (l *LedgerMetrics) ObserveReconcile(outcome string) {
	if l == nil || l.reconcile == nil {
		return
	}
	l.reconcile.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveCompensation records a payout refund.
func (l *LedgerMetrics) ObserveCompensation(trigger string) {
	if l == nil || l.compensations == nil {
		return
	}
	l.compensations.WithLabelValues(normalizeLabel(trigger)).Inc()
}
