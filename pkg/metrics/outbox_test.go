package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())

	m.Observe("notification_requested", "published")
	m.Observe("notification_requested", "published")
	m.Observe("notification_requested", "dead_lettered")

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("notification_requested", "published")); got != 2 {
		t.Fatalf("expected 2 published, got %f", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("notification_requested", "dead_lettered")); got != 1 {
		t.Fatalf("expected 1 dead lettered, got %f", got)
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.Observe("notification_requested", "published")
}
