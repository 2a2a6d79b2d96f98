package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCommerceMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCommerceMetrics(reg)

	m.IncWebhook("stripe", "applied")
	m.IncWebhook("stripe", "applied")
	m.IncWebhook("shopify", "")
	m.IncPaymentArtifact("shopify", "fallback")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	require.Equal(t, 2.0, counterWithLabels(t, mfs, "echo_webhook_events_total", "stripe", "applied"))
	require.Equal(t, 1.0, counterWithLabels(t, mfs, "echo_webhook_events_total", "shopify", "unknown"))
	require.Equal(t, 1.0, counterWithLabels(t, mfs, "echo_payment_artifacts_total", "shopify", "fallback"))
}

func TestCommerceMetricsNilSafe(t *testing.T) {
	var m *CommerceMetrics
	m.IncWebhook("stripe", "applied")
	NewCommerceMetrics(nil).IncPaymentArtifact("stripe", "created")
}

func counterWithLabels(t *testing.T, mfs []*dto.MetricFamily, name, provider, outcome string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	require.NotNil(t, mf, name)
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "provider", provider) && matchesLabel(metric.GetLabel(), "outcome", outcome) {
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s{provider=%s,outcome=%s} not found", name, provider, outcome)
	return 0
}

func TestOutboxMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncRelayed("order_paid", "published")
	m.IncRelayed("order_paid", "dead_letter")
	m.IncRelayed("order_paid", "published")
	m.ObserveBatch(0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	mf := findMetricFamily(mfs, "echo_outbox_relayed_total")
	require.NotNil(t, mf)
	values := map[string]float64{}
	for _, metric := range mf.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "outcome" {
				values[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, 2.0, values["published"])
	require.Equal(t, 1.0, values["dead_letter"])
	require.NotNil(t, findMetricFamily(mfs, "echo_outbox_batch_duration_seconds"))

	var nilMetrics *OutboxMetrics
	nilMetrics.IncRelayed("order_paid", "published")
	nilMetrics.ObserveBatch(0)
}
