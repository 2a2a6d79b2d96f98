package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics counts webhook deliveries and payment artifact attempts.
type CommerceMetrics struct {
	webhooks *prometheus.CounterVec
	payments *prometheus.CounterVec
}

func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "echo_webhook_events_total",
		Help: "Payment provider webhook deliveries by outcome.",
	}, []string{"provider", "outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "echo_payment_artifacts_total",
		Help: "Payment artifact creation attempts by provider and outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(webhooks, payments)
	return &CommerceMetrics{webhooks: webhooks, payments: payments}
}

// IncWebhook records one delivery; outcome is e.g. applied, duplicate, ignored, rejected.
func (m *CommerceMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncPaymentArtifact records one artifact attempt; outcome is created, fallback, or failed.
func (m *CommerceMetrics) IncPaymentArtifact(provider, outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
