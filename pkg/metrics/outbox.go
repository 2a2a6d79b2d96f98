package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the relay from the outbox table to pub/sub.
type OutboxMetrics struct {
	relayed *prometheus.CounterVec
	batches prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "echo_outbox_relayed_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "echo_outbox_batch_duration_seconds",
		Help:    "Time spent relaying one outbox batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(relayed, batches)
	return &OutboxMetrics{relayed: relayed, batches: batches}
}

// IncRelayed counts one row; outcome is published, retry, or dead_letter.
func (m *OutboxMetrics) IncRelayed(eventType, outcome string) {
	if m == nil || m.relayed == nil {
		return
	}
	m.relayed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(d.Seconds())
}
