package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records provider webhook traffic and the payments that
// come out of it.
type WebhookMetrics struct {
	received *prometheus.CounterVec
	payments *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Provider webhook deliveries by outcome.",
	}, []string{"provider", "outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_payments_recorded_total",
		Help: "Payments recorded from webhook deliveries.",
	}, []string{"provider"})
	reg.MustRegister(received, payments)
	return &WebhookMetrics{
		received: received,
		payments: payments,
	}
}

// IncReceived counts one webhook delivery with its processing outcome
// (accepted, duplicate, ignored, rejected, failed).
func (m *WebhookMetrics) IncReceived(provider, outcome string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncPaymentRecorded counts one payment recorded from a webhook.
func (m *WebhookMetrics) IncPaymentRecorded(provider string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(provider)).Inc()
}
