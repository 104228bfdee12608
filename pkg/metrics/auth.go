package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics tracks verification flow transitions and code delivery latency.
type AuthMetrics struct {
	transitions *prometheus.CounterVec
	delivery    *prometheus.HistogramVec
}

func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	if reg == nil {
		return &AuthMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_transitions_total",
		Help: "Verification flow events by actor kind and outcome.",
	}, []string{"kind", "event", "outcome"})
	delivery := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_code_delivery_seconds",
		Help:    "Time spent handing one-time codes to the delivery channel.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(transitions, delivery)
	return &AuthMetrics{transitions: transitions, delivery: delivery}
}

// IncTransition records one event; outcome is "ok" or an error reason.
func (m *AuthMetrics) IncTransition(kind, event, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(kind), normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

func (m *AuthMetrics) ObserveDelivery(outcome string, d time.Duration) {
	if m == nil || m.delivery == nil {
		return
	}
	m.delivery.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}
