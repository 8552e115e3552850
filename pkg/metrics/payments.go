package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks the payment engine: initiations, polling, activation
// and provider callbacks.
type PaymentMetrics struct {
	initiations  *prometheus.CounterVec
	pollOutcomes *prometheus.CounterVec
	pollErrors   *prometheus.CounterVec
	activations  *prometheus.CounterVec
	callbacks    *prometheus.CounterVec
	confirmation *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on reg. A nil registerer
// yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	m := &PaymentMetrics{
		initiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "initiations_total",
			Help:      "Payment initiations by method and result.",
		}, []string{"method", "result"}),
		pollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "poll_outcomes_total",
			Help:      "Terminal outcomes of confirmation watches.",
		}, []string{"method", "outcome"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "poll_provider_errors_total",
			Help:      "Transient provider errors observed while polling.",
		}, []string{"method"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "activations_total",
			Help:      "Entitlement activations by subject type and result.",
		}, []string{"subject_type", "result"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "callbacks_total",
			Help:      "Provider callbacks by source and result.",
		}, []string{"source", "result"}),
		confirmation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from intent creation to a terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600},
		}, []string{"method"}),
	}
	reg.MustRegister(m.initiations, m.pollOutcomes, m.pollErrors, m.activations, m.callbacks, m.confirmation)
	return m
}

func (m *PaymentMetrics) IncInitiation(method, result string) {
	if m == nil || m.initiations == nil {
		return
	}
	m.initiations.WithLabelValues(labelOrUnknown(method), labelOrUnknown(result)).Inc()
}

func (m *PaymentMetrics) IncPollOutcome(method, outcome string) {
	if m == nil || m.pollOutcomes == nil {
		return
	}
	m.pollOutcomes.WithLabelValues(labelOrUnknown(method), labelOrUnknown(outcome)).Inc()
}

func (m *PaymentMetrics) IncPollError(method string) {
	if m == nil || m.pollErrors == nil {
		return
	}
	m.pollErrors.WithLabelValues(labelOrUnknown(method)).Inc()
}

func (m *PaymentMetrics) IncActivation(subjectType, result string) {
	if m == nil || m.activations == nil {
		return
	}
	m.activations.WithLabelValues(labelOrUnknown(subjectType), labelOrUnknown(result)).Inc()
}

func (m *PaymentMetrics) IncCallback(source, result string) {
	if m == nil || m.callbacks == nil {
		return
	}
	m.callbacks.WithLabelValues(labelOrUnknown(source), labelOrUnknown(result)).Inc()
}

// ObserveConfirmation records how long an intent took to settle.
func (m *PaymentMetrics) ObserveConfirmation(method string, latency time.Duration) {
	if m == nil || m.confirmation == nil || latency < 0 {
		return
	}
	m.confirmation.WithLabelValues(labelOrUnknown(method)).Observe(latency.Seconds())
}
