package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsRecordsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.IncInitiation("m-pesa", "accepted")
	m.IncInitiation("m-pesa", "accepted")
	m.IncPollOutcome("visa", "timeout")
	m.IncActivation("subscription", "")
	m.IncCallback("stripe", "applied")
	m.ObserveConfirmation("m-pesa", 12*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "sokolink_payments_initiations_total", "method", "m-pesa"); err != nil || got != 2 {
		t.Fatalf("initiations = %f, %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "sokolink_payments_poll_outcomes_total", "outcome", "timeout"); err != nil || got != 1 {
		t.Fatalf("poll outcomes = %f, %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "sokolink_payments_activations_total", "result", "unknown"); err != nil || got != 1 {
		t.Fatalf("activations = %f, %v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "sokolink_payments_confirmation_latency_seconds", "method", "m-pesa"); err != nil || got != 12 {
		t.Fatalf("confirmation latency sum = %f, %v", got, err)
	}
}

func TestNilPaymentMetricsIsNoop(t *testing.T) {
	var m *PaymentMetrics
	m.IncInitiation("visa", "rejected")
	m.ObserveConfirmation("visa", time.Second)
	NewPaymentMetrics(nil).IncCallback("bank", "applied")
}
