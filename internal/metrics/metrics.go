package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Metrics records order lifecycle counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	webhookEvents *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	shortfalls    prometheus.Counter
	fulfillment   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

// New registers the bookshop metrics on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookshop_webhook_events_total",
		Help: "Gateway notifications by kind and outcome.",
	}, []string{"kind", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookshop_order_transitions_total",
		Help: "Applied order status transitions.",
	}, []string{"from", "to"})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookshop_inventory_shortfall_total",
		Help: "Order lines paid without available stock.",
	})
	fulfillment := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookshop_fulfillment_notify_total",
		Help: "Shipping upload attempts by result.",
	}, []string{"result"})
	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookshop_expiry_sweep_duration_seconds",
		Help:    "Duration of pending order expiry sweeps.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(webhookEvents, transitions, shortfalls, fulfillment, sweepDuration)
	return &Metrics{
		webhookEvents: webhookEvents,
		transitions:   transitions,
		shortfalls:    shortfalls,
		fulfillment:   fulfillment,
		sweepDuration: sweepDuration,
	}
}

func (m *Metrics) WebhookEvent(kind, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// Shortfall adds the number of lines that could not be decremented.
func (m *Metrics) Shortfall(lines int) {
	if m == nil || m.shortfalls == nil || lines <= 0 {
		return
	}
	m.shortfalls.Add(float64(lines))
}

func (m *Metrics) FulfillmentResult(result string) {
	if m == nil || m.fulfillment == nil {
		return
	}
	m.fulfillment.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil || m.sweepDuration == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
