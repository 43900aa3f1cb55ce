package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts lifecycle transitions, entitlement checks and billing events.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions   *prometheus.CounterVec
	checks        *prometheus.CounterVec
	billingEvents *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fintrack",
			Subsystem: "subscription",
			Name:      "transitions_total",
			Help:      "Subscription lifecycle transitions by type.",
		}, []string{"type"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fintrack",
			Name:      "entitlement_checks_total",
			Help:      "Plan limit checks by action and result.",
		}, []string{"action", "result"}),
		billingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fintrack",
			Name:      "billing_events_total",
			Help:      "Billing provider events handled by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.checks, m.billingEvents)
	}
	return m
}

func (m *Metrics) transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) check(action Action, allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.checks.WithLabelValues(string(action), result).Inc()
}

func (m *Metrics) billingEvent(t EventType) {
	if m == nil {
		return
	}
	m.billingEvents.WithLabelValues(string(t)).Inc()
}
