package subscription_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	f := newFixture(t, subscription.WithMetrics(subscription.NewMetrics(reg)))
	p := f.seedPlans(t)
	ctx := context.Background()

	sub, err := f.svc.Manager.Create(as("u1"), p.free.ID, 0)
	require.NoError(t, err)
	_, err = f.svc.Manager.ChangePlan(as("u1"), sub.ID, p.pro.ID)
	require.NoError(t, err)

	_, err = f.svc.Evaluator.CheckPlanLimits(ctx, "u1", subscription.ActionAddCard)
	require.NoError(t, err)
	f.own(t, subscription.CollectionCards, "u2", 2)
	_, err = f.svc.Evaluator.CheckPlanLimits(ctx, "u2", subscription.ActionAddCard)
	require.NoError(t, err)

	require.NoError(t, f.svc.Billing.Handle(ctx, subscription.Event{
		Type: subscription.EventPaymentFailed, CustomerID: "u1", Amount: 499, Currency: "USD", ProviderPaymentID: "txn",
	}))

	assert.Equal(t, 1.0, counterValue(t, reg, "fintrack_subscription_transitions_total", map[string]string{"type": "create"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "fintrack_subscription_transitions_total", map[string]string{"type": "upgrade"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "fintrack_subscription_transitions_total", map[string]string{"type": "payment_failed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "fintrack_entitlement_checks_total", map[string]string{"action": "addCard", "result": "allowed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "fintrack_entitlement_checks_total", map[string]string{"action": "addCard", "result": "denied"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "fintrack_billing_events_total", map[string]string{"type": "payment_failed"}))

	// nil metrics are a no-op
	assert.NotPanics(t, func() {
		g := newFixture(t, subscription.WithMetrics(nil))
		pl := g.seedPlans(t)
		_, err := g.svc.Manager.Create(as("u1"), pl.pro.ID, 0)
		require.NoError(t, err)
	})
}
