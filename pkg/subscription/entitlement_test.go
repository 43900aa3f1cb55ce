package subscription_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/opqueue"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

var errStoreDown = errors.New("store down")

// brokenCounts fails every count on one collection.
type brokenCounts struct {
	*docstore.Memory
	collection string
}

func (d brokenCounts) Count(ctx context.Context, collection string, q docstore.Query) (int64, error) {
	if collection == d.collection {
		return 0, errStoreDown
	}
	return d.Memory.Count(ctx, collection, q)
}

func TestEvaluator_GetUserLimits(t *testing.T) {
	t.Parallel()

	t.Run("defaults without a subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedPlans(t)

		limits := f.svc.Evaluator.GetUserLimits(context.Background(), "nobody")
		assert.Equal(t, subscription.Limits{MaxCards: 2, MaxTransactions: 10}, limits)
		assert.Equal(t, subscription.DefaultLimits, limits)
	})

	t.Run("plan limits verbatim", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.seedPlans(t)

		_, err := f.svc.Manager.Create(as("u1"), p.enterprise.ID, 0)
		require.NoError(t, err)

		assert.Equal(t, p.enterprise.Limits, f.svc.Evaluator.GetUserLimits(context.Background(), "u1"))
	})

	t.Run("defaults when the plan is gone", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.seedPlans(t)

		_, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
		require.NoError(t, err)
		require.NoError(t, f.svc.Store.Plans.Delete(context.Background(), p.pro.ID))

		assert.Equal(t, subscription.DefaultLimits, f.svc.Evaluator.GetUserLimits(context.Background(), "u1"))
	})

	t.Run("defaults after the subscription ended", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.seedPlans(t)

		_, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
		require.NoError(t, err)
		require.NoError(t, f.svc.Billing.Handle(context.Background(), subscription.Event{
			Type:       subscription.EventSubscriptionCanceled,
			CustomerID: "u1",
		}))

		assert.Equal(t, subscription.DefaultLimits, f.svc.Evaluator.GetUserLimits(context.Background(), "u1"))
	})

	t.Run("ignores the profile projection", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedPlans(t)

		require.NoError(t, f.svc.Store.Users.Upsert(context.Background(), "u1", docstore.Fields{
			"subscriptionTier": subscription.TierEnterprise,
		}))

		assert.Equal(t, subscription.DefaultLimits, f.svc.Evaluator.GetUserLimits(context.Background(), "u1"))
		assert.False(t, f.svc.Evaluator.HasFeature(context.Background(), "u1", subscription.FeatureAPIAccess))
	})
}

func TestEvaluator_CheckPlanLimits(t *testing.T) {
	t.Parallel()

	t.Run("no subscription and two cards denies a third", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedPlans(t)
		f.own(t, subscription.CollectionCards, "u1", 2)
		f.own(t, subscription.CollectionCards, "u2", 5)

		ok, err := f.svc.Evaluator.CheckPlanLimits(context.Background(), "u1", subscription.ActionAddCard)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("below the free limit allows", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.seedPlans(t)
		_, err := f.svc.Manager.Create(as("u1"), p.free.ID, 0)
		require.NoError(t, err)
		f.own(t, subscription.CollectionTransactions, "u1", 9)

		ok, err := f.svc.Evaluator.CheckPlanLimits(context.Background(), "u1", subscription.ActionAddTransaction)
		require.NoError(t, err)
		assert.True(t, ok)

		f.own(t, subscription.CollectionTransactions, "u1", 1)
		ok, err = f.svc.Evaluator.CheckPlanLimits(context.Background(), "u1", subscription.ActionAddTransaction)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unlimited ignores usage", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		plan, err := f.svc.Catalog.CreatePlan(ctx, subscription.Plan{
			Name: "free_unlimited", Tier: subscription.TierFree, Currency: "USD",
			Interval: subscription.IntervalMonth,
			Limits:   subscription.Limits{MaxCards: subscription.Unlimited, MaxTransactions: subscription.Unlimited},
		})
		require.NoError(t, err)
		_, err = f.svc.Manager.Create(as("u1"), plan.ID, 0)
		require.NoError(t, err)
		f.own(t, subscription.CollectionCards, "u1", 50)

		for _, action := range []subscription.Action{subscription.ActionAddCard, subscription.ActionAddTransaction} {
			ok, err := f.svc.Evaluator.CheckPlanLimits(ctx, "u1", action)
			require.NoError(t, err)
			assert.True(t, ok, action)
		}
	})

	t.Run("paid tiers always allow", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.seedPlans(t)
		_, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
		require.NoError(t, err)
		f.own(t, subscription.CollectionCards, "u1", 20)

		ok, err := f.svc.Evaluator.CheckPlanLimits(context.Background(), "u1", subscription.ActionAddCard)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		ok, err := f.svc.Evaluator.CheckPlanLimits(context.Background(), "u1", subscription.Action("addBudget"))
		require.ErrorIs(t, err, subscription.ErrUnknownAction)
		assert.False(t, ok)
	})

	t.Run("count failure denies with error", func(t *testing.T) {
		t.Parallel()
		queue := opqueue.New()
		t.Cleanup(func() { _ = queue.Close() })

		driver := brokenCounts{Memory: docstore.NewMemory(), collection: subscription.CollectionCards}
		svc := subscription.New(driver, queue, subscription.WithLogger(logger.Discard()))

		ok, err := svc.Evaluator.CheckPlanLimits(context.Background(), "u1", subscription.ActionAddCard)
		require.ErrorIs(t, err, subscription.ErrFailedToCount)
		require.ErrorIs(t, err, errStoreDown)
		assert.False(t, ok)
	})
}

func TestEvaluator_HasFeature(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.seedPlans(t)
	ctx := context.Background()

	assert.False(t, f.svc.Evaluator.HasFeature(ctx, "u1", subscription.FeatureAnalytics))

	_, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
	require.NoError(t, err)

	assert.True(t, f.svc.Evaluator.HasFeature(ctx, "u1", subscription.FeatureAnalytics))
	assert.True(t, f.svc.Evaluator.HasFeature(ctx, "u1", subscription.FeatureExport))
	assert.False(t, f.svc.Evaluator.HasFeature(ctx, "u1", subscription.FeatureAPIAccess))
	assert.False(t, f.svc.Evaluator.HasFeature(ctx, "u1", subscription.Feature("unknown")))
}

func TestEvaluator_Entitlements(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.seedPlans(t)
	ctx := context.Background()

	sub, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
	require.NoError(t, err)
	f.own(t, subscription.CollectionCards, "u1", 3)
	f.own(t, subscription.CollectionTransactions, "u1", 7)

	ent, err := f.svc.Evaluator.Entitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, ent.Tier)
	assert.Equal(t, p.pro.ID, ent.PlanID)
	assert.Equal(t, sub.ID, ent.SubscriptionID)
	assert.Equal(t, subscription.StatusActive, ent.Status)
	assert.Equal(t, int64(3), ent.Usage.Cards)
	assert.Equal(t, int64(7), ent.Usage.Transactions)

	empty, err := f.svc.Evaluator.Entitlements(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierFree, empty.Tier)
	assert.Empty(t, empty.SubscriptionID)
	assert.Equal(t, subscription.DefaultLimits, empty.Limits)
}
