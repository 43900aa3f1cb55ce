package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/opqueue"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

type fixture struct {
	driver *docstore.Memory
	svc    *subscription.Service

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, opts ...subscription.Option) *fixture {
	t.Helper()

	queue := opqueue.New()
	t.Cleanup(func() { _ = queue.Close() })

	f := &fixture{
		driver: docstore.NewMemory(),
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	base := []subscription.Option{
		subscription.WithLogger(logger.Discard()),
		subscription.WithClock(f.clock),
	}
	f.svc = subscription.New(f.driver, queue, append(base, opts...)...)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

type plans struct {
	free, pro, enterprise *subscription.Plan
}

func (f *fixture) seedPlans(t *testing.T) plans {
	t.Helper()
	ctx := context.Background()

	free, err := f.svc.Catalog.CreatePlan(ctx, subscription.Plan{
		Name: "free", DisplayName: "Free", Tier: subscription.TierFree,
		Price: 0, Currency: "USD", Interval: subscription.IntervalMonth,
		Limits: subscription.DefaultLimits,
	})
	require.NoError(t, err)

	pro, err := f.svc.Catalog.CreatePlan(ctx, subscription.Plan{
		Name: "pro_monthly", DisplayName: "Pro", Tier: subscription.TierPro,
		Price: 499, Currency: "USD", Interval: subscription.IntervalMonth,
		Limits: subscription.Limits{
			MaxCards: subscription.Unlimited, MaxTransactions: subscription.Unlimited,
			Analytics: true, Export: true,
		},
	})
	require.NoError(t, err)

	enterprise, err := f.svc.Catalog.CreatePlan(ctx, subscription.Plan{
		Name: "enterprise_yearly", DisplayName: "Enterprise", Tier: subscription.TierEnterprise,
		Price: 23988, Currency: "USD", Interval: subscription.IntervalYear,
		Limits: subscription.Limits{
			MaxCards: subscription.Unlimited, MaxTransactions: subscription.Unlimited,
			Analytics: true, Export: true, PrioritySupport: true, APIAccess: true,
			TeamManagement: true, CustomIntegrations: true,
		},
	})
	require.NoError(t, err)

	return plans{free: free, pro: pro, enterprise: enterprise}
}

func as(userID string) context.Context {
	return subscription.WithIdentity(context.Background(), subscription.Identity{
		UserID: userID,
		Email:  userID + "@example.com",
	})
}

func (f *fixture) changes(t *testing.T, userID string) []subscription.Change {
	t.Helper()
	rows, err := f.svc.Ledger.Changes(context.Background(), userID, 0)
	require.NoError(t, err)
	return rows
}

func (f *fixture) notifications(t *testing.T, userID string) []subscription.Notification {
	t.Helper()
	rows, err := f.svc.Notifier.List(context.Background(), userID, subscription.ListOptions{})
	require.NoError(t, err)
	return rows
}

func (f *fixture) profile(t *testing.T, userID string) *subscription.UserProfile {
	t.Helper()
	p, err := f.svc.Store.Profile(context.Background(), userID)
	require.NoError(t, err)
	return p
}

func (f *fixture) subscriptionCount(t *testing.T, userID string) int64 {
	t.Helper()
	n, err := f.svc.Store.Subscriptions.Count(context.Background(), docstore.Where("userId", userID))
	require.NoError(t, err)
	return n
}

type ownedItem struct {
	ID     string `bson:"_id,omitempty"`
	UserID string `bson:"userId"`
}

// own inserts n items owned by userID into collection.
func (f *fixture) own(t *testing.T, collection, userID string, n int) {
	t.Helper()
	items := docstore.NewCollection[ownedItem](f.driver, collection)
	for range n {
		_, err := items.Create(context.Background(), &ownedItem{UserID: userID})
		require.NoError(t, err)
	}
}
