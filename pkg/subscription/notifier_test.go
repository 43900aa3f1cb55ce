package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fintrack/pkg/email"
	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

func note(userID string, t subscription.NotificationType) *subscription.Notification {
	return &subscription.Notification{UserID: userID, Type: t, Title: "title", Message: "message"}
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	t.Run("emit list and count", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		n := f.svc.Notifier

		require.NoError(t, n.Emit(ctx, note("u1", subscription.NotifyPaymentSucceeded)))
		f.advance(time.Second)
		require.NoError(t, n.Emit(ctx, note("u1", subscription.NotifyTrialEnding)))
		require.NoError(t, n.Emit(ctx, note("u2", subscription.NotifyTrialEnding)))

		rows, err := n.List(ctx, "u1", subscription.ListOptions{})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, subscription.NotifyTrialEnding, rows[0].Type)

		rows, err = n.List(ctx, "u1", subscription.ListOptions{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		unread, err := n.CountUnread(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), unread)
	})

	t.Run("rejects invalid notifications", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		require.ErrorIs(t, f.svc.Notifier.Emit(ctx, nil), subscription.ErrInvalidNotification)
		require.ErrorIs(t, f.svc.Notifier.Emit(ctx, note("", subscription.NotifyTrialEnding)), subscription.ErrInvalidNotification)
		require.ErrorIs(t, f.svc.Notifier.Emit(ctx, note("u1", "promo")), subscription.ErrInvalidNotification)
	})

	t.Run("mark read", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		n := f.svc.Notifier

		mine := note("u1", subscription.NotifyPaymentFailed)
		theirs := note("u2", subscription.NotifyPaymentFailed)
		require.NoError(t, n.Emit(ctx, mine))
		require.NoError(t, n.Emit(ctx, theirs))

		_, err := n.MarkRead(ctx, "u1", theirs.ID)
		require.ErrorIs(t, err, subscription.ErrUnauthorized)

		_, err = n.MarkRead(ctx, "u1", "missing")
		require.ErrorIs(t, err, subscription.ErrNotificationNotFound)

		changed, err := n.MarkRead(ctx, "u1", mine.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, changed)

		changed, err = n.MarkRead(ctx, "u1", mine.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, changed)

		unread, err := n.List(ctx, "u1", subscription.ListOptions{UnreadOnly: true})
		require.NoError(t, err)
		assert.Empty(t, unread)

		all, err := n.List(ctx, "u1", subscription.ListOptions{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, all[0].Read)
		assert.NotNil(t, all[0].ReadAt)

		other, err := n.CountUnread(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, int64(1), other)
	})

	t.Run("watch pushes updates", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var (
			mu    sync.Mutex
			sizes []int
		)
		stop, err := f.svc.Notifier.Watch(ctx, "u1", func(rows []subscription.Notification) {
			mu.Lock()
			sizes = append(sizes, len(rows))
			mu.Unlock()
		})
		require.NoError(t, err)
		defer stop()

		require.NoError(t, f.svc.Notifier.Emit(ctx, note("u1", subscription.NotifySubscriptionUpdated)))

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(sizes) >= 2 && sizes[len(sizes)-1] == 1
		}, time.Second, 10*time.Millisecond)

		mu.Lock()
		assert.Equal(t, 0, sizes[0])
		mu.Unlock()
	})

	t.Run("delivery failures do not fail emit", func(t *testing.T) {
		t.Parallel()
		var delivered []subscription.NotificationType
		failing := subscription.DelivererFunc(func(context.Context, subscription.Notification) error {
			return errors.New("smtp down")
		})
		recording := subscription.DelivererFunc(func(_ context.Context, n subscription.Notification) error {
			delivered = append(delivered, n.Type)
			return nil
		})
		f := newFixture(t, subscription.WithDeliverers(failing, recording))

		require.NoError(t, f.svc.Notifier.Emit(context.Background(), note("u1", subscription.NotifyRenewalReminder)))
		assert.Equal(t, []subscription.NotificationType{subscription.NotifyRenewalReminder}, delivered)
		assert.Len(t, f.notifications(t, "u1"), 1)
	})
}

func TestEmailDeliverer(t *testing.T) {
	t.Parallel()

	sender := email.NewLogSender(logger.Discard())
	var deliverer *subscription.EmailDeliverer
	f := newFixture(t, subscription.WithDeliverers(subscription.DelivererFunc(
		func(ctx context.Context, n subscription.Notification) error {
			return deliverer.Deliver(ctx, n)
		},
	)))
	deliverer = subscription.NewEmailDeliverer(f.svc.Store, sender)
	p := f.seedPlans(t)

	// subscription_created is in-app only
	_, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, sender.Sent())

	require.NoError(t, f.svc.Billing.Handle(context.Background(), subscription.Event{
		Type:              subscription.EventPaymentFailed,
		CustomerID:        "u1",
		Amount:            499,
		Currency:          "USD",
		ProviderPaymentID: "txn_1",
	}))

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "u1@example.com", sent[0].To)
	assert.Equal(t, "Payment failed", sent[0].Subject)
	assert.Equal(t, string(subscription.NotifyPaymentFailed), sent[0].Tag)
	assert.Contains(t, sent[0].TextBody, "4.99")

	// no profile, no identity: skipped without error
	require.NoError(t, deliverer.Deliver(context.Background(), subscription.Notification{
		UserID: "ghost", Type: subscription.NotifyTrialEnding, Title: "t", Message: "m",
	}))
	assert.Len(t, sender.Sent(), 1)
}

func TestProjector(t *testing.T) {
	t.Parallel()

	t.Run("reconcile repairs a stale profile", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.seedPlans(t)
		ctx := context.Background()

		sub, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
		require.NoError(t, err)

		stale := *sub
		stale.PlanID = p.enterprise.ID
		require.NoError(t, f.svc.Projector.Sync(ctx, &stale, p.enterprise))
		assert.Equal(t, subscription.TierEnterprise, f.profile(t, "u1").SubscriptionTier)

		require.NoError(t, f.svc.Projector.Reconcile(ctx, "u1"))
		profile := f.profile(t, "u1")
		assert.Equal(t, subscription.TierPro, profile.SubscriptionTier)
		assert.Equal(t, p.pro.ID, profile.Subscription.PlanID)
	})

	t.Run("reconcile without subscription clears to free", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		require.NoError(t, f.svc.Projector.Reconcile(context.Background(), "u9"))
		profile := f.profile(t, "u9")
		assert.Nil(t, profile.Subscription)
		assert.Equal(t, subscription.TierFree, profile.SubscriptionTier)
	})

	t.Run("reconcile all", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.seedPlans(t)
		ctx := context.Background()

		for _, u := range []string{"u1", "u2", "u3"} {
			_, err := f.svc.Manager.Create(as(u), p.pro.ID, 0)
			require.NoError(t, err)
		}
		require.NoError(t, f.svc.Store.Users.Delete(ctx, "u2"))

		n, err := f.svc.Projector.ReconcileAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, subscription.TierPro, f.profile(t, "u2").SubscriptionTier)
	})

	t.Run("keeps other profile fields", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		p := f.seedPlans(t)
		ctx := context.Background()

		require.NoError(t, f.svc.Store.Users.Upsert(ctx, "u1", map[string]any{"role": subscription.RoleAdmin}))
		_, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
		require.NoError(t, err)

		profile := f.profile(t, "u1")
		assert.True(t, profile.IsAdmin())
		assert.Equal(t, subscription.TierPro, profile.SubscriptionTier)
	})
}
