package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

const day = 24 * time.Hour

func TestSweeper_Finalize(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.seedPlans(t)
	ctx := context.Background()
	start := f.clock()

	sub, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
	require.NoError(t, err)
	_, err = f.svc.Manager.Cancel(as("u1"), sub.ID)
	require.NoError(t, err)

	// an uncanceled subscription past its period is left alone
	other, err := f.svc.Manager.Create(as("u2"), p.pro.ID, 0)
	require.NoError(t, err)

	res, err := f.svc.Sweeper.Run(ctx, start.Add(29*day))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Finalized)
	assert.Equal(t, subscription.StatusActive, f.status(t, sub.ID))

	f.advance(30 * day)
	res, err = f.svc.Sweeper.Run(ctx, start.Add(30*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Finalized)
	assert.Equal(t, subscription.StatusCanceled, f.status(t, sub.ID))
	assert.Equal(t, subscription.StatusActive, f.status(t, other.ID))
	assert.Equal(t, subscription.StatusCanceled, f.profile(t, "u1").SubscriptionStatus)

	changes := f.changes(t, "u1")
	require.Len(t, changes, 3)
	assert.Equal(t, subscription.ChangeCancel, changes[0].ChangeType)
	assert.Equal(t, "period_end", changes[0].Metadata["source"])
	assert.Equal(t, sub.ID, changes[0].SubscriptionID)
	assert.Len(t, f.changes(t, "u2"), 1)
	assert.Equal(t, subscription.DefaultLimits, f.svc.Evaluator.GetUserLimits(ctx, "u1"))

	res, err = f.svc.Sweeper.Run(ctx, start.Add(31*day))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Finalized)
	assert.Len(t, f.changes(t, "u1"), 3)
}

func TestSweeper_TrialReminder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.seedPlans(t)
	ctx := context.Background()
	start := f.clock()

	_, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 14)
	require.NoError(t, err)

	res, err := f.svc.Sweeper.Run(ctx, start.Add(day))
	require.NoError(t, err)
	assert.Equal(t, 0, res.TrialReminders)

	f.advance(12 * day)
	res, err = f.svc.Sweeper.Run(ctx, start.Add(12*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TrialReminders)

	notes := f.notifications(t, "u1")
	require.Len(t, notes, 2)
	assert.Equal(t, subscription.NotifyTrialEnding, notes[0].Type)
	assert.Contains(t, notes[0].Message, "Pro")

	res, err = f.svc.Sweeper.Run(ctx, start.Add(13*day))
	require.NoError(t, err)
	assert.Equal(t, 0, res.TrialReminders)
}

func TestSweeper_TrialReminderAfterCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.seedPlans(t)
	ctx := context.Background()
	start := f.clock()

	sub, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 14)
	require.NoError(t, err)
	_, err = f.svc.Manager.Cancel(as("u1"), sub.ID)
	require.NoError(t, err)

	f.advance(12 * day)
	res, err := f.svc.Sweeper.Run(ctx, start.Add(12*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TrialReminders)

	var reminder *subscription.Notification
	for _, n := range f.notifications(t, "u1") {
		if n.Type == subscription.NotifyTrialEnding {
			reminder = &n
		}
	}
	require.NotNil(t, reminder)
	assert.Contains(t, reminder.Message, "will not be charged")
	assert.NotContains(t, reminder.Message, "After that you will be charged")
}

func TestSweeper_RenewalReminder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	p := f.seedPlans(t)
	ctx := context.Background()
	start := f.clock()

	_, err := f.svc.Manager.Create(as("u1"), p.pro.ID, 0)
	require.NoError(t, err)
	_, err = f.svc.Manager.Create(as("u2"), p.free.ID, 0)
	require.NoError(t, err)

	res, err := f.svc.Sweeper.Run(ctx, start.Add(20*day))
	require.NoError(t, err)
	assert.Equal(t, 0, res.RenewalReminders)

	f.advance(25 * day)
	res, err = f.svc.Sweeper.Run(ctx, start.Add(25*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RenewalReminders)

	notes := f.notifications(t, "u1")
	assert.Equal(t, subscription.NotifyRenewalReminder, notes[0].Type)
	assert.Contains(t, notes[0].Message, "4.99")
	assert.Len(t, f.notifications(t, "u2"), 1)

	res, err = f.svc.Sweeper.Run(ctx, start.Add(26*day))
	require.NoError(t, err)
	assert.Equal(t, 0, res.RenewalReminders)
}
