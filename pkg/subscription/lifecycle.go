package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/opqueue"
	"github.com/dmitrymomot/fintrack/pkg/statemachine"
)

// Manager applies subscription lifecycle transitions. Every mutation runs on
// the shared operation queue and, when it changes plan or status, writes one
// change row and refreshes the profile projection before returning.
type Manager struct {
	store     *Store
	catalog   *Catalog
	ledger    *Ledger
	notifier  *Notifier
	projector *Projector
	queue     *opqueue.Queue
	table     *statemachine.Table[Status, transition]
	opts      *options
}

func NewManager(store *Store, catalog *Catalog, ledger *Ledger, notifier *Notifier, projector *Projector, queue *opqueue.Queue, opts ...Option) *Manager {
	if store == nil || catalog == nil || ledger == nil || notifier == nil || projector == nil || queue == nil {
		panic("subscription: manager dependencies are required")
	}
	return &Manager{
		store:     store,
		catalog:   catalog,
		ledger:    ledger,
		notifier:  notifier,
		projector: projector,
		queue:     queue,
		table:     newStatusTable(),
		opts:      newOptions(opts),
	}
}

// Create starts a subscription on planID for the caller. A positive
// trialDays starts it in trialing.
func (m *Manager) Create(ctx context.Context, planID string, trialDays int) (*Subscription, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if trialDays < 0 {
		return nil, fmt.Errorf("%w: negative trial days", ErrInvalidSubscription)
	}

	return opqueue.Submit(ctx, m.queue, func(ctx context.Context) (*Subscription, error) {
		return m.create(ctx, caller.UserID, planID, trialDays)
	})
}

func (m *Manager) create(ctx context.Context, userID, planID string, trialDays int) (*Subscription, error) {
	plan, err := m.catalog.GetActivePlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	prev, err := m.store.CurrentSubscription(ctx, userID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		prev = nil
	case err != nil:
		return nil, err
	case prev.Status.IsActive():
		return nil, ErrSubscriptionAlreadyExists
	}

	now := m.opts.clock()
	createdAt := now
	if prev != nil && !createdAt.After(prev.CreatedAt) {
		// keep "latest by createdAt" unambiguous within one clock tick
		createdAt = prev.CreatedAt.Add(time.Millisecond)
	}

	sub := Subscription{
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(DefaultPeriod),
		Metadata:           map[string]any{},
		CreatedAt:          createdAt,
		UpdatedAt:          now,
	}
	if trialDays > 0 {
		trialEnd := now.AddDate(0, 0, trialDays)
		sub.Status = StatusTrialing
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if _, err := m.store.Subscriptions.Create(ctx, &sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	change := &Change{
		UserID:         userID,
		SubscriptionID: sub.ID,
		ToPlanID:       plan.ID,
		ChangeType:     ChangeReactivate,
		Metadata:       map[string]any{"trialDays": trialDays},
	}
	if prev != nil {
		if err := m.store.Subscriptions.Update(ctx, prev.ID, docstore.Fields{
			"supersededBy": sub.ID,
			"updatedAt":    now,
		}); err != nil {
			return nil, fmt.Errorf("failed to supersede previous subscription: %w", err)
		}
		change.FromPlanID = prev.PlanID
	}
	if err := m.ledger.RecordChange(ctx, change); err != nil {
		return nil, err
	}
	if err := m.projector.Sync(ctx, &sub, plan); err != nil {
		return nil, err
	}

	m.notify(ctx, userID, NotifySubscriptionCreated,
		"Subscription started",
		fmt.Sprintf("You are now on the %s plan (%s).", plan.DisplayName, FormatPrice(*plan)),
		map[string]any{"subscriptionId": sub.ID, "planId": plan.ID},
	)

	m.opts.metrics.transition("create")
	m.opts.log.InfoContext(ctx, "subscription created",
		logger.UserID(userID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(plan.ID),
		slog.String("status", string(sub.Status)),
	)
	return &sub, nil
}

// ChangePlan moves an active or trialing subscription to another plan in
// place. The billing period is kept and no proration is computed.
func (m *Manager) ChangePlan(ctx context.Context, subscriptionID, planID string) (*Subscription, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	return opqueue.Submit(ctx, m.queue, func(ctx context.Context) (*Subscription, error) {
		sub, err := m.owned(ctx, caller.UserID, subscriptionID)
		if err != nil {
			return nil, err
		}
		if err := m.check(ctx, sub, evChangePlan); err != nil {
			return nil, err
		}
		if sub.PlanID == planID {
			return nil, ErrSamePlan
		}

		target, err := m.catalog.GetActivePlan(ctx, planID)
		if err != nil {
			return nil, err
		}
		from, err := m.planOf(ctx, sub)
		if err != nil {
			return nil, err
		}
		kind := ClassifyChange(from, *target)

		now := m.opts.clock()
		if err := m.store.Subscriptions.Update(ctx, sub.ID, docstore.Fields{
			"planId":    target.ID,
			"updatedAt": now,
		}); err != nil {
			return nil, fmt.Errorf("failed to change subscription plan: %w", err)
		}
		fromPlanID := sub.PlanID
		sub.PlanID = target.ID
		sub.UpdatedAt = now

		if err := m.ledger.RecordChange(ctx, &Change{
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			FromPlanID:     fromPlanID,
			ToPlanID:       target.ID,
			ChangeType:     kind,
		}); err != nil {
			return nil, err
		}
		if err := m.projector.Sync(ctx, sub, target); err != nil {
			return nil, err
		}

		m.notify(ctx, sub.UserID, NotifySubscriptionUpdated,
			"Plan changed",
			fmt.Sprintf("Your subscription moved to the %s plan (%s).", target.DisplayName, FormatPrice(*target)),
			map[string]any{"subscriptionId": sub.ID, "planId": target.ID, "changeType": string(kind)},
		)

		m.opts.metrics.transition(string(kind))
		m.opts.log.InfoContext(ctx, "subscription plan changed",
			logger.UserID(sub.UserID),
			logger.SubscriptionID(sub.ID),
			logger.PlanID(target.ID),
			logger.ChangeType(string(kind)),
		)
		return sub, nil
	})
}

// Cancel schedules the subscription to end with its current period. The
// status is left as is.
func (m *Manager) Cancel(ctx context.Context, subscriptionID string) (*Subscription, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	return opqueue.Submit(ctx, m.queue, func(ctx context.Context) (*Subscription, error) {
		sub, err := m.owned(ctx, caller.UserID, subscriptionID)
		if err != nil {
			return nil, err
		}
		if err := m.check(ctx, sub, evCancel); err != nil {
			return nil, err
		}

		now := m.opts.clock()
		if err := m.store.Subscriptions.Update(ctx, sub.ID, docstore.Fields{
			"cancelAtPeriodEnd": true,
			"canceledAt":        now,
			"updatedAt":         now,
		}); err != nil {
			return nil, fmt.Errorf("failed to cancel subscription: %w", err)
		}
		sub.CancelAtPeriodEnd = true
		sub.CanceledAt = &now
		sub.UpdatedAt = now

		if err := m.ledger.RecordChange(ctx, &Change{
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			FromPlanID:     sub.PlanID,
			ToPlanID:       sub.PlanID,
			ChangeType:     ChangeCancel,
			EffectiveDate:  now,
			Metadata:       map[string]any{"endsAt": sub.CurrentPeriodEnd},
		}); err != nil {
			return nil, err
		}
		if err := m.project(ctx, sub); err != nil {
			return nil, err
		}

		m.notify(ctx, sub.UserID, NotifySubscriptionCanceled,
			"Subscription canceled",
			fmt.Sprintf("Your subscription stays active until %s.", sub.CurrentPeriodEnd.Format("January 2, 2006")),
			map[string]any{"subscriptionId": sub.ID},
		)

		m.opts.metrics.transition(string(ChangeCancel))
		m.opts.log.InfoContext(ctx, "subscription canceled",
			logger.UserID(sub.UserID),
			logger.SubscriptionID(sub.ID),
		)
		return sub, nil
	})
}

// Reactivate clears a pending cancellation and forces the status back to
// active. Calling it on an active subscription is allowed and still recorded.
func (m *Manager) Reactivate(ctx context.Context, subscriptionID string) (*Subscription, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	return opqueue.Submit(ctx, m.queue, func(ctx context.Context) (*Subscription, error) {
		sub, err := m.owned(ctx, caller.UserID, subscriptionID)
		if err != nil {
			return nil, err
		}
		if err := m.check(ctx, sub, evReactivate); err != nil {
			return nil, err
		}

		now := m.opts.clock()
		if err := m.store.Subscriptions.Update(ctx, sub.ID, docstore.Fields{
			"status":            StatusActive,
			"cancelAtPeriodEnd": false,
			"canceledAt":        nil,
			"updatedAt":         now,
		}); err != nil {
			return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
		}
		prevStatus := sub.Status
		sub.Status = StatusActive
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = nil
		sub.UpdatedAt = now

		if err := m.ledger.RecordChange(ctx, &Change{
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			FromPlanID:     sub.PlanID,
			ToPlanID:       sub.PlanID,
			ChangeType:     ChangeReactivate,
			EffectiveDate:  now,
			Metadata:       map[string]any{"previousStatus": string(prevStatus)},
		}); err != nil {
			return nil, err
		}
		if err := m.project(ctx, sub); err != nil {
			return nil, err
		}

		m.notify(ctx, sub.UserID, NotifySubscriptionUpdated,
			"Subscription reactivated",
			"Your subscription is active again and will renew at the end of the period.",
			map[string]any{"subscriptionId": sub.ID},
		)

		m.opts.metrics.transition(string(ChangeReactivate))
		m.opts.log.InfoContext(ctx, "subscription reactivated",
			logger.UserID(sub.UserID),
			logger.SubscriptionID(sub.ID),
			slog.String("previous_status", string(prevStatus)),
		)
		return sub, nil
	})
}

// Current returns the caller's current subscription.
func (m *Manager) Current(ctx context.Context) (*Subscription, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return m.CurrentFor(ctx, caller.UserID)
}

// CurrentFor returns the latest subscription of userID.
func (m *Manager) CurrentFor(ctx context.Context, userID string) (*Subscription, error) {
	return m.store.CurrentSubscription(ctx, userID)
}

// History returns the caller's change rows, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]Change, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	return m.ledger.Changes(ctx, caller.UserID, limit)
}

// advance moves sub through ev, persists the new status together with extra
// fields and refreshes the projection. Must run on the queue.
func (m *Manager) advance(ctx context.Context, sub *Subscription, ev transition, extra docstore.Fields) error {
	next, err := m.table.Next(ctx, sub.Status, ev, sub)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubscriptionState, err)
	}

	now := m.opts.clock()
	fields := docstore.Fields{"status": next, "updatedAt": now}
	for k, v := range extra {
		fields[k] = v
	}
	if err := m.store.Subscriptions.Update(ctx, sub.ID, fields); err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	m.opts.log.InfoContext(ctx, "subscription status changed",
		logger.UserID(sub.UserID),
		logger.SubscriptionID(sub.ID),
		slog.String("from", string(sub.Status)),
		slog.String("to", string(next)),
		slog.String("event", string(ev)),
	)
	m.opts.metrics.transition(string(ev))

	sub.Status = next
	sub.UpdatedAt = now
	return m.project(ctx, sub)
}

// owned loads a subscription and checks it belongs to userID.
func (m *Manager) owned(ctx context.Context, userID, subscriptionID string) (*Subscription, error) {
	sub, err := m.store.Subscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.OwnedBy(userID) {
		m.opts.log.WarnContext(ctx, "subscription ownership mismatch",
			logger.UserID(userID),
			logger.SubscriptionID(subscriptionID),
		)
		return nil, ErrUnauthorized
	}
	return sub, nil
}

func (m *Manager) check(ctx context.Context, sub *Subscription, ev transition) error {
	if _, err := m.table.Next(ctx, sub.Status, ev, sub); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubscriptionState, err)
	}
	return nil
}

// planOf resolves the subscription's plan. A plan missing from the catalog
// is returned as nil.
func (m *Manager) planOf(ctx context.Context, sub *Subscription) (*Plan, error) {
	plan, err := m.catalog.GetPlan(ctx, sub.PlanID)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, nil
	}
	return plan, err
}

func (m *Manager) project(ctx context.Context, sub *Subscription) error {
	plan, err := m.planOf(ctx, sub)
	if err != nil {
		return err
	}
	return m.projector.Sync(ctx, sub, plan)
}

// notify emits a notification. The transition already happened, so a
// failure here is logged and not returned.
func (m *Manager) notify(ctx context.Context, userID string, t NotificationType, title, message string, data map[string]any) {
	if err := m.notifier.Emit(ctx, &Notification{
		UserID:  userID,
		Type:    t,
		Title:   title,
		Message: message,
		Data:    data,
	}); err != nil {
		m.opts.log.WarnContext(ctx, "failed to emit subscription notification",
			logger.UserID(userID),
			logger.EventType(string(t)),
			logger.Error(err),
		)
	}
}
