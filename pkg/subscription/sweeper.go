package subscription

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/opqueue"
)

const (
	metaTrialReminderSent  = "trialReminderSent"
	metaRenewalReminderFor = "renewalReminderFor"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Finalized        int `json:"finalized"`
	TrialReminders   int `json:"trialReminders"`
	RenewalReminders int `json:"renewalReminders"`
}

// Sweeper is the periodic job that ends subscriptions scheduled for
// cancellation and sends trial and renewal reminders.
type Sweeper struct {
	m *Manager
}

func NewSweeper(m *Manager) *Sweeper {
	if m == nil {
		panic("subscription: manager is required")
	}
	return &Sweeper{m: m}
}

// Run performs one sweep as of now. Per-subscription failures are logged,
// the sweep continues and the joined errors are returned.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (SweepResult, error) {
	var (
		res  SweepResult
		errs []error
		err  error
	)

	res.Finalized, err = s.finalize(ctx, now)
	errs = append(errs, err)
	res.TrialReminders, err = s.remindTrials(ctx, now)
	errs = append(errs, err)
	res.RenewalReminders, err = s.remindRenewals(ctx, now)
	errs = append(errs, err)

	s.m.opts.log.InfoContext(ctx, "subscription sweep finished",
		logger.Count(res.Finalized+res.TrialReminders+res.RenewalReminders),
		logger.Errors(errs...),
	)
	return res, errors.Join(errs...)
}

// finalize moves subscriptions whose cancellation period has ended to
// canceled and records the end as a cancel change sourced from period_end.
func (s *Sweeper) finalize(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.m.store.Subscriptions.Find(ctx, docstore.Where("cancelAtPeriodEnd", true))
	if err != nil {
		return 0, fmt.Errorf("failed to load canceling subscriptions: %w", err)
	}

	done := 0
	var errs []error
	for _, candidate := range subs {
		if candidate.Status == StatusCanceled || candidate.CurrentPeriodEnd.After(now) {
			continue
		}

		ended, err := opqueue.Submit(ctx, s.m.queue, func(ctx context.Context) (bool, error) {
			sub, err := s.m.store.Subscription(ctx, candidate.ID)
			if err != nil {
				return false, err
			}
			if !sub.CancelAtPeriodEnd || sub.CurrentPeriodEnd.After(now) || !s.m.table.Can(ctx, sub.Status, evPeriodEnd, sub) {
				return false, nil
			}
			if err := s.m.advance(ctx, sub, evPeriodEnd, nil); err != nil {
				return false, err
			}
			if err := s.m.ledger.RecordChange(ctx, &Change{
				UserID:         sub.UserID,
				SubscriptionID: sub.ID,
				FromPlanID:     sub.PlanID,
				ToPlanID:       sub.PlanID,
				ChangeType:     ChangeCancel,
				EffectiveDate:  sub.CurrentPeriodEnd,
				Metadata:       map[string]any{"source": "period_end"},
			}); err != nil {
				return false, err
			}

			s.m.notify(ctx, sub.UserID, NotifySubscriptionUpdated,
				"Subscription ended",
				"Your billing period has ended and your subscription is now canceled.",
				map[string]any{"subscriptionId": sub.ID},
			)
			return true, nil
		})
		if ended {
			done++
		}
		if err != nil {
			s.m.opts.log.WarnContext(ctx, "failed to finalize subscription",
				logger.SubscriptionID(candidate.ID),
				logger.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return done, errors.Join(errs...)
}

func (s *Sweeper) remindTrials(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.m.store.Subscriptions.Find(ctx, docstore.Where("status", StatusTrialing))
	if err != nil {
		return 0, fmt.Errorf("failed to load trialing subscriptions: %w", err)
	}

	sent := 0
	var errs []error
	for _, sub := range subs {
		if sub.TrialEnd == nil || !within(now, *sub.TrialEnd, s.m.opts.trialWindow) {
			continue
		}
		if done, _ := sub.Metadata[metaTrialReminderSent].(bool); done {
			continue
		}

		plan, err := s.m.planOf(ctx, &sub)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ends := sub.TrialEnd.Format("January 2, 2006")
		var msg string
		switch {
		case sub.CancelAtPeriodEnd:
			// canceled trials end without a charge
			msg = fmt.Sprintf("Your trial ends on %s. You will not be charged.", ends)
		case plan != nil:
			msg = fmt.Sprintf("Your %s trial ends on %s. After that you will be charged %s.",
				plan.DisplayName, ends, FormatPrice(*plan))
		default:
			msg = fmt.Sprintf("Your trial ends on %s.", ends)
		}

		if err := s.remind(ctx, &sub, NotifyTrialEnding, "Your trial ends soon", msg, metaTrialReminderSent, true); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *Sweeper) remindRenewals(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.m.store.Subscriptions.Find(ctx, docstore.Where("status", StatusActive).Where("cancelAtPeriodEnd", false))
	if err != nil {
		return 0, fmt.Errorf("failed to load active subscriptions: %w", err)
	}

	sent := 0
	var errs []error
	for _, sub := range subs {
		if !within(now, sub.CurrentPeriodEnd, s.m.opts.renewalWindow) {
			continue
		}
		period := sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		if v, _ := sub.Metadata[metaRenewalReminderFor].(string); v == period {
			continue
		}

		plan, err := s.m.planOf(ctx, &sub)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		// free plans do not renew into a charge
		if plan == nil || plan.Price == 0 {
			continue
		}

		msg := fmt.Sprintf("Your %s plan renews on %s for %s.",
			plan.DisplayName, sub.CurrentPeriodEnd.Format("January 2, 2006"), FormatMoney(plan.Price, plan.Currency))
		if err := s.remind(ctx, &sub, NotifyRenewalReminder, "Your subscription renews soon", msg, metaRenewalReminderFor, period); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// remind emits a reminder and marks it in the subscription metadata so the
// next sweep skips it.
func (s *Sweeper) remind(ctx context.Context, sub *Subscription, t NotificationType, title, msg, key string, mark any) error {
	if err := s.m.notifier.Emit(ctx, &Notification{
		UserID:  sub.UserID,
		Type:    t,
		Title:   title,
		Message: msg,
		Data:    map[string]any{"subscriptionId": sub.ID},
	}); err != nil {
		return err
	}

	meta := maps.Clone(sub.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	meta[key] = mark
	if err := s.m.store.Subscriptions.Update(ctx, sub.ID, docstore.Fields{"metadata": meta}); err != nil {
		return fmt.Errorf("failed to mark reminder: %w", err)
	}
	return nil
}

// within reports whether deadline is still ahead of now by at most window.
func within(now, deadline time.Time, window time.Duration) bool {
	return deadline.After(now) && deadline.Sub(now) <= window
}
