package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
)

// Projector is the only writer of the subscription summary on user profiles.
type Projector struct {
	store   *Store
	catalog *Catalog
	opts    *options
}

func NewProjector(store *Store, catalog *Catalog, opts ...Option) *Projector {
	if store == nil || catalog == nil {
		panic("subscription: projector requires store and catalog")
	}
	return &Projector{store: store, catalog: catalog, opts: newOptions(opts)}
}

// Sync writes the projection of sub onto the owner's profile, creating a
// minimal profile document when none exists. A nil plan projects as free.
func (p *Projector) Sync(ctx context.Context, sub *Subscription, plan *Plan) error {
	if sub == nil {
		return ErrInvalidSubscription
	}

	tier := TierFree
	if plan != nil {
		tier = plan.Tier
	}
	proj := Projection{
		Tier:              tier,
		Status:            sub.Status,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PlanID:            sub.PlanID,
		UpdatedAt:         p.opts.clock(),
	}

	fields := docstore.Fields{
		"subscription":       proj,
		"subscriptionTier":   proj.Tier,
		"subscriptionStatus": proj.Status,
	}
	if id, ok := IdentityFromContext(ctx); ok && id.UserID == sub.UserID && id.Email != "" {
		fields["email"] = id.Email
	}

	if err := p.store.Users.Upsert(ctx, sub.UserID, fields); err != nil {
		return fmt.Errorf("failed to update profile projection: %w", err)
	}
	return nil
}

// Reconcile recomputes the user's projection from the current subscription.
// Users without a subscription get the projection cleared to the free tier.
func (p *Projector) Reconcile(ctx context.Context, userID string) error {
	sub, err := p.store.CurrentSubscription(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return p.store.Users.Upsert(ctx, userID, docstore.Fields{
			"subscription":       nil,
			"subscriptionTier":   TierFree,
			"subscriptionStatus": "",
		})
	}
	if err != nil {
		return err
	}

	plan, err := p.catalog.GetPlan(ctx, sub.PlanID)
	if errors.Is(err, ErrPlanNotFound) {
		plan = nil
	} else if err != nil {
		return err
	}
	return p.Sync(ctx, sub, plan)
}

// ReconcileAll reconciles every user that has at least one subscription and
// returns how many profiles were written. Failures are logged and skipped;
// the joined errors are returned.
func (p *Projector) ReconcileAll(ctx context.Context) (int, error) {
	subs, err := p.store.Subscriptions.Find(ctx, docstore.All())
	if err != nil {
		return 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	seen := make(map[string]bool)
	var errs []error
	done := 0
	for _, s := range subs {
		if seen[s.UserID] {
			continue
		}
		seen[s.UserID] = true

		if err := p.Reconcile(ctx, s.UserID); err != nil {
			p.opts.log.WarnContext(ctx, "projection reconcile failed", logger.UserID(s.UserID), logger.Error(err))
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}
