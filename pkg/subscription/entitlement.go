package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/fintrack/pkg/logger"
)

// Entitlement is a user's effective plan, limits and current usage.
type Entitlement struct {
	UserID         string `json:"userId"`
	Tier           Tier   `json:"tier"`
	PlanID         string `json:"planId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Status         Status `json:"status,omitempty"`
	Limits         Limits `json:"limits"`
	Usage          Usage  `json:"usage"`
}

// Usage holds live counts of plan-limited resources.
type Usage struct {
	Cards        int64 `json:"cards"`
	Transactions int64 `json:"transactions"`
}

// Evaluator derives capabilities from the authoritative subscription and
// plan records. It never reads the profile projection.
type Evaluator struct {
	store   *Store
	catalog *Catalog
	opts    *options
}

func NewEvaluator(store *Store, catalog *Catalog, opts ...Option) *Evaluator {
	if store == nil || catalog == nil {
		panic("subscription: evaluator requires store and catalog")
	}
	return &Evaluator{store: store, catalog: catalog, opts: newOptions(opts)}
}

type resolution struct {
	sub  *Subscription
	plan *Plan
}

func (r resolution) tier() Tier {
	if r.plan == nil {
		return TierFree
	}
	return r.plan.Tier
}

func (r resolution) limits() Limits {
	if r.plan == nil {
		return DefaultLimits
	}
	return r.plan.Limits
}

// resolve finds the user's entitled plan. A missing subscription, a status
// without entitlement or an unknown plan yields an empty resolution.
func (e *Evaluator) resolve(ctx context.Context, userID string) (resolution, error) {
	sub, err := e.store.CurrentSubscription(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return resolution{}, nil
	}
	if err != nil {
		return resolution{}, err
	}
	if !sub.Status.Entitled() {
		return resolution{sub: sub}, nil
	}

	plan, err := e.catalog.GetPlan(ctx, sub.PlanID)
	if errors.Is(err, ErrPlanNotFound) {
		return resolution{sub: sub}, nil
	}
	if err != nil {
		return resolution{sub: sub}, err
	}
	return resolution{sub: sub, plan: plan}, nil
}

// GetUserLimits returns the limits of the user's current plan, or
// DefaultLimits when none can be resolved. Store failures also degrade to
// DefaultLimits.
func (e *Evaluator) GetUserLimits(ctx context.Context, userID string) Limits {
	res, err := e.resolve(ctx, userID)
	if err != nil {
		e.opts.log.WarnContext(ctx, "entitlement lookup failed, using default limits",
			logger.UserID(userID),
			logger.Error(err),
		)
		return DefaultLimits
	}
	return res.limits()
}

// CheckPlanLimits reports whether the user may perform action. Paid tiers
// always may. Free-tier users are checked against a live count of the items
// they own. Counting failures are returned and the caller should deny.
func (e *Evaluator) CheckPlanLimits(ctx context.Context, userID string, action Action) (bool, error) {
	collection, err := actionCollection(action)
	if err != nil {
		return false, err
	}

	res, err := e.resolve(ctx, userID)
	if err != nil {
		e.opts.log.WarnContext(ctx, "entitlement lookup failed, checking against default limits",
			logger.UserID(userID),
			logger.Error(err),
		)
		res = resolution{}
	}

	if res.tier() != TierFree {
		e.opts.metrics.check(action, true)
		return true, nil
	}

	limit, err := res.limits().Ceiling(action)
	if err != nil {
		return false, err
	}
	if limit == Unlimited {
		e.opts.metrics.check(action, true)
		return true, nil
	}

	count, err := e.store.CountOwned(ctx, collection, userID)
	if err != nil {
		return false, err
	}

	allowed := Allows(limit, count)
	e.opts.metrics.check(action, allowed)
	return allowed, nil
}

// HasFeature reports whether the user's plan enables f. Any failure denies.
func (e *Evaluator) HasFeature(ctx context.Context, userID string, f Feature) bool {
	res, err := e.resolve(ctx, userID)
	if err != nil {
		e.opts.log.WarnContext(ctx, "feature check failed", logger.UserID(userID), logger.Error(err))
		return false
	}
	return res.limits().Has(f)
}

// Entitlements returns the user's tier, limits and live usage counts.
func (e *Evaluator) Entitlements(ctx context.Context, userID string) (Entitlement, error) {
	res, err := e.resolve(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}

	ent := Entitlement{
		UserID: userID,
		Tier:   res.tier(),
		Limits: res.limits(),
	}
	if res.sub != nil {
		ent.SubscriptionID = res.sub.ID
		ent.Status = res.sub.Status
	}
	if res.plan != nil {
		ent.PlanID = res.plan.ID
	}

	if ent.Usage.Cards, err = e.store.CountOwned(ctx, CollectionCards, userID); err != nil {
		return Entitlement{}, err
	}
	if ent.Usage.Transactions, err = e.store.CountOwned(ctx, CollectionTransactions, userID); err != nil {
		return Entitlement{}, err
	}
	return ent, nil
}

func actionCollection(a Action) (string, error) {
	switch a {
	case ActionAddCard:
		return CollectionCards, nil
	case ActionAddTransaction:
		return CollectionTransactions, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, a)
	}
}
