package subscription

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
)

// PlanCache caches the sorted list of active plans.
type PlanCache interface {
	ActivePlans(ctx context.Context) ([]Plan, bool)
	StoreActivePlans(ctx context.Context, plans []Plan)
	Invalidate(ctx context.Context) error
}

// PlanUpdate carries the admin-editable plan fields. Nil fields are unchanged.
type PlanUpdate struct {
	DisplayName *string   `json:"displayName,omitempty"`
	Price       *int64    `json:"price,omitempty"`
	Currency    *string   `json:"currency,omitempty"`
	Interval    *Interval `json:"interval,omitempty"`
	Limits      *Limits   `json:"limits,omitempty"`
	Features    []string  `json:"features,omitempty"`
	Active      *bool     `json:"active,omitempty"`
}

// Catalog manages plan definitions. Plans are never deleted, only deactivated.
type Catalog struct {
	plans docstore.Collection[Plan]
	opts  *options

	// generation counts cache invalidations. A plan list read before the
	// latest one is not written back to the cache.
	cacheMu    sync.Mutex
	generation uint64
}

func NewCatalog(store *Store, opts ...Option) *Catalog {
	if store == nil {
		panic("subscription: store is required")
	}
	return &Catalog{plans: store.Plans, opts: newOptions(opts)}
}

// GetPlans returns active plans sorted by ascending price, ties by earliest creation.
func (c *Catalog) GetPlans(ctx context.Context) ([]Plan, error) {
	var gen uint64
	if c.opts.cache != nil {
		if plans, ok := c.opts.cache.ActivePlans(ctx); ok {
			return plans, nil
		}
		gen = c.currentGeneration()
	}

	plans, err := c.plans.Find(ctx, docstore.Where("active", true).OrderBy("price", docstore.Asc))
	if err != nil {
		return nil, fmt.Errorf("failed to load plans: %w", err)
	}
	slices.SortStableFunc(plans, func(a, b Plan) int {
		if n := cmp.Compare(a.Price, b.Price); n != 0 {
			return n
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if c.opts.cache != nil {
		c.storeActivePlans(ctx, gen, plans)
	}
	return plans, nil
}

// GetPlan returns a plan by id, active or not.
func (c *Catalog) GetPlan(ctx context.Context, id string) (*Plan, error) {
	p, err := c.plans.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrEmptyID) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return p, nil
}

// GetActivePlan is GetPlan that treats deactivated plans as missing.
func (c *Catalog) GetActivePlan(ctx context.Context, id string) (*Plan, error) {
	p, err := c.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPlanNotFound
	}
	return p, nil
}

// GetPlanByTier returns the cheapest active plan of tier.
func (c *Catalog) GetPlanByTier(ctx context.Context, tier Tier) (*Plan, error) {
	plans, err := c.GetPlans(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.Tier == tier {
			return &p, nil
		}
	}
	return nil, ErrPlanNotFound
}

// CreatePlan stores a new active plan.
func (c *Catalog) CreatePlan(ctx context.Context, p Plan) (*Plan, error) {
	now := c.opts.clock()
	p.ID = ""
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Features == nil {
		p.Features = []string{}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if _, err := c.plans.Create(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	c.invalidate(ctx)

	c.opts.log.InfoContext(ctx, "plan created",
		logger.PlanID(p.ID),
		logger.Tier(string(p.Tier)),
		slog.Int64("price", p.Price),
	)
	return &p, nil
}

// UpdatePlan applies an admin edit and returns the updated plan.
func (c *Catalog) UpdatePlan(ctx context.Context, id string, upd PlanUpdate) (*Plan, error) {
	p, err := c.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := docstore.Fields{}
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
		fields["displayName"] = p.DisplayName
	}
	if upd.Price != nil {
		p.Price = *upd.Price
		fields["price"] = p.Price
	}
	if upd.Currency != nil {
		p.Currency = *upd.Currency
		fields["currency"] = p.Currency
	}
	if upd.Interval != nil {
		p.Interval = *upd.Interval
		fields["interval"] = p.Interval
	}
	if upd.Limits != nil {
		p.Limits = *upd.Limits
		fields["limits"] = p.Limits
	}
	if upd.Features != nil {
		p.Features = upd.Features
		fields["features"] = p.Features
	}
	if upd.Active != nil {
		p.Active = *upd.Active
		fields["active"] = p.Active
	}
	if len(fields) == 0 {
		return p, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.UpdatedAt = c.opts.clock()
	fields["updatedAt"] = p.UpdatedAt

	if err := c.plans.Update(ctx, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	c.invalidate(ctx)
	return p, nil
}

// DeactivatePlan hides a plan from the catalog. Existing subscriptions keep it.
func (c *Catalog) DeactivatePlan(ctx context.Context, id string) error {
	inactive := false
	_, err := c.UpdatePlan(ctx, id, PlanUpdate{Active: &inactive})
	return err
}

// Seed creates every plan whose name is not yet in the catalog and returns
// how many were created. Existing plans are left untouched.
func (c *Catalog) Seed(ctx context.Context, plans []Plan) (int, error) {
	created := 0
	for _, p := range plans {
		n, err := c.plans.Count(ctx, docstore.Where("name", p.Name))
		if err != nil {
			return created, fmt.Errorf("failed to look up plan %q: %w", p.Name, err)
		}
		if n > 0 {
			continue
		}
		active := p.Active
		stored, err := c.CreatePlan(ctx, p)
		if err != nil {
			return created, fmt.Errorf("seed plan %q: %w", p.Name, err)
		}
		if !active {
			if err := c.DeactivatePlan(ctx, stored.ID); err != nil {
				return created, err
			}
		}
		created++
	}
	return created, nil
}

func (c *Catalog) invalidate(ctx context.Context) {
	if c.opts.cache == nil {
		return
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.generation++
	if err := c.opts.cache.Invalidate(ctx); err != nil {
		c.opts.log.WarnContext(ctx, "failed to invalidate plan cache", logger.Error(err))
	}
}

func (c *Catalog) currentGeneration() uint64 {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.generation
}

// storeActivePlans caches plans unless the catalog was invalidated after
// they were read.
func (c *Catalog) storeActivePlans(ctx context.Context, gen uint64, plans []Plan) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if gen != c.generation {
		c.opts.log.DebugContext(ctx, "plan list changed while loading, not caching")
		return
	}
	c.opts.cache.StoreActivePlans(ctx, plans)
}
