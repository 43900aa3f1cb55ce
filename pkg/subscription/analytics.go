package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
)

// Report is a full-collection snapshot of subscription revenue and churn.
// Money values are in minor units of the plans' currencies, summed as is.
type Report struct {
	ActiveByTier map[Tier]int64 `json:"activeByTier"`
	Total        int64          `json:"total"`
	Active       int64          `json:"active"`
	MRR          float64        `json:"mrr"`
	ARR          float64        `json:"arr"`
	ChurnRate    float64        `json:"churnRate"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}

// Aggregator computes the admin analytics report. It never writes.
type Aggregator struct {
	store *Store
	opts  *options
}

func NewAggregator(store *Store, opts ...Option) *Aggregator {
	if store == nil {
		panic("subscription: store is required")
	}
	return &Aggregator{store: store, opts: newOptions(opts)}
}

// Compute recomputes the report from every plan and subscription row.
func (a *Aggregator) Compute(ctx context.Context) (Report, error) {
	start := time.Now()

	var (
		plans []Plan
		subs  []Subscription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		plans, err = a.store.Plans.Find(gctx, docstore.All())
		if err != nil {
			return fmt.Errorf("failed to load plans: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		subs, err = a.store.Subscriptions.Find(gctx, docstore.All())
		if err != nil {
			return fmt.Errorf("failed to load subscriptions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}

	r := Report{
		ActiveByTier: map[Tier]int64{TierFree: 0, TierPro: 0, TierEnterprise: 0},
		Total:        int64(len(subs)),
		GeneratedAt:  a.opts.clock(),
	}
	for _, s := range subs {
		if !s.Status.IsActive() {
			continue
		}
		r.Active++

		p, ok := byID[s.PlanID]
		if !ok {
			continue
		}
		r.ActiveByTier[p.Tier]++
		if p.Tier == TierPro || p.Tier == TierEnterprise {
			r.MRR += p.MonthlyAmount()
		}
	}
	r.ARR = r.MRR * 12
	if r.Total > 0 {
		r.ChurnRate = float64(r.Total-r.Active) / float64(r.Total)
	}

	a.opts.log.DebugContext(ctx, "subscription analytics computed",
		logger.Count(len(subs)),
		slog.Float64("mrr", r.MRR),
		logger.Duration(time.Since(start)),
	)
	return r, nil
}
