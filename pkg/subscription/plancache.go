package subscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/redis"
)

const activePlansKey = "active"

// RedisPlanCache stores the active plan list in Redis as JSON. Cache errors
// are logged and treated as misses.
type RedisPlanCache struct {
	storage *redis.Storage
	ttl     time.Duration
	log     *slog.Logger
}

// DefaultPlanCacheTTL bounds how long another process may serve a plan list
// after an admin edit.
const DefaultPlanCacheTTL = 5 * time.Minute

// NewRedisPlanCache caches through storage for ttl. A non-positive ttl falls
// back to DefaultPlanCacheTTL so entries always expire.
func NewRedisPlanCache(storage *redis.Storage, ttl time.Duration, log *slog.Logger) *RedisPlanCache {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultPlanCacheTTL
	}
	return &RedisPlanCache{storage: storage, ttl: ttl, log: log}
}

func (c *RedisPlanCache) ActivePlans(ctx context.Context) ([]Plan, bool) {
	data, err := c.storage.Get(ctx, activePlansKey)
	if err != nil {
		c.log.WarnContext(ctx, "plan cache read failed", logger.Error(err))
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var plans []Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		c.log.WarnContext(ctx, "plan cache entry is corrupt", logger.Error(err))
		return nil, false
	}
	return plans, true
}

func (c *RedisPlanCache) StoreActivePlans(ctx context.Context, plans []Plan) {
	data, err := json.Marshal(plans)
	if err != nil {
		c.log.WarnContext(ctx, "failed to encode plans for cache", logger.Error(err))
		return
	}
	if err := c.storage.Set(ctx, activePlansKey, data, c.ttl); err != nil {
		c.log.WarnContext(ctx, "plan cache write failed", logger.Error(err))
	}
}

func (c *RedisPlanCache) Invalidate(ctx context.Context) error {
	return c.storage.Delete(ctx, activePlansKey)
}
