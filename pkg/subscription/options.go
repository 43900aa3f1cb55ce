package subscription

import (
	"log/slog"
	"time"
)

// Option configures the components of this package. Each constructor reads
// only the settings it needs.
type Option func(*options)

type options struct {
	log            *slog.Logger
	now            func() time.Time
	metrics        *Metrics
	cache          PlanCache
	deliverers     []Deliverer
	trialWindow    time.Duration
	renewalWindow  time.Duration
	watchPageLimit int
}

func newOptions(opts []Option) *options {
	o := &options{
		log:            slog.Default(),
		now:            time.Now,
		trialWindow:    3 * 24 * time.Hour,
		renewalWindow:  7 * 24 * time.Hour,
		watchPageLimit: 50,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// clock returns the current time in UTC truncated to the store's millisecond precision.
func (o *options) clock() time.Time {
	return o.now().UTC().Truncate(time.Millisecond)
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock replaces time.Now. Used by tests and the sweep command.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPlanCache puts a read-through cache in front of the active plan list.
func WithPlanCache(c PlanCache) Option {
	return func(o *options) { o.cache = c }
}

// WithDeliverers adds best-effort channels run after a notification is stored.
func WithDeliverers(d ...Deliverer) Option {
	return func(o *options) {
		for _, v := range d {
			if v != nil {
				o.deliverers = append(o.deliverers, v)
			}
		}
	}
}

// WithReminderWindows sets how long before trial end and period end the
// sweeper emits trial_ending and renewal_reminder notifications.
func WithReminderWindows(trial, renewal time.Duration) Option {
	return func(o *options) {
		if trial > 0 {
			o.trialWindow = trial
		}
		if renewal > 0 {
			o.renewalWindow = renewal
		}
	}
}
