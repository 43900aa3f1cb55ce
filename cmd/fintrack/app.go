package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/fintrack/pkg/config"
	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/email"
	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/mongo"
	"github.com/dmitrymomot/fintrack/pkg/opqueue"
	"github.com/dmitrymomot/fintrack/pkg/redis"
	"github.com/dmitrymomot/fintrack/pkg/requestid"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

// Storage backends selectable with STORE_DRIVER.
const (
	storeMongo  = "mongo"
	storeMemory = "memory"
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	StoreDriver   string        `env:"STORE_DRIVER" envDefault:"mongo"`
	PlanCache     bool          `env:"PLAN_CACHE_ENABLED" envDefault:"false"`
	PlanCacheTTL  time.Duration `env:"PLAN_CACHE_TTL" envDefault:"5m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"15m"`
}

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg      appConfig
	log      *slog.Logger
	registry *prometheus.Registry
	svc      *subscription.Service
	checks   []func(context.Context) error

	closers []func(context.Context) error
}

func loadEnvFiles(paths []string) error {
	return config.LoadEnvFiles(paths...)
}

// bootstrap connects storage and builds the subscription service.
// The returned app must be closed by the caller.
func bootstrap(ctx context.Context) (*app, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	if cfg.StoreDriver != storeMongo && cfg.StoreDriver != storeMemory {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, "fintrack"),
		logger.WithContextExtractors(requestid.LogExtractor, subscription.LogIdentity),
	)
	logger.SetAsDefault(log)

	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	driver, err := a.openStore(ctx)
	if err != nil {
		return nil, errors.Join(err, a.Close(context.Background()))
	}

	opts := []subscription.Option{
		subscription.WithLogger(log.With(logger.Component("subscription"))),
		subscription.WithMetrics(subscription.NewMetrics(a.registry)),
	}

	if cfg.PlanCache {
		cache, err := a.openPlanCache(ctx)
		if err != nil {
			return nil, errors.Join(err, a.Close(context.Background()))
		}
		opts = append(opts, subscription.WithPlanCache(cache))
	}

	sender, err := a.emailSender()
	if err != nil {
		return nil, errors.Join(err, a.Close(context.Background()))
	}
	opts = append(opts, subscription.WithDeliverers(
		subscription.NewEmailDeliverer(subscription.NewStore(driver), sender),
	))

	queue := opqueue.New()
	a.closers = append(a.closers, func(context.Context) error { return queue.Close() })

	a.svc = subscription.New(driver, queue, opts...)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (docstore.Driver, error) {
	if a.cfg.StoreDriver == storeMemory {
		a.log.WarnContext(ctx, "using in-memory document store, data is lost on exit")
		return docstore.NewMemory(), nil
	}

	var mcfg mongo.Config
	if err := config.Load(&mcfg); err != nil {
		return nil, err
	}
	db, err := mongo.Database(ctx, mcfg)
	if err != nil {
		return nil, err
	}
	client := db.Client()
	a.closers = append(a.closers, func(ctx context.Context) error { return client.Disconnect(ctx) })
	a.checks = append(a.checks, mongo.Healthcheck(client))

	if err := mongo.EnsureIndexes(ctx, db, indexes...); err != nil {
		return nil, err
	}
	return docstore.NewMongo(db), nil
}

func (a *app) openPlanCache(ctx context.Context) (*subscription.RedisPlanCache, error) {
	var rcfg redis.Config
	if err := config.Load(&rcfg); err != nil {
		return nil, err
	}
	client, err := redis.Connect(ctx, rcfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.checks = append(a.checks, redis.Healthcheck(client))

	storage := redis.NewStorage(client,
		redis.WithPrefix("fintrack:plans:"),
		redis.WithScanBatchSize(rcfg.ScanBatchSize),
	)
	return subscription.NewRedisPlanCache(storage, a.cfg.PlanCacheTTL, a.log.With(logger.Component("plancache"))), nil
}

func (a *app) emailSender() (email.EmailSender, error) {
	var ecfg email.Config
	if err := config.Load(&ecfg); err != nil {
		return nil, err
	}
	if !ecfg.Enabled() {
		a.log.Info("postmark credentials not set, emails are logged only")
		return email.NewLogSender(a.log), nil
	}
	return email.NewPostmarkClient(ecfg)
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// run bootstraps the app, calls fn and closes the app.
func run(ctx context.Context, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		err = errors.Join(err, a.Close(closeCtx))
	}()
	return fn(ctx, a)
}
