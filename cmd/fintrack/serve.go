package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/fintrack/modules/billing"
	"github.com/dmitrymomot/fintrack/pkg/config"
	"github.com/dmitrymomot/fintrack/pkg/httpserver"
	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, serve)
	},
}

func serve(ctx context.Context, a *app) error {
	var hcfg httpserver.Config
	if err := config.Load(&hcfg); err != nil {
		return err
	}
	var pcfg subscription.PaddleConfig
	if err := config.Load(&pcfg); err != nil {
		return err
	}

	httpLog := a.log.With(logger.Component("http"))
	opts := billing.RouterOptions{
		Service: a.svc,
		Metrics: a.registry,
		Logger:  httpLog,
	}
	if pcfg.WebhookSecret != "" {
		parser, err := subscription.NewPaddleWebhookParser(pcfg)
		if err != nil {
			return err
		}
		opts.Webhooks = parser
	} else {
		a.log.WarnContext(ctx, "PADDLE_WEBHOOK_SECRET not set, billing webhooks are disabled")
	}

	r := chi.NewRouter()
	r.Get("/health/live", httpserver.HealthCheckHandler(a.log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(a.log, a.checks...))
	r.Mount("/", billing.Router(opts))

	srv := httpserver.New(hcfg, httpserver.WithLogger(httpLog))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, r) })
	g.Go(func() error { return sweepLoop(ctx, a) })
	return g.Wait()
}

// sweepLoop runs the sweeper every SWEEP_INTERVAL until ctx is done.
// A non-positive interval disables it.
func sweepLoop(ctx context.Context, a *app) error {
	if a.cfg.SweepInterval <= 0 {
		return nil
	}
	log := a.log.With(logger.Component("sweeper"))
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := a.svc.Sweeper.Run(ctx, time.Now().UTC())
			if err != nil {
				log.ErrorContext(ctx, "sweep finished with errors", logger.Error(err))
			}
			log.DebugContext(ctx, "sweep done", logger.Group("sweep",
				slog.Int("finalized", res.Finalized),
				slog.Int("trial_reminders", res.TrialReminders),
				slog.Int("renewal_reminders", res.RenewalReminders),
			))
		}
	}
}
