// Package billing exposes the subscription core as JSON endpoints.
package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/fintrack/pkg/requestid"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

// WebhookParser verifies and decodes a billing provider callback.
type WebhookParser interface {
	Parse(r *http.Request) (subscription.Event, error)
}

// RouterOptions configures the billing router. Service is required; the
// webhook and metrics endpoints are mounted only when their option is set.
type RouterOptions struct {
	Service  *subscription.Service
	Webhooks WebhookParser
	Metrics  prometheus.Gatherer
	Logger   *slog.Logger
}

// Router creates the billing API router.
//
// Example:
//
//	svc := subscription.New(driver, queue)
//	r := chi.NewRouter()
//	r.Mount("/api", billing.Router(billing.RouterOptions{Service: svc}))
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil {
		panic("billing: subscription service is required")
	}
	h := &handlers{svc: opts.Service, webhooks: opts.Webhooks, log: opts.Logger}
	if h.log == nil {
		h.log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestid.Middleware, Identity)

	r.Get("/plans", h.listPlans)

	if opts.Webhooks != nil {
		r.Post("/webhooks/paddle", h.paddleWebhook)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.requireIdentity)

		r.Route("/me", func(r chi.Router) {
			r.Get("/entitlements", h.entitlements)
			r.Get("/limits/{action}", h.checkLimit)
			r.Get("/subscription", h.currentSubscription)
			r.Get("/subscription/changes", h.subscriptionChanges)
			r.Get("/notifications", h.listNotifications)
			r.Post("/notifications/read", h.markNotificationsRead)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", h.createSubscription)
			r.Patch("/{id}", h.changePlan)
			r.Post("/{id}/cancel", h.cancelSubscription)
			r.Post("/{id}/reactivate", h.reactivateSubscription)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/plans", h.createPlan)
		r.Patch("/plans/{id}", h.updatePlan)
		r.Delete("/plans/{id}", h.deactivatePlan)
		r.Get("/analytics", h.analytics)
	})

	return r
}
