package billing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/fintrack/pkg/logger"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

const maxListLimit = 100

type handlers struct {
	svc      *subscription.Service
	webhooks WebhookParser
	log      *slog.Logger
}

// PlanView is a catalog plan with its display price.
type PlanView struct {
	subscription.Plan
	PriceLabel string `json:"priceLabel"`
}

type createSubscriptionRequest struct {
	PlanID    string `json:"planId"`
	TrialDays int    `json:"trialDays"`
}

type changePlanRequest struct {
	PlanID string `json:"planId"`
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

func caller(r *http.Request) subscription.Identity {
	id, _ := subscription.IdentityFromContext(r.Context())
	return id
}

// limit parses the "limit" query parameter, clamped to maxListLimit.
func limit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ErrBadRequest
	}
	return min(n, maxListLimit), nil
}

func (h *handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.Catalog.GetPlans(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	views := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		views = append(views, PlanView{Plan: p, PriceLabel: subscription.FormatPrice(p)})
	}
	respond(w, http.StatusOK, views, nil)
}

func (h *handlers) entitlements(w http.ResponseWriter, r *http.Request) {
	ent, err := h.svc.Evaluator.Entitlements(r.Context(), caller(r).UserID)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, ent, nil)
}

func (h *handlers) checkLimit(w http.ResponseWriter, r *http.Request) {
	action := subscription.Action(chi.URLParam(r, "action"))
	allowed, err := h.svc.Evaluator.CheckPlanLimits(r.Context(), caller(r).UserID, action)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"action": action, "allowed": allowed}, nil)
}

func (h *handlers) currentSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Manager.Current(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, sub, nil)
}

func (h *handlers) subscriptionChanges(w http.ResponseWriter, r *http.Request) {
	n, err := limit(r, 20)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	rows, err := h.svc.Manager.History(r.Context(), n)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, rows, nil)
}

func (h *handlers) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if req.PlanID == "" {
		fail(w, r, h.log, fmt.Errorf("%w: planId is required", ErrValidation))
		return
	}
	sub, err := h.svc.Manager.Create(r.Context(), req.PlanID, req.TrialDays)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusCreated, sub, nil)
}

func (h *handlers) changePlan(w http.ResponseWriter, r *http.Request) {
	var req changePlanRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if req.PlanID == "" {
		fail(w, r, h.log, fmt.Errorf("%w: planId is required", ErrValidation))
		return
	}
	sub, err := h.svc.Manager.ChangePlan(r.Context(), chi.URLParam(r, "id"), req.PlanID)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, sub, nil)
}

func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Manager.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, sub, nil)
}

func (h *handlers) reactivateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Manager.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, sub, nil)
}

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := limit(r, 50)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	userID := caller(r).UserID
	rows, err := h.svc.Notifier.List(r.Context(), userID, subscription.ListOptions{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      n,
	})
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	unread, err := h.svc.Notifier.CountUnread(r.Context(), userID)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, rows, map[string]any{"unread": unread})
}

func (h *handlers) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.log, err)
		return
	}
	if len(req.IDs) == 0 {
		fail(w, r, h.log, fmt.Errorf("%w: ids are required", ErrValidation))
		return
	}
	marked, err := h.svc.Notifier.MarkRead(r.Context(), caller(r).UserID, req.IDs...)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, map[string]int{"marked": marked}, nil)
}

// paddleWebhook acknowledges events that cannot be applied so the provider
// stops retrying them. Only verification and storage failures are errors.
func (h *handlers) paddleWebhook(w http.ResponseWriter, r *http.Request) {
	ev, err := h.webhooks.Parse(r)
	switch {
	case errors.Is(err, subscription.ErrWebhookVerificationFailed):
		fail(w, r, h.log, fmt.Errorf("%w: %w", ErrUnauthenticated, err))
		return
	case errors.Is(err, subscription.ErrInvalidWebhookPayload):
		fail(w, r, h.log, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	case errors.Is(err, subscription.ErrUnsupportedEvent), errors.Is(err, subscription.ErrMissingCustomerID):
		h.ignore(w, r, ev, err)
		return
	case err != nil:
		fail(w, r, h.log, err)
		return
	}

	err = h.svc.Billing.Handle(r.Context(), ev)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		h.ignore(w, r, ev, err)
		return
	}
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "processed"}, nil)
}

func (h *handlers) ignore(w http.ResponseWriter, r *http.Request, ev subscription.Event, reason error) {
	h.log.InfoContext(r.Context(), "billing event ignored",
		logger.EventType(ev.ProviderEvent),
		logger.UserID(ev.CustomerID),
		logger.Error(reason),
	)
	respond(w, http.StatusOK, map[string]string{"status": "ignored"}, nil)
}

func (h *handlers) createPlan(w http.ResponseWriter, r *http.Request) {
	var p subscription.Plan
	if err := decode(r, &p); err != nil {
		fail(w, r, h.log, err)
		return
	}
	created, err := h.svc.Catalog.CreatePlan(r.Context(), p)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusCreated, created, nil)
}

func (h *handlers) updatePlan(w http.ResponseWriter, r *http.Request) {
	var upd subscription.PlanUpdate
	if err := decode(r, &upd); err != nil {
		fail(w, r, h.log, err)
		return
	}
	p, err := h.svc.Catalog.UpdatePlan(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, p, nil)
}

func (h *handlers) deactivatePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeactivatePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) analytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Analytics.Compute(r.Context())
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, report, nil)
}
