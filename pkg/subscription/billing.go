package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
)

// EventType is a provider-neutral billing event kind.
type EventType string

const (
	EventPaymentSucceeded     EventType = "payment_succeeded"
	EventPaymentFailed        EventType = "payment_failed"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventSubscriptionUpdated  EventType = "subscription_updated"
)

// Event is a billing provider notification normalized for BillingEvents.
// CustomerID is our user id, carried by the provider as custom data.
type Event struct {
	ID                     string         `json:"id"`
	Type                   EventType      `json:"type"`
	ProviderEvent          string         `json:"providerEvent"`
	CustomerID             string         `json:"customerId"`
	ProviderSubscriptionID string         `json:"providerSubscriptionId,omitempty"`
	Status                 Status         `json:"status,omitempty"`
	Amount                 int64          `json:"amount,omitempty"`
	Currency               string         `json:"currency,omitempty"`
	ProviderPaymentID      string         `json:"providerPaymentId,omitempty"`
	ReceiptURL             string         `json:"receiptUrl,omitempty"`
	InvoiceURL             string         `json:"invoiceUrl,omitempty"`
	PaymentMethod          *PaymentMethod `json:"paymentMethod,omitempty"`
	OccurredAt             time.Time      `json:"occurredAt"`
}

// BillingEvents applies provider events to the user's current subscription.
// It drives the statuses the user-facing operations never set.
type BillingEvents struct {
	m *Manager
}

func NewBillingEvents(m *Manager) *BillingEvents {
	if m == nil {
		panic("subscription: manager is required")
	}
	return &BillingEvents{m: m}
}

// Handle applies ev on the operation queue. Payments already recorded under
// the same provider reference are ignored.
func (b *BillingEvents) Handle(ctx context.Context, ev Event) error {
	if ev.CustomerID == "" {
		return ErrMissingCustomerID
	}
	switch ev.Type {
	case EventPaymentSucceeded, EventPaymentFailed, EventSubscriptionCanceled, EventSubscriptionUpdated:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEvent, ev.Type)
	}

	err := b.m.queue.Do(ctx, func(ctx context.Context) error {
		sub, err := b.target(ctx, ev)
		if err != nil {
			return err
		}
		if sub.SupersededBy != "" {
			return b.superseded(ctx, sub, ev)
		}

		switch ev.Type {
		case EventPaymentSucceeded:
			return b.paymentSucceeded(ctx, sub, ev)
		case EventPaymentFailed:
			return b.paymentFailed(ctx, sub, ev)
		case EventSubscriptionCanceled:
			return b.canceled(ctx, sub)
		default:
			return b.updated(ctx, sub, ev)
		}
	})
	if err != nil {
		return err
	}

	b.m.opts.metrics.billingEvent(ev.Type)
	return nil
}

// target resolves the subscription ev refers to. Events carrying a provider
// subscription id go to the row linked to it. The user's current subscription
// is linked on first sight only while it has no provider reference yet.
func (b *BillingEvents) target(ctx context.Context, ev Event) (*Subscription, error) {
	current, err := b.m.store.CurrentSubscription(ctx, ev.CustomerID)
	if err != nil {
		return nil, err
	}
	if ev.ProviderSubscriptionID == "" || current.ProviderSubscriptionID == ev.ProviderSubscriptionID {
		return current, nil
	}

	byProvider := docstore.Where("userId", ev.CustomerID).Where("providerSubscriptionId", ev.ProviderSubscriptionID)
	linked, err := b.m.store.Subscriptions.First(ctx, byProvider)
	switch {
	case err == nil:
		return linked, nil
	case !errors.Is(err, docstore.ErrNotFound):
		return nil, fmt.Errorf("failed to load linked subscription: %w", err)
	}

	if current.ProviderSubscriptionID != "" {
		b.m.opts.log.WarnContext(ctx, "billing event for unknown provider subscription",
			logger.UserID(ev.CustomerID),
			logger.SubscriptionID(current.ID),
			slog.String("provider_subscription_id", ev.ProviderSubscriptionID),
		)
		return nil, ErrSubscriptionNotFound
	}
	if err := b.link(ctx, current, ev.ProviderSubscriptionID); err != nil {
		return nil, err
	}
	return current, nil
}

// link stores the provider subscription reference on an unlinked subscription.
func (b *BillingEvents) link(ctx context.Context, sub *Subscription, providerID string) error {
	if err := b.m.store.Subscriptions.Update(ctx, sub.ID, docstore.Fields{
		"providerSubscriptionId": providerID,
	}); err != nil {
		return fmt.Errorf("failed to link provider subscription: %w", err)
	}
	sub.ProviderSubscriptionID = providerID
	return nil
}

// superseded handles a late event for a subscription the user has already
// replaced. Payments are kept in the ledger; status and entitlements follow
// the newer subscription only.
func (b *BillingEvents) superseded(ctx context.Context, sub *Subscription, ev Event) error {
	b.m.opts.log.InfoContext(ctx, "billing event for superseded subscription",
		logger.UserID(sub.UserID),
		logger.SubscriptionID(sub.ID),
		logger.EventType(string(ev.Type)),
	)
	switch ev.Type {
	case EventPaymentSucceeded:
		_, err := b.recordPayment(ctx, sub, ev, PaymentSucceeded)
		return err
	case EventPaymentFailed:
		_, err := b.recordPayment(ctx, sub, ev, PaymentFailed)
		return err
	default:
		return nil
	}
}

func (b *BillingEvents) paymentSucceeded(ctx context.Context, sub *Subscription, ev Event) error {
	recorded, err := b.recordPayment(ctx, sub, ev, PaymentSucceeded)
	if err != nil || !recorded {
		return err
	}

	if sub.Status != StatusActive && b.m.table.Can(ctx, sub.Status, evPaymentSucceeded, sub) {
		if err := b.recover(ctx, sub, "payment_succeeded"); err != nil {
			return err
		}
	}

	b.m.notify(ctx, sub.UserID, NotifyPaymentSucceeded,
		"Payment received",
		fmt.Sprintf("We received your payment of %s.", FormatMoney(ev.Amount, b.currency(ctx, sub, ev))),
		map[string]any{"subscriptionId": sub.ID, "providerPaymentId": ev.ProviderPaymentID},
	)
	return nil
}

func (b *BillingEvents) paymentFailed(ctx context.Context, sub *Subscription, ev Event) error {
	recorded, err := b.recordPayment(ctx, sub, ev, PaymentFailed)
	if err != nil || !recorded {
		return err
	}

	if sub.Status != StatusPastDue && b.m.table.Can(ctx, sub.Status, evPaymentFailed, sub) {
		if err := b.m.advance(ctx, sub, evPaymentFailed, nil); err != nil {
			return err
		}
	}

	b.m.notify(ctx, sub.UserID, NotifyPaymentFailed,
		"Payment failed",
		fmt.Sprintf("We could not charge %s for your subscription. Please update your payment method.",
			FormatMoney(ev.Amount, b.currency(ctx, sub, ev))),
		map[string]any{"subscriptionId": sub.ID, "providerPaymentId": ev.ProviderPaymentID},
	)
	return nil
}

func (b *BillingEvents) canceled(ctx context.Context, sub *Subscription) error {
	if sub.Status == StatusCanceled {
		return nil
	}
	requested := sub.CancelAtPeriodEnd

	extra := docstore.Fields{}
	if sub.CanceledAt == nil {
		now := b.m.opts.clock()
		extra["canceledAt"] = now
		sub.CanceledAt = &now
	}
	if err := b.m.advance(ctx, sub, evProviderCancel, extra); err != nil {
		return err
	}

	// A cancel requested by the user was already recorded.
	if !requested {
		if err := b.m.ledger.RecordChange(ctx, &Change{
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			FromPlanID:     sub.PlanID,
			ToPlanID:       sub.PlanID,
			ChangeType:     ChangeCancel,
			Metadata:       map[string]any{"source": "billing_provider"},
		}); err != nil {
			return err
		}
	}

	b.m.notify(ctx, sub.UserID, NotifySubscriptionCanceled,
		"Subscription ended",
		"Your subscription has ended. You are back on the free plan.",
		map[string]any{"subscriptionId": sub.ID},
	)
	return nil
}

func (b *BillingEvents) updated(ctx context.Context, sub *Subscription, ev Event) error {
	if ev.Status == "" || ev.Status == sub.Status {
		return nil
	}

	event, ok := syncEvent(ev.Status)
	if !ok || !b.m.table.Can(ctx, sub.Status, event, sub) {
		b.m.opts.log.DebugContext(ctx, "ignoring provider status",
			logger.SubscriptionID(sub.ID),
			logger.EventType(ev.ProviderEvent),
			slog.String("status", string(ev.Status)),
		)
		return nil
	}

	switch ev.Status {
	case StatusCanceled:
		return b.canceled(ctx, sub)
	case StatusActive:
		return b.recover(ctx, sub, "subscription_updated")
	default:
		return b.m.advance(ctx, sub, event, nil)
	}
}

// recover moves sub back to active and records the transition as reactivate.
func (b *BillingEvents) recover(ctx context.Context, sub *Subscription, source string) error {
	prev := sub.Status
	if err := b.m.advance(ctx, sub, evPaymentSucceeded, nil); err != nil {
		return err
	}
	return b.m.ledger.RecordChange(ctx, &Change{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		FromPlanID:     sub.PlanID,
		ToPlanID:       sub.PlanID,
		ChangeType:     ChangeReactivate,
		Metadata:       map[string]any{"source": source, "previousStatus": string(prev)},
	})
}

// recordPayment appends a payment row unless its provider reference was
// already recorded, in which case it reports false.
func (b *BillingEvents) recordPayment(ctx context.Context, sub *Subscription, ev Event, status PaymentStatus) (bool, error) {
	seen, err := b.m.ledger.HasPayment(ctx, ev.ProviderPaymentID)
	if err != nil {
		return false, err
	}
	if seen {
		b.m.opts.log.InfoContext(ctx, "duplicate billing event ignored",
			logger.SubscriptionID(sub.ID),
			logger.EventType(string(ev.Type)),
		)
		return false, nil
	}

	err = b.m.ledger.RecordPayment(ctx, &Payment{
		UserID:            sub.UserID,
		SubscriptionID:    sub.ID,
		Amount:            ev.Amount,
		Currency:          b.currency(ctx, sub, ev),
		Status:            status,
		PaymentMethod:     ev.PaymentMethod,
		ProviderPaymentID: ev.ProviderPaymentID,
		ReceiptURL:        ev.ReceiptURL,
		InvoiceURL:        ev.InvoiceURL,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// currency falls back to the plan's currency when the event carries none.
func (b *BillingEvents) currency(ctx context.Context, sub *Subscription, ev Event) string {
	if ev.Currency != "" {
		return ev.Currency
	}
	plan, err := b.m.planOf(ctx, sub)
	if err != nil {
		b.m.opts.log.WarnContext(ctx, "failed to resolve payment currency", logger.Error(err))
	}
	if plan == nil {
		return "USD"
	}
	return plan.Currency
}
