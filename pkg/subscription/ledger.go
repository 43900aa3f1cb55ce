package subscription

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
)

// Ledger appends change and payment rows. Rows are never updated or deleted.
type Ledger struct {
	changes  docstore.Collection[Change]
	payments docstore.Collection[Payment]
	opts     *options
}

func NewLedger(store *Store, opts ...Option) *Ledger {
	if store == nil {
		panic("subscription: store is required")
	}
	return &Ledger{changes: store.Changes, payments: store.Payments, opts: newOptions(opts)}
}

// RecordChange stores c. EffectiveDate defaults to now and Status to completed.
func (l *Ledger) RecordChange(ctx context.Context, c *Change) error {
	if c == nil || c.UserID == "" || c.ToPlanID == "" || !c.ChangeType.Valid() {
		return ErrInvalidChange
	}

	now := l.opts.clock()
	c.ID = ""
	c.CreatedAt = now
	if c.EffectiveDate.IsZero() {
		c.EffectiveDate = now
	}
	if c.Status == "" {
		c.Status = ChangeCompleted
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}

	if _, err := l.changes.Create(ctx, c); err != nil {
		return fmt.Errorf("failed to record subscription change: %w", err)
	}
	return nil
}

// RecordPayment stores p.
func (l *Ledger) RecordPayment(ctx context.Context, p *Payment) error {
	if p == nil || p.UserID == "" || p.SubscriptionID == "" || p.Amount < 0 || p.Currency == "" || !p.Status.Valid() {
		return ErrInvalidPayment
	}

	p.ID = ""
	p.CreatedAt = l.opts.clock()
	if _, err := l.payments.Create(ctx, p); err != nil {
		return fmt.Errorf("failed to record subscription payment: %w", err)
	}
	return nil
}

// HasPayment reports whether a payment with the provider reference exists.
func (l *Ledger) HasPayment(ctx context.Context, providerPaymentID string) (bool, error) {
	if providerPaymentID == "" {
		return false, nil
	}
	n, err := l.payments.Count(ctx, docstore.Where("providerPaymentId", providerPaymentID))
	if err != nil {
		return false, fmt.Errorf("failed to look up payment: %w", err)
	}
	return n > 0, nil
}

// Changes returns the user's change rows, newest first. A non-positive limit returns all.
func (l *Ledger) Changes(ctx context.Context, userID string, limit int) ([]Change, error) {
	rows, err := l.changes.Find(ctx, docstore.Where("userId", userID).OrderBy("createdAt", docstore.Desc).Take(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription changes: %w", err)
	}
	return rows, nil
}

// Payments returns the user's payment rows, newest first.
func (l *Ledger) Payments(ctx context.Context, userID string, limit int) ([]Payment, error) {
	rows, err := l.payments.Find(ctx, docstore.Where("userId", userID).OrderBy("createdAt", docstore.Desc).Take(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription payments: %w", err)
	}
	return rows, nil
}
