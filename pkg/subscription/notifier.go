package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/logger"
)

// Deliverer pushes a stored notification to an external channel.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, n Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// ListOptions filters Notifier.List.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

// Notifier stores per-user notifications and fans them out to deliverers.
type Notifier struct {
	coll docstore.Collection[Notification]
	opts *options
}

func NewNotifier(store *Store, opts ...Option) *Notifier {
	if store == nil {
		panic("subscription: store is required")
	}
	return &Notifier{coll: store.Notifications, opts: newOptions(opts)}
}

// Emit stores n unread, then runs deliverers. Delivery failures are logged
// and never returned.
func (n *Notifier) Emit(ctx context.Context, note *Notification) error {
	if note == nil || note.UserID == "" || !note.Type.Valid() || note.Title == "" {
		return ErrInvalidNotification
	}

	note.ID = ""
	note.Read = false
	note.ReadAt = nil
	note.CreatedAt = n.opts.clock()

	if _, err := n.coll.Create(ctx, note); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	for _, d := range n.opts.deliverers {
		if err := d.Deliver(ctx, *note); err != nil {
			n.opts.log.WarnContext(ctx, "notification delivery failed",
				logger.UserID(note.UserID),
				logger.EventType(string(note.Type)),
				logger.Error(err),
			)
		}
	}
	return nil
}

func (n *Notifier) query(userID string, opts ListOptions) docstore.Query {
	q := docstore.Where("userId", userID)
	if opts.UnreadOnly {
		q = q.Where("read", false)
	}
	return q.OrderBy("createdAt", docstore.Desc).Take(opts.Limit)
}

// List returns the user's notifications, newest first.
func (n *Notifier) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	rows, err := n.coll.Find(ctx, n.query(userID, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return rows, nil
}

// CountUnread returns how many unread notifications the user has.
func (n *Notifier) CountUnread(ctx context.Context, userID string) (int64, error) {
	c, err := n.coll.Count(ctx, docstore.Where("userId", userID).Where("read", false))
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return c, nil
}

// MarkRead flips the read flag on the given notifications and returns how
// many changed. Every id must belong to userID.
func (n *Notifier) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	changed := 0
	for _, id := range ids {
		note, err := n.coll.Get(ctx, id)
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrEmptyID) {
			return changed, ErrNotificationNotFound
		}
		if err != nil {
			return changed, fmt.Errorf("failed to load notification: %w", err)
		}
		if note.UserID != userID {
			return changed, ErrUnauthorized
		}
		if note.Read {
			continue
		}

		if err := n.coll.Update(ctx, id, docstore.Fields{"read": true, "readAt": n.opts.clock()}); err != nil {
			return changed, fmt.Errorf("failed to mark notification read: %w", err)
		}
		changed++
	}
	return changed, nil
}

// Watch pushes the user's latest notifications to fn now and on every change.
func (n *Notifier) Watch(ctx context.Context, userID string, fn func([]Notification)) (func(), error) {
	return n.coll.Watch(ctx, n.query(userID, ListOptions{Limit: n.opts.watchPageLimit}), fn)
}
