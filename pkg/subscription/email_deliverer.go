package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/email"
)

// emailedTypes are the notifications worth an email on top of the in-app row.
var emailedTypes = map[NotificationType]bool{
	NotifyPaymentFailed:   true,
	NotifyTrialEnding:     true,
	NotifyRenewalReminder: true,
}

// EmailDeliverer mails selected notifications as plain text to the address
// on the user's profile.
type EmailDeliverer struct {
	sender email.EmailSender
	users  docstore.Collection[UserProfile]
}

func NewEmailDeliverer(store *Store, sender email.EmailSender) *EmailDeliverer {
	if store == nil || sender == nil {
		panic("subscription: email deliverer requires store and sender")
	}
	return &EmailDeliverer{sender: sender, users: store.Users}
}

func (d *EmailDeliverer) Deliver(ctx context.Context, n Notification) error {
	if !emailedTypes[n.Type] {
		return nil
	}

	to, err := d.address(ctx, n)
	if err != nil {
		return err
	}
	if to == "" {
		return nil
	}

	return d.sender.SendEmail(ctx, email.Message{
		To:       to,
		Subject:  n.Title,
		TextBody: n.Message,
		Tag:      string(n.Type),
	})
}

func (d *EmailDeliverer) address(ctx context.Context, n Notification) (string, error) {
	if id, ok := IdentityFromContext(ctx); ok && id.UserID == n.UserID && id.Email != "" {
		return id.Email, nil
	}

	profile, err := d.users.Get(ctx, n.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load profile for email: %w", err)
	}
	return strings.TrimSpace(profile.Email), nil
}
