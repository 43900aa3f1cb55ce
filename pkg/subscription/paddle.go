package subscription

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds the webhook settings of the Paddle integration.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	MaxBodyBytes  int64  `env:"PADDLE_WEBHOOK_MAX_BODY" envDefault:"1048576"`
}

// PaddleWebhookParser verifies Paddle webhook signatures and maps the
// notifications to Event values.
type PaddleWebhookParser struct {
	verifier *paddle.WebhookVerifier
	maxBody  int64
}

func NewPaddleWebhookParser(cfg PaddleConfig) (*PaddleWebhookParser, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &PaddleWebhookParser{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		maxBody:  cfg.MaxBodyBytes,
	}, nil
}

type paddleNotification struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddleData struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	SubscriptionID string         `json:"subscription_id"`
	CurrencyCode   string         `json:"currency_code"`
	CustomData     map[string]any `json:"custom_data"`
	Details        *struct {
		Totals struct {
			GrandTotal string `json:"grand_total"`
			Total      string `json:"total"`
		} `json:"totals"`
	} `json:"details"`
	Payments []struct {
		MethodDetails *struct {
			Type string `json:"type"`
			Card *struct {
				Type        string `json:"type"`
				Last4       string `json:"last4"`
				ExpiryMonth int    `json:"expiry_month"`
				ExpiryYear  int    `json:"expiry_year"`
			} `json:"card"`
		} `json:"method_details"`
	} `json:"payments"`
}

// Parse verifies the Paddle-Signature header of r and decodes its body.
// Events that carry no subscription meaning return ErrUnsupportedEvent.
func (p *PaddleWebhookParser) Parse(r *http.Request) (Event, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, p.maxBody))
	if err != nil {
		return Event{}, fmt.Errorf("failed to read webhook body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	valid, err := p.verifier.Verify(r)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return Event{}, ErrWebhookVerificationFailed
	}

	var n paddleNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidWebhookPayload, err)
	}
	var data paddleData
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return Event{}, fmt.Errorf("%w: %w", ErrInvalidWebhookPayload, err)
		}
	}

	eventType, ok := paddleEventType(n.EventType)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, n.EventType)
	}

	ev := Event{
		ID:            n.EventID,
		Type:          eventType,
		ProviderEvent: n.EventType,
		CustomerID:    customerID(data.CustomData),
		Currency:      data.CurrencyCode,
		OccurredAt:    n.OccurredAt,
	}

	if strings.HasPrefix(n.EventType, "subscription.") {
		ev.ProviderSubscriptionID = data.ID
		ev.Status = paddleStatus(data.Status)
	} else {
		ev.ProviderSubscriptionID = data.SubscriptionID
		ev.ProviderPaymentID = data.ID
		if data.Details != nil {
			ev.Amount = parseAmount(data.Details.Totals.GrandTotal, data.Details.Totals.Total)
		}
		ev.PaymentMethod = paymentMethod(data)
	}

	if ev.CustomerID == "" {
		return ev, ErrMissingCustomerID
	}
	return ev, nil
}

func paddleEventType(t string) (EventType, bool) {
	switch t {
	case "transaction.completed", "transaction.paid":
		return EventPaymentSucceeded, true
	case "transaction.payment_failed":
		return EventPaymentFailed, true
	case "subscription.canceled":
		return EventSubscriptionCanceled, true
	case "subscription.created", "subscription.updated", "subscription.resumed",
		"subscription.activated", "subscription.past_due", "subscription.paused":
		return EventSubscriptionUpdated, true
	default:
		return "", false
	}
}

func paddleStatus(s string) Status {
	switch strings.ToLower(s) {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "paused":
		return StatusUnpaid
	case "canceled", "cancelled":
		return StatusCanceled
	default:
		return ""
	}
}

// customerID reads our user id from the checkout custom data.
func customerID(custom map[string]any) string {
	for _, key := range []string{"user_id", "customer_id"} {
		if v, ok := custom[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// parseAmount returns the first parsable amount. Paddle sends totals as
// strings in minor units.
func parseAmount(values ...string) int64 {
	for _, v := range values {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func paymentMethod(data paddleData) *PaymentMethod {
	for _, p := range data.Payments {
		if p.MethodDetails == nil {
			continue
		}
		pm := &PaymentMethod{Type: p.MethodDetails.Type, IsDefault: true}
		if c := p.MethodDetails.Card; c != nil {
			pm.Brand = c.Type
			pm.Last4 = c.Last4
			pm.ExpiryMonth = c.ExpiryMonth
			pm.ExpiryYear = c.ExpiryYear
		}
		return pm
	}
	return nil
}
