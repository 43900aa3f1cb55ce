package subscription_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

const paddleSecret = "pdl_ntfset_test_secret"

func paddleRequest(t *testing.T, secret, body string) *http.Request {
	t.Helper()
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + ":" + body))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paddle", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Paddle-Signature", "ts="+ts+";h1="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func newPaddleParser(t *testing.T) *subscription.PaddleWebhookParser {
	t.Helper()
	p, err := subscription.NewPaddleWebhookParser(subscription.PaddleConfig{WebhookSecret: paddleSecret})
	require.NoError(t, err)
	return p
}

func TestPaddleWebhookParser(t *testing.T) {
	t.Parallel()

	t.Run("requires a secret", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewPaddleWebhookParser(subscription.PaddleConfig{})
		require.ErrorIs(t, err, subscription.ErrMissingWebhookSecret)
	})

	t.Run("transaction completed", func(t *testing.T) {
		t.Parallel()
		body := `{
			"event_id": "evt_01",
			"event_type": "transaction.completed",
			"occurred_at": "2025-03-01T12:00:00Z",
			"data": {
				"id": "txn_01",
				"status": "completed",
				"subscription_id": "sub_01",
				"currency_code": "USD",
				"custom_data": {"user_id": "u1"},
				"details": {"totals": {"grand_total": "499", "total": "499"}},
				"payments": [{"method_details": {"type": "card", "card": {"type": "visa", "last4": "4242", "expiry_month": 1, "expiry_year": 2030}}}]
			}
		}`

		ev, err := newPaddleParser(t).Parse(paddleRequest(t, paddleSecret, body))
		require.NoError(t, err)
		assert.Equal(t, "evt_01", ev.ID)
		assert.Equal(t, subscription.EventPaymentSucceeded, ev.Type)
		assert.Equal(t, "transaction.completed", ev.ProviderEvent)
		assert.Equal(t, "u1", ev.CustomerID)
		assert.Equal(t, "sub_01", ev.ProviderSubscriptionID)
		assert.Equal(t, "txn_01", ev.ProviderPaymentID)
		assert.Equal(t, int64(499), ev.Amount)
		assert.Equal(t, "USD", ev.Currency)
		require.NotNil(t, ev.PaymentMethod)
		assert.Equal(t, "visa", ev.PaymentMethod.Brand)
		assert.Equal(t, "4242", ev.PaymentMethod.Last4)
		assert.Equal(t, 2030, ev.PaymentMethod.ExpiryYear)
		assert.True(t, ev.OccurredAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
	})

	t.Run("subscription events", func(t *testing.T) {
		t.Parallel()
		cases := []struct {
			event      string
			status     string
			want       subscription.EventType
			wantStatus subscription.Status
		}{
			{"subscription.canceled", "canceled", subscription.EventSubscriptionCanceled, subscription.StatusCanceled},
			{"subscription.past_due", "past_due", subscription.EventSubscriptionUpdated, subscription.StatusPastDue},
			{"subscription.paused", "paused", subscription.EventSubscriptionUpdated, subscription.StatusUnpaid},
			{"subscription.resumed", "active", subscription.EventSubscriptionUpdated, subscription.StatusActive},
		}
		parser := newPaddleParser(t)
		for _, tc := range cases {
			body := fmt.Sprintf(`{"event_id":"evt","event_type":%q,"data":{"id":"sub_01","status":%q,"custom_data":{"customer_id":"u1"}}}`, tc.event, tc.status)

			ev, err := parser.Parse(paddleRequest(t, paddleSecret, body))
			require.NoError(t, err, tc.event)
			assert.Equal(t, tc.want, ev.Type, tc.event)
			assert.Equal(t, tc.wantStatus, ev.Status, tc.event)
			assert.Equal(t, "sub_01", ev.ProviderSubscriptionID, tc.event)
			assert.Equal(t, "u1", ev.CustomerID, tc.event)
		}
	})

	t.Run("rejects", func(t *testing.T) {
		t.Parallel()
		parser := newPaddleParser(t)
		valid := `{"event_id":"evt","event_type":"transaction.payment_failed","data":{"id":"txn","custom_data":{"user_id":"u1"}}}`

		_, err := parser.Parse(paddleRequest(t, "wrong_secret", valid))
		require.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)

		unsigned := httptest.NewRequest(http.MethodPost, "/webhooks/paddle", strings.NewReader(valid))
		_, err = parser.Parse(unsigned)
		require.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)

		_, err = parser.Parse(paddleRequest(t, paddleSecret, `{"event_type":"customer.created","data":{}}`))
		require.ErrorIs(t, err, subscription.ErrUnsupportedEvent)

		_, err = parser.Parse(paddleRequest(t, paddleSecret, `{"event_type":`))
		require.ErrorIs(t, err, subscription.ErrInvalidWebhookPayload)

		_, err = parser.Parse(paddleRequest(t, paddleSecret, `{"event_id":"evt","event_type":"transaction.paid","data":{"id":"txn"}}`))
		require.ErrorIs(t, err, subscription.ErrMissingCustomerID)
	})
}
