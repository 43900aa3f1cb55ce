package subscription

import "errors"

var (
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")

	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
	ErrInvalidSubscriptionState  = errors.New("invalid subscription state")
	ErrInvalidSubscription       = errors.New("invalid subscription record")
	ErrSamePlan                  = errors.New("subscription is already on this plan")

	ErrUnauthorized    = errors.New("caller does not own this resource")
	ErrNoIdentity      = errors.New("caller identity not found in context")
	ErrUnknownAction   = errors.New("unknown plan-limited action")
	ErrInvalidChange   = errors.New("invalid subscription change record")
	ErrInvalidPayment  = errors.New("invalid subscription payment record")
	ErrFailedToCount   = errors.New("failed to count resource usage")
	ErrInvalidSeedFile = errors.New("invalid plan seed file")

	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidNotification  = errors.New("invalid notification")

	ErrMissingWebhookSecret      = errors.New("billing provider webhook secret is required")
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrInvalidWebhookPayload     = errors.New("invalid webhook payload")
	ErrUnsupportedEvent          = errors.New("unsupported billing event")
	ErrMissingCustomerID         = errors.New("billing event has no customer id")
)
