package subscription

// Tier is an ordered plan category.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Rank returns the tier's position in the fixed ordering free < pro < enterprise.
// Unknown tiers rank below free.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 0
	case TierPro:
		return 1
	case TierEnterprise:
		return 2
	default:
		return -1
	}
}

func (t Tier) Valid() bool { return t.Rank() >= 0 }

// Interval is a plan's billing interval.
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

func (i Interval) Valid() bool { return i == IntervalMonth || i == IntervalYear }

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
)

var allStatuses = []Status{
	StatusTrialing, StatusActive, StatusPastDue, StatusUnpaid,
	StatusCanceled, StatusIncomplete, StatusIncompleteExpired,
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the status counts as a live subscription:
// it blocks Create and is counted by analytics.
func (s Status) IsActive() bool {
	return s == StatusActive || s == StatusTrialing
}

// Entitled reports whether a subscription in this status grants its plan's limits.
func (s Status) Entitled() bool {
	switch s {
	case StatusCanceled, StatusUnpaid, StatusIncompleteExpired:
		return false
	default:
		return s.Valid()
	}
}

// ChangeType classifies a ledger change row.
type ChangeType string

const (
	ChangeUpgrade    ChangeType = "upgrade"
	ChangeDowngrade  ChangeType = "downgrade"
	ChangeCancel     ChangeType = "cancel"
	ChangeReactivate ChangeType = "reactivate"
)

func (c ChangeType) Valid() bool {
	switch c {
	case ChangeUpgrade, ChangeDowngrade, ChangeCancel, ChangeReactivate:
		return true
	}
	return false
}

// ChangeStatus is the processing status of a change row.
type ChangeStatus string

const (
	ChangePending   ChangeStatus = "pending"
	ChangeCompleted ChangeStatus = "completed"
	ChangeFailed    ChangeStatus = "failed"
)

// PaymentStatus is the outcome of one billing attempt.
type PaymentStatus string

const (
	PaymentSucceeded             PaymentStatus = "succeeded"
	PaymentPending               PaymentStatus = "pending"
	PaymentFailed                PaymentStatus = "failed"
	PaymentCanceled              PaymentStatus = "canceled"
	PaymentRequiresPaymentMethod PaymentStatus = "requires_payment_method"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentSucceeded, PaymentPending, PaymentFailed, PaymentCanceled, PaymentRequiresPaymentMethod:
		return true
	}
	return false
}

// NotificationType is the kind of a user notification.
type NotificationType string

const (
	NotifySubscriptionCreated  NotificationType = "subscription_created"
	NotifySubscriptionUpdated  NotificationType = "subscription_updated"
	NotifySubscriptionCanceled NotificationType = "subscription_canceled"
	NotifyPaymentFailed        NotificationType = "payment_failed"
	NotifyPaymentSucceeded     NotificationType = "payment_succeeded"
	NotifyTrialEnding          NotificationType = "trial_ending"
	NotifyRenewalReminder      NotificationType = "renewal_reminder"
)

func (n NotificationType) Valid() bool {
	switch n {
	case NotifySubscriptionCreated, NotifySubscriptionUpdated, NotifySubscriptionCanceled,
		NotifyPaymentFailed, NotifyPaymentSucceeded, NotifyTrialEnding, NotifyRenewalReminder:
		return true
	}
	return false
}

// Action is a plan-limited user action checked by CheckPlanLimits.
type Action string

const (
	ActionAddCard        Action = "addCard"
	ActionAddTransaction Action = "addTransaction"
)

// Feature is a boolean capability flag of a plan.
type Feature string

const (
	FeatureAnalytics          Feature = "analytics"
	FeatureExport             Feature = "export"
	FeaturePrioritySupport    Feature = "prioritySupport"
	FeatureAPIAccess          Feature = "apiAccess"
	FeatureTeamManagement     Feature = "teamManagement"
	FeatureCustomIntegrations Feature = "customIntegrations"
)

// Unlimited marks a numeric limit without ceiling.
const Unlimited int64 = -1
