package subscription

import (
	"fmt"
	"time"
)

// DefaultPeriod is the length of every billing period regardless of the
// plan's interval.
const DefaultPeriod = 30 * 24 * time.Hour

// Subscription is one user's relationship to a plan over time. The current
// subscription of a user is the one with the latest CreatedAt.
type Subscription struct {
	ID                     string         `bson:"_id,omitempty" json:"id"`
	UserID                 string         `bson:"userId" json:"userId"`
	PlanID                 string         `bson:"planId" json:"planId"`
	Status                 Status         `bson:"status" json:"status"`
	CurrentPeriodStart     time.Time      `bson:"currentPeriodStart" json:"currentPeriodStart"`
	CurrentPeriodEnd       time.Time      `bson:"currentPeriodEnd" json:"currentPeriodEnd"`
	CancelAtPeriodEnd      bool           `bson:"cancelAtPeriodEnd" json:"cancelAtPeriodEnd"`
	CanceledAt             *time.Time     `bson:"canceledAt,omitempty" json:"canceledAt,omitempty"`
	TrialStart             *time.Time     `bson:"trialStart,omitempty" json:"trialStart,omitempty"`
	TrialEnd               *time.Time     `bson:"trialEnd,omitempty" json:"trialEnd,omitempty"`
	ProviderSubscriptionID string         `bson:"providerSubscriptionId,omitempty" json:"providerSubscriptionId,omitempty"`
	SupersededBy           string         `bson:"supersededBy,omitempty" json:"supersededBy,omitempty"`
	Metadata               map[string]any `bson:"metadata" json:"metadata"`
	CreatedAt              time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt              time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// Validate enforces the period and trial ordering invariants.
func (s Subscription) Validate() error {
	if s.UserID == "" || s.PlanID == "" {
		return fmt.Errorf("%w: user and plan are required", ErrInvalidSubscription)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSubscription, s.Status)
	}
	if !s.CurrentPeriodEnd.After(s.CurrentPeriodStart) {
		return fmt.Errorf("%w: period end must be after period start", ErrInvalidSubscription)
	}
	if s.TrialStart != nil && s.TrialEnd != nil && !s.TrialEnd.After(*s.TrialStart) {
		return fmt.Errorf("%w: trial end must be after trial start", ErrInvalidSubscription)
	}
	return nil
}

// OwnedBy reports whether userID owns the subscription.
func (s Subscription) OwnedBy(userID string) bool {
	return userID != "" && s.UserID == userID
}

// Change is an append-only audit row for one lifecycle transition.
type Change struct {
	ID              string         `bson:"_id,omitempty" json:"id"`
	UserID          string         `bson:"userId" json:"userId"`
	SubscriptionID  string         `bson:"subscriptionId,omitempty" json:"subscriptionId,omitempty"`
	FromPlanID      string         `bson:"fromPlanId,omitempty" json:"fromPlanId,omitempty"`
	ToPlanID        string         `bson:"toPlanId" json:"toPlanId"`
	ChangeType      ChangeType     `bson:"changeType" json:"changeType"`
	EffectiveDate   time.Time      `bson:"effectiveDate" json:"effectiveDate"`
	ProrationAmount *int64         `bson:"prorationAmount,omitempty" json:"prorationAmount,omitempty"`
	Status          ChangeStatus   `bson:"status" json:"status"`
	Metadata        map[string]any `bson:"metadata" json:"metadata"`
	CreatedAt       time.Time      `bson:"createdAt" json:"createdAt"`
}

// PaymentMethod summarizes the instrument used for a payment.
type PaymentMethod struct {
	Type        string `bson:"type" json:"type"`
	Last4       string `bson:"last4,omitempty" json:"last4,omitempty"`
	Brand       string `bson:"brand,omitempty" json:"brand,omitempty"`
	ExpiryMonth int    `bson:"expiryMonth,omitempty" json:"expiryMonth,omitempty"`
	ExpiryYear  int    `bson:"expiryYear,omitempty" json:"expiryYear,omitempty"`
	IsDefault   bool   `bson:"isDefault" json:"isDefault"`
}

// Payment is an append-only record of one billing event.
type Payment struct {
	ID                string         `bson:"_id,omitempty" json:"id"`
	UserID            string         `bson:"userId" json:"userId"`
	SubscriptionID    string         `bson:"subscriptionId" json:"subscriptionId"`
	Amount            int64          `bson:"amount" json:"amount"`
	Currency          string         `bson:"currency" json:"currency"`
	Status            PaymentStatus  `bson:"status" json:"status"`
	PaymentMethod     *PaymentMethod `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	ProviderPaymentID string         `bson:"providerPaymentId,omitempty" json:"providerPaymentId,omitempty"`
	ReceiptURL        string         `bson:"receiptUrl,omitempty" json:"receiptUrl,omitempty"`
	InvoiceURL        string         `bson:"invoiceUrl,omitempty" json:"invoiceUrl,omitempty"`
	CreatedAt         time.Time      `bson:"createdAt" json:"createdAt"`
}

// Notification is a message surfaced to one user. Only Read and ReadAt change
// after creation.
type Notification struct {
	ID        string           `bson:"_id,omitempty" json:"id"`
	UserID    string           `bson:"userId" json:"userId"`
	Type      NotificationType `bson:"type" json:"type"`
	Title     string           `bson:"title" json:"title"`
	Message   string           `bson:"message" json:"message"`
	Read      bool             `bson:"read" json:"read"`
	ReadAt    *time.Time       `bson:"readAt,omitempty" json:"readAt,omitempty"`
	Data      map[string]any   `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time        `bson:"createdAt" json:"createdAt"`
}

// Projection is the denormalized subscription summary kept on the user profile.
// It may lag the subscription record and is never used for authorization.
type Projection struct {
	Tier              Tier      `bson:"tier" json:"tier"`
	Status            Status    `bson:"status" json:"status"`
	CurrentPeriodEnd  time.Time `bson:"currentPeriodEnd" json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool      `bson:"cancelAtPeriodEnd" json:"cancelAtPeriodEnd"`
	PlanID            string    `bson:"planId" json:"planId"`
	UpdatedAt         time.Time `bson:"updatedAt" json:"updatedAt"`
}

// UserProfile is the part of a users document this package reads or writes.
type UserProfile struct {
	ID                 string      `bson:"_id" json:"id"`
	Email              string      `bson:"email,omitempty" json:"email,omitempty"`
	Role               string      `bson:"role,omitempty" json:"role,omitempty"`
	Subscription       *Projection `bson:"subscription,omitempty" json:"subscription,omitempty"`
	SubscriptionTier   Tier        `bson:"subscriptionTier,omitempty" json:"subscriptionTier,omitempty"`
	SubscriptionStatus Status      `bson:"subscriptionStatus,omitempty" json:"subscriptionStatus,omitempty"`
}

// IsAdmin reports whether the profile carries the admin role.
func (u UserProfile) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RoleAdmin is the users.role value granting catalog administration.
const RoleAdmin = "admin"
