package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
)

// Persisted collection names.
const (
	CollectionPlans         = "subscriptionPlans"
	CollectionSubscriptions = "userSubscriptions"
	CollectionPayments      = "subscriptionPayments"
	CollectionChanges       = "subscriptionChanges"
	CollectionNotifications = "subscriptionNotifications"
	CollectionUsers         = "users"
	CollectionCards         = "cards"
	CollectionTransactions  = "transactions"
)

// Store groups the typed collections used by the package.
type Store struct {
	Plans         docstore.Collection[Plan]
	Subscriptions docstore.Collection[Subscription]
	Changes       docstore.Collection[Change]
	Payments      docstore.Collection[Payment]
	Notifications docstore.Collection[Notification]
	Users         docstore.Collection[UserProfile]

	driver docstore.Driver
}

// NewStore binds the package collections to driver.
func NewStore(driver docstore.Driver) *Store {
	if driver == nil {
		panic("subscription: docstore driver is required")
	}
	return &Store{
		Plans:         docstore.NewCollection[Plan](driver, CollectionPlans),
		Subscriptions: docstore.NewCollection[Subscription](driver, CollectionSubscriptions),
		Changes:       docstore.NewCollection[Change](driver, CollectionChanges),
		Payments:      docstore.NewCollection[Payment](driver, CollectionPayments),
		Notifications: docstore.NewCollection[Notification](driver, CollectionNotifications),
		Users:         docstore.NewCollection[UserProfile](driver, CollectionUsers),
		driver:        driver,
	}
}

// CurrentSubscription returns the user's latest subscription by createdAt.
func (s *Store) CurrentSubscription(ctx context.Context, userID string) (*Subscription, error) {
	sub, err := s.Subscriptions.First(ctx, docstore.Where("userId", userID).OrderBy("createdAt", docstore.Desc))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current subscription: %w", err)
	}
	return sub, nil
}

// Subscription loads a subscription by id.
func (s *Store) Subscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := s.Subscriptions.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrEmptyID) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return sub, nil
}

// CountOwned counts documents in collection whose userId equals userID.
func (s *Store) CountOwned(ctx context.Context, collection, userID string) (int64, error) {
	n, err := s.driver.Count(ctx, collection, docstore.Where("userId", userID))
	if err != nil {
		return 0, errors.Join(ErrFailedToCount, err)
	}
	return n, nil
}

// Profile loads a user profile. Missing profiles are returned as ErrNotFound
// from docstore.
func (s *Store) Profile(ctx context.Context, userID string) (*UserProfile, error) {
	return s.Users.Get(ctx, userID)
}
