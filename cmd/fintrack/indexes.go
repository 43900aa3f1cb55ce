package main

import (
	"github.com/dmitrymomot/fintrack/pkg/mongo"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

var indexes = []mongo.Index{
	{Collection: subscription.CollectionPlans, Keys: []string{"active", "price"}},
	{Collection: subscription.CollectionPlans, Keys: []string{"name"}},
	{Collection: subscription.CollectionSubscriptions, Keys: []string{"userId", "-createdAt"}},
	{Collection: subscription.CollectionSubscriptions, Keys: []string{"userId", "providerSubscriptionId"}},
	{Collection: subscription.CollectionSubscriptions, Keys: []string{"status"}},
	{Collection: subscription.CollectionSubscriptions, Keys: []string{"cancelAtPeriodEnd", "currentPeriodEnd"}},
	{Collection: subscription.CollectionChanges, Keys: []string{"userId", "-createdAt"}},
	{Collection: subscription.CollectionPayments, Keys: []string{"userId", "-createdAt"}},
	{Collection: subscription.CollectionPayments, Keys: []string{"providerPaymentId"}},
	{Collection: subscription.CollectionNotifications, Keys: []string{"userId", "read", "-createdAt"}},
	{Collection: subscription.CollectionCards, Keys: []string{"userId"}},
	{Collection: subscription.CollectionTransactions, Keys: []string{"userId"}},
}
