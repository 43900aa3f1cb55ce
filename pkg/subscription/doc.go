// Package subscription implements the plan, entitlement and subscription
// lifecycle core of fintrack over a document store.
//
// The authoritative records are plans, subscriptions, change rows, payment
// rows and notifications, each in its own collection. A denormalized summary
// of the current subscription is kept on the user profile for cheap reads.
// It can lag the records and is never used for authorization: the Evaluator
// always derives limits from the live subscription and plan.
//
// # Components
//
//   - Catalog: admin-managed plans, optional Redis cache, YAML seeding
//   - Evaluator: limits, feature flags and usage checks
//   - Manager: create, change plan, cancel and reactivate
//   - Ledger: append-only change and payment rows
//   - Notifier: per-user notifications with optional email delivery
//   - Projector: the profile summary and its reconciliation
//   - Aggregator: MRR, ARR, churn and active counts
//   - BillingEvents and PaddleWebhookParser: provider-driven statuses
//   - Sweeper: period-end cancellation and reminders
//
// # Usage
//
//	queue := opqueue.New()
//	defer queue.Close()
//
//	svc := subscription.New(docstore.NewMemory(), queue,
//		subscription.WithLogger(log),
//		subscription.WithMetrics(subscription.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//
//	ctx = subscription.WithIdentity(ctx, subscription.Identity{UserID: "u1", Email: "u1@example.com"})
//	sub, err := svc.Manager.Create(ctx, planID, 14)
//	if errors.Is(err, subscription.ErrSubscriptionAlreadyExists) {
//		// change or cancel the current one first
//	}
//
//	ok, err := svc.Evaluator.CheckPlanLimits(ctx, "u1", subscription.ActionAddCard)
//
// # Concurrency
//
// Mutations run one at a time on the opqueue.Queue passed to New. The queue
// serializes calls within a process only; concurrent writers in other
// processes race with last-write-wins. The subscription write and the
// profile write are not atomic. Projector.Reconcile repairs a profile left
// stale by a failure between them.
//
// # Statuses
//
// Create, ChangePlan, Cancel and Reactivate move between trialing and
// active and set or clear the cancellation flag. past_due, unpaid,
// incomplete_expired and canceled come from BillingEvents and the Sweeper.
// canceled, unpaid and incomplete_expired grant no entitlement.
package subscription
