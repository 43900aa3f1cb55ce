// Package logger builds *slog.Logger instances for fintrack binaries and
// provides attribute helpers so log keys stay consistent across packages.
//
// New returns a logger configured by functional options. The handler is
// wrapped by LogHandlerDecorator, which runs registered ContextExtractor
// callbacks on every record, so request-scoped values such as the caller's
// user id or the HTTP request id are attached without threading them through
// every call site.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "fintrack"),
//	    logger.WithContextExtractors(subscription.LogIdentity),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "plan changed",
//	    logger.SubscriptionID(sub.ID),
//	    logger.PlanID(plan.ID),
//	    logger.ChangeType("upgrade"),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed unconditionally.
package logger
