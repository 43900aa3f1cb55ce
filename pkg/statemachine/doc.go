// Package statemachine provides a transition table for finite-state
// workflows whose current state lives outside the machine, usually in a
// persisted record.
//
// A Table maps (state, event) pairs to a target state. Lookups are stateless:
// callers pass the record's current state and get back the state it should
// move to, or a typed error when the move is not allowed.
//
// # Usage
//
//	type Status string
//	type Event string
//
//	table := statemachine.MustNew[Status, Event](
//	    statemachine.Allow[Status, Event]("active", "cancel", "active"),
//	    statemachine.Allow[Status, Event]("past_due", "pay", "active"),
//	)
//
//	next, err := table.Next(ctx, sub.Status, "pay", sub)
//
// # Guards
//
// Guards veto a transition based on runtime data. When several transitions
// are registered for the same pair, the first one whose guards all pass wins:
//
//	notCanceled := func(ctx context.Context, from Status, evt Event, data any) bool {
//	    s, ok := data.(*Subscription)
//	    return ok && !s.CancelAtPeriodEnd
//	}
//
// # Error Handling
//
//	if statemachine.IsNoTransitionAvailableError(err) { /* ... */ }
//	if statemachine.IsTransitionRejectedError(err)   { /* ... */ }
//
// A Table is immutable after construction and safe for concurrent use.
package statemachine
