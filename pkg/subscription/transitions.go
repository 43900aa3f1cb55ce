package subscription

import (
	"context"

	"github.com/dmitrymomot/fintrack/pkg/statemachine"
)

// transition is an event moving a subscription between statuses.
type transition string

const (
	evChangePlan       transition = "change_plan"
	evCancel           transition = "cancel"
	evReactivate       transition = "reactivate"
	evPaymentFailed    transition = "payment_failed"
	evPaymentSucceeded transition = "payment_succeeded"
	evMarkUnpaid       transition = "mark_unpaid"
	evExpire           transition = "expire"
	evProviderCancel   transition = "provider_cancel"
	evPeriodEnd        transition = "period_end"
)

// notCanceling rejects a second cancel request on the same period.
func notCanceling(_ context.Context, _ Status, _ transition, data any) bool {
	sub, ok := data.(*Subscription)
	return ok && !sub.CancelAtPeriodEnd
}

// canceling passes only subscriptions scheduled to end with their period.
func canceling(_ context.Context, _ Status, _ transition, data any) bool {
	sub, ok := data.(*Subscription)
	return ok && sub.CancelAtPeriodEnd
}

// notSuperseded keeps an older subscription from coming back next to a newer one.
func notSuperseded(_ context.Context, _ Status, _ transition, data any) bool {
	sub, ok := data.(*Subscription)
	return ok && sub.SupersededBy == ""
}

func newStatusTable() *statemachine.Table[Status, transition] {
	live := []Status{StatusActive, StatusTrialing}
	open := []Status{StatusTrialing, StatusActive, StatusPastDue, StatusUnpaid, StatusIncomplete}

	return statemachine.MustNew(
		statemachine.Allow(StatusActive, evChangePlan, StatusActive),
		statemachine.Allow(StatusTrialing, evChangePlan, StatusTrialing),

		statemachine.Allow(StatusTrialing, evCancel, StatusTrialing, notCanceling),
		statemachine.Allow(StatusActive, evCancel, StatusActive, notCanceling),
		statemachine.Allow(StatusPastDue, evCancel, StatusPastDue, notCanceling),
		statemachine.Allow(StatusUnpaid, evCancel, StatusUnpaid, notCanceling),
		statemachine.Allow(StatusIncomplete, evCancel, StatusIncomplete, notCanceling),

		statemachine.AllowFrom(allStatuses, evReactivate, StatusActive, notSuperseded),

		statemachine.AllowFrom([]Status{StatusActive, StatusTrialing, StatusPastDue}, evPaymentFailed, StatusPastDue),
		statemachine.AllowFrom(append(live, StatusPastDue, StatusUnpaid, StatusIncomplete), evPaymentSucceeded, StatusActive),
		statemachine.AllowFrom(append(live, StatusPastDue, StatusIncomplete), evMarkUnpaid, StatusUnpaid),
		statemachine.Allow(StatusIncomplete, evExpire, StatusIncompleteExpired),
		statemachine.AllowFrom(append(open, StatusIncompleteExpired), evProviderCancel, StatusCanceled),
		statemachine.AllowFrom(open, evPeriodEnd, StatusCanceled, canceling),
	)
}

// syncEvent returns the transition that moves a subscription to a status
// reported by the billing provider.
func syncEvent(to Status) (transition, bool) {
	switch to {
	case StatusActive:
		return evPaymentSucceeded, true
	case StatusPastDue:
		return evPaymentFailed, true
	case StatusUnpaid:
		return evMarkUnpaid, true
	case StatusIncompleteExpired:
		return evExpire, true
	case StatusCanceled:
		return evProviderCancel, true
	default:
		return "", false
	}
}
