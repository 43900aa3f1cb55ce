package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under the key "error". Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func stringAttr(key, v string) slog.Attr {
	if v == "" {
		return slog.Attr{}
	}
	return slog.String(key, v)
}

// UserID records the user identifier under "user_id". Empty ids are dropped.
func UserID(id string) slog.Attr { return stringAttr("user_id", id) }

// PlanID records a plan identifier under "plan_id".
func PlanID(id string) slog.Attr { return stringAttr("plan_id", id) }

// SubscriptionID records a subscription identifier under "subscription_id".
func SubscriptionID(id string) slog.Attr { return stringAttr("subscription_id", id) }

// ChangeType records a lifecycle change type under "change_type".
func ChangeType(t string) slog.Attr { return stringAttr("change_type", t) }

// Tier records a plan tier under "tier".
func Tier(t string) slog.Attr { return stringAttr("tier", t) }

// RequestID records the request identifier under "request_id".
func RequestID(id string) slog.Attr { return stringAttr("request_id", id) }

// EventType records a billing or notification event type under "event_type".
func EventType(eventType string) slog.Attr { return stringAttr("event_type", eventType) }

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Count(n int) slog.Attr {
	return slog.Int("count", n)
}
