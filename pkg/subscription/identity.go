package subscription

import (
	"context"
	"log/slog"
)

// Identity is the authenticated caller, supplied by the auth provider and
// trusted without re-verification.
type Identity struct {
	UserID string
	Email  string
}

type identityCtxKey struct{}

// WithIdentity attaches the caller identity to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext returns the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

func callerFrom(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

// LogIdentity is a logger.ContextExtractor adding the caller's user id.
func LogIdentity(ctx context.Context) (slog.Attr, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return slog.String("user_id", id.UserID), true
}
