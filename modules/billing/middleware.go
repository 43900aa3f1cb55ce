package billing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/subscription"
)

// Identity headers set by the auth gateway. Their values are trusted.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// Identity attaches the gateway-supplied caller to the request context.
// Requests without HeaderUserID pass through anonymous.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := subscription.WithIdentity(r.Context(), subscription.Identity{
			UserID: userID,
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handlers) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := subscription.IdentityFromContext(r.Context()); !ok {
			fail(w, r, h.log, subscription.ErrNoIdentity)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin admits callers whose users profile carries the admin role.
func (h *handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := subscription.IdentityFromContext(r.Context())
		if !ok {
			fail(w, r, h.log, subscription.ErrNoIdentity)
			return
		}
		profile, err := h.svc.Store.Profile(r.Context(), id.UserID)
		if errors.Is(err, docstore.ErrNotFound) {
			fail(w, r, h.log, ErrForbidden)
			return
		}
		if err != nil {
			fail(w, r, h.log, err)
			return
		}
		if !profile.IsAdmin() {
			fail(w, r, h.log, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
