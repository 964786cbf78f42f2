// Package middleware provides the HTTP middleware for the command API:
// caller identity, machine authentication, request tracing, and
// redis-backed rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/harborgate/orgd/pkg/httputil"
	"github.com/harborgate/orgd/pkg/observability"
)

type contextKey string

const userIDKey contextKey = "orgd.user_id"

// UserIDHeader carries the authenticated user id, set by the identity
// proxy that fronts this service.
const UserIDHeader = "X-User-ID"

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// Identity extracts the authenticated user id from the request and
// stores it in the context. Requests without a parseable user id are
// rejected before any handler runs.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			httputil.WriteUnauthorized(w, "missing user identity")
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			httputil.WriteUnauthorized(w, "invalid user identity")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user id from the context, or 0 when
// the request did not pass through Identity.
func UserID(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

// RequestID assigns a correlation id to every request, honoring an id
// already set by an upstream proxy, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := observability.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the correlation id from the context, or the
// empty string.
func RequestIDFrom(ctx context.Context) string {
	return observability.GetRequestID(ctx)
}
