package middleware

import (
	"net/http"

	"github.com/harborgate/orgd/pkg/httputil"
	"github.com/harborgate/orgd/pkg/observability"
)

// Recover converts a handler panic into a 500 response instead of
// tearing down the connection, logging the stack trace.
func Recover(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer observability.RecoverPanicWithCallback(logger, r.Method+" "+r.URL.Path, func() {
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			})
			next.ServeHTTP(w, r)
		})
	}
}
