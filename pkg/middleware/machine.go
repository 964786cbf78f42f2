package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/harborgate/orgd/pkg/auth"
	"github.com/harborgate/orgd/pkg/httputil"
)

// CredentialSource reads the current API credential of an organization.
// Reads must not be served from a cache: a rotation performed anywhere
// invalidates the previous credential immediately, and this check may
// never accept the rotated-out value.
type CredentialSource interface {
	GetAPICredential(ctx context.Context, orgID uuid.UUID) (string, error)
}

// MachineAuth authenticates machine callers with the organization API
// credential. The credential is presented as a bearer token and checked
// in constant time against the stored value; any failure, including a
// nonexistent organization, yields the same 401 so existence is never
// leaked to unauthenticated callers.
type MachineAuth struct {
	creds CredentialSource
}

// NewMachineAuth creates machine-credential middleware backed by the
// given credential source.
func NewMachineAuth(creds CredentialSource) *MachineAuth {
	return &MachineAuth{creds: creds}
}

// Handler wraps an HTTP handler with machine authentication. The route
// must carry an {orgID} path variable.
func (m *MachineAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		supplied, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "missing api credential")
			return
		}

		orgID, err := uuid.Parse(mux.Vars(r)["orgID"])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid api credential")
			return
		}

		stored, err := m.creds.GetAPICredential(r.Context(), orgID)
		if err != nil || stored == "" || !auth.CredentialEqual(stored, supplied) {
			httputil.WriteUnauthorized(w, "invalid api credential")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
