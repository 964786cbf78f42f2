package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/harborgate/orgd/pkg/orgs"
)

// credentialStub holds one organization's current credential.
type credentialStub struct {
	orgID      uuid.UUID
	credential string
}

func (s *credentialStub) GetAPICredential(_ context.Context, id uuid.UUID) (string, error) {
	if s.orgID != id {
		return "", orgs.ErrNotFound("organization not found")
	}
	return s.credential, nil
}

func TestMachineAuth(t *testing.T) {
	orgID := uuid.New()
	store := &credentialStub{orgID: orgID, credential: "org_abcdef123456"}

	var reached bool
	handler := NewMachineAuth(store).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(orgVar, authHeader string) *httptest.ResponseRecorder {
		reached = false
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = mux.SetURLVars(r, map[string]string{"orgID": orgVar})
		if authHeader != "" {
			r.Header.Set("Authorization", authHeader)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec
	}

	t.Run("valid credential", func(t *testing.T) {
		rec := serve(orgID.String(), "Bearer org_abcdef123456")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, reached)
	})

	t.Run("wrong credential", func(t *testing.T) {
		rec := serve(orgID.String(), "Bearer org_wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, reached)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := serve(orgID.String(), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := serve(orgID.String(), "Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown organization looks identical to bad credential", func(t *testing.T) {
		rec := serve(uuid.NewString(), "Bearer org_abcdef123456")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid api credential")
	})

	t.Run("org without credential issued", func(t *testing.T) {
		store.credential = ""
		defer func() { store.credential = "org_abcdef123456" }()

		rec := serve(orgID.String(), "Bearer ")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rotated credential stops working immediately", func(t *testing.T) {
		store.credential = "org_rotated"
		defer func() { store.credential = "org_abcdef123456" }()

		rec := serve(orgID.String(), "Bearer org_abcdef123456")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, reached)

		rec = serve(orgID.String(), "Bearer org_rotated")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, reached)
	})
}
