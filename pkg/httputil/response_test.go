package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgate/orgd/pkg/orgs"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]string{"name": "acme"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name":"acme"}`, rec.Body.String())
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", orgs.ErrNotFound("organization not found"), http.StatusNotFound, "not_found"},
		{"mode mismatch", orgs.ErrModeNotSupported("command unavailable"), http.StatusNotFound, "mode_not_supported"},
		{"validation", orgs.ErrValidation("name is required"), http.StatusBadRequest, "validation"},
		{"sensitive check", &orgs.Error{Code: orgs.CodeSensitiveCheckFailed, Msg: "credential rejected"}, http.StatusBadRequest, "sensitive_check_failed"},
		{"invariant", orgs.ErrInvariant("last confirmed owner"), http.StatusConflict, "invariant_violation"},
		{"gateway", &orgs.Error{Code: orgs.CodeGateway, Msg: "processor declined"}, http.StatusBadGateway, "gateway_error"},
		{"storage", orgs.ErrStorage("save", fmt.Errorf("pool exhausted")), http.StatusServiceUnavailable, "storage_unavailable"},
		{"uncoded", fmt.Errorf("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteDomainError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestWriteDomainErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, fmt.Errorf("pq: relation missing"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
