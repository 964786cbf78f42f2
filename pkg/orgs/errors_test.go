package orgs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      &Error{Code: CodeNotFound, Msg: "organization not found"},
			expected: "organization not found",
		},
		{
			name:     "op and message",
			err:      &Error{Code: CodeNotFound, Msg: "no matching row", Op: "revoke membership"},
			expected: "revoke membership: no matching row",
		},
		{
			name:     "wrapped cause",
			err:      &Error{Code: CodeStorageUnavailable, Msg: "storage unavailable", Op: "get organization", Err: errors.New("connection refused")},
			expected: "get organization: storage unavailable: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, ErrorCodeOf(ErrNotFound("gone")))
	assert.Equal(t, CodeValidation, ErrorCodeOf(ErrValidation("bad input: %d", 7)))
	assert.Equal(t, CodeInvariantViolation, ErrorCodeOf(ErrInvariant("last owner")))
	assert.Equal(t, CodeStorageUnavailable, ErrorCodeOf(ErrStorage("op", errors.New("down"))))

	// Codes survive wrapping.
	wrapped := fmt.Errorf("handler: %w", ErrNotFound("gone"))
	assert.Equal(t, CodeNotFound, ErrorCodeOf(wrapped))

	// Non-domain errors carry no code.
	assert.Equal(t, Code(""), ErrorCodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), ErrorCodeOf(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrStorage("get organization", cause)
	assert.ErrorIs(t, err, cause)
}
