package orgs

import (
	"errors"
	"fmt"
)

// Code classifies a domain error so callers can map it to an outcome
// without string matching.
type Code string

const (
	// CodeNotFound is returned for missing resources and for every
	// authorization failure. Callers with insufficient access receive
	// the same outcome as callers asking for a nonexistent
	// organization, so existence is never leaked.
	CodeNotFound Code = "not_found"

	// CodeModeNotSupported means the command does not exist in the
	// current deployment mode.
	CodeModeNotSupported Code = "mode_not_supported"

	// CodeValidation is malformed or out-of-bounds input, rejected
	// before any side effect.
	CodeValidation Code = "validation"

	// CodeSensitiveCheckFailed is a failed credential re-verification.
	CodeSensitiveCheckFailed Code = "sensitive_check_failed"

	// CodeGateway wraps a payment-processor or license-signer failure.
	CodeGateway Code = "gateway_error"

	// CodeStorageUnavailable is a persistence failure, fatal to the
	// request and never retried here.
	CodeStorageUnavailable Code = "storage_unavailable"

	// CodeInvariantViolation is an operation that would break a
	// domain invariant, rejected before any mutation.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is the domain error carried across package boundaries.
type Error struct {
	Code Code
	Msg  string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode exposes the code as a plain string so leaf packages can
// classify domain errors without importing this package.
func (e *Error) ErrorCode() string {
	return string(e.Code)
}

// ErrorCodeOf returns the code of the first coded error in err's
// chain, or the empty string when err carries no domain code. Any
// error exposing ErrorCode() participates, not just *Error.
func ErrorCodeOf(err error) Code {
	var c interface{ ErrorCode() string }
	if errors.As(err, &c) {
		return Code(c.ErrorCode())
	}
	return ""
}

// ErrNotFound reports the uniform not-found outcome.
func ErrNotFound(msg string) error {
	return &Error{Code: CodeNotFound, Msg: msg}
}

// ErrModeNotSupported reports a command that does not exist in the
// current deployment mode.
func ErrModeNotSupported(msg string) error {
	return &Error{Code: CodeModeNotSupported, Msg: msg}
}

// ErrValidation reports malformed input.
func ErrValidation(format string, args ...interface{}) error {
	return &Error{Code: CodeValidation, Msg: fmt.Sprintf(format, args...)}
}

// ErrInvariant reports an invariant-violating operation.
func ErrInvariant(format string, args ...interface{}) error {
	return &Error{Code: CodeInvariantViolation, Msg: fmt.Sprintf(format, args...)}
}

// ErrStorage wraps a persistence failure.
func ErrStorage(op string, err error) error {
	return &Error{Code: CodeStorageUnavailable, Msg: "storage unavailable", Op: op, Err: err}
}
