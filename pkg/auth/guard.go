package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DefaultGuardDelay is the minimum wall-clock time a failed sensitive
// verification consumes before returning.
const DefaultGuardDelay = 2 * time.Second

// CredentialVerifier checks a supplied credential against a user's
// stored credential.
type CredentialVerifier interface {
	CheckPassword(ctx context.Context, user *User, supplied string) bool
}

// BcryptVerifier verifies passwords against bcrypt hashes.
type BcryptVerifier struct{}

// CheckPassword reports whether supplied matches the user's stored
// hash. Any comparison failure, including a corrupt hash, counts as a
// mismatch; no detail is exposed.
func (BcryptVerifier) CheckPassword(_ context.Context, user *User, supplied string) bool {
	if user == nil || user.PasswordHash == "" || supplied == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(supplied)) == nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// AttemptLimiter bounds how often a caller may fail the sensitive
// check. Implementations must be safe for concurrent use.
type AttemptLimiter interface {
	// Allow reports whether another attempt is permitted for the key.
	Allow(ctx context.Context, key string) (bool, error)
	// RecordFailure counts a failed attempt against the key.
	RecordFailure(ctx context.Context, key string) error
}

// GuardError is the failure outcome of a sensitive verification. It
// intentionally carries no detail about why the check failed.
type GuardError struct {
	Msg string
}

func (e *GuardError) Error() string { return e.Msg }

// ErrorCode marks the error as a sensitive-check failure for the
// domain taxonomy.
func (e *GuardError) ErrorCode() string { return "sensitive_check_failed" }

// SensitiveOperationGuard re-verifies a caller's credential before an
// irreversible command proceeds. On failure it consumes at least
// minDelay of wall-clock time before returning, so a wrong credential
// is indistinguishable from a slow path and brute-force throughput is
// bounded. On success it returns immediately.
type SensitiveOperationGuard struct {
	verifier CredentialVerifier
	limiter  AttemptLimiter // optional
	minDelay time.Duration
}

// NewSensitiveOperationGuard creates a guard. limiter may be nil. A
// non-positive minDelay falls back to DefaultGuardDelay.
func NewSensitiveOperationGuard(verifier CredentialVerifier, limiter AttemptLimiter, minDelay time.Duration) *SensitiveOperationGuard {
	if minDelay <= 0 {
		minDelay = DefaultGuardDelay
	}
	return &SensitiveOperationGuard{
		verifier: verifier,
		limiter:  limiter,
		minDelay: minDelay,
	}
}

// Verify checks the supplied credential for the user. It returns nil
// on success with no added latency. On any failure it returns a
// *GuardError after the minimum delay has elapsed. The supplied
// credential is never logged or echoed back.
func (g *SensitiveOperationGuard) Verify(ctx context.Context, user *User, supplied string) error {
	start := time.Now()

	if g.limiter != nil && user != nil {
		allowed, err := g.limiter.Allow(ctx, attemptKey(user.ID))
		if err == nil && !allowed {
			return g.fail(ctx, start)
		}
		// Limiter errors fail open: the credential check below still
		// gates the operation.
	}

	if g.verifier.CheckPassword(ctx, user, supplied) {
		return nil
	}

	if g.limiter != nil && user != nil {
		_ = g.limiter.RecordFailure(ctx, attemptKey(user.ID))
	}
	return g.fail(ctx, start)
}

// fail pads the elapsed time up to the configured minimum, then
// returns the uniform failure. The pad blocks only this caller; no
// lock is held while sleeping.
func (g *SensitiveOperationGuard) fail(ctx context.Context, start time.Time) error {
	if remaining := g.minDelay - time.Since(start); remaining > 0 {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return &GuardError{Msg: "credential verification failed"}
}

func attemptKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}
