package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(t *testing.T, password string) *User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	return &User{ID: 42, Email: "owner@example.com", PasswordHash: hash, IsActive: true}
}

func TestGuardSuccessNoDelay(t *testing.T) {
	guard := NewSensitiveOperationGuard(BcryptVerifier{}, nil, 500*time.Millisecond)
	user := testUser(t, "correct horse battery")

	start := time.Now()
	err := guard.Verify(context.Background(), user, "correct horse battery")
	elapsed := time.Since(start)

	require.NoError(t, err)
	// bcrypt itself takes tens of milliseconds; the guard must not add
	// the failure pad on success.
	assert.Less(t, elapsed, 450*time.Millisecond)
}

func TestGuardFailureConsumesMinimumDelay(t *testing.T) {
	const minDelay = 300 * time.Millisecond
	guard := NewSensitiveOperationGuard(BcryptVerifier{}, nil, minDelay)
	user := testUser(t, "correct horse battery")

	start := time.Now()
	err := guard.Verify(context.Background(), user, "wrong")
	elapsed := time.Since(start)

	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, "sensitive_check_failed", guardErr.ErrorCode())
	assert.GreaterOrEqual(t, elapsed, minDelay)
}

func TestGuardNilUserFails(t *testing.T) {
	guard := NewSensitiveOperationGuard(BcryptVerifier{}, nil, 50*time.Millisecond)

	err := guard.Verify(context.Background(), nil, "anything")
	require.Error(t, err)
}

func TestGuardErrorCarriesNoCredential(t *testing.T) {
	guard := NewSensitiveOperationGuard(BcryptVerifier{}, nil, 50*time.Millisecond)
	user := testUser(t, "correct horse battery")

	err := guard.Verify(context.Background(), user, "super-secret-guess")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-guess")
}

func TestGuardContextCancelCutsDelayShort(t *testing.T) {
	guard := NewSensitiveOperationGuard(BcryptVerifier{}, nil, 5*time.Second)
	user := testUser(t, "correct horse battery")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := guard.Verify(ctx, user, "wrong")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 2*time.Second)
}

func newTestLimiter(t *testing.T, max int) (*RedisAttemptLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisAttemptLimiter(client, AttemptLimitConfig{
		MaxFailures: max,
		Window:      time.Minute,
	}, "guard-test")
	return limiter, mr
}

func TestAttemptLimiterAllowsUnderLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, limiter.RecordFailure(ctx, "user:1"))
	require.NoError(t, limiter.RecordFailure(ctx, "user:1"))

	allowed, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAttemptLimiterBlocksAtLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailure(ctx, "user:2"))
	require.NoError(t, limiter.RecordFailure(ctx, "user:2"))

	allowed, err := limiter.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Other keys are unaffected.
	allowed, err = limiter.Allow(ctx, "user:3")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAttemptLimiterWindowExpiry(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailure(ctx, "user:4"))
	allowed, err := limiter.Allow(ctx, "user:4")
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(2 * time.Minute)

	allowed, err = limiter.Allow(ctx, "user:4")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestGuardWithLimiterBlocksAfterRepeatedFailures(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	guard := NewSensitiveOperationGuard(BcryptVerifier{}, limiter, 20*time.Millisecond)
	user := testUser(t, "correct horse battery")
	ctx := context.Background()

	require.Error(t, guard.Verify(ctx, user, "wrong1"))
	require.Error(t, guard.Verify(ctx, user, "wrong2"))

	// Even the correct credential is rejected once the limit is hit.
	err := guard.Verify(ctx, user, "correct horse battery")
	require.Error(t, err)
}
