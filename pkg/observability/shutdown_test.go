package observability

import (
	"bytes"
	"context"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForShutdownRunsRegisteredFuncs(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	manager := NewShutdownManager(logger, nil, time.Second)

	done := make(chan struct{})
	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		close(done)
		return nil
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
	}()

	require.NoError(t, manager.WaitForShutdown())

	select {
	case <-done:
	default:
		t.Fatal("shutdown function was not executed")
	}
}

func TestWaitForShutdownReportsFailures(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	manager := NewShutdownManager(logger, nil, time.Second)

	manager.RegisterShutdownFunc(func(ctx context.Context) error {
		return fmt.Errorf("close failed")
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
	}()

	assert.Error(t, manager.WaitForShutdown())
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	func() {
		defer RecoverPanic(logger, "test")
		panic("boom")
	}()

	assert.Contains(t, buf.String(), "PANIC recovered")
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("boom"), "panic: boom")
}
