package reliability

import (
	"context"
	goerrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdash.app/config"
	apperrors "weatherdash.app/errors"
)

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Second,
		SuccessThreshold: 1,
		CallTimeout:      30 * time.Second,
	}
}

func failingOp(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker("openweathermap", testBreakerConfig())
	ctx := context.Background()

	netErr := apperrors.NewNetworkError("connection refused", nil)
	for i := 0; i < 3; i++ {
		assert.Equal(t, StateClosed, b.State())
		err := b.Do(ctx, failingOp(netErr))
		assert.Error(t, err)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestCircuitBreaker_RejectsWhileOpen(t *testing.T) {
	b := NewCircuitBreaker("openweathermap", testBreakerConfig())
	ctx := context.Background()

	netErr := apperrors.NewNetworkError("down", nil)
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(netErr))
	}
	require.Equal(t, StateOpen, b.State())

	invoked := false
	err := b.Do(ctx, func(context.Context) error {
		invoked = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, invoked, "open breaker must not invoke the operation")
	assert.True(t, apperrors.IsServiceUnavailableError(err))
	assert.True(t, goerrors.Is(err, ErrCircuitOpen))

	retryAfter, ok := apperrors.RetryAfter(err)
	require.True(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Second)
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := NewCircuitBreaker("openweathermap", testBreakerConfig())
	ctx := context.Background()

	netErr := apperrors.NewNetworkError("down", nil)
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(netErr))
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(1100 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	err := b.Do(ctx, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.RecoveryTimeout = 50 * time.Millisecond
	b := NewCircuitBreaker("openweathermap", cfg)
	ctx := context.Background()

	netErr := apperrors.NewNetworkError("down", nil)
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(netErr))
	}
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Do(ctx, failingOp(netErr))
	assert.Equal(t, StateOpen, b.State())
}

func TestCircuitBreaker_SuccessThreshold(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.RecoveryTimeout = 50 * time.Millisecond
	cfg.SuccessThreshold = 3
	b := NewCircuitBreaker("openweathermap", cfg)
	ctx := context.Background()

	netErr := apperrors.NewNetworkError("down", nil)
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(netErr))
	}
	time.Sleep(80 * time.Millisecond)

	ok := func(context.Context) error { return nil }
	require.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateHalfOpen, b.State(), "one probe success is not enough")
	require.NoError(t, b.Do(ctx, ok))
	require.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestCircuitBreaker_NonRetryableErrorsDontCount(t *testing.T) {
	b := NewCircuitBreaker("openweathermap", testBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = b.Do(ctx, failingOp(apperrors.NewValidationError("empty location")))
		_ = b.Do(ctx, failingOp(apperrors.NewAPIKeyError("bad key")))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker("openweathermap", testBreakerConfig())
	ctx := context.Background()

	netErr := apperrors.NewNetworkError("flaky", nil)
	_ = b.Do(ctx, failingOp(netErr))
	_ = b.Do(ctx, failingOp(netErr))
	require.NoError(t, b.Do(ctx, func(context.Context) error { return nil }))
	_ = b.Do(ctx, failingOp(netErr))
	_ = b.Do(ctx, failingOp(netErr))

	assert.Equal(t, StateClosed, b.State(), "failures are consecutive, not cumulative")
}

func TestCircuitBreaker_Reset(t *testing.T) {
	b := NewCircuitBreaker("openweathermap", testBreakerConfig())
	ctx := context.Background()

	netErr := apperrors.NewNetworkError("down", nil)
	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, failingOp(netErr))
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Do(ctx, func(context.Context) error { return nil }))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestBreakerRegistry(t *testing.T) {
	r := NewBreakerRegistry(testBreakerConfig())

	a := r.Get("openweathermap")
	b := r.Get("weatherapi")
	assert.Same(t, a, r.Get("openweathermap"))
	assert.NotSame(t, a, b)

	netErr := apperrors.NewNetworkError("down", nil)
	for i := 0; i < 3; i++ {
		_ = a.Do(context.Background(), failingOp(netErr))
	}

	states := r.States()
	assert.Equal(t, map[string]string{
		"openweathermap": "OPEN",
		"weatherapi":     "CLOSED",
	}, states)
}
