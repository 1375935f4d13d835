package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type httpErr int

func (e httpErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e httpErr) StatusCode() int { return int(e) }

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxAttempts: n, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(httpErr(http.StatusTooManyRequests)))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", httpErr(503))))
	assert.False(t, IsTransient(httpErr(http.StatusBadRequest)))
	assert.False(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(ErrCircuitOpen))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("schema validation failed")))
}

func TestDoVal_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", httpErr(502)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDoVal_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, httpErr(400)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return httpErr(503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestComputeBackoff_Caps(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, computeBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, computeBackoff(5, cfg))
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	cb.nowFunc = func() time.Time { return now }

	fail := func(context.Context) (int, error) { return 0, errors.New("boom") }
	for i := 0; i < 2; i++ {
		_, _ = ExecuteVal(context.Background(), cb, fail)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		t.Fatal("must not be called while open")
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	v, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	_, _ = ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 0, context.Canceled })
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestGuard_CallCountsRetriedCallOnce(t *testing.T) {
	g := NewGuard("openai", GuardConfig{
		Retry:   fastRetry(3),
		Circuit: CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	}, nil)

	calls := 0
	_, err := Call(context.Background(), g, func(context.Context) (int, error) {
		calls++
		return 0, httpErr(503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, CircuitClosed, g.State())

	_, _ = Call(context.Background(), g, func(context.Context) (int, error) { return 0, httpErr(503) })
	assert.Equal(t, CircuitOpen, g.State())

	_, err = Call(context.Background(), g, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestGuard_RateLimitHonorsContext(t *testing.T) {
	g := NewGuard("slow", GuardConfig{RatePerSecond: 0.001, Burst: 1, Retry: fastRetry(1)}, nil)
	_, err := Call(context.Background(), g, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Call(ctx, g, func(context.Context) (int, error) { return 1, nil })
	require.Error(t, err)
}
