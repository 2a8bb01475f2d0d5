package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusErr carries an HTTP-like status for classification.
type statusErr struct {
	code int
}

func (e *statusErr) Error() string   { return fmt.Sprintf("upstream returned %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

func instantExecutor(p Policy) (*Executor, *[]time.Duration) {
	var delays []time.Duration
	e := NewExecutor(p).WithSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})
	return e, &delays
}

func TestExecutor_SucceedsOnLastAttempt(t *testing.T) {
	e, _ := instantExecutor(Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Factor: 2})

	calls := 0
	err := e.Do(context.Background(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return &statusErr{code: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecutor_NonRetryableFailsImmediately(t *testing.T) {
	e, delays := instantExecutor(Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, Factor: 2})

	calls := 0
	declined := &statusErr{code: 422}
	err := e.Do(context.Background(), func(_ context.Context) error {
		calls++
		return declined
	})

	assert.ErrorIs(t, err, declined)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)

	var re *RetryError
	assert.False(t, errors.As(err, &re), "non-retryable errors must not be aggregated")
}

func TestExecutor_ExhaustionAggregatesAttempts(t *testing.T) {
	e, _ := instantExecutor(Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Factor: 2})

	boom := &statusErr{code: 500}
	err := e.Do(context.Background(), func(_ context.Context) error { return boom })

	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.Len(t, re.Attempts, 3)
	assert.ErrorIs(t, re, boom)
	for i, a := range re.Attempts {
		assert.Equal(t, i+1, a.Attempt)
		assert.False(t, a.At.IsZero())
		assert.Contains(t, a.Message, "500")
	}
}

func TestExecutor_BackoffDelays_PreJitter(t *testing.T) {
	e, delays := instantExecutor(Policy{
		MaxAttempts:  4,
		InitialDelay: 1000 * time.Millisecond,
		MaxDelay:     10000 * time.Millisecond,
		Factor:       2,
	})

	_ = e.Do(context.Background(), func(_ context.Context) error { return &statusErr{code: 500} })

	require.Len(t, *delays, 3)
	assert.Equal(t, 1000*time.Millisecond, (*delays)[0])
	assert.Equal(t, 2000*time.Millisecond, (*delays)[1])
	assert.Equal(t, 4000*time.Millisecond, (*delays)[2])
}

func TestExecutor_BackoffDelays_JitterBounds(t *testing.T) {
	// Provider timeout scenario: three attempts, initialDelay=1000ms, factor=2,
	// maxDelay=10000ms. Delay before attempt 2 lands in [500,1000]ms and before
	// attempt 3 in [1000,2000]ms.
	e := NewExecutor(Policy{
		MaxAttempts:  3,
		InitialDelay: 1000 * time.Millisecond,
		MaxDelay:     10000 * time.Millisecond,
		Factor:       2,
		Jitter:       true,
	})

	for trial := 0; trial < 50; trial++ {
		var delays []time.Duration
		e.WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		})

		err := e.Do(context.Background(), func(_ context.Context) error {
			return context.DeadlineExceeded
		})

		var re *RetryError
		require.ErrorAs(t, err, &re)
		require.Len(t, re.Attempts, 3)
		require.Len(t, delays, 2)
		assert.GreaterOrEqual(t, delays[0], 500*time.Millisecond)
		assert.LessOrEqual(t, delays[0], 1000*time.Millisecond)
		assert.GreaterOrEqual(t, delays[1], 1000*time.Millisecond)
		assert.LessOrEqual(t, delays[1], 2000*time.Millisecond)
	}
}

func TestExecutor_MaxDelayCap(t *testing.T) {
	e, delays := instantExecutor(Policy{
		MaxAttempts:  6,
		InitialDelay: 1000 * time.Millisecond,
		MaxDelay:     4000 * time.Millisecond,
		Factor:       2,
	})

	_ = e.Do(context.Background(), func(_ context.Context) error { return &statusErr{code: 500} })

	require.Len(t, *delays, 5)
	assert.Equal(t, 4000*time.Millisecond, (*delays)[3])
	assert.Equal(t, 4000*time.Millisecond, (*delays)[4])
}

func TestExecutor_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor(Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, Factor: 2}).
		WithSleep(func(sctx context.Context, _ time.Duration) error {
			cancel()
			return sctx.Err()
		})

	calls := 0
	err := e.Do(ctx, func(_ context.Context) error {
		calls++
		return &statusErr{code: 500}
	})

	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, re, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
}

func TestExecutor_CircuitOpenFailsFast(t *testing.T) {
	e, delays := instantExecutor(Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, Factor: 2})

	calls := 0
	err := e.Do(context.Background(), func(_ context.Context) error {
		calls++
		return &OpenError{Upstream: "rail_a"}
	})

	assert.True(t, IsOpen(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestRetryable_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"4xx application error", &statusErr{code: 404}, false},
		{"422 decline", &statusErr{code: 422}, false},
		{"5xx server error", &statusErr{code: 503}, true},
		{"no response status zero", &statusErr{code: 0}, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "rail.example.com", IsNotFound: true}, true},
		{"circuit open", &OpenError{Upstream: "rail_a"}, false},
		{"plain error", errors.New("unexpected"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestMetrics_RegisterOnce(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg), "duplicate registration must fail")
}
