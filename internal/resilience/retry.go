package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Policy configures retry behavior for transient failures.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool // Uniform jitter in [0.5, 1.0] of the computed delay
	// ShouldRetry decides whether an error is worth another attempt.
	// Defaults to Retryable.
	ShouldRetry func(error) bool
}

// DefaultPolicy mirrors the provider dispatch defaults: three attempts,
// 1s initial delay doubling up to 10s, with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Factor:       2,
		Jitter:       true,
	}
}

// Executor runs operations under a retry policy. The sleep and random source
// are injectable for tests.
type Executor struct {
	policy    Policy
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
	metrics   *Metrics
}

// NewExecutor creates an Executor with the given policy.
func NewExecutor(policy Policy) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Factor <= 0 {
		policy.Factor = 2
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = Retryable
	}
	return &Executor{
		policy:    policy,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
	}
}

// WithSleep overrides the inter-attempt sleep, for tests.
func (e *Executor) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Executor {
	e.sleep = sleep
	return e
}

// WithRand overrides the jitter source, for tests.
func (e *Executor) WithRand(f func() float64) *Executor {
	e.randFloat = f
	return e
}

// WithMetrics attaches prometheus instrumentation.
func (e *Executor) WithMetrics(m *Metrics) *Executor {
	e.metrics = m
	return e
}

// Do runs op with bounded attempts and exponential backoff. Non-retryable
// errors fail immediately. After exhausting attempts the aggregate RetryError
// carries every attempt error with its timestamp. Cancellation is honored
// between attempts, never mid-call.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var attempts []AttemptError

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			e.countRetry("success")
			return nil
		}

		attempts = append(attempts, AttemptError{
			Attempt: attempt,
			Err:     err,
			Message: err.Error(),
			At:      time.Now().UTC(),
		})

		if !e.policy.ShouldRetry(err) {
			e.countRetry("non_retryable")
			return err
		}

		if attempt == e.policy.MaxAttempts {
			e.countRetry("exhausted")
			return &RetryError{Attempts: attempts, Last: err}
		}

		if serr := e.sleep(ctx, e.delay(attempt)); serr != nil {
			// Aborted between attempts; report what happened so far.
			return &RetryError{Attempts: attempts, Last: serr}
		}
		e.countRetry("retried")
	}

	// Unreachable: the loop always returns.
	return nil
}

// delay computes the backoff before the attempt following attempt n.
func (e *Executor) delay(attempt int) time.Duration {
	d := float64(e.policy.InitialDelay) * math.Pow(e.policy.Factor, float64(attempt-1))
	if limit := float64(e.policy.MaxDelay); e.policy.MaxDelay > 0 && d > limit {
		d = limit
	}
	if e.policy.Jitter {
		d *= 0.5 + 0.5*e.randFloat()
	}
	return time.Duration(d)
}

func (e *Executor) countRetry(outcome string) {
	if e.metrics != nil {
		e.metrics.recordRetry(outcome)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StatusCoder exposes an HTTP-like status attached to an upstream error.
type StatusCoder interface {
	StatusCode() int
}

// Retryable is the default retry predicate: application-level 4xx errors are
// never retried, 5xx and network-level failures are, and circuit-open
// rejections fail fast so an open breaker is not hammered mid-loop.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if IsOpen(err) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		if code >= 400 && code < 500 {
			return false
		}
		if code >= 500 || code == 0 {
			return true
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}
