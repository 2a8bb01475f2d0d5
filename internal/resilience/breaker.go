package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the circuit breaker state machine position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// Settings configures one breaker. Each upstream gets its own instance with
// independent thresholds; a trip in one never affects another.
type Settings struct {
	Name             string
	Timeout          time.Duration // Hard per-call timeout
	FailureThreshold float64       // Failure rate in [0,1] that trips the breaker
	MinimumCalls     int           // Volume floor before the rate is considered
	Cooldown         time.Duration // OPEN duration before a HALF_OPEN trial
	Window           time.Duration // Rolling window covered by the counters
	Buckets          int           // Bucket count inside the window
}

func (s Settings) withDefaults() Settings {
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 0.5
	}
	if s.MinimumCalls <= 0 {
		s.MinimumCalls = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Window <= 0 {
		s.Window = 60 * time.Second
	}
	if s.Buckets <= 0 {
		s.Buckets = 10
	}
	return s
}

// Snapshot is a read-only view of a breaker for the status endpoint.
type Snapshot struct {
	Upstream   string    `json:"upstream"`
	State      string    `json:"state"`
	Successes  uint64    `json:"successes"`
	Failures   uint64    `json:"failures"`
	Timeouts   uint64    `json:"timeouts"`
	Rejections uint64    `json:"rejections"`
	Fires      uint64    `json:"fires"` // CLOSED->OPEN transitions
	Since      time.Time `json:"since"` // Last state transition
}

type bucket struct {
	start     time.Time
	successes uint64
	failures  uint64
	timeouts  uint64
}

// Breaker wraps calls to one upstream with a trip/half-open/reset state
// machine over rolling-window failure counters.
type Breaker struct {
	mu       sync.Mutex
	settings Settings
	state    State
	buckets  []bucket
	current  int

	changedAt  time.Time
	rejections uint64
	fires      uint64
	trialBusy  bool // HALF_OPEN admits a single in-flight trial

	now     func() time.Time
	metrics *Metrics
}

// NewBreaker creates a breaker for one upstream.
func NewBreaker(settings Settings) *Breaker {
	s := settings.withDefaults()
	b := &Breaker{
		settings: s,
		state:    StateClosed,
		buckets:  make([]bucket, s.Buckets),
		now:      time.Now,
	}
	b.changedAt = b.now()
	b.buckets[0] = bucket{start: b.changedAt}
	return b
}

// WithClock overrides the time source, for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	b.changedAt = now()
	b.buckets[b.current].start = b.changedAt
	return b
}

// WithMetrics attaches prometheus instrumentation.
func (b *Breaker) WithMetrics(m *Metrics) *Breaker {
	b.metrics = m
	if m != nil {
		m.setState(b.settings.Name, b.state)
	}
	return b
}

// Name returns the upstream name.
func (b *Breaker) Name() string { return b.settings.Name }

// State returns the current state, advancing OPEN to HALF_OPEN when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Execute runs fn under the breaker with the configured hard timeout. When the
// breaker is open the call is rejected immediately without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.settings.Timeout)
	defer cancel()

	err := fn(callCtx)
	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
	b.record(err == nil, timedOut)
	return err
}

// admit decides whether a call may proceed; rejections never touch the upstream.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case StateOpen:
		b.rejections++
		b.countCall("rejected")
		return &OpenError{Upstream: b.settings.Name}
	case StateHalfOpen:
		if b.trialBusy {
			b.rejections++
			b.countCall("rejected")
			return &OpenError{Upstream: b.settings.Name}
		}
		b.trialBusy = true
	}
	return nil
}

// record feeds one call outcome back into the state machine.
func (b *Breaker) record(ok bool, timedOut bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trialBusy = false
		if ok {
			b.transition(StateClosed)
			b.resetWindow()
			b.countCall("success")
		} else {
			b.transition(StateOpen)
			b.countCall(outcomeLabel(timedOut))
		}
		return
	}

	bkt := b.currentBucket()
	if ok {
		bkt.successes++
		b.countCall("success")
	} else {
		bkt.failures++
		if timedOut {
			bkt.timeouts++
		}
		b.countCall(outcomeLabel(timedOut))
	}

	if b.state == StateClosed && !ok {
		total, failures := b.windowCounts()
		if total >= uint64(b.settings.MinimumCalls) &&
			float64(failures)/float64(total) >= b.settings.FailureThreshold {
			b.fires++
			b.transition(StateOpen)
		}
	}
}

// Snapshot returns the current counters and state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	var successes, failures, timeouts uint64
	cutoff := b.now().Add(-b.settings.Window)
	for i := range b.buckets {
		bk := &b.buckets[i]
		if bk.start.IsZero() || bk.start.Before(cutoff.Add(-b.bucketSpan())) {
			continue
		}
		successes += bk.successes
		failures += bk.failures
		timeouts += bk.timeouts
	}
	return Snapshot{
		Upstream:   b.settings.Name,
		State:      b.state.String(),
		Successes:  successes,
		Failures:   failures,
		Timeouts:   timeouts,
		Rejections: b.rejections,
		Fires:      b.fires,
		Since:      b.changedAt,
	}
}

// --- internals; callers hold b.mu ---

func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.changedAt) >= b.settings.Cooldown {
		b.transition(StateHalfOpen)
		b.trialBusy = false
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.changedAt = b.now()
	if b.metrics != nil {
		b.metrics.recordTransition(b.settings.Name, from, to)
		b.metrics.setState(b.settings.Name, to)
	}
}

func (b *Breaker) bucketSpan() time.Duration {
	return b.settings.Window / time.Duration(b.settings.Buckets)
}

// currentBucket rotates the ring forward to the bucket covering now.
func (b *Breaker) currentBucket() *bucket {
	now := b.now()
	span := b.bucketSpan()
	cur := &b.buckets[b.current]
	if cur.start.IsZero() || now.Sub(cur.start) >= b.settings.Window+span {
		b.resetWindow()
		return &b.buckets[b.current]
	}
	for now.Sub(cur.start) >= span {
		b.current = (b.current + 1) % len(b.buckets)
		b.buckets[b.current] = bucket{start: cur.start.Add(span)}
		cur = &b.buckets[b.current]
	}
	return cur
}

func (b *Breaker) windowCounts() (total, failures uint64) {
	cutoff := b.now().Add(-b.settings.Window)
	for i := range b.buckets {
		bk := &b.buckets[i]
		if bk.start.IsZero() || bk.start.Before(cutoff.Add(-b.bucketSpan())) {
			continue
		}
		total += bk.successes + bk.failures
		failures += bk.failures
	}
	return total, failures
}

func (b *Breaker) resetWindow() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
	b.current = 0
	b.buckets[0] = bucket{start: b.now()}
}

func (b *Breaker) countCall(outcome string) {
	if b.metrics != nil {
		b.metrics.recordCall(b.settings.Name, outcome)
	}
}

func outcomeLabel(timedOut bool) string {
	if timedOut {
		return "timeout"
	}
	return "failure"
}
