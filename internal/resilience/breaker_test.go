package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually-advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testBreaker(clock *fakeClock) *Breaker {
	return NewBreaker(Settings{
		Name:             "rail_a",
		Timeout:          time.Second,
		FailureThreshold: 0.5,
		MinimumCalls:     4,
		Cooldown:         30 * time.Second,
		Window:           60 * time.Second,
		Buckets:          10,
	}).WithClock(clock.Now)
}

var errUpstream = errors.New("upstream exploded")

func fail(_ context.Context) error    { return errUpstream }
func succeed(_ context.Context) error { return nil }

func TestBreaker_StaysClosedBelowVolumeFloor(t *testing.T) {
	b := testBreaker(newFakeClock())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TripsOnFailureRate(t *testing.T) {
	b := testBreaker(newFakeClock())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Execute(ctx, fail)
	}
	assert.Equal(t, StateOpen, b.State())

	// Rejected without invoking the wrapped function.
	invoked := false
	err := b.Execute(ctx, func(_ context.Context) error {
		invoked = true
		return nil
	})
	assert.True(t, IsOpen(err))
	assert.False(t, invoked)

	snap := b.Snapshot()
	assert.Equal(t, "OPEN", snap.State)
	assert.Equal(t, uint64(1), snap.Fires)
	assert.Equal(t, uint64(1), snap.Rejections)
}

func TestBreaker_MixedOutcomesBelowThresholdStayClosed(t *testing.T) {
	b := testBreaker(newFakeClock())
	ctx := context.Background()

	// 2 failures out of 6 calls = 33% < 50%.
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Execute(ctx, succeed))
	}
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAfterCooldown_SuccessCloses(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())

	// Counters reset with the window.
	snap := b.Snapshot()
	assert.Equal(t, uint64(0), snap.Failures)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.Advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	assert.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	// Cooldown restarts: still open before another full cooldown.
	clock.Advance(10 * time.Second)
	assert.Equal(t, StateOpen, b.State())
	clock.Advance(21 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.Advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Execute(ctx, func(_ context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// Second concurrent call is rejected while the trial is in flight.
	err := b.Execute(ctx, succeed)
	assert.True(t, IsOpen(err))
	close(release)
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	b := NewBreaker(Settings{
		Name:             "rail_b",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 0.5,
		MinimumCalls:     2,
	})
	ctx := context.Background()

	slow := func(callCtx context.Context) error {
		<-callCtx.Done()
		return callCtx.Err()
	}
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Execute(ctx, slow), context.DeadlineExceeded)
	}

	snap := b.Snapshot()
	assert.Equal(t, "OPEN", snap.State)
	assert.Equal(t, uint64(2), snap.Timeouts)
}

func TestBreaker_IndependentUpstreams(t *testing.T) {
	clock := newFakeClock()
	a := testBreaker(clock)
	other := NewBreaker(Settings{Name: "rail_b", MinimumCalls: 4}).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = a.Execute(ctx, fail)
	}
	assert.Equal(t, StateOpen, a.State())
	assert.Equal(t, StateClosed, other.State())
	assert.NoError(t, other.Execute(ctx, succeed))
}

func TestBreaker_RollingWindowEvictsOldFailures(t *testing.T) {
	clock := newFakeClock()
	b := testBreaker(clock)
	ctx := context.Background()

	// Three old failures, below the volume floor.
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	// Window (plus a bucket) rolls past them entirely.
	clock.Advance(70 * time.Second)

	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State(), "evicted failures must not count toward the rate")
}

func TestRegistry_SnapshotsSorted(t *testing.T) {
	r := NewRegistry()
	r.Add(NewBreaker(Settings{Name: UpstreamRailB}))
	r.Add(NewBreaker(Settings{Name: UpstreamRailA}))
	r.Add(NewBreaker(Settings{Name: UpstreamDatastore}))

	snaps := r.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, UpstreamDatastore, snaps[0].Upstream)
	assert.Equal(t, UpstreamRailA, snaps[1].Upstream)
	assert.Equal(t, UpstreamRailB, snaps[2].Upstream)
}

func TestRegistry_GetUnknownReturnsNil(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("nope"))
}
