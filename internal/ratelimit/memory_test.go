package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
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

func TestMemory_WindowBoundary(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	m := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "u1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, err := m.Allow(ctx, "u1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "N+1th request inside the window")

	clock.Advance(time.Minute)

	ok, err = m.Allow(ctx, "u1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "N+1th request after the window elapsed")
}

func TestMemory_SlidingNotFixed(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	m := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	ok, _ := m.Allow(ctx, "k", 2, 10*time.Second)
	assert.True(t, ok)
	clock.Advance(6 * time.Second)
	ok, _ = m.Allow(ctx, "k", 2, 10*time.Second)
	assert.True(t, ok)
	clock.Advance(5 * time.Second)

	// first hit expired, second still inside the window
	ok, _ = m.Allow(ctx, "k", 2, 10*time.Second)
	assert.True(t, ok)
	ok, _ = m.Allow(ctx, "k", 2, 10*time.Second)
	assert.False(t, ok)
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	ok, _ := m.Allow(ctx, "a", 1, time.Minute)
	assert.True(t, ok)
	ok, _ = m.Allow(ctx, "a", 1, time.Minute)
	assert.False(t, ok)
	ok, _ = m.Allow(ctx, "b", 1, time.Minute)
	assert.True(t, ok)
}

func TestMemory_ZeroMaxDenies(t *testing.T) {
	t.Parallel()

	ok, err := NewMemory().Allow(context.Background(), "a", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_SweepEvictsIdle(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	m := NewMemory(
		WithClock(clock.Now),
		WithSweepInterval(time.Minute),
		WithIdleMultiplier(2),
	)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "idle", 5, time.Minute)
	_, _ = m.Allow(ctx, "busy", 5, time.Minute)
	require.Equal(t, 2, m.Size())

	// not yet idle long enough
	clock.Advance(90 * time.Second)
	_, _ = m.Allow(ctx, "busy", 5, time.Minute)
	assert.Equal(t, 2, m.Size())

	// sweep is time-gated: the call that triggers it is more than
	// 2 windows after "idle" was last seen
	clock.Advance(61 * time.Second)
	_, _ = m.Allow(ctx, "busy", 5, time.Minute)
	assert.Equal(t, 1, m.Size())
}

func TestMemory_Concurrent(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := m.Allow(ctx, "shared", 10, time.Minute)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestGate_FailurePolicy(t *testing.T) {
	t.Parallel()

	rule := Rule{Max: 1, Window: time.Minute}

	closed := NewGate(brokenLimiter{}, "sell", FailClosed)
	assert.False(t, closed.Admit(context.Background(), "u1", rule))

	open := NewGate(brokenLimiter{}, "ip", FailOpen)
	assert.True(t, open.Admit(context.Background(), "1.2.3.4", rule))

	errs, denied := closed.Stats()
	assert.Equal(t, int64(1), errs)
	assert.Equal(t, int64(0), denied)
}

func TestGate_ScopesDoNotShareCounters(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	sell := NewGate(m, "sell", FailClosed)
	bulk := NewGate(m, "bulk", FailClosed)
	rule := Rule{Max: 1, Window: time.Minute}

	assert.True(t, sell.Admit(context.Background(), "u1", rule))
	assert.False(t, sell.Admit(context.Background(), "u1", rule))
	assert.True(t, bulk.Admit(context.Background(), "u1", rule))

	_, denied := sell.Stats()
	assert.Equal(t, int64(1), denied)
}

func TestRule_RetryAfterSeconds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 60, Rule{Window: time.Minute}.RetryAfterSeconds())
	assert.Equal(t, 1, Rule{Window: 200 * time.Millisecond}.RetryAfterSeconds())
}
