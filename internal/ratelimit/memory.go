package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry is the sliding log of one identifier.
type entry struct {
	hits     []time.Time
	window   time.Duration
	lastSeen time.Time
}

// Memory is a single-process sliding-log limiter. Expiry is evaluated on
// each call and idle identifiers are swept at most once per sweep
// interval, from inside Allow, so no background goroutine is needed.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry

	now        func() time.Time
	sweepEvery time.Duration
	idleFactor int
	lastSweep  time.Time
}

var _ Limiter = (*Memory)(nil)

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithSweepInterval sets the minimum time between idle sweeps.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.sweepEvery = d
		}
	}
}

// WithIdleMultiplier sets how many windows an identifier may stay idle
// before it is evicted.
func WithIdleMultiplier(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.idleFactor = n
		}
	}
}

// NewMemory creates an in-memory limiter.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    make(map[string]*entry),
		now:        time.Now,
		sweepEvery: time.Minute,
		idleFactor: 5,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = m.now()
	return m
}

// Allow never returns an error.
func (m *Memory) Allow(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.maybeSweep(now)

	if max <= 0 {
		return false, nil
	}

	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.window = window
	e.lastSeen = now

	cutoff := now.Add(-window)
	kept := e.hits[:0]
	for _, t := range e.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.hits = kept

	if len(e.hits) >= max {
		return false, nil
	}

	e.hits = append(e.hits, now)
	return true, nil
}

// Size returns the number of tracked identifiers.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) maybeSweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.sweepEvery {
		return
	}
	m.lastSweep = now

	for key, e := range m.entries {
		idle := time.Duration(m.idleFactor) * e.window
		if now.Sub(e.lastSeen) > idle {
			delete(m.entries, key)
		}
	}
}
