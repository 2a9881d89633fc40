package limiter

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the table size above which stale entries are pruned.
const sweepThreshold = 10000

type memEntry struct {
	fails        int
	lastFailure  time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter for single-instance deployments.
type Memory struct {
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*memEntry
}

// NewMemory creates an in-process limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{
		policy:  p.normalize(),
		now:     time.Now,
		entries: make(map[string]*memEntry),
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Failure implements Limiter.
func (m *Memory) Failure(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.entries) > sweepThreshold {
		m.sweep(now)
	}

	e, ok := m.entries[key]
	if !ok {
		e = &memEntry{}
		m.entries[key] = e
	}
	if now.Sub(e.lastFailure) > m.policy.Window {
		e.fails = 0
	}
	e.fails++
	e.lastFailure = now

	if e.fails >= m.policy.MaxFailures {
		e.blockedUntil = now.Add(m.policy.BlockFor)
		e.fails = 0
		return true, m.policy.BlockFor, nil
	}
	return false, 0, nil
}

func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if !e.blockedUntil.After(now) && now.Sub(e.lastFailure) > m.policy.Window {
			delete(m.entries, k)
		}
	}
}
