package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Limiter. State is lost on restart and is not
// shared between instances.
type Memory struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	window   time.Duration
	max      int
	now      func() time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory returns a Memory limiter allowing max attempts per window.
func NewMemory(window time.Duration, max int, opts ...Option) *Memory {
	cfg := newConfig(opts)
	return &Memory{
		attempts: make(map[string][]time.Time),
		window:   window,
		max:      max,
		now:      cfg.now,
	}
}

func (m *Memory) Record(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempts, res := record(m.attempts[key], m.now(), m.window, m.max)
	m.attempts[key] = attempts
	return res, nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, key)
	return nil
}

// Sweep removes keys with no attempts left in the window. Call periodically
// from a background goroutine.
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, attempts := range m.attempts {
		if len(prune(attempts, now, m.window)) == 0 {
			delete(m.attempts, key)
		}
	}
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
