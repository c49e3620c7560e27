// Package ratelimit throttles login attempts per client with a sliding
// window. Every attempt counts, successful or not, and is recorded before
// credentials are checked.
package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultWindow is the trailing window over which attempts are counted.
	DefaultWindow = 5 * time.Minute
	// DefaultMax is the number of attempts allowed within the window.
	DefaultMax = 5
)

// Result describes the state of a key after recording an attempt.
type Result struct {
	// Count is the number of attempts inside the window, including this
	// one. Once the limit is exceeded it stays at max+1: only the newest
	// attempts are kept.
	Count int
	// Allowed is false once Count exceeds the limit.
	Allowed bool
	// RetryAfter is how long until an attempt would be allowed again.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter records attempts per key.
type Limiter interface {
	Record(ctx context.Context, key string) (Result, error)
	Reset(ctx context.Context, key string) error
}

// Option configures a limiter.
type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

func newConfig(opts []Option) config {
	c := config{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// prune drops attempts that are window or more older than now. attempts
// must be in ascending order.
func prune(attempts []time.Time, now time.Time, window time.Duration) []time.Time {
	start := 0
	for start < len(attempts) && now.Sub(attempts[start]) >= window {
		start++
	}
	return attempts[start:]
}

// record prunes attempts, appends now and evaluates the limit. The
// returned slice holds at most max entries: the next attempt is allowed
// once the oldest of the newest max has aged out, so older ones never
// matter again.
func record(attempts []time.Time, now time.Time, window time.Duration, max int) ([]time.Time, Result) {
	attempts = append(prune(attempts, now, window), now)
	res := Result{Count: len(attempts), Allowed: len(attempts) <= max}
	if !res.Allowed {
		keep := attempts[len(attempts)-max:]
		res.RetryAfter = keep[0].Add(window).Sub(now)
		attempts = append(attempts[:0], keep...)
	}
	return attempts, res
}
