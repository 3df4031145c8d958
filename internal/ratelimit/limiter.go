// Package ratelimit implements a fixed-window request limiter keyed by
// caller-supplied composite keys.
//
// A window starts on the first hit for a key and lasts Config.Window. Every
// hit inside the window increments the counter; a hit is admitted while the
// counter stays at or below Config.Max. The first hit at or after the window
// end starts a new window. Counters live in a Store: MemoryStore for a single
// process, RedisStore when several replicas must share one budget.
package ratelimit

import (
	"context"
	"time"
)

// Store records hits in fixed windows. Hit must be atomic per key: concurrent
// calls for one key observe strictly increasing counts.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Config describes one limiting policy.
type Config struct {
	Window time.Duration
	Max    int
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds.
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Second - 1) / time.Second)
}

// Limiter admits or rejects calls per key according to its Config.
type Limiter struct {
	store  Store
	config Config
	now    func() time.Time
}

// New creates a Limiter over store.
func New(store Store, cfg Config) *Limiter {
	return &Limiter{store: store, config: cfg, now: time.Now}
}

// Config returns the policy the limiter enforces.
func (l *Limiter) Config() Config {
	return l.config
}

// Allow counts one call for key and reports whether it is admitted.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, resetAt, err := l.store.Hit(ctx, key, l.config.Window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:   count <= int64(l.config.Max),
		Limit:     l.config.Max,
		Remaining: l.config.Max - int(count),
		ResetAt:   resetAt,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(l.now())
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d, nil
}
