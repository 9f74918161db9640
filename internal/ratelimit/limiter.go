// Package ratelimit implements keyed token-bucket admission control for
// request pipelines. A Config bundles a Limiter with a KeyExtractor and the
// response policy; Middleware applies it to net/http handlers.
//
// Buckets refill lazily when checked, so the package starts no goroutines of
// its own. Bucket state lives in memory only.
package ratelimit

import (
	"fmt"
	"time"
)

// LimiterOption configures a Limiter.
type LimiterOption func(*limiterOptions)

type limiterOptions struct {
	clock  Clock
	shards int
}

// WithClock sets the time source used for refill and wait computations.
func WithClock(c Clock) LimiterOption {
	return func(o *limiterOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithShards sets the number of lock shards in the bucket store. The value is
// rounded up to a power of two.
func WithShards(n int) LimiterOption {
	return func(o *limiterOptions) {
		if n > 0 {
			o.shards = n
		}
	}
}

// Limiter keeps one token bucket per key. It is safe for concurrent use;
// checks for the same key are serialized, checks for different keys are not.
type Limiter[K comparable] struct {
	quota Quota
	clock Clock
	store *store[K]
}

// NewLimiter returns an empty Limiter enforcing q.
func NewLimiter[K comparable](q Quota, opts ...LimiterOption) (*Limiter[K], error) {
	if q.IsZero() {
		return nil, fmt.Errorf("new limiter: %w", ErrInvalidPeriod)
	}
	o := limiterOptions{clock: SystemClock{}, shards: defaultShards}
	for _, opt := range opts {
		opt(&o)
	}
	return &Limiter[K]{
		quota: q,
		clock: o.clock,
		store: newStore[K](o.shards, q.Capacity()),
	}, nil
}

// Quota returns the quota enforced by l.
func (l *Limiter[K]) Quota() Quota {
	return l.quota
}

// Check refills the bucket for key and tries to take one unit from it.
// It never blocks beyond the bucket's own lock and performs no I/O.
func (l *Limiter[K]) Check(key K) Decision {
	b := l.store.acquire(key)
	defer b.mu.Unlock()

	l.refill(b, l.clock.Now())

	period := l.quota.period
	if b.credit >= period {
		b.credit -= period
		return Decision{
			Allowed:   true,
			Limit:     l.quota.burst,
			Remaining: uint32(b.credit / period),
		}
	}
	return Decision{
		Limit:      l.quota.burst,
		RetryAfter: period - b.credit,
	}
}

// refill credits the time elapsed since the last check, capped at capacity.
// Must be called with b.mu held.
func (l *Limiter[K]) refill(b *bucket, now time.Time) {
	if !b.seen {
		b.seen = true
		b.last = now
		return
	}
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.last = now
	capacity := l.quota.Capacity()
	if elapsed >= capacity-b.credit {
		b.credit = capacity
	} else {
		b.credit += elapsed
	}
}

// Sweep drops every bucket that has refilled completely. A full bucket is
// indistinguishable from one that was never created, so sweeping does not
// change any future decision. It returns the number of buckets removed.
func (l *Limiter[K]) Sweep() int {
	now := l.clock.Now()
	capacity := l.quota.Capacity()
	return l.store.sweep(func(b *bucket) bool {
		if !b.seen {
			return true
		}
		return now.Sub(b.last) >= capacity-b.credit
	})
}

// Len returns the number of keys currently tracked.
func (l *Limiter[K]) Len() int {
	return l.store.len()
}
