package ratelimit

import "time"

// Decision is the outcome of a single Limiter check.
//
// When Allowed is true, Remaining holds the number of whole units left in the
// bucket after this admission and RetryAfter is zero. When Allowed is false,
// Remaining is zero and RetryAfter is the time until one unit is available.
type Decision struct {
	Allowed    bool
	Limit      uint32
	Remaining  uint32
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter truncated to whole seconds, the unit
// used in response headers and default rejection bodies.
func (d Decision) RetryAfterSeconds() uint64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return uint64(d.RetryAfter / time.Second)
}

// RetryAt returns the instant at which a retry is expected to be admitted.
func (d Decision) RetryAt(now time.Time) time.Time {
	return now.Add(d.RetryAfter)
}
