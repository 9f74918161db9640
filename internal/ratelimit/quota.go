package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidPeriod is returned when a replenishment period is not positive.
	ErrInvalidPeriod = errors.New("replenishment period must be positive")

	// ErrInvalidBurst is returned when a burst capacity of zero is requested.
	ErrInvalidBurst = errors.New("burst size must be positive")

	// ErrQuotaOverflow is returned when period × burst does not fit in a
	// time.Duration.
	ErrQuotaOverflow = errors.New("period multiplied by burst size overflows")
)

// Quota describes a token bucket: at most Burst units may be consumed at
// once, after which one unit is replenished every Period.
type Quota struct {
	period time.Duration
	burst  uint32
}

// NewQuota validates and returns a Quota.
func NewQuota(period time.Duration, burst uint32) (Quota, error) {
	if period <= 0 {
		return Quota{}, fmt.Errorf("%w: got %s", ErrInvalidPeriod, period)
	}
	if burst == 0 {
		return Quota{}, ErrInvalidBurst
	}
	if int64(burst) > math.MaxInt64/int64(period) {
		return Quota{}, fmt.Errorf("%w: %s x %d", ErrQuotaOverflow, period, burst)
	}
	return Quota{period: period, burst: burst}, nil
}

// QuotaWithPeriod returns a Quota replenishing one unit every period with a
// burst of one.
func QuotaWithPeriod(period time.Duration) (Quota, error) {
	return NewQuota(period, 1)
}

// AllowBurst returns a copy of q with the burst capacity set to n.
func (q Quota) AllowBurst(n uint32) (Quota, error) {
	return NewQuota(q.period, n)
}

// Period is the time needed to replenish a single unit.
func (q Quota) Period() time.Duration { return q.period }

// Burst is the bucket capacity.
func (q Quota) Burst() uint32 { return q.burst }

// Capacity is the time needed to refill an empty bucket.
func (q Quota) Capacity() time.Duration {
	return q.period * time.Duration(q.burst)
}

// IsZero reports whether q was never constructed through NewQuota.
func (q Quota) IsZero() bool {
	return q.period == 0
}

func (q Quota) String() string {
	return fmt.Sprintf("%d per %s", q.burst, q.Capacity())
}
