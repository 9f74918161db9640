package ratelimit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuota(t *testing.T) {
	tests := []struct {
		name    string
		period  time.Duration
		burst   uint32
		wantErr error
	}{
		{name: "valid", period: time.Second, burst: 5},
		{name: "one nanosecond", period: time.Nanosecond, burst: 1},
		{name: "zero period", period: 0, burst: 1, wantErr: ErrInvalidPeriod},
		{name: "negative period", period: -time.Second, burst: 1, wantErr: ErrInvalidPeriod},
		{name: "zero burst", period: time.Second, burst: 0, wantErr: ErrInvalidBurst},
		{name: "overflow", period: time.Duration(math.MaxInt64 / 2), burst: 3, wantErr: ErrQuotaOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQuota(tt.period, tt.burst)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, q.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.period, q.Period())
			assert.Equal(t, tt.burst, q.Burst())
			assert.Equal(t, tt.period*time.Duration(tt.burst), q.Capacity())
		})
	}
}

func TestQuotaWithPeriodAndAllowBurst(t *testing.T) {
	q, err := QuotaWithPeriod(90 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), q.Burst())

	q2, err := q.AllowBurst(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), q2.Burst())
	assert.Equal(t, 180*time.Millisecond, q2.Capacity())
	assert.Equal(t, uint32(1), q.Burst(), "original quota must not change")

	_, err = q.AllowBurst(0)
	assert.ErrorIs(t, err, ErrInvalidBurst)
}

func TestDecisionRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, uint64(0), Decision{RetryAfter: 90 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, uint64(2), Decision{RetryAfter: 2999 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, uint64(3), Decision{RetryAfter: 3 * time.Second}.RetryAfterSeconds())
	assert.Equal(t, uint64(0), Decision{RetryAfter: -time.Second}.RetryAfterSeconds())
	assert.Equal(t, epoch.Add(time.Second), Decision{RetryAfter: time.Second}.RetryAt(epoch))
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(epoch)
	c.Advance(time.Second)
	assert.Equal(t, epoch.Add(time.Second), c.Now())

	c.Advance(-time.Hour)
	assert.Equal(t, epoch.Add(time.Second), c.Now())

	c.Set(epoch)
	assert.Equal(t, epoch.Add(time.Second), c.Now(), "Set must not move backwards")

	c.Set(epoch.Add(time.Minute))
	assert.Equal(t, epoch.Add(time.Minute), c.Now())
}
