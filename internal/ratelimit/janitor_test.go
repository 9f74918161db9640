package ratelimit

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	sweeps atomic.Int32
}

func (s *countingSweeper) Sweep() int {
	s.sweeps.Add(1)
	return 1
}

func (s *countingSweeper) Len() int { return 0 }

func TestJanitor_SweepsUntilStopped(t *testing.T) {
	s := &countingSweeper{}
	j := NewJanitor(s, 5*time.Millisecond, nil)
	j.Start()
	j.Start()

	assert.Eventually(t, func() bool { return s.sweeps.Load() >= 2 }, time.Second, time.Millisecond)

	j.Stop()
	after := s.sweeps.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, s.sweeps.Load())

	j.Stop()
}

func TestJanitor_EvictsIdleBuckets(t *testing.T) {
	clock := NewManualClock(epoch)
	l, err := NewLimiter[string](mustQuota(t, time.Millisecond, 1), WithClock(clock))
	require.NoError(t, err)
	l.Check("a")
	l.Check("b")
	clock.Advance(time.Second)

	j := NewJanitor(l, time.Millisecond, nil)
	j.Start()
	defer j.Stop()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, time.Millisecond)
}

func TestJanitor_ZeroIntervalNeverStarts(t *testing.T) {
	s := &countingSweeper{}
	j := NewJanitor(s, 0, nil)
	j.Start()
	time.Sleep(5 * time.Millisecond)
	j.Stop()
	assert.Equal(t, int32(0), s.sweeps.Load())
}
