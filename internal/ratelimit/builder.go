package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/netip"
	"strings"
	"time"
)

const (
	// DefaultPeriod is the replenishment period used when none is set.
	DefaultPeriod = 500 * time.Millisecond
	// DefaultBurst is the burst size used when none is set.
	DefaultBurst uint32 = 8
)

// ErrNoExtractor is returned by Build when the builder has no key extractor.
var ErrNoExtractor = errors.New("key extractor is required")

// Builder collects rate-limit settings and produces a Config.
type Builder[K comparable] struct {
	extractor  KeyExtractor[K]
	period     time.Duration
	burst      uint32
	methods    []string
	headers    bool
	permissive bool
	clock      Clock
	shards     int
	logger     *slog.Logger
	observer   Observer
	err        error
}

// NewBuilder returns a builder with the default quota for ex.
func NewBuilder[K comparable](ex KeyExtractor[K]) *Builder[K] {
	return &Builder[K]{
		extractor: ex,
		period:    DefaultPeriod,
		burst:     DefaultBurst,
	}
}

// DefaultBuilder returns a builder keyed by peer IP.
func DefaultBuilder() *Builder[netip.Addr] {
	return NewBuilder[netip.Addr](PeerIPExtractor{})
}

// Period sets the time needed to replenish one unit.
func (b *Builder[K]) Period(d time.Duration) *Builder[K] {
	b.period = d
	return b
}

// PerSecond replenishes one unit every n seconds.
func (b *Builder[K]) PerSecond(n uint64) *Builder[K] {
	return b.periodUnits(n, time.Second)
}

// PerMillisecond replenishes one unit every n milliseconds.
func (b *Builder[K]) PerMillisecond(n uint64) *Builder[K] {
	return b.periodUnits(n, time.Millisecond)
}

// PerNanosecond replenishes one unit every n nanoseconds.
func (b *Builder[K]) PerNanosecond(n uint64) *Builder[K] {
	return b.periodUnits(n, time.Nanosecond)
}

// RequestsPerSecond sets the period to admit n requests per second on
// average. When n does not divide one second the period is rounded up to the
// next nanosecond, so the admitted rate never exceeds n. Rates above one per
// nanosecond are rejected by Build.
func (b *Builder[K]) RequestsPerSecond(n uint64) *Builder[K] {
	b.period = PeriodForRate(n)
	return b
}

// PeriodForRate returns the replenishment period for n requests per second,
// rounded up to a whole nanosecond. It returns 0 when n is 0 or above one
// per nanosecond.
func PeriodForRate(n uint64) time.Duration {
	if n == 0 || n > uint64(time.Second) {
		return 0
	}
	d := time.Duration(n)
	return (time.Second + d - 1) / d
}

func (b *Builder[K]) periodUnits(n uint64, unit time.Duration) *Builder[K] {
	if n > uint64(math.MaxInt64/int64(unit)) {
		b.err = fmt.Errorf("%w: %d x %s", ErrQuotaOverflow, n, unit)
		return b
	}
	b.period = time.Duration(n) * unit
	return b
}

// BurstSize sets how many requests may be admitted back to back.
func (b *Builder[K]) BurstSize(n uint32) *Builder[K] {
	b.burst = n
	return b
}

// Methods limits only requests with the given methods. Without a call every
// method is limited; calling it with no arguments clears the filter.
func (b *Builder[K]) Methods(methods ...string) *Builder[K] {
	if len(methods) == 0 {
		b.methods = nil
		return b
	}
	b.methods = make([]string, 0, len(methods))
	for _, m := range methods {
		b.methods = append(b.methods, strings.ToUpper(m))
	}
	return b
}

// UseHeaders enables the informational x-ratelimit-* headers.
func (b *Builder[K]) UseHeaders() *Builder[K] {
	b.headers = true
	return b
}

// Permissive makes the policy record decisions without ever blocking.
func (b *Builder[K]) Permissive(on bool) *Builder[K] {
	b.permissive = on
	return b
}

func (b *Builder[K]) Clock(c Clock) *Builder[K] {
	b.clock = c
	return b
}

func (b *Builder[K]) Shards(n int) *Builder[K] {
	b.shards = n
	return b
}

func (b *Builder[K]) Logger(l *slog.Logger) *Builder[K] {
	b.logger = l
	return b
}

func (b *Builder[K]) Observer(o Observer) *Builder[K] {
	b.observer = o
	return b
}

// Build validates the settings and returns a Config.
//
// Every call creates a fresh, empty bucket store. Build once at startup and
// share the result; a Config built per request never limits anything.
func (b *Builder[K]) Build() (*Config[K], error) {
	if b.extractor == nil {
		return nil, ErrNoExtractor
	}
	if b.err != nil {
		return nil, fmt.Errorf("build rate limit config: %w", b.err)
	}
	q, err := NewQuota(b.period, b.burst)
	if err != nil {
		return nil, fmt.Errorf("build rate limit config: %w", err)
	}
	lim, err := NewLimiter[K](q, WithClock(b.clock), WithShards(b.shards))
	if err != nil {
		return nil, fmt.Errorf("build rate limit config: %w", err)
	}

	var methods map[string]struct{}
	if b.methods != nil {
		methods = make(map[string]struct{}, len(b.methods))
		for _, m := range b.methods {
			methods[m] = struct{}{}
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Config[K]{
		limiter:    lim,
		extractor:  b.extractor,
		methods:    methods,
		headers:    b.headers,
		permissive: b.permissive,
		logger:     logger,
		observer:   b.observer,
		rejectLog:  newRejectLog(),
	}, nil
}
