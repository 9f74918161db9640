package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Defaults(t *testing.T) {
	cfg, err := DefaultBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, DefaultPeriod, cfg.Quota().Period())
	assert.Equal(t, DefaultBurst, cfg.Quota().Burst())
	assert.Nil(t, cfg.Methods())
	assert.False(t, cfg.HeadersEnabled())
	assert.False(t, cfg.Permissive())
	assert.Equal(t, "peer IP", cfg.Extractor().Name())
}

func TestBuilder_PeriodSetters(t *testing.T) {
	tests := []struct {
		name  string
		apply func(b *Builder[struct{}])
		want  time.Duration
	}{
		{"period", func(b *Builder[struct{}]) { b.Period(42 * time.Millisecond) }, 42 * time.Millisecond},
		{"per second", func(b *Builder[struct{}]) { b.PerSecond(3) }, 3 * time.Second},
		{"per millisecond", func(b *Builder[struct{}]) { b.PerMillisecond(90) }, 90 * time.Millisecond},
		{"per nanosecond", func(b *Builder[struct{}]) { b.PerNanosecond(7) }, 7 * time.Nanosecond},
		{"requests per second", func(b *Builder[struct{}]) { b.RequestsPerSecond(4) }, 250 * time.Millisecond},
		{"requests per second rounds up", func(b *Builder[struct{}]) { b.RequestsPerSecond(3) }, 333333334 * time.Nanosecond},
		{"one request per nanosecond", func(b *Builder[struct{}]) { b.RequestsPerSecond(uint64(time.Second)) }, time.Nanosecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder[struct{}](GlobalExtractor{})
			tt.apply(b)
			cfg, err := b.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Quota().Period())
		})
	}
}

func TestBuilder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		apply   func(b *Builder[struct{}])
		wantErr error
	}{
		{"zero burst", func(b *Builder[struct{}]) { b.BurstSize(0) }, ErrInvalidBurst},
		{"zero period", func(b *Builder[struct{}]) { b.PerSecond(0) }, ErrInvalidPeriod},
		{"zero rate", func(b *Builder[struct{}]) { b.RequestsPerSecond(0) }, ErrInvalidPeriod},
		{"huge rate", func(b *Builder[struct{}]) { b.RequestsPerSecond(2_000_000_000) }, ErrInvalidPeriod},
		{"overflowing seconds", func(b *Builder[struct{}]) { b.PerSecond(1 << 62) }, ErrQuotaOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder[struct{}](GlobalExtractor{})
			tt.apply(b)
			cfg, err := b.Build()
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, cfg)
		})
	}

	_, err := NewBuilder[string](nil).Build()
	assert.ErrorIs(t, err, ErrNoExtractor)
}

func TestBuilder_EachBuildHasItsOwnBuckets(t *testing.T) {
	b := NewBuilder[struct{}](GlobalExtractor{}).Period(time.Hour).BurstSize(1)
	first, err := b.Build()
	require.NoError(t, err)
	second, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, OutcomeAdmit, first.Check(newFakeRequest("")).Outcome)
	assert.Equal(t, OutcomeReject, first.Check(newFakeRequest("")).Outcome)
	assert.Equal(t, OutcomeAdmit, second.Check(newFakeRequest("")).Outcome)
}
