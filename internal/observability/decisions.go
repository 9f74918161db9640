package observability

import (
	"context"

	"ratekeeper/internal/ratelimit"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const meterName = "ratekeeper/ratelimit"

// DecisionObserver records every rate limit verdict as a counter sample and
// as an event on the request's active span.
type DecisionObserver struct {
	decisions  metric.Int64Counter
	retryAfter metric.Float64Histogram
}

var _ ratelimit.Observer = (*DecisionObserver)(nil)

// NewDecisionObserver creates the decision instruments on mp.
func NewDecisionObserver(mp metric.MeterProvider) (*DecisionObserver, error) {
	meter := mp.Meter(meterName)

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Rate limit verdicts by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	retryAfter, err := meter.Float64Histogram(
		"ratelimit.retry_after",
		metric.WithDescription("Time rejected clients were asked to wait"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &DecisionObserver{decisions: decisions, retryAfter: retryAfter}, nil
}

// ObserveVerdict implements ratelimit.Observer.
func (o *DecisionObserver) ObserveVerdict(ctx context.Context, extractor string, v ratelimit.Verdict) {
	attrs := []attribute.KeyValue{
		attribute.String("outcome", v.Outcome.String()),
		attribute.String("extractor", extractor),
		attribute.Bool("method_exempt", v.MethodExempt),
	}
	o.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))

	if !v.Decision.Allowed && v.Decision.RetryAfter > 0 {
		o.retryAfter.Record(ctx, v.Decision.RetryAfter.Seconds(),
			metric.WithAttributes(attribute.String("extractor", extractor)))
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if v.Decision.Limit > 0 {
		attrs = append(attrs,
			attribute.Int64("ratelimit.limit", int64(v.Decision.Limit)),
			attribute.Int64("ratelimit.remaining", int64(v.Decision.Remaining)),
		)
	}
	span.AddEvent("ratelimit.decision", trace.WithAttributes(attrs...))
}

// RegisterTrackedKeys publishes the number of keys held by the limiter as an
// asynchronous gauge.
func RegisterTrackedKeys(mp metric.MeterProvider, count func() int) (metric.Registration, error) {
	meter := mp.Meter(meterName)
	gauge, err := meter.Int64ObservableGauge(
		"ratelimit.tracked_keys",
		metric.WithDescription("Keys currently tracked by the limiter"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(count()))
		return nil
	}, gauge)
}
