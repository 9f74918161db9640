package observability

import (
	"context"
	"time"

	"ratekeeper/internal/models"
	"ratekeeper/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage with a span, a latency sample
// and an error count per call.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// NewInstrumentedStorage instruments inner using the global providers.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("ratekeeper/storage")
	meter := otel.Meter("ratekeeper/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) AllowEntries(ctx context.Context) ([]*models.AllowEntry, error) {
	ctx, span := s.startSpan(ctx, "AllowEntries")
	start := time.Now()
	result, err := s.inner.AllowEntries(ctx)
	span.SetAttributes(attribute.Int("allowlist.entries", len(result)))
	s.record(ctx, span, "AllowEntries", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetAllowEntry(ctx context.Context, key string) (*models.AllowEntry, error) {
	ctx, span := s.startSpan(ctx, "GetAllowEntry", attribute.String("allowlist.key", key))
	start := time.Now()
	result, err := s.inner.GetAllowEntry(ctx, key)
	s.record(ctx, span, "GetAllowEntry", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveAllowEntry(ctx context.Context, entry *models.AllowEntry) error {
	ctx, span := s.startSpan(ctx, "SaveAllowEntry", attribute.String("allowlist.key", entry.Key))
	start := time.Now()
	err := s.inner.SaveAllowEntry(ctx, entry)
	s.record(ctx, span, "SaveAllowEntry", start, err)
	return err
}

func (s *InstrumentedStorage) DeleteAllowEntry(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "DeleteAllowEntry", attribute.String("allowlist.key", key))
	start := time.Now()
	err := s.inner.DeleteAllowEntry(ctx, key)
	s.record(ctx, span, "DeleteAllowEntry", start, err)
	return err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
