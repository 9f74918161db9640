package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ratekeeper/internal/models"
	"ratekeeper/internal/ratelimit"
	"ratekeeper/internal/version"

	promclient "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newMetricsProvider(t *testing.T) (*Provider, *promclient.Registry) {
	t.Helper()
	reg := promclient.NewRegistry()
	provider, err := Setup(
		models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090},
		models.ObservabilityConfig{ServiceName: "test"},
		version.Info{},
		WithRegistry(reg),
		WithoutGlobals(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return provider, reg
}

// findFamily matches on prefix because the exporter appends unit and type
// suffixes to instrument names.
func findFamily(t *testing.T, reg *promclient.Registry, prefix string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), prefix) {
			return f
		}
	}
	t.Fatalf("metric family %s not found", prefix)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func counterByOutcome(f *dto.MetricFamily) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range f.GetMetric() {
		out[labelValue(m, "outcome")] += m.GetCounter().GetValue()
	}
	return out
}

func TestDecisionObserver_CountsOutcomes(t *testing.T) {
	provider, reg := newMetricsProvider(t)
	observer, err := NewDecisionObserver(provider.MeterProvider())
	require.NoError(t, err)

	cfg, err := ratelimit.DefaultBuilder().
		PerSecond(1).
		BurstSize(1).
		Clock(ratelimit.NewManualClock(time.Unix(1_700_000_000, 0))).
		Observer(observer).
		Build()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.5:1000"
		cfg.Check(ratelimit.HTTPRequest(req))
	}

	family := findFamily(t, reg, "ratelimit_decisions")
	counts := counterByOutcome(family)
	assert.Equal(t, float64(1), counts["admit"])
	assert.Equal(t, float64(2), counts["reject"])
	assert.Equal(t, "peer IP", labelValue(family.GetMetric()[0], "extractor"))

	retry := findFamily(t, reg, "ratelimit_retry_after")
	require.Len(t, retry.GetMetric(), 1)
	assert.Equal(t, uint64(2), retry.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestDecisionObserver_AddsSpanEvent(t *testing.T) {
	provider, _ := newMetricsProvider(t)
	observer, err := NewDecisionObserver(provider.MeterProvider())
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := tp.Tracer("test").Start(context.Background(), "request")

	observer.ObserveVerdict(ctx, "peer IP", ratelimit.Verdict{
		Outcome:  ratelimit.OutcomeAdmit,
		Decision: ratelimit.Decision{Allowed: true, Limit: 8, Remaining: 7},
	})
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "ratelimit.decision", events[0].Name)
	assert.Contains(t, events[0].Attributes, attribute.String("outcome", "admit"))
	assert.Contains(t, events[0].Attributes, attribute.Int64("ratelimit.remaining", 7))
}

func TestRegisterTrackedKeys(t *testing.T) {
	provider, reg := newMetricsProvider(t)

	tracked := 0
	registration, err := RegisterTrackedKeys(provider.MeterProvider(), func() int { return tracked })
	require.NoError(t, err)
	defer registration.Unregister()

	tracked = 42
	family := findFamily(t, reg, "ratelimit_tracked_keys")
	require.Len(t, family.GetMetric(), 1)
	assert.Equal(t, float64(42), family.GetMetric()[0].GetGauge().GetValue())
}

func TestMetricsServer_ServesRegistry(t *testing.T) {
	provider, _ := newMetricsProvider(t)
	observer, err := NewDecisionObserver(provider.MeterProvider())
	require.NoError(t, err)
	observer.ObserveVerdict(context.Background(), "global", ratelimit.Verdict{Outcome: ratelimit.OutcomeAdmit})

	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics", Port: 9090}, provider)

	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ratelimit_decisions")
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	provider, _ := newMetricsProvider(t)
	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics", Port: 0}, provider)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ms.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, ms.Shutdown(ctx))
	assert.Equal(t, http.ErrServerClosed, <-errCh)
}

func TestNewMetricsServer_NilProvider(t *testing.T) {
	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics", Port: 9090}, nil)

	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
