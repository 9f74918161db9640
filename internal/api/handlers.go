package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ratekeeper/internal/allowlist"
	"ratekeeper/internal/models"
	"ratekeeper/internal/ratelimit"
	"ratekeeper/internal/version"
)

// Pinger is the part of the storage layer the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeyCounter reports how many keys the limiter is tracking.
type KeyCounter interface {
	Len() int
}

// Handlers contains HTTP handlers for the ratekeeper API
type Handlers struct {
	allowList allowlist.ServiceInterface
	storage   Pinger
	limiter   KeyCounter
	started   time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithStorage enables the storage component of the health check.
func WithStorage(p Pinger) HandlerOption {
	return func(h *Handlers) {
		h.storage = p
	}
}

// WithLimiterStats reports the tracked key count in the health check.
func WithLimiterStats(c KeyCounter) HandlerOption {
	return func(h *Handlers) {
		h.limiter = c
	}
}

// NewHandlers creates a new handlers instance. allowList may be nil when the
// allow-list is disabled.
func NewHandlers(allowList allowlist.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		allowList: allowList,
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hello is the rate limited sample endpoint.
// GET /api/v1/hello
func (h *Handlers) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, &models.HelloResponse{
		Message:   "Hello, world",
		Timestamp: time.Now().UTC(),
	})
}

// RateLimitStatus reports the decision a permissive limiter attached to
// this request.
// GET /api/v1/ratelimit/status
func (h *Handlers) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	result, err := ratelimit.TakeResult(r.Context())
	switch {
	case errors.Is(err, ratelimit.ErrNoRateLimiter):
		slog.ErrorContext(r.Context(), "Rate limit status requested without a permissive limiter", "path", r.URL.Path)
		writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeNoRateLimiter, err.Error())
		return
	case err != nil:
		writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, err.Error())
		return
	}

	writeJSONResponse(w, http.StatusOK, &models.RateLimitStatusResponse{
		Kind:       result.Kind.String(),
		Limit:      result.Limit,
		Remaining:  result.Remaining,
		RetryAfter: result.RetryAfter,
		Message:    result.Message,
	})
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = version.GetInfo().Version
	response.Uptime = time.Since(h.started).Round(time.Second).String()

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	status := http.StatusOK
	if h.storage != nil {
		if err := h.storage.Ping(r.Context()); err != nil {
			response.Status = models.StatusUnhealthy
			response.AddComponent("storage", models.StatusUnhealthy, err.Error())
			status = http.StatusServiceUnavailable
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}

	if h.limiter != nil {
		response.AddMetric("tracked_keys", h.limiter.Len())
	}
	response.AddMetric("allow_list_enabled", h.allowList != nil)

	writeJSONResponse(w, status, response)
}
