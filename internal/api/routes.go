package api

import (
	"encoding/json"
	"net/http"

	"ratekeeper/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type routeOptions struct {
	serviceName string
	rateLimiter mux.MiddlewareFunc
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeOptions)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(o *routeOptions) {
		o.serviceName = serviceName
	}
}

// WithRateLimiter guards the rate limited routes with middleware. The admin
// and health routes are never limited.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(o *routeOptions) {
		o.rateLimiter = middleware
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	// Route variables stay percent-encoded so that allow-list keys may carry
	// an escaped "/".
	router := mux.NewRouter().UseEncodedPath()

	if o.serviceName != "" {
		router.Use(otelmux.Middleware(o.serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" && r.URL.Path != "/metrics"
			}),
		))
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	limited := api.PathPrefix("").Subrouter()
	if o.rateLimiter != nil {
		limited.Use(o.rateLimiter)
	}
	limited.HandleFunc("/hello", handlers.Hello).Methods("GET")
	limited.HandleFunc("/ratelimit/status", handlers.RateLimitStatus).Methods("GET")

	admin := api.PathPrefix("/allowlist").Subrouter()
	admin.Use(adminTokenMiddleware(config.AllowList.AdminToken))
	admin.HandleFunc("", handlers.ListAllowEntries).Methods("GET")
	admin.HandleFunc("", handlers.AddAllowEntry).Methods("POST")
	admin.HandleFunc("/{key:.+}", handlers.DeleteAllowEntry).Methods("DELETE")

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	errorResp := models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest)
	json.NewEncoder(w).Encode(errorResp)
}
