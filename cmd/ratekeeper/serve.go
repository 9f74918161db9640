package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ratekeeper/internal/api"
	"ratekeeper/internal/config"
	"ratekeeper/internal/logger"
	"ratekeeper/internal/observability"
	"ratekeeper/internal/ratelimit"
	"ratekeeper/internal/storage"
	"ratekeeper/internal/version"
)

func serve(ctx context.Context, configFile string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ver := version.GetInfo()

	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	storageInstance, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer storageInstance.Close()

	var activeStorage storage.Storage = storageInstance
	if cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			return fmt.Errorf("instrument storage: %w", err)
		}
		activeStorage = instrumented
	}

	handlerOpts := []api.HandlerOption{api.WithStorage(activeStorage)}
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	var janitor *ratelimit.Janitor
	var limits *limiterSetup
	if cfg.RateLimit.Enabled {
		var observer ratelimit.Observer
		if cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled {
			decisionObserver, err := observability.NewDecisionObserver(otelProvider.MeterProvider())
			if err != nil {
				return fmt.Errorf("create decision observer: %w", err)
			}
			observer = decisionObserver
		}

		limits, err = buildLimiter(ctx, cfg, activeStorage, log, observer)
		if err != nil {
			return fmt.Errorf("configure rate limiter: %w", err)
		}

		if cfg.Metrics.Enabled {
			registration, err := observability.RegisterTrackedKeys(otelProvider.MeterProvider(), limits.limiter.Len)
			if err != nil {
				return fmt.Errorf("register limiter metrics: %w", err)
			}
			defer registration.Unregister()
		}

		routeOpts = append(routeOpts, api.WithRateLimiter(limits.middleware))
		handlerOpts = append(handlerOpts, api.WithLimiterStats(limits.limiter))

		janitor = ratelimit.NewJanitor(limits.limiter, cfg.RateLimit.SweepInterval, logger.Component(log, "janitor"))
		janitor.Start()
		defer janitor.Stop()

		if limits.reload != nil {
			go limits.reload(ctx)
		}
	} else {
		slog.Warn("Rate limiting is disabled")
	}

	handlers := api.NewHandlers(limits.allowListOrNil(), handlerOpts...)
	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled)

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}
