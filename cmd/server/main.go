// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/fleettrack/internal/api"
	"github.com/tomtom215/fleettrack/internal/config"
	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
	"github.com/tomtom215/fleettrack/internal/supervisor"
	"github.com/tomtom215/fleettrack/internal/supervisor/services"
	"github.com/tomtom215/fleettrack/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	metrics.SetAppInfo(version, runtime.Version())

	logging.Info().
		Str("version", version).
		Str("backend_url", cfg.Backend.URL).
		Str("provider_url", cfg.Provider.URL).
		Str("push_transport", cfg.Provider.PushTransport).
		Dur("poll_interval", cfg.Provider.PollInterval).
		Int("max_sessions", cfg.Tracking.MaxSessions).
		Msg("Starting Fleettrack")

	broker := telemetry.NewCredentialBroker(cfg.Backend)
	provider := telemetry.NewProviderCircuitBreakerClient(
		telemetry.NewProviderClient(cfg.Provider),
		telemetry.DefaultCircuitBreakerSettings(),
	)

	transport := telemetry.NewPushTransport(cfg.Provider)
	if transport == nil {
		logging.Warn().Msg("Push channel disabled, tracking will rely on polling only")
	}

	tracker := telemetry.NewTracker(broker, provider, transport, telemetry.TrackerConfigFrom(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := api.NewHandler(tracker, provider, cfg)
	handler.SetStreamContext(ctx)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg.Server)), cfg.Security.SessionCookie)

	// No WriteTimeout: viewer streams are long-lived hijacked connections.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	tree.AddTelemetryService(services.NewReaperService(tracker, cfg.Tracking.ReapInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// errCh delivers exactly one value, when the root supervisor returns.
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}
	cancel()

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	tracker.Shutdown()
	logging.Info().Msg("Fleettrack stopped")
}
