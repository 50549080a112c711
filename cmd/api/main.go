package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/shipment-tariff-agent/internal/adapters/http"
	"github.com/kirillkom/shipment-tariff-agent/internal/bootstrap"
	"github.com/kirillkom/shipment-tariff-agent/internal/config"
	"github.com/kirillkom/shipment-tariff-agent/internal/jobs"
	"github.com/kirillkom/shipment-tariff-agent/internal/observability/logging"
	"github.com/kirillkom/shipment-tariff-agent/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("api", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	enrichMetrics := metrics.NewEnrichmentMetrics("api", httpMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg, logger, enrichMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	registry := jobs.NewRegistry(cfg.EnrichJobTTL)
	go sweepJobs(ctx, registry, cfg.EnrichJobTTL)

	router := httpadapter.NewRouter(cfg, app.GroupUC, app.EnrichUC, registry, httpMetrics).WithLogger(logger).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}

func sweepJobs(ctx context.Context, registry *jobs.Registry, ttl time.Duration) {
	interval := ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.Sweep()
		}
	}
}
