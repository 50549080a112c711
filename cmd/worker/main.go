package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/shipment-tariff-agent/internal/bootstrap"
	"github.com/kirillkom/shipment-tariff-agent/internal/config"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/ports"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/usecase"
	"github.com/kirillkom/shipment-tariff-agent/internal/observability/logging"
	"github.com/kirillkom/shipment-tariff-agent/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger(service, "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)
	enrichMetrics := metrics.NewEnrichmentMetrics(service, workerMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg, logger, enrichMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	queue, err := app.NewQueue()
	if err != nil {
		logger.Error("queue_connect_failed", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	handle := usecase.EnrichmentMessageHandler(app.EnrichUC)
	if err := serve(ctx, queue, handle, workerMetrics, cfg.EnrichJobTimeout); err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func serve(
	ctx context.Context,
	queue ports.EnrichmentQueue,
	handle func(context.Context, []byte) ([]byte, error),
	workerMetrics *metrics.WorkerMetrics,
	timeout time.Duration,
) error {
	return queue.SubscribeEnrichmentRequests(ctx, func(handlerCtx context.Context, payload []byte) ([]byte, error) {
		processCtx, cancel := context.WithTimeout(handlerCtx, timeout)
		defer cancel()

		workerMetrics.StartRequest()
		workerMetrics.ObservePayloadSize(service, len(payload))
		start := time.Now()
		out, err := handle(processCtx, payload)
		workerMetrics.FinishRequest(service, time.Since(start), err)
		return out, err
	})
}
