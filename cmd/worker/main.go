package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/evidence-vault/internal/bootstrap"
	"github.com/kirillkom/evidence-vault/internal/config"
	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/observability/logging"
	"github.com/kirillkom/evidence-vault/internal/observability/metrics"
)

const service = "worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{RequireQueue: true})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	timeout := app.ReconcileTimeout()
	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "concurrency", cfg.WorkerConcurrency, "reconcile_timeout", timeout.String())
	err = app.Queue.SubscribeEvidenceUploaded(ctx, func(handlerCtx context.Context, event domain.UploadedEvent) error {
		started := time.Now()
		workerMetrics.ObserveQueueLag(service, started.Sub(event.OccurredAt))
		workerMetrics.StartReconcile()

		reconcileCtx, cancel := context.WithTimeout(handlerCtx, timeout)
		defer cancel()
		result, settled, err := app.ReconcileUC.ReconcileUntilSettled(reconcileCtx, event.VaultID, event.EvidenceID)
		workerMetrics.FinishReconcile(service, time.Since(started), settled, err)

		switch {
		case err != nil:
			return err
		case !settled:
			logger.Warn("evidence_reconcile_deferred",
				"vault_id", event.VaultID,
				"evidence_id", event.EvidenceID,
			)
		default:
			logger.Info("evidence_reconciled",
				"vault_id", event.VaultID,
				"evidence_id", event.EvidenceID,
				"category", result.Evidence.Category,
				"source", result.Source,
				"duration_ms", time.Since(started).Milliseconds(),
			)
		}
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}
