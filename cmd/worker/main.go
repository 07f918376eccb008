package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kirillkom/document-autopilot/internal/bootstrap"
	"github.com/kirillkom/document-autopilot/internal/config"
	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.NewJSONLogger("autopilot-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		return
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:         ":" + cfg.WorkerMetricsPort,
		Handler:      app.Metrics.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.Monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("monitor stopped", "error", err)
			stop()
		}
	}()

	// No document-level deadline: each stage call already carries its own
	// timeout, and an artificial upper bound would strand a slow document
	// in a non-terminal stage until the next restart.
	workers := newDispatcher(cfg.WorkerPoolSize, func(procCtx context.Context, id domain.DocumentIdentity) {
		if rec, err := app.Ledger.Get(procCtx, id); err == nil && rec.Stage == domain.StageDiscovered {
			app.Metrics.ObserveQueueLag(time.Since(rec.DiscoveredAt))
		}

		app.Metrics.StartDocument()
		defer app.Metrics.FinishDocument()

		if err := app.Orchestrator.Process(procCtx, id); err != nil {
			if domain.IsKind(err, domain.ErrLedgerConsistency) {
				logger.Error("ledger consistency violation, stopping worker",
					"document", id.Key(), "error", err)
				stop()
				return
			}
			logger.Error("document processing interrupted",
				"document", id.Key(), "error", err)
		}
	})

	if err := app.Queue.SubscribeDiscovered(ctx, workers.handle); err != nil {
		logger.Error("subscription failed", "error", err)
		stop()
	}

	workers.wait()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}
	logger.Info("worker stopped")
}
