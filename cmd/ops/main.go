package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/document-autopilot/internal/adapters/http"
	"github.com/kirillkom/document-autopilot/internal/bootstrap"
	"github.com/kirillkom/document-autopilot/internal/config"
	"github.com/kirillkom/document-autopilot/internal/observability/logging"
	"github.com/kirillkom/document-autopilot/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.NewJSONLogger("autopilot-ops", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewOps(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		return
	}
	defer app.Close()

	httpMetrics := metrics.NewOpsHTTPMetrics("autopilot-ops")
	router := httpadapter.NewRouter(app.Ledger, app.Directory, app.Queue)

	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", httpMetrics.Middleware(router.Handler()))

	server := &http.Server{
		Addr:         ":" + cfg.OpsPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("ops api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops api failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops api shutdown failed", "error", err)
	}
	logger.Info("ops api stopped")
}
