package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/document-autopilot/internal/config"
	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/core/ports"
	"github.com/kirillkom/document-autopilot/internal/core/usecase"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/extractor"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/ledger/postgres"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/llm/ollama"
	natsqueue "github.com/kirillkom/document-autopilot/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/notify/msgraph"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/resilience"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/storage/s3"
	"github.com/kirillkom/document-autopilot/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Ledger    ports.ProcessingLedger
	Directory ports.CategoryDirectory
	Storage   ports.StorageGateway
	Queue     *natsqueue.Queue

	Monitor      *usecase.Monitor
	Orchestrator *usecase.Orchestrator

	Metrics *metrics.PipelineMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ledger := postgres.NewLedger(db, time.Duration(cfg.ClaimTTLSec)*time.Second)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	directory := postgres.NewCategoryDirectory(db)
	if err := directory.Seed(ctx); err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}

	storage, err := newStorageGateway(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage gateway: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init discovery queue: %w", err)
	}

	pipelineMetrics := metrics.NewPipelineMetrics("autopilot-worker")

	inference := ollama.New(cfg.OllamaURL, cfg.OllamaModel, ollama.Options{
		Timeout:            time.Duration(cfg.StageTimeoutSec) * time.Second,
		RequestsPerMinute:  cfg.OllamaRPM,
		ResilienceExecutor: executor,
	})

	instrumentedDirectory := &countingDirectory{inner: directory, metrics: pipelineMetrics}
	classifier := usecase.NewClassifier(inference, instrumentedDirectory, usecase.ClassifierConfig{
		NoveltyThreshold:       cfg.NoveltyThreshold,
		LowConfidenceThreshold: cfg.LowConfidenceThreshold,
	}, logger)
	organizer := usecase.NewOrganizer(storage)

	graph := msgraph.New(cfg.GraphTenantID, cfg.GraphClientID, cfg.GraphClientSecret, cfg.GraphSender, msgraph.Options{})
	workflow := usecase.NewWorkflowManager(inference, graph, graph, cfg.DefaultRecipient, logger, pipelineMetrics)

	orchestrator := usecase.NewOrchestrator(
		ledger, storage, extractor.NewComposite(), inference,
		classifier, organizer, workflow,
		usecase.OrchestratorConfig{
			MaxAttempts:  cfg.StageMaxAttempts,
			BackoffBase:  time.Duration(cfg.BackoffBaseMillis) * time.Millisecond,
			BackoffCap:   time.Duration(cfg.BackoffCapSec) * time.Second,
			StageTimeout: time.Duration(cfg.StageTimeoutSec) * time.Second,
		},
		logger, pipelineMetrics,
	)

	monitor := usecase.NewMonitor(storage, ledger, queue, usecase.MonitorConfig{
		Prefix:   cfg.IntakePrefix,
		Interval: time.Duration(cfg.PollIntervalSec) * time.Second,
	}, logger, pipelineMetrics)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Ledger:       ledger,
		Directory:    directory,
		Storage:      storage,
		Queue:        queue,
		Monitor:      monitor,
		Orchestrator: orchestrator,
		Metrics:      pipelineMetrics,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// NewOps wires only what the read-only operations API needs.
func NewOps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ledger := postgres.NewLedger(db, time.Duration(cfg.ClaimTTLSec)*time.Second)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	directory := postgres.NewCategoryDirectory(db)

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("init discovery queue: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Ledger:    ledger,
		Directory: directory,
		Queue:     queue,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newStorageGateway(ctx context.Context, cfg config.Config) (ports.StorageGateway, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3.New(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	case "localfs", "":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// countingDirectory forwards to the real directory and counts creations.
type countingDirectory struct {
	inner   ports.CategoryDirectory
	metrics *metrics.PipelineMetrics
}

func (d *countingDirectory) List(ctx context.Context) ([]domain.Category, error) {
	return d.inner.List(ctx)
}

func (d *countingDirectory) Ensure(ctx context.Context, cat domain.Category) (domain.Category, bool, error) {
	stored, created, err := d.inner.Ensure(ctx, cat)
	if err == nil && created {
		d.metrics.CategoryCreated()
	}
	return stored, created, err
}
