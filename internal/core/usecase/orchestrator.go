package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/core/ports"
)

type OrchestratorConfig struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	StageTimeout time.Duration
}

func (c OrchestratorConfig) normalize() OrchestratorConfig {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = 500 * time.Millisecond
	}
	if out.BackoffCap <= 0 {
		out.BackoffCap = 30 * time.Second
	}
	if out.BackoffCap < out.BackoffBase {
		out.BackoffCap = out.BackoffBase
	}
	if out.StageTimeout <= 0 {
		out.StageTimeout = 2 * time.Minute
	}
	return out
}

// StageObserver receives stage outcomes for metrics. Implementations must be
// safe for concurrent use.
type StageObserver interface {
	StageDone(stage domain.Stage, duration time.Duration, err error)
	StageRetried(stage domain.Stage)
	DeadLettered(stage domain.Stage)
}

type nopObserver struct{}

func (nopObserver) StageDone(domain.Stage, time.Duration, error) {}
func (nopObserver) StageRetried(domain.Stage)                    {}
func (nopObserver) DeadLettered(domain.Stage)                    {}

// Orchestrator drives a document through the persisted stage machine,
// consulting the ledger before and after every stage. It is safe to invoke
// for the same identity from multiple workers: the ledger claim guarantees
// at most one of them makes progress.
type Orchestrator struct {
	ledger     ports.ProcessingLedger
	storage    ports.StorageGateway
	extractor  ports.ContentExtractor
	inference  ports.Inference
	classifier *Classifier
	organizer  *Organizer
	workflow   *WorkflowManager

	cfg      OrchestratorConfig
	logger   *slog.Logger
	observer StageObserver
}

func NewOrchestrator(
	ledger ports.ProcessingLedger,
	storage ports.StorageGateway,
	extractor ports.ContentExtractor,
	inference ports.Inference,
	classifier *Classifier,
	organizer *Organizer,
	workflow *WorkflowManager,
	cfg OrchestratorConfig,
	logger *slog.Logger,
	observer StageObserver,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		ledger:     ledger,
		storage:    storage,
		extractor:  extractor,
		inference:  inference,
		classifier: classifier,
		organizer:  organizer,
		workflow:   workflow,
		cfg:        cfg.normalize(),
		logger:     logger,
		observer:   observer,
	}
}

// Process runs the document identified by id from its last recorded stage to
// a terminal state. Dead-lettering is a normal outcome, not an error; the
// returned error means infrastructure trouble (ledger unreachable, shutdown)
// and leaves the record resumable.
func (o *Orchestrator) Process(ctx context.Context, id domain.DocumentIdentity) error {
	rec, err := o.ledger.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load processing record: %w", err)
	}

	for !rec.Stage.Terminal() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if rec.Stage == domain.StageDiscovered {
			// Discovery has no component to invoke; enter the pipeline.
			if err := o.ledger.Advance(ctx, id, domain.StageDiscovered, domain.StageExtracting); err != nil {
				return fmt.Errorf("enter pipeline: %w", err)
			}
			rec.Stage = domain.StageExtracting
			continue
		}

		proceed, err := o.runStage(ctx, rec)
		if err != nil {
			return err
		}
		if !proceed {
			// Another worker holds the claim, or the record dead-lettered.
			return nil
		}

		rec, err = o.ledger.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("reload processing record: %w", err)
		}
	}
	return nil
}

// runStage claims, executes and settles a single stage. It returns
// (true, nil) when the record advanced and processing should continue.
func (o *Orchestrator) runStage(ctx context.Context, rec *domain.ProcessingRecord) (bool, error) {
	stage := rec.Stage
	id := rec.Identity

	claimed, err := o.ledger.Claim(ctx, id, stage)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", stage, err)
	}
	if !claimed {
		o.logger.Debug("stage already claimed", "document", id.Key(), "stage", stage)
		return false, nil
	}

	attempt := rec.AttemptCount(stage)
	for {
		attempt++
		start := time.Now()
		stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		execErr := o.execute(stageCtx, rec)
		cancel()
		o.observer.StageDone(stage, time.Since(start), execErr)

		if execErr == nil {
			if err := o.ledger.Advance(ctx, id, stage, stage.Next()); err != nil {
				return false, fmt.Errorf("advance from %s: %w", stage, err)
			}
			return true, nil
		}

		if domain.IsKind(execErr, domain.ErrLedgerConsistency) {
			return false, execErr
		}
		if err := ctx.Err(); err != nil {
			o.releaseOnShutdown(id)
			return false, err
		}

		if err := o.ledger.RecordAttempt(ctx, id, stage, attempt, execErr.Error()); err != nil {
			return false, fmt.Errorf("record attempt: %w", err)
		}

		exhausted := attempt >= o.cfg.MaxAttempts
		if !domain.Retryable(execErr) || exhausted {
			if exhausted && o.degrade(ctx, rec, execErr) {
				if err := o.ledger.Advance(ctx, id, stage, stage.Next()); err != nil {
					return false, fmt.Errorf("advance degraded %s: %w", stage, err)
				}
				return true, nil
			}
			o.logger.Error("stage dead-lettered",
				"document", id.Key(), "stage", stage, "attempts", attempt, "error", execErr)
			if err := o.ledger.DeadLetter(ctx, id, stage, execErr.Error()); err != nil {
				return false, fmt.Errorf("dead-letter: %w", err)
			}
			o.observer.DeadLettered(stage)
			return false, nil
		}

		o.observer.StageRetried(stage)
		wait := o.backoff(attempt)
		o.logger.Warn("stage retry",
			"document", id.Key(), "stage", stage,
			"attempt", attempt, "max_attempts", o.cfg.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0, "error", execErr)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.releaseOnShutdown(id)
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) execute(ctx context.Context, rec *domain.ProcessingRecord) error {
	switch rec.Stage {
	case domain.StageExtracting:
		return o.runExtract(ctx, rec)
	case domain.StageSummarizing:
		return o.runSummarize(ctx, rec)
	case domain.StageClassifying:
		return o.runClassify(ctx, rec)
	case domain.StageOrganizing:
		return o.runOrganize(ctx, rec)
	case domain.StageDispatching:
		return o.runDispatch(ctx, rec)
	default:
		return domain.WrapError(domain.ErrLedgerConsistency, "execute stage",
			fmt.Errorf("unexpected stage %q", rec.Stage))
	}
}

// textRefFor derives the storage key where extracted text is parked between
// stages, so re-entries after a crash reread instead of re-extracting.
func textRefFor(id domain.DocumentIdentity) string {
	return ".autopilot/text/" + id.Fingerprint + ".txt"
}

func (o *Orchestrator) runExtract(ctx context.Context, rec *domain.ProcessingRecord) error {
	raw, err := o.storage.Get(ctx, rec.Identity.Location)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	content, err := o.extractor.Extract(ctx, raw, rec.ContentType)
	if err != nil {
		return fmt.Errorf("extract content: %w", err)
	}

	ref := textRefFor(rec.Identity)
	if err := o.storage.Put(ctx, ref, []byte(content.Text), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("store extracted text: %w", err)
	}
	if err := o.ledger.SaveExtraction(ctx, rec.Identity, ref, content.PageCount, content.DetectedLanguage); err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	rec.TextRef = ref
	return nil
}

func (o *Orchestrator) loadText(ctx context.Context, rec *domain.ProcessingRecord) (string, error) {
	ref := rec.TextRef
	if ref == "" {
		ref = textRefFor(rec.Identity)
	}
	raw, err := o.storage.Get(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("load extracted text: %w", err)
	}
	return string(raw), nil
}

func (o *Orchestrator) runSummarize(ctx context.Context, rec *domain.ProcessingRecord) error {
	text, err := o.loadText(ctx, rec)
	if err != nil {
		return err
	}
	summary, err := o.inference.Summarize(ctx, text)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if err := o.ledger.SaveSummary(ctx, rec.Identity, summary); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	rec.Summary = summary
	return nil
}

func (o *Orchestrator) runClassify(ctx context.Context, rec *domain.ProcessingRecord) error {
	text, err := o.loadText(ctx, rec)
	if err != nil {
		return err
	}
	decision, err := o.classifier.Classify(ctx, text, rec.Summary)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	if err := o.ledger.SaveClassification(ctx, rec.Identity, decision.Category, decision.Confidence, decision.ReviewRequired); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	rec.Category = decision.Category
	rec.Confidence = decision.Confidence
	rec.ReviewRequired = decision.ReviewRequired
	return nil
}

func (o *Orchestrator) runOrganize(ctx context.Context, rec *domain.ProcessingRecord) error {
	filed, err := o.organizer.File(ctx, rec)
	if err != nil {
		return fmt.Errorf("organize: %w", err)
	}
	if err := o.ledger.SaveFiledLocation(ctx, rec.Identity, filed); err != nil {
		return fmt.Errorf("save filed location: %w", err)
	}
	rec.FiledLocation = filed
	return nil
}

func (o *Orchestrator) runDispatch(ctx context.Context, rec *domain.ProcessingRecord) error {
	actions, err := o.workflow.Decide(ctx, rec)
	if err != nil {
		return fmt.Errorf("decide workflow: %w", err)
	}
	// Dispatch is best-effort: outcomes are recorded, failures never block
	// completion.
	dispatches := o.workflow.Dispatch(ctx, rec, actions)
	if err := o.ledger.SaveDispatches(ctx, rec.Identity, dispatches); err != nil {
		return fmt.Errorf("save dispatches: %w", err)
	}
	rec.Dispatches = dispatches
	return nil
}

// degrade applies the fallback for inference stages whose attempt budget is
// exhausted, so a flaky model degrades the result instead of halting the
// document.
func (o *Orchestrator) degrade(ctx context.Context, rec *domain.ProcessingRecord, cause error) bool {
	if !domain.IsKind(cause, domain.ErrInference) {
		return false
	}
	id := rec.Identity
	switch rec.Stage {
	case domain.StageSummarizing:
		if err := o.ledger.SaveSummary(ctx, id, ""); err != nil {
			return false
		}
		rec.Summary = ""
	case domain.StageClassifying:
		if err := o.ledger.SaveClassification(ctx, id, domain.UnclassifiedCategory, 0, true); err != nil {
			return false
		}
		rec.Category = domain.UnclassifiedCategory
		rec.Confidence = 0
		rec.ReviewRequired = true
	case domain.StageDispatching:
		if err := o.ledger.SaveDispatches(ctx, id, nil); err != nil {
			return false
		}
		rec.Dispatches = nil
	default:
		return false
	}
	o.logger.Warn("stage degraded after exhausted inference attempts",
		"document", id.Key(), "stage", rec.Stage, "error", cause)
	return true
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	wait := o.cfg.BackoffBase << uint(attempt-1)
	if wait > o.cfg.BackoffCap || wait <= 0 {
		wait = o.cfg.BackoffCap
	}
	// Jitter in [0.5, 1.5) spreads concurrent retries.
	return time.Duration(float64(wait) * (0.5 + rand.Float64()))
}

func (o *Orchestrator) releaseOnShutdown(id domain.DocumentIdentity) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.ledger.Release(releaseCtx, id); err != nil {
		o.logger.Error("release claim on shutdown", "document", id.Key(), "error", err)
	}
}
