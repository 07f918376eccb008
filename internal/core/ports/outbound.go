package ports

import (
	"context"
	"time"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// StorageGateway abstracts the document repository. Move is idempotent:
// moving an object that already sits at the destination is a no-op.
type StorageGateway interface {
	List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error)
	Get(ctx context.Context, location string) ([]byte, error)
	Put(ctx context.Context, location string, data []byte, contentType string) error
	Move(ctx context.Context, location, destination string) error
	Tag(ctx context.Context, location, key, value string) error
}

// ContentExtractor turns a raw document blob into normalized text.
type ContentExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (domain.ExtractedContent, error)
}

// Inference is the opaque model capability consumed by the pipeline.
// Malformed responses surface as ErrInference, never as a crash.
type Inference interface {
	Summarize(ctx context.Context, text string) (string, error)
	Classify(ctx context.Context, text, summary string, categories []domain.Category) (domain.Classification, error)
	DecideWorkflow(ctx context.Context, summary, category string) ([]domain.WorkflowAction, error)
}

// ProcessingLedger owns ProcessingRecord lifecycle. All mutations are keyed
// by document identity; Claim is the atomic check-and-set that keeps two
// workers off the same identity.
type ProcessingLedger interface {
	// CreateDiscovered conditionally inserts a record in the discovered
	// stage. Returns false when the identity is already known.
	CreateDiscovered(ctx context.Context, info domain.ObjectInfo) (bool, error)
	Get(ctx context.Context, id domain.DocumentIdentity) (*domain.ProcessingRecord, error)

	// Claim marks the identity in-progress for the given stage. Returns
	// false when another worker holds a live claim or the record is no
	// longer in that stage.
	Claim(ctx context.Context, id domain.DocumentIdentity, stage domain.Stage) (bool, error)
	// Release drops the claim without advancing, leaving the record
	// resumable. Used on shutdown.
	Release(ctx context.Context, id domain.DocumentIdentity) error
	// Advance moves the record from one stage to the next and releases the
	// claim. A mismatch between the expected and stored stage is an
	// ErrLedgerConsistency.
	Advance(ctx context.Context, id domain.DocumentIdentity, from, to domain.Stage) error
	RecordAttempt(ctx context.Context, id domain.DocumentIdentity, stage domain.Stage, attempt int, lastError string) error
	DeadLetter(ctx context.Context, id domain.DocumentIdentity, stage domain.Stage, lastError string) error

	SaveExtraction(ctx context.Context, id domain.DocumentIdentity, textRef string, pageCount int, language string) error
	SaveSummary(ctx context.Context, id domain.DocumentIdentity, summary string) error
	SaveClassification(ctx context.Context, id domain.DocumentIdentity, category string, confidence float64, reviewRequired bool) error
	SaveFiledLocation(ctx context.Context, id domain.DocumentIdentity, filedLocation string) error
	SaveDispatches(ctx context.Context, id domain.DocumentIdentity, dispatches []domain.DispatchRecord) error

	// ListResumable returns identities of all non-terminal records, scanned
	// at startup so interrupted documents resume from their last stage.
	ListResumable(ctx context.Context) ([]domain.DocumentIdentity, error)
	ListRecords(ctx context.Context, stage domain.Stage, limit int) ([]domain.ProcessingRecord, error)
	// Requeue resets a dead-lettered record back to its failed stage with a
	// fresh attempt budget. Returns the stage the record resumes from.
	Requeue(ctx context.Context, id domain.DocumentIdentity) (domain.Stage, error)
}

// CategoryDirectory owns the flat category taxonomy.
type CategoryDirectory interface {
	List(ctx context.Context) ([]domain.Category, error)
	// Ensure conditionally inserts a category keyed by normalized name.
	// Returns the stored category and whether this call created it; a lost
	// race returns the winner's row with created=false.
	Ensure(ctx context.Context, cat domain.Category) (domain.Category, bool, error)
}

// Notifier sends a fire-and-forget notification.
type Notifier interface {
	Send(ctx context.Context, target, subject, body string) error
}

// ReviewScheduler books a future review reminder.
type ReviewScheduler interface {
	Schedule(ctx context.Context, target string, when time.Time, payload string) error
}

// DiscoveryQueue carries newly discovered identities from the monitor loop
// to the worker pool. Duplicate deliveries are expected and harmless.
type DiscoveryQueue interface {
	PublishDiscovered(ctx context.Context, id domain.DocumentIdentity) error
	SubscribeDiscovered(ctx context.Context, handler func(context.Context, domain.DocumentIdentity) error) error
}
