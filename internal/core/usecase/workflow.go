package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/core/ports"
)

// DispatchObserver receives dispatch outcomes for metrics.
type DispatchObserver interface {
	Dispatched(kind domain.ActionKind, outcome domain.DispatchOutcome)
}

type nopDispatchObserver struct{}

func (nopDispatchObserver) Dispatched(domain.ActionKind, domain.DispatchOutcome) {}

// WorkflowManager asks inference what follow-up a filed document needs and
// dispatches the actions. Dispatch is fire-and-forget: every attempt is
// recorded with its outcome, and failures never fail the pipeline run.
type WorkflowManager struct {
	inference ports.Inference
	notifier  ports.Notifier
	scheduler ports.ReviewScheduler

	defaultTarget string
	now           func() time.Time
	logger        *slog.Logger
	observer      DispatchObserver
}

func NewWorkflowManager(
	inference ports.Inference,
	notifier ports.Notifier,
	scheduler ports.ReviewScheduler,
	defaultTarget string,
	logger *slog.Logger,
	observer DispatchObserver,
) *WorkflowManager {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopDispatchObserver{}
	}
	return &WorkflowManager{
		inference:     inference,
		notifier:      notifier,
		scheduler:     scheduler,
		defaultTarget: defaultTarget,
		now:           time.Now,
		logger:        logger,
		observer:      observer,
	}
}

// Decide returns the workflow actions for a classified document. Errors are
// retryable inference failures; the orchestrator owns the attempt budget.
func (m *WorkflowManager) Decide(ctx context.Context, rec *domain.ProcessingRecord) ([]domain.WorkflowAction, error) {
	actions, err := m.inference.DecideWorkflow(ctx, rec.Summary, rec.Category)
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// Dispatch sends each action through its channel and returns one record per
// action. It never returns an error.
func (m *WorkflowManager) Dispatch(ctx context.Context, rec *domain.ProcessingRecord, actions []domain.WorkflowAction) []domain.DispatchRecord {
	records := make([]domain.DispatchRecord, 0, len(actions))
	for _, action := range actions {
		record := domain.DispatchRecord{
			ID:           uuid.NewString(),
			Action:       action,
			DispatchedAt: m.now().UTC(),
		}

		switch action.Kind {
		case domain.ActionNone:
			record.Outcome = domain.DispatchSkipped
		case domain.ActionNotify:
			record.Outcome, record.Error = m.outcome(m.sendNotification(ctx, rec, action))
		case domain.ActionScheduleReview:
			record.Outcome, record.Error = m.outcome(m.scheduleReview(ctx, rec, action))
		default:
			record.Outcome = domain.DispatchFailed
			record.Error = fmt.Sprintf("unknown action kind %q", action.Kind)
		}

		if record.Outcome == domain.DispatchFailed {
			m.logger.Warn("workflow dispatch failed",
				"document", rec.Identity.Key(), "kind", action.Kind, "error", record.Error)
		}
		m.observer.Dispatched(action.Kind, record.Outcome)
		records = append(records, record)
	}
	return records
}

func (m *WorkflowManager) outcome(err error) (domain.DispatchOutcome, string) {
	if err != nil {
		return domain.DispatchFailed, err.Error()
	}
	return domain.DispatchSent, ""
}

func (m *WorkflowManager) sendNotification(ctx context.Context, rec *domain.ProcessingRecord, action domain.WorkflowAction) error {
	target := action.Target
	if target == "" {
		target = m.defaultTarget
	}
	if target == "" {
		return domain.WrapError(domain.ErrWorkflowDispatch, "send notification",
			fmt.Errorf("no target and no default recipient configured"))
	}

	name := path.Base(rec.Identity.Location)
	subject := fmt.Sprintf("Document filed: %s (%s)", name, rec.Category)
	body := notificationBody(name, rec, action.Note)
	if err := m.notifier.Send(ctx, target, subject, body); err != nil {
		return domain.WrapError(domain.ErrWorkflowDispatch, "send notification", err)
	}
	return nil
}

func (m *WorkflowManager) scheduleReview(ctx context.Context, rec *domain.ProcessingRecord, action domain.WorkflowAction) error {
	target := action.Target
	if target == "" {
		target = m.defaultTarget
	}
	if target == "" {
		return domain.WrapError(domain.ErrWorkflowDispatch, "schedule review",
			fmt.Errorf("no target and no default recipient configured"))
	}

	days := action.DueOffsetDays
	if days <= 0 {
		days = 7
	}
	when := m.now().UTC().AddDate(0, 0, days)
	payload := fmt.Sprintf("Review %s (category %s)", rec.FiledLocation, rec.Category)
	if action.Note != "" {
		payload += ": " + action.Note
	}
	if err := m.scheduler.Schedule(ctx, target, when, payload); err != nil {
		return domain.WrapError(domain.ErrWorkflowDispatch, "schedule review", err)
	}
	return nil
}

func notificationBody(name string, rec *domain.ProcessingRecord, note string) string {
	body := fmt.Sprintf(
		"Document %s was processed and filed under %s (confidence %.2f).\n\nSummary:\n%s\n",
		name, rec.FiledLocation, rec.Confidence, rec.Summary,
	)
	if rec.ReviewRequired {
		body += "\nThis document is flagged for human review.\n"
	}
	if note != "" {
		body += "\n" + note + "\n"
	}
	return body
}
