package domain

import "time"

type ActionKind string

const (
	ActionNotify         ActionKind = "notify"
	ActionScheduleReview ActionKind = "schedule-review"
	ActionNone           ActionKind = "none"
)

func (k ActionKind) Valid() bool {
	switch k {
	case ActionNotify, ActionScheduleReview, ActionNone:
		return true
	}
	return false
}

// WorkflowAction is one follow-up decided by inference for a filed document.
type WorkflowAction struct {
	Kind          ActionKind `json:"kind"`
	Target        string     `json:"target,omitempty"`
	DueOffsetDays int        `json:"due_offset_days,omitempty"`
	Note          string     `json:"note,omitempty"`
}

type DispatchOutcome string

const (
	DispatchSent    DispatchOutcome = "sent"
	DispatchFailed  DispatchOutcome = "failed"
	DispatchSkipped DispatchOutcome = "skipped"
)

// DispatchRecord captures one dispatch attempt for observability and manual
// replay. Dispatch outcomes never gate pipeline completion.
type DispatchRecord struct {
	ID           string          `json:"id"`
	Action       WorkflowAction  `json:"action"`
	Outcome      DispatchOutcome `json:"outcome"`
	Error        string          `json:"error,omitempty"`
	DispatchedAt time.Time       `json:"dispatched_at"`
}
