package domain

import "time"

// DocumentIdentity uniquely identifies a processable unit: the same object
// key re-uploaded with different content yields a new identity.
type DocumentIdentity struct {
	Location    string `json:"location"`
	Fingerprint string `json:"fingerprint"`
}

func (id DocumentIdentity) Key() string {
	return id.Location + "@" + id.Fingerprint
}

// ObjectInfo describes an object as reported by the storage gateway listing.
type ObjectInfo struct {
	Location    string
	Fingerprint string
	Size        int64
	ContentType string
	Modified    time.Time
}

type Stage string

const (
	StageDiscovered   Stage = "discovered"
	StageExtracting   Stage = "extracting"
	StageSummarizing  Stage = "summarizing"
	StageClassifying  Stage = "classifying"
	StageOrganizing   Stage = "organizing"
	StageDispatching  Stage = "dispatching_workflow"
	StageCompleted    Stage = "completed"
	StageDeadLettered Stage = "dead_lettered"
)

// pipelineOrder is the strict per-document stage sequence.
var pipelineOrder = []Stage{
	StageDiscovered,
	StageExtracting,
	StageSummarizing,
	StageClassifying,
	StageOrganizing,
	StageDispatching,
	StageCompleted,
}

func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageDeadLettered
}

// Next returns the stage that follows s in the pipeline, or s itself when s
// is terminal or unknown.
func (s Stage) Next() Stage {
	for i, stage := range pipelineOrder {
		if stage == s && i+1 < len(pipelineOrder) {
			return pipelineOrder[i+1]
		}
	}
	return s
}

// ProcessingRecord is the durable per-identity state used for idempotency
// and crash recovery. The ledger owns its lifecycle; at most one record
// exists per identity.
type ProcessingRecord struct {
	Identity    DocumentIdentity `json:"identity"`
	Stage       Stage            `json:"stage"`
	FailedStage Stage            `json:"failed_stage,omitempty"`
	Attempts    map[Stage]int    `json:"attempts,omitempty"`
	LastError   string           `json:"last_error,omitempty"`

	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`

	TextRef   string `json:"text_ref,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
	Language  string `json:"language,omitempty"`

	Summary        string  `json:"summary,omitempty"`
	Category       string  `json:"category,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	ReviewRequired bool    `json:"review_required,omitempty"`
	FiledLocation  string  `json:"filed_location,omitempty"`

	Dispatches []DispatchRecord `json:"dispatches,omitempty"`

	Claimed      bool                `json:"claimed,omitempty"`
	ClaimedAt    time.Time           `json:"claimed_at,omitempty"`
	StageTimes   map[Stage]time.Time `json:"stage_times,omitempty"`
	DiscoveredAt time.Time           `json:"discovered_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (r *ProcessingRecord) AttemptCount(stage Stage) int {
	if r.Attempts == nil {
		return 0
	}
	return r.Attempts[stage]
}

// ExtractedContent is the normalized output of the content extractor.
type ExtractedContent struct {
	Text             string
	PageCount        int
	DetectedLanguage string
}

// Classification is the structured output of the classify inference task.
type Classification struct {
	CategoryName    string  `json:"category"`
	Confidence      float64 `json:"confidence"`
	NovelSuggestion bool    `json:"novel_category"`
	Reasoning       string  `json:"reasoning"`
	SchemaVersion   int     `json:"schema_version"`
}
