package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

var errNoRecord = errors.New("no such record")

// ledgerFake is an in-memory ProcessingLedger honoring the same claim and
// conditional-insert semantics as the Postgres implementation.
type ledgerFake struct {
	mu      sync.Mutex
	records map[string]*domain.ProcessingRecord
}

func newLedgerFake() *ledgerFake {
	return &ledgerFake{records: make(map[string]*domain.ProcessingRecord)}
}

func (f *ledgerFake) get(id domain.DocumentIdentity) *domain.ProcessingRecord {
	return f.records[id.Key()]
}

func (f *ledgerFake) CreateDiscovered(_ context.Context, info domain.ObjectInfo) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := domain.DocumentIdentity{Location: info.Location, Fingerprint: info.Fingerprint}
	if _, ok := f.records[id.Key()]; ok {
		return false, nil
	}
	f.records[id.Key()] = &domain.ProcessingRecord{
		Identity:     id,
		Stage:        domain.StageDiscovered,
		Size:         info.Size,
		ContentType:  info.ContentType,
		Attempts:     map[domain.Stage]int{},
		StageTimes:   map[domain.Stage]time.Time{},
		DiscoveredAt: time.Now().UTC(),
	}
	return true, nil
}

func (f *ledgerFake) Get(_ context.Context, id domain.DocumentIdentity) (*domain.ProcessingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id.Key()]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get record", errNoRecord)
	}
	copyRec := *rec
	return &copyRec, nil
}

func (f *ledgerFake) Claim(_ context.Context, id domain.DocumentIdentity, stage domain.Stage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id.Key()]
	if !ok || rec.Stage != stage || rec.Claimed {
		return false, nil
	}
	rec.Claimed = true
	rec.ClaimedAt = time.Now().UTC()
	return true, nil
}

func (f *ledgerFake) Release(_ context.Context, id domain.DocumentIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id.Key()]; ok {
		rec.Claimed = false
	}
	return nil
}

func (f *ledgerFake) Advance(_ context.Context, id domain.DocumentIdentity, from, to domain.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id.Key()]
	if !ok || rec.Stage != from {
		return domain.WrapError(domain.ErrLedgerConsistency, "advance", errNoRecord)
	}
	rec.Stage = to
	rec.Claimed = false
	rec.StageTimes[to] = time.Now().UTC()
	return nil
}

func (f *ledgerFake) RecordAttempt(_ context.Context, id domain.DocumentIdentity, stage domain.Stage, attempt int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id.Key()]; ok {
		rec.Attempts[stage] = attempt
		rec.LastError = lastError
	}
	return nil
}

func (f *ledgerFake) DeadLetter(_ context.Context, id domain.DocumentIdentity, stage domain.Stage, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id.Key()]; ok {
		rec.Stage = domain.StageDeadLettered
		rec.FailedStage = stage
		rec.LastError = lastError
		rec.Claimed = false
	}
	return nil
}

func (f *ledgerFake) SaveExtraction(_ context.Context, id domain.DocumentIdentity, textRef string, pageCount int, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id.Key()]; ok {
		rec.TextRef = textRef
		rec.PageCount = pageCount
		rec.Language = language
	}
	return nil
}

func (f *ledgerFake) SaveSummary(_ context.Context, id domain.DocumentIdentity, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id.Key()]; ok {
		rec.Summary = summary
	}
	return nil
}

func (f *ledgerFake) SaveClassification(_ context.Context, id domain.DocumentIdentity, category string, confidence float64, reviewRequired bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id.Key()]; ok {
		rec.Category = category
		rec.Confidence = confidence
		rec.ReviewRequired = reviewRequired
	}
	return nil
}

func (f *ledgerFake) SaveFiledLocation(_ context.Context, id domain.DocumentIdentity, filedLocation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id.Key()]; ok {
		rec.FiledLocation = filedLocation
	}
	return nil
}

func (f *ledgerFake) SaveDispatches(_ context.Context, id domain.DocumentIdentity, dispatches []domain.DispatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id.Key()]; ok {
		rec.Dispatches = dispatches
	}
	return nil
}

func (f *ledgerFake) ListResumable(context.Context) ([]domain.DocumentIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DocumentIdentity
	for _, rec := range f.records {
		if !rec.Stage.Terminal() {
			out = append(out, rec.Identity)
		}
	}
	return out, nil
}

func (f *ledgerFake) ListRecords(_ context.Context, stage domain.Stage, _ int) ([]domain.ProcessingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ProcessingRecord
	for _, rec := range f.records {
		if stage == "" || rec.Stage == stage {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *ledgerFake) Requeue(_ context.Context, id domain.DocumentIdentity) (domain.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id.Key()]
	if !ok || rec.Stage != domain.StageDeadLettered {
		return "", domain.WrapError(domain.ErrNotFound, "requeue", errNoRecord)
	}
	rec.Stage = rec.FailedStage
	rec.FailedStage = ""
	delete(rec.Attempts, rec.Stage)
	rec.LastError = ""
	return rec.Stage, nil
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	infos   []domain.ObjectInfo
	tags    map[string]map[string]string
	listErr error
	getErr  map[string]error
	moveErr error
	tagErr  error
	putErr  error
	moves   int
	moveLog []string
}

func newStorageFake() *storageFake {
	return &storageFake{
		objects: make(map[string][]byte),
		tags:    make(map[string]map[string]string),
		getErr:  make(map[string]error),
	}
}

func (f *storageFake) List(context.Context, string) ([]domain.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.ObjectInfo(nil), f.infos...), nil
}

func (f *storageFake) Get(_ context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[location]; err != nil {
		return nil, err
	}
	data, ok := f.objects[location]
	if !ok {
		return nil, domain.WrapError(domain.ErrPermanentStorage, "get", errNoRecord)
	}
	return data, nil
}

func (f *storageFake) Put(_ context.Context, location string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[location] = data
	return nil
}

func (f *storageFake) Move(_ context.Context, location, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	data, ok := f.objects[location]
	if !ok {
		if _, there := f.objects[destination]; there {
			return nil // already moved
		}
		return domain.WrapError(domain.ErrPermanentStorage, "move", errNoRecord)
	}
	delete(f.objects, location)
	f.objects[destination] = data
	f.moves++
	f.moveLog = append(f.moveLog, location+" -> "+destination)
	return nil
}

func (f *storageFake) Tag(_ context.Context, location, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tagErr != nil {
		return f.tagErr
	}
	if f.tags[location] == nil {
		f.tags[location] = make(map[string]string)
	}
	f.tags[location][key] = value
	return nil
}

type extractorFake struct {
	mu      sync.Mutex
	content domain.ExtractedContent
	err     error
	calls   int
}

func (f *extractorFake) Extract(context.Context, []byte, string) (domain.ExtractedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.ExtractedContent{}, f.err
	}
	return f.content, nil
}

type inferenceFake struct {
	mu sync.Mutex

	summary      string
	summarizeErr error

	classification domain.Classification
	classifyErr    error
	classifyCalls  int

	actions   []domain.WorkflowAction
	decideErr error
}

func (f *inferenceFake) Summarize(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return f.summary, nil
}

func (f *inferenceFake) Classify(context.Context, string, string, []domain.Category) (domain.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifyCalls++
	if f.classifyErr != nil {
		return domain.Classification{}, f.classifyErr
	}
	return f.classification, nil
}

func (f *inferenceFake) DecideWorkflow(context.Context, string, string) ([]domain.WorkflowAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	return f.actions, nil
}

type directoryFake struct {
	mu         sync.Mutex
	categories []domain.Category
	creations  int
}

func newDirectoryFake(names ...string) *directoryFake {
	f := &directoryFake{}
	for _, name := range names {
		f.categories = append(f.categories, domain.Category{Name: name, Origin: domain.CategoryPredefined})
	}
	return f
}

func (f *directoryFake) List(context.Context) ([]domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Category(nil), f.categories...), nil
}

func (f *directoryFake) Ensure(_ context.Context, cat domain.Category) (domain.Category, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	norm := domain.NormalizeCategoryName(cat.Name)
	for _, existing := range f.categories {
		if domain.NormalizeCategoryName(existing.Name) == norm {
			return existing, false, nil
		}
	}
	cat.CreatedAt = time.Now().UTC()
	f.categories = append(f.categories, cat)
	f.creations++
	return cat, true, nil
}

type notifierFake struct {
	mu       sync.Mutex
	err      error
	sent     int
	subjects []string
}

func (f *notifierFake) Send(_ context.Context, _, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent++
	f.subjects = append(f.subjects, subject)
	return nil
}

type schedulerFake struct {
	mu    sync.Mutex
	err   error
	whens []time.Time
}

func (f *schedulerFake) Schedule(_ context.Context, _ string, when time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.whens = append(f.whens, when)
	return nil
}

type queueFake struct {
	mu        sync.Mutex
	published []domain.DocumentIdentity
	err       error
}

func (f *queueFake) PublishDiscovered(_ context.Context, id domain.DocumentIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeDiscovered(context.Context, func(context.Context, domain.DocumentIdentity) error) error {
	return nil
}
