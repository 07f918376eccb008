package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// Ledger is the Postgres-backed ProcessingLedger. Every mutation is keyed by
// (location, fingerprint) and guarded by a WHERE clause on the expected state,
// so concurrent workers and duplicate queue deliveries stay exactly-once.
type Ledger struct {
	db *sql.DB

	// claimTTL is how long a claim is honored before another worker may
	// steal it from a crashed peer.
	claimTTL time.Duration
}

func NewLedger(db *sql.DB, claimTTL time.Duration) *Ledger {
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	return &Ledger{db: db, claimTTL: claimTTL}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (l *Ledger) EnsureSchema(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker/ops startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS processing_records (
	location TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	stage TEXT NOT NULL,
	failed_stage TEXT NOT NULL DEFAULT '',
	attempts JSONB NOT NULL DEFAULT '{}'::jsonb,
	last_error TEXT NOT NULL DEFAULT '',
	size BIGINT NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	text_ref TEXT NOT NULL DEFAULT '',
	page_count INT NOT NULL DEFAULT 0,
	language TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_required BOOLEAN NOT NULL DEFAULT FALSE,
	filed_location TEXT NOT NULL DEFAULT '',
	dispatches JSONB NOT NULL DEFAULT '[]'::jsonb,
	claimed BOOLEAN NOT NULL DEFAULT FALSE,
	claimed_at TIMESTAMPTZ,
	stage_times JSONB NOT NULL DEFAULT '{}'::jsonb,
	discovered_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (location, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_processing_records_stage ON processing_records(stage);
CREATE INDEX IF NOT EXISTS idx_processing_records_discovered_at ON processing_records(discovered_at DESC);

CREATE TABLE IF NOT EXISTS categories (
	normalized_name TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	origin TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (l *Ledger) CreateDiscovered(ctx context.Context, info domain.ObjectInfo) (bool, error) {
	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
INSERT INTO processing_records (
	location, fingerprint, stage, size, content_type, discovered_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (location, fingerprint) DO NOTHING
`, info.Location, info.Fingerprint, string(domain.StageDiscovered), info.Size, info.ContentType, now)
	if err != nil {
		return false, fmt.Errorf("insert processing record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

const recordColumns = `
location, fingerprint, stage, failed_stage, attempts, last_error,
size, content_type, text_ref, page_count, language,
summary, category, confidence, review_required, filed_location,
dispatches, claimed, claimed_at, stage_times, discovered_at, updated_at`

func (l *Ledger) Get(ctx context.Context, id domain.DocumentIdentity) (*domain.ProcessingRecord, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM processing_records
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get record",
				fmt.Errorf("no record for %s", id.Key()))
		}
		return nil, fmt.Errorf("scan processing record: %w", err)
	}
	return rec, nil
}

// Claim is the atomic check-and-set: exactly one of N concurrent workers wins
// the UPDATE. A claim older than the TTL belongs to a crashed worker and is
// stealable.
func (l *Ledger) Claim(ctx context.Context, id domain.DocumentIdentity, stage domain.Stage) (bool, error) {
	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET claimed = TRUE, claimed_at = $4, updated_at = $4
WHERE location = $1 AND fingerprint = $2 AND stage = $3
  AND (claimed = FALSE OR claimed_at < $5)
`, id.Location, id.Fingerprint, string(stage), now, now.Add(-l.claimTTL))
	if err != nil {
		return false, fmt.Errorf("claim record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (l *Ledger) Release(ctx context.Context, id domain.DocumentIdentity) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET claimed = FALSE, updated_at = $3
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (l *Ledger) Advance(ctx context.Context, id domain.DocumentIdentity, from, to domain.Stage) error {
	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET stage = $4, claimed = FALSE,
    stage_times = stage_times || jsonb_build_object($4::text, $5::timestamptz),
    updated_at = $5
WHERE location = $1 AND fingerprint = $2 AND stage = $3
`, id.Location, id.Fingerprint, string(from), string(to), now)
	if err != nil {
		return fmt.Errorf("advance record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return domain.WrapError(domain.ErrLedgerConsistency, "advance record",
			fmt.Errorf("record %s is not in stage %s", id.Key(), from))
	}
	return nil
}

func (l *Ledger) RecordAttempt(ctx context.Context, id domain.DocumentIdentity, stage domain.Stage, attempt int, lastError string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET attempts = attempts || jsonb_build_object($3::text, $4::int),
    last_error = $5, updated_at = $6
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint, string(stage), attempt, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (l *Ledger) DeadLetter(ctx context.Context, id domain.DocumentIdentity, stage domain.Stage, lastError string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET stage = $3, failed_stage = $4, last_error = $5, claimed = FALSE, updated_at = $6
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint, string(domain.StageDeadLettered), string(stage), lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("dead-letter record: %w", err)
	}
	return nil
}

func (l *Ledger) SaveExtraction(ctx context.Context, id domain.DocumentIdentity, textRef string, pageCount int, language string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET text_ref = $3, page_count = $4, language = $5, updated_at = $6
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint, textRef, pageCount, language, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return nil
}

func (l *Ledger) SaveSummary(ctx context.Context, id domain.DocumentIdentity, summary string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET summary = $3, updated_at = $4
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (l *Ledger) SaveClassification(ctx context.Context, id domain.DocumentIdentity, category string, confidence float64, reviewRequired bool) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET category = $3, confidence = $4, review_required = $5, updated_at = $6
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint, category, confidence, reviewRequired, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

func (l *Ledger) SaveFiledLocation(ctx context.Context, id domain.DocumentIdentity, filedLocation string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE processing_records
SET filed_location = $3, updated_at = $4
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint, filedLocation, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save filed location: %w", err)
	}
	return nil
}

func (l *Ledger) SaveDispatches(ctx context.Context, id domain.DocumentIdentity, dispatches []domain.DispatchRecord) error {
	payload, err := json.Marshal(dispatches)
	if err != nil {
		return fmt.Errorf("marshal dispatches: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
UPDATE processing_records
SET dispatches = $3, updated_at = $4
WHERE location = $1 AND fingerprint = $2
`, id.Location, id.Fingerprint, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save dispatches: %w", err)
	}
	return nil
}

func (l *Ledger) ListResumable(ctx context.Context) ([]domain.DocumentIdentity, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT location, fingerprint
FROM processing_records
WHERE stage NOT IN ($1, $2)
ORDER BY discovered_at
`, string(domain.StageCompleted), string(domain.StageDeadLettered))
	if err != nil {
		return nil, fmt.Errorf("list resumable records: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentIdentity
	for rows.Next() {
		var id domain.DocumentIdentity
		if err := rows.Scan(&id.Location, &id.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resumable records: %w", err)
	}
	return out, nil
}

func (l *Ledger) ListRecords(ctx context.Context, stage domain.Stage, limit int) ([]domain.ProcessingRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
SELECT ` + recordColumns + `
FROM processing_records
`
	args := []any{}
	if stage != "" {
		query += `WHERE stage = $1
ORDER BY discovered_at DESC
LIMIT $2`
		args = append(args, string(stage), limit)
	} else {
		query += `ORDER BY discovered_at DESC
LIMIT $1`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan processing record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Requeue resets a dead-lettered record back to its failed stage and clears
// that stage's attempt counter so the retry budget starts fresh.
func (l *Ledger) Requeue(ctx context.Context, id domain.DocumentIdentity) (domain.Stage, error) {
	row := l.db.QueryRowContext(ctx, `
UPDATE processing_records
SET stage = failed_stage, failed_stage = '', last_error = '',
    attempts = attempts - failed_stage, claimed = FALSE, updated_at = $3
WHERE location = $1 AND fingerprint = $2 AND stage = $4
RETURNING stage
`, id.Location, id.Fingerprint, time.Now().UTC(), string(domain.StageDeadLettered))

	var stage string
	if err := row.Scan(&stage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrNotFound, "requeue record",
				fmt.Errorf("no dead-lettered record for %s", id.Key()))
		}
		return "", fmt.Errorf("requeue record: %w", err)
	}
	return domain.Stage(stage), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ProcessingRecord, error) {
	var rec domain.ProcessingRecord
	var stage, failedStage string
	var attemptsRaw, dispatchesRaw, stageTimesRaw []byte
	var claimedAt sql.NullTime

	err := row.Scan(
		&rec.Identity.Location, &rec.Identity.Fingerprint, &stage, &failedStage,
		&attemptsRaw, &rec.LastError,
		&rec.Size, &rec.ContentType, &rec.TextRef, &rec.PageCount, &rec.Language,
		&rec.Summary, &rec.Category, &rec.Confidence, &rec.ReviewRequired, &rec.FiledLocation,
		&dispatchesRaw, &rec.Claimed, &claimedAt, &stageTimesRaw,
		&rec.DiscoveredAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Stage = domain.Stage(stage)
	rec.FailedStage = domain.Stage(failedStage)
	if claimedAt.Valid {
		rec.ClaimedAt = claimedAt.Time
	}
	if err := json.Unmarshal(attemptsRaw, &rec.Attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts: %w", err)
	}
	if err := json.Unmarshal(dispatchesRaw, &rec.Dispatches); err != nil {
		return nil, fmt.Errorf("unmarshal dispatches: %w", err)
	}
	if err := json.Unmarshal(stageTimesRaw, &rec.StageTimes); err != nil {
		return nil, fmt.Errorf("unmarshal stage times: %w", err)
	}
	return &rec, nil
}
