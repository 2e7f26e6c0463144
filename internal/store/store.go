package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("report not found")

// ReportRecord is a persisted run: the final markdown plus the plan and
// collected sources as JSON blobs, so an evaluation can be re-run later
// without the live session.
type ReportRecord struct {
	ID          string `json:"id"`
	RunID       string `json:"runId"`
	Query       string `json:"query"`
	Persona     string `json:"persona"`
	ReportText  string `json:"reportText"`
	PlanJSON    string `json:"planJson"`
	SourcesJSON string `json:"sourcesJson"`
	StepCount   int    `json:"stepCount"`
	DurationMS  int64  `json:"durationMs"`
	TokensUsed  int    `json:"tokensUsed"`
	CostMicros  int    `json:"costMicros"`
	Aborted     bool   `json:"aborted"`
	CreatedAt   string `json:"createdAt"`
}

type EvaluationRecord struct {
	ID         string `json:"id"`
	ReportID   string `json:"reportId"`
	ResultJSON string `json:"resultJson"`
	CreatedAt  string `json:"createdAt"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) DB() *sql.DB { return s.db }

const schema = `
CREATE TABLE IF NOT EXISTS reports (
  id TEXT PRIMARY KEY,
  run_id TEXT NOT NULL UNIQUE,
  query TEXT NOT NULL,
  persona TEXT NOT NULL,
  report_text TEXT NOT NULL,
  plan_json TEXT NOT NULL,
  sources_json TEXT NOT NULL,
  step_count INTEGER NOT NULL,
  duration_ms INTEGER NOT NULL,
  tokens_used INTEGER NOT NULL DEFAULT 0,
  cost_micros INTEGER NOT NULL DEFAULT 0,
  aborted INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluations (
  id TEXT PRIMARY KEY,
  report_id TEXT NOT NULL REFERENCES reports(id),
  result_json TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  body TEXT NOT NULL,
  doc_type TEXT NOT NULL DEFAULT '',
  source_url TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Migrate creates the tables. The documents table doubles as the corpus
// behind the relational retrieval tool.
func (s Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s Store) SaveReport(ctx context.Context, rec ReportRecord) (ReportRecord, error) {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	query := `
INSERT INTO reports (id, run_id, query, persona, report_text, plan_json, sources_json, step_count, duration_ms, tokens_used, cost_micros, aborted, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RunID, rec.Query, rec.Persona, rec.ReportText,
		rec.PlanJSON, rec.SourcesJSON, rec.StepCount, rec.DurationMS,
		rec.TokensUsed, rec.CostMicros, boolToInt(rec.Aborted), rec.CreatedAt,
	); err != nil {
		return ReportRecord{}, fmt.Errorf("save report: %w", err)
	}
	return rec, nil
}

func (s Store) GetReport(ctx context.Context, id string) (ReportRecord, error) {
	query := `
SELECT id, run_id, query, persona, report_text, plan_json, sources_json, step_count, duration_ms, tokens_used, cost_micros, aborted, created_at
FROM reports WHERE id = ? OR run_id = ? LIMIT 1;
`
	var rec ReportRecord
	var aborted int
	err := s.db.QueryRowContext(ctx, query, id, id).Scan(
		&rec.ID, &rec.RunID, &rec.Query, &rec.Persona, &rec.ReportText,
		&rec.PlanJSON, &rec.SourcesJSON, &rec.StepCount, &rec.DurationMS,
		&rec.TokensUsed, &rec.CostMicros, &aborted, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRecord{}, ErrNotFound
	}
	if err != nil {
		return ReportRecord{}, fmt.Errorf("get report: %w", err)
	}
	rec.Aborted = aborted != 0
	return rec, nil
}

// ListReports returns summaries newest first. Report text is omitted to
// keep the listing cheap.
func (s Store) ListReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
SELECT id, run_id, query, persona, step_count, duration_ms, tokens_used, cost_micros, aborted, created_at
FROM reports ORDER BY created_at DESC LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		var rec ReportRecord
		var aborted int
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Query, &rec.Persona,
			&rec.StepCount, &rec.DurationMS, &rec.TokensUsed,
			&rec.CostMicros, &aborted, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		rec.Aborted = aborted != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s Store) SaveEvaluation(ctx context.Context, reportID string, result any) (EvaluationRecord, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return EvaluationRecord{}, fmt.Errorf("marshal evaluation: %w", err)
	}

	rec := EvaluationRecord{
		ID:         uuid.NewString(),
		ReportID:   reportID,
		ResultJSON: string(payload),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	query := `INSERT INTO evaluations (id, report_id, result_json, created_at) VALUES (?, ?, ?, ?);`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.ReportID, rec.ResultJSON, rec.CreatedAt); err != nil {
		return EvaluationRecord{}, fmt.Errorf("save evaluation: %w", err)
	}
	return rec, nil
}

func (s Store) GetEvaluation(ctx context.Context, reportID string) (EvaluationRecord, error) {
	query := `
SELECT id, report_id, result_json, created_at
FROM evaluations WHERE report_id = ? ORDER BY created_at DESC LIMIT 1;
`
	var rec EvaluationRecord
	err := s.db.QueryRowContext(ctx, query, reportID).Scan(&rec.ID, &rec.ReportID, &rec.ResultJSON, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return EvaluationRecord{}, ErrNotFound
	}
	if err != nil {
		return EvaluationRecord{}, fmt.Errorf("get evaluation: %w", err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
