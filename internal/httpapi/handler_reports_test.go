package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reportengine/backend/internal/config"
	"reportengine/backend/internal/eval"
	"reportengine/backend/internal/report"
	"reportengine/backend/internal/store"
	"reportengine/backend/internal/tools"
)

type stubRunner struct {
	result report.RunResult
	err    error
	events []report.Event
}

func (s stubRunner) Run(ctx context.Context, runID, query, personaName string, onEvent func(report.Event)) (report.RunResult, error) {
	for _, event := range s.events {
		onEvent(event)
	}
	if s.err != nil {
		return report.RunResult{}, s.err
	}
	result := s.result
	result.RunID = runID
	result.Query = query
	return result, nil
}

type stubEvaluator struct {
	result eval.EvaluationResult
	input  eval.Input
}

func (s *stubEvaluator) Evaluate(ctx context.Context, input eval.Input) eval.EvaluationResult {
	s.input = input
	return s.result
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := store.NewStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func newTestRouter(t *testing.T, runner Runner, evaluator Evaluator, abort *report.AbortRegistry) (http.Handler, store.Store) {
	t.Helper()
	s := newTestStore(t)
	cfg := config.Config{AllowedOrigins: []string{"*"}, RunTimeout: time.Minute}
	return NewRouter(cfg, s, runner, evaluator, abort), s
}

func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("parse sse line %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestStreamReportEmitsEventsAndPersists(t *testing.T) {
	state := report.NewSessionState("", "q", report.GetPersona("general"))
	state.Collected = []tools.SearchResult{{Source: tools.WebSearch, Title: "a", Content: "b", Score: 0.8}}

	runner := stubRunner{
		events: []report.Event{
			{Type: report.EventStatus, Message: "planning retrieval"},
			{Type: report.EventContent, SectionTitle: "Overview", Chunk: "hello "},
		},
		result: report.RunResult{
			Persona:    "general",
			ReportText: "# T\n\n## Overview\n\nhello [SOURCE:0]",
			StepCount:  1,
			Duration:   2 * time.Second,
			State:      state,
		},
	}
	router, s := newTestRouter(t, runner, &stubEvaluator{}, report.NewAbortRegistry())

	req := httptest.NewRequest(http.MethodPost, "/v1/reports/stream", strings.NewReader(`{"query":"compare vendors"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	events := parseSSE(t, rec.Body.String())
	if len(events) < 4 {
		t.Fatalf("expected metadata + 2 progress + done, got %d events", len(events))
	}
	if events[0]["type"] != "metadata" || events[0]["runId"] == "" {
		t.Fatalf("first event should be metadata with runId: %+v", events[0])
	}
	if events[1]["type"] != "status" || events[2]["type"] != "content" {
		t.Fatalf("progress events not forwarded in order: %+v", events[1:3])
	}
	done := events[len(events)-1]
	if done["type"] != "done" || done["reportId"] == "" || done["reportId"] == nil {
		t.Fatalf("final event should be done with reportId: %+v", done)
	}

	list, err := s.ListReports(context.Background(), 10)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(list) != 1 || list[0].Query != "compare vendors" {
		t.Fatalf("run was not persisted: %+v", list)
	}
}

func TestStreamReportRejectsEmptyQuery(t *testing.T) {
	router, _ := newTestRouter(t, stubRunner{}, &stubEvaluator{}, report.NewAbortRegistry())

	req := httptest.NewRequest(http.MethodPost, "/v1/reports/stream", strings.NewReader(`{"query":"  "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAbortRunFlagsRegistry(t *testing.T) {
	abort := report.NewAbortRegistry()
	router, _ := newTestRouter(t, stubRunner{}, &stubEvaluator{}, abort)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs/run-42/abort", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !abort.IsRequested("run-42") {
		t.Fatal("abort flag was not set")
	}
}

func TestGetReportNotFound(t *testing.T) {
	router, _ := newTestRouter(t, stubRunner{}, &stubEvaluator{}, report.NewAbortRegistry())

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEvaluateReportScoresAndPersists(t *testing.T) {
	evaluator := &stubEvaluator{result: eval.EvaluationResult{OverallScore: 8.4, Grade: eval.GradeB}}
	router, s := newTestRouter(t, stubRunner{}, evaluator, report.NewAbortRegistry())

	planJSON := `{"title":"t","execution_steps":[` +
		`{"step":1,"sub_questions":[{"question":"vendor prices","tool":"web_search"}]},` +
		`{"step":2,"sub_questions":[{"question":"vendor prices","tool":"web_search"}]}]}`
	saved, err := s.SaveReport(context.Background(), store.ReportRecord{
		RunID:       "run-7",
		Query:       "q",
		Persona:     "general",
		ReportText:  "# T\n\nbody [SOURCE:0]",
		PlanJSON:    planJSON,
		SourcesJSON: `[{"source":"web_search","title":"a","content":"b","score":0.8}]`,
		TokensUsed:  52000,
		CostMicros:  610000,
	})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/reports/"+saved.ID+"/evaluate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Evaluation eval.EvaluationResult `json:"evaluation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Evaluation.Grade != eval.GradeB {
		t.Fatalf("grade = %s, want B", resp.Evaluation.Grade)
	}
	if evaluator.input.TokensUsed != 52000 || evaluator.input.CostMicros != 610000 {
		t.Fatalf("usage did not reach the evaluator: %+v", evaluator.input)
	}
	if evaluator.input.RedundantSteps != 1 {
		t.Fatalf("redundant steps = %d, want 1", evaluator.input.RedundantSteps)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/reports/"+saved.ID+"/evaluation", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get evaluation status = %d", getRec.Code)
	}
}

func TestListPersonas(t *testing.T) {
	router, _ := newTestRouter(t, stubRunner{}, &stubEvaluator{}, report.NewAbortRegistry())

	req := httptest.NewRequest(http.MethodGet, "/v1/personas", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Personas []string `json:"personas"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Personas) < 4 {
		t.Fatalf("personas = %v, want at least 4", resp.Personas)
	}
}
