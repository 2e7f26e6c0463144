package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reportengine/backend/internal/eval"
	"reportengine/backend/internal/llm"
	"reportengine/backend/internal/report"
	"reportengine/backend/internal/store"
	"reportengine/backend/internal/tools"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type streamReportRequest struct {
	Query   string `json:"query"`
	Persona string `json:"persona,omitempty"`
}

// StreamReport runs the full pipeline for one query and frames every
// progress event as SSE. The run id is announced in the first event so the
// client can abort mid-run.
func (h Handler) StreamReport(w http.ResponseWriter, r *http.Request) {
	var req streamReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	runID := uuid.NewString()
	meter := llm.NewUsageMeter()
	runCtx := llm.WithUsageMeter(r.Context(), meter)
	if h.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, h.cfg.RunTimeout)
		defer cancel()
	}

	sseHeaders(w)

	_ = writeSSEEvent(w, map[string]any{
		"type":    "metadata",
		"runId":   runID,
		"persona": report.GetPersona(req.Persona).Name,
	})
	flusher.Flush()

	result, err := h.runner.Run(runCtx, runID, req.Query, req.Persona, func(event report.Event) {
		_ = writeSSEEvent(w, event)
		flusher.Flush()
	})
	if err != nil {
		log.Printf("report stream failed: run_id=%s err=%v", runID, err)
		_ = writeSSEEvent(w, map[string]any{"type": "error", "message": "report generation failed"})
		_ = writeSSEEvent(w, map[string]any{"type": "done"})
		flusher.Flush()
		return
	}
	result.TokensUsed, result.CostMicros = meter.Totals()

	rec, err := h.persistRun(r, result)
	if err != nil {
		log.Printf("report persist failed: run_id=%s err=%v", runID, err)
		_ = writeSSEEvent(w, map[string]any{"type": "done", "runId": runID, "aborted": result.Aborted})
		flusher.Flush()
		return
	}

	_ = writeSSEEvent(w, map[string]any{
		"type":     "done",
		"runId":    runID,
		"reportId": rec.ID,
		"aborted":  result.Aborted,
	})
	flusher.Flush()
}

func (h Handler) persistRun(r *http.Request, result report.RunResult) (store.ReportRecord, error) {
	planJSON, err := json.Marshal(result.Plan)
	if err != nil {
		return store.ReportRecord{}, err
	}
	var collected []tools.SearchResult
	if result.State != nil {
		collected = result.State.Collected
	}
	sourcesJSON, err := json.Marshal(collected)
	if err != nil {
		return store.ReportRecord{}, err
	}

	// Persistence must survive the client hanging up right after the
	// final event, so it does not use the request context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
	defer cancel()
	return h.reports.SaveReport(ctx, store.ReportRecord{
		RunID:       result.RunID,
		Query:       result.Query,
		Persona:     result.Persona,
		ReportText:  result.ReportText,
		PlanJSON:    string(planJSON),
		SourcesJSON: string(sourcesJSON),
		StepCount:   result.StepCount,
		DurationMS:  result.Duration.Milliseconds(),
		TokensUsed:  result.TokensUsed,
		CostMicros:  result.CostMicros,
		Aborted:     result.Aborted,
	})
}

// AbortRun flips the cooperative abort flag for a live run. The pipeline
// acknowledges at its next checkpoint; work already dispatched finishes
// and is discarded.
func (h Handler) AbortRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "runID"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "run id is required")
		return
	}
	h.abort.Request(runID)
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "runId": runID})
}

func (h Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		limit = parsed
	}

	reports, err := h.reports.ListReports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list reports")
		return
	}
	if reports == nil {
		reports = []store.ReportRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reports.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "report not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rec})
}

// EvaluateReport scores a stored report with the judge ensemble and
// persists the scorecard beside it.
func (h Handler) EvaluateReport(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reports.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "report not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read report")
		return
	}

	var sources []tools.SearchResult
	if err := json.Unmarshal([]byte(rec.SourcesJSON), &sources); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt_record", "stored sources are unreadable")
		return
	}
	var plan report.Plan
	if err := json.Unmarshal([]byte(rec.PlanJSON), &plan); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt_record", "stored plan is unreadable")
		return
	}

	result := h.evaluator.Evaluate(r.Context(), eval.Input{
		Query:          rec.Query,
		ReportText:     rec.ReportText,
		Sources:        sources,
		SchemaFields:   report.GetPersona(rec.Persona).SchemaFields,
		ExecutionTime:  time.Duration(rec.DurationMS) * time.Millisecond,
		RedundantSteps: plan.RedundantTaskCount(),
		TokensUsed:     rec.TokensUsed,
		CostMicros:     rec.CostMicros,
	})

	if _, err := h.reports.SaveEvaluation(r.Context(), rec.ID, result); err != nil {
		log.Printf("evaluation persist failed: report_id=%s err=%v", rec.ID, err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluation": result})
}

func (h Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reports.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "report not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read report")
		return
	}

	evaluation, err := h.reports.GetEvaluation(r.Context(), rec.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "report has no evaluation yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read evaluation")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"evaluation":` + evaluation.ResultJSON + `}`))
}

func (h Handler) ListPersonas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"personas": report.PersonaNames()})
}
