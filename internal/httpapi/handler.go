package httpapi

import (
	"context"
	"net/http"

	"reportengine/backend/internal/config"
	"reportengine/backend/internal/eval"
	"reportengine/backend/internal/report"
	"reportengine/backend/internal/store"
)

// Runner executes one report run end to end, emitting progress events as
// it goes. report.Pipeline is the production implementation.
type Runner interface {
	Run(ctx context.Context, runID, query, personaName string, onEvent func(report.Event)) (report.RunResult, error)
}

// Evaluator scores a finished report. eval.Engine is the production
// implementation.
type Evaluator interface {
	Evaluate(ctx context.Context, input eval.Input) eval.EvaluationResult
}

type Handler struct {
	cfg       config.Config
	reports   store.Store
	runner    Runner
	evaluator Evaluator
	abort     *report.AbortRegistry
}

func NewHandler(cfg config.Config, reports store.Store, runner Runner, evaluator Evaluator, abort *report.AbortRegistry) Handler {
	return Handler{cfg: cfg, reports: reports, runner: runner, evaluator: evaluator, abort: abort}
}

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
