package httpapi

import (
	"net/http"

	"reportengine/backend/internal/config"
	"reportengine/backend/internal/report"
	"reportengine/backend/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg config.Config, reports store.Store, runner Runner, evaluator Evaluator, abort *report.AbortRegistry) http.Handler {
	h := NewHandler(cfg, reports, runner, evaluator, abort)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/personas", h.ListPersonas)

		v1.Route("/reports", func(reportsR chi.Router) {
			reportsR.Get("/", h.ListReports)
			reportsR.Post("/stream", h.StreamReport)
			reportsR.Get("/{reportID}", h.GetReport)
			reportsR.Post("/{reportID}/evaluate", h.EvaluateReport)
			reportsR.Get("/{reportID}/evaluation", h.GetEvaluation)
		})

		v1.Post("/runs/{runID}/abort", h.AbortRun)
	})

	return r
}
