package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reportengine/backend/internal/config"
	"reportengine/backend/internal/eval"
	"reportengine/backend/internal/httpapi"
	"reportengine/backend/internal/llm"
	"reportengine/backend/internal/report"
	"reportengine/backend/internal/store"
	"reportengine/backend/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	st := store.NewStore(database)
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 15*time.Second)
	if err := st.Migrate(migrateCtx); err != nil {
		cancelMigrate()
		log.Fatalf("migrate: %v", err)
	}
	cancelMigrate()

	client := llm.NewClient(cfg, nil)

	registry := tools.Registry{
		Rel: tools.NewRDBClient(database, cfg.MaxResultsPerTool),
	}
	if cfg.WebSearchAPIKey != "" {
		registry.Web = tools.NewWebClient(cfg, nil)
	}
	if cfg.VectorStoreURL != "" {
		registry.Vector = tools.NewVectorClient(cfg, nil)
	}
	if cfg.AcademicBaseURL != "" {
		registry.Academic = tools.NewAcademicClient(cfg, nil)
	}
	var prober report.GraphProber
	if cfg.GraphStoreURL != "" {
		graph := tools.NewGraphClient(cfg, nil)
		registry.Graph = graph
		prober = graph
	}

	abort := report.NewAbortRegistry()
	pool := report.NewWorkerPool(cfg.WorkerPoolSize)
	gatherer := report.NewGatherer(registry, pool)

	plannerLLM := llm.Bind(client, cfg.PlannerModel)
	writerLLM := llm.Bind(client, cfg.WriterModel)

	pipeline := report.Pipeline{
		Planner:    report.NewPlanner(plannerLLM, prober, cfg.GraphProbeEnabled),
		Engine:     report.NewEngine(gatherer, abort, cfg.StepContextBudget),
		Structurer: report.NewStructurer(plannerLLM),
		Streamer:   report.NewStreamer(writerLLM, report.NewLLMChartBuilder(writerLLM), abort),
		Abort:      abort,
	}

	judges := make([]eval.Judge, 0, len(cfg.JudgeModels))
	for i, model := range cfg.JudgeModels {
		judges = append(judges, eval.NewLLMJudge(model, cfg.JudgeWeights[i], llm.Bind(client, model)))
	}
	evaluator := eval.NewEngine(judges, nil)

	handler := httpapi.NewRouter(cfg, st, pipeline, evaluator, abort)

	srv := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s", cfg.ListenAddress())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
