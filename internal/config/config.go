package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort              = "8080"
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1"
	defaultPlannerModel      = "openai/gpt-4o-mini"
	defaultWriterModel       = "openai/gpt-4o"
	defaultJudgeModels       = "openai/gpt-4o-mini,anthropic/claude-3.5-haiku,google/gemini-2.0-flash-001"
	defaultJudgeWeights      = "0.4,0.3,0.3"
	defaultWorkerPoolSize    = 12
	defaultStepContextBudget = 2000
	defaultRunTimeoutSecs    = 300
	defaultMaxResultsPerTool = 6
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string

	LLMBaseURL   string
	LLMAPIKeys   []string
	PlannerModel string
	WriterModel  string
	JudgeModels  []string
	JudgeWeights []float64

	WebSearchBaseURL  string
	WebSearchAPIKey   string
	VectorStoreURL    string
	GraphStoreURL     string
	AcademicBaseURL   string
	GraphProbeEnabled bool

	DatabaseURL       string
	DatabaseAuthToken string

	WorkerPoolSize    int
	StepContextBudget int
	MaxResultsPerTool int
	RunTimeout        time.Duration
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func Load() (Config, error) {
	cfg := Config{
		Port:              envOrDefault("PORT", defaultPort),
		Environment:       envOrDefault("APP_ENV", "development"),
		LLMBaseURL:        envOrDefault("LLM_BASE_URL", defaultLLMBaseURL),
		PlannerModel:      envOrDefault("PLANNER_MODEL", defaultPlannerModel),
		WriterModel:       envOrDefault("WRITER_MODEL", defaultWriterModel),
		WebSearchBaseURL:  envOrDefault("WEB_SEARCH_BASE_URL", "https://api.search.brave.com/res/v1"),
		WebSearchAPIKey:   strings.TrimSpace(os.Getenv("WEB_SEARCH_API_KEY")),
		VectorStoreURL:    strings.TrimSpace(os.Getenv("VECTOR_STORE_URL")),
		GraphStoreURL:     strings.TrimSpace(os.Getenv("GRAPH_STORE_URL")),
		AcademicBaseURL:   envOrDefault("ACADEMIC_BASE_URL", "https://export.arxiv.org/api/query"),
		GraphProbeEnabled: boolOrDefault("GRAPH_PROBE_ENABLED", true),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseAuthToken: strings.TrimSpace(os.Getenv("DATABASE_AUTH_TOKEN")),
		WorkerPoolSize:    intOrDefault("WORKER_POOL_SIZE", defaultWorkerPoolSize),
		StepContextBudget: intOrDefault("STEP_CONTEXT_BUDGET", defaultStepContextBudget),
		MaxResultsPerTool: intOrDefault("MAX_RESULTS_PER_TOOL", defaultMaxResultsPerTool),
	}

	cfg.LLMAPIKeys = collectKeys("LLM_API_KEY", "LLM_API_KEY_2", "LLM_API_KEY_3")

	cfg.JudgeModels = parseList(envOrDefault("JUDGE_MODELS", defaultJudgeModels))
	weights, err := parseWeights(envOrDefault("JUDGE_WEIGHTS", defaultJudgeWeights))
	if err != nil {
		return Config{}, err
	}
	if len(weights) != len(cfg.JudgeModels) {
		return Config{}, fmt.Errorf("JUDGE_WEIGHTS must list one weight per judge model (%d models, %d weights)", len(cfg.JudgeModels), len(weights))
	}
	cfg.JudgeWeights = weights

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:4173"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	timeoutSecs := intOrDefault("RUN_TIMEOUT_SECONDS", defaultRunTimeoutSecs)
	if timeoutSecs <= 0 {
		return Config{}, errors.New("RUN_TIMEOUT_SECONDS must be > 0")
	}
	cfg.RunTimeout = time.Duration(timeoutSecs) * time.Second

	if cfg.WorkerPoolSize < 1 {
		cfg.WorkerPoolSize = defaultWorkerPoolSize
	}
	if cfg.StepContextBudget < 200 {
		cfg.StepContextBudget = defaultStepContextBudget
	}
	if cfg.MaxResultsPerTool < 1 {
		cfg.MaxResultsPerTool = defaultMaxResultsPerTool
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}

	return cfg, nil
}

func collectKeys(names ...string) []string {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		value := strings.TrimSpace(os.Getenv(name))
		if value != "" {
			keys = append(keys, value)
		}
	}
	return keys
}

func parseWeights(raw string) ([]float64, error) {
	parts := parseList(raw)
	weights := make([]float64, 0, len(parts))
	sum := 0.0
	for _, part := range parts {
		value, err := strconv.ParseFloat(part, 64)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("invalid judge weight %q", part)
		}
		weights = append(weights, value)
		sum += value
	}
	if len(weights) == 0 {
		return nil, errors.New("JUDGE_WEIGHTS must not be empty")
	}
	// Stored weights always sum to 1.0 regardless of how they were written.
	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
