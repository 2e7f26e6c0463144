package eval

import "time"

type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeBPlus Grade = "B+"
	GradeB     Grade = "B"
	GradeCPlus Grade = "C+"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

type TaskStatus string

const (
	TaskCompleteSuccess TaskStatus = "COMPLETE_SUCCESS"
	TaskPartialSuccess  TaskStatus = "PARTIAL_SUCCESS"
	TaskFailure         TaskStatus = "FAILURE"
)

type TaskSuccessMetrics struct {
	Status            TaskStatus `json:"status"`
	CompletionPercent float64    `json:"completionPercent"`
	Score             float64    `json:"score"`
}

type OutputQualityMetrics struct {
	FactualAccuracy  float64 `json:"factualAccuracy"`
	LogicalCoherence float64 `json:"logicalCoherence"`
	Relevance        float64 `json:"relevance"`
	Score            float64 `json:"score"`
	Disagreement     bool    `json:"disagreement"`
	JudgeCount       int     `json:"judgeCount"`
}

type CompletenessMetrics struct {
	SectionRate     float64 `json:"sectionRate"`
	SchemaRate      float64 `json:"schemaRate"`
	Rate            float64 `json:"rate"`
	Score           float64 `json:"score"`
	DetectedHeaders int     `json:"detectedHeaders"`
}

type FlaggedStatement struct {
	Statement string `json:"statement"`
	Severity  int    `json:"severity"`
	Category  string `json:"category"`
}

type HallucinationMetrics struct {
	Count            int                `json:"count"`
	CitationAccuracy float64            `json:"citationAccuracy"`
	Rate             float64            `json:"rate"`
	Examples         []FlaggedStatement `json:"examples,omitempty"`
	Disagreement     bool               `json:"disagreement"`
	JudgeCount       int                `json:"judgeCount"`
}

type EfficiencyMetrics struct {
	Score            float64 `json:"score"`
	ExecutionSeconds float64 `json:"executionSeconds"`
	RedundantSteps   int     `json:"redundantSteps"`
	TokensUsed       int     `json:"tokensUsed"`
	CostMicros       int     `json:"costMicros"`
}

type SourceQualityMetrics struct {
	Score         float64 `json:"score"`
	MeanRelevance float64 `json:"meanRelevance"`
	DistinctTypes int     `json:"distinctTypes"`
}

type ContentMetrics struct {
	WordCount        int `json:"wordCount"`
	SectionCount     int `json:"sectionCount"`
	CitationCount    int `json:"citationCount"`
	InvalidCitations int `json:"invalidCitations"`
}

// EvaluationResult is the immutable scorecard for one (query, report) pair.
// It is computed from the report transcript alone and carries no session
// state, so a persisted report can be evaluated later.
type EvaluationResult struct {
	TaskSuccess     TaskSuccessMetrics   `json:"taskSuccess"`
	OutputQuality   OutputQualityMetrics `json:"outputQuality"`
	Completeness    CompletenessMetrics  `json:"completeness"`
	Hallucination   HallucinationMetrics `json:"hallucination"`
	Efficiency      EfficiencyMetrics    `json:"efficiency"`
	SourceQuality   SourceQualityMetrics `json:"sourceQuality"`
	Content         ContentMetrics       `json:"content"`
	OverallScore    float64              `json:"overallScore"`
	Grade           Grade                `json:"grade"`
	Strengths       []string             `json:"strengths,omitempty"`
	Weaknesses      []string             `json:"weaknesses,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
	Notes           []string             `json:"notes,omitempty"`
	EvaluatedAt     time.Time            `json:"evaluatedAt"`
}
