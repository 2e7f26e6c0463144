package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Completer is the single-shot LLM call a judge needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type QualityJudgment struct {
	FactualAccuracy  float64 `json:"factual_accuracy"`
	LogicalCoherence float64 `json:"logical_coherence"`
	Relevance        float64 `json:"relevance"`
	Reasoning        string  `json:"reasoning"`
}

// Score folds the three quality axes into one number per judge.
func (q QualityJudgment) Score() float64 {
	return 0.40*q.FactualAccuracy + 0.30*q.LogicalCoherence + 0.30*q.Relevance
}

type HallucinationJudgment struct {
	Count            int                `json:"hallucination_count"`
	CitationAccuracy float64            `json:"citation_accuracy"`
	Examples         []FlaggedStatement `json:"examples"`
}

type JudgeInput struct {
	Query      string
	ReportText string
	SourceList string
}

// Judge scores one report. Implementations are expected to fail
// independently; the ensemble renormalizes around judges that error.
type Judge interface {
	Name() string
	Weight() float64
	JudgeQuality(ctx context.Context, input JudgeInput) (QualityJudgment, error)
	JudgeHallucination(ctx context.Context, input JudgeInput) (HallucinationJudgment, error)
}

type LLMJudge struct {
	name      string
	weight    float64
	completer Completer
}

func NewLLMJudge(name string, weight float64, completer Completer) LLMJudge {
	return LLMJudge{name: name, weight: weight, completer: completer}
}

func (j LLMJudge) Name() string    { return j.name }
func (j LLMJudge) Weight() float64 { return j.weight }

const qualityRubric = `You are grading a research report. Score each axis from 0 to 10.

factual_accuracy: are the claims supported by the cited sources below?
logical_coherence: does the argument flow without contradictions?
relevance: does the report answer the query that was asked?

Query:
%s

Sources:
%s

Report:
%s

Respond with JSON only:
{"factual_accuracy": <0-10>, "logical_coherence": <0-10>, "relevance": <0-10>, "reasoning": "<one short paragraph>"}`

func (j LLMJudge) JudgeQuality(ctx context.Context, input JudgeInput) (QualityJudgment, error) {
	raw, err := j.completer.Complete(ctx, fmt.Sprintf(qualityRubric, input.Query, input.SourceList, input.ReportText))
	if err != nil {
		return QualityJudgment{}, fmt.Errorf("judge %s quality call: %w", j.name, err)
	}
	var out QualityJudgment
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &out); err != nil {
		return QualityJudgment{}, fmt.Errorf("judge %s quality parse: %w", j.name, err)
	}
	out.FactualAccuracy = clampTen(out.FactualAccuracy)
	out.LogicalCoherence = clampTen(out.LogicalCoherence)
	out.Relevance = clampTen(out.Relevance)
	return out, nil
}

const hallucinationRubric = `You are auditing a research report against the sources it cites.
Flag statements that the sources do not support. Classify each flagged
statement with severity 1 (minor) or 2 (major) and one category of
"citation-inaccuracy", "unfounded-claim" or "exaggeration". Also estimate
citation_accuracy: the fraction of citation markers whose source actually
supports the sentence they close, from 0.0 to 1.0.

Query:
%s

Sources:
%s

Report:
%s

Respond with JSON only:
{"hallucination_count": <int>, "citation_accuracy": <0.0-1.0>, "examples": [{"statement": "...", "severity": 1, "category": "unfounded-claim"}]}`

func (j LLMJudge) JudgeHallucination(ctx context.Context, input JudgeInput) (HallucinationJudgment, error) {
	raw, err := j.completer.Complete(ctx, fmt.Sprintf(hallucinationRubric, input.Query, input.SourceList, input.ReportText))
	if err != nil {
		return HallucinationJudgment{}, fmt.Errorf("judge %s hallucination call: %w", j.name, err)
	}
	var out HallucinationJudgment
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &out); err != nil {
		return HallucinationJudgment{}, fmt.Errorf("judge %s hallucination parse: %w", j.name, err)
	}
	if out.Count < 0 {
		out.Count = 0
	}
	if out.CitationAccuracy < 0 {
		out.CitationAccuracy = 0
	}
	if out.CitationAccuracy > 1 {
		out.CitationAccuracy = 1
	}
	for i := range out.Examples {
		if out.Examples[i].Severity != 2 {
			out.Examples[i].Severity = 1
		}
	}
	return out, nil
}

// extractJSONObject strips markdown fences and any prose around the first
// top-level JSON object. Judges are prompted for bare JSON but models wrap
// it often enough that this is the cheap path.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}

func clampTen(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
