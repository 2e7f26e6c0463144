package eval

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"reportengine/backend/internal/tools"
)

// Input carries everything Evaluate needs. It is assembled from a finished
// run's transcript, never from live pipeline state, so stored reports can
// be re-scored with a newer judge panel.
type Input struct {
	Query        string
	ReportText   string
	Sources      []tools.SearchResult
	SchemaFields []string
	Requirements []string

	ExecutionTime  time.Duration
	RedundantSteps int
	TokensUsed     int
	CostMicros     int
}

type Engine struct {
	judges     []Judge
	similarity Similarity
}

func NewEngine(judges []Judge, similarity Similarity) Engine {
	return Engine{judges: judges, similarity: similarity}
}

type qualityVerdict struct {
	weight   float64
	judgment QualityJudgment
}

type hallucinationVerdict struct {
	weight   float64
	judgment HallucinationJudgment
}

// Evaluate scores a finished report on seven weighted KPIs and folds
// them into one overall score and a letter grade.
func (e Engine) Evaluate(ctx context.Context, input Input) EvaluationResult {
	content := buildContentMetrics(input.ReportText, len(input.Sources))
	completeness := scoreCompleteness(ctx, e.similarity, input.ReportText, input.SchemaFields)
	task := scoreTaskSuccess(input.ReportText, input.Requirements)
	efficiency := scoreEfficiency(input.ExecutionTime.Seconds(), input.RedundantSteps, input.TokensUsed, input.CostMicros)
	sourceQuality := scoreSourceQuality(input.Sources)

	qualityVerdicts, hallucinationVerdicts, notes := e.runJudges(ctx, JudgeInput{
		Query:      input.Query,
		ReportText: input.ReportText,
		SourceList: formatSourceList(input.Sources),
	})
	quality := reconcileQuality(qualityVerdicts)
	hallucination := reconcileHallucination(hallucinationVerdicts, content)

	overall := 0.25*task.Score +
		0.25*quality.Score +
		0.20*completeness.Score +
		0.15*(10*(1-hallucination.Rate)) +
		0.10*efficiency.Score +
		0.05*sourceQuality.Score

	result := EvaluationResult{
		TaskSuccess:   task,
		OutputQuality: quality,
		Completeness:  completeness,
		Hallucination: hallucination,
		Efficiency:    efficiency,
		SourceQuality: sourceQuality,
		Content:       content,
		OverallScore:  overall,
		Grade:         gradeFor(overall),
		Notes:         notes,
		EvaluatedAt:   time.Now().UTC(),
	}
	result.Strengths, result.Weaknesses, result.Recommendations = summarize(result)
	return result
}

// runJudges fans the panel out concurrently. The two rubrics are scored
// independently: a judge that errors on one is excluded from that field
// only, and its surviving verdict still counts toward the other.
func (e Engine) runJudges(ctx context.Context, input JudgeInput) ([]qualityVerdict, []hallucinationVerdict, []string) {
	type outcome struct {
		name             string
		weight           float64
		quality          QualityJudgment
		hallucination    HallucinationJudgment
		qualityErr       error
		hallucinationErr error
	}
	outcomes := make([]outcome, len(e.judges))
	var wg sync.WaitGroup
	for i, judge := range e.judges {
		wg.Add(1)
		go func(i int, judge Judge) {
			defer wg.Done()
			o := outcome{name: judge.Name(), weight: judge.Weight()}
			o.quality, o.qualityErr = judge.JudgeQuality(ctx, input)
			o.hallucination, o.hallucinationErr = judge.JudgeHallucination(ctx, input)
			outcomes[i] = o
		}(i, judge)
	}
	wg.Wait()

	var qualities []qualityVerdict
	var hallucinations []hallucinationVerdict
	var notes []string
	for _, o := range outcomes {
		if o.qualityErr != nil {
			log.Printf("eval: quality judge failed: judge=%s err=%v", o.name, o.qualityErr)
			notes = append(notes, fmt.Sprintf("judge %s excluded from quality: %v", o.name, o.qualityErr))
		} else {
			qualities = append(qualities, qualityVerdict{weight: o.weight, judgment: o.quality})
		}
		if o.hallucinationErr != nil {
			log.Printf("eval: hallucination judge failed: judge=%s err=%v", o.name, o.hallucinationErr)
			notes = append(notes, fmt.Sprintf("judge %s excluded from hallucination: %v", o.name, o.hallucinationErr))
		} else {
			hallucinations = append(hallucinations, hallucinationVerdict{weight: o.weight, judgment: o.hallucination})
		}
	}
	if len(qualities) == 0 && len(e.judges) > 0 {
		notes = append(notes, "all judges failed the quality rubric; quality metrics are neutral defaults")
	}
	if len(hallucinations) == 0 && len(e.judges) > 0 {
		notes = append(notes, "all judges failed the hallucination rubric; hallucination metrics are neutral defaults")
	}
	return qualities, hallucinations, notes
}

func reconcileQuality(verdicts []qualityVerdict) OutputQualityMetrics {
	if len(verdicts) == 0 {
		return OutputQualityMetrics{
			FactualAccuracy:  neutralScore,
			LogicalCoherence: neutralScore,
			Relevance:        neutralScore,
			Score:            neutralScore,
		}
	}
	weights := make([]float64, len(verdicts))
	factual := make([]float64, len(verdicts))
	coherence := make([]float64, len(verdicts))
	relevance := make([]float64, len(verdicts))
	overall := make([]float64, len(verdicts))
	for i, v := range verdicts {
		weights[i] = v.weight
		factual[i] = v.judgment.FactualAccuracy
		coherence[i] = v.judgment.LogicalCoherence
		relevance[i] = v.judgment.Relevance
		overall[i] = v.judgment.Score()
	}
	score, disagreement := reconcile(overall, weights)
	fa, _ := reconcile(factual, weights)
	lc, _ := reconcile(coherence, weights)
	rel, _ := reconcile(relevance, weights)
	return OutputQualityMetrics{
		FactualAccuracy:  fa,
		LogicalCoherence: lc,
		Relevance:        rel,
		Score:            score,
		Disagreement:     disagreement,
		JudgeCount:       len(verdicts),
	}
}

// reconcileHallucination takes the median flag count, the most pessimistic
// citation accuracy, and folds invalid citation markers found by the
// deterministic pass into the accuracy floor.
func reconcileHallucination(verdicts []hallucinationVerdict, content ContentMetrics) HallucinationMetrics {
	accuracy := 1.0
	count := 0
	disagreement := false
	var examples []FlaggedStatement
	if len(verdicts) > 0 {
		counts := make([]int, len(verdicts))
		accuracies := make([]float64, len(verdicts))
		perJudge := make([][]FlaggedStatement, len(verdicts))
		for i, v := range verdicts {
			counts[i] = v.judgment.Count
			accuracies[i] = v.judgment.CitationAccuracy
			perJudge[i] = v.judgment.Examples
		}
		count = medianInt(counts)
		accuracy = minFloat(accuracies)
		examples = mergeExamples(perJudge)
		floatCounts := make([]float64, len(counts))
		for i, c := range counts {
			floatCounts[i] = float64(c)
		}
		disagreement = spread(floatCounts) >= disagreementSpread
	}

	if content.CitationCount > 0 && content.InvalidCitations > 0 {
		markerAccuracy := float64(content.CitationCount-content.InvalidCitations) / float64(content.CitationCount)
		if markerAccuracy < accuracy {
			accuracy = markerAccuracy
		}
	}

	return HallucinationMetrics{
		Count:            count,
		CitationAccuracy: accuracy,
		Rate:             1 - accuracy,
		Examples:         examples,
		Disagreement:     disagreement,
		JudgeCount:       len(verdicts),
	}
}

func formatSourceList(sources []tools.SearchResult) string {
	var b strings.Builder
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] (%s) %s\n%s\n\n", i, src.Source, src.Title, src.Content)
	}
	return b.String()
}

func gradeFor(score float64) Grade {
	switch {
	case score >= 9.5:
		return GradeAPlus
	case score >= 9.0:
		return GradeA
	case score >= 8.5:
		return GradeBPlus
	case score >= 8.0:
		return GradeB
	case score >= 7.5:
		return GradeCPlus
	case score >= 7.0:
		return GradeC
	case score >= 6.0:
		return GradeD
	default:
		return GradeF
	}
}

const maxSummaryItems = 5

func summarize(r EvaluationResult) (strengths, weaknesses, recommendations []string) {
	add := func(list []string, item string) []string {
		if len(list) < maxSummaryItems {
			list = append(list, item)
		}
		return list
	}

	if r.TaskSuccess.Status == TaskCompleteSuccess {
		strengths = add(strengths, "task fully addressed")
	}
	if r.OutputQuality.Score >= 8 {
		strengths = add(strengths, "strong output quality across the judge panel")
	}
	if r.Hallucination.Rate <= 0.05 && r.Hallucination.Count == 0 {
		strengths = add(strengths, "no unsupported claims flagged")
	}
	if r.Completeness.Rate >= 0.9 {
		strengths = add(strengths, "complete coverage of the expected structure")
	}
	if r.Efficiency.Score >= 9 {
		strengths = add(strengths, "efficient execution")
	}

	if r.TaskSuccess.Status == TaskFailure {
		weaknesses = add(weaknesses, "report does not address the task")
		recommendations = add(recommendations, "revisit the plan: the report misses most of the expected content")
	}
	if r.Hallucination.Rate > 0.2 {
		weaknesses = add(weaknesses, "high hallucination rate")
		recommendations = add(recommendations, "tighten citation discipline; every claim needs a supporting source marker")
	}
	if r.Content.InvalidCitations > 0 {
		weaknesses = add(weaknesses, fmt.Sprintf("%d citation markers point outside the source list", r.Content.InvalidCitations))
		recommendations = add(recommendations, "constrain citation indexes to the data dictionary handed to the writer")
	}
	if r.Completeness.SectionRate < 0.5 {
		weaknesses = add(weaknesses, "too few sections for a full report")
		recommendations = add(recommendations, "expand the structure design toward six or more sections")
	}
	if r.Efficiency.Score < 7 {
		weaknesses = add(weaknesses, "execution was slow or wasteful")
		recommendations = add(recommendations, "merge redundant retrieval steps and cap token usage")
	}
	if r.OutputQuality.Disagreement {
		weaknesses = add(weaknesses, "judge panel disagreed on quality")
	}
	return strengths, weaknesses, recommendations
}
