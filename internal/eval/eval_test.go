package eval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"reportengine/backend/internal/tools"
)

type stubJudge struct {
	name              string
	weight            float64
	quality           QualityJudgment
	hallucination     HallucinationJudgment
	failQuality       bool
	failHallucination bool
}

func (s stubJudge) Name() string    { return s.name }
func (s stubJudge) Weight() float64 { return s.weight }

func (s stubJudge) JudgeQuality(ctx context.Context, input JudgeInput) (QualityJudgment, error) {
	if s.failQuality {
		return QualityJudgment{}, errors.New("judge down")
	}
	return s.quality, nil
}

func (s stubJudge) JudgeHallucination(ctx context.Context, input JudgeInput) (HallucinationJudgment, error) {
	if s.failHallucination {
		return HallucinationJudgment{}, errors.New("judge down")
	}
	return s.hallucination, nil
}

func flatJudge(name string, score float64, h HallucinationJudgment) stubJudge {
	return stubJudge{
		name:   name,
		weight: 1,
		quality: QualityJudgment{
			FactualAccuracy:  score,
			LogicalCoherence: score,
			Relevance:        score,
		},
		hallucination: h,
	}
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReconcileDisagreementFallsBackToMedian(t *testing.T) {
	score, disagreement := reconcile([]float64{9, 9, 4}, []float64{1, 1, 1})
	if !disagreement {
		t.Fatal("expected disagreement flag for spread 5.0")
	}
	approx(t, score, 9)
}

func TestReconcileAgreementUsesWeightedAverage(t *testing.T) {
	score, disagreement := reconcile([]float64{8, 7, 9}, []float64{1, 1, 1})
	if disagreement {
		t.Fatal("spread 2.0 should not flag disagreement")
	}
	approx(t, score, 8)
}

func TestReconcileHallucinationMedianCountMinAccuracy(t *testing.T) {
	verdicts := []hallucinationVerdict{
		{weight: 1, judgment: HallucinationJudgment{Count: 0, CitationAccuracy: 1.0}},
		{weight: 1, judgment: HallucinationJudgment{Count: 2, CitationAccuracy: 0.9}},
		{weight: 1, judgment: HallucinationJudgment{Count: 1, CitationAccuracy: 0.95}},
	}
	m := reconcileHallucination(verdicts, ContentMetrics{})
	if m.Count != 1 {
		t.Fatalf("median count = %d, want 1", m.Count)
	}
	approx(t, m.CitationAccuracy, 0.9)
	approx(t, m.Rate, 1-0.9)
}

func TestMergeExamplesDedupesAndCaps(t *testing.T) {
	var perJudge [][]FlaggedStatement
	for j := 0; j < 3; j++ {
		var list []FlaggedStatement
		for i := 0; i < 6; i++ {
			list = append(list, FlaggedStatement{
				Statement: fmt.Sprintf("claim %d", i),
				Severity:  1,
				Category:  "unfounded-claim",
			})
		}
		perJudge = append(perJudge, list)
	}
	merged := mergeExamples(perJudge)
	if len(merged) != 6 {
		t.Fatalf("duplicates across judges should collapse, got %d", len(merged))
	}

	perJudge = nil
	for j := 0; j < 3; j++ {
		var list []FlaggedStatement
		for i := 0; i < 6; i++ {
			list = append(list, FlaggedStatement{Statement: fmt.Sprintf("judge %d claim %d", j, i)})
		}
		perJudge = append(perJudge, list)
	}
	if merged := mergeExamples(perJudge); len(merged) != maxExamples {
		t.Fatalf("merged examples = %d, want cap %d", len(merged), maxExamples)
	}
}

func TestSectionRateBoundaries(t *testing.T) {
	approx(t, sectionRate(0), 0)
	approx(t, sectionRate(3), 0.25)
	approx(t, sectionRate(6), 1.0)
	approx(t, sectionRate(9), 1.0)
	if sectionRate(4) <= sectionRate(3) || sectionRate(5) <= sectionRate(4) {
		t.Fatal("section rate should grow between floor and target")
	}
}

func TestEfficiencyPenaltyBands(t *testing.T) {
	base := scoreEfficiency(59, 0, 0, 0).Score
	over := scoreEfficiency(61, 0, 0, 0).Score
	approx(t, base-over, 1.5)

	under := scoreEfficiency(119, 0, 0, 0).Score
	way := scoreEfficiency(121, 0, 0, 0).Score
	approx(t, under, 10-1.5)
	approx(t, way, 10-3.0)

	if got := scoreEfficiency(30, 4, 60_000, 600_000).Score; got != 10-1.0-1.0-1.0 {
		t.Fatalf("stacked penalties = %v, want 7.0", got)
	}
	if got := scoreEfficiency(200, 10, 200_000, 2_000_000).Score; got != 10-3.0-2.0-2.0-2.0 {
		t.Fatalf("max penalties = %v, want 1.0", got)
	}
}

func TestParseCitations(t *testing.T) {
	text := "Claim one. [SOURCE:0] Claim two. [SOURCE:1,2] Bad claim. [SOURCE:9]"
	indexes, invalid := parseCitations(text, 3)
	if len(indexes) != 4 {
		t.Fatalf("parsed %d indexes, want 4", len(indexes))
	}
	if invalid != 1 {
		t.Fatalf("invalid = %d, want 1", invalid)
	}
}

func TestSourceQualityDiversity(t *testing.T) {
	sources := []tools.SearchResult{
		{Source: tools.WebSearch, Score: 0.8},
		{Source: tools.VectorDB, Score: 0.6, Metadata: map[string]string{"doc_type": "contract"}},
		{Source: tools.VectorDB, Score: 0.6, Metadata: map[string]string{"doc_type": "invoice"}},
		{Source: tools.GraphDB, Score: 0.6},
	}
	m := scoreSourceQuality(sources)
	if m.DistinctTypes != 4 {
		t.Fatalf("distinct types = %d, want 4", m.DistinctTypes)
	}
	approx(t, m.MeanRelevance, 0.65)
	approx(t, m.Score, 0.5*0.65*10+0.5*(4.0/8.0)*10)
}

func TestGradeTable(t *testing.T) {
	cases := []struct {
		score float64
		want  Grade
	}{
		{9.5, GradeAPlus},
		{9.2, GradeA},
		{8.7, GradeBPlus},
		{8.0, GradeB},
		{7.6, GradeCPlus},
		{7.0, GradeC},
		{6.4, GradeD},
		{5.9, GradeF},
	}
	for _, tc := range cases {
		if got := gradeFor(tc.score); got != tc.want {
			t.Fatalf("gradeFor(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func cleanReportText() string {
	var b strings.Builder
	b.WriteString("# Market report\n\n")
	for _, h := range []string{"Introduction", "Market overview", "Pricing analysis", "Risks", "Conclusion", "Sources"} {
		fmt.Fprintf(&b, "## %s\n\n", h)
		b.WriteString(strings.Repeat("Supported claim with evidence. [SOURCE:0] ", 6))
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestEvaluateCleanReport(t *testing.T) {
	clean := HallucinationJudgment{Count: 0, CitationAccuracy: 1.0}
	engine := NewEngine([]Judge{
		flatJudge("a", 9, clean),
		flatJudge("b", 9, clean),
		flatJudge("c", 8, clean),
	}, nil)

	result := engine.Evaluate(context.Background(), Input{
		Query:         "analyze the market",
		ReportText:    cleanReportText(),
		Sources:       []tools.SearchResult{{Source: tools.WebSearch, Score: 0.9, Title: "a"}},
		ExecutionTime: 30 * time.Second,
	})

	if result.Hallucination.Rate != 0 {
		t.Fatalf("clean report hallucination rate = %v, want 0", result.Hallucination.Rate)
	}
	if result.TaskSuccess.Status != TaskCompleteSuccess {
		t.Fatalf("status = %s, want %s", result.TaskSuccess.Status, TaskCompleteSuccess)
	}
	approx(t, result.Completeness.SectionRate, 1.0)
	if result.OverallScore <= 0 || result.OverallScore > 10 {
		t.Fatalf("overall score out of range: %v", result.OverallScore)
	}
	if result.Grade == GradeF {
		t.Fatalf("clean report graded F (overall %v)", result.OverallScore)
	}
}

func TestEvaluateAllJudgesFailedUsesNeutralDefaults(t *testing.T) {
	engine := NewEngine([]Judge{
		stubJudge{name: "a", weight: 1, failQuality: true, failHallucination: true},
		stubJudge{name: "b", weight: 1, failQuality: true, failHallucination: true},
	}, nil)

	result := engine.Evaluate(context.Background(), Input{
		Query:      "q",
		ReportText: cleanReportText(),
		Sources:    []tools.SearchResult{{Source: tools.WebSearch, Score: 0.5}},
	})

	approx(t, result.OutputQuality.Score, neutralScore)
	if result.OutputQuality.JudgeCount != 0 {
		t.Fatalf("judge count = %d, want 0", result.OutputQuality.JudgeCount)
	}
	approx(t, result.Hallucination.CitationAccuracy, 1.0)
	if len(result.Notes) == 0 {
		t.Fatal("expected a note about the failed panel")
	}
}

func TestEvaluateSingleJudgeFailureRenormalizes(t *testing.T) {
	clean := HallucinationJudgment{CitationAccuracy: 1.0}
	engine := NewEngine([]Judge{
		flatJudge("a", 8, clean),
		stubJudge{name: "b", weight: 1, failQuality: true, failHallucination: true},
		flatJudge("c", 6, clean),
	}, nil)

	result := engine.Evaluate(context.Background(), Input{
		Query:      "q",
		ReportText: cleanReportText(),
		Sources:    []tools.SearchResult{{Source: tools.WebSearch, Score: 0.5}},
	})
	if result.OutputQuality.JudgeCount != 2 {
		t.Fatalf("judge count = %d, want 2", result.OutputQuality.JudgeCount)
	}
	approx(t, result.OutputQuality.Score, 7)
}

func TestEvaluateRubricFailuresAreScopedPerField(t *testing.T) {
	clean := HallucinationJudgment{CitationAccuracy: 1.0}
	half := stubJudge{
		name:   "b",
		weight: 1,
		quality: QualityJudgment{
			FactualAccuracy:  6,
			LogicalCoherence: 6,
			Relevance:        6,
		},
		failHallucination: true,
	}
	engine := NewEngine([]Judge{
		flatJudge("a", 8, clean),
		half,
		flatJudge("c", 6, clean),
	}, nil)

	result := engine.Evaluate(context.Background(), Input{
		Query:      "q",
		ReportText: cleanReportText(),
		Sources:    []tools.SearchResult{{Source: tools.WebSearch, Score: 0.5}},
	})
	if result.OutputQuality.JudgeCount != 3 {
		t.Fatalf("quality judge count = %d, want 3", result.OutputQuality.JudgeCount)
	}
	if result.Hallucination.JudgeCount != 2 {
		t.Fatalf("hallucination judge count = %d, want 2", result.Hallucination.JudgeCount)
	}
	approx(t, result.OutputQuality.Score, (8+6+6)/3.0)
	approx(t, result.Hallucination.CitationAccuracy, 1.0)
}

type recordingCompleter struct {
	prompts []string
}

func (r *recordingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	return `{"factual_accuracy": 8, "logical_coherence": 8, "relevance": 8, "reasoning": "ok"}`, nil
}

func TestQualityPromptCarriesSources(t *testing.T) {
	completer := &recordingCompleter{}
	judge := NewLLMJudge("gpt-4o", 1, completer)

	const sourceLine = "[0] (web_search) Berlin market brief"
	_, err := judge.JudgeQuality(context.Background(), JudgeInput{
		Query:      "berlin market",
		ReportText: "## Findings\nPrices rose. [SOURCE:0]",
		SourceList: sourceLine + "\nPrices rose 4% year over year.\n",
	})
	if err != nil {
		t.Fatalf("JudgeQuality: %v", err)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("prompts recorded = %d, want 1", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[0], sourceLine) {
		t.Fatalf("quality prompt is missing the source list:\n%s", completer.prompts[0])
	}
}

func TestInvalidCitationLowersAccuracyFloor(t *testing.T) {
	verdicts := []hallucinationVerdict{
		{weight: 1, judgment: HallucinationJudgment{CitationAccuracy: 1.0}},
	}
	m := reconcileHallucination(verdicts, ContentMetrics{CitationCount: 4, InvalidCitations: 1})
	approx(t, m.CitationAccuracy, 0.75)
}

func TestSchemaRateSubstringMatch(t *testing.T) {
	headers := []string{"Executive summary", "Price comparison", "Vendor risks"}
	rate := schemaRate(context.Background(), nil, []string{"price", "delivery"}, headers)
	approx(t, rate, 0.5)
}

type fixedSim struct{ score float64 }

func (f fixedSim) Similarity(ctx context.Context, a, b string) (float64, error) {
	return f.score, nil
}

func TestSchemaRateSimilarityFallback(t *testing.T) {
	headers := []string{"Cost breakdown"}
	if rate := schemaRate(context.Background(), fixedSim{0.8}, []string{"pricing"}, headers); rate != 1.0 {
		t.Fatalf("similarity above threshold should match, got %v", rate)
	}
	if rate := schemaRate(context.Background(), fixedSim{0.4}, []string{"pricing"}, headers); rate != 0.0 {
		t.Fatalf("similarity below threshold should not match, got %v", rate)
	}
}
