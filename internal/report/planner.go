package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"reportengine/backend/internal/tools"
)

// GraphProber is the cheap, side-effect-free graph presence pre-check.
type GraphProber interface {
	Probe(ctx context.Context, query string) tools.ProbeSignals
}

// Planner turns a query, persona, and probe signals into an execution plan.
// Malformed model output falls back to a deterministic single-step plan; the
// planner never fails a run.
type Planner struct {
	completer Completer
	prober    GraphProber
	probeOn   bool
}

func NewPlanner(completer Completer, prober GraphProber, probeEnabled bool) Planner {
	return Planner{completer: completer, prober: prober, probeOn: probeEnabled}
}

// GeneratePlan produces the plan for one run. The probe is optional; when it
// is disabled or the prober is absent, all graph signals default to false,
// which keeps graph sub-questions out of the plan without changing its
// legality.
func (p Planner) GeneratePlan(ctx context.Context, query string, persona Persona) Plan {
	probe := tools.ProbeSignals{}
	probeSkipped := true
	if p.probeOn && p.prober != nil {
		probe = p.prober.Probe(ctx, query)
		probeSkipped = false
	}

	plan, err := p.planFromModel(ctx, query, persona, probe, probeSkipped)
	if err != nil {
		log.Printf("plan fallback used: persona=%s err=%v", persona.Name, err)
		return FallbackPlan(query)
	}
	return plan
}

func (p Planner) planFromModel(ctx context.Context, query string, persona Persona, probe tools.ProbeSignals, probeSkipped bool) (Plan, error) {
	if p.completer == nil {
		return Plan{}, errors.New("planner completer unavailable")
	}
	prompt, err := renderPlannerPrompt(PlannerPromptParams{
		Query:        query,
		Persona:      persona,
		Probe:        probe,
		ProbeSkipped: probeSkipped,
	})
	if err != nil {
		return Plan{}, err
	}
	raw, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return Plan{}, err
	}
	return ParsePlan(raw, probe)
}

// ParsePlan validates model output against the plan shape. Step numbers must
// be 1-based and strictly increasing, every sub-question must bind to a known
// tool, and graph sub-questions are dropped when the probe reported no graph
// presence.
func ParsePlan(raw string, probe tools.ProbeSignals) (Plan, error) {
	jsonRaw := extractJSONBlock(raw)
	if jsonRaw == "" {
		return Plan{}, errors.New("planner response did not include json")
	}

	var parsed struct {
		Title          string `json:"title"`
		Reasoning      string `json:"reasoning"`
		ExecutionSteps []struct {
			Step         int    `json:"step"`
			Reasoning    string `json:"reasoning"`
			SubQuestions []struct {
				Question string `json:"question"`
				Tool     string `json:"tool"`
			} `json:"sub_questions"`
		} `json:"execution_steps"`
	}
	decoder := json.NewDecoder(strings.NewReader(jsonRaw))
	if err := decoder.Decode(&parsed); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if len(parsed.ExecutionSteps) == 0 {
		return Plan{}, errors.New("plan has no execution steps")
	}

	plan := Plan{
		Title:     strings.TrimSpace(parsed.Title),
		Reasoning: strings.TrimSpace(parsed.Reasoning),
	}
	previousStep := 0
	for _, rawStep := range parsed.ExecutionSteps {
		if rawStep.Step <= previousStep {
			return Plan{}, fmt.Errorf("step numbers must be strictly increasing, got %d after %d", rawStep.Step, previousStep)
		}
		previousStep = rawStep.Step

		step := Step{Step: rawStep.Step, Reasoning: strings.TrimSpace(rawStep.Reasoning)}
		for _, rawSub := range rawStep.SubQuestions {
			question := strings.TrimSpace(rawSub.Question)
			if question == "" {
				continue
			}
			toolName, err := tools.ParseName(rawSub.Tool)
			if err != nil {
				return Plan{}, err
			}
			if toolName == tools.GraphDB && !probe.Any() {
				// The probe found nothing in the graph store; a graph
				// sub-question would only fetch emptiness.
				continue
			}
			step.SubQuestions = append(step.SubQuestions, SubQuestion{Question: question, Tool: toolName})
		}
		if len(step.SubQuestions) > 0 {
			plan.ExecutionSteps = append(plan.ExecutionSteps, step)
		}
	}
	if len(plan.ExecutionSteps) == 0 {
		return Plan{}, errors.New("plan has no usable sub-questions")
	}
	if plan.Title == "" {
		plan.Title = "Research report"
	}
	return plan, nil
}

// FallbackPlan is the hard guarantee behind every planning failure: one
// step, one sub-question, raw query against the vector store. It has no
// parse step and cannot fail.
func FallbackPlan(query string) Plan {
	return Plan{
		Title:     "Research report",
		Reasoning: "fallback plan after unparseable planner output",
		ExecutionSteps: []Step{{
			Step:      1,
			Reasoning: "single-pass retrieval of the original query",
			SubQuestions: []SubQuestion{{
				Question: strings.TrimSpace(query),
				Tool:     tools.VectorDB,
			}},
		}},
	}
}

func extractJSONBlock(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		return value
	}
	start := strings.Index(value, "{")
	end := strings.LastIndex(value, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(value[start : end+1])
}
