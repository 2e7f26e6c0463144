package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"reportengine/backend/internal/tools"
)

// routingCompleter answers the planner and structurer prompts with canned
// JSON, routed by prompt text.
type routingCompleter struct {
	planJSON      string
	structureJSON string
}

func (r routingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "research planner"):
		return r.planJSON, nil
	case strings.Contains(prompt, "section structure"):
		return r.structureJSON, nil
	default:
		return "", errors.New("unexpected prompt")
	}
}

func testPipeline(completer Completer, script sectionScript, registry tools.Registry, abort *AbortRegistry) Pipeline {
	return Pipeline{
		Planner:    NewPlanner(completer, nil, false),
		Engine:     NewEngine(NewGatherer(registry, NewWorkerPool(4)), abort, 0),
		Structurer: NewStructurer(completer),
		Streamer:   NewStreamer(script, nil, abort),
		Abort:      abort,
	}
}

func TestPipelineRunEndToEnd(t *testing.T) {
	completer := routingCompleter{
		planJSON: `{"title": "Vendor report", "execution_steps": [
			{"step": 1, "sub_questions": [{"question": "vendors", "tool": "web_search"}]}
		]}`,
		structureJSON: `{"sections": [
			{"section_title": "Overview", "description": "d", "use_indexes": [0]}
		]}`,
	}
	script := sectionScript{chunks: map[string][]string{
		"Overview": {"Vendors compared. [SOURCE:0] "},
	}}
	registry := tools.Registry{
		Web: stubTool{name: tools.WebSearch, results: []tools.SearchResult{webResult("vendor data", 0.9)}},
	}

	pipeline := testPipeline(completer, script, registry, NewAbortRegistry())

	var events []Event
	result, err := pipeline.Run(context.Background(), "run-9", "compare vendors", "general", collectEvents(&events))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Aborted {
		t.Fatal("run should not be aborted")
	}
	if result.Collected != 1 || result.StepCount != 1 {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.ReportText, "# Vendor report") || !strings.Contains(result.ReportText, "Vendors compared. [SOURCE:0]") {
		t.Fatalf("report text:\n%s", result.ReportText)
	}

	var sawPlan, sawFinal bool
	for _, e := range events {
		switch e.Type {
		case EventPlan:
			sawPlan = true
			if e.Plan == nil || e.Plan.Title != "Vendor report" {
				t.Fatalf("plan event payload = %+v", e.Plan)
			}
		case EventFinalComplete:
			sawFinal = true
		}
	}
	if !sawPlan || !sawFinal {
		t.Fatalf("missing plan/final events: plan=%t final=%t", sawPlan, sawFinal)
	}
}

func TestPipelineRunAbortReturnsPartialResultWithoutError(t *testing.T) {
	completer := routingCompleter{
		planJSON: `{"execution_steps": [
			{"step": 1, "sub_questions": [{"question": "a", "tool": "web_search"}]}
		]}`,
	}
	registry := tools.Registry{
		Web: stubTool{name: tools.WebSearch, results: []tools.SearchResult{webResult("x", 0.5)}},
	}
	abort := NewAbortRegistry()
	abort.Request("run-10")

	pipeline := testPipeline(completer, sectionScript{}, registry, abort)

	result, err := pipeline.Run(context.Background(), "run-10", "q", "general", nil)
	if err != nil {
		t.Fatalf("abort must not surface as an error, got %v", err)
	}
	if !result.Aborted {
		t.Fatal("result should be marked aborted")
	}
	// The registry entry is released when the run terminates.
	if abort.IsRequested("run-10") {
		t.Fatal("abort flag should be released after the run")
	}
}

func TestPipelineRunStructureFailureIsTerminal(t *testing.T) {
	completer := routingCompleter{
		planJSON: `{"execution_steps": [
			{"step": 1, "sub_questions": [{"question": "a", "tool": "web_search"}]}
		]}`,
		structureJSON: "not json at all",
	}
	registry := tools.Registry{
		Web: stubTool{name: tools.WebSearch, results: []tools.SearchResult{webResult("x", 0.5)}},
	}

	pipeline := testPipeline(completer, sectionScript{}, registry, NewAbortRegistry())

	var events []Event
	_, err := pipeline.Run(context.Background(), "run-11", "q", "general", collectEvents(&events))
	var structureErr StructureDesignError
	if !errors.As(err, &structureErr) {
		t.Fatalf("err = %v, want StructureDesignError", err)
	}

	sawError := false
	for _, e := range events {
		if e.Type == EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("terminal failure should emit an error event")
	}
}
