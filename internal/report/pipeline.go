package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Pipeline wires the full run: probe → plan → execute → structure → stream.
type Pipeline struct {
	Planner    Planner
	Engine     Engine
	Structurer Structurer
	Streamer   Streamer
	Abort      *AbortRegistry
}

// RunResult is everything a finished run hands to persistence and the
// evaluation engine.
type RunResult struct {
	RunID      string
	Query      string
	Persona    string
	Plan       Plan
	Sections   []ReportSection
	ReportText string
	Collected  int
	StepCount  int
	Duration   time.Duration
	TokensUsed int
	CostMicros int
	Aborted    bool
	State      *SessionState
}

// Run executes one query end to end, emitting progress events along the way.
// Aborts return a result with Aborted set and no error; only a structure
// design failure terminates the run without a report.
func (p Pipeline) Run(ctx context.Context, runID, query, personaName string, onEvent func(Event)) (RunResult, error) {
	persona := GetPersona(personaName)
	state := NewSessionState(runID, query, persona)
	if p.Abort != nil {
		defer p.Abort.Release(runID)
	}

	log.Printf("report run start: run_id=%s persona=%s query_chars=%d", runID, persona.Name, len(query))
	emitEvent(onEvent, Event{Type: EventStatus, Message: "planning retrieval"})

	state.Plan = p.Planner.GeneratePlan(ctx, query, persona)
	emitEvent(onEvent, Event{Type: EventPlan, Plan: &state.Plan})

	if err := p.Engine.Execute(ctx, state, onEvent); err != nil {
		if errors.Is(err, ErrAborted) {
			return p.abortedResult(state), nil
		}
		return RunResult{}, err
	}

	dict := BuildDataDictionary(state.Collected)
	emitEvent(onEvent, Event{Type: EventStatus, Message: fmt.Sprintf("designing report structure from %d sources", len(dict))})

	sections, err := p.Structurer.DesignStructure(ctx, state, dict)
	if err != nil {
		emitEvent(onEvent, Event{Type: EventError, Message: "could not design report structure"})
		return RunResult{}, err
	}

	reportText, err := p.Streamer.StreamSections(ctx, state, sections, dict, onEvent)
	if err != nil {
		if errors.Is(err, ErrAborted) {
			result := p.abortedResult(state)
			result.Sections = sections
			result.ReportText = reportText
			return result, nil
		}
		return RunResult{}, err
	}

	result := RunResult{
		RunID:      runID,
		Query:      query,
		Persona:    persona.Name,
		Plan:       state.Plan,
		Sections:   sections,
		ReportText: reportText,
		Collected:  len(state.Collected),
		StepCount:  len(state.Plan.ExecutionSteps),
		Duration:   time.Since(state.StartedAt),
		State:      state,
	}
	emitEvent(onEvent, Event{
		Type:      EventFinalComplete,
		Message:   "report complete",
		Collected: len(state.Collected),
	})
	log.Printf("report run completed: run_id=%s sections=%d collected=%d elapsed_ms=%d",
		runID, len(sections), len(state.Collected), result.Duration.Milliseconds())
	return result, nil
}

func (p Pipeline) abortedResult(state *SessionState) RunResult {
	log.Printf("report run aborted: run_id=%s collected=%d", state.RunID, len(state.Collected))
	return RunResult{
		RunID:     state.RunID,
		Query:     state.OriginalQuery,
		Persona:   state.Persona.Name,
		Plan:      state.Plan,
		Collected: len(state.Collected),
		StepCount: len(state.Plan.ExecutionSteps),
		Duration:  time.Since(state.StartedAt),
		Aborted:   true,
		State:     state,
	}
}
