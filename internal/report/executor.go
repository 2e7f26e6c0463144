package report

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"reportengine/backend/internal/tools"
)

const (
	defaultStepContextBudget = 2000
	defaultSelectPerStep     = 12
)

var placeholderPattern = regexp.MustCompile(`\{\{STEP_(\d+)_RESULT\}\}`)

// Engine walks a plan step by step: steps are sequential, sub-questions
// within a step run as one gather batch. Accumulated per-step context feeds
// placeholder substitution in later steps.
type Engine struct {
	gatherer      Gatherer
	abort         *AbortRegistry
	contextBudget int
	selectPerStep int
}

func NewEngine(gatherer Gatherer, abort *AbortRegistry, contextBudget int) Engine {
	if contextBudget <= 0 {
		contextBudget = defaultStepContextBudget
	}
	return Engine{
		gatherer:      gatherer,
		abort:         abort,
		contextBudget: contextBudget,
		selectPerStep: defaultSelectPerStep,
	}
}

// Execute runs every plan step, mutating state in place. An abort observed
// at a step checkpoint emits the terminal abort event and returns ErrAborted;
// in-flight sub-questions of an already-dispatched step finish on their own.
// All-empty steps are not fatal, and total retrieval failure surfaces as an
// empty collected list, which downstream components treat as valid input.
func (e Engine) Execute(ctx context.Context, state *SessionState, onEvent func(Event)) error {
	for _, step := range state.Plan.ExecutionSteps {
		if e.abort != nil && e.abort.IsRequested(state.RunID) {
			emitEvent(onEvent, Event{Type: EventAbort, Message: fmt.Sprintf("run aborted before step %d", step.Step)})
			return ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		emitEvent(onEvent, Event{
			Type:    EventStatus,
			Step:    step.Step,
			Message: fmt.Sprintf("executing step %d of %d", step.Step, len(state.Plan.ExecutionSteps)),
		})

		taskList := make([]Task, 0, len(step.SubQuestions))
		graphToVector := false
		for _, sub := range step.SubQuestions {
			taskList = append(taskList, Task{
				Tool:  sub.Tool,
				Query: ResolvePlaceholders(sub.Question, state.StepContext),
			})
		}
		if hasTool(taskList, tools.GraphDB) && hasTool(taskList, tools.VectorDB) {
			graphToVector = true
		}

		results := e.gatherer.GatherParallel(ctx, step.Step, taskList, graphToVector, onEvent)

		firstIndex := len(state.Collected)
		state.Collected = append(state.Collected, results...)
		state.StepContext[step.Step] = summarizeStep(results, e.contextBudget)
		e.selectRelevant(state, firstIndex, len(results))

		log.Printf("step completed: run_id=%s step=%d tasks=%d results=%d total=%d",
			state.RunID, step.Step, len(taskList), len(results), len(state.Collected))
	}
	return nil
}

// ResolvePlaceholders substitutes each {{STEP_n_RESULT}} token with the
// accumulated context for step n. It is a single-pass string operation with
// no recursive expansion; tokens for absent steps are left unchanged.
func ResolvePlaceholders(question string, stepContext map[int]string) string {
	return placeholderPattern.ReplaceAllStringFunc(question, func(token string) string {
		match := placeholderPattern.FindStringSubmatch(token)
		stepNumber, err := strconv.Atoi(match[1])
		if err != nil {
			return token
		}
		resolved, ok := stepContext[stepNumber]
		if !ok {
			return token
		}
		return resolved
	})
}

// summarizeStep concatenates result contents bounded to the context budget,
// truncating on a word boundary so later placeholder substitution never
// splices a half-word into a query.
func summarizeStep(results []tools.SearchResult, budget int) string {
	var builder strings.Builder
	for _, result := range results {
		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		builder.WriteString(strings.TrimSpace(result.Content))
		if builder.Len() >= budget {
			break
		}
	}
	return truncateOnWordBoundary(builder.String(), budget)
}

func truncateOnWordBoundary(raw string, budget int) string {
	if budget <= 0 || len(raw) <= budget {
		return raw
	}
	cut := raw[:budget]
	if lastSpace := strings.LastIndexAny(cut, " \n\t"); lastSpace > 0 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut)
}

// selectRelevant marks the top-scored results of the step as most relevant
// so far. Selection bounds what the structurer considers without discarding
// anything from the collected list.
func (e Engine) selectRelevant(state *SessionState, firstIndex, count int) {
	if count == 0 {
		return
	}
	type indexed struct {
		index int
		score float64
	}
	candidates := make([]indexed, 0, count)
	for i := 0; i < count; i++ {
		candidates = append(candidates, indexed{
			index: firstIndex + i,
			score: state.Collected[firstIndex+i].Score,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	limit := e.selectPerStep
	if limit > len(candidates) {
		limit = len(candidates)
	}
	for _, candidate := range candidates[:limit] {
		state.SelectedIndexes[candidate.index] = struct{}{}
	}
}

// SelectedOrdered returns the selected indexes in ascending order, falling
// back to every collected index when nothing was selected.
func SelectedOrdered(state *SessionState) []int {
	if len(state.SelectedIndexes) == 0 {
		all := make([]int, len(state.Collected))
		for i := range state.Collected {
			all[i] = i
		}
		return all
	}
	selected := make([]int, 0, len(state.SelectedIndexes))
	for index := range state.SelectedIndexes {
		selected = append(selected, index)
	}
	sort.Ints(selected)
	return selected
}
