package report

import (
	"context"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"reportengine/backend/internal/tools"
)

const maxVectorHints = 3

// Task is one (tool, query) unit of retrieval work within a plan step.
type Task struct {
	Tool  tools.Name
	Query string
}

// Gatherer fans a batch of retrieval tasks out to tool adapters. One task's
// failure becomes an empty result list for that task and never aborts its
// siblings; partial results always beat aborting the step.
type Gatherer struct {
	registry tools.Registry
	pool     *WorkerPool
}

func NewGatherer(registry tools.Registry, pool *WorkerPool) Gatherer {
	if pool == nil {
		pool = NewWorkerPool(1)
	}
	return Gatherer{registry: registry, pool: pool}
}

// GatherParallel executes the batch and returns merged results in completion
// order. When graphToVector is set and the batch holds both graph and vector
// tasks, graph tasks run to completion first and their entity hints are
// spliced into the pending vector queries; everything else stays concurrent.
// A search_results event is emitted per completed task and one
// collection_complete event carries the merged total.
func (g Gatherer) GatherParallel(ctx context.Context, step int, taskList []Task, graphToVector bool, onEvent func(Event)) []tools.SearchResult {
	if len(taskList) == 0 {
		return nil
	}

	var merged []tools.SearchResult
	if graphToVector && hasTool(taskList, tools.GraphDB) && hasTool(taskList, tools.VectorDB) {
		graphTasks, rest := splitTasks(taskList, tools.GraphDB)
		graphResults := g.runBatch(ctx, step, graphTasks, onEvent)
		hints := tools.ExtractHints(graphResults)
		rest = spliceVectorHints(rest, hints)
		merged = append(graphResults, g.runBatch(ctx, step, rest, onEvent)...)
	} else {
		merged = g.runBatch(ctx, step, taskList, onEvent)
	}

	emitEvent(onEvent, Event{Type: EventCollectionComplete, Step: step, Collected: len(merged)})
	return merged
}

func (g Gatherer) runBatch(ctx context.Context, step int, taskList []Task, onEvent func(Event)) []tools.SearchResult {
	if len(taskList) == 0 {
		return nil
	}

	var mu sync.Mutex
	merged := make([]tools.SearchResult, 0, len(taskList)*4)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, task := range taskList {
		task := task
		group.Go(func() error {
			results := g.runTask(groupCtx, task)
			mu.Lock()
			merged = append(merged, results...)
			emitEvent(onEvent, Event{
				Type:    EventSearchResults,
				Step:    step,
				Tool:    task.Tool,
				Query:   task.Query,
				Results: results,
			})
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; failures were already converted to empty
	// result sets inside runTask.
	_ = group.Wait()
	return merged
}

func (g Gatherer) runTask(ctx context.Context, task Task) []tools.SearchResult {
	tool, err := g.registry.Lookup(task.Tool)
	if err != nil {
		log.Printf("gather task skipped: tool=%s err=%v", task.Tool, err)
		return nil
	}

	var results []tools.SearchResult
	err = g.pool.Do(ctx, func() error {
		var searchErr error
		results, searchErr = tool.Search(ctx, task.Query)
		return searchErr
	})
	if err != nil {
		log.Printf("gather task failed: tool=%s query_chars=%d err=%v", task.Tool, len(task.Query), err)
		return nil
	}
	return results
}

func hasTool(taskList []Task, name tools.Name) bool {
	for _, task := range taskList {
		if task.Tool == name {
			return true
		}
	}
	return false
}

func splitTasks(taskList []Task, name tools.Name) (matching, rest []Task) {
	for _, task := range taskList {
		if task.Tool == name {
			matching = append(matching, task)
		} else {
			rest = append(rest, task)
		}
	}
	return matching, rest
}

func spliceVectorHints(taskList []Task, hints []string) []Task {
	if len(hints) == 0 {
		return taskList
	}
	if len(hints) > maxVectorHints {
		hints = hints[:maxVectorHints]
	}
	suffix := strings.Join(hints, " ")
	out := make([]Task, len(taskList))
	for i, task := range taskList {
		if task.Tool == tools.VectorDB {
			task.Query = strings.TrimSpace(task.Query + " " + suffix)
		}
		out[i] = task
	}
	return out
}
