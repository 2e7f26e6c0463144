package report

import "sync"

// AbortRegistry tracks cooperative abort requests keyed by run id. The
// pipeline polls it at its checkpoints; already-dispatched work runs to
// completion and is discarded, never hard-killed.
type AbortRegistry struct {
	mu        sync.Mutex
	requested map[string]struct{}
}

func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{requested: make(map[string]struct{})}
}

func (r *AbortRegistry) Request(runID string) {
	if runID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requested[runID] = struct{}{}
}

func (r *AbortRegistry) IsRequested(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.requested[runID]
	return ok
}

// Release clears a run's abort flag once the run has fully terminated.
func (r *AbortRegistry) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requested, runID)
}
