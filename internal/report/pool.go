package report

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds the number of tool calls in flight process-wide so that
// blocking upstream I/O cannot starve the scheduler. It is constructed once
// at application start and injected into every component that dispatches
// tool work; FIFO, no priority tiers.
type WorkerPool struct {
	slots    *semaphore.Weighted
	capacity int
}

func NewWorkerPool(capacity int) *WorkerPool {
	if capacity < 1 {
		capacity = 1
	}
	return &WorkerPool{
		slots:    semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

func (p *WorkerPool) Capacity() int { return p.capacity }

// Do runs fn while holding one pool slot, waiting for a slot if the pool is
// saturated. Context cancellation while waiting returns the context error
// without running fn.
func (p *WorkerPool) Do(ctx context.Context, fn func() error) error {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.slots.Release(1)
	return fn()
}
