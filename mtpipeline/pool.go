// Package mtpipeline implements the Multi-Threaded DST Pipeline (spec.md
// §4.5): one reader goroutine per open file, a shared worker pool bounded
// by a semaphore, and a per-file ordered result queue that preserves
// dispatch order regardless of completion order.
package mtpipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool is the shared worker pool (spec.md §6.4), bounding the number of
// concurrent decode goroutines across every open MT pipeline.
type Pool struct {
	n   int
	sem *semaphore.Weighted
}

// NewPool creates a pool with n worker slots.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{n: n, sem: semaphore.NewWeighted(int64(n))}
}

// Size returns the configured worker count.
func (p *Pool) Size() int { return p.n }

// acquire blocks until a worker slot is free.
func (p *Pool) acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

func (p *Pool) release() {
	p.sem.Release(1)
}
