// Package pool bounds the number of provider fetches and cache I/O operations
// running at once. All provider clients share one pool so a slow upstream
// cannot starve the process of goroutines.
package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool is a fixed-size worker budget. It does not own goroutines; callers run
// their work on their own goroutine once a slot is acquired, so retry backoff
// sleeps stay on the worker performing the request.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New returns a pool admitting at most size concurrent tasks. Size below one
// is coerced to one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Do blocks until a worker slot is free (or ctx is done), runs fn, and
// releases the slot. The context error is returned when acquisition fails.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Size reports the configured worker budget.
func (p *Pool) Size() int {
	return int(p.size)
}
