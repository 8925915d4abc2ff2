package plugin

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool is the blocking-thread pool spec.md §4.2 requires every vtable call
// run on: "never on the async scheduler: plugins are allowed to do
// blocking I/O and must not starve cooperative tasks." Each call gets its
// own goroutine; Weighted bounds how many run concurrently.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool constructs a pool that allows at most maxConcurrent plugin calls
// in flight at once.
func NewPool(maxConcurrent int64) *Pool {
	return &Pool{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Run acquires a pool slot, runs fn on a dedicated goroutine, and blocks
// until it completes or ctx is done. A panic inside fn must be recovered
// by fn itself (see recoverPanic); Run does not recover on its behalf so
// that callers can distinguish a bridge bug from a plugin bug.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
