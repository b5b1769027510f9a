package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many CPU-heavy jobs (extraction, local embedding) run at
// once across all executions in the process.
type Pool struct {
	sem *semaphore.Weighted
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Do runs fn on a pool slot and waits for it. If ctx ends first Do returns
// ctx.Err(); fn keeps its slot until it returns.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
