package worker

import (
	"context"
	"errors"
)

// Pool bounds concurrent CPU/GPU-heavy work (generation calls, speech
// inference) so a single long-running task cannot stall message handling for
// other users. Callers run on their own goroutines and block in Do until a
// slot is free or their context expires.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool with the given number of slots.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		return nil, errors.New("worker: pool size must be positive")
	}
	return &Pool{sem: make(chan struct{}, size)}, nil
}

// Do runs fn on the caller's goroutine once a slot is acquired. Acquisition is
// context-aware: a caller whose context expires while waiting never runs fn.
// fn receives the same context and is expected to honor its cancellation.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn(ctx)
}
