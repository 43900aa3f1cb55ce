package opqueue

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Queue executes operations one at a time. Waiting callers are admitted in
// the order they arrived.
type Queue struct {
	sem    *semaphore.Weighted
	closed atomic.Bool
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{sem: semaphore.NewWeighted(1)}
}

// Do waits for its turn and runs fn on the caller's goroutine. If ctx is done
// before fn starts, fn is skipped and Do returns ctx.Err(). Operations still
// waiting when the queue is closed return ErrClosed.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilFunc
	}
	if q.closed.Load() {
		return ErrClosed
	}

	if err := q.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer q.sem.Release(1)

	if q.closed.Load() {
		return ErrClosed
	}

	return exec(ctx, fn)
}

// Submit is Do for operations that produce a value.
func Submit[T any](ctx context.Context, q *Queue, fn func(context.Context) (T, error)) (T, error) {
	var result T
	if fn == nil {
		return result, ErrNilFunc
	}

	err := q.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Close stops accepting operations and waits for the running one to finish.
// Safe to call multiple times.
func (q *Queue) Close() error {
	q.closed.Store(true)
	if err := q.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	q.sem.Release(1)
	return nil
}

func exec(ctx context.Context, fn func(context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return fn(ctx)
}
