package opqueue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fintrack/pkg/opqueue"
)

func TestQueue_Do(t *testing.T) {
	t.Parallel()

	t.Run("returns operation error", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()
		defer q.Close()

		want := errors.New("boom")
		err := q.Do(context.Background(), func(context.Context) error { return want })
		assert.ErrorIs(t, err, want)
	})

	t.Run("never runs operations concurrently", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()
		defer q.Close()

		var (
			running int32
			maxSeen int32
			wg      sync.WaitGroup
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := q.Do(context.Background(), func(context.Context) error {
					n := atomic.AddInt32(&running, 1)
					for {
						cur := atomic.LoadInt32(&maxSeen)
						if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					atomic.AddInt32(&running, -1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
	})

	t.Run("preserves submission order from one caller", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()
		defer q.Close()

		var order []int
		for i := range 5 {
			require.NoError(t, q.Do(context.Background(), func(context.Context) error {
				order = append(order, i)
				return nil
			}))
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	})

	t.Run("skips operation when context is already done", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()
		defer q.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := q.Do(ctx, func(context.Context) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})

	t.Run("recovers panics", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()
		defer q.Close()

		err := q.Do(context.Background(), func(context.Context) error { panic("oops") })
		assert.ErrorIs(t, err, opqueue.ErrPanic)

		// queue stays usable
		assert.NoError(t, q.Do(context.Background(), func(context.Context) error { return nil }))
	})

	t.Run("rejects nil operation", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()
		defer q.Close()
		assert.ErrorIs(t, q.Do(context.Background(), nil), opqueue.ErrNilFunc)
	})

	t.Run("rejects after close", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()
		require.NoError(t, q.Close())
		require.NoError(t, q.Close())

		err := q.Do(context.Background(), func(context.Context) error { return nil })
		assert.ErrorIs(t, err, opqueue.ErrClosed)

		_, err = opqueue.Submit(context.Background(), q, func(context.Context) (int, error) { return 1, nil })
		assert.ErrorIs(t, err, opqueue.ErrClosed)
	})

	t.Run("close waits for running operation and rejects waiting ones", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()

		started := make(chan struct{})
		release := make(chan struct{})
		firstDone := make(chan error, 1)
		go func() {
			firstDone <- q.Do(context.Background(), func(context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		waiting := make(chan error, 1)
		var ran atomic.Bool
		go func() {
			waiting <- q.Do(context.Background(), func(context.Context) error {
				ran.Store(true)
				return nil
			})
		}()

		closed := make(chan struct{})
		go func() {
			_ = q.Close()
			close(closed)
		}()

		select {
		case <-closed:
			t.Fatal("close returned while an operation was running")
		case <-time.After(20 * time.Millisecond):
		}

		close(release)
		require.NoError(t, <-firstDone)

		select {
		case <-closed:
		case <-time.After(time.Second):
			t.Fatal("close did not return")
		}

		select {
		case err := <-waiting:
			assert.ErrorIs(t, err, opqueue.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("waiting operation hung after close")
		}
		assert.False(t, ran.Load())
	})

	t.Run("waiting caller gives up when its context ends", func(t *testing.T) {
		t.Parallel()
		q := opqueue.New()
		defer q.Close()

		started := make(chan struct{})
		release := make(chan struct{})
		go func() {
			_ = q.Do(context.Background(), func(context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := q.Do(ctx, func(context.Context) error { return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		assert.NoError(t, q.Do(context.Background(), func(context.Context) error { return nil }))
	})
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	q := opqueue.New()
	defer q.Close()

	v, err := opqueue.Submit(context.Background(), q, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = opqueue.Submit(context.Background(), q, func(context.Context) (string, error) {
		return "ignored", errors.New("fail")
	})
	assert.Error(t, err)
	assert.Empty(t, v)
}
