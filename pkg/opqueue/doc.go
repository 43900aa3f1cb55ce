// Package opqueue provides an in-process queue that runs submitted operations
// one at a time, in submission order, while callers wait for their own result.
//
// It is used to serialize read-modify-write sequences issued from the same
// process. It provides no mutual exclusion across processes.
//
//	q := opqueue.New()
//	defer q.Close()
//
//	err := q.Do(ctx, func(ctx context.Context) error {
//		return updateSomething(ctx)
//	})
//
//	sub, err := opqueue.Submit(ctx, q, func(ctx context.Context) (*Subscription, error) {
//		return manager.load(ctx, id)
//	})
package opqueue
