// Package batch runs independent sub-queries concurrently under one
// process-wide limiter.
//
// A Task is one schedulable unit of query work, typically one chunk of an ID
// list. Scheduler.Run executes every task, captures failures per task and
// returns one Outcome per task in submission order, whatever order the tasks
// finish in. One task failing never cancels its siblings.
//
// The Limiter is the only shared mutable resource. It bounds the number of
// fetch chains in flight across every Scheduler that shares it, so nested
// work (an offset fan-out started outside any batch, or ID chunks) cannot
// exceed the configured concurrency.
//
// Code running inside a task receives an explicit Context describing the
// batch it belongs to. Fetch logic uses Context.InBatch to decide whether it
// may fan out further or must walk its pages serially while holding its
// permit.
//
// Usage:
//
//	limiter := batch.NewLimiter(10)
//	scheduler := batch.NewScheduler(limiter, batch.WithProgress(func(done, total int) {
//		fmt.Printf("%d/%d\n", done, total)
//	}))
//	outcomes := scheduler.Run(ctx, tasks, func(ctx context.Context, bc batch.Context, t batch.Task) ([]pagination.Record, error) {
//		return fetchAll(ctx, bc, t.Spec)
//	})
package batch
