// Package dispatch provides serial dispatch queues backed by a shared goroutine pool.
//
// A SerialQueue runs the tasks admitted to it one at a time, in admission order,
// without owning a goroutine. When a queue goes from empty to non-empty it submits
// itself to the pool; whichever worker picks it up drains a bounded batch and then
// gives the worker back, resubmitting the queue if work remains.
//
// # Quick Start
//
// Initialize the global thread pool at application startup:
//
//	dispatch.InitGlobalThreadPool(4) // 4 workers
//	defer dispatch.ShutdownGlobalThreadPool()
//
// Create a queue and admit tasks:
//
//	q := dispatch.CreateQueue("db-writer")
//	q.DispatchAsync(ctx, func(ctx context.Context) {
//		// Your code here - guaranteed sequential execution
//	})
//
// # Key Concepts
//
// SerialQueue: admission is lock-free and callable from any goroutine. A task that
// admits more work to its own queue (using the ctx it was given) has that work run
// before anything admitted externally afterwards.
//
// Suspend/Resume: a counter; while positive no new task starts. Admission keeps
// working and the final Resume reschedules the queue.
//
// Reference counting: a queue holds one reference for its creator and one more while
// it has pending work. Release watchers run when the count reaches zero.
//
// GoroutineThreadPool: the execution engine managing worker goroutines that pull
// and execute submissions from the scheduler.
//
// # Example
//
//	import (
//		"context"
//		dispatch "github.com/Swind/go-dispatch"
//	)
//
//	func main() {
//		dispatch.InitGlobalThreadPool(4)
//		defer dispatch.ShutdownGlobalThreadPool()
//
//		q := dispatch.CreateQueue("example")
//
//		q.Execute(func(ctx context.Context) {
//			println("Task 1")
//		})
//		q.DispatchAfter(time.Second, func(ctx context.Context) {
//			println("Task 2 - delayed")
//		})
//
//		// Blocks until the task has run.
//		_ = q.DispatchSync(context.Background(), func(ctx context.Context) {
//			println("Task 3")
//		})
//	}
package dispatch
