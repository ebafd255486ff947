package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// SerialQueue runs admitted tasks one at a time, in admission order, on
// workers borrowed from a shared ThreadPool.
//
// Producers push onto a lock-free external queue. Whichever worker holds the
// drain role moves that backlog into a private local queue and runs it in
// batches of at most BatchLimit tasks, resubmitting the queue to the pool while
// work remains. A task admitted by the running drainer itself (reentrant
// admission) goes straight to the local queue, behind what is already there.
//
// The queue is reference counted. It holds one reference for its creator from
// construction, and one extra reference while any admitted task is pending.
type SerialQueue struct {
	Retained

	label   string
	options Options
	pool    ThreadPool

	suspendCount   atomic.Int32
	activeDrainers atomic.Int32
	pendingTotal   atomic.Int64
	externalSize   atomic.Int64

	external *externalQueue
	local    localQueue

	session  atomic.Pointer[drainSession]
	selfTask Task

	batchLimit   int
	logger       Logger
	panicHandler PanicHandler
	metrics      Metrics
	interceptors []Interceptor
	history      *executionHistory

	processed  atomic.Int64
	panics     atomic.Int64
	sessions   atomic.Int64
	lastTaskAt atomic.Int64
}

// NewSerialQueue creates a queue with the default configuration.
func NewSerialQueue(label string, pool ThreadPool, options ...DispatchOption) *SerialQueue {
	return NewSerialQueueWithConfig(label, pool, DefaultQueueConfig(), options...)
}

// NewSerialQueueWithConfig creates a queue. Panics if pool is nil.
func NewSerialQueueWithConfig(label string, pool ThreadPool, config *QueueConfig, options ...DispatchOption) *SerialQueue {
	if pool == nil {
		panic("SerialQueue: pool must not be nil")
	}

	q := &SerialQueue{
		label:    label,
		options:  NewOptions(options...),
		pool:     pool,
		external: newExternalQueue(),
		local:    newLocalQueue(),
	}
	q.selfTask = q.Run

	if config != nil {
		q.batchLimit = config.BatchLimit
		q.logger = config.Logger
		q.panicHandler = config.PanicHandler
		q.metrics = config.Metrics
		q.interceptors = append([]Interceptor(nil), config.Interceptors...)
		q.history = newExecutionHistory(config.HistoryCapacity)
	}

	// Use defaults if not provided
	if q.batchLimit <= 0 {
		q.batchLimit = DefaultBatchLimit
	}
	if q.logger == nil {
		q.logger = NewNoOpLogger()
	}
	if q.panicHandler == nil {
		q.panicHandler = NewDefaultPanicHandler(q.logger)
	}
	if q.metrics == nil {
		q.metrics = &NilMetrics{}
	}

	q.Retain()
	return q
}

// Label returns the queue's display label.
func (q *SerialQueue) Label() string {
	return q.label
}

// Options returns the option set recorded at construction.
func (q *SerialQueue) Options() Options {
	return q.options
}

// BatchLimit returns the maximum number of tasks run per drain session.
func (q *SerialQueue) BatchLimit() int {
	return q.batchLimit
}

// =============================================================================
// Admission
// =============================================================================

// Execute admits task from outside any drain context.
func (q *SerialQueue) Execute(task Task) {
	q.DispatchAsync(context.Background(), task)
}

// DispatchAsync admits task for execution after every task admitted before it.
// If ctx is the context of a task currently being run by this queue, on the
// goroutine running it, the task is appended to the local queue and will run
// before anything still waiting in the external queue. Panics if task is nil.
func (q *SerialQueue) DispatchAsync(ctx context.Context, task Task) {
	if task == nil {
		panic("SerialQueue: nil task")
	}

	if q.pendingTotal.Add(1) == 1 {
		q.Retain()
	}

	if q.isDrainer(ctx) {
		q.local.Push(task)
		return
	}

	last := q.externalSize.Add(1) - 1
	q.external.Push(task)
	if last == 0 && q.suspendCount.Load() <= 0 {
		q.dispatchSelf()
	}
}

// DispatchAfter admits task once delay has elapsed. The queue keeps a
// reference until the admission happens.
func (q *SerialQueue) DispatchAfter(delay time.Duration, task Task) {
	if task == nil {
		panic("SerialQueue: nil task")
	}
	if delay <= 0 {
		q.Execute(task)
		return
	}

	q.Retain()
	q.pool.SubmitDelayed(task, delay, ExecutorFunc(func(t Task) {
		defer q.Release()
		q.Execute(t)
	}))
}

// DispatchSync admits task and blocks until it has run.
func (q *SerialQueue) DispatchSync(ctx context.Context, task Task) error {
	return q.DispatchApply(ctx, 1, task)
}

// DispatchApply admits iterations copies of task and blocks until all of them
// have run. If ctx ends first the returned error wraps ErrWaitInterrupted and
// the admitted copies still run; see InterruptedError.
func (q *SerialQueue) DispatchApply(ctx context.Context, iterations int, task Task) error {
	if task == nil {
		panic("SerialQueue: nil task")
	}
	if iterations < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, iterations)
	}
	if iterations == 0 {
		return nil
	}
	if q.isDrainer(ctx) {
		return fmt.Errorf("%w: queue %q", ErrSyncFromDrainer, q.label)
	}
	return RunAndWait(ctx, q, iterations, task)
}

// =============================================================================
// Suspension
// =============================================================================

// Suspend stops the queue from starting new tasks. Admission is unaffected.
// Every Suspend must be matched by a Resume.
func (q *SerialQueue) Suspend() {
	n := q.suspendCount.Add(1)
	q.logger.Debug("queue suspended", F("queue", q.label), F("suspend_count", int(n)))
}

// Resume undoes one Suspend. The last matching Resume schedules the queue if
// work accumulated while it was suspended.
func (q *SerialQueue) Resume() {
	n := q.suspendCount.Add(-1)
	switch {
	case n == 0:
		q.logger.Debug("queue resumed", F("queue", q.label))
		if q.pendingTotal.Load() > 0 {
			q.dispatchSelf()
		}
	case n < 0:
		q.logger.Warn("unbalanced resume", F("queue", q.label), F("suspend_count", int(n)))
	}
}

// IsSuspended reports whether draining is currently blocked.
func (q *SerialQueue) IsSuspended() bool {
	return q.suspendCount.Load() > 0
}

// =============================================================================
// Draining
// =============================================================================

// Run performs one drain session. It is what the pool executes after the
// queue submits itself; calling it concurrently is safe, at most one caller
// runs tasks and the others only request an extra pass.
func (q *SerialQueue) Run(ctx context.Context) {
	q.dispatch(ctx, NewIntegerCounter(q.batchLimit))
}

func (q *SerialQueue) dispatch(ctx context.Context, limit *IntegerCounter) {
	if q.activeDrainers.Add(1) != 1 {
		// The primary drainer will do one more pass for us.
		return
	}

	s := &drainSession{queue: q, goroutine: goroutineID()}
	q.session.Store(s)
	runCtx := context.WithValue(ctx, drainSessionKey, s)
	q.sessions.Add(1)

	for {
		q.drainLoop(runCtx, limit)
		if q.activeDrainers.Add(-1) <= 0 {
			break
		}
	}

	q.session.CompareAndSwap(s, nil)
}

func (q *SerialQueue) drainLoop(ctx context.Context, limit *IntegerCounter) {
	processed := 0

	// limit is shared by every pass of one Run.
	for q.suspendCount.Load() <= 0 && limit.Get() > 0 {
		if task, ok := q.local.Pop(); ok {
			processed++
			q.runTask(ctx, task)
			if limit.DecrementAndGet() <= 0 {
				break
			}
			continue
		}

		if q.externalSize.Load() > 0 {
			if q.transferExternal() == 0 {
				// Counted but not linked yet; pick it up next session.
				break
			}
			continue
		}

		break
	}

	q.finishLoop(processed)
}

// transferExternal moves the visible external backlog into the local queue.
func (q *SerialQueue) transferExternal() int {
	moved := 0
	for size := q.externalSize.Load(); size > 0; {
		task, ok := q.external.Pop()
		if !ok {
			break
		}
		q.local.Push(task)
		moved++
		size = q.externalSize.Add(-1)
	}
	return moved
}

func (q *SerialQueue) finishLoop(processed int) {
	q.processed.Add(int64(processed))
	remaining := q.pendingTotal.Add(-int64(processed))
	q.metrics.RecordQueueDepth(q.label, int(remaining))

	if remaining == 0 {
		q.metrics.RecordDrainSession(q.label, processed, false)
		if processed > 0 {
			q.logger.Debug("queue drained", F("queue", q.label))
			q.Release()
		}
		return
	}

	if q.suspendCount.Load() > 0 {
		// The final Resume reschedules.
		q.metrics.RecordDrainSession(q.label, processed, false)
		return
	}

	q.metrics.RecordDrainSession(q.label, processed, true)
	q.dispatchSelf()
}

func (q *SerialQueue) runTask(ctx context.Context, task Task) {
	run := task
	if len(q.interceptors) > 0 {
		run = chainInterceptors(q.label, task, q.interceptors)
	}

	startedAt := time.Now()
	panicked := q.invoke(ctx, run)
	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)

	q.metrics.RecordTaskDuration(q.label, duration)
	q.lastTaskAt.Store(finishedAt.UnixNano())

	if q.history.Enabled() {
		q.history.Add(TaskExecutionRecord{
			Name:       resolveTaskName(task),
			Queue:      q.label,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
			Panicked:   panicked,
		})
	}
}

func (q *SerialQueue) invoke(ctx context.Context, task Task) (panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			q.panics.Add(1)
			q.panicHandler.HandlePanic(ctx, q.label, rec, debug.Stack())
			q.metrics.RecordTaskPanic(q.label, rec)
		}
	}()
	task(ctx)
	return false
}

func (q *SerialQueue) dispatchSelf() {
	q.pool.Submit(q.selfTask)
}

// isDrainer reports whether ctx belongs to this queue's current drain session
// and the caller is the goroutine running it.
func (q *SerialQueue) isDrainer(ctx context.Context) bool {
	s := sessionFromContext(ctx)
	if s == nil || s.queue != q || q.session.Load() != s {
		return false
	}
	return s.goroutine == goroutineID()
}

// =============================================================================
// Observability
// =============================================================================

// PendingCount returns the number of admitted tasks that have not run yet.
func (q *SerialQueue) PendingCount() int64 {
	return q.pendingTotal.Load()
}

// Stats returns current observability data for this queue.
func (q *SerialQueue) Stats() QueueStats {
	stats := QueueStats{
		Label:           q.label,
		Options:         q.options,
		Pending:         q.pendingTotal.Load(),
		ExternalPending: q.externalSize.Load(),
		SuspendCount:    q.suspendCount.Load(),
		Draining:        q.activeDrainers.Load() > 0,
		RefCount:        q.RefCount(),
		Released:        q.IsReleased(),
		Processed:       q.processed.Load(),
		Panics:          q.panics.Load(),
		Sessions:        q.sessions.Load(),
	}
	if ns := q.lastTaskAt.Load(); ns != 0 {
		stats.LastTaskAt = time.Unix(0, ns)
	}
	if last, ok := q.history.Last(); ok {
		stats.LastTaskName = last.Name
	}
	return stats
}

// RecentTasks returns completed task execution records in newest-first order.
// It is empty unless QueueConfig.HistoryCapacity was set.
func (q *SerialQueue) RecentTasks(limit int) []TaskExecutionRecord {
	return q.history.Recent(limit)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task Task)

// Execute implements Executor.
func (f ExecutorFunc) Execute(task Task) { f(task) }
