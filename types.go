package dispatch

import "github.com/Swind/go-dispatch/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the dispatch package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// SerialQueue runs tasks one at a time, in admission order, on a shared pool.
type SerialQueue = core.SerialQueue

// QueueConfig configures a SerialQueue.
type QueueConfig = core.QueueConfig

// DispatchOption is an option recorded at queue construction.
type DispatchOption = core.DispatchOption

// Options is an immutable set of DispatchOption values.
type Options = core.Options

// ThreadPool is re-exported for type compatibility
type ThreadPool = core.ThreadPool

// Executor and Dispatcher are what RunAndWait and the delay manager target.
type (
	Executor   = core.Executor
	Dispatcher = core.Dispatcher
)

// QueueStats and PoolStats are observability snapshots.
type (
	QueueStats = core.QueueStats
	PoolStats  = core.PoolStats
)

// Option constants
const (
	OptionStickToDispatchThread = core.OptionStickToDispatchThread
	OptionStickToCallerThread   = core.OptionStickToCallerThread
)

// Sentinel errors
var (
	ErrSyncFromDrainer   = core.ErrSyncFromDrainer
	ErrInvalidIterations = core.ErrInvalidIterations
	ErrWaitInterrupted   = core.ErrWaitInterrupted
	ErrPoolNotRunning    = core.ErrPoolNotRunning
)

// NewSerialQueue creates a queue on an explicit pool.
// This is re-exported for advanced users who want queues on custom pools.
func NewSerialQueue(label string, pool ThreadPool, options ...DispatchOption) *SerialQueue {
	return core.NewSerialQueue(label, pool, options...)
}

// RunAndWait admits iterations copies of task to d and waits for all of them.
var RunAndWait = core.RunAndWait

// CurrentQueue retrieves the queue draining the calling task from context
var CurrentQueue = core.CurrentQueue
