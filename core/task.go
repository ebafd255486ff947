package core

import (
	"context"
	"strings"
	"time"
)

// Task is the unit of work (Closure).
// The context passed to a task carries the drain context of the queue running it.
type Task func(ctx context.Context)

// =============================================================================
// DispatchOption: Options recorded at queue construction
// =============================================================================

type DispatchOption uint8

const (
	// OptionStickToDispatchThread asks the pool to prefer the worker that last
	// drained the queue.
	OptionStickToDispatchThread DispatchOption = iota

	// OptionStickToCallerThread asks the pool to prefer the admitting goroutine.
	OptionStickToCallerThread

	numDispatchOptions
)

func (o DispatchOption) String() string {
	switch o {
	case OptionStickToDispatchThread:
		return "STICK_TO_DISPATCH_THREAD"
	case OptionStickToCallerThread:
		return "STICK_TO_CALLER_THREAD"
	default:
		return "UNKNOWN"
	}
}

// Options is an immutable set of DispatchOption values.
type Options struct {
	bits uint8
}

// NewOptions builds an option set. Unknown values are ignored.
func NewOptions(opts ...DispatchOption) Options {
	var set Options
	for _, o := range opts {
		if o < numDispatchOptions {
			set.bits |= 1 << o
		}
	}
	return set
}

// Has reports whether opt is in the set.
func (s Options) Has(opt DispatchOption) bool {
	return opt < numDispatchOptions && s.bits&(1<<opt) != 0
}

// IsEmpty reports whether the set has no options.
func (s Options) IsEmpty() bool {
	return s.bits == 0
}

// List returns the options in enumeration order.
func (s Options) List() []DispatchOption {
	var out []DispatchOption
	for o := DispatchOption(0); o < numDispatchOptions; o++ {
		if s.Has(o) {
			out = append(out, o)
		}
	}
	return out
}

func (s Options) String() string {
	list := s.List()
	names := make([]string, len(list))
	for i, o := range list {
		names[i] = o.String()
	}
	return "[" + strings.Join(names, ",") + "]"
}

// =============================================================================
// Executor / ThreadPool: what a queue needs from its environment
// =============================================================================

// Executor admits a task for eventual execution.
type Executor interface {
	Execute(task Task)
}

// Dispatcher is an Executor that also accepts the caller's context, which is
// how reentrant admission is detected.
type Dispatcher interface {
	Executor
	DispatchAsync(ctx context.Context, task Task)
}

// ThreadPool runs submitted tasks on shared workers. No ordering is guaranteed
// between submissions; Submit must be callable from any goroutine, including
// from inside a running task.
type ThreadPool interface {
	Submit(task Task)
	SubmitDelayed(task Task, delay time.Duration, target Executor)
}

// =============================================================================
// Context Helper
// =============================================================================

type drainSessionKeyType struct{}

var drainSessionKey drainSessionKeyType

// drainSession identifies one primary drain of a queue on one goroutine.
type drainSession struct {
	queue     *SerialQueue
	goroutine uint64
}

func sessionFromContext(ctx context.Context) *drainSession {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(drainSessionKey).(*drainSession); ok {
		return v
	}
	return nil
}

// CurrentQueue returns the queue whose drain session is running the task that
// received ctx, or nil. A ctx kept after its session ended, or used from
// another goroutine, yields nil.
func CurrentQueue(ctx context.Context) *SerialQueue {
	s := sessionFromContext(ctx)
	if s == nil || s.queue == nil {
		return nil
	}
	if s.queue.session.Load() != s || s.goroutine != goroutineID() {
		return nil
	}
	return s.queue
}
