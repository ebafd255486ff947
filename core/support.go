package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
)

var (
	// ErrSyncFromDrainer is returned when a task blocks on its own queue.
	ErrSyncFromDrainer = errors.New("dispatch: synchronous dispatch from the queue's own drain context")

	// ErrInvalidIterations is returned for a negative iteration count.
	ErrInvalidIterations = errors.New("dispatch: iterations must not be negative")

	// ErrWaitInterrupted is wrapped by InterruptedError.
	ErrWaitInterrupted = errors.New("dispatch: wait interrupted")

	// ErrPoolNotRunning is returned when a pool is used after shutdown.
	ErrPoolNotRunning = errors.New("dispatch: thread pool is not running")
)

// InterruptedError is returned by RunAndWait when its context ends before
// every admitted copy has run. The copies are not withdrawn; Done and
// Remaining let the caller keep tracking them.
type InterruptedError struct {
	Cause     error
	done      <-chan struct{}
	remaining *atomic.Int64
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("%s: %v (%d task(s) still pending)", ErrWaitInterrupted, e.Cause, e.Remaining())
}

func (e *InterruptedError) Unwrap() []error {
	return []error{ErrWaitInterrupted, e.Cause}
}

// Done is closed once every admitted copy has finished.
func (e *InterruptedError) Done() <-chan struct{} {
	return e.done
}

// Remaining returns how many admitted copies have not finished.
func (e *InterruptedError) Remaining() int64 {
	return e.remaining.Load()
}

// RunAndWait admits iterations copies of task to d and blocks until all of
// them have finished or ctx ends. A copy that panics still counts as finished.
// A non-positive count returns nil without admitting anything.
func RunAndWait(ctx context.Context, d Dispatcher, iterations int, task Task) error {
	if iterations <= 0 {
		return nil
	}

	remaining := new(atomic.Int64)
	remaining.Store(int64(iterations))
	done := make(chan struct{})

	wrapper := func(taskCtx context.Context) {
		defer func() {
			if remaining.Add(-1) == 0 {
				close(done)
			}
		}()
		task(taskCtx)
	}

	for i := 0; i < iterations; i++ {
		d.DispatchAsync(ctx, wrapper)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		select {
		case <-done:
			return nil
		default:
		}
		return &InterruptedError{
			Cause:     context.Cause(ctx),
			done:      done,
			remaining: remaining,
		}
	}
}

// goroutineID parses the current goroutine id out of runtime.Stack.
// Stack trace starts with "goroutine NNN [".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
