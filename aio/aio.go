// Package aio runs positional file reads and writes on a thread pool and
// delivers their completions onto a serial queue.
//
// An operation is started with Engine.Write or Engine.Read and runs on a pool
// worker. When it finishes, its Op is marked done and the completion callback,
// if any, is admitted to the completion Executor, typically a *core.SerialQueue,
// so callbacks for one queue never run concurrently with its other tasks.
package aio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/Swind/go-dispatch/core"
)

// ErrClosed is returned for operations on a closed File.
var ErrClosed = errors.New("aio: file closed")

// Result is the outcome of one operation. N is the number of bytes transferred.
type Result struct {
	N   int
	Err error
}

// Completion receives a Result on the completion executor.
type Completion func(ctx context.Context, res Result)

// Op tracks one in-flight operation.
type Op struct {
	done chan struct{}
	res  Result
}

func newOp() *Op {
	return &Op{done: make(chan struct{})}
}

// Done is closed once the operation finished.
func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Result returns the operation outcome. It is only valid after Done is closed.
func (o *Op) Result() Result {
	return o.res
}

// Suspend waits until every op has finished or ctx ends.
func Suspend(ctx context.Context, ops ...*Op) error {
	for _, op := range ops {
		select {
		case <-op.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Config configures an Engine.
type Config struct {
	// Retry applies to transient errors (interrupted or would-block syscalls).
	Retry core.RetryPolicy

	// Logger receives retry and failure logs. Defaults to NoOpLogger.
	Logger core.Logger
}

// DefaultConfig returns the default retry policy with a no-op logger.
func DefaultConfig() *Config {
	return &Config{
		Retry:  core.DefaultRetryPolicy(),
		Logger: core.NewNoOpLogger(),
	}
}

// Engine submits file operations to a thread pool.
type Engine struct {
	pool   core.ThreadPool
	retry  core.RetryPolicy
	logger core.Logger

	inFlight atomic.Int64
}

// NewEngine creates an engine on pool. A nil config uses DefaultConfig.
func NewEngine(pool core.ThreadPool, config *Config) *Engine {
	if pool == nil {
		panic("aio: nil pool")
	}
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Engine{
		pool:   pool,
		retry:  config.Retry,
		logger: logger,
	}
}

// InFlight returns the number of operations submitted but not finished.
func (e *Engine) InFlight() int64 {
	return e.inFlight.Load()
}

// Write writes all of buf to f at offset. Short writes are continued until the
// buffer is exhausted or an error occurs.
func (e *Engine) Write(f *File, buf []byte, offset int64, completion core.Executor, cb Completion) *Op {
	return e.submit("pwrite", f, offset, completion, cb, func() (int, error) {
		total := 0
		for total < len(buf) {
			n, err := e.withRetry("pwrite", f, func() (int, error) {
				return f.pwrite(buf[total:], offset+int64(total))
			})
			total += n
			if err != nil {
				return total, err
			}
			if n == 0 {
				return total, io.ErrShortWrite
			}
		}
		return total, nil
	})
}

// Read fills buf from f at offset. Reaching end of file before buf is full
// returns the bytes read with io.EOF.
func (e *Engine) Read(f *File, buf []byte, offset int64, completion core.Executor, cb Completion) *Op {
	return e.submit("pread", f, offset, completion, cb, func() (int, error) {
		total := 0
		for total < len(buf) {
			n, err := e.withRetry("pread", f, func() (int, error) {
				return f.pread(buf[total:], offset+int64(total))
			})
			total += n
			if err != nil {
				return total, err
			}
			if n == 0 {
				return total, io.EOF
			}
		}
		return total, nil
	})
}

// Sync flushes f to stable storage.
func (e *Engine) Sync(f *File, completion core.Executor, cb Completion) *Op {
	return e.submit("fsync", f, 0, completion, cb, func() (int, error) {
		return e.withRetry("fsync", f, func() (int, error) {
			return 0, f.sync()
		})
	})
}

func (e *Engine) submit(name string, f *File, offset int64, completion core.Executor, cb Completion, run func() (int, error)) *Op {
	op := newOp()
	e.inFlight.Add(1)

	// The reference keeps the descriptor open until this op is done, even if
	// Close is called meanwhile.
	held := f.acquire()

	e.pool.Submit(func(ctx context.Context) {
		var res Result
		if !held {
			res.Err = ErrClosed
		} else {
			res.N, res.Err = run()
			if err := f.release(); err != nil {
				e.logger.Warn("aio deferred close failed", core.F("path", f.path), core.F("error", err))
			}
		}
		if res.Err != nil && !errors.Is(res.Err, io.EOF) {
			res.Err = fmt.Errorf("aio: %s %s at %d: %w", name, f.path, offset, res.Err)
			e.logger.Debug("aio operation failed", core.F("op", name), core.F("path", f.path), core.F("error", res.Err))
		}

		op.res = res
		e.inFlight.Add(-1)
		close(op.done)

		if cb == nil {
			return
		}
		if completion == nil {
			cb(ctx, res)
			return
		}
		completion.Execute(func(ctx context.Context) { cb(ctx, res) })
	})
	return op
}

func (e *Engine) withRetry(name string, f *File, call func() (int, error)) (int, error) {
	for attempt := 0; ; attempt++ {
		n, err := call()
		if err == nil || !isTransient(err) || attempt >= e.retry.MaxRetries {
			return n, err
		}
		delay := e.retry.Delay(attempt)
		e.logger.Debug("aio retry", core.F("op", name), core.F("path", f.path), core.F("attempt", attempt+1), core.F("delay", delay))
		if delay > 0 {
			time.Sleep(delay)
		}
	}
}
