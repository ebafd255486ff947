package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-dispatch/core"
)

// GoroutineThreadPool manages a set of worker goroutines.
// Workers pull tasks from the scheduler and run them; serial queues submit
// themselves here whenever they have work.
type GoroutineThreadPool struct {
	id        string
	workers   int
	scheduler *core.TaskScheduler
	group     *errgroup.Group
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

// NewGoroutineThreadPool creates a pool with the default scheduler config.
func NewGoroutineThreadPool(id string, workers int) *GoroutineThreadPool {
	return NewGoroutineThreadPoolWithConfig(id, workers, core.DefaultSchedulerConfig())
}

// NewGoroutineThreadPoolWithConfig creates a pool. Panics if workers < 1.
func NewGoroutineThreadPoolWithConfig(id string, workers int, config *core.SchedulerConfig) *GoroutineThreadPool {
	if workers < 1 {
		panic(fmt.Sprintf("GoroutineThreadPool: workers must be positive, got %d", workers))
	}
	return &GoroutineThreadPool{
		id:        id,
		workers:   workers,
		scheduler: core.NewFIFOTaskSchedulerWithConfig(workers, config),
	}
}

// Start starts all worker goroutines. Calling Start on a running pool is a no-op.
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	tg.group = g
	tg.cancel = cancel
	tg.running = true

	for i := 0; i < tg.workers; i++ {
		id := i
		g.Go(func() error {
			tg.workerLoop(gctx, id)
			return nil
		})
	}

	tg.scheduler.GetLogger().Debug("thread pool started", core.F("pool", tg.id), core.F("workers", tg.workers))
}

// Stop stops the pool immediately. Queued and delayed tasks are dropped.
func (tg *GoroutineThreadPool) Stop() {
	// Always shutdown scheduler to clean up resources (queue, delayed tasks)
	// even if pool was never started
	tg.scheduler.Shutdown()

	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		return
	}
	tg.runningMu.Unlock()

	tg.cancel()
	tg.Join()

	tg.runningMu.Lock()
	tg.running = false
	tg.runningMu.Unlock()
}

// StopGraceful waits up to timeout for queued and active tasks to finish,
// then stops the workers. On a pool that is not running it drops pending work
// and returns ErrPoolNotRunning.
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		tg.scheduler.Shutdown()
		return fmt.Errorf("pool %s: %w", tg.id, core.ErrPoolNotRunning)
	}
	tg.runningMu.Unlock()

	err := tg.scheduler.ShutdownGraceful(timeout)

	tg.cancel()
	tg.Join()

	tg.runningMu.Lock()
	tg.running = false
	tg.runningMu.Unlock()

	if err != nil {
		return fmt.Errorf("pool %s: %w", tg.id, err)
	}
	return nil
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

func (tg *GoroutineThreadPool) workerLoop(ctx context.Context, id int) {
	stopCh := ctx.Done()

	for {
		task, ok := tg.scheduler.GetWork(stopCh)
		if !ok {
			return
		}

		tg.runTask(ctx, id, task)
	}
}

func (tg *GoroutineThreadPool) runTask(ctx context.Context, id int, task core.Task) {
	defer func() {
		tg.scheduler.OnTaskEnd()
		if r := recover(); r != nil {
			source := fmt.Sprintf("%s/worker-%d", tg.id, id)
			tg.scheduler.GetPanicHandler().HandlePanic(ctx, source, r, debug.Stack())
			tg.scheduler.GetMetrics().RecordTaskPanic(source, r)
		}
	}()
	task(ctx)
}

// Join waits for all worker goroutines to finish
func (tg *GoroutineThreadPool) Join() {
	tg.runningMu.RLock()
	g := tg.group
	tg.runningMu.RUnlock()
	if g != nil {
		_ = g.Wait()
	}
}

// WorkerCount returns the number of workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.scheduler.QueuedTaskCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.scheduler.ActiveTaskCount()
}

func (tg *GoroutineThreadPool) DelayedTaskCount() int {
	return tg.scheduler.DelayedTaskCount()
}

// Submit implements core.ThreadPool.
func (tg *GoroutineThreadPool) Submit(task core.Task) {
	tg.scheduler.Submit(task)
}

// SubmitDelayed implements core.ThreadPool.
func (tg *GoroutineThreadPool) SubmitDelayed(task core.Task, delay time.Duration, target core.Executor) {
	tg.scheduler.SubmitDelayed(task, delay, target)
}

// Stats returns a snapshot of the pool's counters.
func (tg *GoroutineThreadPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      tg.id,
		Workers: tg.workers,
		Queued:  tg.QueuedTaskCount(),
		Active:  tg.ActiveTaskCount(),
		Delayed: tg.DelayedTaskCount(),
		Running: tg.IsRunning(),
	}
}

// GetScheduler returns the pool's work source.
func (tg *GoroutineThreadPool) GetScheduler() *core.TaskScheduler {
	return tg.scheduler
}
