package core_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-dispatch/core"
)

// MockThreadPool implements ThreadPool for testing.
// Submissions are captured and run by the test on its own goroutine.
type MockThreadPool struct {
	mu        sync.Mutex
	submitted []core.Task
	delayed   []mockDelayed
}

type mockDelayed struct {
	Task   core.Task
	Delay  time.Duration
	Target core.Executor
}

func (m *MockThreadPool) Submit(task core.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, task)
}

func (m *MockThreadPool) SubmitDelayed(task core.Task, delay time.Duration, target core.Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delayed = append(m.delayed, mockDelayed{Task: task, Delay: delay, Target: target})
}

// Submissions returns the number of captured submissions not yet run.
func (m *MockThreadPool) Submissions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted)
}

// RunNext runs the oldest captured submission. It reports false if there was none.
func (m *MockThreadPool) RunNext() bool {
	m.mu.Lock()
	if len(m.submitted) == 0 {
		m.mu.Unlock()
		return false
	}
	task := m.submitted[0]
	m.submitted = m.submitted[1:]
	m.mu.Unlock()

	task(context.Background())
	return true
}

// RunAll runs submissions until none are left.
func (m *MockThreadPool) RunAll() int {
	n := 0
	for m.RunNext() {
		n++
	}
	return n
}

func recorder() (func(string) core.Task, func() []string) {
	var mu sync.Mutex
	var order []string
	mk := func(name string) core.Task {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	get := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), order...)
	}
	return mk, get
}

// TestSerialQueue_FIFOExecution verifies admission order is execution order
// Given: a queue on a mock pool
// When: five tasks are admitted from one goroutine and the submission runs
// Then: they run in admission order after a single submission
func TestSerialQueue_FIFOExecution(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("fifo", pool)
	task, order := recorder()

	// Act
	for _, name := range []string{"1", "2", "3", "4", "5"} {
		q.Execute(task(name))
	}

	// Assert
	require.Equal(t, 1, pool.Submissions(), "queue submits once per empty to non-empty transition")

	pool.RunNext()
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, order())
	assert.Equal(t, 0, pool.Submissions())
	assert.Equal(t, int64(0), q.PendingCount())
}

// TestSerialQueue_SubmitOncePerTransition verifies re-scheduling after going idle
// Given: a queue that drained everything
// When: a new task is admitted
// Then: the queue submits itself again
func TestSerialQueue_SubmitOncePerTransition(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("transition", pool)
	task, order := recorder()

	q.Execute(task("a"))
	q.Execute(task("b"))
	require.Equal(t, 1, pool.Submissions())
	pool.RunAll()

	// Act
	q.Execute(task("c"))

	// Assert
	require.Equal(t, 1, pool.Submissions())
	pool.RunAll()
	assert.Equal(t, []string{"a", "b", "c"}, order())
}

// TestSerialQueue_SuspendThenResumeRunsInOrder verifies the suspend scenario
// Given: a suspended queue
// When: A, B, C are admitted and the queue is resumed
// Then: nothing runs before resume, and A, B, C run in order exactly once after it
func TestSerialQueue_SuspendThenResumeRunsInOrder(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("suspended", pool)
	task, order := recorder()

	// Act
	q.Suspend()
	q.Execute(task("A"))
	q.Execute(task("B"))
	q.Execute(task("C"))

	// Assert - nothing scheduled while suspended
	assert.True(t, q.IsSuspended())
	assert.Equal(t, 0, pool.Submissions())
	assert.Empty(t, order())

	// Act
	q.Resume()

	// Assert
	assert.False(t, q.IsSuspended())
	require.Equal(t, 1, pool.Submissions())
	pool.RunAll()
	assert.Equal(t, []string{"A", "B", "C"}, order())
}

// TestSerialQueue_SuspendResumeBalance verifies nested suspension
// Given: a queue suspended k times before any task is admitted
// When: a task is admitted and the queue is resumed k times
// Then: scheduling happens exactly once, after the k-th resume
func TestSerialQueue_SuspendResumeBalance(t *testing.T) {
	for _, k := range []int{1, 2, 5} {
		// Arrange
		pool := &MockThreadPool{}
		q := core.NewSerialQueue("balance", pool)
		var ran atomic.Int32

		for i := 0; i < k; i++ {
			q.Suspend()
		}
		q.Execute(func(ctx context.Context) { ran.Add(1) })

		// Act / Assert
		for i := 0; i < k-1; i++ {
			q.Resume()
			require.Equal(t, 0, pool.Submissions(), "k=%d: scheduled after resume %d", k, i+1)
		}
		q.Resume()
		require.Equal(t, 1, pool.Submissions(), "k=%d: not scheduled after final resume", k)

		pool.RunAll()
		assert.Equal(t, int32(1), ran.Load(), "k=%d", k)
	}
}

// TestSerialQueue_ResumeWithoutWorkDoesNotSchedule verifies an idle resume
// Given: a suspended queue with no pending work
// When: it is resumed
// Then: nothing is submitted to the pool
func TestSerialQueue_ResumeWithoutWorkDoesNotSchedule(t *testing.T) {
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("idle", pool)

	q.Suspend()
	q.Resume()

	assert.Equal(t, 0, pool.Submissions())
	assert.Equal(t, int64(1), q.RefCount())
}

// TestSerialQueue_SuspendFromTaskStopsDrain verifies suspension is checked between tasks
// Given: a queue whose first task suspends the queue
// When: the drain session runs
// Then: the second task waits for Resume and the queue does not resubmit itself meanwhile
//
// A session that ends suspended with work left schedules nothing, unlike a
// session that yields on its batch limit. The resubmission comes from the
// Resume that brings the suspend count back to zero.
func TestSerialQueue_SuspendFromTaskStopsDrain(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("mid-drain", pool)
	task, order := recorder()

	q.Execute(func(ctx context.Context) {
		task("first")(ctx)
		q.Suspend()
	})
	q.Execute(task("second"))

	// Act
	pool.RunAll()

	// Assert
	assert.Equal(t, []string{"first"}, order())
	assert.Equal(t, int64(1), q.PendingCount())
	assert.Equal(t, 0, pool.Submissions())

	// Act
	q.Resume()
	require.Equal(t, 1, pool.Submissions())
	pool.RunAll()

	// Assert
	assert.Equal(t, []string{"first", "second"}, order())
	assert.Equal(t, int64(0), q.PendingCount())
}

// TestSerialQueue_BatchYield verifies the per-session batch limit
// Given: 2500 tasks admitted to a queue with the default batch limit
// When: the first drain session runs
// Then: exactly 1000 run, 1500 stay pending and the queue resubmits itself
func TestSerialQueue_BatchYield(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("batch", pool)
	var ran atomic.Int32

	for i := 0; i < 2500; i++ {
		q.Execute(func(ctx context.Context) { ran.Add(1) })
	}
	require.Equal(t, 1, pool.Submissions())

	// Act
	pool.RunNext()

	// Assert
	assert.Equal(t, int32(core.DefaultBatchLimit), ran.Load())
	assert.Equal(t, int64(1500), q.PendingCount())
	assert.Equal(t, 1, pool.Submissions(), "queue should resubmit itself after yielding")

	// Act - remaining sessions
	sessions := pool.RunAll()

	// Assert
	assert.Equal(t, 2, sessions)
	assert.Equal(t, int32(2500), ran.Load())
	assert.Equal(t, int64(0), q.PendingCount())
	assert.Equal(t, int64(3), q.Stats().Sessions)
}

// TestSerialQueue_CustomBatchLimit verifies QueueConfig.BatchLimit
// Given: a queue configured with a batch limit of 2
// When: five tasks are drained
// Then: three sessions are needed
func TestSerialQueue_CustomBatchLimit(t *testing.T) {
	pool := &MockThreadPool{}
	cfg := core.DefaultQueueConfig()
	cfg.BatchLimit = 2
	q := core.NewSerialQueueWithConfig("small-batch", pool, cfg)
	task, order := recorder()

	for _, name := range []string{"1", "2", "3", "4", "5"} {
		q.Execute(task(name))
	}

	assert.Equal(t, 3, pool.RunAll())
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, order())
	assert.Equal(t, 2, q.BatchLimit())
}

// TestSerialQueue_ReentrantAdmissionRunsNext verifies the reentrant scenario
// Given: task A running on the queue
// When: A admits B through its ctx and another goroutine admits C while A is still running
// Then: B runs right after A, before C
func TestSerialQueue_ReentrantAdmissionRunsNext(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("reentrant", pool)
	task, order := recorder()

	q.Execute(func(ctx context.Context) {
		task("A")(ctx)
		q.DispatchAsync(ctx, task("B"))

		admitted := make(chan struct{})
		go func() {
			q.Execute(task("C"))
			close(admitted)
		}()
		<-admitted
	})

	// Act
	pool.RunAll()

	// Assert
	assert.Equal(t, []string{"A", "B", "C"}, order())
	assert.Equal(t, int64(0), q.PendingCount())
}

// TestSerialQueue_ReentrantAdmissionAfterLocalBacklog verifies reentrant work
// goes behind the local backlog
// Given: A and X moved to the local queue in the same session
// When: A admits B reentrantly
// Then: the order is A, X, B
func TestSerialQueue_ReentrantAdmissionAfterLocalBacklog(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("backlog", pool)
	task, order := recorder()

	q.Suspend()
	q.Execute(func(ctx context.Context) {
		task("A")(ctx)
		q.DispatchAsync(ctx, task("B"))
	})
	q.Execute(task("X"))

	// Act
	q.Resume()
	pool.RunAll()

	// Assert
	assert.Equal(t, []string{"A", "X", "B"}, order())
}

// TestSerialQueue_ReentrantAdmissionSkipsPool verifies the local shortcut
// Given: a running task
// When: it admits another task through its ctx
// Then: no extra pool submission happens
func TestSerialQueue_ReentrantAdmissionSkipsPool(t *testing.T) {
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("shortcut", pool)
	var submissionsInside int

	q.Execute(func(ctx context.Context) {
		q.DispatchAsync(ctx, func(ctx context.Context) {})
		submissionsInside = pool.Submissions()
	})
	pool.RunAll()

	assert.Equal(t, 0, submissionsInside)
	assert.Equal(t, int64(0), q.PendingCount())
}

// TestSerialQueue_ForeignContextIsNotReentrant verifies drain contexts are per queue
// Given: a task running on queue one
// When: it admits to queue two with its own ctx
// Then: queue two schedules itself through the pool
func TestSerialQueue_ForeignContextIsNotReentrant(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	one := core.NewSerialQueue("one", pool)
	two := core.NewSerialQueue("two", pool)
	task, order := recorder()

	one.Execute(func(ctx context.Context) {
		assert.Same(t, one, core.CurrentQueue(ctx))
		two.DispatchAsync(ctx, task("on-two"))
	})

	// Act
	pool.RunNext()

	// Assert
	assert.Empty(t, order())
	require.Equal(t, 1, pool.Submissions())
	pool.RunAll()
	assert.Equal(t, []string{"on-two"}, order())
}

// TestSerialQueue_EscapedContextIsNotReentrant verifies the goroutine check
// Given: a task that hands its ctx to another goroutine
// When: that goroutine admits to the same queue with the ctx
// Then: the task takes the external path and still runs
func TestSerialQueue_EscapedContextIsNotReentrant(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("escaped", pool)
	task, order := recorder()

	q.Execute(func(ctx context.Context) {
		task("A")(ctx)
		done := make(chan struct{})
		go func() {
			q.DispatchAsync(ctx, task("from-goroutine"))
			close(done)
		}()
		<-done
	})

	// Act
	pool.RunAll()

	// Assert
	assert.Equal(t, []string{"A", "from-goroutine"}, order())
	assert.Equal(t, int64(0), q.PendingCount())
}

// TestSerialQueue_CurrentQueueOutsideTask verifies CurrentQueue on a plain context
func TestSerialQueue_CurrentQueueOutsideTask(t *testing.T) {
	assert.Nil(t, core.CurrentQueue(context.Background()))
}

// TestSerialQueue_ReleaseAccounting verifies retain/release around pending work
// Given: a new queue with a release watcher
// When: work is admitted and drained, then the creator releases
// Then: the pending reference is dropped after the drain and the watcher runs once
func TestSerialQueue_ReleaseAccounting(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("lifetime", pool)
	var released atomic.Int32
	q.AddReleaseWatcher(func() { released.Add(1) })

	require.Equal(t, int64(1), q.RefCount())

	// Act - admit
	q.Execute(func(ctx context.Context) {})
	q.Execute(func(ctx context.Context) {})

	// Assert - one extra reference for pending work
	assert.Equal(t, int64(2), q.RefCount())

	// Act - drain
	pool.RunAll()

	// Assert
	assert.Equal(t, int64(1), q.RefCount())
	assert.Equal(t, int32(0), released.Load())

	// Act - creator drops its reference
	q.Release()

	// Assert
	assert.Equal(t, int32(1), released.Load())
	assert.True(t, q.IsReleased())
	assert.True(t, q.Stats().Released)
}

// TestSerialQueue_ReleasedWhilePending verifies the queue outlives its creator
// Given: a queue with pending work whose creator already released it
// When: the work drains
// Then: the queue is released exactly once, after the last task
func TestSerialQueue_ReleasedWhilePending(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("orphan", pool)
	var released atomic.Int32
	var releasedBeforeTask bool
	q.AddReleaseWatcher(func() { released.Add(1) })

	q.Execute(func(ctx context.Context) {
		releasedBeforeTask = q.IsReleased()
	})

	// Act
	q.Release()
	pool.RunAll()

	// Assert
	assert.False(t, releasedBeforeTask)
	assert.Equal(t, int32(1), released.Load())
	assert.Panics(t, func() { q.Execute(func(ctx context.Context) {}) }, "admission after release")
}

// TestSerialQueue_SpuriousRunDoesNotRelease verifies idle drain sessions
// Given: a queue with no pending work
// When: Run is invoked directly
// Then: the reference count is unchanged
func TestSerialQueue_SpuriousRunDoesNotRelease(t *testing.T) {
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("spurious", pool)

	q.Run(context.Background())
	q.Run(context.Background())

	assert.Equal(t, int64(1), q.RefCount())
	assert.False(t, q.IsReleased())
	assert.Equal(t, 0, pool.Submissions())
}

// TestSerialQueue_PanicRecovery verifies a panicking task does not stop the queue
// Given: a queue with a recording panic handler
// When: the first of two tasks panics
// Then: the handler gets the queue label and the second task still runs
func TestSerialQueue_PanicRecovery(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	handler := &recordingPanicHandler{}
	cfg := core.DefaultQueueConfig()
	cfg.PanicHandler = handler
	q := core.NewSerialQueueWithConfig("panicky", pool, cfg)
	task, order := recorder()

	q.Execute(func(ctx context.Context) { panic("boom") })
	q.Execute(task("after"))

	// Act
	pool.RunAll()

	// Assert
	assert.Equal(t, []string{"after"}, order())
	require.Len(t, handler.calls, 1)
	assert.Equal(t, "panicky", handler.calls[0].label)
	assert.Equal(t, "boom", handler.calls[0].info)
	assert.NotEmpty(t, handler.calls[0].stack)
	assert.Equal(t, int64(1), q.Stats().Panics)
	assert.Equal(t, int64(0), q.PendingCount())
}

type panicCall struct {
	label string
	info  any
	stack []byte
}

type recordingPanicHandler struct {
	mu    sync.Mutex
	calls []panicCall
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, queueLabel string, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, panicCall{label: queueLabel, info: panicInfo, stack: stackTrace})
}

// TestSerialQueue_Interceptors verifies interceptor order
// Given: two interceptors
// When: a task runs
// Then: the first interceptor is outermost
func TestSerialQueue_Interceptors(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	var trace []string
	wrap := func(name string) core.Interceptor {
		return func(label string, next core.Task) core.Task {
			return func(ctx context.Context) {
				trace = append(trace, name+">"+label)
				next(ctx)
				trace = append(trace, "<"+name)
			}
		}
	}
	cfg := core.DefaultQueueConfig()
	cfg.Interceptors = []core.Interceptor{wrap("outer"), wrap("inner")}
	q := core.NewSerialQueueWithConfig("wrapped", pool, cfg)

	// Act
	q.Execute(func(ctx context.Context) { trace = append(trace, "task") })
	pool.RunAll()

	// Assert
	assert.Equal(t, []string{"outer>wrapped", "inner>wrapped", "task", "<inner", "<outer"}, trace)
}

// TestSerialQueue_StatsAndHistory verifies observability data
// Given: a queue with an execution history of 2
// When: three tasks run
// Then: RecentTasks returns the last two newest first and Stats reflects the counters
func TestSerialQueue_StatsAndHistory(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	cfg := core.DefaultQueueConfig()
	cfg.HistoryCapacity = 2
	q := core.NewSerialQueueWithConfig("observed", pool, cfg, core.OptionStickToCallerThread)

	// Act
	for i := 0; i < 3; i++ {
		q.Execute(func(ctx context.Context) {})
	}
	before := q.Stats()
	pool.RunAll()
	after := q.Stats()

	// Assert
	assert.Equal(t, int64(3), before.Pending)
	assert.Equal(t, int64(3), before.ExternalPending)
	assert.Equal(t, int64(2), before.RefCount)

	assert.Equal(t, "observed", after.Label)
	assert.True(t, after.Options.Has(core.OptionStickToCallerThread))
	assert.Equal(t, int64(0), after.Pending)
	assert.Equal(t, int64(0), after.ExternalPending)
	assert.Equal(t, int64(3), after.Processed)
	assert.Equal(t, int64(1), after.Sessions)
	assert.False(t, after.Draining)
	assert.False(t, after.LastTaskAt.IsZero())
	assert.NotEmpty(t, after.LastTaskName)

	recent := q.RecentTasks(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "observed", recent[0].Queue)
	assert.False(t, recent[0].FinishedAt.Before(recent[1].FinishedAt))
}

// TestSerialQueue_HistoryDisabledByDefault verifies the default config keeps no history
func TestSerialQueue_HistoryDisabledByDefault(t *testing.T) {
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("no-history", pool)

	q.Execute(func(ctx context.Context) {})
	pool.RunAll()

	assert.Empty(t, q.RecentTasks(0))
	assert.Empty(t, q.Stats().LastTaskName)
}

// TestSerialQueue_DispatchAfterUsesPoolDelay verifies delayed admission
// Given: a queue on a mock pool
// When: a task is dispatched with a delay
// Then: the pool receives it with that delay and the queue holds a reference until admission
func TestSerialQueue_DispatchAfterUsesPoolDelay(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("delayed", pool)
	task, order := recorder()

	// Act
	q.DispatchAfter(50*time.Millisecond, task("later"))

	// Assert
	require.Len(t, pool.delayed, 1)
	assert.Equal(t, 50*time.Millisecond, pool.delayed[0].Delay)
	assert.Equal(t, int64(2), q.RefCount())
	assert.Equal(t, 0, pool.Submissions())

	// Act - the delay expires
	pool.delayed[0].Target.Execute(pool.delayed[0].Task)
	pool.RunAll()

	// Assert
	assert.Equal(t, []string{"later"}, order())
	assert.Equal(t, int64(1), q.RefCount())
}

// TestSerialQueue_DispatchAfterNonPositiveDelay verifies immediate admission
func TestSerialQueue_DispatchAfterNonPositiveDelay(t *testing.T) {
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("now", pool)

	q.DispatchAfter(0, func(ctx context.Context) {})

	assert.Empty(t, pool.delayed)
	assert.Equal(t, 1, pool.Submissions())
}

// TestSerialQueue_Preconditions verifies misuse fails fast
func TestSerialQueue_Preconditions(t *testing.T) {
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("strict", pool)

	assert.Panics(t, func() { core.NewSerialQueue("no-pool", nil) })
	assert.Panics(t, func() { q.Execute(nil) })
	assert.Panics(t, func() { q.DispatchAsync(context.Background(), nil) })
	assert.Panics(t, func() { q.DispatchAfter(time.Second, nil) })
	assert.Panics(t, func() { _ = q.DispatchSync(context.Background(), nil) })

	q.Release()
	assert.Panics(t, func() { q.Release() })
}

// TestSerialQueue_ConcurrentRunSingleDrainer verifies overlapping drain attempts
// Given: a queue whose tasks check they never overlap
// When: many goroutines call Run while tasks are admitted
// Then: no two tasks run at once and every task runs exactly once
func TestSerialQueue_ConcurrentRunSingleDrainer(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("gate", pool)

	const tasks = 2000
	var inFlight, maxInFlight, ran atomic.Int32
	work := func(ctx context.Context) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		ran.Add(1)
		inFlight.Add(-1)
	}

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < tasks/8; j++ {
				q.Execute(work)
				if j%50 == 0 {
					q.Run(context.Background())
				}
			}
		}()
	}
	wg.Wait()
	for q.PendingCount() > 0 {
		if !pool.RunNext() {
			q.Run(context.Background())
		}
	}

	// Assert
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, int32(tasks), ran.Load())
	assert.Equal(t, int64(1), q.RefCount())
}

// TestSerialQueue_CurrentQueueEscapedContext verifies CurrentQueue only
// answers inside the session that made ctx
// Given: a task that keeps its ctx and also hands it to another goroutine
// When: CurrentQueue is asked on that goroutine and after the session ended
// Then: both answers are nil while the task itself sees its queue
func TestSerialQueue_CurrentQueueEscapedContext(t *testing.T) {
	// Arrange
	pool := &MockThreadPool{}
	q := core.NewSerialQueue("escaped-current", pool)
	var kept context.Context
	var inside, onOtherGoroutine *core.SerialQueue

	q.Execute(func(ctx context.Context) {
		kept = ctx
		inside = core.CurrentQueue(ctx)
		done := make(chan struct{})
		go func() {
			onOtherGoroutine = core.CurrentQueue(ctx)
			close(done)
		}()
		<-done
	})

	// Act
	pool.RunAll()

	// Assert
	assert.Same(t, q, inside)
	assert.Nil(t, onOtherGoroutine)
	require.NotNil(t, kept)
	assert.Nil(t, core.CurrentQueue(kept))
}
