package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const schedulerSource = "TaskScheduler"

// TaskScheduler is the ready queue shared by a pool's workers. Tasks are handed
// out in submission order; delayed tasks wait in a DelayManager and are then
// admitted through their target Executor.
type TaskScheduler struct {
	mu     sync.Mutex
	ready  localQueue
	signal chan struct{}

	workerCount  int
	delayManager *DelayManager

	metricQueued   atomic.Int32 // Waiting in ready queue
	metricActive   atomic.Int32 // Executing in Worker
	metricRejected atomic.Int64

	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	shuttingDown atomic.Bool
	draining     atomic.Bool
}

func NewFIFOTaskScheduler(workerCount int) *TaskScheduler {
	return NewFIFOTaskSchedulerWithConfig(workerCount, DefaultSchedulerConfig())
}

func NewFIFOTaskSchedulerWithConfig(workerCount int, config *SchedulerConfig) *TaskScheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	s := &TaskScheduler{
		ready:        newLocalQueue(),
		signal:       make(chan struct{}, workerCount*2),
		workerCount:  workerCount,
		delayManager: NewDelayManager(),
	}

	if config != nil {
		s.logger = config.Logger
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		s.rejectedTaskHandler = config.RejectedTaskHandler
	}

	// Use defaults if not provided
	if s.logger == nil {
		s.logger = NewNoOpLogger()
	}
	if s.panicHandler == nil {
		s.panicHandler = NewDefaultPanicHandler(s.logger)
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: s.logger}
	}

	return s
}

// Submit appends task to the ready queue. After shutdown the task is dropped
// and reported to the RejectedTaskHandler. While ShutdownGraceful is draining,
// submissions are still accepted as long as a task is running, so work that
// reschedules itself from inside a task is not lost.
func (s *TaskScheduler) Submit(task Task) {
	s.mu.Lock()
	if s.shuttingDown.Load() || (s.draining.Load() && s.metricActive.Load() == 0) {
		s.mu.Unlock()
		s.reject("shutting down")
		return
	}
	s.ready.Push(task)
	s.metricQueued.Add(1)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
}

// SubmitDelayed hands task to target once delay has elapsed.
func (s *TaskScheduler) SubmitDelayed(task Task, delay time.Duration, target Executor) {
	if s.shuttingDown.Load() || s.draining.Load() || !s.delayManager.AddDelayedTask(task, delay, target) {
		s.reject("shutting down")
	}
}

func (s *TaskScheduler) reject(reason string) {
	s.metricRejected.Add(1)
	s.rejectedTaskHandler.HandleRejectedTask(schedulerSource, reason)
	s.metrics.RecordTaskRejected(schedulerSource, reason)
}

// GetWork blocks until a task is ready or stopCh is closed. Called by workers.
// The returned task already counts as active; the worker calls OnTaskEnd when
// it finishes.
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (Task, bool) {
	for {
		s.mu.Lock()
		task, ok := s.ready.Pop()
		if ok {
			// Never queued==0 && active==0 while a task changes hands.
			s.metricActive.Add(1)
			s.metricQueued.Add(-1)
		}
		s.mu.Unlock()
		if ok {
			return task, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

// Shutdown stops accepting work and drops everything still queued or delayed.
func (s *TaskScheduler) Shutdown() {
	s.shuttingDown.Store(true)
	dropped := s.delayManager.Stop()
	dropped += s.clear()
	if dropped > 0 {
		s.logger.Warn("scheduler shut down with pending tasks", F("dropped", dropped))
	}
}

// ShutdownGraceful stops accepting outside work and waits for queued and
// active tasks to finish. Running tasks may keep submitting until the pool is
// idle. Pending delayed tasks are dropped. On timeout the ready queue is
// cleared and an error is returned.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) error {
	s.draining.Store(true)
	s.delayManager.Stop()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.finishDrain() {
			return nil
		}
		select {
		case <-deadline:
			s.shuttingDown.Store(true)
			dropped := s.clear()
			return fmt.Errorf("shutdown graceful timeout after %v, dropped %d queued task(s)", timeout, dropped)
		case <-ticker.C:
		}
	}
}

// finishDrain flips to shut down once nothing is queued or running. It holds
// mu so no Submit can slip in between the check and the flip.
func (s *TaskScheduler) finishDrain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metricQueued.Load() != 0 || s.metricActive.Load() != 0 {
		return false
	}
	s.shuttingDown.Store(true)
	return true
}

func (s *TaskScheduler) clear() int {
	s.mu.Lock()
	n := s.ready.Len()
	s.ready = newLocalQueue()
	s.mu.Unlock()
	s.metricQueued.Add(int32(-n))
	return n
}

// IsShuttingDown reports whether Shutdown or ShutdownGraceful was called.
func (s *TaskScheduler) IsShuttingDown() bool { return s.shuttingDown.Load() || s.draining.Load() }

// Metrics
func (s *TaskScheduler) WorkerCount() int       { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int   { return int(s.metricQueued.Load()) }
func (s *TaskScheduler) ActiveTaskCount() int   { return int(s.metricActive.Load()) }
func (s *TaskScheduler) RejectedTaskCount() int { return int(s.metricRejected.Load()) }
func (s *TaskScheduler) DelayedTaskCount() int {
	return s.delayManager.TaskCount()
}

// OnTaskStart marks a task as running outside GetWork.
func (s *TaskScheduler) OnTaskStart() {
	s.metricActive.Add(1)
}

// OnTaskEnd marks a running task as finished.
func (s *TaskScheduler) OnTaskEnd() {
	s.metricActive.Add(-1)
}

// GetPanicHandler returns the handler for panics that escape a submitted task.
func (s *TaskScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

// GetMetrics returns the metrics collector for this scheduler
func (s *TaskScheduler) GetMetrics() Metrics {
	return s.metrics
}

// GetLogger returns the scheduler's logger.
func (s *TaskScheduler) GetLogger() Logger {
	return s.logger
}
