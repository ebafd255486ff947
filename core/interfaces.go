package core

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// The drain loop keeps going after the handler returns.
//
// Implementations should be thread-safe as they may be called concurrently
// from different queues.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context the task ran with (carries the drain context)
	// - queueLabel: The label of the queue that ran the task
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, queueLabel string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// NewDefaultPanicHandler returns a handler logging to logger (NoOpLogger if nil).
func NewDefaultPanicHandler(logger Logger) *DefaultPanicHandler {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &DefaultPanicHandler{Logger: logger}
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, queueLabel string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		return
	}
	logger.Error("task panicked",
		F("queue", queueLabel),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// RateLimitedPanicHandler forwards to Next at most at the limiter's rate and
// counts what it drops. The next forwarded report carries the dropped count.
type RateLimitedPanicHandler struct {
	Next       PanicHandler
	Logger     Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewRateLimitedPanicHandler allows one report per interval with the given burst.
func NewRateLimitedPanicHandler(next PanicHandler, logger Logger, interval time.Duration, burst int) *RateLimitedPanicHandler {
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &RateLimitedPanicHandler{
		Next:    next,
		Logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

// HandlePanic implements PanicHandler.
func (h *RateLimitedPanicHandler) HandlePanic(ctx context.Context, queueLabel string, panicInfo any, stackTrace []byte) {
	if !h.limiter.Allow() {
		h.suppressed.Add(1)
		return
	}
	if n := h.suppressed.Swap(0); n > 0 {
		h.Logger.Warn("task panic reports suppressed", F("queue", queueLabel), F("suppressed", n))
	}
	if h.Next != nil {
		h.Next.HandlePanic(ctx, queueLabel, panicInfo, stackTrace)
	}
}

// Suppressed returns the number of reports dropped since the last forwarded one.
func (h *RateLimitedPanicHandler) Suppressed() int64 {
	return h.suppressed.Load()
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting queue execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, OpenTelemetry, etc.).
//
// Methods are called from the drain loop and should be non-blocking and fast.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(queueLabel string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(queueLabel string, panicInfo any)

	// RecordQueueDepth records the pending task count of a queue.
	RecordQueueDepth(queueLabel string, depth int)

	// RecordTaskRejected records that a submission was rejected (e.g., during shutdown).
	RecordTaskRejected(source string, reason string)

	// RecordDrainSession records the end of one drain loop.
	// yielded is true when the queue resubmitted itself with work remaining.
	RecordDrainSession(queueLabel string, processed int, yielded bool)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(queueLabel string, duration time.Duration)      {}
func (m *NilMetrics) RecordTaskPanic(queueLabel string, panicInfo any)                  {}
func (m *NilMetrics) RecordQueueDepth(queueLabel string, depth int)                     {}
func (m *NilMetrics) RecordTaskRejected(source string, reason string)                   {}
func (m *NilMetrics) RecordDrainSession(queueLabel string, processed int, yielded bool) {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected submissions
// =============================================================================

// RejectedTaskHandler is called when the scheduler refuses a submission,
// which happens once it is shutting down.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(source string, reason string)
}

// DefaultRejectedTaskHandler logs rejected submissions.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(source string, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn("task rejected", F("source", source), F("reason", reason))
}

// =============================================================================
// Interceptor: wraps task execution
// =============================================================================

// Interceptor wraps a task at execution time. label is the queue label.
// Interceptors run inside the drain loop's panic boundary.
type Interceptor func(label string, next Task) Task

func chainInterceptors(label string, task Task, interceptors []Interceptor) Task {
	for i := len(interceptors) - 1; i >= 0; i-- {
		task = interceptors[i](label, task)
	}
	return task
}

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultBatchLimit is the number of tasks a queue runs per drain session
	// before yielding its worker back to the pool.
	DefaultBatchLimit = 1000
)

// QueueConfig holds configuration options for SerialQueue.
// All fields are optional; zero values fall back to defaults.
type QueueConfig struct {
	// BatchLimit caps tasks per drain session. Defaults to DefaultBatchLimit.
	BatchLimit int

	// Logger receives lifecycle debug logs. Defaults to NoOpLogger.
	Logger Logger

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler on Logger.
	PanicHandler PanicHandler

	// Metrics records execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Interceptors wrap every task; the first is outermost.
	Interceptors []Interceptor

	// HistoryCapacity is the size of the execution history ring. 0 disables it.
	HistoryCapacity int
}

// DefaultQueueConfig returns a config with default handlers.
func DefaultQueueConfig() *QueueConfig {
	logger := NewNoOpLogger()
	return &QueueConfig{
		BatchLimit:   DefaultBatchLimit,
		Logger:       logger,
		PanicHandler: NewDefaultPanicHandler(logger),
		Metrics:      &NilMetrics{},
	}
}

// SchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type SchedulerConfig struct {
	// Logger is used by the default handlers. Defaults to NewDefaultLogger.
	Logger Logger

	// PanicHandler is called when a submitted task panics outside any queue.
	PanicHandler PanicHandler

	// Metrics is called to record rejections. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewDefaultLogger()
	return &SchedulerConfig{
		Logger:              logger,
		PanicHandler:        NewDefaultPanicHandler(logger),
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
	}
}
