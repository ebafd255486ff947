package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	Name       string
	Queue      string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// QueueStats represents runtime observability state for a serial queue.
type QueueStats struct {
	Label           string
	Options         Options
	Pending         int64
	ExternalPending int64
	SuspendCount    int32
	Draining        bool
	RefCount        int64
	Released        bool
	Processed       int64
	Panics          int64
	Sessions        int64
	LastTaskName    string
	LastTaskAt      time.Time
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID      string
	Workers int
	Queued  int
	Active  int
	Delayed int
	Running bool
}
