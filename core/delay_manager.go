package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayedTask is a task waiting for its admission time.
type DelayedTask struct {
	RunAt  time.Time
	Task   Task
	Target Executor
	seq    uint64
	index  int // for heap interface
}

// DelayedTaskHeap orders tasks by RunAt, then by insertion.
type DelayedTaskHeap []*DelayedTask

func (h DelayedTaskHeap) Len() int { return len(h) }
func (h DelayedTaskHeap) Less(i, j int) bool {
	if h[i].RunAt.Equal(h[j].RunAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].RunAt.Before(h[j].RunAt)
}
func (h DelayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *DelayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*DelayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *DelayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *DelayedTaskHeap) Peek() *DelayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager holds delayed tasks on a single timer goroutine and hands each
// one to its target Executor once it expires. Tasks with equal deadlines are
// admitted in the order they were added.
type DelayManager struct {
	pq      DelayedTaskHeap
	mu      sync.Mutex
	nextSeq uint64
	wakeup  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewDelayManager() *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		pq:      make(DelayedTaskHeap, 0),
		wakeup:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// AddDelayedTask schedules task to be handed to target after delay.
// Returns false once the manager is stopped.
func (dm *DelayManager) AddDelayedTask(task Task, delay time.Duration, target Executor) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.ctx.Err() != nil {
		return false
	}

	item := &DelayedTask{
		RunAt:  time.Now().Add(delay),
		Task:   task,
		Target: target,
		seq:    dm.nextSeq,
	}
	dm.nextSeq++
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
	return true
}

func (dm *DelayManager) loop() {
	defer close(dm.stopped)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		nextRun, pending := dm.calculateNextRun()
		if !pending {
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.processExpiredTasks()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun returns how long to wait for the earliest task, and false
// when nothing is scheduled.
func (dm *DelayManager) calculateNextRun() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, false
	}

	wait := time.Until(item.RunAt)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func (dm *DelayManager) processExpiredTasks() {
	dm.mu.Lock()

	now := time.Now()
	// Collect all expired tasks to avoid holding lock while admitting
	var expired []*DelayedTask

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	for _, item := range expired {
		item.Target.Execute(item.Task)
	}
}

// Stop ends the timer goroutine and drops every pending task.
// It returns the number of tasks dropped.
func (dm *DelayManager) Stop() int {
	dm.mu.Lock()
	dm.cancel()
	dropped := len(dm.pq)
	// Clear pq to release all target references
	dm.pq = make(DelayedTaskHeap, 0)
	heap.Init(&dm.pq)
	dm.mu.Unlock()

	<-dm.stopped
	return dropped
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
