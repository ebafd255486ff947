package core

import "sync/atomic"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// =============================================================================
// localQueue: FIFO touched only by the goroutine holding the drain role
// =============================================================================

// localQueue is NOT thread-safe. Exclusive access is provided by the
// activeDrainers gate of the owning SerialQueue.
type localQueue struct {
	tasks []Task
}

func newLocalQueue() localQueue {
	return localQueue{tasks: make([]Task, 0, defaultQueueCap)}
}

func (q *localQueue) Push(t Task) {
	q.tasks = append(q.tasks, t)
}

func (q *localQueue) Pop() (Task, bool) {
	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompact()

	return t, true
}

func (q *localQueue) Len() int {
	return len(q.tasks)
}

func (q *localQueue) IsEmpty() bool {
	return len(q.tasks) == 0
}

func (q *localQueue) maybeCompact() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]Task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

// =============================================================================
// externalQueue: lock-free multi-producer, single-consumer linked queue
// =============================================================================

type externalNode struct {
	next atomic.Pointer[externalNode]
	task Task
}

// externalQueue is an intrusive MPSC queue. Push may be called from any
// goroutine. Pop must only be called by the current drainer.
//
// A producer links its node in two steps (swap head, then publish next), so a
// Pop racing with a Push can report empty even though the producer has already
// counted its task. Callers treat that as "not visible yet".
type externalQueue struct {
	head atomic.Pointer[externalNode] // most recently pushed
	tail *externalNode                // consumer side stub
}

func newExternalQueue() *externalQueue {
	stub := &externalNode{}
	q := &externalQueue{tail: stub}
	q.head.Store(stub)
	return q
}

func (q *externalQueue) Push(t Task) {
	n := &externalNode{task: t}
	prev := q.head.Swap(n)
	prev.next.Store(n)
}

func (q *externalQueue) Pop() (Task, bool) {
	next := q.tail.next.Load()
	if next == nil {
		return nil, false
	}
	q.tail = next
	t := next.task
	next.task = nil
	return t, true
}
