package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Retained is a manually reference counted base object.
//
// The count starts at zero; the owner takes the first reference with Retain.
// When Release brings the count back to zero the object is marked released and
// every registered watcher runs once, in registration order, on the releasing
// goroutine. Retaining or releasing a released object is a caller error and
// panics.
type Retained struct {
	refs     atomic.Int64
	released atomic.Bool

	watchersMu sync.Mutex
	watchers   []func()
}

// Retain takes a reference.
func (r *Retained) Retain() {
	if r.released.Load() {
		panic("Retained: retain after release")
	}
	r.refs.Add(1)
}

// Release drops a reference.
func (r *Retained) Release() {
	n := r.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic(fmt.Sprintf("Retained: release below zero (count=%d)", n))
	}
	if !r.released.CompareAndSwap(false, true) {
		panic("Retained: double release")
	}

	r.watchersMu.Lock()
	watchers := r.watchers
	r.watchers = nil
	r.watchersMu.Unlock()

	for _, w := range watchers {
		w()
	}
}

// RefCount returns the current reference count.
func (r *Retained) RefCount() int64 {
	return r.refs.Load()
}

// IsReleased reports whether the count has reached zero after being retained.
func (r *Retained) IsReleased() bool {
	return r.released.Load()
}

// AddReleaseWatcher registers fn to run when the object is released.
// If the object is already released, fn runs immediately.
func (r *Retained) AddReleaseWatcher(fn func()) {
	if fn == nil {
		return
	}
	r.watchersMu.Lock()
	if r.released.Load() {
		r.watchersMu.Unlock()
		fn()
		return
	}
	r.watchers = append(r.watchers, fn)
	r.watchersMu.Unlock()
}
