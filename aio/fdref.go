package aio

import "sync"

// fdRef counts operations using a descriptor. Close only marks the file as
// closing; the descriptor is released when the last operation finishes, so
// its number cannot be reused by another file while an operation still
// targets it.
type fdRef struct {
	mu      sync.Mutex
	refs    int
	closing bool
}

// acquire takes a reference, failing once Close has been called.
func (f *File) acquire() bool {
	f.ref.mu.Lock()
	defer f.ref.mu.Unlock()
	if f.ref.closing {
		return false
	}
	f.ref.refs++
	return true
}

// release drops a reference and closes the descriptor if it was the last one
// after Close.
func (f *File) release() error {
	f.ref.mu.Lock()
	f.ref.refs--
	last := f.ref.closing && f.ref.refs == 0
	f.ref.mu.Unlock()
	if last {
		return f.closeFD()
	}
	return nil
}

// Close marks the file closed. Operations started afterwards fail with
// ErrClosed; operations already started complete, and the descriptor is
// closed when the last of them finishes. A second Close returns ErrClosed.
func (f *File) Close() error {
	f.ref.mu.Lock()
	if f.ref.closing {
		f.ref.mu.Unlock()
		return ErrClosed
	}
	f.ref.closing = true
	idle := f.ref.refs == 0
	f.ref.mu.Unlock()
	if idle {
		return f.closeFD()
	}
	return nil
}
