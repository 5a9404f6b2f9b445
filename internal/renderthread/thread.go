// Package renderthread runs GPU work on one dedicated OS thread.
//
// Graphics drivers bind contexts and queues to the thread that created them,
// so every GPU object of a pipeline is created, used and destroyed by the
// goroutine started here, which is locked to its OS thread for its whole
// life. Other goroutines hand it work with Invoke (blocking) or Post
// (fire-and-forget).
package renderthread

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("renderthread: stopped")

// DefaultQueue is the number of posted tasks that may wait before Post blocks.
const DefaultQueue = 16

// Thread is a goroutine locked to an OS thread, executing tasks in
// submission order.
type Thread struct {
	name string
	work chan func()
	done chan struct{}

	mu      sync.RWMutex
	stopped bool
}

// Start launches the thread. queue bounds the posted backlog; values
// below 1 select DefaultQueue.
func Start(name string, queue int) *Thread {
	if queue < 1 {
		queue = DefaultQueue
	}
	t := &Thread{
		name: name,
		work: make(chan func(), queue),
		done: make(chan struct{}),
	}
	started := make(chan struct{})
	go t.loop(started)
	<-started
	return t
}

func (t *Thread) loop(started chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)
	close(started)

	for fn := range t.work {
		fn()
	}
}

// Name returns the name given to Start.
func (t *Thread) Name() string {
	return t.name
}

// Post queues fn and returns without waiting for it to run.
func (t *Thread) Post(fn func()) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.stopped {
		return ErrStopped
	}
	t.work <- fn
	return nil
}

// Invoke runs fn on the thread and waits for it to return. A panic in fn
// is re-raised in the caller. Invoke must not be called from the thread
// itself.
func (t *Thread) Invoke(fn func()) error {
	done := make(chan any, 1)
	err := t.Post(func() {
		defer func() { done <- recover() }()
		fn()
	})
	if err != nil {
		return err
	}
	if p := <-done; p != nil {
		panic(fmt.Sprintf("renderthread %s: %v", t.name, p))
	}
	return nil
}

// Stop rejects further work, runs everything already queued and waits for
// the thread to exit. It is safe to call more than once, but not from the
// thread itself.
func (t *Thread) Stop() {
	t.mu.Lock()
	if !t.stopped {
		t.stopped = true
		close(t.work)
	}
	t.mu.Unlock()
	<-t.done
}

// Stopped reports whether Stop has been called.
func (t *Thread) Stopped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopped
}
