// Package frameslot holds the most recent decoded frame between the decoder
// and the render loop.
//
// The slot has room for exactly one frame. Pushing while a frame is pending
// releases the pending one and counts it as dropped, so a decoder that runs
// ahead of the display never queues latency. Frames flagged as decode errors
// are released on arrival and counted separately; they never occupy the slot.
package frameslot

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/streamview/frame"
)

// Stats is a snapshot of the slot counters.
type Stats struct {
	// Pushed counts every frame handed to Push, including error frames.
	Pushed uint64
	// Dropped counts frames superseded before they were taken.
	Dropped uint64
	// Corrupted counts decode-error frames since the slot was created.
	Corrupted uint64
	// RecentCorrupted is the surfaced error indicator. It rises with each
	// decode-error frame and returns to zero once enough good frames follow.
	RecentCorrupted uint64
}

// Slot is a single-frame mailbox with drop-oldest semantics.
// It is safe for concurrent use.
type Slot struct {
	mu      sync.Mutex
	pending *frame.Frame

	pushed    atomic.Uint64
	dropped   atomic.Uint64
	corrupted atomic.Uint64
	recent    atomic.Uint64

	// goodRun counts consecutive good frames since the last corrupted one.
	// Guarded by mu.
	goodRun    int
	resetAfter int
	onChange   func(recent uint64)
}

// Option configures a Slot.
type Option func(*Slot)

// WithResetAfter sets how many consecutive good frames clear the surfaced
// corrupted counter. Values below 1 are treated as 1.
func WithResetAfter(n int) Option {
	return func(s *Slot) {
		s.resetAfter = max(n, 1)
	}
}

// WithCorruptedChanged registers fn to be called whenever the surfaced
// corrupted counter changes. fn runs on the pushing goroutine and must not
// call back into the slot.
func WithCorruptedChanged(fn func(recent uint64)) Option {
	return func(s *Slot) {
		s.onChange = fn
	}
}

// New creates an empty slot.
func New(opts ...Option) *Slot {
	s := &Slot{resetAfter: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push stores f as the pending frame and reports whether a previously
// pending frame was dropped to make room. A decode-error frame is released
// immediately and counted as corrupted; it never replaces the pending frame.
func (s *Slot) Push(f *frame.Frame) (dropped bool) {
	if f == nil {
		return false
	}
	s.pushed.Add(1)

	if f.DecodeError {
		f.Release()
		s.corrupted.Add(1)
		recent := s.recent.Add(1)
		s.mu.Lock()
		s.goodRun = 0
		s.mu.Unlock()
		s.notify(recent)
		return false
	}

	s.mu.Lock()
	old := s.pending
	s.pending = f
	s.goodRun++
	reset := s.goodRun >= s.resetAfter
	s.mu.Unlock()

	if old != nil {
		old.Release()
		s.dropped.Add(1)
	}
	if reset && s.recent.Swap(0) != 0 {
		s.notify(0)
	}
	return old != nil
}

// PresentFrame implements frame.Sink.
func (s *Slot) PresentFrame(f *frame.Frame) {
	s.Push(f)
}

// TakeLatest removes and returns the pending frame, or nil if there is none.
// The caller owns the returned frame.
func (s *Slot) TakeLatest() *frame.Frame {
	s.mu.Lock()
	f := s.pending
	s.pending = nil
	s.mu.Unlock()
	return f
}

// Pending reports whether a frame is waiting.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Clear releases the pending frame, if any, and resets the surfaced
// corrupted counter. Cumulative counters are kept.
func (s *Slot) Clear() {
	s.mu.Lock()
	f := s.pending
	s.pending = nil
	s.goodRun = 0
	s.mu.Unlock()

	f.Release()
	if s.recent.Swap(0) != 0 {
		s.notify(0)
	}
}

// Stats returns the current counters.
func (s *Slot) Stats() Stats {
	return Stats{
		Pushed:          s.pushed.Load(),
		Dropped:         s.dropped.Load(),
		Corrupted:       s.corrupted.Load(),
		RecentCorrupted: s.recent.Load(),
	}
}

func (s *Slot) notify(recent uint64) {
	if s.onChange != nil {
		s.onChange(recent)
	}
}
