// Package scheduler decides when the render loop ticks.
//
// Requests (scene changed, render needed, frame arrived) are coalesced: any
// number of them within one interval produce a single tick. The interval is
// short while a stream is playing and longer when idle. A tick that is still
// in flight suppresses new ticks; requests made meanwhile collapse into one
// follow-up tick when it completes.
//
// Scene dirtiness is carried by two atomic flags, one for "sync needed" and
// one for "render needed". Any goroutine may set them; only the render
// thread clears them, at the start of its tick. The flags are a mailbox of
// depth one, never a queue.
package scheduler

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default intervals.
const (
	DefaultActiveInterval = 4 * time.Millisecond
	DefaultIdleInterval   = 16 * time.Millisecond
)

// Config holds the minimum intervals between ticks.
type Config struct {
	// Active applies while a stream is playing.
	Active time.Duration
	// Idle applies otherwise.
	Idle time.Duration
}

// DefaultConfig returns the default intervals.
func DefaultConfig() Config {
	return Config{Active: DefaultActiveInterval, Idle: DefaultIdleInterval}
}

func (c Config) withDefaults() Config {
	if c.Active <= 0 {
		c.Active = DefaultActiveInterval
	}
	if c.Idle <= 0 {
		c.Idle = DefaultIdleInterval
	}
	return c
}

// Dirty holds the scene flags shared with the render thread.
type Dirty struct {
	sync   atomic.Bool
	render atomic.Bool
}

// MarkSync requests a scene sync and render.
func (d *Dirty) MarkSync() {
	d.sync.Store(true)
	d.render.Store(true)
}

// MarkRender requests a scene render.
func (d *Dirty) MarkRender() { d.render.Store(true) }

// NeedsSync reports whether a sync is pending without clearing it.
func (d *Dirty) NeedsSync() bool { return d.sync.Load() }

// TakeSync clears the sync flag and reports whether it was set.
// Only the render thread calls it.
func (d *Dirty) TakeSync() bool { return d.sync.Swap(false) }

// TakeRender clears the render flag and reports whether it was set.
// Only the render thread calls it.
func (d *Dirty) TakeRender() bool { return d.render.Swap(false) }

// SyncFunc copies the scene on the render thread and returns when the copy
// is complete.
type SyncFunc func() error

// RenderFunc submits a tick to the render thread without waiting for it.
// done must be called exactly once when the tick has finished, unless
// RenderFunc returns an error.
type RenderFunc func(done func()) error

// Stats counts scheduler activity.
type Stats struct {
	Requests  uint64 `json:"requests"`
	Coalesced uint64 `json:"coalesced"`
	Ticks     uint64 `json:"ticks"`
}

// Scheduler coalesces render requests into ticks.
type Scheduler struct {
	sync   SyncFunc
	render RenderFunc
	log    *slog.Logger
	dirty  Dirty

	mu        sync.Mutex
	cfg       Config
	timer     *time.Timer
	lastTick  time.Time
	scheduled bool
	inFlight  bool
	pending   bool
	streaming bool
	visible   bool
	closed    bool
	stats     Stats
}

// New creates a scheduler. It starts hidden: requests only mark state until
// SetVisible(true). log may be nil.
func New(cfg Config, sync SyncFunc, render RenderFunc, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		sync:   sync,
		render: render,
		log:    log,
	}
}

// Dirty returns the scene flags.
func (s *Scheduler) Dirty() *Dirty {
	return &s.dirty
}

// NotifySceneChanged marks the scene for sync and schedules a tick.
// Safe from any goroutine.
func (s *Scheduler) NotifySceneChanged() {
	s.dirty.MarkSync()
	s.request()
}

// NotifyRenderNeeded marks the scene for rendering and schedules a tick.
// Safe from any goroutine.
func (s *Scheduler) NotifyRenderNeeded() {
	s.dirty.MarkRender()
	s.request()
}

// FrameArrived schedules a tick to present a new video frame.
func (s *Scheduler) FrameArrived() {
	s.request()
}

// SetStreaming selects the active or idle interval.
func (s *Scheduler) SetStreaming(on bool) {
	s.mu.Lock()
	s.streaming = on
	s.mu.Unlock()
}

// SetConfig replaces the intervals. It applies from the next scheduled tick.
func (s *Scheduler) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// SetVisible starts or stops ticking. Becoming visible schedules a tick.
func (s *Scheduler) SetVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	if !v && s.timer != nil && s.scheduled {
		s.timer.Stop()
		s.scheduled = false
	}
	s.mu.Unlock()
	if v {
		s.request()
	}
}

// Close stops scheduling. A tick already in flight is not interrupted.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.scheduled = false
}

// Stats returns the activity counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Idle reports whether no tick is scheduled or running.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.scheduled && !s.inFlight
}

func (s *Scheduler) request() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Requests++
	switch {
	case s.closed || !s.visible:
	case s.inFlight:
		if s.pending {
			s.stats.Coalesced++
		}
		s.pending = true
	case s.scheduled:
		s.stats.Coalesced++
	default:
		s.armLocked()
	}
}

func (s *Scheduler) armLocked() {
	interval := s.cfg.Idle
	if s.streaming {
		interval = s.cfg.Active
	}
	delay := max(interval-time.Since(s.lastTick), 0)
	s.scheduled = true
	if s.timer == nil {
		s.timer = time.AfterFunc(delay, s.fire)
		return
	}
	s.timer.Reset(delay)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.scheduled || s.closed || !s.visible {
		s.mu.Unlock()
		return
	}
	s.scheduled = false
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.lastTick = time.Now()
	s.stats.Ticks++
	s.mu.Unlock()

	if s.dirty.NeedsSync() {
		if err := s.sync(); err != nil {
			s.log.Warn("scheduler: scene sync failed", "err", err)
			s.finish()
			return
		}
	}
	if err := s.render(s.finish); err != nil {
		s.log.Warn("scheduler: render submission failed", "err", err)
		s.finish()
	}
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.pending && !s.closed && s.visible {
		s.pending = false
		s.armLocked()
	}
}
