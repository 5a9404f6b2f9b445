package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	ticks  chan func()
	hold   bool
	d      *Dirty
}

func newRecorder(hold bool) *recorder {
	return &recorder{ticks: make(chan func(), 64), hold: hold}
}

func (r *recorder) sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.d.TakeSync() {
		r.events = append(r.events, "sync")
	}
	return nil
}

func (r *recorder) render(done func()) error {
	r.mu.Lock()
	r.events = append(r.events, "render")
	r.mu.Unlock()
	if !r.hold {
		defer done()
	}
	r.ticks <- done
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestScheduler(t *testing.T, hold bool, cfg Config) (*Scheduler, *recorder) {
	t.Helper()
	r := newRecorder(hold)
	s := New(cfg, r.sync, r.render, nil)
	r.d = s.Dirty()
	t.Cleanup(s.Close)
	return s, r
}

func waitTick(t *testing.T, r *recorder) func() {
	t.Helper()
	select {
	case done := <-r.ticks:
		return done
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not happen")
		return nil
	}
}

func expectNoTick(t *testing.T, r *recorder, within time.Duration) {
	t.Helper()
	select {
	case <-r.ticks:
		t.Fatal("unexpected tick")
	case <-time.After(within):
	}
}

func TestRequestsCoalesce(t *testing.T) {
	s, r := newTestScheduler(t, false, Config{Idle: 50 * time.Millisecond})
	s.SetVisible(true)
	waitTick(t, r) // the tick requested by becoming visible

	for range 10 {
		s.NotifyRenderNeeded()
		s.FrameArrived()
	}
	waitTick(t, r)
	expectNoTick(t, r, 120*time.Millisecond)

	st := s.Stats()
	if st.Ticks != 2 {
		t.Errorf("Ticks = %d, want 2", st.Ticks)
	}
	if st.Coalesced != 19 {
		t.Errorf("Coalesced = %d, want 19", st.Coalesced)
	}
}

func TestHiddenDefersTicks(t *testing.T) {
	s, r := newTestScheduler(t, false, Config{Idle: time.Millisecond})

	s.NotifySceneChanged()
	expectNoTick(t, r, 30*time.Millisecond)
	if !s.Dirty().NeedsSync() {
		t.Fatal("notification before the render thread ran was lost")
	}

	s.SetVisible(true)
	waitTick(t, r)
	if got := r.snapshot(); len(got) != 2 || got[0] != "sync" || got[1] != "render" {
		t.Errorf("events = %v, want [sync render]", got)
	}
}

func TestInFlightSuppressesReentry(t *testing.T) {
	s, r := newTestScheduler(t, true, Config{Idle: time.Millisecond, Active: time.Millisecond})
	s.SetVisible(true)
	done := waitTick(t, r)

	for range 5 {
		s.NotifyRenderNeeded()
	}
	expectNoTick(t, r, 30*time.Millisecond)

	done()
	next := waitTick(t, r)
	next()
	expectNoTick(t, r, 30*time.Millisecond)

	if st := s.Stats(); st.Ticks != 2 {
		t.Errorf("Ticks = %d, want 2", st.Ticks)
	}
}

func TestSyncOnlyWhenSceneChanged(t *testing.T) {
	s, r := newTestScheduler(t, false, Config{Idle: time.Millisecond})
	s.SetVisible(true)
	waitTick(t, r)

	s.NotifyRenderNeeded()
	waitTick(t, r)
	s.NotifySceneChanged()
	waitTick(t, r)

	want := []string{"render", "render", "sync", "render"}
	got := r.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if !s.Dirty().TakeRender() {
		t.Error("render flag should stay set until the render thread takes it")
	}
}

func TestRenderErrorReleasesInFlight(t *testing.T) {
	calls := make(chan struct{}, 8)
	s := New(Config{Idle: time.Millisecond}, func() error { return nil }, func(func()) error {
		calls <- struct{}{}
		return errors.New("render thread stopped")
	}, nil)
	defer s.Close()
	s.SetVisible(true)
	<-calls

	s.FrameArrived()
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("failed submission left the scheduler stuck in flight")
	}
}

func TestCloseStopsTicks(t *testing.T) {
	s, r := newTestScheduler(t, false, Config{Idle: 20 * time.Millisecond})
	s.SetVisible(true)
	waitTick(t, r)

	s.NotifyRenderNeeded()
	s.Close()
	expectNoTick(t, r, 60*time.Millisecond)
	s.NotifyRenderNeeded()
	expectNoTick(t, r, 30*time.Millisecond)
}

func TestStreamingUsesActiveInterval(t *testing.T) {
	s, r := newTestScheduler(t, false, Config{Active: time.Millisecond, Idle: time.Hour})
	s.SetStreaming(true)
	s.SetVisible(true)
	waitTick(t, r)
	s.FrameArrived()
	waitTick(t, r)
}
