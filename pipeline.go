// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package streamview

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/cache"
	"github.com/gogpu/streamview/config"
	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/frameslot"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/internal/renderthread"
	"github.com/gogpu/streamview/render"
	"github.com/gogpu/streamview/scene"
	"github.com/gogpu/streamview/scheduler"
	"github.com/gogpu/streamview/surface"
)

// presentation holds the settings a tick reads. Guarded by Pipeline.mu.
type presentation struct {
	fit        render.FitPolicy
	preset     render.Preset
	hold       bool
	blankAfter time.Duration
	clear      gputypes.Color
}

// Pipeline presents decoded frames under a UI overlay.
//
// PresentFrame, Notifications and the setters are safe from any goroutine.
// OnExpose, OnResize and OnClose belong to the goroutine owning the window
// and block until the render thread has applied them.
type Pipeline struct {
	id         string
	log        *slog.Logger
	now        func() time.Time
	backend    backend.RenderBackend
	compositor scene.Compositor
	thread     *renderthread.Thread
	slot       *frameslot.Slot
	sched      *scheduler.Scheduler
	manager    *surface.Manager
	shaders    *cache.Shaders
	shaderPath string

	onVideoChanged func(bool)
	onCorrupted    func(uint64)

	mu         sync.Mutex
	pres       presentation
	blankTimer *time.Timer

	closeMu sync.Mutex
	closing atomic.Bool
	closed  atomic.Bool

	hasVideo  atomic.Bool
	streaming atomic.Bool
	ticks     atomic.Uint64
	presented atomic.Uint64
	failed    atomic.Uint64
	view      atomic.Pointer[surfaceView]
	// lastFrame is when the newest good frame arrived, in UnixNano.
	lastFrame atomic.Int64

	// Render thread only.
	rt renderState
}

// renderState is owned by the render thread.
type renderState struct {
	current *frame.Frame
	// overlayVersion counts overlay redraws; uploaded remembers which
	// version each shared texture holds. Both reset with the cache.
	overlayVersion uint64
	overlayStale   bool
	uploaded       map[*interop.Texture]uint64
	uploadedGen    uint64
	failStreak     int
	torn           bool
}

// New creates a pipeline presenting through b with c drawing the overlay.
//
// A nil b opens the backend named in the settings, or the best available
// one. A nil c leaves the overlay transparent. The backend is initialized
// on the render thread; failures wrap ErrFatal. The pipeline starts hidden:
// call OnExpose to create the surface.
func New(b backend.RenderBackend, c scene.Compositor, opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		c = scene.Empty{}
	}
	log, id := pipelineLogger(o.logger)

	p := &Pipeline{
		id:             id,
		log:            log,
		now:            o.now,
		compositor:     c,
		shaders:        cache.New(cache.DefaultMaxBytes),
		shaderPath:     o.settings.ShaderCache,
		onVideoChanged: o.onVideoChanged,
		onCorrupted:    o.onCorrupted,
		pres: presentation{
			fit:        o.settings.Fit,
			preset:     o.settings.Preset,
			hold:       o.settings.HoldLastFrame,
			blankAfter: o.settings.BlankAfter,
			clear:      o.clear,
		},
		rt: renderState{
			overlayStale: true,
			uploaded:     make(map[*interop.Texture]uint64),
		},
	}
	if p.shaderPath != "" {
		if err := p.shaders.LoadFile(p.shaderPath); err != nil {
			log.Warn("streamview: shader cache ignored", "path", p.shaderPath, "err", err)
		}
	}

	p.thread = renderthread.Start("streamview-render", renderthread.DefaultQueue)
	cfg := backend.Config{Logger: log, Window: o.native, ShaderCache: p.shaders}
	var initErr error
	err := p.thread.Invoke(func() {
		if b == nil {
			b, initErr = backend.Open(o.settings.Backend, cfg)
			return
		}
		initErr = b.Init(cfg)
	})
	if err = errors.Join(err, initErr); err != nil {
		p.thread.Stop()
		log.Error("streamview: backend initialization failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrFatal, err)
	}
	p.backend = b

	p.manager = surface.NewManager(b.Platform(), o.window,
		interop.NewCache(b.Exporter(), b.Importer(), log),
		surface.WithLogger(log),
		surface.WithPresentPolicy(o.settings.PresentMode),
	)
	p.slot = frameslot.New(
		frameslot.WithResetAfter(o.settings.CorruptResetFrames),
		frameslot.WithCorruptedChanged(p.corruptedChanged),
	)
	p.sched = scheduler.New(o.settings.Scheduler(), p.syncScene, p.submitTick, log)
	p.publish()

	if a, ok := c.(scene.Attacher); ok {
		a.Attach(p.Notifications())
	}
	log.Info("streamview: pipeline created", "backend", b.Name(), "fit", p.pres.fit, "preset", p.pres.preset)
	return p, nil
}

// ID returns the pipeline id attached to its log records.
func (p *Pipeline) ID() string { return p.id }

// Backend returns the backend the pipeline presents through.
func (p *Pipeline) Backend() backend.RenderBackend { return p.backend }

// Notifications returns the callbacks a compositor uses to request work.
// They may be called at any time, from any goroutine.
func (p *Pipeline) Notifications() scene.Notifications {
	return scene.Notifications{
		SceneChanged: p.sched.NotifySceneChanged,
		RenderNeeded: p.sched.NotifyRenderNeeded,
	}
}

// PresentFrame hands f to the pipeline, which takes ownership. Only the
// newest frame is kept; a frame still waiting is released and counted as
// dropped. Frames flagged as decode errors are counted and released.
// PresentFrame implements frame.Sink and never blocks on rendering.
func (p *Pipeline) PresentFrame(f *frame.Frame) {
	if f == nil {
		return
	}
	if p.closing.Load() {
		f.Release()
		return
	}
	bad := f.DecodeError
	if p.slot.Push(f) {
		p.log.Debug("streamview: frame dropped", "pts", f.PTS)
	}
	if p.closing.Load() {
		// OnClose may have cleared the slot between the check above and Push.
		p.slot.Clear()
		return
	}
	if bad {
		return
	}
	p.lastFrame.Store(p.now().UnixNano())
	if p.hasVideo.CompareAndSwap(false, true) {
		p.videoChanged(true)
	}
	p.armBlank()
	p.sched.FrameArrived()
}

// armBlank schedules a tick for when the held frame is due to go blank.
func (p *Pipeline) armBlank() {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.pres.blankAfter
	if d <= 0 {
		return
	}
	if p.blankTimer == nil {
		p.blankTimer = time.AfterFunc(d, p.sched.FrameArrived)
		return
	}
	p.blankTimer.Reset(d)
}

func (p *Pipeline) videoChanged(on bool) {
	p.log.Info("streamview: video", "present", on)
	if p.onVideoChanged != nil {
		p.onVideoChanged(on)
	}
}

func (p *Pipeline) corruptedChanged(recent uint64) {
	if recent > 0 {
		p.log.Debug("streamview: corrupted frame", "recent", recent)
	}
	if p.onCorrupted != nil {
		p.onCorrupted(recent)
	}
}

// OnExpose creates the surface and swapchain when the window first becomes
// visible and starts or stops ticking. A surface the windowing system
// refuses is fatal.
func (p *Pipeline) OnExpose(visible bool) error {
	if p.closing.Load() {
		return ErrClosed
	}
	if visible {
		var err error
		if ierr := p.thread.Invoke(func() {
			err = p.manager.Expose()
			p.rt.overlayStale = true
			p.publish()
		}); ierr != nil {
			return ErrClosed
		}
		if errors.Is(err, surface.ErrSurfaceCreate) {
			p.log.Error("streamview: surface creation failed", "err", err)
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
		if err != nil {
			p.log.Warn("streamview: expose", "err", err)
		}
		p.sched.Dirty().MarkRender()
	}
	p.sched.SetVisible(visible)
	return nil
}

// OnResize brings the swapchain to the window's current size. It blocks
// until the shared textures of the old size are gone.
func (p *Pipeline) OnResize() error {
	if p.closing.Load() {
		return ErrClosed
	}
	var (
		changed bool
		err     error
	)
	if ierr := p.thread.Invoke(func() {
		changed, err = p.manager.Resize()
		if changed {
			p.rt.overlayStale = true
		}
		p.publish()
	}); ierr != nil {
		return ErrClosed
	}
	if err != nil {
		p.log.Warn("streamview: resize", "err", err)
		return err
	}
	if changed {
		p.sched.NotifyRenderNeeded()
	}
	return nil
}

// OnClose drains the pipeline: new frames are refused, the device is
// waited on, then the shared textures, the swapchain, the surface and the
// backend are destroyed and the render thread exits. It returns after all
// of that happened. If the device cannot be confirmed idle nothing is
// destroyed and the error is returned; OnClose may be called again.
func (p *Pipeline) OnClose() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed.Load() {
		return nil
	}
	p.closing.Store(true)
	p.sched.Close()
	p.mu.Lock()
	if p.blankTimer != nil {
		p.blankTimer.Stop()
	}
	p.mu.Unlock()

	var err error
	if ierr := p.thread.Invoke(func() { err = p.teardown() }); ierr != nil {
		return ierr
	}
	if err != nil {
		p.log.Error("streamview: teardown", "err", err)
		return err
	}
	p.thread.Stop()
	p.closed.Store(true)

	if p.shaderPath != "" && p.shaders.Dirty() {
		if err := p.shaders.SaveFile(p.shaderPath); err != nil {
			p.log.Warn("streamview: shader cache not saved", "path", p.shaderPath, "err", err)
		}
	}
	if p.hasVideo.CompareAndSwap(true, false) {
		p.videoChanged(false)
	}
	p.log.Info("streamview: pipeline closed",
		"ticks", p.ticks.Load(), "presented", p.presented.Load(), "failed_ticks", p.failed.Load())
	return nil
}

// teardown runs on the render thread.
func (p *Pipeline) teardown() error {
	if err := p.manager.Destroy(); err != nil {
		p.publish()
		return err
	}
	p.rt.torn = true
	p.rt.current.Release()
	p.rt.current = nil
	p.slot.Clear()
	clear(p.rt.uploaded)
	p.backend.Close()
	p.publish()
	return nil
}

// SetStreaming tells the pipeline whether a stream is playing. Streaming
// ticks at the active interval and selects the low-latency present mode
// under the auto policy.
func (p *Pipeline) SetStreaming(on bool) {
	if p.streaming.Swap(on) == on {
		return
	}
	p.sched.SetStreaming(on)
	if err := p.thread.Invoke(func() {
		if err := p.manager.SetStreaming(on); err != nil {
			p.log.Warn("streamview: present mode", "err", err)
		}
		p.publish()
	}); err != nil {
		return
	}
	p.sched.NotifyRenderNeeded()
}

// EndSession marks the end of a stream. The pending frame is discarded
// and the surfaced corrupted count resets. The last frame stays on screen
// only if HoldLastFrame is set.
func (p *Pipeline) EndSession() {
	p.SetStreaming(false)
	p.slot.Clear()
	if p.hasVideo.CompareAndSwap(true, false) {
		p.videoChanged(false)
	}
	p.sched.NotifyRenderNeeded()
}

// SetFitPolicy selects how frames fill the window.
func (p *Pipeline) SetFitPolicy(fit render.FitPolicy) {
	p.mu.Lock()
	p.pres.fit = fit
	p.mu.Unlock()
	p.sched.NotifyRenderNeeded()
}

// SetPreset selects the renderer quality preset.
func (p *Pipeline) SetPreset(preset render.Preset) {
	p.mu.Lock()
	p.pres.preset = preset
	p.mu.Unlock()
	p.sched.NotifyRenderNeeded()
}

// SetHoldPolicy sets whether the last frame stays on screen after the
// session ends, and how long a stalled stream keeps its last frame.
// A zero blankAfter never blanks while streaming.
func (p *Pipeline) SetHoldPolicy(hold bool, blankAfter time.Duration) {
	p.mu.Lock()
	p.pres.hold = hold
	p.pres.blankAfter = max(blankAfter, 0)
	if p.pres.blankAfter == 0 && p.blankTimer != nil {
		p.blankTimer.Stop()
	}
	p.mu.Unlock()
	p.sched.NotifyRenderNeeded()
}

// Apply changes every runtime setting at once. Backend, shader cache and
// monitor address only apply to new pipelines.
func (p *Pipeline) Apply(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.pres.fit = s.Fit
	p.pres.preset = s.Preset
	p.pres.hold = s.HoldLastFrame
	p.pres.blankAfter = s.BlankAfter
	p.mu.Unlock()
	p.sched.SetConfig(s.Scheduler())

	var err error
	if ierr := p.thread.Invoke(func() {
		err = p.manager.SetPresentPolicy(s.PresentMode)
		p.publish()
	}); ierr != nil {
		return ErrClosed
	}
	p.sched.NotifyRenderNeeded()
	return err
}

func (p *Pipeline) settings() presentation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pres
}

// syncScene runs the compositor's scene copy on the render thread and
// waits for it.
func (p *Pipeline) syncScene() error {
	return p.thread.Invoke(func() {
		if !p.sched.Dirty().TakeSync() || p.rt.torn {
			return
		}
		if p.compositor.SyncScene() {
			p.sched.Dirty().MarkRender()
		}
	})
}

// submitTick posts a tick without waiting for it.
func (p *Pipeline) submitTick(done func()) error {
	return p.thread.Post(func() {
		defer done()
		p.tick()
	})
}
