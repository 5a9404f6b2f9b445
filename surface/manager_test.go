// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/backend/software"
	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/surface"
)

var errBoom = errors.New("boom")

type harness struct {
	b      *software.Backend
	win    *gpucontext.NullWindowProvider
	m      *surface.Manager
	states []surface.State
}

func newHarness(t *testing.T, w, h int, opts ...surface.Option) *harness {
	t.Helper()
	hs := &harness{
		b:   software.New(),
		win: &gpucontext.NullWindowProvider{W: w, H: h},
	}
	if err := hs.b.Init(backend.Config{}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(hs.b.Close)
	cache := interop.NewCache(hs.b.Exporter(), hs.b.Importer(), nil)
	opts = append(opts, surface.WithStateListener(func(_, to surface.State) {
		hs.states = append(hs.states, to)
	}))
	hs.m = surface.NewManager(hs.b.Platform(), hs.win, cache, opts...)
	return hs
}

// frame runs one full acquire, handshake and present cycle.
func (hs *harness) frame(t *testing.T) {
	t.Helper()
	f, err := hs.m.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	for _, step := range []func() error{f.Texture.Skip, f.Texture.BeginRead, f.Texture.EndRead} {
		if err := step(); err != nil {
			t.Fatalf("handshake error = %v", err)
		}
	}
	if err := hs.m.Present(f); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
}

func TestExposeCreatesSwapchain(t *testing.T) {
	hs := newHarness(t, 640, 360)
	if hs.m.State() != surface.NoSurface {
		t.Fatalf("initial State() = %v", hs.m.State())
	}
	if err := hs.m.Expose(); err != nil {
		t.Fatalf("Expose() error = %v", err)
	}
	if hs.m.State() != surface.SwapchainReady {
		t.Errorf("State() = %v, want swapchain-ready", hs.m.State())
	}
	if hs.m.Size() != (surface.Size{Width: 640, Height: 360}) {
		t.Errorf("Size() = %v", hs.m.Size())
	}
	if b := hs.m.Offscreen().Bounds(); b.Dx() != 640 || b.Dy() != 360 {
		t.Errorf("Offscreen() bounds = %v", b)
	}
	want := []surface.State{surface.SurfaceCreated, surface.SwapchainReady}
	if len(hs.states) != 2 || hs.states[0] != want[0] || hs.states[1] != want[1] {
		t.Errorf("transitions = %v, want %v", hs.states, want)
	}
}

func TestExposeZeroSizeWaits(t *testing.T) {
	hs := newHarness(t, 0, 0)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	if hs.m.State() != surface.SurfaceCreated {
		t.Fatalf("State() = %v, want surface-created", hs.m.State())
	}
	if _, err := hs.m.BeginFrame(); !errors.Is(err, surface.ErrNotReady) {
		t.Errorf("BeginFrame() error = %v, want ErrNotReady", err)
	}
	hs.win.W, hs.win.H = 100, 50
	changed, err := hs.m.Resize()
	if err != nil || !changed || hs.m.State() != surface.SwapchainReady {
		t.Errorf("Resize() = %v, %v; State() = %v", changed, err, hs.m.State())
	}
}

func TestExposeSurfaceFailureIsFatal(t *testing.T) {
	hs := newHarness(t, 64, 64)
	hs.b.FailNext(software.OpCreateSurface, errBoom)
	err := hs.m.Expose()
	if !errors.Is(err, surface.ErrSurfaceCreate) || !errors.Is(err, errBoom) {
		t.Errorf("Expose() error = %v, want ErrSurfaceCreate wrapping cause", err)
	}
	if hs.m.State() != surface.NoSurface {
		t.Errorf("State() = %v, want no-surface", hs.m.State())
	}
}

func TestScaleFactor(t *testing.T) {
	hs := newHarness(t, 400, 300)
	hs.win.SF = 1.5
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	if hs.m.Size() != (surface.Size{Width: 600, Height: 450}) {
		t.Errorf("Size() = %v, want 600x450", hs.m.Size())
	}
}

func TestResizeUnchangedIsNoop(t *testing.T) {
	hs := newHarness(t, 320, 240)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	hs.frame(t)
	hs.b.Trace().Reset()
	gen := hs.m.Cache().Generation()

	changed, err := hs.m.Resize()
	if err != nil || changed {
		t.Fatalf("Resize() = %v, %v; want false, nil", changed, err)
	}
	if n := len(hs.b.Trace().Events()); n != 0 {
		t.Errorf("unchanged resize touched the device: %v", hs.b.Trace().Events())
	}
	if hs.m.Cache().Generation() != gen || hs.m.Cache().Len() != 1 {
		t.Errorf("unchanged resize cleared the cache")
	}
}

func TestResizeClearsCacheAfterIdle(t *testing.T) {
	hs := newHarness(t, 320, 240)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		hs.frame(t)
	}
	if hs.m.Cache().Len() != 3 {
		t.Fatalf("Cache().Len() = %d, want 3", hs.m.Cache().Len())
	}

	hs.win.W = 400
	changed, err := hs.m.Resize()
	if err != nil || !changed {
		t.Fatalf("Resize() = %v, %v", changed, err)
	}
	if hs.m.Cache().Len() != 0 || hs.m.Cache().Generation() != 1 {
		t.Errorf("cache after resize: len %d, generation %d", hs.m.Cache().Len(), hs.m.Cache().Generation())
	}
	if hs.b.Live() != 0 {
		t.Errorf("Live() = %d, want every shared object destroyed", hs.b.Live())
	}
	if !hs.b.Trace().IdleBeforeDestroy() {
		t.Errorf("destroy without idle: %v", hs.b.Trace().Events())
	}
	if hs.m.Cache().Desc().Width != 400 {
		t.Errorf("Cache().Desc().Width = %d, want 400", hs.m.Cache().Desc().Width)
	}
	hs.frame(t)
	if d := hs.m.Cache().Desc(); d.Width != 400 || d.Height != 240 {
		t.Errorf("texture desc after resize = %dx%d", d.Width, d.Height)
	}
}

func TestResizeIdleFailureKeepsEverything(t *testing.T) {
	hs := newHarness(t, 320, 240)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	hs.frame(t)
	live := hs.b.Live()

	hs.b.FailNext(software.OpWaitIdle, errBoom)
	hs.win.W = 500
	if _, err := hs.m.Resize(); !errors.Is(err, interop.ErrIdleBarrier) {
		t.Fatalf("Resize() error = %v, want ErrIdleBarrier", err)
	}
	if hs.b.Live() != live || hs.m.Cache().Len() != 1 {
		t.Errorf("objects destroyed despite failed idle wait")
	}
	if hs.m.Size().Width != 320 {
		t.Errorf("Size() = %v, want unchanged", hs.m.Size())
	}

	// The next attempt succeeds.
	if changed, err := hs.m.Resize(); err != nil || !changed {
		t.Errorf("retry Resize() = %v, %v", changed, err)
	}
}

func TestResizeToZeroDropsSwapchain(t *testing.T) {
	hs := newHarness(t, 320, 240)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	hs.frame(t)
	hs.win.W, hs.win.H = 0, 0
	if _, err := hs.m.Resize(); err != nil {
		t.Fatal(err)
	}
	if hs.m.State() != surface.SurfaceCreated || hs.m.Offscreen() != nil {
		t.Errorf("State() = %v, Offscreen() = %v", hs.m.State(), hs.m.Offscreen())
	}
	if hs.b.Trace().Count(software.OpDestroySwapchain) != 1 {
		t.Errorf("swapchain not destroyed: %v", hs.b.Trace().Events())
	}
}

func TestOutdatedRecreates(t *testing.T) {
	hs := newHarness(t, 320, 240)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	hs.frame(t)

	hs.b.QueueStatus(gputypes.SurfaceStatusOutdated)
	if _, err := hs.m.BeginFrame(); !errors.Is(err, surface.ErrFrameAcquire) {
		t.Fatalf("BeginFrame() error = %v, want ErrFrameAcquire", err)
	}
	hs.frame(t)
	if n := hs.b.Trace().Count(software.OpCreateSwapchain); n != 2 {
		t.Errorf("swapchain created %d times, want 2", n)
	}
	if !hs.b.Trace().IdleBeforeDestroy() {
		t.Errorf("destroy without idle: %v", hs.b.Trace().Events())
	}
}

func TestColorSpaceHint(t *testing.T) {
	hs := newHarness(t, 320, 240)
	hints := func() int { return hs.b.Trace().Count(software.OpColorSpace) }

	sdr := frame.DefaultColor()
	pq := frame.ColorInfo{Matrix: frame.MatrixBT2020, Transfer: frame.TransferPQ, Range: frame.RangeLimited}

	hs.m.HintColorSpace(sdr)
	if n := hints(); n != 0 {
		t.Fatalf("hint sent without a swapchain: %d", n)
	}
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	if n := hints(); n != 1 {
		t.Fatalf("hints after Expose() = %d, want 1", n)
	}
	hs.m.HintColorSpace(sdr)
	if n := hints(); n != 1 {
		t.Errorf("unchanged hint resent: %d", n)
	}

	hs.m.HintColorSpace(pq)
	if got, ok := hs.b.ColorSpace(); !ok || got != pq {
		t.Errorf("backend colorspace = %+v, %v, want PQ", got, ok)
	}
	if got, _ := hs.m.ColorSpace(); !got.HDR() {
		t.Errorf("ColorSpace() = %+v, want HDR", got)
	}

	hs.b.QueueStatus(gputypes.SurfaceStatusOutdated)
	if _, err := hs.m.BeginFrame(); !errors.Is(err, surface.ErrFrameAcquire) {
		t.Fatalf("BeginFrame() error = %v, want ErrFrameAcquire", err)
	}
	hs.frame(t)
	if n := hints(); n != 3 {
		t.Errorf("hints after recreate = %d, want 3", n)
	}

	hlg := pq
	hlg.Transfer = frame.TransferHLG
	hs.b.FailNext(software.OpColorSpace, errBoom)
	hs.m.HintColorSpace(hlg)
	hs.m.HintColorSpace(hlg)
	if n := hints(); n != 4 {
		t.Errorf("refused hint retried: %d hints, want 4", n)
	}
	hs.frame(t)
}

func TestSuboptimalPresentsThenRecreates(t *testing.T) {
	hs := newHarness(t, 320, 240)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	hs.b.QueueStatus(gputypes.SurfaceStatusSuboptimal)
	hs.frame(t)
	if n := hs.b.Trace().Count(software.OpCreateSwapchain); n != 1 {
		t.Fatalf("swapchain created %d times before the next frame", n)
	}
	hs.frame(t)
	if n := hs.b.Trace().Count(software.OpCreateSwapchain); n != 2 {
		t.Errorf("swapchain created %d times, want 2", n)
	}
}

func TestTimeoutSkipsTick(t *testing.T) {
	hs := newHarness(t, 32, 32)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	hs.b.QueueStatus(gputypes.SurfaceStatusTimeout)
	if _, err := hs.m.BeginFrame(); !errors.Is(err, surface.ErrFrameAcquire) {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	hs.frame(t)
	if n := hs.b.Trace().Count(software.OpCreateSwapchain); n != 1 {
		t.Errorf("timeout caused a recreate")
	}
}

func TestDestroyOrder(t *testing.T) {
	hs := newHarness(t, 320, 240)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	for range 4 {
		hs.frame(t)
	}
	if err := hs.m.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if hs.m.State() != surface.NoSurface {
		t.Errorf("State() = %v", hs.m.State())
	}
	if hs.b.Live() != 0 {
		t.Errorf("Live() = %d after Destroy", hs.b.Live())
	}
	if !hs.b.Trace().IdleBeforeDestroy() {
		t.Errorf("destroy without idle: %v", hs.b.Trace().Events())
	}

	ev := hs.b.Trace().Events()
	last := map[string]int{}
	for i, e := range ev {
		last[e] = i
	}
	if !(last[software.OpDestroyTexture] < last[software.OpDestroySwapchain] &&
		last[software.OpDestroySwapchain] < last[software.OpDestroySurface]) {
		t.Errorf("destroy order wrong: %v", ev)
	}

	if err := hs.m.Destroy(); err != nil {
		t.Errorf("second Destroy() error = %v", err)
	}
}

func TestDestroyIdleFailure(t *testing.T) {
	hs := newHarness(t, 64, 64)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	hs.frame(t)
	hs.b.FailNext(software.OpWaitIdle, errBoom)
	if err := hs.m.Destroy(); !errors.Is(err, interop.ErrIdleBarrier) {
		t.Fatalf("Destroy() error = %v, want ErrIdleBarrier", err)
	}
	if hs.m.State() != surface.SwapchainReady {
		t.Errorf("State() = %v, want swapchain-ready restored", hs.m.State())
	}
	if hs.b.Trace().Count(software.OpDestroySurface) != 0 {
		t.Error("surface destroyed despite failed idle wait")
	}
}

func TestPresentModeFollowsStreaming(t *testing.T) {
	hs := newHarness(t, 64, 64)
	if err := hs.m.Expose(); err != nil {
		t.Fatal(err)
	}
	if hs.m.PresentMode() != gputypes.PresentModeFifo {
		t.Errorf("idle PresentMode() = %v, want Fifo", hs.m.PresentMode())
	}
	if err := hs.m.SetStreaming(true); err != nil {
		t.Fatal(err)
	}
	if hs.m.PresentMode() != gputypes.PresentModeMailbox {
		t.Errorf("streaming PresentMode() = %v, want Mailbox", hs.m.PresentMode())
	}
	if err := hs.m.SetPresentPolicy(surface.PresentVSync); err != nil {
		t.Fatal(err)
	}
	if hs.m.PresentMode() != gputypes.PresentModeFifo {
		t.Errorf("vsync PresentMode() = %v, want Fifo", hs.m.PresentMode())
	}
}
