package software

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/render"
	"github.com/gogpu/streamview/surface"
)

var errBoom = errors.New("boom")

func newBackend(t *testing.T, opts ...Option) *Backend {
	t.Helper()
	b := New(opts...)
	if err := b.Init(backend.Config{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func newSwapchain(t *testing.T, b *Backend, w, h int) surface.Swapchain {
	t.Helper()
	s, err := b.CreateSurface()
	if err != nil {
		t.Fatalf("CreateSurface() error = %v", err)
	}
	sc, err := s.CreateSwapchain(surface.SwapchainConfig{
		Size:        surface.Size{Width: w, Height: h},
		Format:      gputypes.TextureFormatBGRA8Unorm,
		PresentMode: gputypes.PresentModeFifo,
	})
	if err != nil {
		t.Fatalf("CreateSwapchain() error = %v", err)
	}
	return sc
}

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendSoftware) {
		t.Fatal("software backend is not registered")
	}
	if b := backend.Get(backend.BackendSoftware); b == nil || b.Name() != backend.BackendSoftware {
		t.Errorf("Get(software) = %v", b)
	}
}

func TestSharedTextureAliasesMemory(t *testing.T) {
	b := newBackend(t)
	desc := interop.TextureDesc{Width: 4, Height: 2, Format: gputypes.TextureFormatRGBA8Unorm}

	exp, err := b.Exporter().ExportTexture(desc)
	if err != nil {
		t.Fatal(err)
	}
	imp, err := b.Importer().ImportTexture(exp.Handle(), desc)
	if err != nil {
		t.Fatal(err)
	}

	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	src.SetRGBA(3, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	if err := exp.Write(src); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := imp.(*ImportedTexture).Image().RGBAAt(3, 1)
	if got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("imported pixel = %v", got)
	}

	if err := exp.Write(image.NewRGBA(image.Rect(0, 0, 1, 1))); err == nil {
		t.Error("Write() with wrong size succeeded")
	}

	if b.Live() != 2 {
		t.Errorf("Live() = %d, want 2", b.Live())
	}
	imp.Destroy()
	exp.Destroy()
	if b.Live() != 0 {
		t.Errorf("Live() after destroy = %d, want 0", b.Live())
	}
}

func TestImportUnknownHandle(t *testing.T) {
	b := newBackend(t)
	if _, err := b.Importer().ImportTexture(99, interop.TextureDesc{Width: 1, Height: 1}); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("ImportTexture() error = %v, want ErrUnknownHandle", err)
	}
	if _, err := b.Importer().ImportSemaphore(99); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("ImportSemaphore() error = %v, want ErrUnknownHandle", err)
	}
}

func TestBinarySemaphore(t *testing.T) {
	b := newBackend(t)
	exp, err := b.Exporter().ExportSemaphore()
	if err != nil {
		t.Fatal(err)
	}
	imp, err := b.Importer().ImportSemaphore(exp.Handle())
	if err != nil {
		t.Fatal(err)
	}

	if err := exp.Wait(); !errors.Is(err, ErrNotSignalled) {
		t.Errorf("Wait() before signal = %v, want ErrNotSignalled", err)
	}
	if err := imp.Signal(); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if err := exp.Signal(); !errors.Is(err, ErrAlreadySignalled) {
		t.Errorf("second Signal() = %v, want ErrAlreadySignalled", err)
	}
	if err := exp.Wait(); err != nil {
		t.Errorf("Wait() after signal from the other side = %v", err)
	}
	if err := imp.Wait(); !errors.Is(err, ErrNotSignalled) {
		t.Errorf("Wait() consumed twice = %v", err)
	}
}

func TestCacheHandshakeOverSoftware(t *testing.T) {
	b := newBackend(t)
	c := interop.NewCache(b.Exporter(), b.Importer(), nil)
	c.SetDesc(interop.TextureDesc{Width: 8, Height: 8, Format: gputypes.TextureFormatRGBA8Unorm})

	tex, err := c.Resolve(0)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for range 3 {
		for _, step := range []func() error{tex.BeginWrite, tex.EndWrite, tex.BeginRead, tex.EndRead} {
			if err := step(); err != nil {
				t.Fatalf("handshake step error = %v", err)
			}
		}
	}
	if tex.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", tex.Frames())
	}
	if err := c.Clear(b.WaitIdle); err != nil {
		t.Fatal(err)
	}
	if b.Live() != 0 {
		t.Errorf("Live() after Clear = %d, want 0", b.Live())
	}
	if !b.Trace().IdleBeforeDestroy() {
		t.Errorf("destroy without idle: %v", b.Trace().Events())
	}
}

func TestSwapchainRing(t *testing.T) {
	var seqs []uint64
	b := newBackend(t, WithImages(2), WithPresent(func(_ *image.RGBA, seq uint64) { seqs = append(seqs, seq) }))
	sc := newSwapchain(t, b, 16, 9)

	var ids []interop.ImageID
	for range 4 {
		img, status, err := sc.Acquire()
		if err != nil || status != gputypes.SurfaceStatusGood {
			t.Fatalf("Acquire() = %v, %v", status, err)
		}
		ids = append(ids, img.ID())
		if err := sc.Present(img); err != nil {
			t.Fatalf("Present() error = %v", err)
		}
	}
	want := []interop.ImageID{0, 1, 0, 1}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("image ids = %v, want %v", ids, want)
		}
	}
	if len(seqs) != 4 || seqs[3] != 4 || b.Presented() != 4 {
		t.Errorf("presented seqs = %v, Presented() = %d", seqs, b.Presented())
	}
}

func TestSwapchainPresentUnacquired(t *testing.T) {
	b := newBackend(t)
	sc := newSwapchain(t, b, 4, 4)
	img, _, _ := sc.Acquire()
	if err := sc.Present(img); err != nil {
		t.Fatal(err)
	}
	if err := sc.Present(img); err == nil {
		t.Error("presenting the same image twice succeeded")
	}
}

func TestSwapchainQueuedStatus(t *testing.T) {
	b := newBackend(t)
	sc := newSwapchain(t, b, 4, 4)
	b.QueueStatus(gputypes.SurfaceStatusOutdated, gputypes.SurfaceStatusSuboptimal)

	img, status, err := sc.Acquire()
	if err != nil || img != nil || status != gputypes.SurfaceStatusOutdated {
		t.Errorf("first Acquire() = %v, %v, %v; want nil, Outdated, nil", img, status, err)
	}
	img, status, err = sc.Acquire()
	if err != nil || img == nil || status != gputypes.SurfaceStatusSuboptimal {
		t.Errorf("second Acquire() = %v, %v, %v; want image, Suboptimal, nil", img, status, err)
	}
}

func TestSwapchainResizeAndModes(t *testing.T) {
	b := newBackend(t, WithPresentModes(gputypes.PresentModeFifo))
	sc := newSwapchain(t, b, 4, 4)
	if err := sc.Resize(surface.Size{Width: 8, Height: 2}); err != nil {
		t.Fatal(err)
	}
	img, _, _ := sc.Acquire()
	if got := img.(*SwapImage).RGBA().Bounds(); got != image.Rect(0, 0, 8, 2) {
		t.Errorf("image bounds after resize = %v", got)
	}
	if sc.Config().Size != (surface.Size{Width: 8, Height: 2}) {
		t.Errorf("Config().Size = %v", sc.Config().Size)
	}
	if err := sc.SetPresentMode(gputypes.PresentModeMailbox); err == nil {
		t.Error("SetPresentMode(Mailbox) succeeded on a Fifo-only surface")
	}
	if err := sc.Resize(surface.Size{}); err == nil {
		t.Error("Resize(0x0) succeeded")
	}
}

func TestFailNext(t *testing.T) {
	b := newBackend(t)
	b.FailNext(OpCreateSurface, errBoom)
	if _, err := b.CreateSurface(); !errors.Is(err, errBoom) {
		t.Errorf("CreateSurface() error = %v, want injected", err)
	}
	if _, err := b.CreateSurface(); err != nil {
		t.Errorf("second CreateSurface() error = %v, want nil", err)
	}
	if n := b.Trace().Count(OpCreateSurface); n != 2 {
		t.Errorf("Count(create-surface) = %d, want 2", n)
	}
}

func TestTraceIdleBeforeDestroy(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   bool
	}{
		{"empty", nil, true},
		{"idle then destroy", []string{OpRender, OpWaitIdle, OpDestroyTexture, OpDestroySemaphore}, true},
		{"no idle", []string{OpDestroySwapchain}, false},
		{"render after idle", []string{OpWaitIdle, OpRender, OpDestroyTexture}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Trace
			for _, e := range tt.events {
				tr.add(e)
			}
			if got := tr.IdleBeforeDestroy(); got != tt.want {
				t.Errorf("IdleBeforeDestroy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapFrame(t *testing.T) {
	b := newBackend(t, WithWorkers(4))
	r := b.Renderer()

	f := frame.Alloc(64, 48, frame.NV12)
	for y := range 48 {
		for x := range 64 {
			f.SetRGB(x, y, 200, 40, 40)
		}
	}
	m, err := r.MapFrame(f, render.PresetDefault.Params())
	if err != nil {
		t.Fatalf("MapFrame() error = %v", err)
	}
	defer m.Unmap()
	if m.Width() != 64 || m.Height() != 48 {
		t.Errorf("mapped size = %dx%d", m.Width(), m.Height())
	}
	c := m.(*mapped).RGBA().RGBAAt(10, 40)
	if c.R < 180 || c.G > 70 || c.B > 70 || c.A != 255 {
		t.Errorf("mapped pixel = %v, want reddish", c)
	}
}

func TestMapFrameRejectsDamaged(t *testing.T) {
	b := newBackend(t)
	if _, err := b.Renderer().MapFrame(frame.Errored(0), render.Params{}); !errors.Is(err, render.ErrMapFrame) {
		t.Errorf("MapFrame(errored) = %v, want ErrMapFrame", err)
	}
	if _, err := b.Renderer().MapFrame(&frame.Frame{Format: frame.RGBA8}, render.Params{}); !errors.Is(err, render.ErrMapFrame) {
		t.Errorf("MapFrame(empty) = %v, want ErrMapFrame", err)
	}
}

func TestMapFrameReusesBuffer(t *testing.T) {
	b := newBackend(t)
	f := frame.Alloc(8, 8, frame.RGBA8)
	m1, err := b.Renderer().MapFrame(f, render.Params{})
	if err != nil {
		t.Fatal(err)
	}
	buf := m1.(*mapped).RGBA()
	m1.Unmap()
	m2, err := b.Renderer().MapFrame(f, render.Params{})
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Unmap()
	if m2.(*mapped).RGBA() != buf {
		t.Error("same-size frame did not reuse the unmapped buffer")
	}
}

func TestRenderComposite(t *testing.T) {
	var out *image.RGBA
	b := newBackend(t, WithPresent(func(img *image.RGBA, _ uint64) {
		out = image.NewRGBA(img.Bounds())
		copy(out.Pix, img.Pix)
	}))
	sc := newSwapchain(t, b, 20, 10)

	c := interop.NewCache(b.Exporter(), b.Importer(), nil)
	c.SetDesc(interop.TextureDesc{Width: 20, Height: 10, Format: gputypes.TextureFormatRGBA8Unorm})

	img, _, err := sc.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	tex, err := c.Resolve(img.ID())
	if err != nil {
		t.Fatal(err)
	}

	// Overlay: an opaque white pixel at (19, 0), transparent elsewhere.
	overlay := image.NewRGBA(image.Rect(0, 0, 20, 10))
	overlay.SetRGBA(19, 0, color.RGBA{255, 255, 255, 255})
	if err := tex.BeginWrite(); err != nil {
		t.Fatal(err)
	}
	if err := tex.Exported.Write(overlay); err != nil {
		t.Fatal(err)
	}
	if err := tex.EndWrite(); err != nil {
		t.Fatal(err)
	}

	// A 10x10 green frame fitted into a 20x10 target is pillarboxed.
	f := frame.Alloc(10, 10, frame.RGBA8)
	for y := range 10 {
		for x := range 10 {
			f.SetRGB(x, y, 0, 255, 0)
		}
	}
	m, err := b.Renderer().MapFrame(f, render.Params{})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Unmap()
	crop, dst := render.Fit(render.RectFromSize(10, 10), render.RectFromSize(20, 10), render.Contain)

	if err := tex.BeginRead(); err != nil {
		t.Fatal(err)
	}
	err = b.Renderer().Render(&backend.Job{
		Target:  img,
		Overlay: tex,
		Video:   m,
		Crop:    crop,
		Dst:     dst,
		Params:  render.PresetFast.Params(),
		Clear:   gputypes.Color{A: 1},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if err := tex.EndRead(); err != nil {
		t.Fatal(err)
	}
	if err := sc.Present(img); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		x, y int
		want color.RGBA
	}{
		{0, 5, color.RGBA{0, 0, 0, 255}},
		{10, 5, color.RGBA{0, 255, 0, 255}},
		{18, 5, color.RGBA{0, 0, 0, 255}},
		{19, 0, color.RGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		if got := out.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRenderRejectsForeignTarget(t *testing.T) {
	b := newBackend(t)
	type foreign struct{ surface.Image }
	if err := b.Renderer().Render(&backend.Job{Target: foreign{}}); err == nil {
		t.Error("Render() into a foreign image succeeded")
	}
}

func TestToRGBA(t *testing.T) {
	tests := []struct {
		in   gputypes.Color
		want color.RGBA
	}{
		{gputypes.Color{A: 1}, color.RGBA{0, 0, 0, 255}},
		{gputypes.Color{R: 1, G: 1, B: 1, A: 1}, color.RGBA{255, 255, 255, 255}},
		{gputypes.Color{R: 1, A: 0.5}, color.RGBA{128, 0, 0, 128}},
		{gputypes.Color{R: 2, G: -1, A: 1}, color.RGBA{255, 0, 0, 255}},
	}
	for _, tt := range tests {
		if got := toRGBA(tt.in); got != tt.want {
			t.Errorf("toRGBA(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
