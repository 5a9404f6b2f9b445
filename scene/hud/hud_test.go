package hud

import (
	"image"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/gogpu/streamview/scene"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newHUD(t *testing.T, opts ...Option) (*HUD, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	h, err := New(append([]Option{WithClock(c.now)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h, c
}

func target(w, h int) scene.Target {
	return scene.Target{Width: w, Height: h, Image: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func opaqueIn(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y).A > 0 {
				n++
			}
		}
	}
	return n
}

func TestSyncSceneReportsChanges(t *testing.T) {
	h, _ := newHUD(t)
	var notified atomic.Int32
	h.Attach(scene.Notifications{SceneChanged: func() { notified.Add(1) }})

	if !h.SyncScene() {
		t.Error("first SyncScene() = false, want initial draw")
	}
	if h.SyncScene() {
		t.Error("SyncScene() without changes = true")
	}

	h.SetHasVideo(true)
	h.SetHasVideo(true)
	if notified.Load() != 1 {
		t.Errorf("notifications = %d, want 1", notified.Load())
	}
	if !h.SyncScene() || !h.snap.hasVideo {
		t.Error("SyncScene() did not pick up hasVideo")
	}
}

func TestPlaceholder(t *testing.T) {
	h, _ := newHUD(t, WithoutStats())
	tg := target(320, 180)
	h.SyncScene()
	if err := h.RenderScene(tg); err != nil {
		t.Fatalf("RenderScene() error = %v", err)
	}
	center := image.Rect(60, 70, 260, 110)
	if opaqueIn(tg.Image, center) == 0 {
		t.Error("placeholder not drawn")
	}

	h.SetHasVideo(true)
	h.SyncScene()
	if err := h.RenderScene(tg); err != nil {
		t.Fatal(err)
	}
	if n := opaqueIn(tg.Image, tg.Image.Bounds()); n != 0 {
		t.Errorf("%d visible pixels with video and no stats, want 0", n)
	}
}

func TestStatsBackground(t *testing.T) {
	h, _ := newHUD(t)
	h.SetHasVideo(true)
	tg := target(320, 180)
	h.SyncScene()
	if err := h.RenderScene(tg); err != nil {
		t.Fatal(err)
	}
	c := tg.Image.RGBAAt(5, 5)
	if c.A < 100 || c.R > 60 {
		t.Errorf("stats background pixel = %v, want translucent dark", c)
	}
	if tg.Image.RGBAAt(300, 170).A != 0 {
		t.Error("bottom right corner not transparent")
	}
}

func TestErrorBannerExpires(t *testing.T) {
	h, clk := newHUD(t, WithoutStats())
	h.SetHasVideo(true)
	h.ShowError("connection lost", time.Minute)
	tg := target(320, 180)

	h.SyncScene()
	if err := h.RenderScene(tg); err != nil {
		t.Fatal(err)
	}
	reddish := 0
	for y := 120; y < 180; y++ {
		c := tg.Image.RGBAAt(8, y)
		if c.A > 200 && int(c.R) > 3*int(c.G) {
			reddish++
		}
	}
	if reddish == 0 {
		t.Error("error banner not drawn")
	}

	clk.t = clk.t.Add(2 * time.Minute)
	if !h.SyncScene() {
		t.Fatal("SyncScene() after expiry = false")
	}
	if h.snap.errMsg != "" {
		t.Errorf("error still shown after expiry: %q", h.snap.errMsg)
	}
	if err := h.RenderScene(tg); err != nil {
		t.Fatal(err)
	}
	if n := opaqueIn(tg.Image, tg.Image.Bounds()); n != 0 {
		t.Errorf("%d visible pixels after banner expired", n)
	}
}

func TestFrameRate(t *testing.T) {
	h, clk := newHUD(t)
	h.SetStats(Stats{Presented: 0})
	clk.t = clk.t.Add(2 * time.Second)
	h.SetStats(Stats{Presented: 120})
	h.SyncScene()
	if h.snap.fps != 60 {
		t.Errorf("fps = %v, want 60", h.snap.fps)
	}
}

func TestStatsLine(t *testing.T) {
	tests := []struct {
		name  string
		lang  language.Tag
		stats Stats
		fps   float64
		want  string
	}{
		{"english", language.English, Stats{Dropped: 1204, Corrupted: 3}, 59.94, "59.9 fps   dropped 1,204   corrupted 3"},
		{"recent wins", language.English, Stats{Corrupted: 10, RecentCorrupted: 2}, 0, "0.0 fps   dropped 0   corrupted 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newHUD(t, WithLanguage(tt.lang))
			h.snap = state{stats: tt.stats, fps: tt.fps}
			if got := h.statsLine(); got != tt.want {
				t.Errorf("statsLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatsLineLocalized(t *testing.T) {
	h, _ := newHUD(t, WithLanguage(language.German))
	h.snap = state{stats: Stats{Dropped: 1204}}
	if got := h.statsLine(); !strings.Contains(got, "dropped 1.204") {
		t.Errorf("statsLine() = %q, want German digit grouping", got)
	}
}

func TestRenderResizes(t *testing.T) {
	h, _ := newHUD(t)
	h.SyncScene()
	for _, size := range [][2]int{{160, 90}, {640, 360}} {
		tg := target(size[0], size[1])
		if err := h.RenderScene(tg); err != nil {
			t.Fatalf("RenderScene(%v) error = %v", size, err)
		}
		if h.dc.Width() != size[0] || h.dc.Height() != size[1] {
			t.Errorf("context size = %dx%d, want %v", h.dc.Width(), h.dc.Height(), size)
		}
	}
	if err := h.RenderScene(scene.Target{}); err != nil {
		t.Errorf("RenderScene(empty) = %v", err)
	}
	if h.Err() != nil {
		t.Errorf("Err() = %v", h.Err())
	}
}
