// Package hud is an overlay compositor drawn with gg.
//
// It shows a statistics line, a placeholder while no video is playing and a
// transient error banner. State setters may be called from any goroutine;
// drawing happens on the render thread through the scene.Compositor methods.
package hud

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/streamview/scene"
)

// DefaultPlaceholder is shown while there is no video.
const DefaultPlaceholder = "Waiting for video"

// Stats is the statistics line content.
type Stats struct {
	Presented uint64
	Dropped   uint64
	Corrupted uint64
	// RecentCorrupted is shown in place of Corrupted when non-zero.
	RecentCorrupted uint64
}

// Option configures a HUD.
type Option func(*HUD)

// WithLanguage selects number formatting. The default is English.
func WithLanguage(tag language.Tag) Option {
	return func(h *HUD) { h.printer = message.NewPrinter(tag) }
}

// WithFontSize sets the text size in pixels at scale 1.
func WithFontSize(size float64) Option {
	return func(h *HUD) {
		if size > 0 {
			h.fontSize = size
		}
	}
}

// WithPlaceholder replaces the placeholder text.
func WithPlaceholder(s string) Option {
	return func(h *HUD) { h.placeholder = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *HUD) { h.now = now }
}

// WithoutStats hides the statistics line.
func WithoutStats() Option {
	return func(h *HUD) { h.showStats = false }
}

type state struct {
	stats    Stats
	fps      float64
	hasVideo bool
	errMsg   string
}

// HUD implements scene.Compositor and scene.Attacher.
type HUD struct {
	printer     *message.Printer
	fontSize    float64
	placeholder string
	showStats   bool
	now         func() time.Time
	source      *text.FontSource

	mu        sync.Mutex
	notify    scene.Notifications
	cur       state
	changed   bool
	errUntil  time.Time
	errTimer  *time.Timer
	fpsAt     time.Time
	fpsCount  uint64
	renderErr error

	// Render thread only.
	snap state
	dc   *gg.Context
}

var (
	_ scene.Compositor = (*HUD)(nil)
	_ scene.Attacher   = (*HUD)(nil)
)

// New creates a HUD with the embedded Go Regular font.
func New(opts ...Option) (*HUD, error) {
	src, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("hud: load font: %w", err)
	}
	h := &HUD{
		printer:     message.NewPrinter(language.English),
		fontSize:    16,
		placeholder: DefaultPlaceholder,
		showStats:   true,
		now:         time.Now,
		source:      src,
		changed:     true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Attach stores the pipeline notifications.
func (h *HUD) Attach(n scene.Notifications) {
	h.mu.Lock()
	h.notify = n
	h.mu.Unlock()
}

// changedLocked marks the state dirty and returns the notification to send
// once the lock is released.
func (h *HUD) changedLocked() func() {
	h.changed = true
	if h.notify.SceneChanged == nil {
		return func() {}
	}
	return h.notify.SceneChanged
}

// SetStats updates the statistics line. The frame rate is derived from
// the growth of Presented between calls.
func (h *HUD) SetStats(s Stats) {
	h.mu.Lock()
	now := h.now()
	fps := h.cur.fps
	if !h.fpsAt.IsZero() && s.Presented >= h.fpsCount {
		if dt := now.Sub(h.fpsAt).Seconds(); dt > 0 {
			fps = float64(s.Presented-h.fpsCount) / dt
		}
	}
	h.fpsAt, h.fpsCount = now, s.Presented
	if s == h.cur.stats && fps == h.cur.fps {
		h.mu.Unlock()
		return
	}
	h.cur.stats, h.cur.fps = s, fps
	notify := h.changedLocked()
	h.mu.Unlock()
	notify()
}

// SetHasVideo switches the placeholder off while video is playing.
func (h *HUD) SetHasVideo(on bool) {
	h.mu.Lock()
	if h.cur.hasVideo == on {
		h.mu.Unlock()
		return
	}
	h.cur.hasVideo = on
	notify := h.changedLocked()
	h.mu.Unlock()
	notify()
}

// ShowError displays msg in a banner for d.
func (h *HUD) ShowError(msg string, d time.Duration) {
	h.mu.Lock()
	h.cur.errMsg = msg
	h.errUntil = h.now().Add(d)
	if h.errTimer != nil {
		h.errTimer.Stop()
	}
	h.errTimer = time.AfterFunc(d, func() {
		h.mu.Lock()
		notify := h.changedLocked()
		h.mu.Unlock()
		notify()
	})
	notify := h.changedLocked()
	h.mu.Unlock()
	notify()
}

// Err returns the last drawing error, if any.
func (h *HUD) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renderErr
}

// SyncScene copies the state for drawing and expires the error banner.
func (h *HUD) SyncScene() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur.errMsg != "" && !h.now().Before(h.errUntil) {
		h.cur.errMsg = ""
		h.changed = true
	}
	if !h.changed {
		return false
	}
	h.changed = false
	h.snap = h.cur
	return true
}

// RenderScene draws the overlay into t.Image.
func (h *HUD) RenderScene(t scene.Target) error {
	err := h.render(t)
	h.mu.Lock()
	h.renderErr = err
	h.mu.Unlock()
	return err
}

func (h *HUD) render(t scene.Target) error {
	if t.Image == nil || t.Width <= 0 || t.Height <= 0 {
		return nil
	}
	if h.dc == nil {
		h.dc = gg.NewContext(t.Width, t.Height)
	} else if err := h.dc.Resize(t.Width, t.Height); err != nil {
		return fmt.Errorf("hud: %w", err)
	}
	dc := h.dc
	dc.Clear()

	// Text scales with the overlay height relative to 720p, within limits.
	size := h.fontSize * min(max(float64(t.Height)/720, 0.5), 3)
	dc.SetFont(h.source.Face(size))
	pad := size * 0.5

	if h.showStats {
		if err := h.drawStats(dc, pad); err != nil {
			return err
		}
	}
	if !h.snap.hasVideo && h.placeholder != "" {
		dc.SetRGBA(1, 1, 1, 0.85)
		dc.DrawStringAnchored(h.placeholder, float64(t.Width)/2, float64(t.Height)/2, 0.5, 0.5)
	}
	if h.snap.errMsg != "" {
		if err := h.drawBanner(dc, pad, t.Width, t.Height); err != nil {
			return err
		}
	}

	if err := dc.FlushGPU(); err != nil {
		return fmt.Errorf("hud: %w", err)
	}
	draw.Draw(t.Image, t.Image.Bounds(), dc.Image(), image.Point{}, draw.Src)
	return nil
}

func (h *HUD) statsLine() string {
	s := h.snap.stats
	corrupted := s.Corrupted
	if s.RecentCorrupted > 0 {
		corrupted = s.RecentCorrupted
	}
	return h.printer.Sprintf("%.1f fps   dropped %d   corrupted %d", h.snap.fps, s.Dropped, corrupted)
}

func (h *HUD) drawStats(dc *gg.Context, pad float64) error {
	line := h.statsLine()
	w, lh := dc.MeasureString(line)
	dc.SetRGBA(0, 0, 0, 0.55)
	dc.DrawRoundedRectangle(pad, pad, w+2*pad, lh+pad, pad/2)
	if err := dc.Fill(); err != nil {
		return fmt.Errorf("hud: stats background: %w", err)
	}
	dc.SetRGBA(1, 1, 1, 1)
	dc.DrawString(line, 2*pad, pad+lh)
	return nil
}

func (h *HUD) drawBanner(dc *gg.Context, pad float64, width, height int) error {
	_, lh := dc.MeasureString(h.snap.errMsg)
	bh := lh + 2*pad
	y := float64(height) - bh - pad
	dc.SetRGBA(0.75, 0.1, 0.1, 0.9)
	dc.DrawRoundedRectangle(pad, y, float64(width)-2*pad, bh, pad/2)
	if err := dc.Fill(); err != nil {
		return fmt.Errorf("hud: banner: %w", err)
	}
	dc.SetRGBA(1, 1, 1, 1)
	dc.DrawStringAnchored(h.snap.errMsg, float64(width)/2, y+bh/2, 0.5, 0.5)
	return nil
}
