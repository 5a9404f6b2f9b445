// Package scene defines the contract between the pipeline and the UI
// compositor that draws the overlay shown on top of the video.
//
// The compositor owns its UI state on whatever goroutine it likes. The
// pipeline calls SyncScene and RenderScene only on the render thread: SyncScene
// copies the UI state while the UI side is blocked, RenderScene draws the
// copy into the overlay buffer. A compositor asks for these calls through the
// Notifications it is given.
package scene

import (
	"image"
	"image/draw"

	"github.com/gogpu/streamview/interop"
)

// Target is the overlay a compositor renders into for one tick.
type Target struct {
	Width  int
	Height int
	// Image is the overlay buffer. Its content is uploaded to the shared
	// texture after RenderScene returns. It keeps the previous overlay, so a
	// compositor that redraws everything should clear it first.
	Image *image.RGBA
	// Texture is the exporting side of the shared texture, for compositors
	// that write it directly. Such compositors leave Image untouched.
	Texture interop.ExportedTexture
}

// Compositor renders the UI overlay.
type Compositor interface {
	// SyncScene copies UI state for rendering. It reports whether the
	// overlay must be redrawn.
	SyncScene() bool
	// RenderScene draws the overlay.
	RenderScene(t Target) error
}

// Notifications lets a compositor request work from the pipeline. Both
// functions are safe to call from any goroutine.
type Notifications struct {
	// SceneChanged requests a sync followed by a render.
	SceneChanged func()
	// RenderNeeded requests a render without a sync.
	RenderNeeded func()
}

// Attacher is implemented by compositors that want notifications.
type Attacher interface {
	Attach(n Notifications)
}

// Empty is a compositor with no UI: the overlay stays transparent.
type Empty struct{}

// SyncScene reports that nothing changed.
func (Empty) SyncScene() bool { return false }

// RenderScene clears the overlay.
func (Empty) RenderScene(t Target) error {
	Clear(t.Image)
	return nil
}

// Clear makes img fully transparent.
func Clear(img *image.RGBA) {
	if img == nil {
		return
	}
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// Funcs adapts plain functions to Compositor. A nil Sync never requests a
// redraw; a nil Render clears the overlay.
type Funcs struct {
	Sync   func() bool
	Render func(t Target) error
}

// SyncScene calls f.Sync.
func (f Funcs) SyncScene() bool {
	if f.Sync == nil {
		return false
	}
	return f.Sync()
}

// RenderScene calls f.Render.
func (f Funcs) RenderScene(t Target) error {
	if f.Render == nil {
		Clear(t.Image)
		return nil
	}
	return f.Render(t)
}
