// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/interop"
)

// OverlayFormat is the format of shared overlay textures.
const OverlayFormat = gputypes.TextureFormatRGBA8Unorm

// Frame is a swapchain image acquired for one tick, with its shared texture.
type Frame struct {
	Image   Image
	Texture *interop.Texture
	Size    Size
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithFormat sets the swapchain format. The default is BGRA8Unorm.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(m *Manager) { m.format = f }
}

// WithPresentPolicy sets the present mode policy.
func WithPresentPolicy(p PresentPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithStateListener registers fn to observe state transitions.
func WithStateListener(fn func(from, to State)) Option {
	return func(m *Manager) { m.listener = fn }
}

// Manager owns the presentation surface, the swapchain and the shared
// texture arena of one window.
type Manager struct {
	platform Platform
	window   gpucontext.WindowProvider
	cache    *interop.Cache
	log      *slog.Logger
	listener func(from, to State)

	format    gputypes.TextureFormat
	policy    PresentPolicy
	streaming bool

	state     State
	surface   NativeSurface
	swapchain Swapchain
	size      Size
	mode      gputypes.PresentMode
	offscreen *image.RGBA
	recreate  bool

	// Colorspace hint of the video, resent to every new swapchain.
	color        frame.ColorInfo
	colorSet     bool
	colorApplied bool
}

// NewManager creates a manager in the NoSurface state.
func NewManager(p Platform, w gpucontext.WindowProvider, cache *interop.Cache, opts ...Option) *Manager {
	m := &Manager{
		platform: p,
		window:   w,
		cache:    cache,
		log:      slog.New(slog.DiscardHandler),
		format:   gputypes.TextureFormatBGRA8Unorm,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Size returns the swapchain size.
func (m *Manager) Size() Size { return m.size }

// PresentMode returns the mode the swapchain was configured with.
func (m *Manager) PresentMode() gputypes.PresentMode { return m.mode }

// Offscreen returns the compositing target sized to the swapchain, or nil
// when there is no swapchain.
func (m *Manager) Offscreen() *image.RGBA { return m.offscreen }

// Cache returns the shared texture arena.
func (m *Manager) Cache() *interop.Cache { return m.cache }

// WindowSize returns the window size in physical pixels.
func (m *Manager) WindowSize() Size {
	w, h := m.window.Size()
	sf := m.window.ScaleFactor()
	if sf <= 0 {
		sf = 1
	}
	return Size{
		Width:  int(math.Round(float64(w) * sf)),
		Height: int(math.Round(float64(h) * sf)),
	}
}

func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	from := m.state
	m.state = s
	m.log.Debug("surface: state", "from", from, "to", s)
	if m.listener != nil {
		m.listener(from, s)
	}
}

// Expose creates the surface and, if the window has a size, the swapchain.
// Exposing an already exposed window behaves like Resize.
func (m *Manager) Expose() error {
	if m.state == NoSurface {
		s, err := m.platform.CreateSurface()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSurfaceCreate, err)
		}
		m.surface = s
		m.setState(SurfaceCreated)
		m.log.Info("surface: created")
	}
	_, err := m.Resize()
	return err
}

// Resize brings the swapchain to the window's current size. It reports
// whether anything changed; an unchanged size touches nothing.
func (m *Manager) Resize() (bool, error) {
	size := m.WindowSize()
	switch m.state {
	case SurfaceCreated:
		if size.Empty() {
			return false, nil
		}
		return true, m.createSwapchain(size)
	case SwapchainReady:
		if size == m.size && !m.recreate {
			return false, nil
		}
		if size.Empty() {
			return true, m.destroySwapchain()
		}
		if err := m.cache.Clear(m.platform.WaitIdle); err != nil {
			return false, err
		}
		if err := m.swapchain.Resize(size); err != nil {
			m.log.Warn("surface: in-place resize failed, recreating", "size", size, "err", err)
			return true, m.recreateSwapchain(size)
		}
		m.applySize(size)
		m.recreate = false
		m.log.Info("surface: swapchain resized", "size", size)
		return true, nil
	default:
		return false, nil
	}
}

// SetStreaming switches the present mode policy between streaming and idle.
func (m *Manager) SetStreaming(on bool) error {
	m.streaming = on
	return m.applyPresentMode()
}

// SetPresentPolicy replaces the present mode policy.
func (m *Manager) SetPresentPolicy(p PresentPolicy) error {
	m.policy = p
	return m.applyPresentMode()
}

func (m *Manager) applyPresentMode() error {
	if m.state != SwapchainReady {
		return nil
	}
	mode := m.policy.Choose(m.streaming, m.surface.PresentModes())
	if mode == m.mode {
		return nil
	}
	if err := m.swapchain.SetPresentMode(mode); err != nil {
		return fmt.Errorf("%w: present mode %s: %w", ErrSwapchain, mode, err)
	}
	m.log.Info("surface: present mode changed", "from", m.mode, "to", mode)
	m.mode = mode
	return nil
}

// BeginFrame acquires the next swapchain image and resolves its shared
// texture. Errors are per-tick: the caller skips the tick.
func (m *Manager) BeginFrame() (*Frame, error) {
	if m.state != SwapchainReady {
		return nil, ErrNotReady
	}
	if m.recreate {
		if err := m.recreateSwapchain(m.size); err != nil {
			return nil, err
		}
	}
	img, status, err := m.swapchain.Acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFrameAcquire, err)
	}
	switch status {
	case gputypes.SurfaceStatusGood:
	case gputypes.SurfaceStatusSuboptimal:
		m.recreate = true
	case gputypes.SurfaceStatusOutdated, gputypes.SurfaceStatusLost:
		m.recreate = true
		return nil, fmt.Errorf("%w: surface %s", ErrFrameAcquire, status)
	default:
		return nil, fmt.Errorf("%w: surface %s", ErrFrameAcquire, status)
	}
	tex, err := m.cache.Resolve(img.ID())
	if err != nil {
		return nil, err
	}
	return &Frame{Image: img, Texture: tex, Size: m.size}, nil
}

// Present queues the frame's image for display.
func (m *Manager) Present(f *Frame) error {
	if m.state != SwapchainReady {
		return ErrNotReady
	}
	return m.swapchain.Present(f.Image)
}

// Destroy waits for the device to go idle, then destroys the shared
// textures, the swapchain and the surface, in that order. If the device
// cannot be confirmed idle nothing is destroyed.
func (m *Manager) Destroy() error {
	if m.state == NoSurface {
		return nil
	}
	prev := m.state
	m.setState(Destroying)
	if err := m.cache.Clear(m.platform.WaitIdle); err != nil {
		m.setState(prev)
		return err
	}
	if m.swapchain != nil {
		m.swapchain.Destroy()
		m.swapchain = nil
	}
	m.surface.Destroy()
	m.surface = nil
	m.size = Size{}
	m.mode = 0
	m.offscreen = nil
	m.recreate = false
	m.setState(NoSurface)
	m.log.Info("surface: destroyed")
	return nil
}

func (m *Manager) createSwapchain(size Size) error {
	mode := m.policy.Choose(m.streaming, m.surface.PresentModes())
	sc, err := m.surface.CreateSwapchain(SwapchainConfig{Size: size, Format: m.format, PresentMode: mode})
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrSwapchain, size, err)
	}
	m.swapchain = sc
	m.mode = mode
	m.recreate = false
	m.colorApplied = false
	m.applySize(size)
	m.setState(SwapchainReady)
	m.log.Info("surface: swapchain created", "size", size, "format", m.format, "present_mode", mode)
	m.applyColorSpace()
	return nil
}

// HintColorSpace forwards the colorspace of the video being presented to
// the swapchain. The hint is sent again only when it changes or the
// swapchain is recreated.
func (m *Manager) HintColorSpace(c frame.ColorInfo) {
	if m.colorSet && m.color == c {
		return
	}
	m.color, m.colorSet, m.colorApplied = c, true, false
	m.applyColorSpace()
}

// ColorSpace returns the last hinted colorspace.
func (m *Manager) ColorSpace() (frame.ColorInfo, bool) { return m.color, m.colorSet }

func (m *Manager) applyColorSpace() {
	if !m.colorSet || m.colorApplied || m.swapchain == nil {
		return
	}
	// A refused hint is not retried until the colorspace changes.
	m.colorApplied = true
	if err := m.swapchain.SetColorSpace(m.color); err != nil {
		m.log.Warn("surface: colorspace hint", "transfer", m.color.Transfer, "err", err)
		return
	}
	m.log.Debug("surface: colorspace hint", "transfer", m.color.Transfer, "hdr", m.color.HDR())
}

func (m *Manager) destroySwapchain() error {
	if err := m.cache.Clear(m.platform.WaitIdle); err != nil {
		return err
	}
	m.swapchain.Destroy()
	m.swapchain = nil
	m.size = Size{}
	m.offscreen = nil
	m.setState(SurfaceCreated)
	return nil
}

func (m *Manager) recreateSwapchain(size Size) error {
	if err := m.destroySwapchain(); err != nil {
		return err
	}
	if err := m.createSwapchain(size); err != nil {
		return errors.Join(ErrFrameAcquire, err)
	}
	return nil
}

func (m *Manager) applySize(size Size) {
	m.size = size
	m.cache.SetDesc(interop.TextureDesc{
		Label:  "overlay",
		Width:  size.Width,
		Height: size.Height,
		Format: OverlayFormat,
		Usage: gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageRenderAttachment,
	})
	m.offscreen = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
}
