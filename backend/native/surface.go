// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/surface"
)

var errDestroyed = errors.New("native: use after destroy")

type nativeSurface struct {
	b         *Backend
	s         *wgpu.Surface
	destroyed bool
}

// PresentModes reports the modes the adapter supports for this surface.
// Fifo is always available.
func (s *nativeSurface) PresentModes() []gputypes.PresentMode {
	caps := s.b.adapter.GetSurfaceCapabilities(s.s)
	if caps == nil || len(caps.PresentModes) == 0 {
		return []gputypes.PresentMode{gputypes.PresentModeFifo}
	}
	return slices.Clone(caps.PresentModes)
}

func (s *nativeSurface) CreateSwapchain(cfg surface.SwapchainConfig) (surface.Swapchain, error) {
	if s.destroyed {
		return nil, errDestroyed
	}
	sc := &swapchain{b: s.b, s: s.s, cfg: cfg, images: s.b.images}
	if err := sc.configure(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *nativeSurface) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.s.Release()
}

// swapImage is an acquired surface texture. The surface does not expose
// its images, so the ID is the position in the acquire ring; with the
// image count matching the surface, every ID keeps meeting the same
// shared overlay texture.
type swapImage struct {
	id     interop.ImageID
	st     *wgpu.SurfaceTexture
	view   *wgpu.TextureView
	format gputypes.TextureFormat
	size   surface.Size
}

func (i *swapImage) ID() interop.ImageID { return i.id }

type swapchain struct {
	b         *Backend
	s         *wgpu.Surface
	cfg       surface.SwapchainConfig
	images    int
	next      int
	acquired  *swapImage
	destroyed bool

	color    frame.ColorInfo
	colorSet bool
}

func (sc *swapchain) configure() error {
	if sc.cfg.Size.Empty() {
		return fmt.Errorf("native: swapchain size %v", sc.cfg.Size)
	}
	err := sc.s.Configure(sc.b.device, &wgpu.SurfaceConfiguration{
		Width:       uint32(sc.cfg.Size.Width),
		Height:      uint32(sc.cfg.Size.Height),
		Format:      sc.cfg.Format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: sc.cfg.PresentMode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return fmt.Errorf("native: configure surface: %w", err)
	}
	sc.next = 0
	return nil
}

func (sc *swapchain) Config() surface.SwapchainConfig { return sc.cfg }

func (sc *swapchain) Resize(size surface.Size) error {
	if sc.destroyed {
		return errDestroyed
	}
	prev := sc.cfg
	sc.cfg.Size = size
	if err := sc.configure(); err != nil {
		sc.cfg = prev
		return err
	}
	return nil
}

func (sc *swapchain) SetPresentMode(mode gputypes.PresentMode) error {
	if sc.destroyed {
		return errDestroyed
	}
	prev := sc.cfg
	sc.cfg.PresentMode = mode
	if err := sc.configure(); err != nil {
		sc.cfg = prev
		return err
	}
	return nil
}

// SetColorSpace accepts the hint. The surface is configured for an 8-bit
// SDR format, so HDR transfers are presented tone-clipped.
func (sc *swapchain) SetColorSpace(c frame.ColorInfo) error {
	if sc.destroyed {
		return errDestroyed
	}
	if c.HDR() && (!sc.colorSet || !sc.color.HDR()) {
		sc.b.log.Warn("native: HDR video on an SDR surface", "transfer", c.Transfer, "format", sc.cfg.Format)
	}
	sc.color, sc.colorSet = c, true
	return nil
}

// Acquire maps surface errors to statuses the manager acts on: outdated
// and lost surfaces are recreated, timeouts skip the tick.
func (sc *swapchain) Acquire() (surface.Image, gputypes.SurfaceStatus, error) {
	if sc.destroyed {
		return nil, gputypes.SurfaceStatusLost, errDestroyed
	}
	if sc.acquired != nil {
		// A tick that failed after acquiring never presented.
		sc.acquired.view.Release()
		sc.s.DiscardTexture()
		sc.acquired = nil
	}
	st, suboptimal, err := sc.s.GetCurrentTexture()
	switch {
	case errors.Is(err, hal.ErrSurfaceOutdated):
		return nil, gputypes.SurfaceStatusOutdated, nil
	case errors.Is(err, hal.ErrSurfaceLost):
		return nil, gputypes.SurfaceStatusLost, nil
	case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrNotReady):
		return nil, gputypes.SurfaceStatusTimeout, nil
	case err != nil:
		return nil, gputypes.SurfaceStatusUnknown, fmt.Errorf("native: acquire: %w", err)
	}
	view, err := st.CreateView(nil)
	if err != nil {
		sc.s.DiscardTexture()
		return nil, gputypes.SurfaceStatusUnknown, fmt.Errorf("native: surface view: %w", err)
	}
	img := &swapImage{id: interop.ImageID(sc.next), st: st, view: view, format: sc.cfg.Format, size: sc.cfg.Size}
	sc.next = (sc.next + 1) % sc.images
	sc.acquired = img

	status := gputypes.SurfaceStatusGood
	if suboptimal {
		status = gputypes.SurfaceStatusSuboptimal
	}
	return img, status, nil
}

func (sc *swapchain) Present(img surface.Image) error {
	si, ok := img.(*swapImage)
	if !ok || si != sc.acquired {
		return fmt.Errorf("native: present of image %v that was not acquired", img.ID())
	}
	sc.acquired = nil
	defer si.view.Release()
	if err := sc.s.Present(si.st); err != nil {
		return fmt.Errorf("native: present: %w", err)
	}
	return nil
}

func (sc *swapchain) Destroy() {
	if sc.destroyed {
		return
	}
	sc.destroyed = true
	if sc.acquired != nil {
		sc.acquired.view.Release()
		sc.s.DiscardTexture()
		sc.acquired = nil
	}
	sc.s.Unconfigure()
}
