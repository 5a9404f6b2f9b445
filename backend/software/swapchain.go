package software

import (
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/surface"
)

var errDestroyed = errors.New("software: use after destroy")

type nativeSurface struct {
	b         *Backend
	destroyed bool
}

func (s *nativeSurface) PresentModes() []gputypes.PresentMode {
	return slices.Clone(s.b.modes)
}

func (s *nativeSurface) CreateSwapchain(cfg surface.SwapchainConfig) (surface.Swapchain, error) {
	if s.destroyed {
		return nil, errDestroyed
	}
	if err := s.b.record(OpCreateSwapchain); err != nil {
		return nil, err
	}
	if cfg.Size.Empty() {
		return nil, fmt.Errorf("software: swapchain size %v", cfg.Size)
	}
	if !slices.Contains(s.b.modes, cfg.PresentMode) {
		return nil, fmt.Errorf("software: present mode %v not supported", cfg.PresentMode)
	}
	sc := &swapchain{b: s.b, cfg: cfg}
	sc.alloc()
	return sc, nil
}

func (s *nativeSurface) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.b.trace.add(OpDestroySurface)
}

// SwapImage is a presentable image of the software swapchain.
type SwapImage struct {
	id  interop.ImageID
	img *image.RGBA
}

// ID returns the index of the image in the swapchain.
func (i *SwapImage) ID() interop.ImageID { return i.id }

// RGBA returns the image pixels.
func (i *SwapImage) RGBA() *image.RGBA { return i.img }

type swapchain struct {
	b         *Backend
	cfg       surface.SwapchainConfig
	images    []*SwapImage
	next      int
	acquired  *SwapImage
	destroyed bool
}

func (sc *swapchain) alloc() {
	sc.images = make([]*SwapImage, sc.b.images)
	for i := range sc.images {
		sc.images[i] = &SwapImage{
			id:  interop.ImageID(i),
			img: image.NewRGBA(image.Rect(0, 0, sc.cfg.Size.Width, sc.cfg.Size.Height)),
		}
	}
	sc.next = 0
	sc.acquired = nil
}

func (sc *swapchain) Config() surface.SwapchainConfig { return sc.cfg }

func (sc *swapchain) Resize(size surface.Size) error {
	if sc.destroyed {
		return errDestroyed
	}
	if err := sc.b.record(OpResizeSwapchain); err != nil {
		return err
	}
	if size.Empty() {
		return fmt.Errorf("software: swapchain size %v", size)
	}
	sc.cfg.Size = size
	sc.alloc()
	return nil
}

func (sc *swapchain) SetPresentMode(mode gputypes.PresentMode) error {
	if !slices.Contains(sc.b.modes, mode) {
		return fmt.Errorf("software: present mode %v not supported", mode)
	}
	sc.cfg.PresentMode = mode
	return nil
}

// SetColorSpace records the hint. Images stay 8-bit sRGB.
func (sc *swapchain) SetColorSpace(c frame.ColorInfo) error {
	if sc.destroyed {
		return errDestroyed
	}
	if err := sc.b.record(OpColorSpace); err != nil {
		return err
	}
	sc.b.mu.Lock()
	sc.b.color = &c
	sc.b.mu.Unlock()
	return nil
}

func (sc *swapchain) Acquire() (surface.Image, gputypes.SurfaceStatus, error) {
	if sc.destroyed {
		return nil, gputypes.SurfaceStatusLost, errDestroyed
	}
	if err := sc.b.record(OpAcquire); err != nil {
		return nil, gputypes.SurfaceStatusLost, err
	}
	sc.b.mu.Lock()
	status := gputypes.SurfaceStatusGood
	if len(sc.b.statuses) > 0 {
		status = sc.b.statuses[0]
		sc.b.statuses = sc.b.statuses[1:]
	}
	sc.b.mu.Unlock()

	switch status {
	case gputypes.SurfaceStatusGood, gputypes.SurfaceStatusSuboptimal:
	default:
		return nil, status, nil
	}
	img := sc.images[sc.next]
	sc.next = (sc.next + 1) % len(sc.images)
	sc.acquired = img
	return img, status, nil
}

func (sc *swapchain) Present(img surface.Image) error {
	if err := sc.b.record(OpPresent); err != nil {
		return err
	}
	si, ok := img.(*SwapImage)
	if !ok || si != sc.acquired {
		return fmt.Errorf("software: present of image %v that was not acquired", img.ID())
	}
	sc.acquired = nil

	sc.b.mu.Lock()
	sc.b.presented++
	seq := sc.b.presented
	fn := sc.b.present
	sc.b.mu.Unlock()
	if fn != nil {
		fn(si.img, seq)
	}
	return nil
}

func (sc *swapchain) Destroy() {
	if sc.destroyed {
		return
	}
	sc.destroyed = true
	sc.images = nil
	sc.b.trace.add(OpDestroySwapchain)
}
