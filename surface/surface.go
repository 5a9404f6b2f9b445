// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/interop"
)

// Errors returned by the manager.
var (
	// ErrSurfaceCreate is returned when the windowing system refuses a
	// presentation surface. It is not retried.
	ErrSurfaceCreate = errors.New("surface: cannot create presentation surface")

	// ErrSwapchain is returned when the swapchain cannot be created or resized.
	ErrSwapchain = errors.New("surface: swapchain")

	// ErrFrameAcquire is returned when no swapchain image could be acquired
	// for this tick.
	ErrFrameAcquire = errors.New("surface: frame acquire failed")

	// ErrNotReady is returned by BeginFrame when there is no swapchain.
	ErrNotReady = errors.New("surface: no swapchain")
)

// State is the manager's lifecycle state.
type State uint8

// Manager states.
const (
	NoSurface State = iota
	SurfaceCreated
	SwapchainReady
	Destroying
)

var stateNames = [...]string{"no-surface", "surface-created", "swapchain-ready", "destroying"}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Size is a size in physical pixels.
type Size struct {
	Width  int
	Height int
}

// Empty reports whether the size has no area.
func (s Size) Empty() bool { return s.Width <= 0 || s.Height <= 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Platform creates native surfaces and waits for the device.
type Platform interface {
	// CreateSurface allocates a presentation surface for the window.
	CreateSurface() (NativeSurface, error)
	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error
}

// NativeSurface is a drawable bound to a window.
type NativeSurface interface {
	// PresentModes lists the modes the surface supports.
	PresentModes() []gputypes.PresentMode
	CreateSwapchain(cfg SwapchainConfig) (Swapchain, error)
	Destroy()
}

// SwapchainConfig configures a swapchain.
type SwapchainConfig struct {
	Size        Size
	Format      gputypes.TextureFormat
	PresentMode gputypes.PresentMode
}

// Swapchain is the ring of presentable images of a surface.
type Swapchain interface {
	Config() SwapchainConfig
	// Resize changes the image size in place.
	Resize(size Size) error
	SetPresentMode(mode gputypes.PresentMode) error
	// SetColorSpace hints the colorspace of the video being presented.
	// It applies to images acquired afterwards. A swapchain that cannot
	// honor the hint keeps presenting in its format.
	SetColorSpace(c frame.ColorInfo) error
	// Acquire returns the next image. A status other than Good or
	// Suboptimal means no image was acquired.
	Acquire() (Image, gputypes.SurfaceStatus, error)
	Present(img Image) error
	Destroy()
}

// Image is one acquired swapchain image.
type Image interface {
	// ID is stable for the lifetime of the swapchain images.
	ID() interop.ImageID
}
