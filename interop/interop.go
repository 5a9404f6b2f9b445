// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package interop shares GPU memory between two graphics APIs.
//
// The exporting API (the one compositing the UI overlay) allocates a texture
// and two binary semaphores with export handles. The importing API (the one
// that composites the final frame) imports the same memory and the same
// semaphores. Access then alternates under a strict handshake:
//
//	exporter: wait acquire -> write -> signal release
//	importer: wait release -> read/write -> signal acquire
//
// [Texture] enforces the order and reports misuse as [ErrHandshake].
// [Cache] owns every shared texture of one swapchain generation, keyed by
// swapchain image, and destroys them together behind a GPU-idle barrier.
//
// Nothing in this package is safe for concurrent use. All of it runs on the
// render thread, which is the only thread allowed to touch GPU objects.
package interop

import (
	"errors"
	"image"

	"github.com/gogpu/gputypes"
)

// Errors returned by the bridge.
var (
	// ErrExport is returned when the exporting API cannot allocate a shared object.
	ErrExport = errors.New("interop: export failed")

	// ErrImport is returned when the importing API cannot adopt a shared object.
	ErrImport = errors.New("interop: import failed")

	// ErrHandshake is returned when a handshake step is taken out of order.
	ErrHandshake = errors.New("interop: handshake out of order")

	// ErrIdleBarrier is returned when the device could not be confirmed idle.
	// Shared objects are left alive in that case.
	ErrIdleBarrier = errors.New("interop: idle barrier failed")
)

// Handle is an exported OS-level handle (a file descriptor, an NT handle or
// a backend specific shared id).
type Handle uintptr

// ImageID identifies a swapchain image. IDs are stable for the lifetime of
// the swapchain generation that produced them.
type ImageID uint64

// TextureDesc describes a shared texture.
type TextureDesc struct {
	Label  string
	Width  int
	Height int
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// Size returns the texture extent as an image rectangle.
func (d TextureDesc) Size() image.Rectangle {
	return image.Rect(0, 0, d.Width, d.Height)
}

// Semaphore is one side of a shared binary semaphore. A binary semaphore
// holds at most one signal: Wait consumes it, and signalling an already
// signalled semaphore is an error.
type Semaphore interface {
	Signal() error
	Wait() error
	Destroy()
}

// ExportedSemaphore is the exporting API's side of a shared semaphore.
type ExportedSemaphore interface {
	Semaphore
	Handle() Handle
}

// ExportedTexture is the exporting API's side of a shared texture.
type ExportedTexture interface {
	Handle() Handle
	Desc() TextureDesc
	// Write uploads img into the texture using the exporting API.
	Write(img *image.RGBA) error
	Destroy()
}

// ImportedTexture is the importing API's view of a shared texture.
// Backends extend it with whatever their renderer needs to sample it.
type ImportedTexture interface {
	Desc() TextureDesc
	Destroy()
}

// Exporter allocates shareable objects.
type Exporter interface {
	ExportTexture(desc TextureDesc) (ExportedTexture, error)
	ExportSemaphore() (ExportedSemaphore, error)
}

// Importer adopts objects allocated by an Exporter.
type Importer interface {
	ImportTexture(h Handle, desc TextureDesc) (ImportedTexture, error)
	ImportSemaphore(h Handle) (Semaphore, error)
}
