package backend

import (
	"errors"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/render"
	"github.com/gogpu/streamview/surface"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrUnsupported is returned when the device lacks a required capability.
	ErrUnsupported = errors.New("backend: required capability missing")
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU backend.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU backend (gogpu/wgpu).
	BackendNative = "native"
)

// NativeWindow carries the platform handles a GPU surface is created from.
// Headless backends ignore it.
type NativeWindow struct {
	Display uintptr
	Window  uintptr
}

// ShaderCache stores compiled shader binaries between runs.
type ShaderCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte)
}

// Config is passed to Init.
type Config struct {
	Logger *slog.Logger
	Window NativeWindow
	// ShaderCache is optional.
	ShaderCache ShaderCache
}

// RenderBackend is a graphics stack the pipeline can present through.
//
// Every method except Name must be called on the render thread.
type RenderBackend interface {
	// Name returns the backend identifier (e.g., "software", "native").
	Name() string

	// Init acquires the device. Errors are fatal to the pipeline.
	Init(cfg Config) error

	// Close releases all backend resources.
	Close()

	// Platform creates surfaces and waits for the device.
	Platform() surface.Platform

	// Exporter is the overlay compositing side of the bridge.
	Exporter() interop.Exporter

	// Importer is the final compositing side of the bridge.
	Importer() interop.Importer

	// Renderer composites frames.
	Renderer() Renderer
}

// Mapped is a decoded frame uploaded into renderer-owned memory.
type Mapped interface {
	Width() int
	Height() int
	// Unmap releases the per-frame resources.
	Unmap()
}

// Job describes one composited output frame.
type Job struct {
	// Target is the swapchain image to draw into.
	Target surface.Image
	// Overlay is the shared UI texture, already handed to the importer.
	Overlay *interop.Texture
	// Video is the mapped frame, nil to draw the overlay alone.
	Video Mapped
	// Crop is the part of Video to sample; Dst is where it lands.
	Crop render.Rect
	Dst  render.Rect

	Params render.Params
	Clear  gputypes.Color
}

// Renderer maps frames and composites them with the overlay.
type Renderer interface {
	// MapFrame uploads f. The frame stays owned by the caller.
	MapFrame(f *frame.Frame, params render.Params) (Mapped, error)
	// Render draws the video layer, then the overlay on top, in one pass.
	Render(job *Job) error
}
