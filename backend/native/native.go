// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements the presentation backend on the GPU through
// gogpu/wgpu.
//
// Overlay and compositing run on one device, so a shared texture is a
// single wgpu texture that both sides of the bridge reference, and a
// semaphore is a queue-ordered token: signalling records the last
// submission index, waiting checks the token was signalled and lets the
// queue catch up to it.
//
// The backend registers itself as [backend.BackendNative]. Importing the
// package is enough to make it the preferred backend:
//
//	import _ "github.com/gogpu/streamview/backend/native"
package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/internal/parallel"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/surface"
)

// ErrNoWindow is returned by CreateSurface when the backend was
// initialized without native window handles.
var ErrNoWindow = errors.New("native: no window handles")

// Option configures a Backend.
type Option func(*Backend)

// WithBackends restricts the graphics APIs the instance may use.
func WithBackends(b wgpu.Backends) Option {
	return func(be *Backend) { be.backends = b }
}

// WithPowerPreference sets the adapter power preference. The default is
// high performance.
func WithPowerPreference(p wgpu.PowerPreference) Option {
	return func(be *Backend) { be.power = p }
}

// WithImages sets the number of swapchain images tracked for shared
// overlay textures. The default is 3.
func WithImages(n int) Option {
	return func(be *Backend) { be.images = max(n, 1) }
}

// WithWorkers sets the number of goroutines used for YUV conversion.
func WithWorkers(n int) Option {
	return func(be *Backend) { be.workers = n }
}

// Backend is the wgpu presentation backend.
type Backend struct {
	backends wgpu.Backends
	power    wgpu.PowerPreference
	images   int
	workers  int

	mu      sync.Mutex
	inited  bool
	log     *slog.Logger
	window  backend.NativeWindow
	format  gputypes.TextureFormat
	spirv   []uint32
	handles registry

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	pool     *parallel.WorkerPool

	renderer *renderer
}

var (
	_ backend.RenderBackend     = (*Backend)(nil)
	_ gpucontext.DeviceProvider = (*Backend)(nil)
)

func init() {
	backend.Register(backend.BackendNative, func() backend.RenderBackend { return New() })
}

// New creates an uninitialized native backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		backends: wgpu.BackendsPrimary,
		power:    wgpu.PowerPreferenceHighPerformance,
		images:   3,
		log:      slog.New(slog.DiscardHandler),
		format:   gputypes.TextureFormatBGRA8Unorm,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.renderer = newRenderer(b)
	return b
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendNative }

// Init creates the device and the composite pipeline.
//
// Steps: instance, adapter (high performance unless configured), device,
// queue, shader, pipelines. Any failure releases what was created and
// returns an error wrapping [backend.ErrUnsupported].
func (b *Backend) Init(cfg backend.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inited {
		return nil
	}
	if cfg.Logger != nil {
		b.log = cfg.Logger.With("backend", backend.BackendNative)
	}
	b.window = cfg.Window

	if err := b.initDevice(); err != nil {
		b.releaseLocked()
		return fmt.Errorf("%w: %w", backend.ErrUnsupported, err)
	}

	spirv, cached, err := compileComposite(cfg.ShaderCache)
	if err != nil {
		b.releaseLocked()
		return fmt.Errorf("%w: %w", backend.ErrUnsupported, err)
	}
	b.spirv = spirv
	b.log.Debug("native: composite shader ready", "cached", cached, "words", len(spirv))

	if err := b.renderer.init(b.format); err != nil {
		b.releaseLocked()
		return fmt.Errorf("%w: %w", backend.ErrUnsupported, err)
	}

	b.pool = parallel.NewWorkerPool(b.workers)
	b.inited = true
	info := b.adapter.Info()
	b.log.Info("native: backend ready",
		"adapter", info.Name, "api", info.Backend.String(), "type", info.DeviceType.String())
	return nil
}

func (b *Backend) initDevice() error {
	instance, err := wgpu.CreateInstance(&wgpu.InstanceDescriptor{Backends: b.backends})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	b.instance = instance

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: b.power})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	b.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "streamview"})
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	b.device = device
	b.queue = device.Queue()
	if b.queue == nil {
		return errors.New("device has no queue")
	}
	return nil
}

// Close releases the device. Everything created from it must have been
// destroyed first.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return
	}
	if err := b.device.WaitIdle(); err != nil {
		b.log.Warn("native: wait idle on close", "err", err)
	}
	b.releaseLocked()
	b.log.Info("native: backend closed")
}

// releaseLocked releases resources in reverse order of creation.
func (b *Backend) releaseLocked() {
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	b.renderer.release()
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	b.queue = nil
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
	b.spirv = nil
	b.inited = false
}

// Platform returns the backend itself.
func (b *Backend) Platform() surface.Platform { return b }

// Exporter returns the overlay side of the bridge.
func (b *Backend) Exporter() interop.Exporter { return exporter{b} }

// Importer returns the compositing side of the bridge.
func (b *Backend) Importer() interop.Importer { return importer{b} }

// Renderer returns the compositor.
func (b *Backend) Renderer() backend.Renderer { return b.renderer }

// WaitIdle blocks until the queue has drained.
func (b *Backend) WaitIdle() error {
	if b.device == nil {
		return backend.ErrNotInitialized
	}
	if err := b.device.WaitIdle(); err != nil {
		return fmt.Errorf("native: wait idle: %w", err)
	}
	return nil
}

// CreateSurface creates a surface for the window handles given to Init.
func (b *Backend) CreateSurface() (surface.NativeSurface, error) {
	if b.instance == nil {
		return nil, backend.ErrNotInitialized
	}
	if b.window.Window == 0 {
		return nil, ErrNoWindow
	}
	s, err := b.instance.CreateSurface(b.window.Display, b.window.Window)
	if err != nil {
		return nil, fmt.Errorf("native: create surface: %w", err)
	}
	return &nativeSurface{b: b, s: s}, nil
}

// Device returns the *wgpu.Device.
func (b *Backend) Device() gpucontext.Device { return b.device }

// Queue returns the *wgpu.Queue.
func (b *Backend) Queue() gpucontext.Queue { return b.queue }

// Adapter returns the *wgpu.Adapter.
func (b *Backend) Adapter() gpucontext.Adapter { return b.adapter }

// SurfaceFormat returns the swapchain format the pipelines are built for.
func (b *Backend) SurfaceFormat() gputypes.TextureFormat { return b.format }

// AdapterInfo describes the adapter for callers choosing a render mode.
func (b *Backend) AdapterInfo() gpucontext.AdapterInfo {
	if b.adapter == nil {
		return gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}
	}
	info := b.adapter.Info()
	return gpucontext.AdapterInfo{Name: info.Name, Type: adapterType(info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}
