// Package software implements a presentation backend entirely on the CPU.
//
// Shared textures are *image.RGBA buffers that both sides of the bridge
// alias, so a write through the exporting side is visible to the importing
// side without a copy, exactly like GPU memory imported into a second API.
// Swapchain images are delivered to a PresentFunc instead of a display.
//
// Every device operation is recorded in a [Trace], and any operation can be
// made to fail once with [Backend.FailNext]. Together they make the backend
// the instrument for testing the pipeline's ordering guarantees.
package software

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/internal/parallel"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/surface"
)

// Semaphore errors.
var (
	// ErrAlreadySignalled is returned when a binary semaphore is signalled twice.
	ErrAlreadySignalled = errors.New("software: semaphore already signalled")

	// ErrNotSignalled is returned when waiting on a semaphore nobody signalled.
	// On a single queue such a wait could never complete.
	ErrNotSignalled = errors.New("software: wait on unsignalled semaphore")

	// ErrUnknownHandle is returned when importing a handle that was never exported.
	ErrUnknownHandle = errors.New("software: unknown handle")
)

// PresentFunc receives every presented swapchain image. img is only valid
// during the call.
type PresentFunc func(img *image.RGBA, seq uint64)

// Option configures a Backend.
type Option func(*Backend)

// WithPresent sets the function receiving presented images.
func WithPresent(fn PresentFunc) Option {
	return func(b *Backend) { b.present = fn }
}

// WithImages sets the number of swapchain images. The default is 3.
func WithImages(n int) Option {
	return func(b *Backend) { b.images = max(n, 1) }
}

// WithPresentModes sets the present modes surfaces report as supported.
func WithPresentModes(modes ...gputypes.PresentMode) Option {
	return func(b *Backend) { b.modes = modes }
}

// WithWorkers sets the number of goroutines used for frame conversion.
func WithWorkers(n int) Option {
	return func(b *Backend) { b.workers = n }
}

// Backend is the CPU presentation backend.
type Backend struct {
	present PresentFunc
	images  int
	modes   []gputypes.PresentMode
	workers int

	log   *slog.Logger
	trace Trace
	pool  *parallel.WorkerPool

	mu        sync.Mutex
	inited    bool
	next      interop.Handle
	mem       map[interop.Handle]*image.RGBA
	sems      map[interop.Handle]chan struct{}
	live      int
	failures  map[string]error
	statuses  []gputypes.SurfaceStatus
	presented uint64
	color     *frame.ColorInfo

	renderer *renderer
}

var _ backend.RenderBackend = (*Backend)(nil)

func init() {
	backend.Register(backend.BackendSoftware, func() backend.RenderBackend { return New() })
}

// New creates an uninitialized software backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		images: 3,
		modes: []gputypes.PresentMode{
			gputypes.PresentModeFifo, gputypes.PresentModeMailbox, gputypes.PresentModeImmediate,
		},
		log:      slog.New(slog.DiscardHandler),
		mem:      make(map[interop.Handle]*image.RGBA),
		sems:     make(map[interop.Handle]chan struct{}),
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.renderer = &renderer{b: b}
	return b
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendSoftware }

// Init starts the conversion workers.
func (b *Backend) Init(cfg backend.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cfg.Logger != nil {
		b.log = cfg.Logger.With("backend", backend.BackendSoftware)
	}
	if !b.inited {
		b.pool = parallel.NewWorkerPool(b.workers)
		b.inited = true
	}
	b.log.Info("software: backend ready", "workers", b.pool.Workers(), "swapchain_images", b.images)
	return nil
}

// Close stops the conversion workers.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
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

// Trace returns the operation log.
func (b *Backend) Trace() *Trace { return &b.trace }

// Live returns the number of shared textures and semaphores alive.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// Presented returns the number of presented images.
func (b *Backend) Presented() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presented
}

// FailNext makes the next operation named op fail with err.
func (b *Backend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

// QueueStatus makes upcoming acquires report the given statuses in order.
func (b *Backend) QueueStatus(statuses ...gputypes.SurfaceStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, statuses...)
}

// ColorSpace returns the last colorspace hinted to a swapchain.
func (b *Backend) ColorSpace() (frame.ColorInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.color == nil {
		return frame.ColorInfo{}, false
	}
	return *b.color, true
}

// record traces op and returns the injected failure for it, if any.
func (b *Backend) record(op string) error {
	b.trace.add(op)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failures[op]; ok {
		delete(b.failures, op)
		return fmt.Errorf("software: %s: %w", op, err)
	}
	return nil
}

// WaitIdle returns immediately: every operation completes before it returns.
func (b *Backend) WaitIdle() error {
	return b.record(OpWaitIdle)
}

// CreateSurface returns a headless surface.
func (b *Backend) CreateSurface() (surface.NativeSurface, error) {
	if err := b.record(OpCreateSurface); err != nil {
		return nil, err
	}
	return &nativeSurface{b: b}, nil
}

func (b *Backend) alloc() interop.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.live++
	return b.next
}

func (b *Backend) release() {
	b.mu.Lock()
	b.live--
	b.mu.Unlock()
}

type exporter struct{ b *Backend }

func (e exporter) ExportTexture(desc interop.TextureDesc) (interop.ExportedTexture, error) {
	if err := e.b.record(OpExportTexture); err != nil {
		return nil, err
	}
	h := e.b.alloc()
	img := image.NewRGBA(desc.Size())
	e.b.mu.Lock()
	e.b.mem[h] = img
	e.b.mu.Unlock()
	return &exportedTexture{b: e.b, h: h, desc: desc, img: img}, nil
}

func (e exporter) ExportSemaphore() (interop.ExportedSemaphore, error) {
	if err := e.b.record(OpExportSemaphore); err != nil {
		return nil, err
	}
	h := e.b.alloc()
	ch := make(chan struct{}, 1)
	e.b.mu.Lock()
	e.b.sems[h] = ch
	e.b.mu.Unlock()
	return &semaphore{b: e.b, h: h, ch: ch, exported: true}, nil
}

type importer struct{ b *Backend }

func (i importer) ImportTexture(h interop.Handle, desc interop.TextureDesc) (interop.ImportedTexture, error) {
	if err := i.b.record(OpImportTexture); err != nil {
		return nil, err
	}
	i.b.mu.Lock()
	img, ok := i.b.mem[h]
	i.b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrUnknownHandle, h)
	}
	i.b.alloc()
	return &ImportedTexture{b: i.b, desc: desc, img: img}, nil
}

func (i importer) ImportSemaphore(h interop.Handle) (interop.Semaphore, error) {
	if err := i.b.record(OpImportSemaphore); err != nil {
		return nil, err
	}
	i.b.mu.Lock()
	ch, ok := i.b.sems[h]
	i.b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: semaphore %d", ErrUnknownHandle, h)
	}
	i.b.alloc()
	return &semaphore{b: i.b, h: h, ch: ch}, nil
}

// semaphore is one side of a binary semaphore. Both sides share ch.
type semaphore struct {
	b        *Backend
	h        interop.Handle
	ch       chan struct{}
	exported bool
}

func (s *semaphore) Handle() interop.Handle { return s.h }

func (s *semaphore) Signal() error {
	select {
	case s.ch <- struct{}{}:
		return nil
	default:
		return ErrAlreadySignalled
	}
}

func (s *semaphore) Wait() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrNotSignalled
	}
}

func (s *semaphore) Destroy() {
	s.b.trace.add(OpDestroySemaphore)
	if s.exported {
		s.b.mu.Lock()
		delete(s.b.sems, s.h)
		s.b.mu.Unlock()
	}
	s.b.release()
}

type exportedTexture struct {
	b    *Backend
	h    interop.Handle
	desc interop.TextureDesc
	img  *image.RGBA
}

func (t *exportedTexture) Handle() interop.Handle    { return t.h }
func (t *exportedTexture) Desc() interop.TextureDesc { return t.desc }

func (t *exportedTexture) Write(src *image.RGBA) error {
	if src.Bounds().Size() != t.img.Bounds().Size() {
		return fmt.Errorf("software: write %v into %v texture", src.Bounds().Size(), t.img.Bounds().Size())
	}
	copy(t.img.Pix, src.Pix)
	return nil
}

func (t *exportedTexture) Destroy() {
	t.b.trace.add(OpDestroyTexture)
	t.b.mu.Lock()
	delete(t.b.mem, t.h)
	t.b.mu.Unlock()
	t.b.release()
}

// ImportedTexture is the compositing side's view of shared overlay memory.
type ImportedTexture struct {
	b    *Backend
	desc interop.TextureDesc
	img  *image.RGBA
}

// Desc returns the texture description.
func (t *ImportedTexture) Desc() interop.TextureDesc { return t.desc }

// Image returns the shared pixels.
func (t *ImportedTexture) Image() *image.RGBA { return t.img }

// Destroy releases the import.
func (t *ImportedTexture) Destroy() {
	t.b.trace.add(OpDestroyTexture)
	t.b.release()
}
