// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/interop"
)

// Semaphore errors.
var (
	// ErrAlreadySignalled is returned when a token is signalled twice
	// without a wait in between.
	ErrAlreadySignalled = errors.New("native: semaphore already signalled")

	// ErrNotSignalled is returned when waiting on a token nobody signalled.
	ErrNotSignalled = errors.New("native: wait on unsignalled semaphore")

	// ErrUnknownHandle is returned when importing a handle that was never
	// exported or was already destroyed.
	ErrUnknownHandle = errors.New("native: unknown handle")
)

// registry maps exported handles to the objects behind them.
type registry struct {
	mu    sync.Mutex
	next  interop.Handle
	items map[interop.Handle]any
}

func (r *registry) add(v any) interop.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[interop.Handle]any)
	}
	r.next++
	r.items[r.next] = v
	return r.next
}

func (r *registry) get(h interop.Handle) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[h]
	return v, ok
}

func (r *registry) remove(h interop.Handle) {
	r.mu.Lock()
	delete(r.items, h)
	r.mu.Unlock()
}

type exporter struct{ b *Backend }

func (e exporter) ExportTexture(desc interop.TextureDesc) (interop.ExportedTexture, error) {
	if e.b.device == nil {
		return nil, backend.ErrNotInitialized
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", interop.ErrExport, desc.Width, desc.Height)
	}
	tex, err := e.b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interop.ErrExport, err)
	}
	t := &exportedTexture{b: e.b, desc: desc, tex: tex}
	t.h = e.b.handles.add(t)
	return t, nil
}

func (e exporter) ExportSemaphore() (interop.ExportedSemaphore, error) {
	if e.b.queue == nil {
		return nil, backend.ErrNotInitialized
	}
	tok := &token{}
	s := &semaphore{b: e.b, tok: tok, exported: true}
	s.h = e.b.handles.add(tok)
	return s, nil
}

type importer struct{ b *Backend }

func (i importer) ImportTexture(h interop.Handle, desc interop.TextureDesc) (interop.ImportedTexture, error) {
	v, ok := i.b.handles.get(h)
	src, isTex := v.(*exportedTexture)
	if !ok || !isTex {
		return nil, fmt.Errorf("%w: %w: texture %d", interop.ErrImport, ErrUnknownHandle, h)
	}
	view, err := i.b.device.CreateTextureView(src.tex, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interop.ErrImport, err)
	}
	return &importedTexture{desc: desc, src: src, view: view}, nil
}

func (i importer) ImportSemaphore(h interop.Handle) (interop.Semaphore, error) {
	v, ok := i.b.handles.get(h)
	tok, isTok := v.(*token)
	if !ok || !isTok {
		return nil, fmt.Errorf("%w: %w: semaphore %d", interop.ErrImport, ErrUnknownHandle, h)
	}
	return &semaphore{b: i.b, h: h, tok: tok}, nil
}

// token is the state both sides of a semaphore share.
type token struct {
	mu        sync.Mutex
	signalled bool
	index     uint64
}

type semaphore struct {
	b        *Backend
	h        interop.Handle
	tok      *token
	exported bool
}

func (s *semaphore) Handle() interop.Handle { return s.h }

// Signal records the queue position all work so far has been submitted at.
func (s *semaphore) Signal() error {
	s.tok.mu.Lock()
	defer s.tok.mu.Unlock()
	if s.tok.signalled {
		return ErrAlreadySignalled
	}
	s.tok.signalled = true
	s.tok.index = s.b.queue.LastSubmissionIndex()
	return nil
}

// Wait consumes the signal. If the queue has not reached the recorded
// submission yet, it waits for the device.
func (s *semaphore) Wait() error {
	s.tok.mu.Lock()
	if !s.tok.signalled {
		s.tok.mu.Unlock()
		return ErrNotSignalled
	}
	s.tok.signalled = false
	idx := s.tok.index
	s.tok.mu.Unlock()

	if s.b.queue.Poll() >= idx {
		return nil
	}
	s.b.device.Poll(wgpu.PollWait)
	if done := s.b.queue.Poll(); done < idx {
		return fmt.Errorf("native: queue at submission %d, want %d", done, idx)
	}
	return nil
}

func (s *semaphore) Destroy() {
	if s.exported {
		s.b.handles.remove(s.h)
	}
}

type exportedTexture struct {
	b    *Backend
	h    interop.Handle
	desc interop.TextureDesc
	tex  *wgpu.Texture
}

func (t *exportedTexture) Handle() interop.Handle    { return t.h }
func (t *exportedTexture) Desc() interop.TextureDesc { return t.desc }

// Write uploads img into the texture.
func (t *exportedTexture) Write(img *image.RGBA) error {
	if img.Rect.Dx() != t.desc.Width || img.Rect.Dy() != t.desc.Height {
		return fmt.Errorf("native: write %v into %dx%d texture", img.Rect.Size(), t.desc.Width, t.desc.Height)
	}
	return t.b.renderer.upload(t.tex, img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y):], img.Stride,
		t.desc.Width, t.desc.Height)
}

func (t *exportedTexture) Destroy() {
	t.b.handles.remove(t.h)
	t.tex.Release()
}

// importedTexture is a view of an exported texture on the same device.
type importedTexture struct {
	desc interop.TextureDesc
	src  *exportedTexture
	view *wgpu.TextureView

	group *wgpu.BindGroup
}

func (t *importedTexture) Desc() interop.TextureDesc { return t.desc }

func (t *importedTexture) Destroy() {
	if t.group != nil {
		t.group.Release()
		t.group = nil
	}
	t.view.Release()
}
