// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package interop

import (
	"errors"
	"image"
)

var errInjected = errors.New("injected failure")

// fakeGPU hands out objects from both APIs and records their lifetime.
type fakeGPU struct {
	next    Handle
	sems    map[Handle]*fakeSemState
	live    map[string]int
	created map[string]int
	failOn  string
}

func newFakeGPU() *fakeGPU {
	return &fakeGPU{
		sems:    make(map[Handle]*fakeSemState),
		live:    make(map[string]int),
		created: make(map[string]int),
	}
}

func (g *fakeGPU) alloc(kind string) (Handle, error) {
	if g.failOn == kind {
		return 0, errInjected
	}
	g.next++
	g.live[kind]++
	g.created[kind]++
	return g.next, nil
}

func (g *fakeGPU) liveTotal() int {
	n := 0
	for _, v := range g.live {
		n += v
	}
	return n
}

type fakeSemState struct{ signalled bool }

type fakeSem struct {
	g     *fakeGPU
	kind  string
	h     Handle
	state *fakeSemState
}

func (s *fakeSem) Handle() Handle { return s.h }

func (s *fakeSem) Signal() error {
	if s.state.signalled {
		return errors.New("semaphore already signalled")
	}
	s.state.signalled = true
	return nil
}

func (s *fakeSem) Wait() error {
	if !s.state.signalled {
		return errors.New("wait on unsignalled semaphore would deadlock")
	}
	s.state.signalled = false
	return nil
}

func (s *fakeSem) Destroy() { s.g.live[s.kind]-- }

type fakeTex struct {
	g    *fakeGPU
	kind string
	h    Handle
	desc TextureDesc
}

func (t *fakeTex) Handle() Handle              { return t.h }
func (t *fakeTex) Desc() TextureDesc           { return t.desc }
func (t *fakeTex) Write(img *image.RGBA) error { return nil }
func (t *fakeTex) Destroy()                    { t.g.live[t.kind]-- }

type fakeExporter struct{ g *fakeGPU }

func (e fakeExporter) ExportTexture(desc TextureDesc) (ExportedTexture, error) {
	h, err := e.g.alloc("export-texture")
	if err != nil {
		return nil, err
	}
	return &fakeTex{g: e.g, kind: "export-texture", h: h, desc: desc}, nil
}

func (e fakeExporter) ExportSemaphore() (ExportedSemaphore, error) {
	h, err := e.g.alloc("export-semaphore")
	if err != nil {
		return nil, err
	}
	st := &fakeSemState{}
	e.g.sems[h] = st
	return &fakeSem{g: e.g, kind: "export-semaphore", h: h, state: st}, nil
}

type fakeImporter struct{ g *fakeGPU }

func (i fakeImporter) ImportTexture(h Handle, desc TextureDesc) (ImportedTexture, error) {
	if _, err := i.g.alloc("import-texture"); err != nil {
		return nil, err
	}
	return &fakeTex{g: i.g, kind: "import-texture", h: h, desc: desc}, nil
}

func (i fakeImporter) ImportSemaphore(h Handle) (Semaphore, error) {
	if _, err := i.g.alloc("import-semaphore"); err != nil {
		return nil, err
	}
	return &fakeSem{g: i.g, kind: "import-semaphore", h: h, state: i.g.sems[h]}, nil
}
