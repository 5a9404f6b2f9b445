// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package streamview

import (
	"errors"
	"time"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/render"
	"github.com/gogpu/streamview/scene"
	"github.com/gogpu/streamview/surface"
)

// maxRetries bounds how many failed ticks in a row schedule a retry on
// their own. Later failures wait for the next request.
const maxRetries = 3

// tick renders and presents one output frame. It runs on the render thread.
// Any failure aborts the tick only; the previous image stays on screen.
func (p *Pipeline) tick() {
	if p.rt.torn {
		return
	}
	p.ticks.Add(1)
	defer p.publish()

	dirty := p.sched.Dirty()
	rerender := dirty.TakeRender()

	fr, err := p.manager.BeginFrame()
	if err != nil {
		if errors.Is(err, surface.ErrNotReady) {
			// Zero-sized window: nothing to present, but the hold
			// policy still applies to the frame in flight.
			p.updateVideo(p.settings())
			if rerender {
				dirty.MarkRender()
			}
			return
		}
		if rerender {
			dirty.MarkRender()
		}
		p.fail("acquire", err, true)
		return
	}

	s := p.settings()
	tex := fr.Texture
	if gen := p.manager.Cache().Generation(); gen != p.rt.uploadedGen {
		clear(p.rt.uploaded)
		p.rt.uploadedGen = gen
	}

	// Exporter side: redraw the overlay if asked to, refresh the shared
	// texture when it holds an older overlay, otherwise hand it over
	// unchanged.
	if err := tex.BeginWrite(); err != nil {
		p.resetBridge(err)
		p.fail("begin write", err, true)
		return
	}
	if rerender || p.rt.overlayStale {
		p.renderOverlay(fr)
	}
	if p.rt.uploaded[tex] != p.rt.overlayVersion {
		if err := tex.Exported.Write(p.manager.Offscreen()); err != nil {
			p.log.Warn("streamview: overlay upload", "image", tex.Image, "err", err)
		} else {
			p.rt.uploaded[tex] = p.rt.overlayVersion
			p.log.Debug("streamview: overlay uploaded", "image", tex.Image, "version", p.rt.overlayVersion)
		}
	}
	if err := tex.EndWrite(); err != nil {
		p.resetBridge(err)
		p.fail("end write", err, true)
		return
	}

	// Importer side. Once the texture is handed over the read must be
	// completed, whatever happens in between.
	if err := tex.BeginRead(); err != nil {
		p.resetBridge(err)
		p.fail("begin read", err, true)
		return
	}
	renderErr := p.composite(fr, s)
	if err := tex.EndRead(); err != nil {
		p.resetBridge(err)
		p.fail("end read", err, true)
		return
	}
	if renderErr != nil {
		p.fail("render", renderErr, false)
		return
	}

	if err := p.manager.Present(fr); err != nil {
		p.fail("present", err, true)
		return
	}
	p.presented.Add(1)
	p.rt.failStreak = 0
}

// renderOverlay lets the compositor redraw the offscreen overlay.
func (p *Pipeline) renderOverlay(fr *surface.Frame) {
	t := scene.Target{
		Width:   fr.Size.Width,
		Height:  fr.Size.Height,
		Image:   p.manager.Offscreen(),
		Texture: fr.Texture.Exported,
	}
	if err := p.compositor.RenderScene(t); err != nil {
		p.log.Warn("streamview: overlay render", "err", err)
	}
	p.rt.overlayVersion++
	p.rt.overlayStale = false
}

// composite maps the current frame and draws it under the overlay.
func (p *Pipeline) composite(fr *surface.Frame, s presentation) error {
	p.updateVideo(s)

	params := s.preset.Params()
	job := backend.Job{
		Target:  fr.Image,
		Overlay: fr.Texture,
		Params:  params,
		Clear:   s.clear,
	}
	r := p.backend.Renderer()
	if f := p.rt.current; f != nil {
		m, err := r.MapFrame(f, params)
		if err != nil {
			// A frame that cannot be mapped now will not map later.
			p.rt.current = nil
			f.Release()
			return err
		}
		defer m.Unmap()
		p.manager.HintColorSpace(f.Color)
		src := render.RectFromSize(m.Width(), m.Height())
		dst := render.RectFromSize(fr.Size.Width, fr.Size.Height)
		job.Video = m
		job.Crop, job.Dst = render.Fit(src, dst, s.fit)
	}
	return r.Render(&job)
}

// updateVideo picks the frame for this tick: the newest one from the slot,
// else the held one if the hold policy still allows it, else none.
func (p *Pipeline) updateVideo(s presentation) {
	if f := p.slot.TakeLatest(); f != nil {
		p.rt.current.Release()
		p.rt.current = f
		return
	}
	if p.rt.current == nil {
		return
	}
	keep := s.hold
	if p.streaming.Load() {
		idle := p.now().Sub(time.Unix(0, p.lastFrame.Load()))
		keep = s.blankAfter == 0 || idle < s.blankAfter
	}
	if !keep {
		p.log.Debug("streamview: video blanked")
		p.rt.current.Release()
		p.rt.current = nil
	}
}

// fail counts a failed tick. retry asks for another tick, up to
// maxRetries in a row.
func (p *Pipeline) fail(step string, err error, retry bool) {
	p.failed.Add(1)
	p.rt.failStreak++
	p.log.Warn("streamview: tick failed", "step", step, "err", err, "streak", p.rt.failStreak)
	if retry && p.rt.failStreak <= maxRetries {
		p.sched.FrameArrived()
	}
}

// resetBridge drops every shared texture after a handshake failure. The
// next tick recreates them in a known state.
func (p *Pipeline) resetBridge(cause error) {
	if err := p.manager.Cache().Clear(p.backend.Platform().WaitIdle); err != nil {
		p.log.Error("streamview: shared textures kept", "cause", cause, "err", err)
		return
	}
	p.rt.overlayStale = true
}
