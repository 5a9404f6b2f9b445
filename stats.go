// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package streamview

import (
	"github.com/gogpu/streamview/cache"
	"github.com/gogpu/streamview/scheduler"
	"github.com/gogpu/streamview/surface"
)

// surfaceView is what the render thread publishes about the surface after
// each change, so readers never touch the manager.
type surfaceView struct {
	state      surface.State
	size       surface.Size
	mode       string
	generation uint64
	textures   int
	transfer   string
}

// publish runs on the render thread.
func (p *Pipeline) publish() {
	if p.manager == nil {
		p.view.Store(&surfaceView{})
		return
	}
	v := &surfaceView{
		state:      p.manager.State(),
		size:       p.manager.Size(),
		generation: p.manager.Cache().Generation(),
		textures:   p.manager.Cache().Len(),
	}
	if v.state == surface.SwapchainReady {
		v.mode = p.manager.PresentMode().String()
	}
	if c, ok := p.manager.ColorSpace(); ok {
		v.transfer = c.Transfer.String()
	}
	p.view.Store(v)
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	ID string `json:"id"`

	// Ticks counts render loop iterations; Presented the ones that
	// reached the screen; FailedTicks the ones aborted by an error.
	Ticks       uint64 `json:"ticks"`
	Presented   uint64 `json:"presented"`
	FailedTicks uint64 `json:"failed_ticks"`

	Pushed    uint64 `json:"pushed"`
	Dropped   uint64 `json:"dropped"`
	Corrupted uint64 `json:"corrupted"`
	// RecentCorrupted is the corrupted count shown to the user. It resets
	// once enough good frames follow.
	RecentCorrupted uint64 `json:"recent_corrupted"`

	HasVideo  bool `json:"has_video"`
	Streaming bool `json:"streaming"`

	State       string `json:"surface_state"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	PresentMode string `json:"present_mode,omitempty"`
	// Transfer is the transfer function last hinted to the swapchain.
	Transfer string `json:"transfer,omitempty"`
	// Generation counts shared texture cache resets.
	Generation uint64 `json:"generation"`
	Textures   int    `json:"textures"`

	Scheduler   scheduler.Stats `json:"scheduler"`
	ShaderCache cache.Stats     `json:"shader_cache"`
}

// Stats returns the current counters. Safe from any goroutine.
func (p *Pipeline) Stats() Stats {
	slot := p.slot.Stats()
	v := p.view.Load()
	return Stats{
		ID:              p.id,
		Ticks:           p.ticks.Load(),
		Presented:       p.presented.Load(),
		FailedTicks:     p.failed.Load(),
		Pushed:          slot.Pushed,
		Dropped:         slot.Dropped,
		Corrupted:       slot.Corrupted,
		RecentCorrupted: slot.RecentCorrupted,
		HasVideo:        p.hasVideo.Load(),
		Streaming:       p.streaming.Load(),
		State:           v.state.String(),
		Width:           v.size.Width,
		Height:          v.size.Height,
		PresentMode:     v.mode,
		Transfer:        v.transfer,
		Generation:      v.generation,
		Textures:        v.textures,
		Scheduler:       p.sched.Stats(),
		ShaderCache:     p.shaders.Stats(),
	}
}

// Snapshot returns Stats for the monitor feed.
func (p *Pipeline) Snapshot() any {
	return p.Stats()
}
