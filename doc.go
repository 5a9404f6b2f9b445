// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package streamview presents decoded video frames with a UI overlay on top.
//
// A Pipeline sits between three parties. A decoder hands it frames from any
// goroutine through PresentFrame; only the newest frame is kept. A UI
// compositor draws the overlay and asks for redraws through Notifications.
// The window layer reports visibility, size changes and closing through
// OnExpose, OnResize and OnClose.
//
// All GPU work runs on one dedicated render thread. Each tick acquires a
// swapchain image, hands the overlay over through a shared texture guarded
// by a pair of semaphores, composites the video frame under it with the
// configured fit policy and presents. Ticks are coalesced by a scheduler:
// any number of requests within one interval produce a single tick.
//
// # Quick Start
//
//	p, err := streamview.New(software.New(), hud, streamview.WithLogger(slog.Default()))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.OnClose()
//
//	if err := p.OnExpose(true); err != nil {
//		log.Fatal(err)
//	}
//	p.SetStreaming(true)
//	go frame.Pump(ctx, src, p, 0)
//
// # Failures
//
// Errors that make the pipeline unusable wrap ErrFatal and are returned
// from New and OnExpose. Everything that goes wrong during a tick (a lost
// surface, a failed texture import, a frame that cannot be mapped) only
// skips that tick: it is logged, counted in Stats.FailedTicks and retried
// at the next tick, while the screen keeps the last presented image.
//
// # Hold Policy
//
// Without a new frame a tick reuses the previous one while streaming. After
// BlankAfter without frames, or when the session ends and HoldLastFrame is
// off, the video layer goes blank and only the overlay is drawn.
package streamview
