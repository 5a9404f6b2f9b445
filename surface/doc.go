// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface manages the presentation surface and swapchain of a window.
//
// # Lifecycle
//
// [Manager] moves through four states:
//
//	NoSurface -> SurfaceCreated -> SwapchainReady -> Destroying -> NoSurface
//
// A surface is created when the window is exposed; failure to create one is
// fatal. A swapchain follows as soon as the window has a non-empty size. A
// resize to the same physical size does nothing; any other resize clears the
// shared texture cache, resizes the swapchain in place and reallocates the
// off-screen compositing target. Hiding or closing the window destroys
// everything, and destruction is always preceded by a device-idle wait.
//
// # Present Modes
//
// [PresentPolicy] picks a low-latency mode while a stream is playing and
// FIFO otherwise. The policy is a knob, not a requirement: when neither
// mailbox nor immediate is supported, FIFO is used.
//
// The manager is not safe for concurrent use. It belongs to the render thread.
package surface
