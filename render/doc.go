// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render holds the renderer-independent parts of presenting a frame:
// geometry, fit policies and quality presets.
//
// # Fit Policies
//
// A decoded frame rarely has the aspect ratio of the window it is shown in.
// [Fit] maps the frame onto the target under one of three policies:
//
//   - Contain: the whole frame is visible, letterboxed or pillarboxed.
//   - Stretch: the frame fills the target, aspect ratio ignored.
//   - Cover: the frame fills the target, excess cropped symmetrically.
//
// # Presets
//
// A [Preset] selects a renderer parameter set. It trades image quality for
// per-frame cost and never changes the shape of the pipeline.
package render
