// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package streamview

import (
	"log/slog"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/config"
)

// Option configures a Pipeline during creation.
// Use functional options to customize Pipeline behavior.
//
// Example:
//
//	// Software backend, default settings, silent
//	p, err := streamview.New(software.New(), nil)
//
//	// Logging and a settings file
//	s, _ := config.Load("streamview.yaml")
//	p, err := streamview.New(nil, hud, streamview.WithLogger(slog.Default()), streamview.WithSettings(s))
type Option func(*options)

// options holds optional configuration for Pipeline creation.
type options struct {
	logger         *slog.Logger
	window         gpucontext.WindowProvider
	native         backend.NativeWindow
	settings       config.Settings
	clear          gputypes.Color
	now            func() time.Time
	onVideoChanged func(hasVideo bool)
	onCorrupted    func(recent uint64)
}

// defaultOptions returns the default pipeline options.
func defaultOptions() options {
	return options{
		logger:   newNopLogger(),
		window:   &gpucontext.NullWindowProvider{W: 1280, H: 720, SF: 1},
		settings: config.Defaults(),
		clear:    gputypes.Color{A: 1},
		now:      time.Now,
	}
}

// WithLogger sets the logger. Every record the pipeline and its
// collaborators emit carries a pipeline=<uuid> attribute.
// By default the pipeline produces no log output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWindow sets the source of the window size and scale factor. The
// default is a headless 1280x720 window.
func WithWindow(w gpucontext.WindowProvider) Option {
	return func(o *options) {
		if w != nil {
			o.window = w
		}
	}
}

// WithNativeWindow passes platform window handles to the backend.
// Headless backends ignore them.
func WithNativeWindow(w backend.NativeWindow) Option {
	return func(o *options) {
		o.native = w
	}
}

// WithSettings replaces config.Defaults. Invalid settings make New fail.
func WithSettings(s config.Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithClearColor sets the color behind the video. The default is opaque black.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) {
		o.clear = c
	}
}

// WithClock replaces time.Now for the hold policy.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithVideoChangedHandler registers fn to be called when the pipeline
// starts or stops having video to show. fn may run on any goroutine.
func WithVideoChangedHandler(fn func(hasVideo bool)) Option {
	return func(o *options) {
		o.onVideoChanged = fn
	}
}

// WithCorruptedHandler registers fn to be called when the surfaced
// corrupted frame count changes. fn runs on the goroutine presenting
// frames and must not block.
func WithCorruptedHandler(fn func(recent uint64)) Option {
	return func(o *options) {
		o.onCorrupted = fn
	}
}
