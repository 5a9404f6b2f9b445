// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package streamview

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// pipelineLogger derives the logger handed to every collaborator of one
// pipeline. Records carry the pipeline id so that several pipelines in one
// process can be told apart.
//
// Log levels used by streamview:
//   - [slog.LevelDebug]: per-frame diagnostics (drops, handshake steps, overlay uploads)
//   - [slog.LevelInfo]: lifecycle events (surface created, swapchain resized)
//   - [slog.LevelWarn]: per-tick failures the pipeline recovers from
//   - [slog.LevelError]: fatal initialization and teardown failures
func pipelineLogger(base *slog.Logger) (*slog.Logger, string) {
	if base == nil {
		base = newNopLogger()
	}
	id := uuid.NewString()
	return base.With("pipeline", id), id
}
