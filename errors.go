// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package streamview

import "errors"

var (
	// ErrFatal wraps failures that leave the pipeline unusable: no device,
	// a missing GPU capability or a surface the windowing system refused.
	// They are never retried.
	ErrFatal = errors.New("streamview: fatal")

	// ErrClosed is returned by operations after OnClose completed.
	ErrClosed = errors.New("streamview: pipeline closed")
)
