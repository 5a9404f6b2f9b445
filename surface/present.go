// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
)

// PresentPolicy picks the swapchain present mode.
type PresentPolicy uint8

const (
	// PresentAuto uses low latency while streaming and vsync otherwise.
	PresentAuto PresentPolicy = iota
	// PresentLowLatency prefers mailbox, then immediate.
	PresentLowLatency
	// PresentVSync always uses FIFO.
	PresentVSync
)

var policyNames = [...]string{"auto", "low_latency", "vsync"}

// String returns the policy name.
func (p PresentPolicy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("PresentPolicy(%d)", uint8(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p PresentPolicy) MarshalText() ([]byte, error) {
	if int(p) >= len(policyNames) {
		return nil, fmt.Errorf("surface: invalid present policy %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PresentPolicy) UnmarshalText(b []byte) error {
	for i, name := range policyNames {
		if string(b) == name {
			*p = PresentPolicy(i)
			return nil
		}
	}
	return fmt.Errorf("surface: unknown present policy %q", b)
}

// Choose returns the mode to use. FIFO is always available, so it is the
// fallback when nothing better is supported.
func (p PresentPolicy) Choose(streaming bool, supported []gputypes.PresentMode) gputypes.PresentMode {
	lowLatency := p == PresentLowLatency || (p == PresentAuto && streaming)
	if lowLatency {
		for _, m := range []gputypes.PresentMode{gputypes.PresentModeMailbox, gputypes.PresentModeImmediate} {
			if slices.Contains(supported, m) {
				return m
			}
		}
	}
	return gputypes.PresentModeFifo
}
