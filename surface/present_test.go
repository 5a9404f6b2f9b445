// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestPresentPolicyChoose(t *testing.T) {
	all := []gputypes.PresentMode{gputypes.PresentModeFifo, gputypes.PresentModeImmediate, gputypes.PresentModeMailbox}
	noMailbox := []gputypes.PresentMode{gputypes.PresentModeFifo, gputypes.PresentModeImmediate}
	fifoOnly := []gputypes.PresentMode{gputypes.PresentModeFifo}

	tests := []struct {
		name      string
		policy    PresentPolicy
		streaming bool
		supported []gputypes.PresentMode
		want      gputypes.PresentMode
	}{
		{"auto idle", PresentAuto, false, all, gputypes.PresentModeFifo},
		{"auto streaming", PresentAuto, true, all, gputypes.PresentModeMailbox},
		{"auto streaming no mailbox", PresentAuto, true, noMailbox, gputypes.PresentModeImmediate},
		{"auto streaming fifo only", PresentAuto, true, fifoOnly, gputypes.PresentModeFifo},
		{"low latency idle", PresentLowLatency, false, all, gputypes.PresentModeMailbox},
		{"vsync streaming", PresentVSync, true, all, gputypes.PresentModeFifo},
		{"nothing reported", PresentLowLatency, true, nil, gputypes.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Choose(tt.streaming, tt.supported); got != tt.want {
				t.Errorf("Choose() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPresentPolicyText(t *testing.T) {
	for _, p := range []PresentPolicy{PresentAuto, PresentLowLatency, PresentVSync} {
		b, err := p.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", p, err)
		}
		var got PresentPolicy
		if err := got.UnmarshalText(b); err != nil || got != p {
			t.Errorf("UnmarshalText(%q) = %v, %v", b, got, err)
		}
	}
	var p PresentPolicy
	if err := p.UnmarshalText([]byte("tearing")); err == nil {
		t.Error("UnmarshalText(tearing) succeeded")
	}
	if _, err := PresentPolicy(9).MarshalText(); err == nil {
		t.Error("MarshalText(9) succeeded")
	}
}

func TestSizeAndState(t *testing.T) {
	if !(Size{Width: 0, Height: 5}).Empty() || (Size{Width: 1, Height: 1}).Empty() {
		t.Error("Size.Empty wrong")
	}
	if s := (Size{Width: 3, Height: 4}).String(); s != "3x4" {
		t.Errorf("Size.String() = %q", s)
	}
	if SwapchainReady.String() != "swapchain-ready" || State(42).String() != "State(42)" {
		t.Errorf("State.String() = %q, %q", SwapchainReady.String(), State(42).String())
	}
}
