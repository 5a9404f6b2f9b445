// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrMapFrame is returned when a decoded frame cannot be turned into
// something the renderer can sample.
var ErrMapFrame = errors.New("render: map frame")

// Rect is an axis-aligned rectangle in pixel space. X1 and Y1 are exclusive.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// RectFromSize returns the rectangle (0, 0)-(w, h).
func RectFromSize(w, h int) Rect {
	return Rect{X1: float64(w), Y1: float64(h)}
}

// W returns the width.
func (r Rect) W() float64 { return r.X1 - r.X0 }

// H returns the height.
func (r Rect) H() float64 { return r.Y1 - r.Y0 }

// Aspect returns W/H, or 0 for an empty rectangle.
func (r Rect) Aspect() float64 {
	if r.H() <= 0 {
		return 0
	}
	return r.W() / r.H()
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W() <= 0 || r.H() <= 0
}

// Image rounds the rectangle to whole pixels.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X0)), int(math.Round(r.Y0)),
		int(math.Round(r.X1)), int(math.Round(r.Y1)),
	)
}

// center returns a w×h rectangle sharing r's center.
func (r Rect) center(w, h float64) Rect {
	cx := (r.X0 + r.X1) / 2
	cy := (r.Y0 + r.Y1) / 2
	return Rect{X0: cx - w/2, Y0: cy - h/2, X1: cx + w/2, Y1: cy + h/2}
}

// FitPolicy selects how a frame is mapped onto the target rectangle.
type FitPolicy uint8

const (
	// Contain preserves aspect and shows the whole frame.
	Contain FitPolicy = iota
	// Stretch fills the target and ignores aspect.
	Stretch
	// Cover preserves aspect and crops the frame to fill the target.
	Cover
)

var fitNames = [...]string{Contain: "contain", Stretch: "stretch", Cover: "cover"}

// String returns the policy name.
func (p FitPolicy) String() string {
	if int(p) < len(fitNames) {
		return fitNames[p]
	}
	return fmt.Sprintf("FitPolicy(%d)", uint8(p))
}

// ParseFitPolicy parses a policy name.
func ParseFitPolicy(s string) (FitPolicy, error) {
	for i, name := range fitNames {
		if s == name {
			return FitPolicy(i), nil
		}
	}
	return Contain, fmt.Errorf("render: unknown fit policy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p FitPolicy) MarshalText() ([]byte, error) {
	if int(p) >= len(fitNames) {
		return nil, fmt.Errorf("render: invalid fit policy %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *FitPolicy) UnmarshalText(b []byte) error {
	v, err := ParseFitPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Toggle switches between target and Contain: applying it with the policy
// already active returns to Contain. This is what the stretch and zoom
// shortcuts do.
func (p FitPolicy) Toggle(target FitPolicy) FitPolicy {
	if p == target {
		return Contain
	}
	return target
}

// Fit maps src onto dst under policy p. It returns the part of the source
// to sample and the destination rectangle to draw it into. Empty inputs are
// returned unchanged.
func Fit(src, dst Rect, p FitPolicy) (crop, out Rect) {
	crop, out = src, dst
	if src.Empty() || dst.Empty() {
		return crop, out
	}
	sa, da := src.Aspect(), dst.Aspect()
	switch p {
	case Contain:
		if sa > da {
			out = dst.center(dst.W(), dst.W()/sa)
		} else {
			out = dst.center(dst.H()*sa, dst.H())
		}
	case Cover:
		if sa > da {
			crop = src.center(src.H()*da, src.H())
		} else {
			crop = src.center(src.W(), src.W()/da)
		}
	}
	return crop, out
}
