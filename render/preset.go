// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import "fmt"

// Preset is a named renderer parameter set.
type Preset uint8

const (
	// PresetDefault balances quality and cost.
	PresetDefault Preset = iota
	// PresetFast minimizes per-frame GPU work.
	PresetFast
	// PresetHighQuality uses the most expensive scaler and dithering.
	PresetHighQuality
)

var presetNames = [...]string{PresetDefault: "default", PresetFast: "fast", PresetHighQuality: "high_quality"}

// String returns the preset name.
func (p Preset) String() string {
	if int(p) < len(presetNames) {
		return presetNames[p]
	}
	return fmt.Sprintf("Preset(%d)", uint8(p))
}

// ParsePreset parses a preset name.
func ParsePreset(s string) (Preset, error) {
	for i, name := range presetNames {
		if s == name {
			return Preset(i), nil
		}
	}
	return PresetDefault, fmt.Errorf("render: unknown preset %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Preset) MarshalText() ([]byte, error) {
	if int(p) >= len(presetNames) {
		return nil, fmt.Errorf("render: invalid preset %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Preset) UnmarshalText(b []byte) error {
	v, err := ParsePreset(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Scaler is the resampling kernel used when the frame is resized.
type Scaler uint8

const (
	ScalerNearest Scaler = iota
	ScalerBilinear
	ScalerCatmullRom
)

// Params are the renderer settings a preset expands to.
type Params struct {
	Scaler Scaler
	// Dither enables ordered dithering when the output has less precision
	// than the source.
	Dither bool
	// Deband smooths banding in flat gradients.
	Deband bool
}

// Params returns the parameter set for p.
func (p Preset) Params() Params {
	switch p {
	case PresetFast:
		return Params{Scaler: ScalerNearest}
	case PresetHighQuality:
		return Params{Scaler: ScalerCatmullRom, Dither: true, Deband: true}
	default:
		return Params{Scaler: ScalerBilinear, Dither: true}
	}
}
