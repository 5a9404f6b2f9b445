// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/cache"
)

// compositeWGSL draws one textured quad covering the viewport. The same
// module serves the video pass and the overlay pass; only the bind group
// and the blend state differ.
//
// quad.uv holds the source rectangle in normalized coordinates (u0, v0,
// u1, v1); quad.opts.x enables dithering and quad.opts.y the deband blur.
const compositeWGSL = `
struct Quad {
    uv: vec4<f32>,
    opts: vec4<f32>,
}

@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;
@group(0) @binding(2) var<uniform> quad: Quad;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> VertexOutput {
    let x = f32(idx & 1u);
    let y = f32((idx >> 1u) & 1u);
    var out: VertexOutput;
    out.position = vec4<f32>(x * 2.0 - 1.0, 1.0 - y * 2.0, 0.0, 1.0);
    out.uv = mix(quad.uv.xy, quad.uv.zw, vec2<f32>(x, y));
    return out;
}

fn noise(p: vec2<f32>) -> f32 {
    return fract(sin(dot(p, vec2<f32>(12.9898, 78.233))) * 43758.5453);
}

@fragment
fn fs_main(v: VertexOutput) -> @location(0) vec4<f32> {
    var c = textureSample(src, samp, v.uv);
    if (quad.opts.y > 0.0) {
        let texel = 1.0 / vec2<f32>(textureDimensions(src, 0));
        let n = textureSample(src, samp, v.uv + vec2<f32>(texel.x, 0.0));
        let s = textureSample(src, samp, v.uv - vec2<f32>(texel.x, 0.0));
        let e = textureSample(src, samp, v.uv + vec2<f32>(0.0, texel.y));
        let w = textureSample(src, samp, v.uv - vec2<f32>(0.0, texel.y));
        let avg = (n + s + e + w) * 0.25;
        if (distance(avg.rgb, c.rgb) < 3.0 / 255.0) {
            c = vec4<f32>(avg.rgb, c.a);
        }
    }
    if (quad.opts.x > 0.0) {
        let d = (noise(v.position.xy) - 0.5) / 255.0;
        c = vec4<f32>(c.rgb + vec3<f32>(d, d, d), c.a);
    }
    return c;
}
`

// shaderVersion is part of the cache key so a cache written for an older
// shader is never used.
const shaderVersion = "composite-v1"

// compileComposite validates the composite shader and returns its SPIR-V.
// The result is taken from the shader cache when present.
func compileComposite(sc backend.ShaderCache) ([]uint32, bool, error) {
	key := cache.Key([]byte(shaderVersion), []byte(compositeWGSL))
	if sc != nil {
		if b, ok := sc.Get(key); ok && validSPIRV(b) {
			return toWords(b), true, nil
		}
	}
	b, err := naga.Compile(compositeWGSL)
	if err != nil {
		return nil, false, fmt.Errorf("native: compile composite shader: %w", err)
	}
	if !validSPIRV(b) {
		return nil, false, fmt.Errorf("native: composite shader: malformed SPIR-V (%d bytes)", len(b))
	}
	if sc != nil {
		sc.Put(key, b)
	}
	return toWords(b), false, nil
}

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

func validSPIRV(b []byte) bool {
	return len(b) >= 20 && len(b)%4 == 0 && binary.LittleEndian.Uint32(b) == spirvMagic
}

// toWords converts little-endian SPIR-V bytes to words.
func toWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
