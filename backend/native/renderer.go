// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/interop"
	"github.com/gogpu/streamview/render"
)

// convertMinRows keeps conversion bands large enough to amortize scheduling.
const convertMinRows = 32

// quadSize is the size of the Quad uniform: two vec4<f32>.
const quadSize = 32

// pipelines holds the two passes for one target format.
type pipelines struct {
	video   *wgpu.RenderPipeline
	overlay *wgpu.RenderPipeline
}

// videoTexture is the upload target for mapped frames. It is reused while
// frames keep the same size and format.
type videoTexture struct {
	width  int
	height int
	format gputypes.TextureFormat
	tex    *wgpu.Texture
	view   *wgpu.TextureView
	groups map[render.Scaler]*wgpu.BindGroup
}

func (v *videoTexture) release() {
	for _, g := range v.groups {
		g.Release()
	}
	v.view.Release()
	v.tex.Release()
}

type mapped struct {
	width  int
	height int
}

func (m *mapped) Width() int  { return m.width }
func (m *mapped) Height() int { return m.height }
func (m *mapped) Unmap()      {}

type renderer struct {
	b *Backend

	module     *wgpu.ShaderModule
	layout     *wgpu.BindGroupLayout
	pipeLayout *wgpu.PipelineLayout
	pipelines  map[gputypes.TextureFormat]*pipelines
	nearest    *wgpu.Sampler
	linear     *wgpu.Sampler
	videoQuad  *wgpu.Buffer
	fullQuad   *wgpu.Buffer

	video *videoTexture
	spare *image.RGBA
}

func newRenderer(b *Backend) *renderer {
	return &renderer{b: b}
}

// init creates the shader, layouts, samplers and the pipelines for the
// default surface format.
func (r *renderer) init(format gputypes.TextureFormat) error {
	d := r.b.device
	desc := &wgpu.ShaderModuleDescriptor{Label: "streamview-composite"}
	if r.b.adapter.Info().Backend == wgpu.BackendVulkan {
		desc.SPIRV = r.b.spirv
	} else {
		desc.WGSL = compositeWGSL
	}
	var err error
	if r.module, err = d.CreateShaderModule(desc); err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}

	r.layout, err = d.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "streamview-quad",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStagesVertexFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: quadSize},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	r.pipeLayout, err = d.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "streamview-composite",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.layout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	if r.nearest, err = r.sampler("streamview-nearest", gputypes.FilterModeNearest); err != nil {
		return err
	}
	if r.linear, err = r.sampler("streamview-linear", gputypes.FilterModeLinear); err != nil {
		return err
	}
	if r.videoQuad, err = r.uniform("streamview-video-quad"); err != nil {
		return err
	}
	if r.fullQuad, err = r.uniform("streamview-overlay-quad"); err != nil {
		return err
	}
	if err := r.b.queue.WriteBuffer(r.fullQuad, 0, quadBytes([4]float32{0, 0, 1, 1}, render.Params{})); err != nil {
		return fmt.Errorf("write overlay quad: %w", err)
	}

	r.pipelines = make(map[gputypes.TextureFormat]*pipelines)
	_, err = r.pipelinesFor(format)
	return err
}

func (r *renderer) sampler(label string, filter gputypes.FilterMode) (*wgpu.Sampler, error) {
	s, err := r.b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		LodMaxClamp:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler %s: %w", label, err)
	}
	return s, nil
}

func (r *renderer) uniform(label string) (*wgpu.Buffer, error) {
	buf, err := r.b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  quadSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %s: %w", label, err)
	}
	return buf, nil
}

// pipelinesFor returns the pipelines rendering into format, creating them
// on first use.
func (r *renderer) pipelinesFor(format gputypes.TextureFormat) (*pipelines, error) {
	if p, ok := r.pipelines[format]; ok {
		return p, nil
	}
	video, err := r.pipeline("streamview-video", format, nil)
	if err != nil {
		return nil, err
	}
	blend := gputypes.BlendStatePremultiplied()
	overlay, err := r.pipeline("streamview-overlay", format, &blend)
	if err != nil {
		video.Release()
		return nil, err
	}
	p := &pipelines{video: video, overlay: overlay}
	r.pipelines[format] = p
	return p, nil
}

func (r *renderer) pipeline(label string, format gputypes.TextureFormat, blend *gputypes.BlendState) (*wgpu.RenderPipeline, error) {
	p, err := r.b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  label,
		Layout: r.pipeLayout,
		Vertex: wgpu.VertexState{
			Module:     r.module,
			EntryPoint: "vs_main",
		},
		Primitive:   gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleStrip},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &wgpu.FragmentState{
			Module:     r.module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: format, Blend: blend, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline %s: %w", label, err)
	}
	return p, nil
}

// release destroys everything init and MapFrame created.
func (r *renderer) release() {
	if r.video != nil {
		r.video.release()
		r.video = nil
	}
	for _, p := range r.pipelines {
		p.video.Release()
		p.overlay.Release()
	}
	r.pipelines = nil
	for _, b := range []*wgpu.Buffer{r.videoQuad, r.fullQuad} {
		if b != nil {
			b.Release()
		}
	}
	for _, s := range []*wgpu.Sampler{r.nearest, r.linear} {
		if s != nil {
			s.Release()
		}
	}
	if r.pipeLayout != nil {
		r.pipeLayout.Release()
	}
	if r.layout != nil {
		r.layout.Release()
	}
	if r.module != nil {
		r.module.Release()
	}
	r.videoQuad, r.fullQuad, r.nearest, r.linear = nil, nil, nil, nil
	r.pipeLayout, r.layout, r.module = nil, nil, nil
	r.spare = nil
}

// upload writes tightly or loosely packed 4-byte pixels into tex.
func (r *renderer) upload(tex *wgpu.Texture, pix []byte, stride, w, h int) error {
	err := r.b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: tex, Aspect: gputypes.TextureAspectAll},
		pix,
		&wgpu.ImageDataLayout{BytesPerRow: uint32(stride), RowsPerImage: uint32(h)},
		&wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("native: upload %dx%d: %w", w, h, err)
	}
	return nil
}

// MapFrame uploads f into the video texture. Packed RGB formats go up as
// they are; YUV frames are converted to RGBA on the worker pool first.
func (r *renderer) MapFrame(f *frame.Frame, _ render.Params) (backend.Mapped, error) {
	if f.DecodeError {
		return nil, fmt.Errorf("%w: frame %v failed to decode", render.ErrMapFrame, f.PTS)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", render.ErrMapFrame, err)
	}
	if r.b.pool == nil || r.b.device == nil {
		return nil, backend.ErrNotInitialized
	}

	format := gputypes.TextureFormatRGBA8Unorm
	if f.Format == frame.BGRA8 {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	v, err := r.videoTexture(f.Width, f.Height, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", render.ErrMapFrame, err)
	}

	pix, stride := f.Planes[0], f.Strides[0]
	if f.Format.IsYUV() {
		dst := r.buffer(f.Width, f.Height)
		r.b.pool.Rows(f.Height, convertMinRows, func(y0, y1 int) {
			frame.ConvertRows(dst, f, y0, y1)
		})
		pix, stride = dst.Pix, dst.Stride
	}
	if err := r.upload(v.tex, pix, stride, f.Width, f.Height); err != nil {
		return nil, fmt.Errorf("%w: %w", render.ErrMapFrame, err)
	}
	return &mapped{width: f.Width, height: f.Height}, nil
}

func (r *renderer) buffer(w, h int) *image.RGBA {
	if s := r.spare; s != nil && s.Rect.Dx() == w && s.Rect.Dy() == h {
		return s
	}
	r.spare = image.NewRGBA(image.Rect(0, 0, w, h))
	return r.spare
}

func (r *renderer) videoTexture(w, h int, format gputypes.TextureFormat) (*videoTexture, error) {
	if v := r.video; v != nil && v.width == w && v.height == h && v.format == format {
		return v, nil
	}
	if r.video != nil {
		r.video.release()
		r.video = nil
	}
	tex, err := r.b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "streamview-video",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, err
	}
	view, err := r.b.device.CreateTextureView(tex, nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	r.video = &videoTexture{
		width: w, height: h, format: format,
		tex: tex, view: view,
		groups: make(map[render.Scaler]*wgpu.BindGroup),
	}
	return r.video, nil
}

func (r *renderer) bindGroup(label string, view *wgpu.TextureView, s *wgpu.Sampler, quad *wgpu.Buffer) (*wgpu.BindGroup, error) {
	g, err := r.b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label,
		Layout: r.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view},
			{Binding: 1, Sampler: s},
			{Binding: 2, Buffer: quad, Size: quadSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create bind group %s: %w", label, err)
	}
	return g, nil
}

func (r *renderer) videoGroup(v *videoTexture, sc render.Scaler) (*wgpu.BindGroup, error) {
	if g, ok := v.groups[sc]; ok {
		return g, nil
	}
	s := r.linear
	if sc == render.ScalerNearest {
		s = r.nearest
	}
	g, err := r.bindGroup("streamview-video", v.view, s, r.videoQuad)
	if err != nil {
		return nil, err
	}
	v.groups[sc] = g
	return g, nil
}

func (r *renderer) overlayGroup(t *importedTexture) (*wgpu.BindGroup, error) {
	if t.group != nil {
		return t.group, nil
	}
	g, err := r.bindGroup("streamview-overlay", t.view, r.nearest, r.fullQuad)
	if err != nil {
		return nil, err
	}
	t.group = g
	return g, nil
}

// Render clears the target, draws the video into job.Dst and blends the
// overlay over the whole target in one pass.
func (r *renderer) Render(job *backend.Job) error {
	target, ok := job.Target.(*swapImage)
	if !ok {
		return fmt.Errorf("native: render target %T is not a native image", job.Target)
	}
	if r.b.device == nil {
		return backend.ErrNotInitialized
	}
	p, err := r.pipelinesFor(target.format)
	if err != nil {
		return err
	}

	var (
		videoGroup *wgpu.BindGroup
		viewport   render.Rect
	)
	if job.Video != nil && r.video != nil {
		crop, dst, visible := clipQuad(job.Crop, job.Dst, target.size.Width, target.size.Height)
		if visible {
			uv := [4]float32{
				float32(crop.X0 / float64(r.video.width)), float32(crop.Y0 / float64(r.video.height)),
				float32(crop.X1 / float64(r.video.width)), float32(crop.Y1 / float64(r.video.height)),
			}
			if err := r.b.queue.WriteBuffer(r.videoQuad, 0, quadBytes(uv, job.Params)); err != nil {
				return fmt.Errorf("native: write video quad: %w", err)
			}
			if videoGroup, err = r.videoGroup(r.video, job.Params.Scaler); err != nil {
				return err
			}
			viewport = dst
		}
	}

	var overlayGroup *wgpu.BindGroup
	if job.Overlay != nil {
		if overlayGroup, err = r.overlay(job.Overlay); err != nil {
			return err
		}
	}

	enc, err := r.b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "streamview-composite"})
	if err != nil {
		return fmt.Errorf("native: create encoder: %w", err)
	}
	pass, err := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "streamview-composite",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       target.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: job.Clear,
		}},
	})
	if err != nil {
		enc.DiscardEncoding()
		return fmt.Errorf("native: begin pass: %w", err)
	}
	if videoGroup != nil {
		pass.SetPipeline(p.video)
		pass.SetBindGroup(0, videoGroup, nil)
		pass.SetViewport(float32(viewport.X0), float32(viewport.Y0), float32(viewport.W()), float32(viewport.H()), 0, 1)
		pass.Draw(4, 1, 0, 0)
	}
	if overlayGroup != nil {
		pass.SetPipeline(p.overlay)
		pass.SetBindGroup(0, overlayGroup, nil)
		pass.SetViewport(0, 0, float32(target.size.Width), float32(target.size.Height), 0, 1)
		pass.Draw(4, 1, 0, 0)
	}
	if err := pass.End(); err != nil {
		enc.DiscardEncoding()
		return fmt.Errorf("native: end pass: %w", err)
	}
	cmd, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("native: finish: %w", err)
	}
	if _, err := r.b.queue.Submit(cmd); err != nil {
		return fmt.Errorf("native: submit: %w", err)
	}
	return nil
}

func (r *renderer) overlay(t *interop.Texture) (*wgpu.BindGroup, error) {
	it, ok := t.Imported.(*importedTexture)
	if !ok {
		return nil, fmt.Errorf("native: overlay %T is not a native texture", t.Imported)
	}
	return r.overlayGroup(it)
}

// clipQuad clips dst to the w x h target and shrinks crop by the same
// proportions. It reports false when nothing remains visible.
func clipQuad(crop, dst render.Rect, w, h int) (render.Rect, render.Rect, bool) {
	if dst.Empty() || crop.Empty() {
		return crop, dst, false
	}
	sx := crop.W() / dst.W()
	sy := crop.H() / dst.H()
	out := render.Rect{
		X0: max(dst.X0, 0), Y0: max(dst.Y0, 0),
		X1: min(dst.X1, float64(w)), Y1: min(dst.Y1, float64(h)),
	}
	if out.Empty() {
		return crop, dst, false
	}
	in := render.Rect{
		X0: crop.X0 + (out.X0-dst.X0)*sx,
		Y0: crop.Y0 + (out.Y0-dst.Y0)*sy,
		X1: crop.X1 - (dst.X1-out.X1)*sx,
		Y1: crop.Y1 - (dst.Y1-out.Y1)*sy,
	}
	return in, out, true
}

// quadBytes encodes the Quad uniform.
func quadBytes(uv [4]float32, params render.Params) []byte {
	var opts [4]float32
	if params.Dither {
		opts[0] = 1
	}
	if params.Deband {
		opts[1] = 1
	}
	b := make([]byte, quadSize)
	for i, v := range append(uv[:], opts[:]...) {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}
