package software

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/render"
)

// convertMinRows keeps conversion bands large enough to amortize scheduling.
const convertMinRows = 32

// mapped is a frame converted to RGBA. The buffer is returned to the
// renderer on Unmap and reused for the next frame of the same size.
type mapped struct {
	r   *renderer
	img *image.RGBA
}

func (m *mapped) Width() int  { return m.img.Rect.Dx() }
func (m *mapped) Height() int { return m.img.Rect.Dy() }

func (m *mapped) Unmap() {
	if m.r != nil {
		m.r.spare = m.img
		m.r = nil
	}
}

// RGBA returns the converted pixels.
func (m *mapped) RGBA() *image.RGBA { return m.img }

type renderer struct {
	b     *Backend
	spare *image.RGBA
}

func (r *renderer) buffer(w, h int) *image.RGBA {
	if s := r.spare; s != nil && s.Rect.Dx() == w && s.Rect.Dy() == h {
		r.spare = nil
		return s
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// MapFrame converts f to RGBA, spreading rows over the worker pool.
func (r *renderer) MapFrame(f *frame.Frame, _ render.Params) (backend.Mapped, error) {
	if err := r.b.record(OpMapFrame); err != nil {
		return nil, fmt.Errorf("%w: %w", render.ErrMapFrame, err)
	}
	if f.DecodeError {
		return nil, fmt.Errorf("%w: frame %v failed to decode", render.ErrMapFrame, f.PTS)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", render.ErrMapFrame, err)
	}
	if r.b.pool == nil {
		return nil, backend.ErrNotInitialized
	}
	dst := r.buffer(f.Width, f.Height)
	r.b.pool.Rows(f.Height, convertMinRows, func(y0, y1 int) {
		frame.ConvertRows(dst, f, y0, y1)
	})
	return &mapped{r: r, img: dst}, nil
}

// Render clears the target, scales the video into job.Dst and blends the
// overlay on top. Dither and deband have no effect at 8 bits per channel.
func (r *renderer) Render(job *backend.Job) error {
	if err := r.b.record(OpRender); err != nil {
		return err
	}
	target, ok := job.Target.(*SwapImage)
	if !ok {
		return fmt.Errorf("software: render target %T is not a software image", job.Target)
	}
	dst := target.img

	draw.Draw(dst, dst.Bounds(), image.NewUniform(toRGBA(job.Clear)), image.Point{}, draw.Src)

	if job.Video != nil {
		m, ok := job.Video.(*mapped)
		if !ok {
			return fmt.Errorf("software: mapped frame %T is not a software frame", job.Video)
		}
		out := job.Dst.Image().Intersect(dst.Bounds())
		crop := job.Crop.Image().Intersect(m.img.Bounds())
		if !out.Empty() && !crop.Empty() {
			scaler(job.Params.Scaler).Scale(dst, out, m.img, crop, draw.Src, nil)
		}
	}

	if job.Overlay != nil {
		ov, ok := job.Overlay.Imported.(*ImportedTexture)
		if !ok {
			return fmt.Errorf("software: overlay %T is not a software texture", job.Overlay.Imported)
		}
		draw.Draw(dst, dst.Bounds().Intersect(ov.img.Bounds()), ov.img, image.Point{}, draw.Over)
	}
	return nil
}

func scaler(s render.Scaler) draw.Scaler {
	switch s {
	case render.ScalerNearest:
		return draw.NearestNeighbor
	case render.ScalerCatmullRom:
		return draw.CatmullRom
	default:
		return draw.ApproxBiLinear
	}
}

// toRGBA converts a straight-alpha clear color to premultiplied 8-bit.
func toRGBA(c gputypes.Color) color.RGBA {
	a := unit(c.A)
	return color.RGBA{
		R: uint8(unit(c.R)*a*255 + 0.5),
		G: uint8(unit(c.G)*a*255 + 0.5),
		B: uint8(unit(c.B)*a*255 + 0.5),
		A: uint8(a*255 + 0.5),
	}
}

func unit(v float64) float64 { return min(max(v, 0), 1) }
