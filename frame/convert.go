package frame

import (
	"fmt"
	"image"
)

// ConvertRows writes rows [y0, y1) of f into dst as RGBA. dst must be at
// least as large as the frame. Disjoint row ranges may be converted
// concurrently.
func ConvertRows(dst *image.RGBA, f *Frame, y0, y1 int) {
	y0 = max(y0, 0)
	y1 = min(y1, f.Height)
	w := f.Width
	switch f.Format {
	case RGBA8:
		for y := y0; y < y1; y++ {
			copy(dst.Pix[dst.PixOffset(0, y):], f.Planes[0][y*f.Strides[0]:y*f.Strides[0]+w*4])
		}
	case BGRA8:
		for y := y0; y < y1; y++ {
			src := f.Planes[0][y*f.Strides[0]:]
			out := dst.Pix[dst.PixOffset(0, y):]
			for x := range w {
				i := x * 4
				out[i], out[i+1], out[i+2], out[i+3] = src[i+2], src[i+1], src[i], src[i+3]
			}
		}
	case NV12:
		t := newYUVToRGB(f.Color)
		for y := y0; y < y1; y++ {
			luma := f.Planes[0][y*f.Strides[0]:]
			chroma := f.Planes[1][(y/2)*f.Strides[1]:]
			out := dst.Pix[dst.PixOffset(0, y):]
			for x := range w {
				c := (x / 2) * 2
				r, g, b := t.convert(luma[x], chroma[c], chroma[c+1])
				i := x * 4
				out[i], out[i+1], out[i+2], out[i+3] = r, g, b, 0xff
			}
		}
	case I420:
		t := newYUVToRGB(f.Color)
		for y := y0; y < y1; y++ {
			luma := f.Planes[0][y*f.Strides[0]:]
			cb := f.Planes[1][(y/2)*f.Strides[1]:]
			cr := f.Planes[2][(y/2)*f.Strides[2]:]
			out := dst.Pix[dst.PixOffset(0, y):]
			for x := range w {
				r, g, b := t.convert(luma[x], cb[x/2], cr[x/2])
				i := x * 4
				out[i], out[i+1], out[i+2], out[i+3] = r, g, b, 0xff
			}
		}
	}
}

// ToRGBA converts the whole frame into a newly allocated image.
func ToRGBA(f *Frame) (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	dst := image.NewRGBA(f.Bounds())
	ConvertRows(dst, f, 0, f.Height)
	return dst, nil
}

// SetRGB stores an RGB color at (x, y), encoding it for the frame's format.
// Test sources use it to paint patterns in any format.
func (f *Frame) SetRGB(x, y int, r, g, b byte) {
	switch f.Format {
	case RGBA8:
		i := y*f.Strides[0] + x*4
		f.Planes[0][i], f.Planes[0][i+1], f.Planes[0][i+2], f.Planes[0][i+3] = r, g, b, 0xff
	case BGRA8:
		i := y*f.Strides[0] + x*4
		f.Planes[0][i], f.Planes[0][i+1], f.Planes[0][i+2], f.Planes[0][i+3] = b, g, r, 0xff
	case NV12, I420:
		yy, cb, cr := rgbToYUV(f.Color, r, g, b)
		f.Planes[0][y*f.Strides[0]+x] = yy
		if x%2 != 0 || y%2 != 0 {
			return
		}
		if f.Format == NV12 {
			i := (y/2)*f.Strides[1] + x
			f.Planes[1][i], f.Planes[1][i+1] = cb, cr
		} else {
			f.Planes[1][(y/2)*f.Strides[1]+x/2] = cb
			f.Planes[2][(y/2)*f.Strides[2]+x/2] = cr
		}
	default:
		panic(fmt.Sprintf("frame: SetRGB on %s frame", f.Format))
	}
}

func rgbToYUV(c ColorInfo, r, g, b byte) (y, cb, cr byte) {
	kr, kb := c.Matrix.coefficients()
	kg := 1 - kr - kb
	fy := kr*float32(r) + kg*float32(g) + kb*float32(b)
	fcb := (float32(b) - fy) / (2 * (1 - kb))
	fcr := (float32(r) - fy) / (2 * (1 - kr))
	if c.Range == RangeLimited {
		return clamp8(16 + fy*219/255), clamp8(128 + fcb*224/255), clamp8(128 + fcr*224/255)
	}
	return clamp8(fy), clamp8(128 + fcb), clamp8(128 + fcr)
}
