package frame

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"
)

// ErrInvalidFrame is returned when a frame's planes do not match its format.
var ErrInvalidFrame = errors.New("frame: invalid frame")

// PixelFormat describes the memory layout of a frame.
type PixelFormat uint8

// Supported pixel formats.
const (
	FormatUnknown PixelFormat = iota
	// RGBA8 is packed 8-bit RGBA, one plane.
	RGBA8
	// BGRA8 is packed 8-bit BGRA, one plane.
	BGRA8
	// NV12 is 8-bit Y plane followed by interleaved half-resolution CbCr.
	NV12
	// I420 is 8-bit Y, Cb and Cr planes, chroma at half resolution.
	I420
)

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case RGBA8:
		return "rgba8"
	case BGRA8:
		return "bgra8"
	case NV12:
		return "nv12"
	case I420:
		return "i420"
	default:
		return "unknown"
	}
}

// Planes returns the number of planes the format uses.
func (f PixelFormat) Planes() int {
	switch f {
	case RGBA8, BGRA8:
		return 1
	case NV12:
		return 2
	case I420:
		return 3
	default:
		return 0
	}
}

// IsYUV reports whether the format stores luma and chroma separately.
func (f PixelFormat) IsYUV() bool {
	return f == NV12 || f == I420
}

// Frame is one decoded video image.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Color  ColorInfo

	// Planes holds the pixel data, one slice per plane.
	Planes [][]byte
	// Strides holds the row pitch in bytes of each plane.
	Strides []int

	// PTS is the presentation timestamp assigned by the decoder.
	PTS time.Duration

	// DecodeError marks a frame the decoder produced from damaged input.
	// Such frames are counted and discarded, never displayed.
	DecodeError bool

	release  func()
	released atomic.Bool
}

// Alloc returns a frame with zeroed planes sized for the given format.
func Alloc(width, height int, format PixelFormat) *Frame {
	f := &Frame{
		Width:  width,
		Height: height,
		Format: format,
		Color:  DefaultColor(),
	}
	cw, ch := chromaSize(width, height)
	switch format {
	case RGBA8, BGRA8:
		f.Strides = []int{width * 4}
		f.Planes = [][]byte{make([]byte, width*4*height)}
	case NV12:
		f.Strides = []int{width, cw * 2}
		f.Planes = [][]byte{make([]byte, width*height), make([]byte, cw*2*ch)}
	case I420:
		f.Strides = []int{width, cw, cw}
		f.Planes = [][]byte{make([]byte, width*height), make([]byte, cw*ch), make([]byte, cw*ch)}
	}
	if format == RGBA8 || format == BGRA8 {
		f.Color.Range = RangeFull
	}
	return f
}

// FromRGBA wraps img as an RGBA8 frame without copying.
func FromRGBA(img *image.RGBA) *Frame {
	b := img.Bounds()
	off := img.PixOffset(b.Min.X, b.Min.Y)
	return &Frame{
		Width:   b.Dx(),
		Height:  b.Dy(),
		Format:  RGBA8,
		Color:   ColorInfo{Matrix: MatrixBT709, Range: RangeFull},
		Planes:  [][]byte{img.Pix[off:]},
		Strides: []int{img.Stride},
	}
}

// Errored returns a placeholder for a frame the decoder failed to produce.
func Errored(pts time.Duration) *Frame {
	return &Frame{DecodeError: true, PTS: pts}
}

// OnRelease installs fn to be called once when the frame is released.
// It replaces any earlier hook.
func (f *Frame) OnRelease(fn func()) {
	f.release = fn
}

// Release returns the frame's buffers to the producer. Calling Release
// more than once, or on a nil frame, is a no-op.
func (f *Frame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.release != nil {
		f.release()
	}
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Validate checks that the planes are large enough for the frame's format
// and dimensions.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	n := f.Format.Planes()
	if n == 0 {
		return fmt.Errorf("%w: format %s", ErrInvalidFrame, f.Format)
	}
	if len(f.Planes) < n || len(f.Strides) < n {
		return fmt.Errorf("%w: %s needs %d planes, have %d", ErrInvalidFrame, f.Format, n, len(f.Planes))
	}
	cw, ch := chromaSize(f.Width, f.Height)
	for i := range n {
		rowBytes, rows := f.Width, f.Height
		switch {
		case f.Format == RGBA8 || f.Format == BGRA8:
			rowBytes = f.Width * 4
		case i > 0 && f.Format == NV12:
			rowBytes, rows = cw*2, ch
		case i > 0:
			rowBytes, rows = cw, ch
		}
		if f.Strides[i] < rowBytes {
			return fmt.Errorf("%w: plane %d stride %d < %d", ErrInvalidFrame, i, f.Strides[i], rowBytes)
		}
		if need := f.Strides[i]*(rows-1) + rowBytes; len(f.Planes[i]) < need {
			return fmt.Errorf("%w: plane %d has %d bytes, need %d", ErrInvalidFrame, i, len(f.Planes[i]), need)
		}
	}
	return nil
}

func chromaSize(w, h int) (int, int) {
	return (w + 1) / 2, (h + 1) / 2
}
