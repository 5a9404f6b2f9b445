package frame

import (
	"sync"
	"time"
)

// bars are the seven SMPTE color bars at 75% intensity.
var bars = [7][3]byte{
	{191, 191, 191},
	{191, 191, 0},
	{0, 191, 191},
	{0, 191, 0},
	{191, 0, 191},
	{191, 0, 0},
	{0, 0, 191},
}

// TestPattern is a synthetic source of scrolling color bars. Every call to
// Next yields a frame, so it behaves like a decoder that is always ahead of
// the display. Frame buffers are recycled once released.
type TestPattern struct {
	opts Options

	mu   sync.Mutex
	n    int
	pool sync.Pool
}

// NewTestPattern creates a test pattern source.
func NewTestPattern(o Options) *TestPattern {
	o = o.withDefaults()
	p := &TestPattern{opts: o}
	p.pool.New = func() any { return Alloc(o.Width, o.Height, o.Format) }
	return p
}

// Next returns the next frame of the pattern.
func (p *TestPattern) Next() (*Frame, bool) {
	p.mu.Lock()
	if p.opts.Frames > 0 && p.n >= p.opts.Frames {
		p.mu.Unlock()
		return nil, false
	}
	n := p.n
	p.n++
	p.mu.Unlock()

	pts := time.Duration(n) * p.opts.FrameDuration
	if p.opts.ErrorEvery > 0 && n%p.opts.ErrorEvery == p.opts.ErrorEvery-1 {
		return Errored(pts), true
	}

	buf := p.pool.Get().(*Frame)
	f := &Frame{
		Width:   buf.Width,
		Height:  buf.Height,
		Format:  buf.Format,
		Color:   buf.Color,
		Planes:  buf.Planes,
		Strides: buf.Strides,
		PTS:     pts,
	}
	f.OnRelease(func() { p.pool.Put(buf) })
	paintBars(f, n)
	return f, true
}

// Ended reports whether the configured frame count has been produced.
func (p *TestPattern) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.Frames > 0 && p.n >= p.opts.Frames
}

// Produced returns how many frames Next has returned.
func (p *TestPattern) Produced() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func paintBars(f *Frame, n int) {
	barW := max(f.Width/len(bars), 1)
	shift := (n * 4) % f.Width
	// Bottom eighth is a white marker whose length encodes n modulo 256.
	markerY := f.Height - f.Height/8
	markerW := (n % 256) * f.Width / 256
	for y := range f.Height {
		for x := range f.Width {
			var r, g, b byte
			switch {
			case y >= markerY && x < markerW:
				r, g, b = 235, 235, 235
			case y >= markerY:
				r, g, b = 16, 16, 16
			default:
				c := bars[min(((x+shift)%f.Width)/barW, len(bars)-1)]
				r, g, b = c[0], c[1], c[2]
			}
			f.SetRGB(x, y, r, g, b)
		}
	}
}
