package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
)

// ErrUnknownSource is returned by Open for a name nobody registered.
var ErrUnknownSource = errors.New("frame: unknown source")

// Source produces decoded frames. Next returns the next frame if one is
// ready and false otherwise; it never blocks and may be called from any
// goroutine other than the coordinator's.
type Source interface {
	Next() (*Frame, bool)
}

// Notifier is implemented by sources that can signal when a frame is ready.
// Sources without it are polled at a fixed rate.
type Notifier interface {
	Ready() <-chan struct{}
}

// Finite is implemented by sources that end.
type Finite interface {
	Ended() bool
}

// Sink accepts ownership of frames.
type Sink interface {
	PresentFrame(f *Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(*Frame)

// PresentFrame calls fn(f).
func (fn SinkFunc) PresentFrame(f *Frame) { fn(f) }

// Options configures the built-in sources. Sources ignore fields that do
// not apply to them.
type Options struct {
	Width  int
	Height int
	Format PixelFormat

	// Frames limits the number of frames produced. Zero means unlimited.
	Frames int
	// ErrorEvery makes every Nth frame a decode error. Zero disables.
	ErrorEvery int
	// FrameDuration is the PTS step between frames.
	FrameDuration time.Duration

	// Dir is the directory read by the "images" source.
	Dir string
	// Loop restarts the image sequence after the last file.
	Loop bool
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.Format == FormatUnknown {
		o.Format = NV12
	}
	if o.FrameDuration <= 0 {
		o.FrameDuration = time.Second / 60
	}
	return o
}

// Opener creates a source from options.
type Opener func(Options) (Source, error)

// Built-in source names.
const (
	SourceTestPattern = "testpattern"
	SourceImages      = "images"
)

var sources = gpucontext.NewRegistry[Opener](
	gpucontext.WithPriority(SourceTestPattern, SourceImages),
)

func init() {
	Register(SourceTestPattern, func(o Options) (Source, error) { return NewTestPattern(o), nil })
	Register(SourceImages, func(o Options) (Source, error) { return NewImageSequence(o) })
}

// Register makes a source available to Open under name.
// Registering an existing name replaces it.
func Register(name string, open Opener) {
	sources.Register(name, func() Opener { return open })
}

// Available returns the names of all registered sources.
func Available() []string {
	return sources.Available()
}

// Open creates the named source.
func Open(name string, o Options) (Source, error) {
	open := sources.Get(name)
	if open == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	src, err := open(o)
	if err != nil {
		return nil, fmt.Errorf("frame: open %s: %w", name, err)
	}
	return src, nil
}
