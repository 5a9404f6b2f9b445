package frame

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrNoImages is returned when the image directory holds no decodable files.
var ErrNoImages = errors.New("frame: no images")

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}

// ImageSequence replays still images from a directory as RGBA8 frames,
// in file name order. Files that fail to decode produce decode-error frames.
type ImageSequence struct {
	opts  Options
	files []string

	mu sync.Mutex
	n  int
}

// NewImageSequence scans o.Dir for images.
func NewImageSequence(o Options) (*ImageSequence, error) {
	o = o.withDefaults()
	entries, err := os.ReadDir(o.Dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExts, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(o.Dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, o.Dir)
	}
	slices.Sort(files)
	return &ImageSequence{opts: o, files: files}, nil
}

// Next decodes the next image.
func (s *ImageSequence) Next() (*Frame, bool) {
	s.mu.Lock()
	if s.endedLocked() {
		s.mu.Unlock()
		return nil, false
	}
	n := s.n
	s.n++
	s.mu.Unlock()

	pts := time.Duration(n) * s.opts.FrameDuration
	img, err := decodeFile(s.files[n%len(s.files)])
	if err != nil {
		return Errored(pts), true
	}
	f := FromRGBA(img)
	f.PTS = pts
	return f, true
}

// Ended reports whether every image has been produced.
func (s *ImageSequence) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedLocked()
}

func (s *ImageSequence) endedLocked() bool {
	if s.opts.Frames > 0 && s.n >= s.opts.Frames {
		return true
	}
	return !s.opts.Loop && s.n >= len(s.files)
}

func decodeFile(path string) (*image.RGBA, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	src, _, err := image.Decode(fh)
	if err != nil {
		return nil, err
	}
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba, nil
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, nil
}
