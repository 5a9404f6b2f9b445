package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gogpu/gg"
	"github.com/gogpu/gpucontext"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/streamview"
	"github.com/gogpu/streamview/backend/software"
	"github.com/gogpu/streamview/config"
	"github.com/gogpu/streamview/frame"
	"github.com/gogpu/streamview/monitor"
	"github.com/gogpu/streamview/scene/hud"
)

const hudInterval = 250 * time.Millisecond

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "present frames from a source until it ends or the process is interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "settings file"},
			&cli.StringFlag{Name: "source", Value: frame.SourceTestPattern, Usage: "frame source"},
			&cli.StringFlag{Name: "dir", Usage: "directory read by the images source"},
			&cli.BoolFlag{Name: "loop", Usage: "restart the image sequence at the end"},
			&cli.IntFlag{Name: "frames", Usage: "stop after this many frames, 0 for unlimited"},
			&cli.IntFlag{Name: "width", Value: 1280, Usage: "video width"},
			&cli.IntFlag{Name: "height", Value: 720, Usage: "video height"},
			&cli.IntFlag{Name: "error-every", Usage: "make every Nth frame a decode error"},
			&cli.Float64Flag{Name: "rate", Value: 60, Usage: "frames per second pulled from the source"},
			&cli.StringFlag{Name: "fit", Usage: "contain, cover or stretch"},
			&cli.StringFlag{Name: "preset", Usage: "scaling preset"},
			&cli.StringFlag{Name: "out", Usage: "write presented images as PNG into this directory"},
			&cli.StringFlag{Name: "monitor", Usage: "serve statistics on this address"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	log, err := newLogger(c.App.ErrWriter, c.String("log-level"), c.Bool("log-json"))
	if err != nil {
		return err
	}
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	if c.Float64("rate") <= 0 {
		return fmt.Errorf("rate %v must be positive", c.Float64("rate"))
	}
	interval := time.Duration(float64(time.Second) / c.Float64("rate"))

	src, err := frame.Open(c.String("source"), frame.Options{
		Width:      c.Int("width"),
		Height:     c.Int("height"),
		Frames:     c.Int("frames"),
		ErrorEvery: c.Int("error-every"),
		Dir:        c.String("dir"),
		Loop:       c.Bool("loop"),
	})
	if err != nil {
		return err
	}

	var present software.PresentFunc
	if out := c.String("out"); out != "" {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
		present = pngWriter(out, log)
	}

	h, err := hud.New()
	if err != nil {
		return err
	}
	p, err := streamview.New(software.New(software.WithPresent(present)), h,
		streamview.WithLogger(log),
		streamview.WithSettings(settings),
		streamview.WithWindow(&gpucontext.NullWindowProvider{W: c.Int("width"), H: c.Int("height"), SF: 1}),
		streamview.WithVideoChangedHandler(h.SetHasVideo),
		streamview.WithCorruptedHandler(func(recent uint64) {
			if recent > 0 {
				h.ShowError(fmt.Sprintf("%d corrupted frames", recent), 2*time.Second)
			}
		}),
	)
	if err != nil {
		return err
	}
	if err := p.OnExpose(true); err != nil {
		_ = p.OnClose()
		return err
	}
	p.SetStreaming(true)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		err := frame.Pump(gctx, src, p, interval)
		if err == nil {
			settle(gctx, p, 4*settings.IdleInterval)
			log.Info("source ended")
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		feedHUD(gctx, p, h)
		return nil
	})
	if addr := settings.MonitorAddr; addr != "" {
		mon := monitor.New(p, monitor.WithLogger(log))
		g.Go(func() error { return mon.ListenAndServe(gctx, addr) })
	}

	runErr := g.Wait()
	p.EndSession()
	closeErr := p.OnClose()

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p.Stats()); err != nil {
		return err
	}
	return errors.Join(runErr, closeErr)
}

// loadSettings reads the settings file, if any, and applies flag overrides.
func loadSettings(c *cli.Context) (config.Settings, error) {
	s := config.Defaults()
	if path := c.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, err
		}
		if s, err = config.Parse(data); err != nil {
			return s, err
		}
	}
	if v := c.String("fit"); v != "" {
		if err := s.Fit.UnmarshalText([]byte(v)); err != nil {
			return s, err
		}
	}
	if v := c.String("preset"); v != "" {
		if err := s.Preset.UnmarshalText([]byte(v)); err != nil {
			return s, err
		}
	}
	if v := c.String("monitor"); v != "" {
		s.MonitorAddr = v
	}
	return s, s.Validate()
}

// pngWriter returns a PresentFunc saving each image as frame-NNNNNN.png.
func pngWriter(dir string, log *slog.Logger) software.PresentFunc {
	return func(img *image.RGBA, seq uint64) {
		path := filepath.Join(dir, fmt.Sprintf("frame-%06d.png", seq))
		if err := gg.FromImage(img).SavePNG(path); err != nil {
			log.Warn("write frame", "path", path, "err", err)
		}
	}
}

// feedHUD copies pipeline counters into the HUD until ctx is done.
func feedHUD(ctx context.Context, p *streamview.Pipeline, h *hud.HUD) {
	t := time.NewTicker(hudInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := p.Stats()
			h.SetStats(hud.Stats{
				Presented:       s.Presented,
				Dropped:         s.Dropped,
				Corrupted:       s.Corrupted,
				RecentCorrupted: s.RecentCorrupted,
			})
		}
	}
}

// settle waits until the pipeline stops presenting, at most one second.
func settle(ctx context.Context, p *streamview.Pipeline, every time.Duration) {
	deadline := time.Now().Add(time.Second)
	last := p.Stats().Presented
	t := time.NewTicker(max(every, time.Millisecond))
	defer t.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		n := p.Stats().Presented
		if n == last {
			return
		}
		last = n
	}
}
