package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/streamview/render"
	"github.com/gogpu/streamview/surface"
)

func TestDefaultsValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
	d := Defaults()
	if !d.HoldLastFrame || d.CorruptResetFrames != 1 || d.Fit != render.Contain {
		t.Errorf("Defaults() = %+v", d)
	}
}

func TestParse(t *testing.T) {
	s, err := Parse([]byte(`
fit: cover
preset: high_quality
present_mode: vsync
hold_last_frame: false
blank_after: 2s
active_interval: 8ms
backend: software
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Fit != render.Cover || s.Preset != render.PresetHighQuality || s.PresentMode != surface.PresentVSync {
		t.Errorf("enums = %v %v %v", s.Fit, s.Preset, s.PresentMode)
	}
	if s.HoldLastFrame || s.BlankAfter != 2*time.Second || s.ActiveInterval != 8*time.Millisecond {
		t.Errorf("hold %v, blank %v, active %v", s.HoldLastFrame, s.BlankAfter, s.ActiveInterval)
	}
	if s.IdleInterval != Defaults().IdleInterval {
		t.Errorf("unset idle_interval = %v, want default", s.IdleInterval)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown fit", "fit: zoom"},
		{"unknown key", "fps: 60"},
		{"zero interval", "idle_interval: 0s"},
		{"negative blank", "blank_after: -1s"},
		{"reset window", "corrupt_reset_frames: 0"},
		{"backend", "backend: vulkan"},
		{"syntax", "fit: [cover"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Errorf("Parse(%q) succeeded", tt.yaml)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	s := Defaults()
	s.ActiveInterval = 0
	s.Backend = "metal"
	err := s.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() = %v, want ErrInvalid", err)
	}
	for _, want := range []string{"active_interval", "metal"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, missing %q", err, want)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	s, err := Parse([]byte("  \n"))
	if err != nil || s != Defaults() {
		t.Errorf("Parse(empty) = %+v, %v", s, err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "streamview.yaml")

	s, err := Load(path)
	if err != nil || s != Defaults() {
		t.Fatalf("Load(missing) = %+v, %v", s, err)
	}

	s.Fit = render.Stretch
	s.BlankAfter = 1500 * time.Millisecond
	s.MonitorAddr = "127.0.0.1:8088"
	if err := Save(path, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "fit: stretch") || !strings.Contains(string(data), "blank_after: 1.5s") {
		t.Errorf("saved YAML:\n%s", data)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != s {
		t.Errorf("Load() = %+v, want %+v", got, s)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	s := Defaults()
	s.IdleInterval = -time.Second
	if err := Save(path, s); !errors.Is(err, ErrInvalid) {
		t.Errorf("Save() error = %v, want ErrInvalid", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("invalid settings were written")
	}
}

func TestSchedulerConfig(t *testing.T) {
	s := Defaults()
	s.ActiveInterval = 3 * time.Millisecond
	if c := s.Scheduler(); c.Active != 3*time.Millisecond || c.Idle != s.IdleInterval {
		t.Errorf("Scheduler() = %+v", c)
	}
}
