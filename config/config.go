// Package config provides persisted pipeline settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/streamview/backend"
	"github.com/gogpu/streamview/render"
	"github.com/gogpu/streamview/scheduler"
	"github.com/gogpu/streamview/surface"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid settings")

// Settings are the user-adjustable pipeline settings.
type Settings struct {
	// Presentation
	Fit         render.FitPolicy      `yaml:"fit"`
	Preset      render.Preset         `yaml:"preset"`
	PresentMode surface.PresentPolicy `yaml:"present_mode"`

	// Hold policy
	HoldLastFrame bool          `yaml:"hold_last_frame"`
	BlankAfter    time.Duration `yaml:"blank_after"`

	// Scheduling
	ActiveInterval time.Duration `yaml:"active_interval"`
	IdleInterval   time.Duration `yaml:"idle_interval"`

	// Statistics
	CorruptResetFrames int `yaml:"corrupt_reset_frames"`

	// Runtime
	Backend     string `yaml:"backend"`
	ShaderCache string `yaml:"shader_cache"`
	MonitorAddr string `yaml:"monitor_addr"`
}

// Defaults returns Settings with default values.
func Defaults() Settings {
	return Settings{
		Fit:         render.Contain,
		Preset:      render.PresetDefault,
		PresentMode: surface.PresentAuto,

		HoldLastFrame: true,

		ActiveInterval: scheduler.DefaultActiveInterval,
		IdleInterval:   scheduler.DefaultIdleInterval,

		CorruptResetFrames: 1,
	}
}

// DefaultShaderCachePath returns the per-user shader cache location, or ""
// when the platform has no cache directory.
func DefaultShaderCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "streamview", "shaders.bin")
}

// Validate checks that every field holds a usable value.
func (s Settings) Validate() error {
	var errs []error
	if _, err := s.Fit.MarshalText(); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.Preset.MarshalText(); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.PresentMode.MarshalText(); err != nil {
		errs = append(errs, err)
	}
	if s.BlankAfter < 0 {
		errs = append(errs, fmt.Errorf("blank_after %v is negative", s.BlankAfter))
	}
	if s.ActiveInterval <= 0 {
		errs = append(errs, fmt.Errorf("active_interval %v must be positive", s.ActiveInterval))
	}
	if s.IdleInterval <= 0 {
		errs = append(errs, fmt.Errorf("idle_interval %v must be positive", s.IdleInterval))
	}
	if s.CorruptResetFrames < 1 {
		errs = append(errs, fmt.Errorf("corrupt_reset_frames %d must be at least 1", s.CorruptResetFrames))
	}
	switch s.Backend {
	case "", backend.BackendSoftware, backend.BackendNative:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", s.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Scheduler returns the scheduler intervals.
func (s Settings) Scheduler() scheduler.Config {
	return scheduler.Config{Active: s.ActiveInterval, Idle: s.IdleInterval}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Settings, error) {
	s := Defaults()
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("config: %w", err)
	}
	return s, s.Validate()
}

// Marshal encodes s as YAML.
func Marshal(s Settings) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(s)
}

// Load reads settings from a YAML file. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), err
	}
	return Parse(data)
}

// Save writes s to path atomically.
func Save(path string, s Settings) (err error) {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
