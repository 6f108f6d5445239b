// Package config loads the settings of the storage stack from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/andreitdr/MiniOS"
	"github.com/andreitdr/MiniOS/disks"
	"github.com/andreitdr/MiniOS/drivers/fdc"
	"github.com/andreitdr/MiniOS/file_systems/fat12"
	"github.com/andreitdr/MiniOS/hal"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file. Durations are written as Go
// duration strings, e.g. "500ms".
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	FileSystem FileSystemConfig `yaml:"filesystem"`
	Log        LogConfig        `yaml:"log"`
}

type ControllerConfig struct {
	BasePort     uint16        `yaml:"base_port"`
	Geometry     string        `yaml:"geometry"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	SeekTimeout  time.Duration `yaml:"seek_timeout"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	SpinUpDelay  time.Duration `yaml:"spin_up_delay"`
	// Step is how long the clock sleeps between two status polls.
	Step time.Duration `yaml:"step"`
}

type FileSystemConfig struct {
	// MaxRootDirSectors caps the root directory scan. Zero scans all of it.
	MaxRootDirSectors uint `yaml:"max_root_dir_sectors"`
}

type LogConfig struct {
	// Level is any level name slog understands: debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the configuration for a 3.5" 1.44M drive on the primary
// controller.
func Default() Config {
	timing := fdc.DefaultTiming()
	return Config{
		Controller: ControllerConfig{
			BasePort:     fdc.PrimaryBase,
			Geometry:     disks.DefaultFloppySlug,
			PollTimeout:  timing.PollTimeout,
			SeekTimeout:  timing.SeekTimeout,
			ResetTimeout: timing.ResetTimeout,
			SpinUpDelay:  timing.SpinUpDelay,
			Step:         10 * time.Microsecond,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the file at `path` over the defaults. See [Parse].
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	config, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected. An empty document gives the defaults.
func Parse(data []byte) (Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, minios.ErrInvalidArgument.Wrap(err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks every field and reports all problems at once as a
// [*multierror.Error].
func (c Config) Validate() error {
	var result *multierror.Error
	invalid := func(format string, args ...any) {
		result = multierror.Append(
			result, minios.ErrInvalidArgument.WithMessage(fmt.Sprintf(format, args...)))
	}

	if c.Controller.BasePort == 0 {
		invalid("controller.base_port must be nonzero")
	}
	if geometry, err := disks.GetPredefinedDiskGeometry(c.Controller.Geometry); err != nil {
		invalid("controller.geometry: unknown medium %q", c.Controller.Geometry)
	} else if geometry.AddressUnitsPerSector != minios.SectorSize {
		invalid(
			"controller.geometry: %q has %d-byte sectors, need %d",
			c.Controller.Geometry,
			geometry.AddressUnitsPerSector,
			minios.SectorSize)
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"controller.poll_timeout", c.Controller.PollTimeout},
		{"controller.seek_timeout", c.Controller.SeekTimeout},
		{"controller.reset_timeout", c.Controller.ResetTimeout},
		{"controller.spin_up_delay", c.Controller.SpinUpDelay},
	}
	for _, d := range durations {
		if d.value <= 0 {
			invalid("%s must be positive, got %s", d.key, d.value)
		}
	}
	if c.Controller.Step < 0 {
		invalid("controller.step must not be negative, got %s", c.Controller.Step)
	}

	if _, err := c.LogLevel(); err != nil {
		invalid("log.level: %q is not a log level", c.Log.Level)
	}
	return result.ErrorOrNil()
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.Log.Level))
	return level, err
}

// NewLogger creates a text logger writing to `w` at the configured level.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.LogLevel()
	if err != nil {
		return nil, minios.ErrInvalidArgument.Wrap(err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// Clock returns the wall clock with the configured poll step.
func (c Config) Clock() hal.SystemClock {
	return hal.SystemClock{Step: c.Controller.Step}
}

func (c Config) geometry() (disks.DiskGeometry, error) {
	return disks.GetPredefinedDiskGeometry(c.Controller.Geometry)
}

// DriverOptions converts the controller section for [fdc.New].
func (c Config) DriverOptions(logger *slog.Logger) (fdc.Options, error) {
	geometry, err := c.geometry()
	if err != nil {
		return fdc.Options{}, err
	}
	return fdc.Options{
		BasePort: c.Controller.BasePort,
		Geometry: geometry,
		Timing: fdc.Timing{
			PollTimeout:  c.Controller.PollTimeout,
			SeekTimeout:  c.Controller.SeekTimeout,
			ResetTimeout: c.Controller.ResetTimeout,
			SpinUpDelay:  c.Controller.SpinUpDelay,
		},
		Logger: logger,
	}, nil
}

// FileSystemOptions converts the file system section for [fat12.New].
func (c Config) FileSystemOptions(logger *slog.Logger) (fat12.Options, error) {
	geometry, err := c.geometry()
	if err != nil {
		return fat12.Options{}, err
	}
	return fat12.Options{
		MaxRootDirSectors: c.FileSystem.MaxRootDirSectors,
		Geometry:          &geometry,
		Logger:            logger,
	}, nil
}
