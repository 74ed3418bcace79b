package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/retina/engine/renderer/resources"
	"github.com/spaghettifunk/retina/engine/renderer/timeline"
)

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Frame       FrameConfig       `toml:"frame"`
	Table       TableConfig       `toml:"table"`
	Log         LogConfig         `toml:"log"`
}

type ApplicationConfig struct {
	// The application name used in logs and debug names.
	Name string `toml:"name"`
	// Starting framebuffer size.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// Number of frames the testbed renders before quitting. 0 runs until a quit event.
	Frames uint64 `toml:"frames"`
}

type FrameConfig struct {
	// How many frames the host may record ahead of the device.
	FramesInFlight uint64 `toml:"frames_in_flight"`
	// Upper bound on the frame pacing wait, as a Go duration string. Empty or
	// zero waits forever.
	WaitTimeout string `toml:"wait_timeout"`
}

type TableConfig struct {
	SamplerCapacity               int `toml:"sampler_capacity"`
	SampledImageCapacity          int `toml:"sampled_image_capacity"`
	StorageImageCapacity          int `toml:"storage_image_capacity"`
	StorageBufferCapacity         int `toml:"storage_buffer_capacity"`
	AccelerationStructureCapacity int `toml:"acceleration_structure_capacity"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Retina",
			Width:  1280,
			Height: 720,
		},
		Frame: FrameConfig{
			FramesInFlight: timeline.DefaultMaxTimelineDifference,
		},
		Table: TableConfig{
			SamplerCapacity:               resources.DefaultSamplerCapacity,
			SampledImageCapacity:          resources.DefaultSampledImageCapacity,
			StorageImageCapacity:          resources.DefaultStorageImageCapacity,
			StorageBufferCapacity:         resources.DefaultStorageBufferCapacity,
			AccelerationStructureCapacity: resources.DefaultAccelerationStructureCapacity,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// Load reads and validates the TOML file at path. Keys missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Frame.FramesInFlight == 0 {
		errs = append(errs, errors.New("frame.frames_in_flight must be greater than 0"))
	}
	if _, err := c.Frame.Timeout(); err != nil {
		errs = append(errs, err)
	}

	capacities := []struct {
		key   string
		value int
	}{
		{"table.sampler_capacity", c.Table.SamplerCapacity},
		{"table.sampled_image_capacity", c.Table.SampledImageCapacity},
		{"table.storage_image_capacity", c.Table.StorageImageCapacity},
		{"table.storage_buffer_capacity", c.Table.StorageBufferCapacity},
		{"table.acceleration_structure_capacity", c.Table.AccelerationStructureCapacity},
	}
	for _, capacity := range capacities {
		if capacity.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be greater than 0, got %d", capacity.key, capacity.value))
		}
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// Timeout returns the frame wait timeout. A negative duration means no timeout,
// which is also what "0s" asks for.
func (f FrameConfig) Timeout() (time.Duration, error) {
	if f.WaitTimeout == "" {
		return -1, nil
	}
	d, err := time.ParseDuration(f.WaitTimeout)
	if err != nil {
		return 0, fmt.Errorf("frame.wait_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("frame.wait_timeout must not be negative, got %s", d)
	}
	if d == 0 {
		return -1, nil
	}
	return d, nil
}

// ShaderResourceTableConfig maps the table section onto the table constructor.
func (c *Config) ShaderResourceTableConfig(device resources.Device) resources.ShaderResourceTableConfig {
	return resources.ShaderResourceTableConfig{
		Name:                          c.Application.Name,
		Device:                        device,
		SamplerCapacity:               c.Table.SamplerCapacity,
		SampledImageCapacity:          c.Table.SampledImageCapacity,
		StorageImageCapacity:          c.Table.StorageImageCapacity,
		StorageBufferCapacity:         c.Table.StorageBufferCapacity,
		AccelerationStructureCapacity: c.Table.AccelerationStructureCapacity,
	}
}
