package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/retina/engine/renderer/resources"
)

const sampleConfig = `
[application]
name = "testbed"
frames = 120

[frame]
frames_in_flight = 3
wait_timeout = "250ms"

[table]
sampler_capacity = 16
storage_buffer_capacity = 64

[log]
level = "info"
`

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	timeout, err := cfg.Frame.Timeout()
	require.NoError(t, err)
	assert.Negative(t, timeout)
	assert.Equal(t, uint64(2), cfg.Frame.FramesInFlight)
	assert.Equal(t, resources.DefaultStorageBufferCapacity, cfg.Table.StorageBufferCapacity)
}

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "testbed", cfg.Application.Name)
	assert.Equal(t, uint32(1280), cfg.Application.Width)
	assert.Equal(t, uint64(120), cfg.Application.Frames)
	assert.Equal(t, uint64(3), cfg.Frame.FramesInFlight)
	assert.Equal(t, 16, cfg.Table.SamplerCapacity)
	assert.Equal(t, 64, cfg.Table.StorageBufferCapacity)
	assert.Equal(t, resources.DefaultSampledImageCapacity, cfg.Table.SampledImageCapacity)
	assert.Equal(t, "info", cfg.Log.Level)

	timeout, err := cfg.Frame.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, timeout)

	tableConfig := cfg.ShaderResourceTableConfig(nil)
	assert.Equal(t, "testbed", tableConfig.Name)
	assert.Equal(t, 16, tableConfig.SamplerCapacity)
}

func TestZeroTimeoutWaitsForever(t *testing.T) {
	cfg, err := Parse([]byte("[frame]\nwait_timeout = \"0s\"\n"))
	require.NoError(t, err)

	timeout, err := cfg.Frame.Timeout()
	require.NoError(t, err)
	assert.Negative(t, timeout)
}

func TestParseRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"unknown key", "[frame]\nframes_in_fly = 2\n"},
		{"zero frames in flight", "[frame]\nframes_in_flight = 0\n"},
		{"bad timeout", "[frame]\nwait_timeout = \"soon\"\n"},
		{"negative timeout", "[frame]\nwait_timeout = \"-1s\"\n"},
		{"zero capacity", "[table]\nsampler_capacity = 0\n"},
		{"bad log level", "[log]\nlevel = \"loud\"\n"},
		{"malformed", "[frame\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retina.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "testbed", cfg.Application.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retina.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	changes := make(chan *Config, 4)
	failures := make(chan error, 4)
	w, err := NewWatcher(WatcherConfig{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		OnChange: func(c *Config) { changes <- c },
		OnError:  func(err error) { failures <- err },
	})
	require.NoError(t, err)
	defer w.Close()

	writeAtomic(t, path, "[log]\nlevel = \"warn\"\n")
	select {
	case cfg := <-changes:
		assert.Equal(t, "warn", cfg.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	writeAtomic(t, path, "[frame]\nframes_in_flight = 0\n")
	select {
	case err := <-failures:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("invalid config was not reported")
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func writeAtomic(t *testing.T, path, data string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(data), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatcherRequiresCallback(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{Path: "retina.toml"})
	assert.Error(t, err)
	_, err = NewWatcher(WatcherConfig{OnChange: func(*Config) {}})
	assert.Error(t, err)
}
