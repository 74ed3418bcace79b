package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/retina/engine/config"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
)

func testConfig(frames uint64) *config.Config {
	cfg := config.Default()
	cfg.Application.Name = "engine-test"
	cfg.Application.Frames = frames
	cfg.Table = config.TableConfig{
		SamplerCapacity:               8,
		SampledImageCapacity:          8,
		StorageImageCapacity:          8,
		StorageBufferCapacity:         8,
		AccelerationStructureCapacity: 8,
	}
	return cfg
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	var rendered []uint64
	var sizes [][2]uint32
	var buffers []resources.ShaderResource[*resources.TypedBuffer[uint32]]
	shutdown := false

	g := &Game{
		Config: testConfig(6),
		FnInitialize: func(e *Engine) error {
			var err error
			buffers, err = resources.MakeBuffers[uint32](e.Systems().Renderer.Table(), int(e.Config().Frame.FramesInFlight), metadata.BufferCreateInfo{Name: "frame", Count: 1})
			return err
		},
		FnRender: func(frame *renderer.Frame) error {
			rendered = append(rendered, frame.SignalValue)
			return buffers[frame.Index].Resource().Write(0, uint32(frame.SignalValue))
		},
		FnOnResize: func(w, h uint32) error {
			sizes = append(sizes, [2]uint32{w, h})
			return nil
		},
		FnShutdown: func() error {
			shutdown = true
			for i := range buffers {
				if err := buffers[i].Destroy(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	e, err := New(g)
	require.NoError(t, err)
	assert.Error(t, e.Run())

	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	require.NoError(t, e.Run())

	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, rendered)
	assert.Equal(t, [][2]uint32{{1280, 720}}, sizes)
	assert.Equal(t, uint64(6), e.Metrics().TotalFrames())
	assert.LessOrEqual(t, e.Metrics().MaxTimelineDifference(), uint64(2))

	require.NoError(t, e.Systems().Renderer.WaitIdle())
	values, err := buffers[0].Resource().Read(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{5}, values)

	require.NoError(t, e.Shutdown())
	assert.True(t, shutdown)
}

func TestEngineStopBeforeRun(t *testing.T) {
	frames := 0
	e, err := New(&Game{
		Config:   testConfig(0),
		FnRender: func(*renderer.Frame) error { frames++; return nil },
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	e.Stop()
	require.NoError(t, e.Run())
	assert.Zero(t, frames)
}

func TestEngineResizeSuspendsAndRecreates(t *testing.T) {
	var sizes [][2]uint32
	e, err := New(&Game{
		Config: testConfig(2),
		FnOnResize: func(w, h uint32) error {
			sizes = append(sizes, [2]uint32{w, h})
			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()
	require.NoError(t, e.Run())
	assert.Equal(t, uint64(2), e.Systems().Renderer.Timeline().GetHostTimelineValue())

	require.NoError(t, e.Resize(0, 0))
	e.Events().Dispatch()
	assert.True(t, e.IsSuspended())

	require.NoError(t, e.Resize(800, 600))
	e.Events().Dispatch()
	assert.False(t, e.IsSuspended())
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)
	assert.Equal(t, [][2]uint32{{1280, 720}, {800, 600}}, sizes)
	assert.Zero(t, e.Systems().Renderer.Timeline().GetHostTimelineValue())
}

func TestEngineAppliesReloadedConfig(t *testing.T) {
	e, err := New(&Game{Config: testConfig(1)})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()
	defer core.SetLogLevel("debug")

	reloaded := testConfig(3)
	reloaded.Log.Level = "warn"
	require.NoError(t, e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_CONFIG_RELOADED, Data: reloaded}))
	e.Events().Dispatch()

	assert.Equal(t, "warn", e.Config().Log.Level)
	assert.Equal(t, uint64(3), e.Config().Application.Frames)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(1)
	cfg.Frame.FramesInFlight = 0
	_, err := New(&Game{Config: cfg})
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestEngineFrameTimeout(t *testing.T) {
	cfg := testConfig(4)
	cfg.Frame.WaitTimeout = "1s"
	e, err := New(&Game{Config: cfg, QueueLatency: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(4), e.Metrics().TotalFrames())
}

func TestEngineLogsHandlerErrors(t *testing.T) {
	e, err := New(&Game{
		Config: testConfig(1),
		FnOnResize: func(w, h uint32) error {
			return errors.New("resize %d rejected")
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	require.NoError(t, e.Resize(640, 480))
	e.Events().Dispatch()
	assert.False(t, e.IsSuspended())

	reloaded := testConfig(5)
	reloaded.Log.Level = "%s-not-a-level"
	require.NoError(t, e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_CONFIG_RELOADED, Data: reloaded}))
	e.Events().Dispatch()

	assert.Equal(t, "debug", e.Config().Log.Level)
	assert.Equal(t, uint64(1), e.Config().Application.Frames)
	require.NoError(t, e.Run())
}
