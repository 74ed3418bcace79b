package testbed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/retina/engine"
	"github.com/spaghettifunk/retina/engine/config"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
)

func TestTestGameRunsAndReleasesEverything(t *testing.T) {
	tg, err := NewTestGame("")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Application.Frames = 130
	cfg.Frame.FramesInFlight = 3
	cfg.Table = config.TableConfig{
		SamplerCapacity:               4,
		SampledImageCapacity:          4,
		StorageImageCapacity:          4,
		StorageBufferCapacity:         16,
		AccelerationStructureCapacity: 4,
	}
	tg.Config = cfg
	tg.QueueLatency = 0
	device := resources.NewHeadlessDevice(resources.HeadlessDeviceConfig{Name: t.Name()})
	tg.Device = device

	e, err := engine.New(tg.Game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	stats := e.Systems().Renderer.Table().Stats()
	assert.Equal(t, 1, stats[metadata.DescriptorTypeSampler])
	assert.Equal(t, 1, stats[metadata.DescriptorTypeSampledImage])
	// three constant buffers and one particle buffer
	assert.Equal(t, 4, stats[metadata.DescriptorTypeStorageBuffer])

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(130), e.Metrics().TotalFrames())
	assert.Equal(t, 3, tg.state().uploads)
	// replaced particle buffers were freed once their frames retired
	assert.Equal(t, 4, e.Systems().Renderer.Table().Stats()[metadata.DescriptorTypeStorageBuffer])
	assert.Zero(t, e.Systems().Renderer.DeletionQueue().Len())

	require.NoError(t, e.Shutdown())
	assert.Zero(t, device.Live())
	assert.Equal(t, engine.EngineStageUninitialized, e.Stage())
}

func TestTestGameOnVulkan(t *testing.T) {
	tg, err := NewTestGame("")
	require.NoError(t, err)
	tg.UseVulkan(false)
	defer tg.Close()

	cfg := config.Default()
	cfg.Application.Frames = 70
	cfg.Frame.WaitTimeout = "5s"
	tg.Config = cfg
	tg.QueueLatency = 0

	e, err := engine.New(tg.Game)
	require.NoError(t, err)
	if err := e.Initialize(); err != nil {
		require.ErrorIs(t, err, ErrVulkanUnavailable)
		require.NoError(t, e.Shutdown())
		t.Skipf("no Vulkan 1.2 device: %v", err)
	}
	require.NotNil(t, tg.Device)
	assert.Equal(t, cfg.Application.Name+"-vulkan", tg.Device.Name())

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(70), e.Metrics().TotalFrames())
	assert.Zero(t, e.Systems().Renderer.DeletionQueue().Len())
	require.NoError(t, e.Shutdown())
}

func TestCloseWithoutVulkan(t *testing.T) {
	tg, err := NewTestGame("")
	require.NoError(t, err)
	device := resources.NewHeadlessDevice(resources.HeadlessDeviceConfig{Name: t.Name()})
	tg.Device = device

	tg.Close()
	// the headless device belongs to the caller
	assert.Equal(t, device, tg.Device)
}

func TestTableCapacities(t *testing.T) {
	capacities := tableCapacities(config.TableConfig{
		SamplerCapacity:               1,
		SampledImageCapacity:          2,
		StorageImageCapacity:          3,
		StorageBufferCapacity:         4,
		AccelerationStructureCapacity: 5,
	})
	assert.Equal(t, 1, capacities[metadata.DescriptorTypeSampler])
	assert.Equal(t, 2, capacities[metadata.DescriptorTypeSampledImage])
	assert.Equal(t, 3, capacities[metadata.DescriptorTypeStorageImage])
	assert.Equal(t, 4, capacities[metadata.DescriptorTypeStorageBuffer])
	assert.Equal(t, 5, capacities[metadata.DescriptorTypeAccelerationStructure])
}
