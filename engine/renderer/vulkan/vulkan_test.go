package vulkan

import (
	"errors"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
)

func TestBindlessConfigForTable(t *testing.T) {
	table, err := resources.NewShaderResourceTable(resources.ShaderResourceTableConfig{
		Name:                          "vulkan-test",
		Device:                        resources.NewHeadlessDevice(resources.HeadlessDeviceConfig{}),
		SamplerCapacity:               64,
		SampledImageCapacity:          128,
		StorageImageCapacity:          192,
		StorageBufferCapacity:         256,
		AccelerationStructureCapacity: 64,
	})
	require.NoError(t, err)
	defer table.Reset()

	config := BindlessConfigFor(table.Get().Capacities())
	assert.Equal(t, BindlessDescriptorSetConfig{
		SamplerCount:       64,
		SampledImageCount:  128,
		StorageImageCount:  192,
		StorageBufferCount: 256,
	}, config)

	bindings := config.bindings()
	require.Len(t, bindings, 4)
	for i, b := range bindings {
		assert.Equal(t, uint32(i), b.binding)
	}
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, bindings[BINDLESS_STORAGE_BUFFER_BINDING].kind)
}

func TestNewBindlessDescriptorSetRejectsEmptyBinding(t *testing.T) {
	_, err := NewBindlessDescriptorSet(&Device{Locks: NewLockPool()}, BindlessDescriptorSetConfig{
		SamplerCount:      1,
		SampledImageCount: 1,
	})
	assert.Error(t, err)
}

func TestDefaultBindingsAreDistinct(t *testing.T) {
	seen := map[uint32]metadata.DescriptorType{}
	for kind, binding := range DefaultBindings() {
		other, dup := seen[binding]
		assert.False(t, dup, "%s and %s share binding %d", kind, other, binding)
		seen[binding] = kind
	}
	_, ok := DefaultBindings()[metadata.DescriptorTypeAccelerationStructure]
	assert.False(t, ok)
}

func TestWriterRejectsUnsupportedWrites(t *testing.T) {
	writer := NewDescriptorWriter(&Device{Locks: NewLockPool()}, nil, nil)

	// nothing to write never touches the device
	require.NoError(t, writer.WriteDescriptors(nil))

	err := writer.WriteDescriptors([]metadata.DescriptorWrite{{
		Slot:                   0,
		Type:                   metadata.DescriptorTypeAccelerationStructure,
		AccelerationStructures: []metadata.AccelerationStructureDescriptor{{Handle: 1}},
	}})
	assert.Error(t, err)

	writer = NewDescriptorWriter(&Device{Locks: NewLockPool()}, nil, map[metadata.DescriptorType]uint32{})
	err = writer.WriteDescriptors([]metadata.DescriptorWrite{{
		Type:    metadata.DescriptorTypeStorageBuffer,
		Buffers: []metadata.BufferDescriptor{{Handle: 1, Size: 16}},
	}})
	assert.Error(t, err)
}

func TestDescriptorInfos(t *testing.T) {
	buffers := bufferInfos([]metadata.BufferDescriptor{{Handle: 0x1000, Offset: 64, Size: 256}})
	require.Len(t, buffers, 1)
	assert.Equal(t, vk.DeviceSize(64), buffers[0].Offset)
	assert.Equal(t, vk.DeviceSize(256), buffers[0].Range)

	images := imageInfos([]metadata.ImageDescriptor{
		{View: 0x2000, Layout: metadata.ImageLayoutShaderReadOnly},
		{View: 0x3000, Layout: metadata.ImageLayoutGeneral},
		{Sampler: 0x4000},
	})
	require.Len(t, images, 3)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, images[0].ImageLayout)
	assert.Equal(t, vk.ImageLayoutGeneral, images[1].ImageLayout)
	assert.Equal(t, vk.ImageLayoutUndefined, images[2].ImageLayout)
}

func TestLockPoolSerializesGroups(t *testing.T) {
	pool := NewLockPool()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				pool.SafeCall(QueueManagement, func() error {
					counter++
					return nil
				})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1600, counter)

	boom := errors.New("boom")
	assert.ErrorIs(t, pool.SafeCall(DescriptorManagement, func() error { return boom }), boom)
}

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_TIMEOUT", VulkanResultString(vk.Timeout, false))
	assert.Contains(t, VulkanResultString(vk.ErrorDeviceLost, true), "device has been lost")
	assert.Equal(t, "VkResult(-12345)", VulkanResultString(vk.Result(-12345), false))
	assert.Contains(t, resultError("vkWaitSemaphores", vk.Timeout).Error(), "vkWaitSemaphores failed: VK_TIMEOUT")
}

func TestNilDeviceRejected(t *testing.T) {
	_, err := NewDevice(nil, nil, nil)
	assert.ErrorIs(t, err, core.ErrNilResource)

	_, err = NewBindlessDevice(BindlessDeviceConfig{})
	assert.ErrorIs(t, err, core.ErrNilResource)
}

func TestImageConversions(t *testing.T) {
	testCases := []struct {
		format metadata.ImageFormat
		want   vk.Format
		aspect vk.ImageAspectFlagBits
	}{
		{metadata.ImageFormatR8G8B8A8Unorm, vk.FormatR8g8b8a8Unorm, vk.ImageAspectColorBit},
		{metadata.ImageFormatR8G8B8A8Srgb, vk.FormatR8g8b8a8Srgb, vk.ImageAspectColorBit},
		{metadata.ImageFormatR16G16B16A16Sfloat, vk.FormatR16g16b16a16Sfloat, vk.ImageAspectColorBit},
		{metadata.ImageFormatR32G32B32A32Sfloat, vk.FormatR32g32b32a32Sfloat, vk.ImageAspectColorBit},
		{metadata.ImageFormatD32Sfloat, vk.FormatD32Sfloat, vk.ImageAspectDepthBit},
	}
	for _, tc := range testCases {
		got, err := imageFormat(tc.format)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, vk.ImageAspectFlags(tc.aspect), imageAspect(tc.format))
	}
	_, err := imageFormat(metadata.ImageFormat(99))
	assert.Error(t, err)

	usage := imageUsage(metadata.ImageUsageSampled | metadata.ImageUsageTransferDst)
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit), usage)
}

func TestBufferConversions(t *testing.T) {
	// every buffer gets a device address
	assert.Equal(t, vk.BufferUsageFlags(vk.BufferUsageShaderDeviceAddressBit), bufferUsage(0))
	assert.Equal(t,
		vk.BufferUsageFlags(vk.BufferUsageShaderDeviceAddressBit|vk.BufferUsageStorageBufferBit|vk.BufferUsageTransferDstBit),
		bufferUsage(metadata.BufferUsageStorage|metadata.BufferUsageTransferDst))

	host := memoryPropertyFlags(metadata.MemoryLocationHost)
	assert.Equal(t, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit), host)
	assert.Equal(t, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), memoryPropertyFlags(metadata.MemoryLocationDevice))
}

func TestSamplerCreateInfo(t *testing.T) {
	info := samplerCreateInfo(metadata.DefaultSamplerCreateInfo("linear"))
	assert.Equal(t, vk.FilterLinear, info.MagFilter)
	assert.Equal(t, vk.FilterLinear, info.MinFilter)
	assert.Equal(t, vk.SamplerAddressModeRepeat, info.AddressModeU)
	assert.Equal(t, vk.Bool32(vk.False), info.AnisotropyEnable)

	info = samplerCreateInfo(metadata.SamplerCreateInfo{
		FilterMinify:  metadata.TextureFilterModeNearest,
		FilterMagnify: metadata.TextureFilterModeNearest,
		RepeatU:       metadata.TextureRepeatClampToEdge,
		RepeatV:       metadata.TextureRepeatMirroredRepeat,
		RepeatW:       metadata.TextureRepeatClampToBorder,
		Anisotropy:    8,
	})
	assert.Equal(t, vk.FilterNearest, info.MinFilter)
	assert.Equal(t, vk.SamplerAddressModeClampToEdge, info.AddressModeU)
	assert.Equal(t, vk.SamplerAddressModeMirroredRepeat, info.AddressModeV)
	assert.Equal(t, vk.SamplerAddressModeClampToBorder, info.AddressModeW)
	assert.Equal(t, vk.Bool32(vk.True), info.AnisotropyEnable)
	assert.Equal(t, float32(8), info.MaxAnisotropy)
}

func TestViewRange(t *testing.T) {
	img := resources.NewImage(resources.ImageDesc{Info: metadata.ImageCreateInfo{
		Name: "array", Width: 4, Height: 4, Layers: 6, Levels: 3,
	}})

	levels, layers, err := viewRange(img, metadata.ImageViewCreateInfo{BaseLevel: 1, BaseLayer: 2})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), levels)
	assert.Equal(t, uint32(4), layers)

	_, _, err = viewRange(img, metadata.ImageViewCreateInfo{BaseLevel: 3})
	assert.Error(t, err)
	_, _, err = viewRange(img, metadata.ImageViewCreateInfo{BaseLayer: 5, LayerCount: 2})
	assert.Error(t, err)
}

func TestAccelerationStructuresUnsupported(t *testing.T) {
	var device resources.Device = &BindlessDevice{name: "no-rt"}
	_, err := device.CreateAccelerationStructure(metadata.AccelerationStructureCreateInfo{Name: "tlas"})
	assert.ErrorIs(t, err, ErrAccelerationStructuresUnsupported)
	assert.Equal(t, "no-rt", device.Name())
}

func TestVulkanSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "layer\x00", VulkanSafeString("layer"))
	assert.Equal(t, "layer\x00", VulkanSafeString("layer\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, VulkanSafeStrings([]string{"a", "b"}))

	name := [8]byte{'a', 'b', 'c'}
	assert.Equal(t, 3, FindFirstZeroInByteArray(name[:]))
	assert.Equal(t, 2, FindFirstZeroInByteArray([]byte("xy")))
}
