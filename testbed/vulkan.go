package testbed

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/retina/engine/config"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"github.com/spaghettifunk/retina/engine/renderer/vulkan"
)

// ErrVulkanUnavailable is returned by Boot when no Vulkan 1.2 device could be
// opened.
var ErrVulkanUnavailable = errors.New("vulkan is not available")

type vulkanBackend struct {
	validation bool
	context    *vulkan.Context
	device     *vulkan.BindlessDevice
}

// UseVulkan makes Boot open the first Vulkan 1.2 device and run the resource
// table and frame timeline on it. Call Close once the engine shut down.
func (g *TestGame) UseVulkan(validation bool) {
	g.vulkan = &vulkanBackend{validation: validation}
}

func (g *TestGame) bootVulkan() error {
	ctx, err := vulkan.NewContext(vulkan.ContextConfig{
		ApplicationName: g.Config.Application.Name,
		Validation:      g.vulkan.validation,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVulkanUnavailable, err)
	}
	device, err := vulkan.NewBindlessDevice(vulkan.BindlessDeviceConfig{
		Name:     g.Config.Application.Name + "-vulkan",
		Device:   ctx.Device,
		Bindless: vulkan.BindlessConfigFor(tableCapacities(g.Config.Table)),
	})
	if err != nil {
		ctx.Destroy()
		return err
	}

	g.vulkan.context = ctx
	g.vulkan.device = device
	g.Device = device
	g.SemaphoreFactory = vulkan.NewTimelineSemaphoreFactory(ctx.Device)
	core.LogInfo("testbed running on Vulkan device %s", device.Name())
	return nil
}

// Close releases the Vulkan device opened by UseVulkan. It is a no-op for the
// headless testbed.
func (g *TestGame) Close() {
	if g.vulkan == nil {
		return
	}
	if g.vulkan.device != nil {
		g.vulkan.device.Destroy()
		g.vulkan.device = nil
	}
	if g.vulkan.context != nil {
		g.vulkan.context.Destroy()
		g.vulkan.context = nil
	}
	g.Device = nil
	g.SemaphoreFactory = nil
}

func tableCapacities(table config.TableConfig) map[metadata.DescriptorType]int {
	return map[metadata.DescriptorType]int{
		metadata.DescriptorTypeSampler:               table.SamplerCapacity,
		metadata.DescriptorTypeSampledImage:          table.SampledImageCapacity,
		metadata.DescriptorTypeStorageImage:          table.StorageImageCapacity,
		metadata.DescriptorTypeStorageBuffer:         table.StorageBufferCapacity,
		metadata.DescriptorTypeAccelerationStructure: table.AccelerationStructureCapacity,
	}
}
