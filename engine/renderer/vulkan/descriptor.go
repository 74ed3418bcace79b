package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

/**
 * @brief The number of descriptors of each kind in a bindless set.
 */
type BindlessDescriptorSetConfig struct {
	SamplerCount       uint32
	SampledImageCount  uint32
	StorageImageCount  uint32
	StorageBufferCount uint32
}

/**
 * @brief A single update-after-bind descriptor set holding one partially
 * bound array per descriptor kind, plus the layout and pool it came from.
 */
type BindlessDescriptorSet struct {
	Layout vk.DescriptorSetLayout
	Pool   vk.DescriptorPool
	Set    vk.DescriptorSet

	device *Device
}

type bindlessBinding struct {
	binding uint32
	kind    vk.DescriptorType
	count   uint32
}

func (c BindlessDescriptorSetConfig) bindings() []bindlessBinding {
	return []bindlessBinding{
		{BINDLESS_SAMPLER_BINDING, vk.DescriptorTypeSampler, c.SamplerCount},
		{BINDLESS_SAMPLED_IMAGE_BINDING, vk.DescriptorTypeSampledImage, c.SampledImageCount},
		{BINDLESS_STORAGE_IMAGE_BINDING, vk.DescriptorTypeStorageImage, c.StorageImageCount},
		{BINDLESS_STORAGE_BUFFER_BINDING, vk.DescriptorTypeStorageBuffer, c.StorageBufferCount},
	}
}

func NewBindlessDescriptorSet(device *Device, config BindlessDescriptorSetConfig) (*BindlessDescriptorSet, error) {
	bindings := config.bindings()
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	bindingFlags := make([]vk.DescriptorBindingFlags, len(bindings))
	poolSizes := make([]vk.DescriptorPoolSize, len(bindings))
	for i, b := range bindings {
		if b.count == 0 {
			return nil, fmt.Errorf("bindless binding %d has no descriptors", b.binding)
		}
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.binding,
			DescriptorType:  b.kind,
			DescriptorCount: b.count,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		}
		bindingFlags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit | vk.DescriptorBindingUpdateAfterBindBit)
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            b.kind,
			DescriptorCount: b.count,
		}
	}

	flagsCreateInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  uint32(len(bindingFlags)),
		PBindingFlags: bindingFlags,
	}
	flagsRef, _ := flagsCreateInfo.PassRef()
	defer flagsCreateInfo.Free()
	layoutCreateInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		PNext:        unsafe.Pointer(flagsRef),
		Flags:        vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit),
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	poolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit),
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	set := &BindlessDescriptorSet{device: device}
	err := device.Locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.CreateDescriptorSetLayout(device.Logical, &layoutCreateInfo, device.Allocator, &set.Layout); res != vk.Success {
			return resultError("vkCreateDescriptorSetLayout", res)
		}
		if res := vk.CreateDescriptorPool(device.Logical, &poolCreateInfo, device.Allocator, &set.Pool); res != vk.Success {
			vk.DestroyDescriptorSetLayout(device.Logical, set.Layout, device.Allocator)
			return resultError("vkCreateDescriptorPool", res)
		}
		allocateInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     set.Pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{set.Layout},
		}
		sets := make([]vk.DescriptorSet, 1)
		if res := vk.AllocateDescriptorSets(device.Logical, &allocateInfo, &sets[0]); res != vk.Success {
			vk.DestroyDescriptorPool(device.Logical, set.Pool, device.Allocator)
			vk.DestroyDescriptorSetLayout(device.Logical, set.Layout, device.Allocator)
			return resultError("vkAllocateDescriptorSets", res)
		}
		set.Set = sets[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	device.logger.Infof("Bindless descriptor set created (%d samplers, %d sampled images, %d storage images, %d storage buffers)",
		config.SamplerCount, config.SampledImageCount, config.StorageImageCount, config.StorageBufferCount)
	return set, nil
}

// Writer returns a DescriptorWriter targeting this set.
func (s *BindlessDescriptorSet) Writer() *DescriptorWriter {
	return NewDescriptorWriter(s.device, s.Set, DefaultBindings())
}

func (s *BindlessDescriptorSet) Destroy() {
	s.device.Locks.SafeCall(DescriptorManagement, func() error {
		// freeing the pool frees the set
		vk.DestroyDescriptorPool(s.device.Logical, s.Pool, s.device.Allocator)
		vk.DestroyDescriptorSetLayout(s.device.Logical, s.Layout, s.device.Allocator)
		return nil
	})
}

// BindlessConfigFor sizes a set for the given per-kind table capacities.
func BindlessConfigFor(capacities map[metadata.DescriptorType]int) BindlessDescriptorSetConfig {
	return BindlessDescriptorSetConfig{
		SamplerCount:       uint32(capacities[metadata.DescriptorTypeSampler]),
		SampledImageCount:  uint32(capacities[metadata.DescriptorTypeSampledImage]),
		StorageImageCount:  uint32(capacities[metadata.DescriptorTypeStorageImage]),
		StorageBufferCount: uint32(capacities[metadata.DescriptorTypeStorageBuffer]),
	}
}
