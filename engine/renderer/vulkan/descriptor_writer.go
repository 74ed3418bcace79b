package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

// DescriptorWriter writes bindless table updates into one descriptor set with
// one binding per descriptor type.
type DescriptorWriter struct {
	device   *Device
	set      vk.DescriptorSet
	bindings map[metadata.DescriptorType]uint32
}

// DefaultBindings is the binding layout of the main bindless set.
func DefaultBindings() map[metadata.DescriptorType]uint32 {
	return map[metadata.DescriptorType]uint32{
		metadata.DescriptorTypeSampler:       BINDLESS_SAMPLER_BINDING,
		metadata.DescriptorTypeSampledImage:  BINDLESS_SAMPLED_IMAGE_BINDING,
		metadata.DescriptorTypeStorageImage:  BINDLESS_STORAGE_IMAGE_BINDING,
		metadata.DescriptorTypeStorageBuffer: BINDLESS_STORAGE_BUFFER_BINDING,
	}
}

func NewDescriptorWriter(device *Device, set vk.DescriptorSet, bindings map[metadata.DescriptorType]uint32) *DescriptorWriter {
	if bindings == nil {
		bindings = DefaultBindings()
	}
	return &DescriptorWriter{device: device, set: set, bindings: bindings}
}

func (dw *DescriptorWriter) WriteDescriptors(writes []metadata.DescriptorWrite) error {
	sets := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		binding, ok := dw.bindings[w.Type]
		if !ok {
			return fmt.Errorf("no binding for %s descriptors in the bindless set", w.Type)
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          dw.set,
			DstBinding:      binding,
			DstArrayElement: w.Slot,
			DescriptorCount: uint32(w.Count()),
		}
		switch w.Type {
		case metadata.DescriptorTypeSampler:
			write.DescriptorType = vk.DescriptorTypeSampler
			write.PImageInfo = imageInfos(w.Images)
		case metadata.DescriptorTypeSampledImage:
			write.DescriptorType = vk.DescriptorTypeSampledImage
			write.PImageInfo = imageInfos(w.Images)
		case metadata.DescriptorTypeStorageImage:
			write.DescriptorType = vk.DescriptorTypeStorageImage
			write.PImageInfo = imageInfos(w.Images)
		case metadata.DescriptorTypeStorageBuffer:
			write.DescriptorType = vk.DescriptorTypeStorageBuffer
			write.PBufferInfo = bufferInfos(w.Buffers)
		default:
			// acceleration structure writes need VK_KHR_acceleration_structure
			return fmt.Errorf("%s descriptors are not supported by the vulkan writer", w.Type)
		}
		sets = append(sets, write)
	}
	if len(sets) == 0 {
		return nil
	}
	return dw.device.Locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(dw.device.Logical, uint32(len(sets)), sets, 0, nil)
		return nil
	})
}

func imageInfos(descriptors []metadata.ImageDescriptor) []vk.DescriptorImageInfo {
	infos := make([]vk.DescriptorImageInfo, len(descriptors))
	for i, d := range descriptors {
		infos[i] = vk.DescriptorImageInfo{
			Sampler:     vk.Sampler(handlePointer(d.Sampler)),
			ImageView:   vk.ImageView(handlePointer(d.View)),
			ImageLayout: imageLayout(d.Layout),
		}
	}
	return infos
}

func bufferInfos(descriptors []metadata.BufferDescriptor) []vk.DescriptorBufferInfo {
	infos := make([]vk.DescriptorBufferInfo, len(descriptors))
	for i, d := range descriptors {
		infos[i] = vk.DescriptorBufferInfo{
			Buffer: vk.Buffer(handlePointer(d.Handle)),
			Offset: vk.DeviceSize(d.Offset),
			Range:  vk.DeviceSize(d.Size),
		}
	}
	return infos
}

func imageLayout(layout metadata.ImageLayout) vk.ImageLayout {
	switch layout {
	case metadata.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case metadata.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	default:
		return vk.ImageLayoutUndefined
	}
}

// handlePointer turns a non-dispatchable handle stored as uint64 back into the
// pointer representation used by the bindings on 64-bit platforms.
func handlePointer(handle uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(handle))
}
