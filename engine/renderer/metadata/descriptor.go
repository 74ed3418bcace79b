package metadata

import "fmt"

/** @brief The kinds of descriptors held by the bindless resource table. */
type DescriptorType int

const (
	/** @brief A standalone sampler. */
	DescriptorTypeSampler DescriptorType = iota
	/** @brief An image read through a sampler. */
	DescriptorTypeSampledImage
	/** @brief An image read and written with loads/stores. */
	DescriptorTypeStorageImage
	/** @brief A buffer read and written with loads/stores. */
	DescriptorTypeStorageBuffer
	/** @brief A top level acceleration structure. */
	DescriptorTypeAccelerationStructure
)

// DescriptorTypes lists every kind in binding order.
var DescriptorTypes = []DescriptorType{
	DescriptorTypeSampler,
	DescriptorTypeSampledImage,
	DescriptorTypeStorageImage,
	DescriptorTypeStorageBuffer,
	DescriptorTypeAccelerationStructure,
}

func (dt DescriptorType) String() string {
	switch dt {
	case DescriptorTypeSampler:
		return "sampler"
	case DescriptorTypeSampledImage:
		return "sampled_image"
	case DescriptorTypeStorageImage:
		return "storage_image"
	case DescriptorTypeStorageBuffer:
		return "storage_buffer"
	case DescriptorTypeAccelerationStructure:
		return "acceleration_structure"
	default:
		return fmt.Sprintf("descriptor_type(%d)", int(dt))
	}
}

/** @brief The layout an image is expected to be in when a shader accesses it. */
type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutShaderReadOnly
)

/**
 * @brief Plain descriptor record for an image or sampler slot. Handles are the
 * backend's native object handles.
 */
type ImageDescriptor struct {
	/** @brief The sampler handle, 0 for image descriptors. */
	Sampler uint64
	/** @brief The image view handle, 0 for sampler descriptors. */
	View uint64
	/** @brief The layout the image is in when accessed. */
	Layout ImageLayout
}

/** @brief Plain descriptor record for a storage buffer slot. */
type BufferDescriptor struct {
	Handle uint64
	Offset uint64
	Size   uint64
}

/** @brief Plain descriptor record for an acceleration structure slot. */
type AccelerationStructureDescriptor struct {
	Handle uint64
}

// Descriptor is any of the descriptor records above.
type Descriptor interface {
	ImageDescriptor | BufferDescriptor | AccelerationStructureDescriptor
}

// DescriptorWrite updates Descriptors consecutive array elements of the
// binding for Type, starting at Slot. Exactly one of the slices is set.
type DescriptorWrite struct {
	Slot uint32
	Type DescriptorType

	Images                 []ImageDescriptor
	Buffers                []BufferDescriptor
	AccelerationStructures []AccelerationStructureDescriptor
}

// Count returns the number of descriptors carried by the write.
func (dw DescriptorWrite) Count() int {
	switch dw.Type {
	case DescriptorTypeSampler, DescriptorTypeSampledImage, DescriptorTypeStorageImage:
		return len(dw.Images)
	case DescriptorTypeStorageBuffer:
		return len(dw.Buffers)
	case DescriptorTypeAccelerationStructure:
		return len(dw.AccelerationStructures)
	}
	return 0
}
