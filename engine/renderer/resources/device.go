package resources

import (
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

// DescriptorWriter flushes batched descriptor writes to the bindless
// descriptor set.
type DescriptorWriter interface {
	WriteDescriptors(writes []metadata.DescriptorWrite) error
}

// Device creates the resources the shader resource table hands out.
type Device interface {
	DescriptorWriter

	Name() string
	CreateBuffer(info metadata.BufferCreateInfo) (*Buffer, error)
	CreateImage(info metadata.ImageCreateInfo) (*Image, error)
	CreateImageView(image core.Arc[*Image], info metadata.ImageViewCreateInfo) (*ImageView, error)
	CreateSampler(info metadata.SamplerCreateInfo) (*Sampler, error)
	CreateAccelerationStructure(info metadata.AccelerationStructureCreateInfo) (*AccelerationStructure, error)
	// WaitIdle returns once the device finished all submitted work.
	WaitIdle() error
}
