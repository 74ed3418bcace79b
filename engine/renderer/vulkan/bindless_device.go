package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/charmbracelet/log"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
)

var ErrAccelerationStructuresUnsupported = errors.New("acceleration structures need VK_KHR_acceleration_structure")

type BindlessDeviceConfig struct {
	Name     string
	Device   *Device
	Bindless BindlessDescriptorSetConfig
	Logger   *log.Logger
}

// BindlessDevice creates table resources on a Vulkan device and writes their
// descriptors into one bindless descriptor set. Handles are the raw Vulkan
// handles.
type BindlessDevice struct {
	name   string
	device *Device
	set    *BindlessDescriptorSet
	writer *DescriptorWriter
	logger *log.Logger
}

func NewBindlessDevice(config BindlessDeviceConfig) (*BindlessDevice, error) {
	if config.Device == nil {
		return nil, fmt.Errorf("bindless device: %w", core.ErrNilResource)
	}
	if config.Name == "" {
		config.Name = "VulkanDevice"
	}
	if config.Logger == nil {
		config.Logger = core.SubsystemLogger("vulkan")
	}
	set, err := NewBindlessDescriptorSet(config.Device, config.Bindless)
	if err != nil {
		return nil, err
	}
	return &BindlessDevice{
		name:   config.Name,
		device: config.Device,
		set:    set,
		writer: set.Writer(),
		logger: config.Logger,
	}, nil
}

func (d *BindlessDevice) Name() string {
	return d.name
}

// DescriptorSet is the set shaders bind the table through.
func (d *BindlessDevice) DescriptorSet() *BindlessDescriptorSet {
	return d.set
}

func (d *BindlessDevice) CreateBuffer(info metadata.BufferCreateInfo) (*resources.Buffer, error) {
	if info.Size == 0 {
		return nil, fmt.Errorf("failed to create buffer %q: size is 0", info.Name)
	}
	info.Name = defaultName("Buffer", info.Name)
	logical, allocator := d.device.Logical, d.device.Allocator

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       bufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if res := vk.CreateBuffer(logical, &createInfo, allocator, &buffer); res != vk.Success {
		return nil, fmt.Errorf("buffer %s: %w", info.Name, resultError("vkCreateBuffer", res))
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(logical, buffer, &requirements)
	requirements.Deref()
	memory, err := d.allocate(requirements, memoryPropertyFlags(info.Location), true)
	if err != nil {
		vk.DestroyBuffer(logical, buffer, allocator)
		return nil, fmt.Errorf("buffer %s: %w", info.Name, err)
	}
	if res := vk.BindBufferMemory(logical, buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(logical, memory, allocator)
		vk.DestroyBuffer(logical, buffer, allocator)
		return nil, fmt.Errorf("buffer %s: %w", info.Name, resultError("vkBindBufferMemory", res))
	}

	var mapped []byte
	if info.Location == metadata.MemoryLocationHost {
		var data unsafe.Pointer
		if res := vk.MapMemory(logical, memory, 0, vk.DeviceSize(info.Size), 0, &data); res != vk.Success {
			vk.FreeMemory(logical, memory, allocator)
			vk.DestroyBuffer(logical, buffer, allocator)
			return nil, fmt.Errorf("buffer %s: %w", info.Name, resultError("vkMapMemory", res))
		}
		// host coherent, writes need no flush
		mapped = unsafe.Slice((*byte)(data), info.Size)
	}

	address := d.device.procs.bufferDeviceAddress(buffer)
	d.logger.Debugf("Created buffer %s (%d bytes) at 0x%x", info.Name, info.Size, address)
	return resources.NewBuffer(resources.BufferDesc{
		Info:    info,
		Handle:  handleOf(unsafe.Pointer(buffer)),
		Address: address,
		Mapped:  mapped,
		OnDestroy: func(*resources.Buffer) {
			if mapped != nil {
				vk.UnmapMemory(logical, memory)
			}
			vk.DestroyBuffer(logical, buffer, allocator)
			vk.FreeMemory(logical, memory, allocator)
		},
	}), nil
}

func (d *BindlessDevice) CreateImage(info metadata.ImageCreateInfo) (*resources.Image, error) {
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("failed to create image %q: extent %dx%d", info.Name, info.Width, info.Height)
	}
	format, err := imageFormat(info.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create image %q: %w", info.Name, err)
	}
	info.Name = defaultName("Image", info.Name)
	logical, allocator := d.device.Logical, d.device.Allocator

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     max(info.Levels, 1),
		ArrayLayers:   max(info.Layers, 1),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if res := vk.CreateImage(logical, &createInfo, allocator, &image); res != vk.Success {
		return nil, fmt.Errorf("image %s: %w", info.Name, resultError("vkCreateImage", res))
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(logical, image, &requirements)
	requirements.Deref()
	memory, err := d.allocate(requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), false)
	if err != nil {
		vk.DestroyImage(logical, image, allocator)
		return nil, fmt.Errorf("image %s: %w", info.Name, err)
	}
	if res := vk.BindImageMemory(logical, image, memory, 0); res != vk.Success {
		vk.FreeMemory(logical, memory, allocator)
		vk.DestroyImage(logical, image, allocator)
		return nil, fmt.Errorf("image %s: %w", info.Name, resultError("vkBindImageMemory", res))
	}

	return resources.NewImage(resources.ImageDesc{
		Info:   info,
		Handle: handleOf(unsafe.Pointer(image)),
		OnDestroy: func(*resources.Image) {
			vk.DestroyImage(logical, image, allocator)
			vk.FreeMemory(logical, memory, allocator)
		},
	}), nil
}

func (d *BindlessDevice) CreateImageView(image core.Arc[*resources.Image], info metadata.ImageViewCreateInfo) (*resources.ImageView, error) {
	if image.IsNil() {
		return nil, fmt.Errorf("failed to create image view %q: %w", info.Name, core.ErrNilResource)
	}
	img := image.Get()
	levels, layers, err := viewRange(img, info)
	if err != nil {
		return nil, err
	}
	format, err := imageFormat(img.Format())
	if err != nil {
		return nil, fmt.Errorf("failed to create image view %q: %w", info.Name, err)
	}
	info.Name = defaultName(img.Name()+"-View", info.Name)
	info.LevelCount, info.LayerCount = levels, layers

	viewType := vk.ImageViewType2d
	if layers > 1 {
		viewType = vk.ImageViewType2dArray
	}
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    vk.Image(handlePointer(img.Handle())),
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     imageAspect(img.Format()),
			BaseMipLevel:   info.BaseLevel,
			LevelCount:     levels,
			BaseArrayLayer: info.BaseLayer,
			LayerCount:     layers,
		},
	}
	logical, allocator := d.device.Logical, d.device.Allocator
	var view vk.ImageView
	if res := vk.CreateImageView(logical, &createInfo, allocator, &view); res != vk.Success {
		return nil, fmt.Errorf("image view %s: %w", info.Name, resultError("vkCreateImageView", res))
	}

	return resources.NewImageView(image, resources.ImageViewDesc{
		Info:   info,
		Handle: handleOf(unsafe.Pointer(view)),
		OnDestroy: func(*resources.ImageView) {
			vk.DestroyImageView(logical, view, allocator)
		},
	}), nil
}

func (d *BindlessDevice) CreateSampler(info metadata.SamplerCreateInfo) (*resources.Sampler, error) {
	info.Name = defaultName("Sampler", info.Name)
	createInfo := samplerCreateInfo(info)

	logical, allocator := d.device.Logical, d.device.Allocator
	var sampler vk.Sampler
	if res := vk.CreateSampler(logical, &createInfo, allocator, &sampler); res != vk.Success {
		return nil, fmt.Errorf("sampler %s: %w", info.Name, resultError("vkCreateSampler", res))
	}
	return resources.NewSampler(resources.SamplerDesc{
		Info:   info,
		Handle: handleOf(unsafe.Pointer(sampler)),
		OnDestroy: func(*resources.Sampler) {
			vk.DestroySampler(logical, sampler, allocator)
		},
	}), nil
}

func (d *BindlessDevice) CreateAccelerationStructure(info metadata.AccelerationStructureCreateInfo) (*resources.AccelerationStructure, error) {
	return nil, fmt.Errorf("acceleration structure %q: %w", info.Name, ErrAccelerationStructuresUnsupported)
}

func (d *BindlessDevice) WriteDescriptors(writes []metadata.DescriptorWrite) error {
	return d.writer.WriteDescriptors(writes)
}

func (d *BindlessDevice) WaitIdle() error {
	return d.device.WaitIdle()
}

// Destroy releases the descriptor set. Resources created by the device must be
// destroyed first.
func (d *BindlessDevice) Destroy() {
	d.set.Destroy()
	d.logger.Infof("Bindless device (%s) destroyed", d.name)
}

func (d *BindlessDevice) allocate(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlags, deviceAddress bool) (vk.DeviceMemory, error) {
	index := d.device.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if index < 0 {
		return nil, errors.New("no memory type matches the requirements")
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	if deviceAddress {
		flagsInfo := vk.MemoryAllocateFlagsInfo{
			SType: vk.StructureTypeMemoryAllocateFlagsInfo,
			Flags: vk.MemoryAllocateFlags(vk.MemoryAllocateDeviceAddressBit),
		}
		flagsRef, _ := flagsInfo.PassRef()
		defer flagsInfo.Free()
		allocateInfo.PNext = unsafe.Pointer(flagsRef)
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.device.Logical, &allocateInfo, d.device.Allocator, &memory); res != vk.Success {
		return nil, resultError("vkAllocateMemory", res)
	}
	return memory, nil
}

// viewRange resolves zero counts to the remaining levels and layers of img.
func viewRange(img *resources.Image, info metadata.ImageViewCreateInfo) (levels, layers uint32, err error) {
	if info.BaseLevel >= img.Levels() || info.BaseLayer >= img.Layers() {
		return 0, 0, fmt.Errorf("failed to create image view %q: range outside of image %s", info.Name, img.Name())
	}
	levels, layers = info.LevelCount, info.LayerCount
	if levels == 0 {
		levels = img.Levels() - info.BaseLevel
	}
	if layers == 0 {
		layers = img.Layers() - info.BaseLayer
	}
	if info.BaseLevel+levels > img.Levels() || info.BaseLayer+layers > img.Layers() {
		return 0, 0, fmt.Errorf("failed to create image view %q: range outside of image %s", info.Name, img.Name())
	}
	return levels, layers, nil
}

// handleOf stores a non-dispatchable handle as the uint64 the resource layer
// keys on.
func handleOf(handle unsafe.Pointer) uint64 {
	return uint64(uintptr(handle))
}

func defaultName(prefix, name string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
