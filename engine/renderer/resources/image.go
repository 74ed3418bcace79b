package resources

import (
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

type Image struct {
	core.RefCount

	name   string
	handle uint64
	width  uint32
	height uint32
	layers uint32
	levels uint32
	format metadata.ImageFormat
	usage  metadata.ImageUsage
	layout metadata.ImageLayout

	onDestroy func(*Image)
}

type ImageDesc struct {
	Info      metadata.ImageCreateInfo
	Handle    uint64
	OnDestroy func(*Image)
}

func NewImage(desc ImageDesc) *Image {
	info := desc.Info
	return &Image{
		name:      info.Name,
		handle:    desc.Handle,
		width:     info.Width,
		height:    info.Height,
		layers:    max(info.Layers, 1),
		levels:    max(info.Levels, 1),
		format:    info.Format,
		usage:     info.Usage,
		layout:    info.Layout,
		onDestroy: desc.OnDestroy,
	}
}

func (i *Image) Name() string                 { return i.name }
func (i *Image) Handle() uint64               { return i.handle }
func (i *Image) Width() uint32                { return i.width }
func (i *Image) Height() uint32               { return i.height }
func (i *Image) Layers() uint32               { return i.layers }
func (i *Image) Levels() uint32               { return i.levels }
func (i *Image) Format() metadata.ImageFormat { return i.format }
func (i *Image) Usage() metadata.ImageUsage   { return i.usage }
func (i *Image) Layout() metadata.ImageLayout { return i.layout }

func (i *Image) Destroy() {
	if i.onDestroy != nil {
		i.onDestroy(i)
	}
}

// ImageView is a subresource range of an Image. The view keeps its image alive.
type ImageView struct {
	core.RefCount

	name       string
	handle     uint64
	image      core.Arc[*Image]
	baseLevel  uint32
	levelCount uint32
	baseLayer  uint32
	layerCount uint32
	layout     metadata.ImageLayout

	onDestroy func(*ImageView)
}

type ImageViewDesc struct {
	Info      metadata.ImageViewCreateInfo
	Handle    uint64
	OnDestroy func(*ImageView)
}

// NewImageView shares image with the returned view.
func NewImageView(image core.Arc[*Image], desc ImageViewDesc) *ImageView {
	info := desc.Info
	img := image.Get()

	levels := info.LevelCount
	if levels == 0 {
		levels = img.Levels() - min(info.BaseLevel, img.Levels())
	}
	layers := info.LayerCount
	if layers == 0 {
		layers = img.Layers() - min(info.BaseLayer, img.Layers())
	}
	layout := info.Layout
	if layout == metadata.ImageLayoutUndefined {
		layout = img.Layout()
	}

	return &ImageView{
		name:       info.Name,
		handle:     desc.Handle,
		image:      image.Clone(),
		baseLevel:  info.BaseLevel,
		levelCount: levels,
		baseLayer:  info.BaseLayer,
		layerCount: layers,
		layout:     layout,
		onDestroy:  desc.OnDestroy,
	}
}

func (v *ImageView) Name() string   { return v.name }
func (v *ImageView) Handle() uint64 { return v.handle }
func (v *ImageView) Image() *Image  { return v.image.Get() }

func (v *ImageView) Levels() (base, count uint32) {
	return v.baseLevel, v.levelCount
}

func (v *ImageView) Layers() (base, count uint32) {
	return v.baseLayer, v.layerCount
}

func (v *ImageView) Descriptor() metadata.ImageDescriptor {
	return metadata.ImageDescriptor{View: v.handle, Layout: v.layout}
}

func (v *ImageView) Destroy() {
	if v.onDestroy != nil {
		v.onDestroy(v)
	}
	v.image.Reset()
}

type Sampler struct {
	core.RefCount

	name   string
	handle uint64
	info   metadata.SamplerCreateInfo

	onDestroy func(*Sampler)
}

type SamplerDesc struct {
	Info      metadata.SamplerCreateInfo
	Handle    uint64
	OnDestroy func(*Sampler)
}

func NewSampler(desc SamplerDesc) *Sampler {
	return &Sampler{
		name:      desc.Info.Name,
		handle:    desc.Handle,
		info:      desc.Info,
		onDestroy: desc.OnDestroy,
	}
}

func (s *Sampler) Name() string                     { return s.name }
func (s *Sampler) Handle() uint64                   { return s.handle }
func (s *Sampler) Info() metadata.SamplerCreateInfo { return s.info }

func (s *Sampler) Descriptor() metadata.ImageDescriptor {
	return metadata.ImageDescriptor{Sampler: s.handle}
}

func (s *Sampler) Destroy() {
	if s.onDestroy != nil {
		s.onDestroy(s)
	}
}

// AccelerationStructure is a top level acceleration structure.
type AccelerationStructure struct {
	core.RefCount

	name          string
	handle        uint64
	address       uint64
	instanceCount uint32

	onDestroy func(*AccelerationStructure)
}

type AccelerationStructureDesc struct {
	Info      metadata.AccelerationStructureCreateInfo
	Handle    uint64
	Address   uint64
	OnDestroy func(*AccelerationStructure)
}

func NewAccelerationStructure(desc AccelerationStructureDesc) *AccelerationStructure {
	return &AccelerationStructure{
		name:          desc.Info.Name,
		handle:        desc.Handle,
		address:       desc.Address,
		instanceCount: desc.Info.InstanceCount,
		onDestroy:     desc.OnDestroy,
	}
}

func (as *AccelerationStructure) Name() string          { return as.name }
func (as *AccelerationStructure) Handle() uint64        { return as.handle }
func (as *AccelerationStructure) DeviceAddress() uint64 { return as.address }
func (as *AccelerationStructure) InstanceCount() uint32 { return as.instanceCount }

func (as *AccelerationStructure) Descriptor() metadata.AccelerationStructureDescriptor {
	return metadata.AccelerationStructureDescriptor{Handle: as.handle}
}

func (as *AccelerationStructure) Destroy() {
	if as.onDestroy != nil {
		as.onDestroy(as)
	}
}
