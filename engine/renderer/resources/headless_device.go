package resources

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

const defaultAddressAlignment uint64 = 256

type HeadlessDeviceConfig struct {
	Name string
	// AddressAlignment of buffer device addresses. Must be a power of two.
	AddressAlignment uint64
	Logger           *log.Logger
}

// HeadlessDevice runs the resource layer without a GPU. Every buffer is backed
// by host memory and device addresses are handed out by a bump allocator.
// Descriptor writes are recorded for inspection.
type HeadlessDevice struct {
	name      string
	alignment uint64
	logger    *log.Logger

	nextHandle atomic.Uint64

	mutex       sync.Mutex
	nextAddress uint64
	live        map[uint64]string
	writes      []metadata.DescriptorWrite
}

func NewHeadlessDevice(config HeadlessDeviceConfig) *HeadlessDevice {
	if config.Name == "" {
		config.Name = "HeadlessDevice"
	}
	if config.AddressAlignment == 0 {
		config.AddressAlignment = defaultAddressAlignment
	}
	if config.Logger == nil {
		config.Logger = core.SubsystemLogger("device")
	}
	d := &HeadlessDevice{
		name:        config.Name,
		alignment:   config.AddressAlignment,
		logger:      config.Logger,
		nextAddress: config.AddressAlignment,
		live:        make(map[uint64]string),
	}
	d.logger.Infof("Headless device (%s) created", d.name)
	return d
}

func (d *HeadlessDevice) Name() string {
	return d.name
}

func (d *HeadlessDevice) CreateBuffer(info metadata.BufferCreateInfo) (*Buffer, error) {
	if info.Size == 0 {
		return nil, fmt.Errorf("failed to create buffer %q: size is 0", info.Name)
	}
	info.Name = defaultName("Buffer", info.Name)

	d.mutex.Lock()
	address := d.nextAddress
	d.nextAddress = metadata.GetAligned(address+info.Size, d.alignment)
	d.mutex.Unlock()

	handle := d.track(info.Name)
	d.logger.Debugf("Created buffer %s (%d bytes) at 0x%x", info.Name, info.Size, address)
	return NewBuffer(BufferDesc{
		Info:    info,
		Handle:  handle,
		Address: address,
		Mapped:  make([]byte, info.Size),
		OnDestroy: func(b *Buffer) {
			d.untrack(b.Handle())
		},
	}), nil
}

func (d *HeadlessDevice) CreateImage(info metadata.ImageCreateInfo) (*Image, error) {
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("failed to create image %q: extent %dx%d", info.Name, info.Width, info.Height)
	}
	info.Name = defaultName("Image", info.Name)
	return NewImage(ImageDesc{
		Info:   info,
		Handle: d.track(info.Name),
		OnDestroy: func(i *Image) {
			d.untrack(i.Handle())
		},
	}), nil
}

func (d *HeadlessDevice) CreateImageView(image core.Arc[*Image], info metadata.ImageViewCreateInfo) (*ImageView, error) {
	if image.IsNil() {
		return nil, fmt.Errorf("failed to create image view %q: %w", info.Name, core.ErrNilResource)
	}
	img := image.Get()
	if info.BaseLevel >= img.Levels() || info.BaseLayer >= img.Layers() {
		return nil, fmt.Errorf("failed to create image view %q: range outside of image %s", info.Name, img.Name())
	}
	info.Name = defaultName(img.Name()+"-View", info.Name)
	return NewImageView(image, ImageViewDesc{
		Info:   info,
		Handle: d.track(info.Name),
		OnDestroy: func(v *ImageView) {
			d.untrack(v.Handle())
		},
	}), nil
}

func (d *HeadlessDevice) CreateSampler(info metadata.SamplerCreateInfo) (*Sampler, error) {
	info.Name = defaultName("Sampler", info.Name)
	return NewSampler(SamplerDesc{
		Info:   info,
		Handle: d.track(info.Name),
		OnDestroy: func(s *Sampler) {
			d.untrack(s.Handle())
		},
	}), nil
}

func (d *HeadlessDevice) CreateAccelerationStructure(info metadata.AccelerationStructureCreateInfo) (*AccelerationStructure, error) {
	info.Name = defaultName("AccelerationStructure", info.Name)

	d.mutex.Lock()
	address := d.nextAddress
	d.nextAddress = metadata.GetAligned(address+1, d.alignment)
	d.mutex.Unlock()

	return NewAccelerationStructure(AccelerationStructureDesc{
		Info:    info,
		Handle:  d.track(info.Name),
		Address: address,
		OnDestroy: func(as *AccelerationStructure) {
			d.untrack(as.Handle())
		},
	}), nil
}

// WriteDescriptors records writes.
func (d *HeadlessDevice) WriteDescriptors(writes []metadata.DescriptorWrite) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.writes = append(d.writes, writes...)
	return nil
}

// Writes returns and forgets every descriptor write recorded so far.
func (d *HeadlessDevice) Writes() []metadata.DescriptorWrite {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := d.writes
	d.writes = nil
	return out
}

func (d *HeadlessDevice) WaitIdle() error {
	return nil
}

// Live returns the number of objects created and not yet destroyed.
func (d *HeadlessDevice) Live() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.live)
}

// Destroy reports objects that were never destroyed.
func (d *HeadlessDevice) Destroy() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for handle, name := range d.live {
		d.logger.Warnf("Object %s (handle %d) still alive at device destruction", name, handle)
	}
	d.logger.Infof("Headless device (%s) destroyed", d.name)
}

func (d *HeadlessDevice) track(name string) uint64 {
	handle := d.nextHandle.Add(1)
	d.mutex.Lock()
	d.live[handle] = name
	d.mutex.Unlock()
	return handle
}

func (d *HeadlessDevice) untrack(handle uint64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.live[handle]; !ok {
		d.logger.Errorf("Destroying unknown or already destroyed handle %d", handle)
		return
	}
	delete(d.live, handle)
}

func defaultName(prefix, name string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
