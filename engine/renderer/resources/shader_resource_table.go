package resources

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSamplerCapacity               = 1024
	DefaultSampledImageCapacity          = 262144
	DefaultStorageImageCapacity          = 262144
	DefaultStorageBufferCapacity         = 1048576
	DefaultAccelerationStructureCapacity = 1024

	// addressStride is the size of one entry of the buffer address table.
	addressStride = 8
)

var errInvalidShaderResource = errors.New("invalid shader resource")

type ShaderResourceTableConfig struct {
	Name   string
	Device Device

	SamplerCapacity               int
	SampledImageCapacity          int
	StorageImageCapacity          int
	StorageBufferCapacity         int
	AccelerationStructureCapacity int

	Logger *log.Logger
}

func (c *ShaderResourceTableConfig) defaults() {
	if c.Name == "" {
		c.Name = "MainShaderResourceTable"
	}
	if c.SamplerCapacity == 0 {
		c.SamplerCapacity = DefaultSamplerCapacity
	}
	if c.SampledImageCapacity == 0 {
		c.SampledImageCapacity = DefaultSampledImageCapacity
	}
	if c.StorageImageCapacity == 0 {
		c.StorageImageCapacity = DefaultStorageImageCapacity
	}
	if c.StorageBufferCapacity == 0 {
		c.StorageBufferCapacity = DefaultStorageBufferCapacity
	}
	if c.AccelerationStructureCapacity == 0 {
		c.AccelerationStructureCapacity = DefaultAccelerationStructureCapacity
	}
	if c.Logger == nil {
		c.Logger = core.SubsystemLogger("resources")
	}
}

// ShaderResourceTable allocates bindless descriptor slots for every resource
// kind and batches the descriptor writes of new slots until Update.
//
// The table is not safe for concurrent use. The resources it hands out are.
type ShaderResourceTable struct {
	core.RefCount

	id     uuid.UUID
	name   string
	device Device
	logger *log.Logger

	samplers               *DescriptorTable[*Sampler, metadata.ImageDescriptor]
	sampledImages          *DescriptorTable[*ImageView, metadata.ImageDescriptor]
	storageImages          *DescriptorTable[*ImageView, metadata.ImageDescriptor]
	storageBuffers         *DescriptorTable[*Buffer, metadata.BufferDescriptor]
	accelerationStructures *DescriptorTable[*AccelerationStructure, metadata.AccelerationStructureDescriptor]

	// addressTable holds the device address of the storage buffer at each slot.
	addressTable core.Arc[*Buffer]
}

func NewShaderResourceTable(config ShaderResourceTableConfig) (core.Arc[*ShaderResourceTable], error) {
	if config.Device == nil {
		return core.Arc[*ShaderResourceTable]{}, fmt.Errorf("shader resource table requires a device")
	}
	config.defaults()

	t := &ShaderResourceTable{
		id:     uuid.New(),
		name:   config.Name,
		device: config.Device,
		logger: config.Logger,
	}

	var err error
	if t.samplers, err = NewDescriptorTable(metadata.DescriptorTypeSampler, config.SamplerCapacity, (*Sampler).Descriptor); err != nil {
		return core.Arc[*ShaderResourceTable]{}, err
	}
	if t.sampledImages, err = NewDescriptorTable(metadata.DescriptorTypeSampledImage, config.SampledImageCapacity, (*ImageView).Descriptor); err != nil {
		return core.Arc[*ShaderResourceTable]{}, err
	}
	if t.storageImages, err = NewDescriptorTable(metadata.DescriptorTypeStorageImage, config.StorageImageCapacity, (*ImageView).Descriptor); err != nil {
		return core.Arc[*ShaderResourceTable]{}, err
	}
	if t.storageBuffers, err = NewDescriptorTable(metadata.DescriptorTypeStorageBuffer, config.StorageBufferCapacity, (*Buffer).Descriptor); err != nil {
		return core.Arc[*ShaderResourceTable]{}, err
	}
	if t.accelerationStructures, err = NewDescriptorTable(metadata.DescriptorTypeAccelerationStructure, config.AccelerationStructureCapacity, (*AccelerationStructure).Descriptor); err != nil {
		return core.Arc[*ShaderResourceTable]{}, err
	}

	addresses, err := config.Device.CreateBuffer(metadata.BufferCreateInfo{
		Name:     config.Name + "-AddressTable",
		Size:     uint64(config.StorageBufferCapacity) * addressStride,
		Usage:    metadata.BufferUsageStorage | metadata.BufferUsageShaderDeviceAddress,
		Location: metadata.MemoryLocationHost,
	})
	if err != nil {
		return core.Arc[*ShaderResourceTable]{}, fmt.Errorf("failed to create buffer address table: %w", err)
	}
	t.addressTable = core.NewArc(addresses)

	t.logger.Infof("Shader resource table %s (%s) created", t.name, t.id)
	return core.ToArc(t), nil
}

func (t *ShaderResourceTable) ID() uuid.UUID {
	return t.id
}

func (t *ShaderResourceTable) Name() string {
	return t.name
}

func (t *ShaderResourceTable) Device() Device {
	return t.device
}

// AddressTable is the buffer shaders read storage buffer addresses from,
// indexed by storage buffer slot.
func (t *ShaderResourceTable) AddressTable() *Buffer {
	return t.addressTable.Get()
}

// BufferAddress reads back the address table entry of slot.
func (t *ShaderResourceTable) BufferAddress(slot uint32) (uint64, error) {
	data, err := t.addressTable.Get().Read(uint64(slot)*addressStride, addressStride)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (t *ShaderResourceTable) MakeSampler(info metadata.SamplerCreateInfo) (SamplerResource, error) {
	sampler, err := t.device.CreateSampler(info)
	if err != nil {
		return SamplerResource{}, err
	}
	handle, err := t.samplers.Allocate(core.NewArc(sampler))
	if err != nil {
		return SamplerResource{}, err
	}
	return newShaderResource(t, metadata.DescriptorTypeSampler, sampler, handle), nil
}

// MakeSampledImage creates an image and binds a view of all of it for sampling.
func (t *ShaderResourceTable) MakeSampledImage(info metadata.ImageCreateInfo) (SampledImageResource, error) {
	if info.Layout == metadata.ImageLayoutUndefined {
		info.Layout = metadata.ImageLayoutShaderReadOnly
	}
	info.Usage |= metadata.ImageUsageSampled
	view, err := t.makeView(info)
	if err != nil {
		return SampledImageResource{}, err
	}
	handle, err := t.sampledImages.Allocate(core.NewArc(view))
	if err != nil {
		return SampledImageResource{}, err
	}
	return newShaderResource(t, metadata.DescriptorTypeSampledImage, view, handle), nil
}

// MakeStorageImage creates an image and binds a view of all of it for
// load/store access.
func (t *ShaderResourceTable) MakeStorageImage(info metadata.ImageCreateInfo) (StorageImageResource, error) {
	if info.Layout == metadata.ImageLayoutUndefined {
		info.Layout = metadata.ImageLayoutGeneral
	}
	info.Usage |= metadata.ImageUsageStorage
	view, err := t.makeView(info)
	if err != nil {
		return StorageImageResource{}, err
	}
	handle, err := t.storageImages.Allocate(core.NewArc(view))
	if err != nil {
		return StorageImageResource{}, err
	}
	return newShaderResource(t, metadata.DescriptorTypeStorageImage, view, handle), nil
}

// MakeImageView binds a view of an existing image in the sampled image table.
func (t *ShaderResourceTable) MakeImageView(image core.Arc[*Image], info metadata.ImageViewCreateInfo) (SampledImageResource, error) {
	view, err := t.device.CreateImageView(image, info)
	if err != nil {
		return SampledImageResource{}, err
	}
	handle, err := t.sampledImages.Allocate(core.NewArc(view))
	if err != nil {
		return SampledImageResource{}, err
	}
	return newShaderResource(t, metadata.DescriptorTypeSampledImage, view, handle), nil
}

func (t *ShaderResourceTable) makeView(info metadata.ImageCreateInfo) (*ImageView, error) {
	img, err := t.device.CreateImage(info)
	if err != nil {
		return nil, err
	}
	image := core.NewArc(img)
	// the view takes its own reference
	defer image.Reset()

	return t.device.CreateImageView(image, metadata.ImageViewCreateInfo{Layout: info.Layout})
}

func (t *ShaderResourceTable) MakeAccelerationStructure(info metadata.AccelerationStructureCreateInfo) (AccelerationStructureResource, error) {
	as, err := t.device.CreateAccelerationStructure(info)
	if err != nil {
		return AccelerationStructureResource{}, err
	}
	handle, err := t.accelerationStructures.Allocate(core.NewArc(as))
	if err != nil {
		return AccelerationStructureResource{}, err
	}
	return newShaderResource(t, metadata.DescriptorTypeAccelerationStructure, as, handle), nil
}

// MakeBuffer creates a storage buffer of info.Count elements of T, binds it
// and records its device address in the address table at the same slot.
func MakeBuffer[T any](t *ShaderResourceTable, info metadata.BufferCreateInfo) (ShaderResource[*TypedBuffer[T]], error) {
	stride, err := ElementSize[T]()
	if err != nil {
		return ShaderResource[*TypedBuffer[T]]{}, err
	}
	if info.Count == 0 {
		info.Count = 1
	}
	info.Size = max(info.Size, info.Count*stride)
	info.Usage |= metadata.BufferUsageStorage | metadata.BufferUsageShaderDeviceAddress

	buffer, err := t.device.CreateBuffer(info)
	if err != nil {
		return ShaderResource[*TypedBuffer[T]]{}, err
	}
	arc := core.NewArc(buffer)
	typed, err := NewTypedBuffer[T](buffer, info.Count)
	if err != nil {
		arc.Reset()
		return ShaderResource[*TypedBuffer[T]]{}, err
	}

	handle, err := t.storageBuffers.Allocate(arc.Move())
	if err != nil {
		return ShaderResource[*TypedBuffer[T]]{}, err
	}
	if err := t.writeAddress(handle.Slot, buffer.DeviceAddress()); err != nil {
		_ = t.storageBuffers.Free(handle)
		return ShaderResource[*TypedBuffer[T]]{}, err
	}
	return newShaderResource(t, metadata.DescriptorTypeStorageBuffer, typed, handle), nil
}

// MakeBufferWithData is MakeBuffer sized to data, with data written in.
func MakeBufferWithData[T any](t *ShaderResourceTable, info metadata.BufferCreateInfo, data []T) (ShaderResource[*TypedBuffer[T]], error) {
	info.Count = max(info.Count, uint64(len(data)))
	res, err := MakeBuffer[T](t, info)
	if err != nil {
		return res, err
	}
	if err := res.Resource().Write(0, data...); err != nil {
		_ = res.Destroy()
		return ShaderResource[*TypedBuffer[T]]{}, err
	}
	return res, nil
}

// MakeBuffers creates count buffers from the same create info, typically one
// per frame in flight. Nothing stays allocated on failure.
func MakeBuffers[T any](t *ShaderResourceTable, count int, info metadata.BufferCreateInfo) ([]ShaderResource[*TypedBuffer[T]], error) {
	out := make([]ShaderResource[*TypedBuffer[T]], 0, count)
	base := info.Name
	for i := 0; i < count; i++ {
		if base != "" {
			info.Name = fmt.Sprintf("%s-%d", base, i)
		}
		res, err := MakeBuffer[T](t, info)
		if err != nil {
			for j := range out {
				_ = out[j].Destroy()
			}
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (t *ShaderResourceTable) writeAddress(slot uint32, address uint64) error {
	var entry [addressStride]byte
	binary.LittleEndian.PutUint64(entry[:], address)
	return t.addressTable.Get().Write(uint64(slot)*addressStride, entry[:])
}

// Validate checks that ref was issued by this table and that its slot has not
// been freed since.
func (t *ShaderResourceTable) Validate(ref ResourceRef) error {
	if ref.Table != t.id {
		return fmt.Errorf("table %s: %w", t.name, core.ErrForeignHandle)
	}
	var err error
	switch ref.Kind {
	case metadata.DescriptorTypeSampler:
		_, err = t.samplers.Get(ref.Handle)
	case metadata.DescriptorTypeSampledImage:
		_, err = t.sampledImages.Get(ref.Handle)
	case metadata.DescriptorTypeStorageImage:
		_, err = t.storageImages.Get(ref.Handle)
	case metadata.DescriptorTypeStorageBuffer:
		_, err = t.storageBuffers.Get(ref.Handle)
	case metadata.DescriptorTypeAccelerationStructure:
		_, err = t.accelerationStructures.Get(ref.Handle)
	default:
		err = fmt.Errorf("unknown descriptor type %s", ref.Kind)
	}
	return err
}

func (t *ShaderResourceTable) Sampler(ref ResourceRef) (*Sampler, error) {
	if err := t.checkRef(ref, metadata.DescriptorTypeSampler); err != nil {
		return nil, err
	}
	return t.samplers.Get(ref.Handle)
}

func (t *ShaderResourceTable) SampledImage(ref ResourceRef) (*ImageView, error) {
	if err := t.checkRef(ref, metadata.DescriptorTypeSampledImage); err != nil {
		return nil, err
	}
	return t.sampledImages.Get(ref.Handle)
}

func (t *ShaderResourceTable) StorageImage(ref ResourceRef) (*ImageView, error) {
	if err := t.checkRef(ref, metadata.DescriptorTypeStorageImage); err != nil {
		return nil, err
	}
	return t.storageImages.Get(ref.Handle)
}

func (t *ShaderResourceTable) StorageBuffer(ref ResourceRef) (*Buffer, error) {
	if err := t.checkRef(ref, metadata.DescriptorTypeStorageBuffer); err != nil {
		return nil, err
	}
	return t.storageBuffers.Get(ref.Handle)
}

func (t *ShaderResourceTable) AccelerationStructure(ref ResourceRef) (*AccelerationStructure, error) {
	if err := t.checkRef(ref, metadata.DescriptorTypeAccelerationStructure); err != nil {
		return nil, err
	}
	return t.accelerationStructures.Get(ref.Handle)
}

// ShareStorageBuffer returns a new reference to the buffer at ref, for work
// that outlives the slot, e.g. an upload running on another goroutine.
func (t *ShaderResourceTable) ShareStorageBuffer(ref ResourceRef) (core.Arc[*Buffer], error) {
	if err := t.checkRef(ref, metadata.DescriptorTypeStorageBuffer); err != nil {
		return core.Arc[*Buffer]{}, err
	}
	return t.storageBuffers.Share(ref.Handle)
}

func (t *ShaderResourceTable) checkRef(ref ResourceRef, kind metadata.DescriptorType) error {
	if ref.Table != t.id {
		return fmt.Errorf("table %s: %w", t.name, core.ErrForeignHandle)
	}
	if ref.Kind != kind {
		return fmt.Errorf("%s handle used as %s", ref.Kind, kind)
	}
	return nil
}

// Free releases the slot behind ref. The table's reference to the resource is
// dropped, destroying it unless it is shared elsewhere.
func (t *ShaderResourceTable) Free(ref ResourceRef) error {
	if ref.Table != t.id {
		return fmt.Errorf("table %s: %w", t.name, core.ErrForeignHandle)
	}
	switch ref.Kind {
	case metadata.DescriptorTypeSampler:
		return t.samplers.Free(ref.Handle)
	case metadata.DescriptorTypeSampledImage:
		return t.sampledImages.Free(ref.Handle)
	case metadata.DescriptorTypeStorageImage:
		return t.storageImages.Free(ref.Handle)
	case metadata.DescriptorTypeStorageBuffer:
		if err := t.storageBuffers.Free(ref.Handle); err != nil {
			return err
		}
		return t.writeAddress(ref.Handle.Slot, 0)
	case metadata.DescriptorTypeAccelerationStructure:
		return t.accelerationStructures.Free(ref.Handle)
	}
	return fmt.Errorf("unknown descriptor type %s", ref.Kind)
}

// FreeDeferred frees ref once the device timeline reaches retireAt. The table
// stays alive until then.
func (t *ShaderResourceTable) FreeDeferred(queue *DeletionQueue, ref ResourceRef, retireAt uint64) {
	self := core.ToArc(t)
	queue.Enqueue(retireAt, func() {
		defer self.Reset()
		if err := self.Get().Free(ref); err != nil {
			t.logger.Errorf("Deferred free of %s slot %d failed: %s", ref.Kind, ref.Handle.Slot, err.Error())
		}
	})
}

// Update flushes the descriptor writes of every slot allocated since the last
// call. Writes are sorted per kind and runs of adjacent slots are merged into
// a single write.
func (t *ShaderResourceTable) Update() error {
	samplerWrites := t.samplers.TakeWrites()
	sampledImageWrites := t.sampledImages.TakeWrites()
	storageImageWrites := t.storageImages.TakeWrites()
	storageBufferWrites := t.storageBuffers.TakeWrites()
	accelerationStructureWrites := t.accelerationStructures.TakeWrites()

	var g errgroup.Group
	g.Go(func() error { sortWrites(samplerWrites); return nil })
	g.Go(func() error { sortWrites(sampledImageWrites); return nil })
	g.Go(func() error { sortWrites(storageImageWrites); return nil })
	g.Go(func() error { sortWrites(storageBufferWrites); return nil })
	g.Go(func() error { sortWrites(accelerationStructureWrites); return nil })
	if err := g.Wait(); err != nil {
		return err
	}

	var writes []metadata.DescriptorWrite
	for _, run := range mergeAdjacentWrites(samplerWrites) {
		writes = append(writes, metadata.DescriptorWrite{Slot: run.slot, Type: metadata.DescriptorTypeSampler, Images: run.descriptors})
	}
	for _, run := range mergeAdjacentWrites(sampledImageWrites) {
		writes = append(writes, metadata.DescriptorWrite{Slot: run.slot, Type: metadata.DescriptorTypeSampledImage, Images: run.descriptors})
	}
	for _, run := range mergeAdjacentWrites(storageImageWrites) {
		writes = append(writes, metadata.DescriptorWrite{Slot: run.slot, Type: metadata.DescriptorTypeStorageImage, Images: run.descriptors})
	}
	for _, run := range mergeAdjacentWrites(storageBufferWrites) {
		writes = append(writes, metadata.DescriptorWrite{Slot: run.slot, Type: metadata.DescriptorTypeStorageBuffer, Buffers: run.descriptors})
	}
	for _, run := range mergeAdjacentWrites(accelerationStructureWrites) {
		writes = append(writes, metadata.DescriptorWrite{Slot: run.slot, Type: metadata.DescriptorTypeAccelerationStructure, AccelerationStructures: run.descriptors})
	}

	if len(writes) == 0 {
		return nil
	}
	t.logger.Debugf("Flushing %d descriptor writes", len(writes))
	if err := t.device.WriteDescriptors(writes); err != nil {
		return fmt.Errorf("failed to write descriptors of %s: %w", t.name, err)
	}
	return nil
}

// Stats returns the number of occupied slots per kind.
func (t *ShaderResourceTable) Stats() map[metadata.DescriptorType]int {
	return map[metadata.DescriptorType]int{
		metadata.DescriptorTypeSampler:               t.samplers.Len(),
		metadata.DescriptorTypeSampledImage:          t.sampledImages.Len(),
		metadata.DescriptorTypeStorageImage:          t.storageImages.Len(),
		metadata.DescriptorTypeStorageBuffer:         t.storageBuffers.Len(),
		metadata.DescriptorTypeAccelerationStructure: t.accelerationStructures.Len(),
	}
}

// Capacities returns the number of slots per kind.
func (t *ShaderResourceTable) Capacities() map[metadata.DescriptorType]int {
	return map[metadata.DescriptorType]int{
		metadata.DescriptorTypeSampler:               t.samplers.Capacity(),
		metadata.DescriptorTypeSampledImage:          t.sampledImages.Capacity(),
		metadata.DescriptorTypeStorageImage:          t.storageImages.Capacity(),
		metadata.DescriptorTypeStorageBuffer:         t.storageBuffers.Capacity(),
		metadata.DescriptorTypeAccelerationStructure: t.accelerationStructures.Capacity(),
	}
}

// Destroy frees every slot and the address table.
func (t *ShaderResourceTable) Destroy() {
	t.samplers.Clear()
	t.sampledImages.Clear()
	t.storageImages.Clear()
	t.storageBuffers.Clear()
	t.accelerationStructures.Clear()
	t.addressTable.Reset()
	t.logger.Infof("Shader resource table %s (%s) destroyed", t.name, t.id)
}

type writeRun[D metadata.Descriptor] struct {
	slot        uint32
	descriptors []D
}

func sortWrites[D metadata.Descriptor](writes []SlotWrite[D]) {
	slices.SortStableFunc(writes, func(a, b SlotWrite[D]) int {
		return cmp.Compare(a.Slot, b.Slot)
	})
}

// mergeAdjacentWrites groups sorted writes into runs of consecutive slots. A
// slot written twice keeps the later descriptor.
func mergeAdjacentWrites[D metadata.Descriptor](writes []SlotWrite[D]) []writeRun[D] {
	var runs []writeRun[D]
	for i, w := range writes {
		if i > 0 {
			last := &runs[len(runs)-1]
			end := last.slot + uint32(len(last.descriptors)) - 1
			if w.Slot == end {
				last.descriptors[len(last.descriptors)-1] = w.Descriptor
				continue
			}
			if w.Slot == end+1 {
				last.descriptors = append(last.descriptors, w.Descriptor)
				continue
			}
		}
		runs = append(runs, writeRun[D]{slot: w.Slot, descriptors: []D{w.Descriptor}})
	}
	return runs
}
