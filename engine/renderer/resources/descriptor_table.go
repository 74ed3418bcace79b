package resources

import (
	"fmt"

	"github.com/spaghettifunk/retina/engine/containers"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

// SlotWrite is a descriptor waiting to be written at Slot.
type SlotWrite[D metadata.Descriptor] struct {
	Slot       uint32
	Descriptor D
}

// DescriptorTable is the slot storage of one descriptor kind. It owns a
// reference to every resource it holds and batches the descriptor writes of
// newly allocated slots.
type DescriptorTable[R core.Counted, D metadata.Descriptor] struct {
	kind      metadata.DescriptorType
	resources *containers.FixedSlotVector[core.Arc[R], uint32]
	writes    []SlotWrite[D]
	describe  func(R) D
}

func NewDescriptorTable[R core.Counted, D metadata.Descriptor](kind metadata.DescriptorType, capacity int, describe func(R) D) (*DescriptorTable[R, D], error) {
	resources, err := containers.NewFixedSlotVector[core.Arc[R], uint32](capacity, containers.ReuseLIFO)
	if err != nil {
		return nil, fmt.Errorf("%s table: %w", kind, err)
	}
	return &DescriptorTable[R, D]{
		kind:      kind,
		resources: resources,
		describe:  describe,
	}, nil
}

func (dt *DescriptorTable[R, D]) Kind() metadata.DescriptorType {
	return dt.kind
}

// Allocate moves resource into a free slot and queues its descriptor write.
// On failure the reference is dropped.
func (dt *DescriptorTable[R, D]) Allocate(resource core.Arc[R]) (containers.Handle[uint32], error) {
	if resource.IsNil() {
		return containers.Handle[uint32]{}, fmt.Errorf("%s table: %w", dt.kind, core.ErrNilResource)
	}
	descriptor := dt.describe(resource.Get())
	moved := resource.Move()
	slot, err := dt.resources.Insert(moved)
	if err != nil {
		moved.Reset()
		return containers.Handle[uint32]{}, fmt.Errorf("%s table: %w", dt.kind, err)
	}
	dt.writes = append(dt.writes, SlotWrite[D]{Slot: slot, Descriptor: descriptor})
	return dt.resources.Handle(slot), nil
}

// AllocateMany allocates every resource in order. Slots allocated before a
// failure stay allocated.
func (dt *DescriptorTable[R, D]) AllocateMany(resources []core.Arc[R]) ([]containers.Handle[uint32], error) {
	handles := make([]containers.Handle[uint32], 0, len(resources))
	for i := range resources {
		h, err := dt.Allocate(resources[i].Move())
		if err != nil {
			for j := i + 1; j < len(resources); j++ {
				resources[j].Reset()
			}
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Free drops the table's reference and makes the slot reusable. A write still
// pending for the slot is discarded.
func (dt *DescriptorTable[R, D]) Free(handle containers.Handle[uint32]) error {
	if _, err := dt.resources.Lookup(handle); err != nil {
		return fmt.Errorf("%s table: %w", dt.kind, err)
	}
	if err := dt.resources.Remove(handle.Slot); err != nil {
		return fmt.Errorf("%s table: %w", dt.kind, err)
	}
	kept := dt.writes[:0]
	for _, w := range dt.writes {
		if w.Slot != handle.Slot {
			kept = append(kept, w)
		}
	}
	dt.writes = kept
	return nil
}

// Get returns the resource at handle without touching its counter.
func (dt *DescriptorTable[R, D]) Get(handle containers.Handle[uint32]) (R, error) {
	arc, err := dt.resources.Lookup(handle)
	if err != nil {
		var zero R
		return zero, fmt.Errorf("%s table: %w", dt.kind, err)
	}
	return arc.Get(), nil
}

// Share returns a new reference to the resource at handle.
func (dt *DescriptorTable[R, D]) Share(handle containers.Handle[uint32]) (core.Arc[R], error) {
	arc, err := dt.resources.Lookup(handle)
	if err != nil {
		return core.Arc[R]{}, fmt.Errorf("%s table: %w", dt.kind, err)
	}
	return arc.Clone(), nil
}

// TakeWrites hands over the pending writes in allocation order.
func (dt *DescriptorTable[R, D]) TakeWrites() []SlotWrite[D] {
	w := dt.writes
	dt.writes = nil
	return w
}

func (dt *DescriptorTable[R, D]) Len() int {
	return dt.resources.Len()
}

func (dt *DescriptorTable[R, D]) Capacity() int {
	return dt.resources.Capacity()
}

// Clear frees every slot.
func (dt *DescriptorTable[R, D]) Clear() {
	dt.resources.Clear()
	dt.writes = nil
}
