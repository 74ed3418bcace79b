package containers

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/spaghettifunk/retina/engine/core"
)

// InvalidSlot is returned by SlotAllocator.Allocate when every slot is taken.
const InvalidSlot uint64 = math.MaxUint64

// SlotAllocator hands out the lowest free index of a fixed universe of slots.
// A set bit marks an allocated slot.
type SlotAllocator struct {
	words    []uint64
	capacity uint64
	count    uint64
}

// NewSlotAllocator creates an allocator for capacity slots. The capacity must
// be a positive multiple of 64.
func NewSlotAllocator(capacity uint64) (*SlotAllocator, error) {
	if capacity == 0 || capacity%64 != 0 {
		return nil, fmt.Errorf("slot allocator capacity %d is not a positive multiple of 64: %w", capacity, core.ErrInvalidCapacity)
	}
	return &SlotAllocator{
		words:    make([]uint64, capacity/64),
		capacity: capacity,
	}, nil
}

// Allocate claims the lowest free slot, or returns InvalidSlot.
func (sa *SlotAllocator) Allocate() uint64 {
	for i, word := range sa.words {
		if word == math.MaxUint64 {
			continue
		}
		// count trailing ones
		bit := uint64(bits.TrailingZeros64(^word))
		sa.words[i] |= 1 << bit
		sa.count++
		return uint64(i)*64 + bit
	}
	return InvalidSlot
}

// TryAllocate is Allocate with exhaustion reported as ErrSlotExhausted.
func (sa *SlotAllocator) TryAllocate() (uint64, error) {
	slot := sa.Allocate()
	if slot == InvalidSlot {
		return InvalidSlot, fmt.Errorf("slot allocator (capacity %d): %w", sa.capacity, core.ErrSlotExhausted)
	}
	return slot, nil
}

// Free returns slot to the pool.
func (sa *SlotAllocator) Free(slot uint64) error {
	if slot >= sa.capacity {
		return fmt.Errorf("free slot %d (capacity %d): %w", slot, sa.capacity, core.ErrSlotOutOfRange)
	}
	mask := uint64(1) << (slot % 64)
	if sa.words[slot/64]&mask == 0 {
		return fmt.Errorf("free slot %d: %w", slot, core.ErrSlotNotAllocated)
	}
	sa.words[slot/64] &^= mask
	sa.count--
	return nil
}

// IsAllocated reports whether slot is currently taken.
func (sa *SlotAllocator) IsAllocated(slot uint64) bool {
	if slot >= sa.capacity {
		return false
	}
	return sa.words[slot/64]&(uint64(1)<<(slot%64)) != 0
}

// Len returns the number of allocated slots.
func (sa *SlotAllocator) Len() uint64 {
	return sa.count
}

func (sa *SlotAllocator) Capacity() uint64 {
	return sa.capacity
}

func (sa *SlotAllocator) IsFull() bool {
	return sa.count == sa.capacity
}
