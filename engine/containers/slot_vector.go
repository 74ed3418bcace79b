package containers

import (
	"fmt"

	"github.com/spaghettifunk/retina/engine/core"
	"golang.org/x/exp/constraints"
)

// DefaultSlotVectorCapacity is the storage reserved by NewSlotVector.
const DefaultSlotVectorCapacity = 1024

// Handle pairs a slot with the generation it was issued in. A handle outlives
// its slot once the slot is removed and reused.
type Handle[S constraints.Unsigned] struct {
	Slot       S
	Generation uint32
}

// resetter is implemented by values that hold references, e.g. core.Arc.
type resetter interface {
	Reset()
}

// SlotVector stores values at stable indices. Removed slots are reused in LIFO
// order before the storage grows.
type SlotVector[T any, S constraints.Unsigned] struct {
	storage     []T
	generations []uint32
	occupied    []uint64
	free        []S
	count       int
}

// NewSlotVector creates a growable slot vector with DefaultSlotVectorCapacity
// slots reserved.
func NewSlotVector[T any, S constraints.Unsigned]() *SlotVector[T, S] {
	return NewSlotVectorWithCapacity[T, S](DefaultSlotVectorCapacity)
}

func NewSlotVectorWithCapacity[T any, S constraints.Unsigned](capacity int) *SlotVector[T, S] {
	return &SlotVector[T, S]{
		storage:     make([]T, 0, capacity),
		generations: make([]uint32, 0, capacity),
		occupied:    make([]uint64, 0, (capacity+63)/64),
		free:        make([]S, 0, capacity),
	}
}

// Insert stores value and returns its slot.
func (sv *SlotVector[T, S]) Insert(value T) S {
	slot := sv.freeSlot()
	sv.storage[slot] = value
	sv.markOccupied(slot)
	return slot
}

// Remove clears the slot and queues it for reuse. Values holding references
// are reset first so their referents are dropped.
func (sv *SlotVector[T, S]) Remove(slot S) error {
	if int(slot) >= len(sv.storage) {
		return fmt.Errorf("remove slot %d (size %d): %w", slot, len(sv.storage), core.ErrSlotOutOfRange)
	}
	if !sv.IsOccupied(slot) {
		return fmt.Errorf("remove slot %d: %w", slot, core.ErrSlotNotAllocated)
	}
	if r, ok := any(&sv.storage[slot]).(resetter); ok {
		r.Reset()
	}
	var zero T
	sv.storage[slot] = zero
	sv.occupied[slot/64] &^= uint64(1) << (slot % 64)
	sv.generations[slot]++
	sv.count--
	sv.free = append(sv.free, slot)
	return nil
}

// Get returns a pointer to the value stored at slot. The pointer is valid
// until the next Insert.
func (sv *SlotVector[T, S]) Get(slot S) *T {
	return &sv.storage[slot]
}

// Handle returns the generational handle of an occupied slot.
func (sv *SlotVector[T, S]) Handle(slot S) Handle[S] {
	return Handle[S]{Slot: slot, Generation: sv.generations[slot]}
}

// Lookup resolves a handle, failing when its slot has since been removed.
func (sv *SlotVector[T, S]) Lookup(h Handle[S]) (*T, error) {
	if int(h.Slot) >= len(sv.storage) {
		return nil, fmt.Errorf("lookup slot %d: %w", h.Slot, core.ErrSlotOutOfRange)
	}
	if !sv.IsOccupied(h.Slot) || sv.generations[h.Slot] != h.Generation {
		return nil, fmt.Errorf("lookup slot %d generation %d: %w", h.Slot, h.Generation, core.ErrStaleHandle)
	}
	return &sv.storage[h.Slot], nil
}

func (sv *SlotVector[T, S]) IsOccupied(slot S) bool {
	if int(slot) >= len(sv.storage) {
		return false
	}
	return sv.occupied[slot/64]&(uint64(1)<<(slot%64)) != 0
}

// Size returns the number of slots ever handed out, free or not.
func (sv *SlotVector[T, S]) Size() int {
	return len(sv.storage)
}

// Len returns the number of occupied slots.
func (sv *SlotVector[T, S]) Len() int {
	return sv.count
}

func (sv *SlotVector[T, S]) IsEmpty() bool {
	return sv.count == 0
}

// Each calls fn for every occupied slot in index order until fn returns false.
func (sv *SlotVector[T, S]) Each(fn func(slot S, value *T) bool) {
	for i := range sv.storage {
		slot := S(i)
		if !sv.IsOccupied(slot) {
			continue
		}
		if !fn(slot, &sv.storage[i]) {
			return
		}
	}
}

// Clear removes every occupied slot.
func (sv *SlotVector[T, S]) Clear() {
	for i := range sv.storage {
		if sv.IsOccupied(S(i)) {
			_ = sv.Remove(S(i))
		}
	}
}

func (sv *SlotVector[T, S]) freeSlot() S {
	if n := len(sv.free); n > 0 {
		slot := sv.free[n-1]
		sv.free = sv.free[:n-1]
		return slot
	}
	slot := S(len(sv.storage))
	if uint64(slot) != uint64(len(sv.storage)) || uint64(len(sv.storage)) == maxOf[S]() {
		panic(fmt.Sprintf("slot vector index type overflow at %d", len(sv.storage)))
	}
	var zero T
	sv.storage = append(sv.storage, zero)
	sv.generations = append(sv.generations, 0)
	if len(sv.storage) > len(sv.occupied)*64 {
		sv.occupied = append(sv.occupied, 0)
	}
	return slot
}

func (sv *SlotVector[T, S]) markOccupied(slot S) {
	sv.occupied[slot/64] |= uint64(1) << (slot % 64)
	sv.count++
}

func maxOf[S constraints.Unsigned]() uint64 {
	var s S
	s--
	return uint64(s)
}
