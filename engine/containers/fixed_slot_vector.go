package containers

import (
	"fmt"

	"github.com/spaghettifunk/retina/engine/core"
	"golang.org/x/exp/constraints"
)

// ReusePolicy selects which free slot a FixedSlotVector hands out next.
type ReusePolicy uint8

const (
	// ReuseLIFO reuses the most recently removed slot first.
	ReuseLIFO ReusePolicy = iota
	// ReuseLowest always hands out the lowest free slot, keeping the occupied
	// range dense. Backed by a SlotAllocator.
	ReuseLowest
)

// FixedSlotVector is a SlotVector that never grows past its capacity.
type FixedSlotVector[T any, S constraints.Unsigned] struct {
	inner     *SlotVector[T, S]
	capacity  int
	policy    ReusePolicy
	allocator *SlotAllocator
}

func NewFixedSlotVector[T any, S constraints.Unsigned](capacity int, policy ReusePolicy) (*FixedSlotVector[T, S], error) {
	if capacity <= 0 || uint64(capacity) > maxOf[S]() {
		return nil, fmt.Errorf("fixed slot vector capacity %d: %w", capacity, core.ErrInvalidCapacity)
	}
	fsv := &FixedSlotVector[T, S]{
		capacity: capacity,
		policy:   policy,
	}
	switch policy {
	case ReuseLowest:
		// the bitmap is rounded up; slots past capacity are never handed out
		a, err := NewSlotAllocator(uint64((capacity + 63) / 64 * 64))
		if err != nil {
			return nil, err
		}
		fsv.allocator = a
		fsv.inner = NewSlotVectorWithCapacity[T, S](0)
	default:
		fsv.inner = NewSlotVectorWithCapacity[T, S](min(capacity, DefaultSlotVectorCapacity))
	}
	return fsv, nil
}

// Insert stores value, or fails with ErrSlotExhausted when every slot is taken.
func (fsv *FixedSlotVector[T, S]) Insert(value T) (S, error) {
	if fsv.IsFull() {
		return 0, fmt.Errorf("fixed slot vector (capacity %d): %w", fsv.capacity, core.ErrSlotExhausted)
	}
	if fsv.policy != ReuseLowest {
		return fsv.inner.Insert(value), nil
	}

	slot := fsv.allocator.Allocate()
	if slot == InvalidSlot || slot >= uint64(fsv.capacity) {
		return 0, fmt.Errorf("fixed slot vector (capacity %d): %w", fsv.capacity, core.ErrSlotExhausted)
	}
	s := S(slot)
	// grow the backing storage up to the allocated slot; the slots in between
	// are left unoccupied and are not part of the freelist
	for S(fsv.inner.Size()) <= s {
		fsv.inner.freeSlot()
	}
	fsv.inner.storage[s] = value
	fsv.inner.markOccupied(s)
	return s, nil
}

// Remove clears slot and makes it available again.
func (fsv *FixedSlotVector[T, S]) Remove(slot S) error {
	if err := fsv.inner.Remove(slot); err != nil {
		return err
	}
	if fsv.policy == ReuseLowest {
		// the allocator owns reuse; drop the freelist entry pushed by inner
		fsv.inner.free = fsv.inner.free[:len(fsv.inner.free)-1]
		return fsv.allocator.Free(uint64(slot))
	}
	return nil
}

func (fsv *FixedSlotVector[T, S]) Get(slot S) *T {
	return fsv.inner.Get(slot)
}

func (fsv *FixedSlotVector[T, S]) Handle(slot S) Handle[S] {
	return fsv.inner.Handle(slot)
}

func (fsv *FixedSlotVector[T, S]) Lookup(h Handle[S]) (*T, error) {
	return fsv.inner.Lookup(h)
}

func (fsv *FixedSlotVector[T, S]) IsOccupied(slot S) bool {
	return fsv.inner.IsOccupied(slot)
}

func (fsv *FixedSlotVector[T, S]) Len() int {
	return fsv.inner.Len()
}

func (fsv *FixedSlotVector[T, S]) Capacity() int {
	return fsv.capacity
}

func (fsv *FixedSlotVector[T, S]) IsEmpty() bool {
	return fsv.inner.IsEmpty()
}

// IsFull reports whether every slot is occupied. Removed slots count as free.
func (fsv *FixedSlotVector[T, S]) IsFull() bool {
	return fsv.inner.Len() >= fsv.capacity
}

func (fsv *FixedSlotVector[T, S]) Each(fn func(slot S, value *T) bool) {
	fsv.inner.Each(fn)
}

func (fsv *FixedSlotVector[T, S]) Clear() {
	fsv.inner.Each(func(slot S, _ *T) bool {
		_ = fsv.Remove(slot)
		return true
	})
}
