package containers

import (
	"testing"

	"github.com/spaghettifunk/retina/engine/core"
	"github.com/stretchr/testify/require"
)

func TestSlotAllocatorRejectsBadCapacity(t *testing.T) {
	for _, capacity := range []uint64{0, 1, 63, 100} {
		_, err := NewSlotAllocator(capacity)
		require.ErrorIs(t, err, core.ErrInvalidCapacity, "capacity %d", capacity)
	}
}

func TestSlotAllocatorExhaustion(t *testing.T) {
	sa, err := NewSlotAllocator(64)
	require.NoError(t, err)

	for i := uint64(0); i < 64; i++ {
		require.Equal(t, i, sa.Allocate())
	}
	require.True(t, sa.IsFull())
	require.Equal(t, InvalidSlot, sa.Allocate())

	_, err = sa.TryAllocate()
	require.ErrorIs(t, err, core.ErrSlotExhausted)

	require.NoError(t, sa.Free(30))
	require.Equal(t, uint64(30), sa.Allocate())
}

func TestSlotAllocatorUniqueAndLowestFree(t *testing.T) {
	sa, err := NewSlotAllocator(128)
	require.NoError(t, err)

	seen := make(map[uint64]struct{}, 128)
	for i := 0; i < 128; i++ {
		slot := sa.Allocate()
		require.Less(t, slot, uint64(128))
		seen[slot] = struct{}{}
	}
	require.Len(t, seen, 128)
	require.Equal(t, InvalidSlot, sa.Allocate())

	require.NoError(t, sa.Free(5))
	require.NoError(t, sa.Free(100))
	require.Equal(t, uint64(5), sa.Allocate())
	require.Equal(t, uint64(100), sa.Allocate())
	require.Equal(t, uint64(128), sa.Len())
}

func TestSlotAllocatorFreeChecks(t *testing.T) {
	sa, err := NewSlotAllocator(64)
	require.NoError(t, err)

	require.ErrorIs(t, sa.Free(64), core.ErrSlotOutOfRange)
	require.ErrorIs(t, sa.Free(3), core.ErrSlotNotAllocated)

	slot := sa.Allocate()
	require.True(t, sa.IsAllocated(slot))
	require.NoError(t, sa.Free(slot))
	require.False(t, sa.IsAllocated(slot))
	require.ErrorIs(t, sa.Free(slot), core.ErrSlotNotAllocated)
	require.Equal(t, uint64(0), sa.Len())
}
