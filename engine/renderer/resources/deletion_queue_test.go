package resources

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeletionQueueRetiresByDeviceValue(t *testing.T) {
	q := NewDeletionQueue(nil)
	var ran []string

	q.Enqueue(2, func() { ran = append(ran, "two") })
	q.Enqueue(1, func() { ran = append(ran, "one") })
	q.EnqueueTTL(3, func() { ran = append(ran, "ttl") })
	require.Equal(t, 3, q.Len())

	require.Equal(t, 0, q.Tick(0))
	require.Empty(t, ran)

	require.Equal(t, 1, q.Tick(1))
	require.Equal(t, []string{"one"}, ran)

	require.Equal(t, 2, q.Tick(2))
	require.ElementsMatch(t, []string{"one", "two", "ttl"}, ran)
	require.Equal(t, 0, q.Len())
}

func TestDeletionQueueFlush(t *testing.T) {
	q := NewDeletionQueue(nil)
	count := 0
	q.Enqueue(100, func() { count++ })
	q.EnqueueTTL(0, func() { count++ })

	require.Equal(t, 2, q.Flush())
	require.Equal(t, 2, count)
	require.Equal(t, 0, q.Flush())
}
