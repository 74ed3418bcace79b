package renderer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/timeline"
)

func TestHeadlessQueueSignalsInOrder(t *testing.T) {
	var failed atomic.Int32
	q := NewHeadlessQueue(HeadlessQueueConfig{
		Depth:   2,
		Latency: time.Millisecond,
		OnError: func(string, error) { failed.Add(1) },
	})
	sem := timeline.NewHostSemaphore(timeline.SemaphoreCreateInfo{Name: t.Name()})
	owner := core.NewArc[timeline.Semaphore](sem)
	defer owner.Reset()

	var order []uint64
	for v := uint64(1); v <= 6; v++ {
		value := v
		require.NoError(t, q.Submit(Submission{
			Name: "frame",
			Work: []func() error{
				func() error {
					order = append(order, value)
					if value == 3 {
						return errors.New("boom")
					}
					return nil
				},
			},
			Semaphore:   owner.Clone(),
			SignalValue: value,
		}))
	}

	require.NoError(t, q.WaitIdle())
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, order)
	assert.Equal(t, uint64(6), sem.Counter())
	assert.Equal(t, int32(1), failed.Load())
	assert.Equal(t, uint64(1), sem.Count())
	assert.Zero(t, q.Len())

	require.NoError(t, q.Shutdown())
	require.NoError(t, q.Shutdown())

	err := q.Submit(Submission{Semaphore: owner.Clone(), SignalValue: 7})
	assert.ErrorIs(t, err, ErrQueueShutdown)
	assert.Equal(t, uint64(1), sem.Count())
	assert.Equal(t, uint64(6), sem.Counter())
}

func TestHeadlessQueueShutdownDrains(t *testing.T) {
	q := NewHeadlessQueue(HeadlessQueueConfig{Depth: 8, Latency: time.Millisecond})
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Submit(Submission{
			Work: []func() error{func() error { ran.Add(1); return nil }},
		}))
	}
	require.NoError(t, q.Shutdown())
	assert.Equal(t, int32(5), ran.Load())
}
