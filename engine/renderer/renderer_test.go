package renderer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
)

func newTestRenderer(t *testing.T, config RendererConfig) (*Renderer, *resources.HeadlessDevice) {
	t.Helper()
	device := resources.NewHeadlessDevice(resources.HeadlessDeviceConfig{Name: t.Name()})
	config.Device = device
	if config.FramesInFlight == 0 {
		config.FramesInFlight = 2
	}
	config.Table = resources.ShaderResourceTableConfig{
		SamplerCapacity:               16,
		SampledImageCapacity:          16,
		StorageImageCapacity:          16,
		StorageBufferCapacity:         16,
		AccelerationStructureCapacity: 16,
	}
	r, err := New(config)
	require.NoError(t, err)
	return r, device
}

func TestFramePacing(t *testing.T) {
	r, _ := newTestRenderer(t, RendererConfig{FramesInFlight: 3})
	defer r.Shutdown()

	var executed atomic.Int32
	var indices, signals []uint64
	for i := 0; i < 9; i++ {
		err := r.DrawFrame(time.Millisecond, func(frame *Frame) error {
			indices = append(indices, frame.Index)
			signals = append(signals, frame.SignalValue)
			frame.Record(func() error {
				executed.Add(1)
				return nil
			})
			return nil
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, r.TimelineDifference(), uint64(3))
	}

	assert.Equal(t, []uint64{0, 1, 2, 0, 1, 2, 0, 1, 2}, indices)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9}, signals)

	require.NoError(t, r.WaitIdle())
	assert.Equal(t, int32(9), executed.Load())
	assert.Equal(t, uint64(9), r.Timeline().GetDeviceTimelineValue())
	assert.Zero(t, r.TimelineDifference())
}

func TestFrameMisuse(t *testing.T) {
	r, _ := newTestRenderer(t, RendererConfig{})
	defer r.Shutdown()

	frame, err := r.BeginFrame(0)
	require.NoError(t, err)
	_, err = r.BeginFrame(0)
	assert.Error(t, err)

	assert.Error(t, r.EndFrame(&Frame{}))
	require.NoError(t, r.EndFrame(frame))
	assert.Error(t, r.EndFrame(frame))
}

func TestRenderErrorStillSignals(t *testing.T) {
	r, _ := newTestRenderer(t, RendererConfig{})
	defer r.Shutdown()

	boom := errors.New("boom")
	err := r.DrawFrame(0, func(*Frame) error { return boom })
	assert.ErrorIs(t, err, boom)

	require.NoError(t, r.WaitIdle())
	assert.Equal(t, uint64(1), r.Timeline().GetDeviceTimelineValue())
}

func TestFrameFreeWaitsForDevice(t *testing.T) {
	r, device := newTestRenderer(t, RendererConfig{})
	defer r.Shutdown()

	var ref resources.ResourceRef
	require.NoError(t, r.DrawFrame(0, func(frame *Frame) error {
		res, err := resources.MakeBufferWithData(frame.Table, metadata.BufferCreateInfo{Name: "vertices"}, []float32{1, 2, 3})
		ref = res.Ref()
		return err
	}))

	require.NoError(t, r.DrawFrame(0, func(frame *Frame) error {
		assert.Equal(t, uint64(2), frame.SignalValue)
		frame.Free(ref)
		return nil
	}))
	assert.Equal(t, 1, r.Table().Stats()[metadata.DescriptorTypeStorageBuffer])
	assert.Equal(t, 1, r.DeletionQueue().Len())

	// The device finishes frame 2 and the next frame retires the free.
	require.NoError(t, r.WaitIdle())
	frame, err := r.BeginFrame(0)
	require.NoError(t, err)
	assert.Zero(t, r.Table().Stats()[metadata.DescriptorTypeStorageBuffer])
	assert.Zero(t, r.DeletionQueue().Len())
	assert.ErrorIs(t, r.Table().Validate(ref), core.ErrStaleHandle)
	// address table only
	assert.Equal(t, 1, device.Live())
	require.NoError(t, r.EndFrame(frame))
}

func TestRecreateRestartsTimeline(t *testing.T) {
	r, _ := newTestRenderer(t, RendererConfig{})
	defer r.Shutdown()

	retired := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, r.DrawFrame(0, func(frame *Frame) error {
			frame.Retire(func() { retired++ })
			return nil
		}))
	}
	old := r.Timeline().GetDeviceTimelineSemaphore()

	require.NoError(t, r.Recreate())
	assert.Equal(t, 5, retired)
	assert.Zero(t, r.Timeline().GetHostTimelineValue())
	assert.Zero(t, r.Timeline().GetDeviceTimelineValue())
	assert.NotSame(t, old, r.Timeline().GetDeviceTimelineSemaphore())
	assert.Zero(t, old.Count())

	frame, err := r.BeginFrame(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), frame.Index)
	assert.Equal(t, uint64(1), frame.SignalValue)
	require.NoError(t, r.EndFrame(frame))
}

// stalledQueue holds every submission until release, like a hung device.
type stalledQueue struct {
	mu      sync.Mutex
	pending []Submission
}

func (q *stalledQueue) Submit(submission Submission) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, submission)
	return nil
}

func (q *stalledQueue) submitted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// release signals everything submitted so far, in order.
func (q *stalledQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.pending {
		s.Semaphore.Get().Signal(s.SignalValue)
		s.Semaphore.Reset()
	}
	q.pending = nil
}

func (q *stalledQueue) WaitIdle() error { return nil }
func (q *stalledQueue) Shutdown() error { q.release(); return nil }

func TestWaitTimeoutStopsFramePacing(t *testing.T) {
	queue := &stalledQueue{}
	r, _ := newTestRenderer(t, RendererConfig{
		FramesInFlight: 2,
		WaitTimeout:    10 * time.Millisecond,
		Queue:          queue,
	})
	defer r.Shutdown()

	for i := 0; i < 2; i++ {
		require.NoError(t, r.DrawFrame(0, func(*Frame) error { return nil }))
	}

	for i := 0; i < 2; i++ {
		start := time.Now()
		frame, err := r.BeginFrame(0)
		require.ErrorIs(t, err, core.ErrTimelineTimeout)
		assert.Nil(t, frame)
		assert.True(t, time.Since(start) >= 10*time.Millisecond)
		assert.Equal(t, uint64(2), r.Timeline().GetHostTimelineValue())
		assert.Equal(t, uint64(2), r.TimelineDifference())
	}

	rendered := false
	err := r.DrawFrame(0, func(*Frame) error {
		rendered = true
		return nil
	})
	require.ErrorIs(t, err, core.ErrTimelineTimeout)
	assert.False(t, rendered)
	assert.Equal(t, 2, queue.submitted())

	// once the device catches up the skipped frames leave no gap behind
	queue.release()
	frame, err := r.BeginFrame(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), frame.Index)
	assert.Equal(t, uint64(3), frame.SignalValue)
	require.NoError(t, r.EndFrame(frame))
	assert.Equal(t, 1, queue.submitted())
}

func TestZeroWaitTimeoutBlocks(t *testing.T) {
	queue := &stalledQueue{}
	r, _ := newTestRenderer(t, RendererConfig{
		FramesInFlight: 2,
		WaitTimeout:    0,
		Queue:          queue,
	})
	defer r.Shutdown()

	for i := 0; i < 2; i++ {
		require.NoError(t, r.DrawFrame(0, func(*Frame) error { return nil }))
	}

	begun := make(chan error, 1)
	go func() {
		frame, err := r.BeginFrame(0)
		if err == nil {
			err = r.EndFrame(frame)
		}
		begun <- err
	}()

	select {
	case err := <-begun:
		t.Fatalf("BeginFrame returned while the device was stalled: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 2, queue.submitted())

	queue.release()
	select {
	case err := <-begun:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("BeginFrame did not resume after the device caught up")
	}
	assert.LessOrEqual(t, r.TimelineDifference(), uint64(2))
}
