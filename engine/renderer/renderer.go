package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
	"github.com/spaghettifunk/retina/engine/renderer/timeline"
)

type RendererConfig struct {
	Name           string
	FramesInFlight uint64
	// Zero or negative waits forever. Otherwise BeginFrame gives up with
	// core.ErrTimelineTimeout once the device stalls for longer.
	WaitTimeout time.Duration

	Device           resources.Device
	SemaphoreFactory timeline.SemaphoreFactory
	// Queue defaults to a HeadlessQueue with QueueLatency.
	Queue        Queue
	QueueLatency time.Duration

	Table  resources.ShaderResourceTableConfig
	Logger *log.Logger
}

// Frame is handed to the game between BeginFrame and EndFrame.
type Frame struct {
	// Per-frame resource index in [0, FramesInFlight).
	Index uint64
	// Device timeline value signalled once this frame has executed.
	SignalValue uint64
	DeltaTime   time.Duration
	Table       *resources.ShaderResourceTable

	deletionQueue *resources.DeletionQueue
	work          []func() error
}

// Record appends work that runs on the queue when the frame is submitted.
func (f *Frame) Record(work func() error) {
	f.work = append(f.work, work)
}

// Retire runs fn once the device has finished this frame.
func (f *Frame) Retire(fn func()) {
	f.deletionQueue.Enqueue(f.SignalValue, fn)
}

// Free releases the table slot of ref once the device has finished this frame.
func (f *Frame) Free(ref resources.ResourceRef) {
	f.Table.FreeDeferred(f.deletionQueue, ref, f.SignalValue)
}

// Renderer paces frames against the device timeline and owns the bindless
// resource table.
type Renderer struct {
	name        string
	waitTimeout time.Duration
	ownsQueue   bool
	ownsDevice  bool

	device        resources.Device
	timeline      core.Arc[*timeline.SyncHostDeviceTimeline]
	table         core.Arc[*resources.ShaderResourceTable]
	deletionQueue *resources.DeletionQueue
	queue         Queue
	logger        *log.Logger

	frame *Frame
}

func New(config RendererConfig) (*Renderer, error) {
	if config.Name == "" {
		config.Name = "Renderer"
	}
	if config.Logger == nil {
		config.Logger = core.SubsystemLogger("renderer")
	}
	ownsDevice := config.Device == nil
	if ownsDevice {
		config.Device = resources.NewHeadlessDevice(resources.HeadlessDeviceConfig{Name: config.Name + "Device"})
	}
	if config.SemaphoreFactory == nil {
		config.SemaphoreFactory = timeline.NewHostSemaphoreFactory()
	}

	tl, err := timeline.NewSyncHostDeviceTimeline(timeline.SyncHostDeviceTimelineConfig{
		Name:                  config.Name + "Timeline",
		MaxTimelineDifference: config.FramesInFlight,
		Factory:               config.SemaphoreFactory,
	})
	if err != nil {
		return nil, err
	}

	config.Table.Device = config.Device
	table, err := resources.NewShaderResourceTable(config.Table)
	if err != nil {
		tl.Reset()
		return nil, err
	}

	r := &Renderer{
		name:          config.Name,
		waitTimeout:   config.WaitTimeout,
		ownsDevice:    ownsDevice,
		device:        config.Device,
		timeline:      tl,
		table:         table,
		deletionQueue: resources.NewDeletionQueue(config.Logger),
		queue:         config.Queue,
		logger:        config.Logger,
	}
	if r.queue == nil {
		r.queue = NewHeadlessQueue(HeadlessQueueConfig{
			Name:    config.Name + "Queue",
			Depth:   int(tl.Get().GetMaxTimelineDifference()) + 1,
			Latency: config.QueueLatency,
		})
		r.ownsQueue = true
	}

	r.logger.Infof("%s created with %d frames in flight", r.name, tl.Get().GetMaxTimelineDifference())
	return r, nil
}

// BeginFrame waits until the device is at most FramesInFlight-1 frames behind
// and retires every deferred deletion the device has reached.
func (r *Renderer) BeginFrame(delta time.Duration) (*Frame, error) {
	if r.frame != nil {
		return nil, errors.New("BeginFrame called twice without EndFrame")
	}

	tl := r.timeline.Get()
	if r.waitTimeout > 0 {
		if err := tl.WaitForDeviceTimeout(r.waitTimeout); err != nil {
			return nil, fmt.Errorf("%s: device fell behind (host %d, device %d): %w",
				r.name, tl.GetHostTimelineValue(), tl.GetDeviceTimelineValue(), err)
		}
	}
	// returns immediately when the bounded wait above succeeded
	index := tl.WaitForNextTimelineValue()

	retired := r.deletionQueue.Tick(tl.GetDeviceTimelineValue())
	if retired > 0 {
		r.logger.Debugf("retired %d deferred deletions", retired)
	}

	r.frame = &Frame{
		Index:         index,
		SignalValue:   tl.GetNextSignalTimelineValue(),
		DeltaTime:     delta,
		Table:         r.table.Get(),
		deletionQueue: r.deletionQueue,
	}
	return r.frame, nil
}

// EndFrame flushes descriptor writes and submits the frame's work, which
// signals the device timeline when it completes.
func (r *Renderer) EndFrame(frame *Frame) error {
	if frame == nil || frame != r.frame {
		return errors.New("EndFrame called with a frame that is not current")
	}
	r.frame = nil

	if err := r.table.Get().Update(); err != nil {
		// The frame value must still be signalled or the next waits stall.
		r.logger.Error("descriptor update failed", "err", err)
		frame.work = nil
	}

	return r.queue.Submit(Submission{
		Name:        fmt.Sprintf("%s-frame-%d", r.name, frame.SignalValue),
		Work:        frame.work,
		Semaphore:   core.ToArc(r.timeline.Get().GetDeviceTimelineSemaphore()),
		SignalValue: frame.SignalValue,
	})
}

// DrawFrame runs render between BeginFrame and EndFrame.
func (r *Renderer) DrawFrame(delta time.Duration, render func(frame *Frame) error) error {
	frame, err := r.BeginFrame(delta)
	if err != nil {
		return err
	}
	renderErr := render(frame)
	if err := r.EndFrame(frame); err != nil {
		return errors.Join(renderErr, err)
	}
	return renderErr
}

// Recreate waits for the device, runs every pending deletion and restarts the
// timeline from 0, the way a swapchain rebuild does.
func (r *Renderer) Recreate() error {
	if err := r.WaitIdle(); err != nil {
		return err
	}
	r.deletionQueue.Flush()
	if err := r.timeline.Get().Reset(); err != nil {
		return err
	}
	r.logger.Info("renderer recreated")
	return nil
}

func (r *Renderer) WaitIdle() error {
	if err := r.queue.WaitIdle(); err != nil {
		return err
	}
	return r.device.WaitIdle()
}

func (r *Renderer) Table() *resources.ShaderResourceTable {
	return r.table.Get()
}

func (r *Renderer) Timeline() *timeline.SyncHostDeviceTimeline {
	return r.timeline.Get()
}

func (r *Renderer) DeletionQueue() *resources.DeletionQueue {
	return r.deletionQueue
}

func (r *Renderer) Device() resources.Device {
	return r.device
}

// TimelineDifference is how many frames the host is ahead of the device.
func (r *Renderer) TimelineDifference() uint64 {
	tl := r.timeline.Get()
	host, device := tl.GetHostTimelineValue(), tl.GetDeviceTimelineValue()
	if device >= host {
		return 0
	}
	return host - device
}

func (r *Renderer) Shutdown() error {
	err := r.WaitIdle()
	if r.ownsQueue {
		err = errors.Join(err, r.queue.Shutdown())
	}
	r.deletionQueue.Flush()
	r.table.Reset()
	r.timeline.Reset()
	if d, ok := r.device.(core.Destroyer); ok && r.ownsDevice {
		d.Destroy()
	}
	r.logger.Infof("%s shut down", r.name)
	return err
}
