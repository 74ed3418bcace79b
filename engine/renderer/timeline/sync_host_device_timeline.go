package timeline

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/retina/engine/core"
)

// SyncHostDeviceTimeline is the shared frame pacer of the renderer. It hands
// out per-frame resource indices in [0, MaxTimelineDifference) and can recreate
// its device semaphore when the swapchain is rebuilt.
type SyncHostDeviceTimeline struct {
	core.RefCount

	name                    string
	maxTimelineDifference   uint64
	hostTimelineValue       uint64
	deviceTimelineSemaphore core.Arc[Semaphore]
	factory                 SemaphoreFactory
	logger                  *log.Logger
}

type SyncHostDeviceTimelineConfig struct {
	Name                  string
	MaxTimelineDifference uint64
	Factory               SemaphoreFactory
	Logger                *log.Logger
}

// NewSyncHostDeviceTimeline creates the timeline and its semaphore and returns
// the first owning reference to it.
func NewSyncHostDeviceTimeline(config SyncHostDeviceTimelineConfig) (core.Arc[*SyncHostDeviceTimeline], error) {
	if config.MaxTimelineDifference == 0 {
		config.MaxTimelineDifference = DefaultMaxTimelineDifference
	}
	if config.Factory == nil {
		config.Factory = NewHostSemaphoreFactory()
	}
	if config.Logger == nil {
		config.Logger = core.SubsystemLogger("timeline")
	}
	if config.Name == "" {
		config.Name = "SyncHostDeviceTimeline"
	}

	t := &SyncHostDeviceTimeline{
		name:                  config.Name,
		maxTimelineDifference: config.MaxTimelineDifference,
		factory:               config.Factory,
		logger:                config.Logger,
	}
	if err := t.createSemaphore(); err != nil {
		return core.Arc[*SyncHostDeviceTimeline]{}, err
	}
	return core.ToArc(t), nil
}

func (t *SyncHostDeviceTimeline) createSemaphore() error {
	s, err := t.factory(SemaphoreCreateInfo{Name: t.name})
	if err != nil {
		return fmt.Errorf("failed to create device timeline semaphore for %s: %w", t.name, err)
	}
	t.deviceTimelineSemaphore = core.NewArc(s)
	return nil
}

// WaitForNextTimelineValue blocks like HostDeviceTimeline and returns the frame
// index of the value handed out: the pre-increment host value modulo
// MaxTimelineDifference.
func (t *SyncHostDeviceTimeline) WaitForNextTimelineValue() uint64 {
	v, _ := t.waitForNext(InfiniteTimeout)
	return v
}

// WaitForNextTimelineValueTimeout returns core.ErrTimelineTimeout when the
// device did not catch up in time. The host value advances either way.
func (t *SyncHostDeviceTimeline) WaitForNextTimelineValueTimeout(timeout time.Duration) (uint64, error) {
	return t.waitForNext(durationToTimeout(timeout))
}

// WaitForDeviceTimeout blocks until the device reached the value the next
// WaitForNextTimelineValue waits for. On core.ErrTimelineTimeout the host value
// is left untouched, so the caller can retry without leaving a value unsignalled.
func (t *SyncHostDeviceTimeline) WaitForDeviceTimeout(timeout time.Duration) error {
	target := waitTarget(t.hostTimelineValue, t.maxTimelineDifference)
	if !wait(t.deviceTimelineSemaphore.Get(), target, durationToTimeout(timeout), t.logger) {
		return core.ErrTimelineTimeout
	}
	return nil
}

func (t *SyncHostDeviceTimeline) waitForNext(timeout uint64) (uint64, error) {
	target := waitTarget(t.hostTimelineValue, t.maxTimelineDifference)
	ok := wait(t.deviceTimelineSemaphore.Get(), target, timeout, t.logger)

	index := t.hostTimelineValue % t.maxTimelineDifference
	t.hostTimelineValue++
	if !ok {
		return index, core.ErrTimelineTimeout
	}
	return index, nil
}

func (t *SyncHostDeviceTimeline) GetHostTimelineValue() uint64 {
	return t.hostTimelineValue
}

func (t *SyncHostDeviceTimeline) GetDeviceTimelineValue() uint64 {
	return t.deviceTimelineSemaphore.Get().Counter()
}

func (t *SyncHostDeviceTimeline) GetDeviceTimelineSemaphore() Semaphore {
	return t.deviceTimelineSemaphore.Get()
}

// GetNextSignalTimelineValue is the value the current frame's submission must
// signal on the device semaphore.
func (t *SyncHostDeviceTimeline) GetNextSignalTimelineValue() uint64 {
	return t.hostTimelineValue
}

func (t *SyncHostDeviceTimeline) GetMaxTimelineDifference() uint64 {
	return t.maxTimelineDifference
}

// Reset drops the semaphore, creates a fresh one at 0 and rewinds the host
// counter. Callers must make sure the device is idle first.
func (t *SyncHostDeviceTimeline) Reset() error {
	t.logger.Infof("Resetting %s at host value %d", t.name, t.hostTimelineValue)
	t.deviceTimelineSemaphore.Reset()
	t.hostTimelineValue = 0
	return t.createSemaphore()
}

func (t *SyncHostDeviceTimeline) Destroy() {
	t.deviceTimelineSemaphore.Reset()
	t.logger.Infof("%s destroyed", t.name)
}
