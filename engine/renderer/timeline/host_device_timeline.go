package timeline

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/retina/engine/core"
)

// DefaultMaxTimelineDifference is the number of frames allowed in flight when
// the config leaves it unset.
const DefaultMaxTimelineDifference uint64 = 2

type HostDeviceTimelineConfig struct {
	Name string
	// MaxTimelineDifference is how far the host may run ahead of the device.
	MaxTimelineDifference uint64
	// Semaphore is shared with the timeline when set. Otherwise Factory (or a
	// host semaphore factory) creates one starting at 0.
	Semaphore core.Arc[Semaphore]
	Factory   SemaphoreFactory
	Logger    *log.Logger
}

func (c *HostDeviceTimelineConfig) defaults() {
	if c.MaxTimelineDifference == 0 {
		c.MaxTimelineDifference = DefaultMaxTimelineDifference
	}
	if c.Factory == nil {
		c.Factory = NewHostSemaphoreFactory()
	}
	if c.Logger == nil {
		c.Logger = core.SubsystemLogger("timeline")
	}
}

// HostDeviceTimeline paces the host against a device timeline semaphore so the
// host never runs more than MaxTimelineDifference values ahead.
//
// The host counter is meant to be driven from a single thread.
type HostDeviceTimeline struct {
	name                  string
	maxTimelineDifference uint64
	hostTimelineValue     uint64
	deviceTimeline        core.Arc[Semaphore]
	logger                *log.Logger
}

func NewHostDeviceTimeline(config HostDeviceTimelineConfig) (*HostDeviceTimeline, error) {
	config.defaults()

	t := &HostDeviceTimeline{
		name:                  config.Name,
		maxTimelineDifference: config.MaxTimelineDifference,
		logger:                config.Logger,
	}

	if !config.Semaphore.IsNil() {
		t.deviceTimeline = config.Semaphore.Clone()
	} else {
		s, err := config.Factory(SemaphoreCreateInfo{Name: config.Name})
		if err != nil {
			return nil, fmt.Errorf("failed to create device timeline semaphore: %w", err)
		}
		t.deviceTimeline = core.NewArc(s)
	}
	return t, nil
}

// waitTarget is the device value that must be reached before host value
// hostValue may be handed out.
func waitTarget(hostValue, maxDifference uint64) uint64 {
	if hostValue+1 <= maxDifference {
		return 0
	}
	return hostValue + 1 - maxDifference
}

// WaitForNextHostTimelineValue blocks until the device is close enough behind,
// then returns the current host value and advances it by one.
func (t *HostDeviceTimeline) WaitForNextHostTimelineValue() uint64 {
	v, _ := t.waitForNext(InfiniteTimeout)
	return v
}

// WaitForNextHostTimelineValueTimeout is WaitForNextHostTimelineValue with an
// upper bound on the wait. The host value advances even when the wait timed
// out, in which case core.ErrTimelineTimeout is returned alongside it.
func (t *HostDeviceTimeline) WaitForNextHostTimelineValueTimeout(timeout time.Duration) (uint64, error) {
	return t.waitForNext(durationToTimeout(timeout))
}

func (t *HostDeviceTimeline) waitForNext(timeout uint64) (uint64, error) {
	target := waitTarget(t.hostTimelineValue, t.maxTimelineDifference)
	ok := wait(t.deviceTimeline.Get(), target, timeout, t.logger)

	value := t.hostTimelineValue
	t.hostTimelineValue++
	if !ok {
		return value, core.ErrTimelineTimeout
	}
	return value, nil
}

// GetNextHostTimelineValue returns the value the work of the frame handed out
// last should signal on the device timeline.
func (t *HostDeviceTimeline) GetNextHostTimelineValue() uint64 {
	return t.hostTimelineValue
}

func (t *HostDeviceTimeline) GetHostTimelineValue() uint64 {
	return t.hostTimelineValue
}

func (t *HostDeviceTimeline) GetDeviceTimelineValue() uint64 {
	return t.deviceTimeline.Get().Counter()
}

func (t *HostDeviceTimeline) GetDeviceTimeline() Semaphore {
	return t.deviceTimeline.Get()
}

func (t *HostDeviceTimeline) GetMaxTimelineDifference() uint64 {
	return t.maxTimelineDifference
}

// GetCurrentTimelineDifference is the number of values the host is ahead of
// the device.
func (t *HostDeviceTimeline) GetCurrentTimelineDifference() uint64 {
	device := t.GetDeviceTimelineValue()
	if device >= t.hostTimelineValue {
		return 0
	}
	return t.hostTimelineValue - device
}

// Destroy drops the timeline's share of the device semaphore.
func (t *HostDeviceTimeline) Destroy() {
	t.deviceTimeline.Reset()
}

func wait(s Semaphore, target uint64, timeout uint64, logger *log.Logger) bool {
	if target == 0 {
		return true
	}
	current := s.Counter()
	if current >= target {
		return true
	}
	logger.Debugf("Waiting on %s: device at %d, need %d", s.Name(), current, target)
	if !s.Wait(target, timeout) {
		logger.Warnf("Timed out waiting on %s for value %d", s.Name(), target)
		return false
	}
	return true
}

func durationToTimeout(d time.Duration) uint64 {
	if d < 0 {
		return InfiniteTimeout
	}
	return uint64(d)
}
