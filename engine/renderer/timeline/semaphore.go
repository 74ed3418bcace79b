package timeline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spaghettifunk/retina/engine/core"
)

// InfiniteTimeout makes Semaphore.Wait block until the value is reached.
const InfiniteTimeout uint64 = math.MaxUint64

// Semaphore is a timeline semaphore: a monotonically increasing 64-bit counter
// the host can wait on and the device (or the host) can signal.
type Semaphore interface {
	Grab() uint64
	Drop() uint64
	Count() uint64

	Name() string
	// Counter reads the current value without blocking.
	Counter() uint64
	// Wait blocks until the counter reaches value or timeout nanoseconds
	// elapse. It returns false on timeout.
	Wait(value uint64, timeout uint64) bool
	// Signal sets the counter to value from the host.
	Signal(value uint64)
}

type SemaphoreCreateInfo struct {
	Name         string
	InitialValue uint64
}

// SemaphoreFactory creates the device timeline of a HostDeviceTimeline.
type SemaphoreFactory func(info SemaphoreCreateInfo) (Semaphore, error)

// HostSemaphore is a timeline semaphore living entirely in host memory. It is
// signalled by CPU queues and stands in for the device in headless runs.
type HostSemaphore struct {
	core.RefCount

	name    string
	mutex   sync.Mutex
	value   uint64
	changed chan struct{}
	logger  *log.Logger
}

func NewHostSemaphore(info SemaphoreCreateInfo) *HostSemaphore {
	name := info.Name
	if name == "" {
		name = fmt.Sprintf("HostSemaphore_%s", uuid.NewString())
	}
	s := &HostSemaphore{
		name:    name,
		value:   info.InitialValue,
		changed: make(chan struct{}),
		logger:  core.SubsystemLogger("timeline"),
	}
	s.logger.Infof("Timeline semaphore (%s) initialized", name)
	return s
}

// NewHostSemaphoreFactory returns a SemaphoreFactory producing HostSemaphores.
func NewHostSemaphoreFactory() SemaphoreFactory {
	return func(info SemaphoreCreateInfo) (Semaphore, error) {
		return NewHostSemaphore(info), nil
	}
}

func (s *HostSemaphore) Name() string {
	return s.name
}

func (s *HostSemaphore) Counter() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.value
}

func (s *HostSemaphore) Wait(value uint64, timeout uint64) bool {
	var deadline <-chan time.Time
	if timeout != InfiniteTimeout {
		d := time.Duration(math.MaxInt64)
		if timeout < uint64(math.MaxInt64) {
			d = time.Duration(timeout)
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		s.mutex.Lock()
		if s.value >= value {
			s.mutex.Unlock()
			return true
		}
		changed := s.changed
		s.mutex.Unlock()

		select {
		case <-changed:
		case <-deadline:
			return s.Counter() >= value
		}
	}
}

// Signal advances the counter. Values not greater than the current one are
// ignored; the counter never moves backwards.
func (s *HostSemaphore) Signal(value uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if value <= s.value {
		s.logger.Warnf("Timeline semaphore (%s) signal %d ignored, counter already at %d", s.name, value, s.value)
		return
	}
	s.value = value
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *HostSemaphore) Destroy() {
	s.logger.Infof("Timeline semaphore (%s) destroyed", s.name)
}
