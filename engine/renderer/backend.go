package renderer

import (
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/timeline"
)

// Submission is the recorded work of one frame. The queue runs Work in order
// and then signals Semaphore to SignalValue, even when Work fails.
type Submission struct {
	Name        string
	Work        []func() error
	Semaphore   core.Arc[timeline.Semaphore]
	SignalValue uint64
}

// Queue executes submissions in submission order on the device side.
type Queue interface {
	Submit(submission Submission) error
	// WaitIdle blocks until every submitted frame has signalled its semaphore.
	WaitIdle() error
	Shutdown() error
}
