package renderer

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/retina/engine/containers"
	"github.com/spaghettifunk/retina/engine/core"
)

var ErrQueueShutdown = errors.New("queue is shut down")

type HeadlessQueueConfig struct {
	Name string
	// Maximum number of submissions waiting for the device.
	Depth int
	// Simulated execution time of each submission.
	Latency time.Duration
	// OnError receives errors returned by submitted work.
	OnError func(name string, err error)
	Logger  *log.Logger
}

// HeadlessQueue plays the role of a device queue: a single goroutine drains a
// ring of submissions and signals their timeline semaphores.
type HeadlessQueue struct {
	name    string
	latency time.Duration
	onError func(name string, err error)
	logger  *log.Logger

	mutex    sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	idle     *sync.Cond
	ring     *containers.RingQueue[Submission]
	busy     bool
	closed   bool
	stopped  chan struct{}
}

func NewHeadlessQueue(config HeadlessQueueConfig) *HeadlessQueue {
	if config.Name == "" {
		config.Name = "HeadlessQueue"
	}
	if config.Depth <= 0 {
		config.Depth = 4
	}
	if config.Logger == nil {
		config.Logger = core.SubsystemLogger("queue")
	}

	q := &HeadlessQueue{
		name:    config.Name,
		latency: config.Latency,
		onError: config.OnError,
		logger:  config.Logger,
		ring:    containers.NewRingQueue[Submission](config.Depth),
		stopped: make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mutex)
	q.notFull = sync.NewCond(&q.mutex)
	q.idle = sync.NewCond(&q.mutex)

	go q.run()
	return q
}

// Submit enqueues the submission, blocking while the ring is full. The queue
// takes over the submission's semaphore reference.
func (q *HeadlessQueue) Submit(submission Submission) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for !q.closed && q.ring.IsFull() {
		q.notFull.Wait()
	}
	if q.closed {
		submission.Semaphore.Reset()
		return ErrQueueShutdown
	}
	if err := q.ring.Enqueue(submission); err != nil {
		submission.Semaphore.Reset()
		return err
	}
	q.notEmpty.Signal()
	return nil
}

func (q *HeadlessQueue) WaitIdle() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for !q.ring.IsEmpty() || q.busy {
		q.idle.Wait()
	}
	return nil
}

// Shutdown executes what is already queued and stops the queue goroutine.
func (q *HeadlessQueue) Shutdown() error {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		<-q.stopped
		return nil
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mutex.Unlock()

	<-q.stopped
	q.logger.Debugf("%s shut down", q.name)
	return nil
}

func (q *HeadlessQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.ring.Len()
}

func (q *HeadlessQueue) run() {
	defer close(q.stopped)

	for {
		q.mutex.Lock()
		for !q.closed && q.ring.IsEmpty() {
			q.notEmpty.Wait()
		}
		submission, err := q.ring.Dequeue()
		if err != nil {
			// closed and drained
			q.idle.Broadcast()
			q.mutex.Unlock()
			return
		}
		q.busy = true
		q.notFull.Signal()
		q.mutex.Unlock()

		q.execute(submission)

		q.mutex.Lock()
		q.busy = false
		q.idle.Broadcast()
		q.mutex.Unlock()
	}
}

func (q *HeadlessQueue) execute(submission Submission) {
	defer submission.Semaphore.Reset()

	if q.latency > 0 {
		time.Sleep(q.latency)
	}
	for _, work := range submission.Work {
		if err := work(); err != nil {
			q.logger.Error("submitted work failed", "submission", submission.Name, "err", err)
			if q.onError != nil {
				q.onError(submission.Name, err)
			}
		}
	}
	if !submission.Semaphore.IsNil() {
		submission.Semaphore.Get().Signal(submission.SignalValue)
	}
}
