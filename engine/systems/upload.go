package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/metadata"
	"github.com/spaghettifunk/retina/engine/renderer/resources"
	"golang.org/x/sync/errgroup"
)

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrUploadSystemClosed = errors.New("upload system is shut down")

type UploadSystemConfig struct {
	Workers   int
	QueueSize int
	Logger    *log.Logger
}

// UploadSystem runs jobs that fill resources on worker goroutines. Jobs keep
// their own references to the resources they touch, so a resource freed from
// its table while an upload is running stays alive until the job is done.
type UploadSystem struct {
	numWorkers int
	jobQueue   chan metadata.JobTask
	group      errgroup.Group
	pending    sync.WaitGroup
	logger     *log.Logger

	mutex  sync.RWMutex
	closed bool
}

func NewUploadSystem(config UploadSystemConfig) (*UploadSystem, error) {
	if config.Workers <= 0 {
		return nil, ErrNoWorkers
	}
	if config.QueueSize < 0 {
		return nil, ErrNegativeChannelSize
	}
	if config.Logger == nil {
		config.Logger = core.SubsystemLogger("upload")
	}

	us := &UploadSystem{
		numWorkers: config.Workers,
		jobQueue:   make(chan metadata.JobTask, config.QueueSize),
		logger:     config.Logger,
	}
	us.start()
	us.logger.Infof("Upload system started with %d workers", us.numWorkers)
	return us, nil
}

func (us *UploadSystem) start() {
	for i := 0; i < us.numWorkers; i++ {
		us.group.Go(func() error {
			for job := range us.jobQueue {
				us.run(job)
			}
			return nil
		})
	}
}

func (us *UploadSystem) run(job metadata.JobTask) {
	defer us.pending.Done()

	if err := job.OnStart(); err != nil {
		us.logger.Errorf("Upload job %s failed: %s", job.Name, err.Error())
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete()
	}

	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

// Submit queues a job, blocking while the queue is full.
func (us *UploadSystem) Submit(job metadata.JobTask) error {
	if job.OnStart == nil {
		return fmt.Errorf("upload job %s has no entry point", job.Name)
	}

	us.mutex.RLock()
	defer us.mutex.RUnlock()
	if us.closed {
		return ErrUploadSystemClosed
	}
	us.pending.Add(1)
	us.jobQueue <- job
	return nil
}

// Wait blocks until every job submitted so far has finished.
func (us *UploadSystem) Wait() {
	us.pending.Wait()
}

// Shutdown drains the queue and stops the workers.
func (us *UploadSystem) Shutdown() error {
	us.mutex.Lock()
	if us.closed {
		us.mutex.Unlock()
		return nil
	}
	us.closed = true
	close(us.jobQueue)
	us.mutex.Unlock()

	err := us.group.Wait()
	us.logger.Info("Upload system shut down")
	return err
}

// Upload writes values at element index of buffer on a worker goroutine.
// done, if set, receives the outcome.
func Upload[T any](us *UploadSystem, buffer core.Arc[*resources.Buffer], index uint64, values []T, done func(error)) error {
	if buffer.IsNil() {
		return core.ErrNilResource
	}
	target := buffer.Clone()
	stride, err := resources.ElementSize[T]()
	if err != nil {
		target.Reset()
		return err
	}

	err = us.Submit(metadata.JobTask{
		Name: target.Get().Name(),
		OnStart: func() error {
			typed, err := resources.NewTypedBuffer[T](target.Get(), target.Get().Size()/stride)
			if err != nil {
				return err
			}
			return typed.Write(index, values...)
		},
		OnComplete: func() {
			if done != nil {
				done(nil)
			}
		},
		OnFailure: func(err error) {
			if done != nil {
				done(err)
			}
		},
		OnCompletionCallback: func() {
			target.Reset()
		},
	})
	if err != nil {
		target.Reset()
	}
	return err
}
