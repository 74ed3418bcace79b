package core

import (
	"errors"
	"sync"
)

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed.
	/* Context usage:
	 * data := context.Data.(*ResizeEvent)
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// The configuration file was reloaded.
	/* Context usage:
	 * data := context.Data.(*config.Config)
	 */
	EVENT_CODE_CONFIG_RELOADED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

const DefaultEventQueueSize = 64

var ErrEventQueueFull = errors.New("event queue is full")

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type ResizeEvent struct {
	Width  uint32
	Height uint32
}

type FnOnEvent func(context EventContext)

// EventSystem queues events fired from any goroutine and delivers them on the
// goroutine that calls Dispatch, in firing order.
type EventSystem struct {
	mutex      sync.RWMutex
	registered map[SystemEventCode][]FnOnEvent
	queue      chan EventContext
	closed     bool
}

func NewEventSystem(queueSize int) *EventSystem {
	if queueSize <= 0 {
		queueSize = DefaultEventQueueSize
	}
	return &EventSystem{
		registered: make(map[SystemEventCode][]FnOnEvent),
		queue:      make(chan EventContext, queueSize),
	}
}

func (es *EventSystem) Register(code SystemEventCode, onEvent FnOnEvent) {
	es.mutex.Lock()
	defer es.mutex.Unlock()
	es.registered[code] = append(es.registered[code], onEvent)
}

// Fire queues the event without blocking.
func (es *EventSystem) Fire(context EventContext) error {
	es.mutex.RLock()
	defer es.mutex.RUnlock()
	if es.closed {
		return errors.New("event system is shut down")
	}
	select {
	case es.queue <- context:
		return nil
	default:
		return ErrEventQueueFull
	}
}

// Dispatch delivers every queued event and returns how many were delivered.
func (es *EventSystem) Dispatch() int {
	count := 0
	for {
		select {
		case context := <-es.queue:
			es.mutex.RLock()
			listeners := es.registered[context.Type]
			es.mutex.RUnlock()
			for _, onEvent := range listeners {
				onEvent(context)
			}
			count++
		default:
			return count
		}
	}
}

// Shutdown drops the listeners and rejects further events. Queued events are discarded.
func (es *EventSystem) Shutdown() error {
	es.mutex.Lock()
	defer es.mutex.Unlock()
	es.closed = true
	es.registered = make(map[SystemEventCode][]FnOnEvent)
	for {
		select {
		case <-es.queue:
		default:
			return nil
		}
	}
}
