package resources

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/retina/engine/core"
)

type deletionPacket struct {
	// retireAt is the device timeline value after which the packet runs.
	retireAt uint64
	// timeToLive counts ticks down instead when non-zero.
	timeToLive uint64
	deletion   func()
}

// DeletionQueue defers destruction of objects that in-flight GPU work may
// still reference.
type DeletionQueue struct {
	mutex   sync.Mutex
	packets []deletionPacket
	logger  *log.Logger
}

func NewDeletionQueue(logger *log.Logger) *DeletionQueue {
	if logger == nil {
		logger = core.SubsystemLogger("deletion")
	}
	return &DeletionQueue{logger: logger}
}

// Enqueue runs deletion once the device timeline reaches retireAt.
func (dq *DeletionQueue) Enqueue(retireAt uint64, deletion func()) {
	dq.mutex.Lock()
	defer dq.mutex.Unlock()
	dq.packets = append(dq.packets, deletionPacket{retireAt: retireAt, deletion: deletion})
}

// EnqueueTTL runs deletion on the ttl-th Tick from now. A ttl of 0 runs it on
// the next Tick.
func (dq *DeletionQueue) EnqueueTTL(ttl uint64, deletion func()) {
	dq.mutex.Lock()
	defer dq.mutex.Unlock()
	dq.packets = append(dq.packets, deletionPacket{timeToLive: max(ttl, 1), deletion: deletion})
}

// Tick runs every packet that retired at deviceValue and returns how many ran.
func (dq *DeletionQueue) Tick(deviceValue uint64) int {
	dq.mutex.Lock()
	var due []func()
	kept := dq.packets[:0]
	for _, p := range dq.packets {
		if p.timeToLive > 0 {
			p.timeToLive--
			if p.timeToLive == 0 {
				due = append(due, p.deletion)
				continue
			}
		} else if deviceValue >= p.retireAt {
			due = append(due, p.deletion)
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(dq.packets); i++ {
		dq.packets[i] = deletionPacket{}
	}
	dq.packets = kept
	dq.mutex.Unlock()

	for _, fn := range due {
		fn()
	}
	if len(due) > 0 {
		dq.logger.Debugf("Retired %d deferred deletions at device value %d", len(due), deviceValue)
	}
	return len(due)
}

// Flush runs every packet regardless of the device timeline. Callers wait for
// the device to go idle first.
func (dq *DeletionQueue) Flush() int {
	dq.mutex.Lock()
	packets := dq.packets
	dq.packets = nil
	dq.mutex.Unlock()

	for _, p := range packets {
		p.deletion()
	}
	return len(packets)
}

func (dq *DeletionQueue) Len() int {
	dq.mutex.Lock()
	defer dq.mutex.Unlock()
	return len(dq.packets)
}
