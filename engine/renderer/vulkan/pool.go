package vulkan

import "sync"

type LockGroup string

const (
	SynchronizationManagement LockGroup = "synchronization_management"
	DescriptorManagement      LockGroup = "descriptor_management"
	QueueManagement           LockGroup = "queue_management"
)

// LockPool serializes calls into externally synchronized Vulkan objects, one
// mutex per group.
type LockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

// Get or create the mutex of a group
func (lp *LockPool) lock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if _, exists := lp.locks[group]; !exists {
		lp.locks[group] = &sync.Mutex{}
	}
	return lp.locks[group]
}

func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.lock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}
