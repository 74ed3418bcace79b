package vulkan

import (
	"fmt"

	"github.com/charmbracelet/log"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/retina/engine/core"
)

// Device wraps a logical device. The device must have the timelineSemaphore
// feature and the descriptor indexing features used by the bindless set
// enabled; NewContext creates one that does.
type Device struct {
	Physical  vk.PhysicalDevice
	Logical   vk.Device
	Allocator *vk.AllocationCallbacks
	Locks     *LockPool

	procs  *deviceProcs
	logger *log.Logger
}

// NewDevice wraps a device created elsewhere and resolves the timeline
// semaphore entry points on it.
func NewDevice(physical vk.PhysicalDevice, logical vk.Device, allocator *vk.AllocationCallbacks) (*Device, error) {
	if physical == nil || logical == nil {
		return nil, fmt.Errorf("vulkan device: %w", core.ErrNilResource)
	}
	procs, err := loadDeviceProcs(logical)
	if err != nil {
		return nil, fmt.Errorf("vulkan device: %w", err)
	}
	return &Device{
		Physical:  physical,
		Logical:   logical,
		Allocator: allocator,
		Locks:     NewLockPool(),
		procs:     procs,
		logger:    core.SubsystemLogger("vulkan"),
	}, nil
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has
// every flag of propertyFlags, or -1.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.Physical, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	d.logger.Warn("Unable to find suitable memory type!")
	return -1
}

// WaitIdle blocks until the device finished all submitted work.
func (d *Device) WaitIdle() error {
	return d.Locks.SafeCall(QueueManagement, func() error {
		if res := vk.DeviceWaitIdle(d.Logical); res != vk.Success {
			return resultError("vkDeviceWaitIdle", res)
		}
		return nil
	})
}
