package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/retina/engine/core"
	"github.com/spaghettifunk/retina/engine/renderer/timeline"
)

// TimelineSemaphore is a VkSemaphore of type VK_SEMAPHORE_TYPE_TIMELINE.
type TimelineSemaphore struct {
	core.RefCount

	Handle vk.Semaphore

	name   string
	device *Device
}

func NewTimelineSemaphore(device *Device, info timeline.SemaphoreCreateInfo) (*TimelineSemaphore, error) {
	name := info.Name
	if name == "" {
		name = fmt.Sprintf("TimelineSemaphore_%s", uuid.NewString())
	}

	typeCreateInfo := vk.SemaphoreTypeCreateInfo{
		SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue:  info.InitialValue,
	}
	typeRef, _ := typeCreateInfo.PassRef()
	defer typeCreateInfo.Free()
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafe.Pointer(typeRef),
	}

	var handle vk.Semaphore
	err := device.Locks.SafeCall(SynchronizationManagement, func() error {
		if res := vk.CreateSemaphore(device.Logical, &semaphoreCreateInfo, device.Allocator, &handle); res != vk.Success {
			return resultError("vkCreateSemaphore", res)
		}
		return nil
	})
	if err != nil {
		core.LogError("failed to create timeline semaphore %s: %s", name, err)
		return nil, err
	}

	device.logger.Infof("Timeline semaphore (%s) initialized", name)
	return &TimelineSemaphore{
		Handle: handle,
		name:   name,
		device: device,
	}, nil
}

// NewTimelineSemaphoreFactory lets host/device timelines create their
// semaphores on device.
func NewTimelineSemaphoreFactory(device *Device) timeline.SemaphoreFactory {
	return func(info timeline.SemaphoreCreateInfo) (timeline.Semaphore, error) {
		s, err := NewTimelineSemaphore(device, info)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (ts *TimelineSemaphore) Name() string {
	return ts.name
}

func (ts *TimelineSemaphore) Counter() uint64 {
	value, res := ts.device.procs.counter(ts.Handle)
	if res != vk.Success {
		core.LogError("vkGetSemaphoreCounterValue (%s) - %s", ts.name, VulkanResultString(res, true))
		return 0
	}
	return value
}

func (ts *TimelineSemaphore) Wait(value uint64, timeout uint64) bool {
	result := ts.device.procs.waitSemaphore(ts.Handle, value, timeout)
	switch result {
	case vk.Success:
		return true
	case vk.Timeout:
		core.LogWarn("vkWaitSemaphores (%s) - Timed out waiting for %d", ts.name, value)
	case vk.ErrorDeviceLost:
		core.LogFatal("vkWaitSemaphores (%s) - VK_ERROR_DEVICE_LOST.", ts.name)
	default:
		core.LogError("vkWaitSemaphores (%s) - %s", ts.name, VulkanResultString(result, true))
	}
	return false
}

func (ts *TimelineSemaphore) Signal(value uint64) {
	if res := ts.device.procs.signal(ts.Handle, value); res != vk.Success {
		core.LogError("vkSignalSemaphore (%s) - %s", ts.name, VulkanResultString(res, true))
	}
}

func (ts *TimelineSemaphore) Destroy() {
	if ts.Handle != vk.NullSemaphore {
		_ = ts.device.Locks.SafeCall(SynchronizationManagement, func() error {
			vk.DestroySemaphore(ts.device.Logical, ts.Handle, ts.device.Allocator)
			return nil
		})
		ts.Handle = vk.NullSemaphore
	}
	ts.device.logger.Infof("Timeline semaphore (%s) destroyed", ts.name)
}
