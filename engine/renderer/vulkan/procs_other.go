//go:build !linux || !(amd64 || arm64)

package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
)

type deviceProcs struct{}

func loadDeviceProcs(vk.Device) (*deviceProcs, error) {
	return nil, fmt.Errorf("timeline semaphore entry points are not loaded on %s/%s", runtime.GOOS, runtime.GOARCH)
}

func (p *deviceProcs) waitSemaphore(vk.Semaphore, uint64, uint64) vk.Result {
	return vk.ErrorFeatureNotPresent
}

func (p *deviceProcs) signal(vk.Semaphore, uint64) vk.Result {
	return vk.ErrorFeatureNotPresent
}

func (p *deviceProcs) counter(vk.Semaphore) (uint64, vk.Result) {
	return 0, vk.ErrorFeatureNotPresent
}

func (p *deviceProcs) bufferDeviceAddress(vk.Buffer) uint64 {
	return 0
}
