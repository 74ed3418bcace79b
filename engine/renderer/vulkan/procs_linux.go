//go:build linux && (amd64 || arm64)

package vulkan

/*
#cgo LDFLAGS: -ldl

#include <dlfcn.h>
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>

// Layouts of the Vulkan 1.2 structs the bindings do not expose calls for.
// Non-dispatchable handles are 64-bit on the platforms this file builds on.
typedef struct {
	int32_t sType;
	const void* pNext;
	uint32_t flags;
	uint32_t semaphoreCount;
	const uint64_t* pSemaphores;
	const uint64_t* pValues;
} retinaSemaphoreWaitInfo;

typedef struct {
	int32_t sType;
	const void* pNext;
	uint64_t semaphore;
	uint64_t value;
} retinaSemaphoreSignalInfo;

typedef struct {
	int32_t sType;
	const void* pNext;
	uint64_t buffer;
} retinaBufferDeviceAddressInfo;

typedef void* (*retinaGetDeviceProcAddrFn)(void*, const char*);
typedef int32_t (*retinaWaitSemaphoresFn)(void*, const retinaSemaphoreWaitInfo*, uint64_t);
typedef int32_t (*retinaSignalSemaphoreFn)(void*, const retinaSemaphoreSignalInfo*);
typedef int32_t (*retinaGetSemaphoreCounterValueFn)(void*, uint64_t, uint64_t*);
typedef uint64_t (*retinaGetBufferDeviceAddressFn)(void*, const retinaBufferDeviceAddressInfo*);

static void* retinaLoadGetDeviceProcAddr(void) {
	void* lib = dlopen("libvulkan.so.1", RTLD_NOW | RTLD_LOCAL);
	if (lib == NULL) {
		lib = dlopen("libvulkan.so", RTLD_NOW | RTLD_LOCAL);
	}
	if (lib == NULL) {
		return NULL;
	}
	return dlsym(lib, "vkGetDeviceProcAddr");
}

static void* retinaGetDeviceProc(void* getDeviceProcAddr, void* device, const char* name) {
	return ((retinaGetDeviceProcAddrFn)getDeviceProcAddr)(device, name);
}

static int32_t retinaWaitSemaphore(void* fn, void* device, int32_t sType, uint64_t semaphore, uint64_t value, uint64_t timeout) {
	retinaSemaphoreWaitInfo info = {0};
	info.sType = sType;
	info.semaphoreCount = 1;
	info.pSemaphores = &semaphore;
	info.pValues = &value;
	return ((retinaWaitSemaphoresFn)fn)(device, &info, timeout);
}

static int32_t retinaSignalSemaphore(void* fn, void* device, int32_t sType, uint64_t semaphore, uint64_t value) {
	retinaSemaphoreSignalInfo info = {0};
	info.sType = sType;
	info.semaphore = semaphore;
	info.value = value;
	return ((retinaSignalSemaphoreFn)fn)(device, &info);
}

static int32_t retinaSemaphoreCounter(void* fn, void* device, uint64_t semaphore, uint64_t* value) {
	return ((retinaGetSemaphoreCounterValueFn)fn)(device, semaphore, value);
}

static uint64_t retinaBufferDeviceAddress(void* fn, void* device, int32_t sType, uint64_t buffer) {
	retinaBufferDeviceAddressInfo info = {0};
	info.sType = sType;
	info.buffer = buffer;
	return ((retinaGetBufferDeviceAddressFn)fn)(device, &info);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
)

var loader struct {
	once              sync.Once
	getDeviceProcAddr unsafe.Pointer
}

// deviceProcs are the device level entry points resolved through
// vkGetDeviceProcAddr.
type deviceProcs struct {
	device                   unsafe.Pointer
	waitSemaphores           unsafe.Pointer
	signalSemaphore          unsafe.Pointer
	getSemaphoreCounterValue unsafe.Pointer
	getBufferDeviceAddress   unsafe.Pointer
}

func loadDeviceProcs(device vk.Device) (*deviceProcs, error) {
	loader.once.Do(func() {
		loader.getDeviceProcAddr = C.retinaLoadGetDeviceProcAddr()
	})
	if loader.getDeviceProcAddr == nil {
		return nil, errors.New("vkGetDeviceProcAddr not found in libvulkan")
	}

	procs := &deviceProcs{device: unsafe.Pointer(device)}
	resolve := func(names ...string) (unsafe.Pointer, error) {
		for _, name := range names {
			cname := C.CString(name)
			fn := C.retinaGetDeviceProc(loader.getDeviceProcAddr, procs.device, cname)
			C.free(unsafe.Pointer(cname))
			if fn != nil {
				return fn, nil
			}
		}
		return nil, fmt.Errorf("device does not expose %s", names[0])
	}

	var err error
	if procs.waitSemaphores, err = resolve("vkWaitSemaphores", "vkWaitSemaphoresKHR"); err != nil {
		return nil, err
	}
	if procs.signalSemaphore, err = resolve("vkSignalSemaphore", "vkSignalSemaphoreKHR"); err != nil {
		return nil, err
	}
	if procs.getSemaphoreCounterValue, err = resolve("vkGetSemaphoreCounterValue", "vkGetSemaphoreCounterValueKHR"); err != nil {
		return nil, err
	}
	// only needed for device addresses, so a miss is not fatal
	procs.getBufferDeviceAddress, _ = resolve("vkGetBufferDeviceAddress", "vkGetBufferDeviceAddressKHR")
	return procs, nil
}

func handleValue(handle unsafe.Pointer) C.uint64_t {
	return C.uint64_t(uintptr(handle))
}

func (p *deviceProcs) waitSemaphore(semaphore vk.Semaphore, value, timeout uint64) vk.Result {
	return vk.Result(C.retinaWaitSemaphore(p.waitSemaphores, p.device,
		C.int32_t(vk.StructureTypeSemaphoreWaitInfo), handleValue(unsafe.Pointer(semaphore)), C.uint64_t(value), C.uint64_t(timeout)))
}

func (p *deviceProcs) signal(semaphore vk.Semaphore, value uint64) vk.Result {
	return vk.Result(C.retinaSignalSemaphore(p.signalSemaphore, p.device,
		C.int32_t(vk.StructureTypeSemaphoreSignalInfo), handleValue(unsafe.Pointer(semaphore)), C.uint64_t(value)))
}

func (p *deviceProcs) counter(semaphore vk.Semaphore) (uint64, vk.Result) {
	var value C.uint64_t
	res := C.retinaSemaphoreCounter(p.getSemaphoreCounterValue, p.device, handleValue(unsafe.Pointer(semaphore)), &value)
	return uint64(value), vk.Result(res)
}

func (p *deviceProcs) bufferDeviceAddress(buffer vk.Buffer) uint64 {
	if p.getBufferDeviceAddress == nil {
		return 0
	}
	return uint64(C.retinaBufferDeviceAddress(p.getBufferDeviceAddress, p.device,
		C.int32_t(vk.StructureTypeBufferDeviceAddressInfo), handleValue(unsafe.Pointer(buffer))))
}
