package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/charmbracelet/log"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/retina/engine/core"
)

type ContextConfig struct {
	ApplicationName string
	// Validation enables VK_LAYER_KHRONOS_validation. The layer must be installed.
	Validation bool
	Allocator  *vk.AllocationCallbacks
	Logger     *log.Logger
}

// Context owns the instance, the logical device and the single queue the
// bindless resources are used from. It needs no surface.
type Context struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Device    *Device

	Queue            vk.Queue
	QueueFamilyIndex uint32
	Properties       vk.PhysicalDeviceProperties

	logger *log.Logger
}

// NewContext loads libvulkan, creates a Vulkan 1.2 instance and a device with
// timeline semaphores, descriptor indexing and buffer device addresses enabled.
func NewContext(config ContextConfig) (*Context, error) {
	if config.Logger == nil {
		config.Logger = core.SubsystemLogger("vulkan")
	}
	if config.ApplicationName == "" {
		config.ApplicationName = "retina"
	}

	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("failed to load the vulkan library: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	c := &Context{
		Allocator: config.Allocator,
		logger:    config.Logger,
	}
	if err := c.createInstance(config); err != nil {
		return nil, err
	}
	physical, err := c.selectPhysicalDevice()
	if err != nil {
		c.Destroy()
		return nil, err
	}
	if err := c.createDevice(physical); err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

func (c *Context) createInstance(config ContextConfig) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 2, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   VulkanSafeString(config.ApplicationName),
		PEngineName:        VulkanSafeString("Retina"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	layers := []string{}
	if config.Validation {
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		if err := requireLayers(layers, c.logger); err != nil {
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, c.Allocator, &c.Instance); res != vk.Success {
		return fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
	}
	if err := vk.InitInstance(c.Instance); err != nil {
		return err
	}
	c.logger.Info("Vulkan Instance created.")
	return nil
}

func requireLayers(required []string, logger *log.Logger) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}

	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			end := FindFirstZeroInByteArray(available[i].LayerName[:])
			if name == string(available[i].LayerName[:end]) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
		logger.Infof("Found layer %s", name)
	}
	return nil
}

// selectPhysicalDevice picks the first Vulkan 1.2 device with a compute queue,
// preferring discrete GPUs.
func (c *Context) selectPhysicalDevice() (vk.PhysicalDevice, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(c.Instance, &count, nil); res != vk.Success {
		return nil, resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		return nil, errors.New("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(c.Instance, &count, devices); res != vk.Success {
		return nil, resultError("vkEnumeratePhysicalDevices", res)
	}

	var selected vk.PhysicalDevice
	for _, device := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()

		name := vk.ToString(properties.DeviceName[:])
		version := vk.Version(properties.ApiVersion)
		if version.Major() == 1 && version.Minor() < 2 {
			c.logger.Infof("Device %s only supports Vulkan %s. Skipping.", name, version)
			continue
		}
		family, ok := computeQueueFamily(device)
		if !ok {
			c.logger.Infof("Device %s has no compute queue. Skipping.", name)
			continue
		}
		if selected != nil && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			continue
		}
		selected = device
		c.QueueFamilyIndex = family
		c.Properties = properties
		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}
	if selected == nil {
		return nil, errors.New("no physical devices were found which meet the requirements")
	}

	version := vk.Version(c.Properties.ApiVersion)
	c.logger.Infof("Selected device: '%s' (Vulkan %d.%d.%d)",
		vk.ToString(c.Properties.DeviceName[:]), version.Major(), version.Minor(), version.Patch())
	return selected, nil
}

func computeQueueFamily(device vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)
	for i := range families {
		families[i].Deref()
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueComputeBit != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

func (c *Context) createDevice(physical vk.PhysicalDevice) error {
	// vkCreateDevice fails with VK_ERROR_FEATURE_NOT_PRESENT when one of these
	// is missing.
	features := vk.PhysicalDeviceVulkan12Features{
		SType:              vk.StructureTypePhysicalDeviceVulkan12Features,
		TimelineSemaphore:  vk.True,
		DescriptorIndexing: vk.True,
		DescriptorBindingSampledImageUpdateAfterBind:  vk.True,
		DescriptorBindingStorageImageUpdateAfterBind:  vk.True,
		DescriptorBindingStorageBufferUpdateAfterBind: vk.True,
		DescriptorBindingPartiallyBound:               vk.True,
		RuntimeDescriptorArray:                        vk.True,
		BufferDeviceAddress:                           vk.True,
	}
	featuresRef, _ := features.PassRef()
	defer features.Free()

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: c.QueueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		PNext:                unsafe.Pointer(featuresRef),
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),
		PQueueCreateInfos:    queueCreateInfos,
		PEnabledFeatures:     []vk.PhysicalDeviceFeatures{{SamplerAnisotropy: vk.True}},
	}

	var logical vk.Device
	if res := vk.CreateDevice(physical, &deviceCreateInfo, c.Allocator, &logical); res != vk.Success {
		return resultError("vkCreateDevice", res)
	}
	c.logger.Info("Logical device created.")

	vk.GetDeviceQueue(logical, c.QueueFamilyIndex, 0, &c.Queue)

	device, err := NewDevice(physical, logical, c.Allocator)
	if err != nil {
		vk.DestroyDevice(logical, c.Allocator)
		return err
	}
	c.Device = device
	return nil
}

// Destroy waits for the device and tears down the device and instance.
func (c *Context) Destroy() {
	if c.Device != nil {
		if err := c.Device.WaitIdle(); err != nil {
			c.logger.Error("failed to wait for the device", "err", err)
		}
		vk.DestroyDevice(c.Device.Logical, c.Allocator)
		c.Device = nil
	}
	if c.Instance != nil {
		vk.DestroyInstance(c.Instance, c.Allocator)
		c.Instance = nil
	}
	c.logger.Info("Vulkan context destroyed.")
}
