package metadata

/** @brief Usage flags of a buffer. */
type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageTransferSrc
	BufferUsageTransferDst
	BufferUsageShaderDeviceAddress
)

/** @brief Where a buffer's memory lives. */
type MemoryLocation int

const (
	/** @brief Device local memory, only reachable through uploads. */
	MemoryLocationDevice MemoryLocation = iota
	/** @brief Host visible memory the CPU can write directly. */
	MemoryLocationHost
)

/**
 * @brief Describes a buffer to create.
 */
type BufferCreateInfo struct {
	/** @brief A debug name. Generated when empty. */
	Name string
	/** @brief The size of the buffer in bytes. Typed buffers compute it from the element count. */
	Size uint64
	/** @brief The number of elements of a typed buffer. */
	Count uint64
	Usage BufferUsage
	/** @brief The memory the buffer is allocated from. */
	Location MemoryLocation
}

/** @brief Supported image formats. */
type ImageFormat int

const (
	ImageFormatR8G8B8A8Unorm ImageFormat = iota
	ImageFormatR8G8B8A8Srgb
	ImageFormatR16G16B16A16Sfloat
	ImageFormatR32G32B32A32Sfloat
	ImageFormatD32Sfloat
)

/** @brief Usage flags of an image. */
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageTransferDst
)

/**
 * @brief Describes an image to create.
 */
type ImageCreateInfo struct {
	Name   string
	Width  uint32
	Height uint32
	/** @brief Number of array layers. 0 means 1. */
	Layers uint32
	/** @brief Number of mip levels. 0 means 1. */
	Levels uint32
	Format ImageFormat
	Usage  ImageUsage
	/** @brief The layout the image is bound with in the resource table. */
	Layout ImageLayout
}

/**
 * @brief Describes a view on an existing image. Zero counts select every
 * remaining level or layer.
 */
type ImageViewCreateInfo struct {
	Name       string
	BaseLevel  uint32
	LevelCount uint32
	BaseLayer  uint32
	LayerCount uint32
	Layout     ImageLayout
}

/**
 * @brief Describes an acceleration structure to create.
 */
type AccelerationStructureCreateInfo struct {
	Name string
	/** @brief The number of instances a top level structure holds. */
	InstanceCount uint32
}
