package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/retina/engine/renderer/metadata"
)

func imageFormat(format metadata.ImageFormat) (vk.Format, error) {
	switch format {
	case metadata.ImageFormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm, nil
	case metadata.ImageFormatR8G8B8A8Srgb:
		return vk.FormatR8g8b8a8Srgb, nil
	case metadata.ImageFormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat, nil
	case metadata.ImageFormatR32G32B32A32Sfloat:
		return vk.FormatR32g32b32a32Sfloat, nil
	case metadata.ImageFormatD32Sfloat:
		return vk.FormatD32Sfloat, nil
	}
	return vk.FormatUndefined, fmt.Errorf("unsupported image format %d", format)
}

func imageAspect(format metadata.ImageFormat) vk.ImageAspectFlags {
	if format == metadata.ImageFormatD32Sfloat {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func imageUsage(usage metadata.ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if usage&metadata.ImageUsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if usage&metadata.ImageUsageStorage != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	if usage&metadata.ImageUsageColorAttachment != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if usage&metadata.ImageUsageTransferDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}

// bufferUsage always adds the device address bit, every buffer gets an address
// in the table's address buffer.
func bufferUsage(usage metadata.BufferUsage) vk.BufferUsageFlags {
	flags := vk.BufferUsageShaderDeviceAddressBit
	if usage&metadata.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if usage&metadata.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if usage&metadata.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}

func memoryPropertyFlags(location metadata.MemoryLocation) vk.MemoryPropertyFlags {
	if location == metadata.MemoryLocationHost {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

func samplerFilter(filter metadata.TextureFilter) vk.Filter {
	if filter == metadata.TextureFilterModeNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func samplerAddressMode(repeat metadata.TextureRepeat) vk.SamplerAddressMode {
	switch repeat {
	case metadata.TextureRepeatMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case metadata.TextureRepeatClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case metadata.TextureRepeatClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	default:
		return vk.SamplerAddressModeRepeat
	}
}

func samplerCreateInfo(info metadata.SamplerCreateInfo) vk.SamplerCreateInfo {
	createInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    samplerFilter(info.FilterMagnify),
		MinFilter:    samplerFilter(info.FilterMinify),
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: samplerAddressMode(info.RepeatU),
		AddressModeV: samplerAddressMode(info.RepeatV),
		AddressModeW: samplerAddressMode(info.RepeatW),
		CompareOp:    vk.CompareOpAlways,
		MaxLod:       vk.LodClampNone,
		BorderColor:  vk.BorderColorFloatOpaqueBlack,
	}
	if info.Anisotropy > 0 {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = info.Anisotropy
	}
	return createInfo
}
