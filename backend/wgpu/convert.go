// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpures"
)

// textureFormats maps gpures formats to WebGPU formats. Formats without a
// WebGPU equivalent are absent.
var textureFormats = map[gpures.Format]gputypes.TextureFormat{
	gpures.FormatR8Unorm:        gputypes.TextureFormatR8Unorm,
	gpures.FormatR8Snorm:        gputypes.TextureFormatR8Snorm,
	gpures.FormatR8Uint:         gputypes.TextureFormatR8Uint,
	gpures.FormatR8Sint:         gputypes.TextureFormatR8Sint,
	gpures.FormatRG8Unorm:       gputypes.TextureFormatRG8Unorm,
	gpures.FormatRGBA8Unorm:     gputypes.TextureFormatRGBA8Unorm,
	gpures.FormatRGBA8UnormSrgb: gputypes.TextureFormatRGBA8UnormSrgb,
	gpures.FormatRGBA8Uint:      gputypes.TextureFormatRGBA8Uint,
	gpures.FormatBGRA8Unorm:     gputypes.TextureFormatBGRA8Unorm,
	gpures.FormatBGRA8UnormSrgb: gputypes.TextureFormatBGRA8UnormSrgb,
	gpures.FormatR16Float:       gputypes.TextureFormatR16Float,
	gpures.FormatR16Uint:        gputypes.TextureFormatR16Uint,
	gpures.FormatRG16Float:      gputypes.TextureFormatRG16Float,
	gpures.FormatRGBA16Unorm:    gputypes.TextureFormatRGBA16Unorm,
	gpures.FormatRGBA16Float:    gputypes.TextureFormatRGBA16Float,
	gpures.FormatR32Float:       gputypes.TextureFormatR32Float,
	gpures.FormatR32Uint:        gputypes.TextureFormatR32Uint,
	gpures.FormatRG32Float:      gputypes.TextureFormatRG32Float,
	gpures.FormatRGBA32Float:    gputypes.TextureFormatRGBA32Float,
	gpures.FormatRGBA32Uint:     gputypes.TextureFormatRGBA32Uint,
	gpures.FormatRGB10A2Unorm:   gputypes.TextureFormatRGB10A2Unorm,
	gpures.FormatR11G11B10Float: gputypes.TextureFormatRG11B10Ufloat,
	gpures.FormatD16Unorm:       gputypes.TextureFormatDepth16Unorm,
	gpures.FormatD32Float:       gputypes.TextureFormatDepth32Float,
	gpures.FormatD24UnormS8Uint: gputypes.TextureFormatDepth24PlusStencil8,
	gpures.FormatD32FloatS8Uint: gputypes.TextureFormatDepth32FloatStencil8,
	gpures.FormatBC1Unorm:       gputypes.TextureFormatBC1RGBAUnorm,
	gpures.FormatBC3Unorm:       gputypes.TextureFormatBC3RGBAUnorm,
	gpures.FormatBC7Unorm:       gputypes.TextureFormatBC7RGBAUnorm,
}

// TextureFormat returns the WebGPU format for f.
func TextureFormat(f gpures.Format) (gputypes.TextureFormat, bool) {
	tf, ok := textureFormats[f]
	return tf, ok
}

// bufferUsage returns the WebGPU usage for a buffer. Host-visible memory
// follows the WebGPU mapping rules: upload buffers are MapWrite|CopySrc and
// readback buffers are MapRead|CopyDst.
func bufferUsage(u gpures.ResourceUsage, mem gpures.MemoryType) gputypes.BufferUsage {
	switch mem {
	case gpures.MemoryUpload:
		return gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	case gpures.MemoryReadBack:
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	usage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if u.Contains(gpures.UsageVertex) {
		usage |= gputypes.BufferUsageVertex
	}
	if u.Contains(gpures.UsageIndex) {
		usage |= gputypes.BufferUsageIndex
	}
	if u.Contains(gpures.UsageConstant) {
		usage |= gputypes.BufferUsageUniform
	}
	if u.Contains(gpures.UsageIndirectArgument) {
		usage |= gputypes.BufferUsageIndirect
	}
	if u&(gpures.UsageShaderResource|gpures.UsageUnorderedAccess|gpures.UsageStreamOutput) != 0 {
		usage |= gputypes.BufferUsageStorage
	}
	return usage
}

func textureUsage(u gpures.ResourceUsage) gputypes.TextureUsage {
	usage := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if u.Contains(gpures.UsageShaderResource) {
		usage |= gputypes.TextureUsageTextureBinding
	}
	if u.Contains(gpures.UsageUnorderedAccess) {
		usage |= gputypes.TextureUsageStorageBinding
	}
	if u&(gpures.UsageRenderTarget|gpures.UsageDepthStencil) != 0 {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	return usage
}

func textureDimension(t gpures.TextureType) gputypes.TextureDimension {
	switch t {
	case gpures.Texture1D:
		return gputypes.TextureDimension1D
	case gpures.Texture3D:
		return gputypes.TextureDimension3D
	default:
		return gputypes.TextureDimension2D
	}
}

// textureExtent returns the HAL extent of a texture. Cube faces are array
// layers.
func textureExtent(desc *gpures.NativeTextureDesc) hal.Extent3D {
	switch desc.Type {
	case gpures.Texture3D:
		return hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.Depth}
	case gpures.TextureCube:
		return hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.ArraySize * 6}
	default:
		return hal.Extent3D{Width: desc.Width, Height: max(desc.Height, 1), DepthOrArrayLayers: desc.ArraySize}
	}
}

// viewDimension picks the view dimension for a texture view. Cube views
// are only produced for shader-resource views over whole cubes.
func viewDimension(desc *gpures.NativeViewDesc) gputypes.TextureViewDimension {
	layers := desc.View.Subresources.LayerCount
	switch desc.TextureType {
	case gpures.Texture1D:
		return gputypes.TextureViewDimension1D
	case gpures.Texture3D:
		return gputypes.TextureViewDimension3D
	case gpures.TextureCube:
		if desc.View.Type == gpures.ViewShaderResource && layers%6 == 0 && desc.View.Subresources.BaseArrayLayer%6 == 0 {
			if layers == 6 {
				return gputypes.TextureViewDimensionCube
			}
			return gputypes.TextureViewDimensionCubeArray
		}
	}
	if layers > 1 {
		return gputypes.TextureViewDimension2DArray
	}
	return gputypes.TextureViewDimension2D
}

func viewAspect(desc *gpures.NativeViewDesc) gputypes.TextureAspect {
	if desc.View.Format.Info().IsDepthStencil() && desc.View.Type == gpures.ViewShaderResource {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

// formatStates narrows the default states of f to what the adapter reports
// for the matching WebGPU format.
func formatStates(f gpures.Format, caps hal.TextureFormatCapabilityFlags) gpures.StateSet {
	states := gpures.DefaultSupportedStates(f)
	if caps&hal.TextureFormatCapabilitySampled == 0 {
		states &^= gpures.StatesOf(gpures.StateShaderResource)
	}
	if caps&hal.TextureFormatCapabilityStorage == 0 {
		states &^= gpures.StatesOf(gpures.StateUnorderedAccess)
	}
	if caps&hal.TextureFormatCapabilityRenderAttachment == 0 {
		states &^= gpures.StatesOf(gpures.StateRenderTarget)
	}
	if caps&hal.TextureFormatCapabilityMultisampleResolve == 0 {
		states &^= gpures.StatesOf(gpures.StateResolveDestination)
	}
	return states
}
