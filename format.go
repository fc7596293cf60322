// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import "fmt"

// Format is a texel or typed-buffer element format.
type Format uint16

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatR8Snorm
	FormatR8Uint
	FormatR8Sint
	FormatRG8Unorm
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatRGBA8Uint
	FormatRGBA8Typeless
	FormatBGRA8Unorm
	FormatBGRA8UnormSrgb
	FormatR16Float
	FormatR16Uint
	FormatRG16Float
	FormatRGBA16Unorm
	FormatRGBA16Float
	FormatR32Float
	FormatR32Uint
	FormatR32Typeless
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatRGBA32Uint
	FormatRGB10A2Unorm
	FormatR11G11B10Float
	FormatD16Unorm
	FormatD32Float
	FormatD24UnormS8Uint
	FormatD32FloatS8Uint
	FormatBC1Unorm
	FormatBC3Unorm
	FormatBC7Unorm

	formatCount
)

// FormatType is the numeric interpretation of a format's channels.
type FormatType uint8

const (
	FormatTypeUnknown FormatType = iota
	FormatTypeTypeless
	FormatTypeFloat
	FormatTypeUnorm
	FormatTypeUnormSrgb
	FormatTypeSnorm
	FormatTypeUint
	FormatTypeSint
)

// FormatInfo describes the memory layout of a format.
type FormatInfo struct {
	Format        Format
	Name          string
	Type          FormatType
	BytesPerBlock uint32
	ChannelCount  uint32
	ChannelBits   [4]uint32
	BlockWidth    uint32
	BlockHeight   uint32
	Depth         bool
	Stencil       bool
	Compressed    bool
	// BGR reports a blue-first channel order.
	BGR bool
}

// IsDepthStencil reports whether the format has a depth or stencil aspect.
func (fi FormatInfo) IsDepthStencil() bool { return fi.Depth || fi.Stencil }

// IsTypeless reports whether the format has no numeric interpretation.
func (fi FormatInfo) IsTypeless() bool { return fi.Type == FormatTypeTypeless }

// HasEqualChannelBits reports whether every channel has the same bit width.
func (fi FormatInfo) HasEqualChannelBits() bool {
	for i := uint32(1); i < fi.ChannelCount; i++ {
		if fi.ChannelBits[i] != fi.ChannelBits[0] {
			return false
		}
	}
	return true
}

func color(f Format, name string, t FormatType, bytes uint32, bits ...uint32) FormatInfo {
	fi := FormatInfo{
		Format:        f,
		Name:          name,
		Type:          t,
		BytesPerBlock: bytes,
		ChannelCount:  uint32(len(bits)), //nolint:gosec // G115: at most 4 channels
		BlockWidth:    1,
		BlockHeight:   1,
	}
	copy(fi.ChannelBits[:], bits)
	return fi
}

func compressed(f Format, name string, bytes, channels uint32) FormatInfo {
	return FormatInfo{
		Format:        f,
		Name:          name,
		Type:          FormatTypeUnorm,
		BytesPerBlock: bytes,
		ChannelCount:  channels,
		BlockWidth:    4,
		BlockHeight:   4,
		Compressed:    true,
	}
}

var formatInfos = [formatCount]FormatInfo{
	FormatUndefined:      {Format: FormatUndefined, Name: "undefined", BlockWidth: 1, BlockHeight: 1},
	FormatR8Unorm:        color(FormatR8Unorm, "r8_unorm", FormatTypeUnorm, 1, 8),
	FormatR8Snorm:        color(FormatR8Snorm, "r8_snorm", FormatTypeSnorm, 1, 8),
	FormatR8Uint:         color(FormatR8Uint, "r8_uint", FormatTypeUint, 1, 8),
	FormatR8Sint:         color(FormatR8Sint, "r8_sint", FormatTypeSint, 1, 8),
	FormatRG8Unorm:       color(FormatRG8Unorm, "rg8_unorm", FormatTypeUnorm, 2, 8, 8),
	FormatRGBA8Unorm:     color(FormatRGBA8Unorm, "rgba8_unorm", FormatTypeUnorm, 4, 8, 8, 8, 8),
	FormatRGBA8UnormSrgb: color(FormatRGBA8UnormSrgb, "rgba8_unorm_srgb", FormatTypeUnormSrgb, 4, 8, 8, 8, 8),
	FormatRGBA8Uint:      color(FormatRGBA8Uint, "rgba8_uint", FormatTypeUint, 4, 8, 8, 8, 8),
	FormatRGBA8Typeless:  color(FormatRGBA8Typeless, "rgba8_typeless", FormatTypeTypeless, 4, 8, 8, 8, 8),
	FormatBGRA8Unorm:     withBGR(color(FormatBGRA8Unorm, "bgra8_unorm", FormatTypeUnorm, 4, 8, 8, 8, 8)),
	FormatBGRA8UnormSrgb: withBGR(color(FormatBGRA8UnormSrgb, "bgra8_unorm_srgb", FormatTypeUnormSrgb, 4, 8, 8, 8, 8)),
	FormatR16Float:       color(FormatR16Float, "r16_float", FormatTypeFloat, 2, 16),
	FormatR16Uint:        color(FormatR16Uint, "r16_uint", FormatTypeUint, 2, 16),
	FormatRG16Float:      color(FormatRG16Float, "rg16_float", FormatTypeFloat, 4, 16, 16),
	FormatRGBA16Unorm:    color(FormatRGBA16Unorm, "rgba16_unorm", FormatTypeUnorm, 8, 16, 16, 16, 16),
	FormatRGBA16Float:    color(FormatRGBA16Float, "rgba16_float", FormatTypeFloat, 8, 16, 16, 16, 16),
	FormatR32Float:       color(FormatR32Float, "r32_float", FormatTypeFloat, 4, 32),
	FormatR32Uint:        color(FormatR32Uint, "r32_uint", FormatTypeUint, 4, 32),
	FormatR32Typeless:    color(FormatR32Typeless, "r32_typeless", FormatTypeTypeless, 4, 32),
	FormatRG32Float:      color(FormatRG32Float, "rg32_float", FormatTypeFloat, 8, 32, 32),
	FormatRGB32Float:     color(FormatRGB32Float, "rgb32_float", FormatTypeFloat, 12, 32, 32, 32),
	FormatRGBA32Float:    color(FormatRGBA32Float, "rgba32_float", FormatTypeFloat, 16, 32, 32, 32, 32),
	FormatRGBA32Uint:     color(FormatRGBA32Uint, "rgba32_uint", FormatTypeUint, 16, 32, 32, 32, 32),
	FormatRGB10A2Unorm:   color(FormatRGB10A2Unorm, "rgb10a2_unorm", FormatTypeUnorm, 4, 10, 10, 10, 2),
	FormatR11G11B10Float: color(FormatR11G11B10Float, "r11g11b10_float", FormatTypeFloat, 4, 11, 11, 10),
	FormatD16Unorm:       withDepth(color(FormatD16Unorm, "d16_unorm", FormatTypeUnorm, 2, 16), false),
	FormatD32Float:       withDepth(color(FormatD32Float, "d32_float", FormatTypeFloat, 4, 32), false),
	FormatD24UnormS8Uint: withDepth(color(FormatD24UnormS8Uint, "d24_unorm_s8_uint", FormatTypeUnorm, 4, 24, 8), true),
	FormatD32FloatS8Uint: withDepth(color(FormatD32FloatS8Uint, "d32_float_s8_uint", FormatTypeFloat, 8, 32, 8), true),
	FormatBC1Unorm:       compressed(FormatBC1Unorm, "bc1_unorm", 8, 4),
	FormatBC3Unorm:       compressed(FormatBC3Unorm, "bc3_unorm", 16, 4),
	FormatBC7Unorm:       compressed(FormatBC7Unorm, "bc7_unorm", 16, 4),
}

func withBGR(fi FormatInfo) FormatInfo {
	fi.BGR = true
	return fi
}

func withDepth(fi FormatInfo, stencil bool) FormatInfo {
	fi.Depth = true
	fi.Stencil = stencil
	return fi
}

// Info returns the layout description of the format.
func (f Format) Info() FormatInfo {
	if f < formatCount {
		return formatInfos[f]
	}
	return formatInfos[FormatUndefined]
}

// String returns the format name.
func (f Format) String() string {
	if f < formatCount {
		return formatInfos[f].Name
	}
	return fmt.Sprintf("Unknown(%d)", int(f))
}

// DefaultSupportedStates returns the states a typical desktop device supports
// for textures of format f. Backends without a capability query use it.
func DefaultSupportedStates(f Format) StateSet {
	fi := f.Info()
	if f == FormatUndefined || f >= formatCount {
		return 0
	}
	set := StatesOf(StateUndefined, StateGeneral, StateCopySource, StateCopyDestination)
	switch {
	case fi.IsTypeless():
		return set
	case fi.Compressed:
		return set.With(StateShaderResource)
	case fi.IsDepthStencil():
		return set.With(StateDepthRead).With(StateDepthWrite).With(StateShaderResource)
	}
	set = set.With(StateShaderResource).With(StateResolveSource).With(StateResolveDestination)
	if f != FormatRGB32Float && fi.Type != FormatTypeSnorm {
		set = set.With(StateRenderTarget)
	}
	if fi.Type != FormatTypeUnormSrgb && !fi.BGR && f != FormatRGB32Float {
		set = set.With(StateUnorderedAccess)
	}
	if f == FormatRGBA8Unorm || f == FormatBGRA8Unorm || f == FormatRGBA8UnormSrgb || f == FormatBGRA8UnormSrgb {
		set = set.With(StatePresent)
	}
	return set
}
