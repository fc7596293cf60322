// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"encoding/binary"
	"fmt"
	"image"
)

// PixelFormat is the channel layout of a Bitmap.
type PixelFormat uint8

const (
	PixelR PixelFormat = iota + 1
	PixelRG
	PixelRGB
	PixelRGBA
)

// String returns the string representation of the pixel format.
func (p PixelFormat) String() string {
	switch p {
	case PixelR:
		return "r"
	case PixelRG:
		return "rg"
	case PixelRGB:
		return "rgb"
	case PixelRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// ComponentType is the storage type of one channel of a Bitmap.
type ComponentType uint8

const (
	ComponentUnknown ComponentType = iota
	ComponentInt8
	ComponentInt16
	ComponentInt32
	ComponentUint8
	ComponentUint16
	ComponentUint32
	ComponentFloat16
	ComponentFloat32
)

// Size returns the size of one component in bytes.
func (c ComponentType) Size() int {
	switch c {
	case ComponentInt8, ComponentUint8:
		return 1
	case ComponentInt16, ComponentUint16, ComponentFloat16:
		return 2
	case ComponentInt32, ComponentUint32, ComponentFloat32:
		return 4
	default:
		return 0
	}
}

// String returns the string representation of the component type.
func (c ComponentType) String() string {
	switch c {
	case ComponentInt8:
		return "int8"
	case ComponentInt16:
		return "int16"
	case ComponentInt32:
		return "int32"
	case ComponentUint8:
		return "uint8"
	case ComponentUint16:
		return "uint16"
	case ComponentUint32:
		return "uint32"
	case ComponentFloat16:
		return "float16"
	case ComponentFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

// Bitmap is a host copy of one 2D subresource, tightly packed in RGB channel
// order (blue-first formats are swizzled on readback). Multi-byte components
// are little-endian.
type Bitmap struct {
	PixelFormat   PixelFormat
	ComponentType ComponentType
	SRGB          bool
	Width         uint32
	Height        uint32
	Data          []byte
}

// Stride returns the size of one row in bytes.
func (b *Bitmap) Stride() int {
	return int(b.Width) * int(b.PixelFormat) * b.ComponentType.Size()
}

// bitmapComponent maps a format to the component type of its readback.
func bitmapComponent(info FormatInfo) ComponentType {
	bits := info.ChannelBits[0]
	switch info.Type {
	case FormatTypeUnorm, FormatTypeUnormSrgb, FormatTypeUint:
		switch bits {
		case 8:
			return ComponentUint8
		case 16:
			return ComponentUint16
		case 32:
			return ComponentUint32
		}
	case FormatTypeSnorm, FormatTypeSint:
		switch bits {
		case 8:
			return ComponentInt8
		case 16:
			return ComponentInt16
		case 32:
			return ComponentInt32
		}
	case FormatTypeFloat:
		switch bits {
		case 16:
			return ComponentFloat16
		case 32:
			return ComponentFloat32
		}
	}
	return ComponentUnknown
}

// ToBitmap reads back subresource (mip, slice) of a single-sampled 2D
// texture. Compressed, depth-stencil, typeless and mixed-channel-width
// formats are rejected.
func (t *Texture) ToBitmap(mip, slice uint32) (*Bitmap, error) {
	const op = "Texture.ToBitmap"
	if t.destroyed {
		return nil, destroyedErr(op)
	}
	if t.desc.Type != Texture2D {
		return nil, capabilityErr(op, "only 2D textures can be read into a bitmap, got %s", t.desc.Type)
	}
	if t.desc.SampleCount != 1 {
		return nil, capabilityErr(op, "multisampled textures cannot be read into a bitmap")
	}
	info := t.desc.Format.Info()
	switch {
	case info.Compressed:
		return nil, capabilityErr(op, "compressed format %s", info.Name)
	case info.IsDepthStencil():
		return nil, capabilityErr(op, "depth-stencil format %s", info.Name)
	case info.IsTypeless():
		return nil, capabilityErr(op, "typeless format %s", info.Name)
	case !info.HasEqualChannelBits():
		return nil, capabilityErr(op, "format %s has channels of different widths", info.Name)
	}
	component := bitmapComponent(info)
	if component == ComponentUnknown {
		return nil, capabilityErr(op, "format %s has no bitmap component type", info.Name)
	}
	if mip >= t.desc.MipCount || slice >= t.LayerCount() {
		return nil, rangeErr(op, "subresource (mip %d, slice %d) out of (%d, %d)", mip, slice, t.desc.MipCount, t.LayerCount())
	}

	data, err := t.GetSubresourceData(t.SubresourceIndex(mip, slice))
	if err != nil {
		return nil, err
	}
	if info.BGR {
		swizzleBGR(data, int(info.ChannelCount), component.Size())
	}
	w, h, _ := t.MipDimensions(mip)
	return &Bitmap{
		PixelFormat:   PixelFormat(info.ChannelCount),
		ComponentType: component,
		SRGB:          info.Type == FormatTypeUnormSrgb,
		Width:         w,
		Height:        h,
		Data:          data,
	}, nil
}

// swizzleBGR swaps the first and third channel of every pixel in place.
func swizzleBGR(data []byte, channels, size int) {
	pixel := channels * size
	for i := 0; i+pixel <= len(data); i += pixel {
		for b := range size {
			data[i+b], data[i+2*size+b] = data[i+2*size+b], data[i+b]
		}
	}
}

// ToImage converts 8- and 16-bit unsigned R and RGBA bitmaps to an
// image.Image. Other layouts fail with ErrCapability.
func (b *Bitmap) ToImage() (image.Image, error) {
	const op = "Bitmap.ToImage"
	rect := image.Rect(0, 0, int(b.Width), int(b.Height))
	switch {
	case b.PixelFormat == PixelRGBA && b.ComponentType == ComponentUint8:
		img := image.NewNRGBA(rect)
		copy(img.Pix, b.Data)
		return img, nil
	case b.PixelFormat == PixelR && b.ComponentType == ComponentUint8:
		img := image.NewGray(rect)
		copy(img.Pix, b.Data)
		return img, nil
	case b.PixelFormat == PixelRGBA && b.ComponentType == ComponentUint16:
		img := image.NewNRGBA64(rect)
		swapEndian16(img.Pix, b.Data)
		return img, nil
	case b.PixelFormat == PixelR && b.ComponentType == ComponentUint16:
		img := image.NewGray16(rect)
		swapEndian16(img.Pix, b.Data)
		return img, nil
	}
	return nil, capabilityErr(op, "no image type for %s %s", b.PixelFormat, b.ComponentType)
}

// swapEndian16 copies little-endian 16-bit components into the big-endian
// layout used by the image package.
func swapEndian16(dst, src []byte) {
	for i := 0; i+1 < len(src) && i+1 < len(dst); i += 2 {
		binary.BigEndian.PutUint16(dst[i:], binary.LittleEndian.Uint16(src[i:]))
	}
}
