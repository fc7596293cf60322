// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"fmt"
	"math/bits"
)

// TextureType is the dimensionality of a texture.
type TextureType uint8

const (
	// TextureTypeUnspecified infers the type from the nonzero dimensions.
	TextureTypeUnspecified TextureType = iota
	Texture1D
	Texture2D
	Texture3D
	// TextureCube is a 2D texture with six layers per array element.
	TextureCube
)

// String returns the string representation of the texture type.
func (t TextureType) String() string {
	switch t {
	case TextureTypeUnspecified:
		return "unspecified"
	case Texture1D:
		return "texture_1d"
	case Texture2D:
		return "texture_2d"
	case Texture3D:
		return "texture_3d"
	case TextureCube:
		return "texture_cube"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// TextureDesc describes a texture.
//
// Zero dimensions are clamped to 1 after the type has been resolved. A zero
// MipCount requests a full mip chain; zero ArraySize and SampleCount mean 1.
type TextureDesc struct {
	Label        string
	Type         TextureType
	Format       Format
	Width        uint32
	Height       uint32
	Depth        uint32
	ArraySize    uint32
	MipCount     uint32
	SampleCount  uint32
	Usage        ResourceUsage
	MemoryType   MemoryType
	InitialState ResourceState
	// Data, if set, holds every subresource in index order, each tightly
	// packed (no row padding).
	Data []byte
}

// Texture is a multi-dimensional image resource made of mip levels and
// array layers.
type Texture struct {
	resource

	desc TextureDesc
}

var _ Resource = (*Texture)(nil)

// SubresourceLayout is the host memory layout of one subresource.
type SubresourceLayout struct {
	// RowSize is the unpadded size of one row of blocks in bytes.
	RowSize uint64
	// RowPitch is RowSize padded to the device row alignment.
	RowPitch uint64
	// RowCount is the number of block rows.
	RowCount uint32
	// Depth is the number of slices of a 3D subresource, 1 otherwise.
	Depth uint32
}

// TotalSize returns the padded size of the subresource.
func (l SubresourceLayout) TotalSize() uint64 {
	return l.RowPitch * uint64(l.RowCount) * uint64(l.Depth)
}

// TightSize returns the unpadded size of the subresource.
func (l SubresourceLayout) TightSize() uint64 {
	return l.RowSize * uint64(l.RowCount) * uint64(l.Depth)
}

// MaxMipCount returns floor(log2(max(w, h, d))) + 1.
func MaxMipCount(w, h, d uint32) uint32 {
	m := max(w, h, d, 1)
	return uint32(bits.Len32(m))
}

// inferTextureType picks the type from the nonzero dimensions, or checks a
// supplied type against them.
func inferTextureType(desc *TextureDesc) (TextureType, error) {
	const op = "CreateTexture"
	w, h, d := desc.Width != 0, desc.Height != 0, desc.Depth != 0
	if desc.Type == TextureTypeUnspecified {
		switch {
		case w && h && d:
			return Texture3D, nil
		case w && h && !d:
			return Texture2D, nil
		case w && !h && !d:
			return Texture1D, nil
		default:
			return 0, configErr(op, "cannot infer texture type from dimensions %dx%dx%d",
				desc.Width, desc.Height, desc.Depth)
		}
	}
	var ok bool
	switch desc.Type {
	case Texture1D:
		ok = w && !h && !d
	case Texture2D:
		ok = w && h && !d
	case Texture3D:
		ok = w && h && d
	case TextureCube:
		ok = w && h && !d && desc.Width == desc.Height
	default:
		return 0, configErr(op, "invalid texture type %s", desc.Type)
	}
	if !ok {
		return 0, configErr(op, "dimensions %dx%dx%d do not match %s",
			desc.Width, desc.Height, desc.Depth, desc.Type)
	}
	return desc.Type, nil
}

// resolveTextureDesc validates desc and fills in every defaulted field.
func resolveTextureDesc(desc TextureDesc, supported StateSet) (TextureDesc, error) {
	const op = "CreateTexture"
	if desc.Format == FormatUndefined || desc.Format >= formatCount {
		return desc, configErr(op, "invalid format %s", desc.Format)
	}
	typ, err := inferTextureType(&desc)
	if err != nil {
		return desc, err
	}
	desc.Type = typ
	desc.Width = max(desc.Width, 1)
	desc.Height = max(desc.Height, 1)
	desc.Depth = max(desc.Depth, 1)
	desc.ArraySize = max(desc.ArraySize, 1)
	desc.SampleCount = max(desc.SampleCount, 1)

	if typ == Texture3D && desc.ArraySize > 1 {
		return desc, configErr(op, "3D textures cannot be arrays (array size %d)", desc.ArraySize)
	}
	if bits.OnesCount32(desc.SampleCount) != 1 {
		return desc, configErr(op, "sample count %d is not a power of two", desc.SampleCount)
	}

	limit := MaxMipCount(desc.Width, desc.Height, desc.Depth)
	if desc.MipCount == 0 {
		desc.MipCount = limit
	}
	if desc.MipCount > limit {
		return desc, configErr(op, "mip count %d exceeds %d for %dx%dx%d",
			desc.MipCount, limit, desc.Width, desc.Height, desc.Depth)
	}
	if desc.SampleCount > 1 && desc.MipCount > 1 {
		return desc, configErr(op, "multisampled textures cannot have mips")
	}

	var missing []ResourceState
	for _, s := range desc.Usage.states() {
		if !supported.Has(s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return desc, &Error{
			Kind:   KindCapability,
			Op:     op,
			Detail: fmt.Sprintf("usage %s not supported by format %s", desc.Usage, desc.Format),
			Cause:  &UnsupportedStatesError{Format: desc.Format, States: missing},
		}
	}
	return desc, nil
}

// CreateTexture creates a texture and uploads desc.Data when present.
func (d *Device) CreateTexture(desc TextureDesc) (*Texture, error) {
	const op = "CreateTexture"
	if d.closed {
		return nil, destroyedErr(op)
	}
	desc, err := resolveTextureDesc(desc, d.backend.SupportedStates(desc.Format))
	if err != nil {
		return nil, err
	}

	t := &Texture{desc: desc}
	t.init(t, d, ResourceTypeTexture, desc.Label, desc.Usage, desc.MemoryType, desc.InitialState)
	if len(desc.Data) != 0 {
		if want := t.tightSize(); uint64(len(desc.Data)) != want {
			return nil, configErr(op, "initial data is %d bytes, texture needs %d", len(desc.Data), want)
		}
	}

	native, err := d.backend.CreateTexture(&NativeTextureDesc{
		Label:       desc.Label,
		Type:        desc.Type,
		Format:      desc.Format,
		Width:       desc.Width,
		Height:      desc.Height,
		Depth:       desc.Depth,
		ArraySize:   desc.ArraySize,
		MipCount:    desc.MipCount,
		SampleCount: desc.SampleCount,
		Usage:       desc.Usage,
		MemoryType:  desc.MemoryType,
	})
	if err != nil {
		return nil, backendErr(op, err)
	}
	t.native = native

	if len(desc.Data) != 0 {
		data := desc.Data
		for i := range t.SubresourceCount() {
			n := t.SubresourceLayout(i).TightSize()
			if err := t.SetSubresourceData(i, data[:n]); err != nil {
				d.backend.Release(native)
				return nil, err
			}
			data = data[n:]
		}
	}
	t.desc.Data = nil

	d.track(ResourceTypeTexture, t.MemoryUsage())
	d.logger().Debug("gpures: texture created",
		"label", desc.Label,
		"type", desc.Type,
		"format", desc.Format,
		"size", fmt.Sprintf("%dx%dx%d", desc.Width, desc.Height, desc.Depth),
		"mips", desc.MipCount,
		"layers", t.LayerCount())
	return t, nil
}

// Desc returns the resolved texture description.
func (t *Texture) Desc() TextureDesc { return t.desc }

// TextureType returns the texture dimensionality.
func (t *Texture) TextureType() TextureType { return t.desc.Type }

// Format returns the texel format.
func (t *Texture) Format() Format { return t.desc.Format }

// Width returns the width of mip 0.
func (t *Texture) Width() uint32 { return t.desc.Width }

// Height returns the height of mip 0.
func (t *Texture) Height() uint32 { return t.desc.Height }

// Depth returns the depth of mip 0.
func (t *Texture) Depth() uint32 { return t.desc.Depth }

// MipCount returns the number of mip levels.
func (t *Texture) MipCount() uint32 { return t.desc.MipCount }

// ArraySize returns the number of array elements.
func (t *Texture) ArraySize() uint32 { return t.desc.ArraySize }

// SampleCount returns the number of samples per texel.
func (t *Texture) SampleCount() uint32 { return t.desc.SampleCount }

// LayerCount returns the number of array layers; each cube array element
// counts six.
func (t *Texture) LayerCount() uint32 {
	if t.desc.Type == TextureCube {
		return t.desc.ArraySize * 6
	}
	return t.desc.ArraySize
}

// SubresourceCount returns MipCount * LayerCount.
func (t *Texture) SubresourceCount() uint32 {
	return t.desc.MipCount * t.LayerCount()
}

// SubresourceIndex returns mip + slice*MipCount.
func (t *Texture) SubresourceIndex(mip, slice uint32) uint32 {
	return mip + slice*t.desc.MipCount
}

// SubresourceMip returns the mip level of a subresource index.
func (t *Texture) SubresourceMip(index uint32) uint32 {
	return index % t.desc.MipCount
}

// SubresourceSlice returns the array layer of a subresource index.
func (t *Texture) SubresourceSlice(index uint32) uint32 {
	return index / t.desc.MipCount
}

// MipDimensions returns the size of mip level mip, clamped to 1.
func (t *Texture) MipDimensions(mip uint32) (width, height, depth uint32) {
	width = max(t.desc.Width>>mip, 1)
	height = max(t.desc.Height>>mip, 1)
	depth = max(t.desc.Depth>>mip, 1)
	return width, height, depth
}

// SubresourceLayout returns the host layout of subresource index, with rows
// padded to the device's texture row alignment.
func (t *Texture) SubresourceLayout(index uint32) SubresourceLayout {
	info := t.desc.Format.Info()
	w, h, d := t.MipDimensions(t.SubresourceMip(index))
	bw, bh := max(info.BlockWidth, 1), max(info.BlockHeight, 1)
	rowSize := uint64((w+bw-1)/bw) * uint64(info.BytesPerBlock)
	align := uint64(t.device.limits.TextureRowAlignment)
	return SubresourceLayout{
		RowSize:  rowSize,
		RowPitch: (rowSize + align - 1) / align * align,
		RowCount: (h + bh - 1) / bh,
		Depth:    d,
	}
}

// tightSize returns the unpadded size of every subresource together.
func (t *Texture) tightSize() uint64 {
	var n uint64
	for i := range t.SubresourceCount() {
		n += t.SubresourceLayout(i).TightSize()
	}
	return n
}

// MemoryUsage reports the unpadded size of every subresource times the
// sample count.
func (t *Texture) MemoryUsage() MemoryUsage {
	return usageFor(t.memoryType, t.tightSize()*uint64(t.desc.SampleCount))
}

func (t *Texture) checkSubresource(op string, index uint32) error {
	if index >= t.SubresourceCount() {
		return rangeErr(op, "subresource %d out of %d", index, t.SubresourceCount())
	}
	return nil
}

// SetSubresourceData uploads one subresource from tightly packed data.
func (t *Texture) SetSubresourceData(index uint32, data []byte) error {
	const op = "Texture.SetSubresourceData"
	if t.destroyed {
		return destroyedErr(op)
	}
	if err := t.checkSubresource(op, index); err != nil {
		return err
	}
	layout := t.SubresourceLayout(index)
	if uint64(len(data)) != layout.TightSize() {
		return rangeErr(op, "data is %d bytes, subresource %d needs %d", len(data), index, layout.TightSize())
	}
	padded := padRows(data, layout)
	err := t.device.backend.WriteTexture(t.native, t.SubresourceMip(index), t.SubresourceSlice(index), layout, padded)
	return backendErr(op, err)
}

// GetSubresourceData reads one subresource back, tightly packed.
func (t *Texture) GetSubresourceData(index uint32) ([]byte, error) {
	const op = "Texture.GetSubresourceData"
	if t.destroyed {
		return nil, destroyedErr(op)
	}
	if err := t.checkSubresource(op, index); err != nil {
		return nil, err
	}
	layout := t.SubresourceLayout(index)
	padded, err := t.device.backend.ReadTexture(t.native, t.SubresourceMip(index), t.SubresourceSlice(index), layout)
	if err != nil {
		return nil, backendErr(op, err)
	}
	if uint64(len(padded)) < layout.TotalSize() {
		return nil, backendErr(op, fmt.Errorf("read %d bytes, want %d", len(padded), layout.TotalSize()))
	}
	return stripRows(padded, layout), nil
}

// padRows spreads tightly packed rows to RowPitch.
func padRows(data []byte, l SubresourceLayout) []byte {
	if l.RowPitch == l.RowSize {
		return data
	}
	rows := int(l.RowCount) * int(l.Depth)
	out := make([]byte, l.TotalSize())
	for r := range rows {
		copy(out[uint64(r)*l.RowPitch:], data[uint64(r)*l.RowSize:uint64(r+1)*l.RowSize])
	}
	return out
}

// stripRows packs RowPitch-spaced rows tightly.
func stripRows(data []byte, l SubresourceLayout) []byte {
	rows := int(l.RowCount) * int(l.Depth)
	out := make([]byte, l.TightSize())
	for r := range rows {
		src := uint64(r) * l.RowPitch
		copy(out[uint64(r)*l.RowSize:], data[src:src+l.RowSize])
	}
	return out
}

// resolveView replaces the sentinels of desc with concrete values.
func (t *Texture) resolveView(desc ResourceViewDesc) ResourceViewDesc {
	if desc.Format == FormatUndefined {
		desc.Format = t.desc.Format
	}
	r := &desc.Subresources
	if r.MipCount == Remaining {
		r.MipCount = remainder(t.desc.MipCount, r.MipLevel)
	}
	if r.LayerCount == Remaining {
		r.LayerCount = remainder(t.LayerCount(), r.BaseArrayLayer)
	}
	desc.BufferRange = BufferRange{}
	return desc
}

func remainder(total, base uint32) uint32 {
	if base > total {
		return 0
	}
	return total - base
}

// GetView returns the cached view for desc. Remaining counts in
// desc.Subresources are resolved before the lookup.
func (t *Texture) GetView(desc ResourceViewDesc) (*ResourceView, error) {
	const op = "Texture.GetView"
	if t.destroyed {
		return nil, destroyedErr(op)
	}
	desc = t.resolveView(desc)
	if err := t.checkViewUsage(op, desc.Type); err != nil {
		return nil, err
	}
	r := desc.Subresources
	if r.MipCount == 0 || r.LayerCount == 0 {
		return nil, rangeErr(op, "empty subresource range %s", r)
	}
	if r.MipLevel >= t.desc.MipCount || r.MipCount > t.desc.MipCount-r.MipLevel {
		return nil, rangeErr(op, "mips %s exceed %d levels of texture %q", r, t.desc.MipCount, t.label)
	}
	if layers := t.LayerCount(); r.BaseArrayLayer >= layers || r.LayerCount > layers-r.BaseArrayLayer {
		return nil, rangeErr(op, "layers %s exceed %d layers of texture %q", r, layers, t.label)
	}
	if (desc.Type == ViewRenderTarget || desc.Type == ViewDepthStencil) && r.MipCount != 1 {
		return nil, rangeErr(op, "%s views address a single mip, got %d", desc.Type, r.MipCount)
	}
	return t.cachedView(op, desc, t.desc.Type)
}

// GetSRV returns a shader-resource view over r.
func (t *Texture) GetSRV(r SubresourceRange) (*ResourceView, error) {
	return t.GetView(ResourceViewDesc{Type: ViewShaderResource, Subresources: r})
}

// GetUAV returns an unordered-access view over r.
func (t *Texture) GetUAV(r SubresourceRange) (*ResourceView, error) {
	return t.GetView(ResourceViewDesc{Type: ViewUnorderedAccess, Subresources: r})
}

// GetRTV returns a render-target view of one mip over layerCount layers
// starting at baseLayer. Remaining selects every layer from baseLayer on.
func (t *Texture) GetRTV(mip, baseLayer, layerCount uint32) (*ResourceView, error) {
	return t.GetView(ResourceViewDesc{
		Type:         ViewRenderTarget,
		Subresources: SubresourceRange{MipLevel: mip, MipCount: 1, BaseArrayLayer: baseLayer, LayerCount: layerCount},
	})
}

// GetDSV returns a depth-stencil view of one mip, like GetRTV.
func (t *Texture) GetDSV(mip, baseLayer, layerCount uint32) (*ResourceView, error) {
	return t.GetView(ResourceViewDesc{
		Type:         ViewDepthStencil,
		Subresources: SubresourceRange{MipLevel: mip, MipCount: 1, BaseArrayLayer: baseLayer, LayerCount: layerCount},
	})
}

// Destroy invalidates every view and queues the texture for deferred release.
func (t *Texture) Destroy() {
	t.destroy(t.MemoryUsage())
}

// String returns a readable description of the texture.
func (t *Texture) String() string {
	return fmt.Sprintf("Texture[%q %s %s %dx%dx%d mips=%d layers=%d]",
		t.label, t.desc.Type, t.desc.Format, t.desc.Width, t.desc.Height, t.desc.Depth,
		t.desc.MipCount, t.LayerCount())
}
