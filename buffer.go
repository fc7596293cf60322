// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// BufferDesc describes a buffer.
//
// Exactly one of Size and ElementCount must be set, unless Data is given, in
// which case a zero Size and ElementCount default to len(Data). ElementCount
// needs a stride: StructSize, StructType or a non-compressed Format. At most
// one of StructSize and StructType may be set.
type BufferDesc struct {
	Label        string
	Size         uint64
	ElementCount uint64
	StructSize   uint64
	// StructType is a value of a fixed-size type (as accepted by
	// encoding/binary.Size) whose size gives the element stride.
	StructType   any
	Format       Format
	MemoryType   MemoryType
	Usage        ResourceUsage
	InitialState ResourceState
	// Data, if set, is uploaded after creation and must be exactly Size bytes.
	Data []byte
}

// Buffer is a linear device memory resource.
type Buffer struct {
	resource

	size          uint64
	stride        uint64
	structSize    uint64
	format        Format
	mapped        []byte
	deviceAddress uint64
}

var _ Resource = (*Buffer)(nil)

// bufferLayout is a validated BufferDesc.
type bufferLayout struct {
	size       uint64
	stride     uint64
	structSize uint64
	state      ResourceState
	usage      ResourceUsage
}

// resolveBufferDesc validates desc and computes the size and stride.
func resolveBufferDesc(desc BufferDesc) (bufferLayout, error) {
	const op = "CreateBuffer"
	var l bufferLayout
	if desc.Size != 0 && desc.ElementCount != 0 {
		return l, configErr(op, "only one of size (%d) and element count (%d) may be set", desc.Size, desc.ElementCount)
	}
	if desc.StructSize != 0 && desc.StructType != nil {
		return l, configErr(op, "only one of struct size and struct type may be set")
	}
	structSize := desc.StructSize
	if desc.StructType != nil {
		n := binary.Size(desc.StructType)
		if n <= 0 {
			return l, configErr(op, "struct type %T has no fixed size", desc.StructType)
		}
		structSize = uint64(n)
	}
	size := desc.Size
	if size == 0 && desc.ElementCount == 0 {
		size = uint64(len(desc.Data))
	}

	stride := structSize
	if stride == 0 && desc.Format != FormatUndefined {
		info := desc.Format.Info()
		if info.Compressed {
			return l, configErr(op, "format %s cannot be used for buffers", desc.Format)
		}
		stride = uint64(info.BytesPerBlock)
	}
	if desc.ElementCount != 0 {
		if stride == 0 {
			return l, configErr(op, "element count requires a struct size, struct type or format")
		}
		hi, lo := bits.Mul64(desc.ElementCount, stride)
		if hi != 0 {
			return l, configErr(op, "%d elements of %d bytes overflow", desc.ElementCount, stride)
		}
		size = lo
	}
	if size == 0 {
		return l, configErr(op, "buffer size is zero")
	}
	if len(desc.Data) != 0 && uint64(len(desc.Data)) != size {
		return l, configErr(op, "initial data is %d bytes, buffer is %d", len(desc.Data), size)
	}

	usage := desc.Usage
	state := desc.InitialState
	if state == StateUndefined && usage.Contains(UsageAccelerationStructure) {
		state = StateAccelerationStructure
		usage |= UsageUnorderedAccess | UsageShaderResource
	}
	if state == StateUndefined {
		switch desc.MemoryType {
		case MemoryUpload:
			state = StateGeneral
		case MemoryReadBack:
			state = StateCopyDestination
		}
	}
	return bufferLayout{size: size, stride: stride, structSize: structSize, state: state, usage: usage}, nil
}

// CreateBuffer creates a buffer and uploads desc.Data when present.
func (d *Device) CreateBuffer(desc BufferDesc) (*Buffer, error) {
	const op = "CreateBuffer"
	if d.closed {
		return nil, destroyedErr(op)
	}
	l, err := resolveBufferDesc(desc)
	if err != nil {
		return nil, err
	}
	native, err := d.backend.CreateBuffer(&NativeBufferDesc{
		Label:      desc.Label,
		Size:       l.size,
		Usage:      l.usage,
		MemoryType: desc.MemoryType,
	})
	if err != nil {
		return nil, backendErr(op, err)
	}

	b := &Buffer{
		size:       l.size,
		stride:     l.stride,
		structSize: l.structSize,
		format:     desc.Format,
	}
	b.init(b, d, ResourceTypeBuffer, desc.Label, l.usage, desc.MemoryType, l.state)
	b.native = native

	if mapper, ok := d.backend.(BufferMapper); ok && desc.MemoryType.HostVisible() {
		data, addr, err := mapper.MapBuffer(native)
		if err != nil {
			d.backend.Release(native)
			return nil, backendErr(op, err)
		}
		b.mapped = data
		b.deviceAddress = addr
	}
	if len(desc.Data) != 0 {
		if err := d.backend.WriteBuffer(native, 0, desc.Data); err != nil {
			d.backend.Release(native)
			return nil, backendErr(op, err)
		}
	}

	d.track(ResourceTypeBuffer, b.MemoryUsage())
	d.logger().Debug("gpures: buffer created",
		"label", desc.Label, "size", l.size, "usage", l.usage, "memory", desc.MemoryType)
	return b, nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Stride returns the element stride, or 0 for raw buffers.
func (b *Buffer) Stride() uint64 { return b.stride }

// StructSize returns the structured element size, or 0.
func (b *Buffer) StructSize() uint64 { return b.structSize }

// Format returns the element format of typed buffers.
func (b *Buffer) Format() Format { return b.format }

// ElementCount returns Size / Stride, or 0 for raw buffers.
func (b *Buffer) ElementCount() uint64 {
	if b.stride == 0 {
		return 0
	}
	return b.size / b.stride
}

// DeviceAddress returns the device address of host-visible buffers on
// backends that report one, otherwise 0.
func (b *Buffer) DeviceAddress() uint64 { return b.deviceAddress }

// MemoryUsage reports the buffer size against its memory type.
func (b *Buffer) MemoryUsage() MemoryUsage { return usageFor(b.memoryType, b.size) }

// Map returns the persistent host window of an Upload or ReadBack buffer.
// The window becomes invalid once the buffer is destroyed.
func (b *Buffer) Map() ([]byte, error) {
	const op = "Buffer.Map"
	if b.destroyed {
		return nil, destroyedErr(op)
	}
	if !b.memoryType.HostVisible() {
		return nil, capabilityErr(op, "buffer %q is %s memory", b.label, b.memoryType)
	}
	if b.mapped == nil {
		return nil, capabilityErr(op, "backend %s does not map buffers", b.device.backend.Name())
	}
	return b.mapped, nil
}

func (b *Buffer) checkRange(op string, offset, size uint64) error {
	if offset > b.size || size > b.size-offset {
		return rangeErr(op, "range [%d, +%d) exceeds buffer %q of %d bytes", offset, size, b.label, b.size)
	}
	return nil
}

// SetData writes data at offset.
func (b *Buffer) SetData(offset uint64, data []byte) error {
	const op = "Buffer.SetData"
	if b.destroyed {
		return destroyedErr(op)
	}
	if err := b.checkRange(op, offset, uint64(len(data))); err != nil {
		return err
	}
	if b.mapped != nil {
		copy(b.mapped[offset:], data)
		return nil
	}
	return backendErr(op, b.device.backend.WriteBuffer(b.native, offset, data))
}

// GetData reads size bytes at offset. WholeSize reads to the end.
func (b *Buffer) GetData(offset, size uint64) ([]byte, error) {
	const op = "Buffer.GetData"
	if b.destroyed {
		return nil, destroyedErr(op)
	}
	if size == WholeSize && offset <= b.size {
		size = b.size - offset
	}
	if err := b.checkRange(op, offset, size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if b.mapped != nil {
		copy(out, b.mapped[offset:offset+size])
		return out, nil
	}
	if err := b.device.backend.ReadBuffer(b.native, offset, out); err != nil {
		return nil, backendErr(op, err)
	}
	return out, nil
}

// resolveView replaces the sentinels of desc with concrete values.
func (b *Buffer) resolveView(desc ResourceViewDesc) ResourceViewDesc {
	if desc.Format == FormatUndefined {
		desc.Format = b.format
	}
	if desc.BufferRange.Size == WholeSize {
		if desc.BufferRange.Offset <= b.size {
			desc.BufferRange.Size = b.size - desc.BufferRange.Offset
		} else {
			desc.BufferRange.Size = 0
		}
	}
	desc.Subresources = SubresourceRange{}
	return desc
}

// GetView returns the cached view for desc. WholeSize in desc.BufferRange is
// resolved before the lookup, so it shares the cache entry of the explicit
// range it stands for.
func (b *Buffer) GetView(desc ResourceViewDesc) (*ResourceView, error) {
	const op = "Buffer.GetView"
	if b.destroyed {
		return nil, destroyedErr(op)
	}
	desc = b.resolveView(desc)
	if desc.Type == ViewRenderTarget || desc.Type == ViewDepthStencil {
		return nil, capabilityErr(op, "%s views are not supported on buffers", desc.Type)
	}
	if err := b.checkViewUsage(op, desc.Type); err != nil {
		return nil, err
	}
	r := desc.BufferRange
	if r.Size == 0 {
		return nil, rangeErr(op, "empty range %s on buffer %q of %d bytes", r, b.label, b.size)
	}
	if err := b.checkRange(op, r.Offset, r.Size); err != nil {
		return nil, err
	}
	if b.stride != 0 && (r.Offset%b.stride != 0 || r.Size%b.stride != 0) {
		return nil, rangeErr(op, "range %s is not a multiple of the %d byte stride", r, b.stride)
	}
	if align := b.device.limits.BufferAlignment; b.stride == 0 && r.Offset%align != 0 {
		return nil, rangeErr(op, "offset %d of raw view is not %d byte aligned", r.Offset, align)
	}
	return b.cachedView(op, desc, TextureTypeUnspecified)
}

// GetSRV returns a shader-resource view over r.
func (b *Buffer) GetSRV(r BufferRange) (*ResourceView, error) {
	return b.GetView(ResourceViewDesc{Type: ViewShaderResource, BufferRange: r})
}

// GetUAV returns an unordered-access view over r.
func (b *Buffer) GetUAV(r BufferRange) (*ResourceView, error) {
	return b.GetView(ResourceViewDesc{Type: ViewUnorderedAccess, BufferRange: r})
}

// Destroy invalidates every view and queues the buffer for deferred release.
func (b *Buffer) Destroy() {
	if b.destroy(b.MemoryUsage()) {
		b.mapped = nil
	}
}

// String returns a readable description of the buffer.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer[%q %d bytes %s]", b.label, b.size, b.memoryType)
}
