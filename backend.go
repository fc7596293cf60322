// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import "time"

// NativeHandle is an opaque backend object (buffer, texture, view or fence).
// Ownership stays with the wrapper that created it; handles are returned to
// the backend through Backend.Release.
type NativeHandle interface {
	NativeHandle() uintptr
}

// NativeFence is a backend monotonic counter.
type NativeFence interface {
	NativeHandle

	// Signal sets the counter to value from the host.
	Signal(value uint64) error

	// Wait blocks until the counter reaches value or timeout elapses.
	// It returns false on timeout.
	Wait(value uint64, timeout time.Duration) (bool, error)

	// CompletedValue queries the counter.
	CompletedValue() (uint64, error)

	// SharedHandle returns an interop handle for fences created shared.
	SharedHandle() (uintptr, error)
}

// NativeBufferDesc is the resolved buffer description handed to a backend.
type NativeBufferDesc struct {
	Label      string
	Size       uint64
	Usage      ResourceUsage
	MemoryType MemoryType
}

// NativeTextureDesc is the resolved texture description handed to a backend.
type NativeTextureDesc struct {
	Label       string
	Type        TextureType
	Format      Format
	Width       uint32
	Height      uint32
	Depth       uint32
	ArraySize   uint32
	MipCount    uint32
	SampleCount uint32
	Usage       ResourceUsage
	MemoryType  MemoryType
}

// NativeViewDesc is the resolved view description handed to a backend.
// Exactly one of BufferRange or Subresources is meaningful, depending on the
// resource kind.
type NativeViewDesc struct {
	Label        string
	ResourceType ResourceType
	TextureType  TextureType
	View         ResourceViewDesc
}

// Limits reports device properties the core needs.
type Limits struct {
	// TextureRowAlignment is the row pitch alignment for texture copies.
	TextureRowAlignment uint32
	// BufferAlignment is the offset alignment of raw buffer views. Typed
	// and structured views are aligned to their element stride instead.
	BufferAlignment uint64
}

// DefaultLimits are used for zero fields of a backend's Limits.
var DefaultLimits = Limits{
	TextureRowAlignment: 256,
	BufferAlignment:     16,
}

func (l Limits) withDefaults() Limits {
	if l.TextureRowAlignment == 0 {
		l.TextureRowAlignment = DefaultLimits.TextureRowAlignment
	}
	if l.BufferAlignment == 0 {
		l.BufferAlignment = DefaultLimits.BufferAlignment
	}
	return l
}

// Backend is the narrow native-device surface consumed by this package.
//
// Implementations are not required to be safe for concurrent use; the core
// issues all calls from a single host thread.
type Backend interface {
	// Name returns the backend identifier (e.g., "soft", "wgpu").
	Name() string

	// Limits returns the device limits.
	Limits() Limits

	CreateBuffer(desc *NativeBufferDesc) (NativeHandle, error)
	CreateTexture(desc *NativeTextureDesc) (NativeHandle, error)

	// CreateView creates a view object over resource. Backends without
	// native buffer views may return a handle that owns nothing.
	CreateView(resource NativeHandle, desc *NativeViewDesc) (NativeHandle, error)

	// CreateFence creates a counter starting at initial. Backends that
	// cannot export interop handles fail when shared is true.
	CreateFence(initial uint64, shared bool) (NativeFence, error)

	// SupportedStates returns the states textures of format f can be used in.
	SupportedStates(f Format) StateSet

	WriteBuffer(buffer NativeHandle, offset uint64, data []byte) error
	ReadBuffer(buffer NativeHandle, offset uint64, dst []byte) error

	// WriteTexture uploads one subresource; data is laid out with
	// layout.RowPitch bytes per row.
	WriteTexture(texture NativeHandle, mip, slice uint32, layout SubresourceLayout, data []byte) error

	// ReadTexture reads one subresource back, laid out like WriteTexture.
	ReadTexture(texture NativeHandle, mip, slice uint32, layout SubresourceLayout) ([]byte, error)

	// Release destroys a handle created by this backend.
	Release(h NativeHandle)

	// Destroy releases the backend device.
	Destroy()
}

// BufferMapper is implemented by backends that expose persistently mapped
// host-visible buffers.
type BufferMapper interface {
	// MapBuffer returns the host window and device address of a
	// host-visible buffer. The window stays valid until Release.
	MapBuffer(buffer NativeHandle) (data []byte, deviceAddress uint64, err error)
}
