// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import "fmt"

// ViewType selects how a view binds its resource.
type ViewType uint8

const (
	ViewUnknown ViewType = iota
	ViewShaderResource
	ViewUnorderedAccess
	ViewRenderTarget
	ViewDepthStencil
)

// String returns the string representation of the view type.
func (t ViewType) String() string {
	switch t {
	case ViewShaderResource:
		return "shader_resource"
	case ViewUnorderedAccess:
		return "unordered_access"
	case ViewRenderTarget:
		return "render_target"
	case ViewDepthStencil:
		return "depth_stencil"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// requiredUsage returns the usage flag a resource needs for views of type t.
func (t ViewType) requiredUsage() (ResourceUsage, bool) {
	switch t {
	case ViewShaderResource:
		return UsageShaderResource, true
	case ViewUnorderedAccess:
		return UsageUnorderedAccess, true
	case ViewRenderTarget:
		return UsageRenderTarget, true
	case ViewDepthStencil:
		return UsageDepthStencil, true
	default:
		return UsageNone, false
	}
}

// WholeSize is the BufferRange.Size sentinel for "up to the end of the buffer".
const WholeSize = ^uint64(0)

// Remaining is the SubresourceRange count sentinel for "every remaining
// mip level or array layer".
const Remaining = ^uint32(0)

// BufferRange is a byte range of a buffer.
type BufferRange struct {
	Offset uint64
	Size   uint64
}

// EntireBuffer covers a whole buffer.
var EntireBuffer = BufferRange{Offset: 0, Size: WholeSize}

// String returns a readable form of the range.
func (r BufferRange) String() string {
	if r.Size == WholeSize {
		return fmt.Sprintf("[%d, end)", r.Offset)
	}
	return fmt.Sprintf("[%d, %d)", r.Offset, r.Offset+r.Size)
}

// SubresourceRange is a range of mip levels and array layers of a texture.
type SubresourceRange struct {
	MipLevel       uint32
	MipCount       uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// AllSubresources covers every mip level and array layer.
var AllSubresources = SubresourceRange{MipLevel: 0, MipCount: Remaining, BaseArrayLayer: 0, LayerCount: Remaining}

// String returns a readable form of the range.
func (r SubresourceRange) String() string {
	count := func(n uint32) string {
		if n == Remaining {
			return "all"
		}
		return fmt.Sprint(n)
	}
	return fmt.Sprintf("mips[%d+%s] layers[%d+%s]", r.MipLevel, count(r.MipCount), r.BaseArrayLayer, count(r.LayerCount))
}

// ResourceViewDesc describes a view. It is comparable and used as the key of
// a resource's view cache after its sentinels are resolved. Buffer views use
// BufferRange, texture views use Subresources.
type ResourceViewDesc struct {
	Type         ViewType
	Format       Format
	BufferRange  BufferRange
	Subresources SubresourceRange
}

// ResourceView is a typed, range-scoped accessor over a Buffer or Texture.
//
// A view is owned by the view cache of its resource and lives exactly as long
// as the resource: when the resource is destroyed the view is invalidated,
// its back-reference cleared and its native handle released. A view never
// keeps its resource's native handle alive.
type ResourceView struct {
	desc     ResourceViewDesc
	resource Resource
	native   NativeHandle
	device   *Device
}

// Desc returns the resolved descriptor of the view.
func (v *ResourceView) Desc() ResourceViewDesc { return v.desc }

// Type returns the view type.
func (v *ResourceView) Type() ViewType { return v.desc.Type }

// Resource returns the viewed resource, or nil once it has been destroyed.
func (v *ResourceView) Resource() Resource { return v.resource }

// Valid reports whether the viewed resource is still alive.
func (v *ResourceView) Valid() bool { return v.resource != nil }

// Native returns the backend view handle, or nil once invalidated.
func (v *ResourceView) Native() NativeHandle { return v.native }

// Buffer returns the viewed buffer, or nil for texture views and
// invalidated views.
func (v *ResourceView) Buffer() *Buffer {
	b, _ := v.resource.(*Buffer)
	return b
}

// Texture returns the viewed texture, or nil for buffer views and
// invalidated views.
func (v *ResourceView) Texture() *Texture {
	t, _ := v.resource.(*Texture)
	return t
}

// String returns a readable description of the view.
func (v *ResourceView) String() string {
	state := "valid"
	if !v.Valid() {
		state = "invalid"
	}
	return fmt.Sprintf("ResourceView[%s %s %s %s]", v.desc.Type, v.desc.Format, v.rangeString(), state)
}

func (v *ResourceView) rangeString() string {
	if v.desc.Subresources != (SubresourceRange{}) {
		return v.desc.Subresources.String()
	}
	return v.desc.BufferRange.String()
}

// invalidate clears the back-reference. With deferredRelease the native
// handle goes through the device's deferred-release queue, otherwise it is
// released immediately.
func (v *ResourceView) invalidate(deferredRelease bool) {
	v.resource = nil
	if v.native == nil {
		return
	}
	if deferredRelease {
		v.device.DeferredRelease(v.native)
	} else {
		v.device.backend.Release(v.native)
	}
	v.native = nil
	v.device.stats.views.Add(-1)
}
