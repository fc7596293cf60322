// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import "fmt"

// ResourceType distinguishes buffers from textures.
type ResourceType uint8

const (
	ResourceTypeBuffer ResourceType = iota
	ResourceTypeTexture
)

// String returns the string representation of the resource type.
func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBuffer:
		return "buffer"
	case ResourceTypeTexture:
		return "texture"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// Resource is the behavior shared by Buffer and Texture.
type Resource interface {
	// Type returns the resource kind.
	Type() ResourceType

	// Device returns the owning device.
	Device() *Device

	Label() string
	Usage() ResourceUsage
	MemoryType() MemoryType
	InitialState() ResourceState

	// StateTracker returns the advisory state bookkeeping consulted by
	// command recording for barrier synthesis.
	StateTracker() *ResourceStateTracker

	// Native returns the backend handle, or nil once destroyed.
	Native() NativeHandle

	// MemoryUsage reports the memory the resource occupies.
	MemoryUsage() MemoryUsage

	// GetView returns the cached view for desc, creating it on first use.
	GetView(desc ResourceViewDesc) (*ResourceView, error)

	// ViewCount returns the number of cached views.
	ViewCount() int

	// Destroy invalidates every view and queues the native handle for
	// deferred release. Destroy is idempotent.
	Destroy()

	// IsDestroyed reports whether Destroy has been called.
	IsDestroyed() bool
}

// deviceObject is embedded by every object owned by a Device.
type deviceObject struct {
	device *Device
}

// Device returns the owning device.
func (o *deviceObject) Device() *Device { return o.device }

// resource holds the state common to buffers and textures.
//
// The native handle is exclusively owned by the resource; it is never
// shared or duplicated, and is only released through the device's
// deferred-release queue.
type resource struct {
	deviceObject

	self         Resource
	typ          ResourceType
	label        string
	usage        ResourceUsage
	memoryType   MemoryType
	initialState ResourceState
	tracker      ResourceStateTracker
	native       NativeHandle
	views        map[ResourceViewDesc]*ResourceView
	destroyed    bool
}

func (r *resource) init(self Resource, d *Device, typ ResourceType, label string, usage ResourceUsage, mt MemoryType, state ResourceState) {
	r.self = self
	r.device = d
	r.typ = typ
	r.label = label
	r.usage = usage
	r.memoryType = mt
	r.initialState = state
	r.tracker = ResourceStateTracker{global: state}
	r.views = make(map[ResourceViewDesc]*ResourceView)
}

// Type returns the resource kind.
func (r *resource) Type() ResourceType { return r.typ }

// Label returns the debug label.
func (r *resource) Label() string { return r.label }

// Usage returns the usage flags.
func (r *resource) Usage() ResourceUsage { return r.usage }

// MemoryType returns the memory type the resource lives in.
func (r *resource) MemoryType() MemoryType { return r.memoryType }

// InitialState returns the state the resource was created in.
func (r *resource) InitialState() ResourceState { return r.initialState }

// StateTracker returns the resource's state tracker.
func (r *resource) StateTracker() *ResourceStateTracker { return &r.tracker }

// Native returns the backend handle, or nil once destroyed.
func (r *resource) Native() NativeHandle { return r.native }

// ViewCount returns the number of cached views.
func (r *resource) ViewCount() int { return len(r.views) }

// IsDestroyed reports whether Destroy has been called.
func (r *resource) IsDestroyed() bool { return r.destroyed }

// checkViewUsage verifies that the resource was created with the usage flag
// views of type t require.
func (r *resource) checkViewUsage(op string, t ViewType) error {
	need, ok := t.requiredUsage()
	if !ok {
		return configErr(op, "unknown view type %s", t)
	}
	if !r.usage.Contains(need) {
		return capabilityErr(op, "%s view requires %s usage, %s %q has %s", t, need, r.typ, r.label, r.usage)
	}
	return nil
}

// cachedView returns the view for an already resolved and validated
// descriptor, creating and inserting it on a miss.
func (r *resource) cachedView(op string, desc ResourceViewDesc, textureType TextureType) (*ResourceView, error) {
	if v, ok := r.views[desc]; ok {
		return v, nil
	}
	native, err := r.device.backend.CreateView(r.native, &NativeViewDesc{
		Label:        r.label,
		ResourceType: r.typ,
		TextureType:  textureType,
		View:         desc,
	})
	if err != nil {
		return nil, backendErr(op, err)
	}
	v := &ResourceView{
		desc:     desc,
		resource: r.self,
		native:   native,
		device:   r.device,
	}
	r.views[desc] = v
	r.device.stats.views.Add(1)
	return v, nil
}

// invalidateViews invalidates and forgets every cached view.
func (r *resource) invalidateViews(deferredRelease bool) {
	for _, v := range r.views {
		v.invalidate(deferredRelease)
	}
	clear(r.views)
}

// destroy tears the resource down: views first, then the native handle.
// It reports false when the resource was already destroyed.
func (r *resource) destroy(usage MemoryUsage) bool {
	if r.destroyed {
		return false
	}
	r.destroyed = true
	r.invalidateViews(true)
	r.device.DeferredRelease(r.native)
	r.native = nil
	r.device.untrack(r.typ, usage)
	r.device.logger().Debug("gpures: resource destroyed",
		"type", r.typ, "label", r.label)
	return true
}
