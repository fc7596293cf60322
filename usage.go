// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"fmt"
	"strings"
)

// ResourceUsage is a set of flags describing how a resource may be bound.
type ResourceUsage uint32

const (
	UsageNone                            ResourceUsage = 0
	UsageVertex                          ResourceUsage = 1 << 0
	UsageIndex                           ResourceUsage = 1 << 1
	UsageConstant                        ResourceUsage = 1 << 2
	UsageStreamOutput                    ResourceUsage = 1 << 3
	UsageShaderResource                  ResourceUsage = 1 << 4
	UsageUnorderedAccess                 ResourceUsage = 1 << 5
	UsageRenderTarget                    ResourceUsage = 1 << 6
	UsageDepthStencil                    ResourceUsage = 1 << 7
	UsageIndirectArgument                ResourceUsage = 1 << 8
	UsageShared                          ResourceUsage = 1 << 9
	UsageAccelerationStructure           ResourceUsage = 1 << 10
	UsageAccelerationStructureBuildInput ResourceUsage = 1 << 11
)

var usageNames = []struct {
	flag ResourceUsage
	name string
}{
	{UsageVertex, "vertex"},
	{UsageIndex, "index"},
	{UsageConstant, "constant"},
	{UsageStreamOutput, "stream_output"},
	{UsageShaderResource, "shader_resource"},
	{UsageUnorderedAccess, "unordered_access"},
	{UsageRenderTarget, "render_target"},
	{UsageDepthStencil, "depth_stencil"},
	{UsageIndirectArgument, "indirect_argument"},
	{UsageShared, "shared"},
	{UsageAccelerationStructure, "acceleration_structure"},
	{UsageAccelerationStructureBuildInput, "acceleration_structure_build_input"},
}

// Contains reports whether all flags in other are set.
func (u ResourceUsage) Contains(other ResourceUsage) bool {
	return u&other == other
}

// String returns a "|"-separated list of the set flags.
func (u ResourceUsage) String() string {
	if u == UsageNone {
		return "none"
	}
	var parts []string
	for _, n := range usageNames {
		if u&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// states returns the resource states implied by the usage flags. Only flags
// that map to a format-dependent state are considered.
func (u ResourceUsage) states() []ResourceState {
	var out []ResourceState
	if u&UsageShaderResource != 0 {
		out = append(out, StateShaderResource)
	}
	if u&UsageUnorderedAccess != 0 {
		out = append(out, StateUnorderedAccess)
	}
	if u&UsageRenderTarget != 0 {
		out = append(out, StateRenderTarget)
	}
	if u&UsageDepthStencil != 0 {
		out = append(out, StateDepthWrite)
	}
	return out
}

// MemoryType selects the heap a resource lives in.
type MemoryType uint8

const (
	// MemoryDeviceLocal is device memory, not host visible.
	MemoryDeviceLocal MemoryType = iota
	// MemoryUpload is host-visible memory written by the host.
	MemoryUpload
	// MemoryReadBack is host-visible memory read by the host.
	MemoryReadBack
)

// String returns the string representation of the memory type.
func (m MemoryType) String() string {
	switch m {
	case MemoryDeviceLocal:
		return "device_local"
	case MemoryUpload:
		return "upload"
	case MemoryReadBack:
		return "read_back"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// HostVisible reports whether the host can map memory of this type.
func (m MemoryType) HostVisible() bool {
	return m == MemoryUpload || m == MemoryReadBack
}

// MemoryUsage reports the bytes an object occupies.
type MemoryUsage struct {
	DeviceBytes uint64
	HostBytes   uint64
}

// Add returns the sum of two usages.
func (m MemoryUsage) Add(o MemoryUsage) MemoryUsage {
	return MemoryUsage{DeviceBytes: m.DeviceBytes + o.DeviceBytes, HostBytes: m.HostBytes + o.HostBytes}
}

// usageFor splits size between device and host according to the memory type.
func usageFor(mt MemoryType, size uint64) MemoryUsage {
	if mt.HostVisible() {
		return MemoryUsage{HostBytes: size}
	}
	return MemoryUsage{DeviceBytes: size}
}
