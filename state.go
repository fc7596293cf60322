// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"fmt"
	"strings"
)

// ResourceState is the advisory usage state of a resource or subresource.
type ResourceState uint8

const (
	StateUndefined ResourceState = iota
	StateGeneral
	StateVertexBuffer
	StateIndexBuffer
	StateConstantBuffer
	StateStreamOutput
	StateShaderResource
	StateUnorderedAccess
	StateRenderTarget
	StateDepthRead
	StateDepthWrite
	StatePresent
	StateIndirectArgument
	StateCopySource
	StateCopyDestination
	StateResolveSource
	StateResolveDestination
	StateAccelerationStructure
	StateAccelerationStructureBuildInput

	stateCount
)

var stateNames = [stateCount]string{
	StateUndefined:                       "undefined",
	StateGeneral:                         "general",
	StateVertexBuffer:                    "vertex_buffer",
	StateIndexBuffer:                     "index_buffer",
	StateConstantBuffer:                  "constant_buffer",
	StateStreamOutput:                    "stream_output",
	StateShaderResource:                  "shader_resource",
	StateUnorderedAccess:                 "unordered_access",
	StateRenderTarget:                    "render_target",
	StateDepthRead:                       "depth_read",
	StateDepthWrite:                      "depth_write",
	StatePresent:                         "present",
	StateIndirectArgument:                "indirect_argument",
	StateCopySource:                      "copy_source",
	StateCopyDestination:                 "copy_destination",
	StateResolveSource:                   "resolve_source",
	StateResolveDestination:              "resolve_destination",
	StateAccelerationStructure:           "acceleration_structure",
	StateAccelerationStructureBuildInput: "acceleration_structure_build_input",
}

// String returns the string representation of the state.
func (s ResourceState) String() string {
	if s < stateCount {
		return stateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// StateSet is a set of resource states.
type StateSet uint32

// StatesOf builds a set from the given states.
func StatesOf(states ...ResourceState) StateSet {
	var set StateSet
	for _, s := range states {
		set = set.With(s)
	}
	return set
}

// With returns the set with s added.
func (set StateSet) With(s ResourceState) StateSet { return set | 1<<s }

// Has reports whether s is in the set.
func (set StateSet) Has(s ResourceState) bool { return set&(1<<s) != 0 }

// States returns the members of the set in ascending order.
func (set StateSet) States() []ResourceState {
	var out []ResourceState
	for s := ResourceState(0); s < stateCount; s++ {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

func (set StateSet) String() string {
	states := set.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// ResourceStateTracker records the advisory state of a resource, either as
// one global state or, once any subresource diverges, per subresource.
//
// The tracker never issues hardware commands. A command-recording
// collaborator compares the desired state against the tracked one,
// synthesizes the barrier and writes the new state back.
//
// ResourceStateTracker is not safe for concurrent use; recording is assumed
// to be single-threaded per device.
type ResourceStateTracker struct {
	global      ResourceState
	subresource []ResourceState
}

// NewResourceStateTracker returns a tracker in global mode.
func NewResourceStateTracker(initial ResourceState) *ResourceStateTracker {
	return &ResourceStateTracker{global: initial}
}

// HasGlobalState reports whether no subresource has diverged yet.
func (t *ResourceStateTracker) HasGlobalState() bool {
	return t.subresource == nil
}

// GlobalState returns the global state.
func (t *ResourceStateTracker) GlobalState() ResourceState {
	return t.global
}

// SetGlobalState sets the global state. In per-subresource mode it only
// applies to indices beyond the current per-subresource vector.
func (t *ResourceStateTracker) SetGlobalState(s ResourceState) {
	t.global = s
}

// SubresourceState returns the state of subresource i.
func (t *ResourceStateTracker) SubresourceState(i uint32) ResourceState {
	if int(i) < len(t.subresource) {
		return t.subresource[i]
	}
	return t.global
}

// SetSubresourceState sets the state of subresource i, switching the tracker
// to per-subresource mode unless s equals the global state. Slots added to
// the vector start at the global state of the moment.
func (t *ResourceStateTracker) SetSubresourceState(i uint32, s ResourceState) {
	if t.subresource == nil && s == t.global {
		return
	}
	if n := int(i) + 1; n > len(t.subresource) {
		grown := make([]ResourceState, n)
		copy(grown, t.subresource)
		for j := len(t.subresource); j < n; j++ {
			grown[j] = t.global
		}
		t.subresource = grown
	}
	t.subresource[i] = s
}

// SubresourceCount returns the length of the per-subresource vector,
// zero in global mode.
func (t *ResourceStateTracker) SubresourceCount() int {
	return len(t.subresource)
}

// Reset returns the tracker to global mode with state s.
func (t *ResourceStateTracker) Reset(s ResourceState) {
	t.global = s
	t.subresource = nil
}
