// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu adapts a gogpu/wgpu HAL device to the gpures.Backend
// interface.
//
// # Opening a device
//
// Open creates a standalone device on a registered HAL backend (Vulkan by
// default). FromHAL wraps a device and queue owned by the caller, and
// FromProvider takes them from a gpucontext.DeviceProvider that exposes
// HalDevice() and HalQueue().
//
//	b, err := wgpu.Open(wgpu.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dev, err := gpures.NewDevice(b)
//
// Importing the package registers the "wgpu" backend with the
// github.com/gogpu/gpures/backend registry.
//
// # Fences
//
// HAL queues expose completion as a monotonically increasing submission
// index. A Fence maps the values it is signaled with onto submission
// indices and reports a value as completed once the queue has retired the
// submission that carried it. Shared fences are not supported.
//
// # Limitations
//
// WebGPU has no typeless or three-channel 32-bit formats and no buffer
// device addresses; textures in those formats fail with a capability error
// and MapBuffer reports a zero device address.
package wgpu
