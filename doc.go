// Package gpures manages the lifetime of GPU resources and the host/device
// synchronization that guards it.
//
// # Overview
//
// gpures sits between a renderer and a native graphics device. It provides
// a monotonic Fence, Buffer and Texture resources with a cache of typed
// ResourceViews, a per-subresource ResourceStateTracker for barrier
// synthesis, and a page-based MemoryHeap for transient upload memory.
//
// Destroying a resource never blocks the host and never frees memory the
// device may still read: native handles are queued on the Device together
// with the device fence's signaled value and released once the fence's
// current value reaches it.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gpures"
//	    "github.com/gogpu/gpures/backend/soft"
//	)
//
//	dev, err := gpures.NewDevice(soft.New(soft.Config{}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	tex, err := dev.CreateTexture(gpures.TextureDesc{
//	    Format: gpures.FormatRGBA8Unorm,
//	    Width:  256,
//	    Height: 256,
//	    Usage:  gpures.UsageShaderResource | gpures.UsageRenderTarget,
//	})
//	srv, err := tex.GetSRV(gpures.AllSubresources)
//	...
//	tex.Destroy()    // views invalidated, native handle queued
//	dev.Flush()      // signal the device fence and release what completed
//
// # Backends
//
// A Backend wraps a native device. The backend/soft package is a host-memory
// implementation used for tests and headless tooling; backend/wgpu adapts a
// gogpu/wgpu HAL device. Backends register themselves with the backend
// package so applications can pick one by name.
//
// # Threading
//
// Devices, resources and heaps are used from a single host thread. Only
// Device.Stats and Fence.SignaledValue may be read concurrently.
//
// # Logging
//
// gpures logs through log/slog and is silent by default; see SetLogger.
package gpures

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
