// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"log/slog"
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpures/internal/deferred"
)

// Device owns a Backend, the device fence and the deferred-release queue.
//
// Every buffer, texture, view and heap page created through a Device returns
// its native handle to the device's deferred-release queue when destroyed.
// The handle is stamped with the device fence's signaled value and released
// once the fence's current value reaches the stamp, so a handle is never
// destroyed while work submitted before its release may still use it.
//
// Device is not safe for concurrent use except for Stats, which may be read
// from any goroutine (metrics scrapes).
type Device struct {
	backend  Backend
	limits   Limits
	opts     deviceOptions
	fence    *Fence
	releases deferred.Queue[NativeHandle]
	heaps    map[*MemoryHeap]struct{}
	closed   bool
	stats    deviceCounters
}

type deviceCounters struct {
	buffers    atomic.Int64
	textures   atomic.Int64
	views      atomic.Int64
	pending    atomic.Int64
	released   atomic.Uint64
	deviceMem  atomic.Int64
	hostMem    atomic.Int64
	completed  atomic.Uint64
	heapsAlive atomic.Int64
}

// DeviceStats is a point-in-time snapshot of device bookkeeping.
type DeviceStats struct {
	Label           string
	Backend         string
	Buffers         int64
	Textures        int64
	Views           int64
	Heaps           int64
	PendingReleases int64
	ReleasedHandles uint64
	SignaledValue   uint64
	CompletedValue  uint64
	Memory          MemoryUsage
}

// NewDevice wraps backend. The device takes ownership of the backend and
// destroys it on Close.
func NewDevice(backend Backend, opts ...DeviceOption) (*Device, error) {
	const op = "NewDevice"
	if backend == nil {
		return nil, configErr(op, "nil backend")
	}
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	limits := backend.Limits().withDefaults()
	if o.rowAlignment != 0 {
		if bits.OnesCount32(o.rowAlignment) != 1 {
			return nil, configErr(op, "texture row alignment %d is not a power of two", o.rowAlignment)
		}
		limits.TextureRowAlignment = o.rowAlignment
	}

	d := &Device{
		backend: backend,
		limits:  limits,
		opts:    o,
		heaps:   make(map[*MemoryHeap]struct{}),
	}
	fence, err := newFence(d, FenceDesc{Label: o.label + " fence"})
	if err != nil {
		return nil, err
	}
	d.fence = fence

	d.logger().Info("gpures: device opened",
		"label", o.label,
		"backend", backend.Name(),
		"rowAlignment", limits.TextureRowAlignment)
	return d, nil
}

func (d *Device) logger() *slog.Logger {
	if d.opts.logger != nil {
		return d.opts.logger
	}
	return Logger()
}

// Label returns the debug label.
func (d *Device) Label() string { return d.opts.label }

// Backend returns the native device.
func (d *Device) Backend() Backend { return d.backend }

// Limits returns the effective device limits.
func (d *Device) Limits() Limits { return d.limits }

// Fence returns the device fence that gates deferred releases.
func (d *Device) Fence() *Fence { return d.fence }

// CreateFence creates an additional fence.
func (d *Device) CreateFence(desc FenceDesc) (*Fence, error) {
	if d.closed {
		return nil, destroyedErr("CreateFence")
	}
	return newFence(d, desc)
}

// DeferredRelease queues a native handle for release once all work signaled
// so far on the device fence has completed. A nil handle is ignored. After
// Close the handle is dropped, since the backend has destroyed it already.
func (d *Device) DeferredRelease(h NativeHandle) {
	if h == nil {
		return
	}
	if d.closed {
		d.logger().Debug("gpures: release after device close ignored", "label", d.opts.label)
		return
	}
	d.releases.Push(h, d.fence.SignaledValue())
	d.stats.pending.Store(int64(d.releases.Len()))
}

func (d *Device) release(h NativeHandle) {
	d.backend.Release(h)
	d.stats.released.Add(1)
}

// ExecuteDeferredReleases releases every queued handle whose stamp the
// device fence has reached and returns how many were released. It never
// blocks on device progress.
func (d *Device) ExecuteDeferredReleases() int {
	if d.closed || d.releases.Len() == 0 {
		return 0
	}
	completed, err := d.fence.CurrentValue()
	if err != nil {
		d.logger().Warn("gpures: cannot query device fence", "err", err)
		return 0
	}
	d.stats.completed.Store(completed)
	n := d.releases.Drain(completed, d.release)
	d.stats.pending.Store(int64(d.releases.Len()))
	if n > 0 {
		d.logger().Debug("gpures: deferred releases executed",
			"released", n, "pending", d.releases.Len(), "completed", completed)
	}
	return n
}

// Flush signals the device fence with the next value and, unless disabled
// with WithDrainOnFlush(false), drains the deferred-release queue. It
// returns the signaled value.
func (d *Device) Flush() (uint64, error) {
	if d.closed {
		return 0, destroyedErr("Device.Flush")
	}
	v, err := d.fence.Signal(Auto)
	if err != nil {
		return 0, err
	}
	if d.opts.drainOnFlush {
		d.ExecuteDeferredReleases()
	}
	return v, nil
}

// WaitIdle waits until the device fence reaches its signaled value, then
// drains the deferred-release queue.
func (d *Device) WaitIdle(timeout time.Duration) error {
	if d.closed {
		return destroyedErr("Device.WaitIdle")
	}
	if err := d.fence.Wait(Auto, timeout); err != nil {
		return err
	}
	d.ExecuteDeferredReleases()
	return nil
}

// Close waits (bounded by WithCloseTimeout) for outstanding work, closes
// the heaps still open, releases every queued handle regardless of fence
// state, then destroys the device fence and the backend. Close is
// idempotent.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	if err := d.WaitIdle(d.opts.closeTimeout); err != nil {
		d.logger().Warn("gpures: closing device with incomplete work",
			"label", d.opts.label, "pending", d.releases.Len(),
			"waitingFor", d.releases.MaxFence(), "err", err)
	}
	for h := range d.heaps {
		h.Close()
	}
	d.closed = true
	n := d.releases.Flush(d.release)
	d.stats.pending.Store(0)
	d.fence.Destroy()
	d.backend.Destroy()
	d.logger().Info("gpures: device closed", "label", d.opts.label, "flushed", n)
	return nil
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool { return d.closed }

// PendingReleases returns the number of queued handles.
func (d *Device) PendingReleases() int { return d.releases.Len() }

// Stats returns a snapshot of the device bookkeeping. It is safe to call
// from any goroutine.
func (d *Device) Stats() DeviceStats {
	s := DeviceStats{
		Label:           d.opts.label,
		Backend:         d.backend.Name(),
		Buffers:         d.stats.buffers.Load(),
		Textures:        d.stats.textures.Load(),
		Views:           d.stats.views.Load(),
		Heaps:           d.stats.heapsAlive.Load(),
		PendingReleases: d.stats.pending.Load(),
		ReleasedHandles: d.stats.released.Load(),
		SignaledValue:   d.fence.SignaledValue(),
		CompletedValue:  d.stats.completed.Load(),
		Memory: MemoryUsage{
			DeviceBytes: uint64(d.stats.deviceMem.Load()),
			HostBytes:   uint64(d.stats.hostMem.Load()),
		},
	}
	return s
}

// track records a newly created resource.
func (d *Device) track(typ ResourceType, usage MemoryUsage) {
	d.count(typ, usage, 1)
}

// untrack records a destroyed resource.
func (d *Device) untrack(typ ResourceType, usage MemoryUsage) {
	d.count(typ, usage, -1)
}

func (d *Device) count(typ ResourceType, usage MemoryUsage, sign int64) {
	switch typ {
	case ResourceTypeBuffer:
		d.stats.buffers.Add(sign)
	case ResourceTypeTexture:
		d.stats.textures.Add(sign)
	}
	d.stats.deviceMem.Add(sign * int64(usage.DeviceBytes))
	d.stats.hostMem.Add(sign * int64(usage.HostBytes))
}
