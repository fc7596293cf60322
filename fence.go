// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Auto is the fence value placeholder meaning "one past the last signaled
// value" for Signal and UpdateSignaledValue, and "the last signaled value"
// for Wait.
const Auto = ^uint64(0)

// Infinite disables the timeout of Fence.Wait.
const Infinite time.Duration = -1

// FenceDesc describes a fence.
type FenceDesc struct {
	Label        string
	InitialValue uint64
	// Shared requests a fence that can be exported to other APIs or
	// processes through SharedHandle.
	Shared bool
}

// Fence is a monotonic 64-bit synchronization counter shared by host and
// device.
//
// The fence keeps two values: the signaled value, which is the last value the
// host signaled or announced a device signal for, and the current value,
// which is what the native counter has actually reached. Invariant:
// CurrentValue() <= SignaledValue() once all announced signals complete.
//
// Signaling is not synchronized with other host calls on the same fence,
// except that SignaledValue may be read from any goroutine.
type Fence struct {
	deviceObject

	desc      FenceDesc
	native    NativeFence
	signaled  atomic.Uint64
	destroyed bool
}

func newFence(d *Device, desc FenceDesc) (*Fence, error) {
	if desc.InitialValue == Auto {
		return nil, configErr("CreateFence", "initial value %d is reserved", Auto)
	}
	native, err := d.backend.CreateFence(desc.InitialValue, desc.Shared)
	if err != nil {
		return nil, sharedFenceErr("CreateFence", err)
	}
	f := &Fence{desc: desc, native: native}
	f.device = d
	f.signaled.Store(desc.InitialValue)
	d.logger().Debug("gpures: fence created",
		"label", desc.Label, "initial", desc.InitialValue, "shared", desc.Shared)
	return f, nil
}

// Desc returns the fence description.
func (f *Fence) Desc() FenceDesc { return f.desc }

// Label returns the debug label.
func (f *Fence) Label() string { return f.desc.Label }

// Native returns the backend fence, or nil once destroyed.
func (f *Fence) Native() NativeFence { return f.native }

// SignaledValue returns the last value signaled from the host or announced
// through UpdateSignaledValue.
func (f *Fence) SignaledValue() uint64 { return f.signaled.Load() }

// nextValue resolves Auto and enforces monotonicity.
func (f *Fence) nextValue(op string, value uint64) (uint64, error) {
	cur := f.signaled.Load()
	if value == Auto {
		return cur + 1, nil
	}
	if value < cur {
		return 0, rangeErr(op, "value %d is below signaled value %d", value, cur)
	}
	return value, nil
}

// Signal sets the fence to value from the host and returns the signaled
// value. Auto signals one past the previous signaled value.
func (f *Fence) Signal(value uint64) (uint64, error) {
	const op = "Fence.Signal"
	if f.destroyed {
		return 0, destroyedErr(op)
	}
	v, err := f.nextValue(op, value)
	if err != nil {
		return 0, err
	}
	if err := f.native.Signal(v); err != nil {
		return 0, backendErr(op, err)
	}
	f.signaled.Store(v)
	return v, nil
}

// UpdateSignaledValue records that the device will signal value (for
// example through a queue submission) without touching the native fence.
// It returns the new signaled value. Auto yields one past the previous one.
func (f *Fence) UpdateSignaledValue(value uint64) (uint64, error) {
	v, err := f.nextValue("Fence.UpdateSignaledValue", value)
	if err != nil {
		return 0, err
	}
	f.signaled.Store(v)
	return v, nil
}

// CurrentValue queries the value the native fence has reached.
func (f *Fence) CurrentValue() (uint64, error) {
	const op = "Fence.CurrentValue"
	if f.destroyed {
		return 0, destroyedErr(op)
	}
	v, err := f.native.CompletedValue()
	if err != nil {
		return 0, backendErr(op, err)
	}
	return v, nil
}

// Wait blocks the host until the fence reaches value. Auto waits for the
// last signaled value. A negative timeout (Infinite) waits without limit;
// otherwise a wait that does not complete in time fails with ErrTimeout.
func (f *Fence) Wait(value uint64, timeout time.Duration) error {
	const op = "Fence.Wait"
	if f.destroyed {
		return destroyedErr(op)
	}
	if value == Auto {
		value = f.signaled.Load()
	}
	cur, err := f.native.CompletedValue()
	if err != nil {
		return backendErr(op, err)
	}
	if cur >= value {
		return nil
	}
	ok, err := f.native.Wait(value, timeout)
	if err != nil {
		return backendErr(op, err)
	}
	if !ok {
		return &Error{
			Kind:   KindTimeout,
			Op:     op,
			Detail: fmt.Sprintf("value %d not reached within %v", value, timeout),
		}
	}
	return nil
}

// SharedHandle returns the interop handle of a shared fence.
func (f *Fence) SharedHandle() (uintptr, error) {
	const op = "Fence.SharedHandle"
	if f.destroyed {
		return 0, destroyedErr(op)
	}
	if !f.desc.Shared {
		return 0, capabilityErr(op, "fence %q was not created shared", f.desc.Label)
	}
	h, err := f.native.SharedHandle()
	if err != nil {
		return 0, sharedFenceErr(op, err)
	}
	return h, nil
}

// Destroy releases the native fence. Destroy is idempotent.
func (f *Fence) Destroy() {
	if f.destroyed {
		return
	}
	f.destroyed = true
	f.device.backend.Release(f.native)
	f.native = nil
}

// String returns a readable description of the fence.
func (f *Fence) String() string {
	return fmt.Sprintf("Fence[%q signaled=%d]", f.desc.Label, f.SignaledValue())
}
