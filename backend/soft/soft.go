// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft implements gpures.Backend in host memory.
//
// Buffers and textures are byte slices, views are bookkeeping records, and
// fences are counters that host goroutines can wait on. Device progress is
// simulated: a fence value announced with gpures.Fence.UpdateSignaledValue
// completes when the test (or tool) calls Fence.Complete.
//
// The soft backend is registered as "soft" and is the fallback of
// backend.Default.
package soft

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpures"
	"github.com/gogpu/gpures/backend"
)

func init() {
	backend.Register(backend.BackendSoft, func() (gpures.Backend, error) {
		return New(Config{}), nil
	})
}

// Errors returned by the soft backend.
var (
	ErrDestroyed     = errors.New("soft: backend destroyed")
	ErrUnknownHandle = errors.New("soft: handle not created by this backend")
	ErrNotShareable  = fmt.Errorf("soft: %w", gpures.ErrSharedFenceUnsupported)
)

// Config configures the soft backend. The zero value is ready to use.
type Config struct {
	// Limits reported to the device. Zero fields use gpures.DefaultLimits.
	Limits gpures.Limits

	// SupportedStates overrides the per-format capability query.
	// Nil uses gpures.DefaultSupportedStates.
	SupportedStates func(gpures.Format) gpures.StateSet

	// AddressBase is the device address of the first mapped buffer.
	// Zero uses 0x10000.
	AddressBase uint64

	// SharedFences allows fences created with Shared set.
	SharedFences bool
}

// Backend is a host-memory gpures.Backend.
//
// Handle creation and release are safe for concurrent use; fences may be
// completed from any goroutine.
type Backend struct {
	cfg Config

	mu          sync.Mutex
	live        map[uintptr]gpures.NativeHandle
	nextAddress uint64
	injected    error
	destroyed   bool

	nextID   atomic.Uintptr
	released atomic.Int64
}

var (
	_ gpures.Backend      = (*Backend)(nil)
	_ gpures.BufferMapper = (*Backend)(nil)
)

// New creates a soft backend.
func New(cfg Config) *Backend {
	if cfg.AddressBase == 0 {
		cfg.AddressBase = 0x10000
	}
	return &Backend{
		cfg:         cfg,
		live:        make(map[uintptr]gpures.NativeHandle),
		nextAddress: cfg.AddressBase,
	}
}

// Name returns "soft".
func (b *Backend) Name() string { return backend.BackendSoft }

// Limits returns the configured limits.
func (b *Backend) Limits() gpures.Limits { return b.cfg.Limits }

// SupportedStates returns the states textures of format f support.
func (b *Backend) SupportedStates(f gpures.Format) gpures.StateSet {
	if b.cfg.SupportedStates != nil {
		return b.cfg.SupportedStates(f)
	}
	return gpures.DefaultSupportedStates(f)
}

// InjectError makes the next Create* call fail with err.
func (b *Backend) InjectError(err error) {
	b.mu.Lock()
	b.injected = err
	b.mu.Unlock()
}

// LiveHandles returns the number of created and not yet released handles.
func (b *Backend) LiveHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// ReleasedHandles returns the number of handles released so far.
func (b *Backend) ReleasedHandles() int64 { return b.released.Load() }

// IsLive reports whether h has been created and not released.
func (b *Backend) IsLive(h gpures.NativeHandle) bool {
	if h == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.live[h.NativeHandle()]
	return ok
}

// register assigns an id to a new object. It fails when an error was
// injected or the backend is destroyed.
func (b *Backend) register(newObject func(id uintptr) gpures.NativeHandle) (gpures.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, ErrDestroyed
	}
	if err := b.injected; err != nil {
		b.injected = nil
		return nil, err
	}
	id := b.nextID.Add(1)
	h := newObject(id)
	b.live[id] = h
	return h, nil
}

// CreateBuffer allocates a zeroed buffer.
func (b *Backend) CreateBuffer(desc *gpures.NativeBufferDesc) (gpures.NativeHandle, error) {
	return b.register(func(id uintptr) gpures.NativeHandle {
		buf := &Buffer{id: id, label: desc.Label, data: make([]byte, desc.Size)}
		if desc.MemoryType.HostVisible() {
			buf.address = b.nextAddress
			b.nextAddress += alignAddress(desc.Size)
		}
		return buf
	})
}

func alignAddress(size uint64) uint64 {
	const a = 256
	return (size + a - 1) / a * a
}

// CreateTexture allocates a texture with empty subresources.
func (b *Backend) CreateTexture(desc *gpures.NativeTextureDesc) (gpures.NativeHandle, error) {
	return b.register(func(id uintptr) gpures.NativeHandle {
		return &Texture{id: id, desc: *desc, subresources: make(map[[2]uint32][]byte)}
	})
}

// CreateView records a view over resource.
func (b *Backend) CreateView(resource gpures.NativeHandle, desc *gpures.NativeViewDesc) (gpures.NativeHandle, error) {
	if !b.IsLive(resource) {
		return nil, ErrUnknownHandle
	}
	return b.register(func(id uintptr) gpures.NativeHandle {
		return &View{id: id, resource: resource.NativeHandle(), desc: *desc}
	})
}

// CreateFence creates a fence starting at initial.
func (b *Backend) CreateFence(initial uint64, shared bool) (gpures.NativeFence, error) {
	if shared && !b.cfg.SharedFences {
		return nil, ErrNotShareable
	}
	h, err := b.register(func(id uintptr) gpures.NativeHandle {
		return newFence(id, initial, shared)
	})
	if err != nil {
		return nil, err
	}
	return h.(*Fence), nil
}

func (b *Backend) buffer(h gpures.NativeHandle) (*Buffer, error) {
	buf, ok := h.(*Buffer)
	if !ok || !b.IsLive(h) {
		return nil, ErrUnknownHandle
	}
	return buf, nil
}

func (b *Backend) texture(h gpures.NativeHandle) (*Texture, error) {
	tex, ok := h.(*Texture)
	if !ok || !b.IsLive(h) {
		return nil, ErrUnknownHandle
	}
	return tex, nil
}

// WriteBuffer copies data into the buffer at offset.
func (b *Backend) WriteBuffer(h gpures.NativeHandle, offset uint64, data []byte) error {
	buf, err := b.buffer(h)
	if err != nil {
		return err
	}
	if offset > uint64(len(buf.data)) || uint64(len(data)) > uint64(len(buf.data))-offset {
		return fmt.Errorf("soft: write [%d, +%d) outside buffer of %d bytes", offset, len(data), len(buf.data))
	}
	copy(buf.data[offset:], data)
	return nil
}

// ReadBuffer copies len(dst) bytes at offset into dst.
func (b *Backend) ReadBuffer(h gpures.NativeHandle, offset uint64, dst []byte) error {
	buf, err := b.buffer(h)
	if err != nil {
		return err
	}
	if offset > uint64(len(buf.data)) || uint64(len(dst)) > uint64(len(buf.data))-offset {
		return fmt.Errorf("soft: read [%d, +%d) outside buffer of %d bytes", offset, len(dst), len(buf.data))
	}
	copy(dst, buf.data[offset:])
	return nil
}

// MapBuffer returns the backing slice and device address of a buffer.
func (b *Backend) MapBuffer(h gpures.NativeHandle) ([]byte, uint64, error) {
	buf, err := b.buffer(h)
	if err != nil {
		return nil, 0, err
	}
	return buf.data, buf.address, nil
}

// WriteTexture stores one subresource. Row padding is stripped.
func (b *Backend) WriteTexture(h gpures.NativeHandle, mip, slice uint32, layout gpures.SubresourceLayout, data []byte) error {
	tex, err := b.texture(h)
	if err != nil {
		return err
	}
	if uint64(len(data)) < layout.TotalSize() {
		return fmt.Errorf("soft: texture write of %d bytes, layout needs %d", len(data), layout.TotalSize())
	}
	rows := uint64(layout.RowCount) * uint64(layout.Depth)
	tight := make([]byte, layout.TightSize())
	for r := range rows {
		copy(tight[r*layout.RowSize:(r+1)*layout.RowSize], data[r*layout.RowPitch:])
	}
	tex.mu.Lock()
	tex.subresources[[2]uint32{mip, slice}] = tight
	tex.mu.Unlock()
	return nil
}

// ReadTexture returns one subresource padded to layout.RowPitch. Never
// written subresources read as zeros.
func (b *Backend) ReadTexture(h gpures.NativeHandle, mip, slice uint32, layout gpures.SubresourceLayout) ([]byte, error) {
	tex, err := b.texture(h)
	if err != nil {
		return nil, err
	}
	tex.mu.Lock()
	tight := tex.subresources[[2]uint32{mip, slice}]
	tex.mu.Unlock()
	out := make([]byte, layout.TotalSize())
	if tight == nil {
		return out, nil
	}
	rows := uint64(layout.RowCount) * uint64(layout.Depth)
	for r := range rows {
		copy(out[r*layout.RowPitch:], tight[r*layout.RowSize:(r+1)*layout.RowSize])
	}
	return out, nil
}

// Release forgets a handle. Releasing an unknown or already released handle
// is logged and ignored.
func (b *Backend) Release(h gpures.NativeHandle) {
	if h == nil {
		return
	}
	b.mu.Lock()
	id := h.NativeHandle()
	_, ok := b.live[id]
	delete(b.live, id)
	b.mu.Unlock()
	if !ok {
		gpures.Logger().Warn("soft: release of unknown handle", "id", id)
		return
	}
	if f, isFence := h.(*Fence); isFence {
		f.close()
	}
	b.released.Add(1)
}

// Destroy marks the backend destroyed. Live handles are reported and dropped.
func (b *Backend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	if n := len(b.live); n > 0 {
		gpures.Logger().Warn("soft: destroyed with live handles", "count", n)
	}
	clear(b.live)
}

// Buffer is a soft buffer handle.
type Buffer struct {
	id      uintptr
	label   string
	data    []byte
	address uint64
}

// NativeHandle returns the handle id.
func (b *Buffer) NativeHandle() uintptr { return b.id }

// Bytes returns the backing storage.
func (b *Buffer) Bytes() []byte { return b.data }

// Texture is a soft texture handle.
type Texture struct {
	id           uintptr
	desc         gpures.NativeTextureDesc
	mu           sync.Mutex
	subresources map[[2]uint32][]byte
}

// NativeHandle returns the handle id.
func (t *Texture) NativeHandle() uintptr { return t.id }

// Desc returns the creation description.
func (t *Texture) Desc() gpures.NativeTextureDesc { return t.desc }

// View is a soft view handle.
type View struct {
	id       uintptr
	resource uintptr
	desc     gpures.NativeViewDesc
}

// NativeHandle returns the handle id.
func (v *View) NativeHandle() uintptr { return v.id }

// Desc returns the creation description.
func (v *View) Desc() gpures.NativeViewDesc { return v.desc }

// ResourceHandle returns the id of the viewed resource.
func (v *View) ResourceHandle() uintptr { return v.resource }

// Fence is a soft fence: a monotonic counter with waiters.
type Fence struct {
	id     uintptr
	shared bool

	mu      sync.Mutex
	value   uint64
	changed chan struct{}
	closed  bool
}

func newFence(id uintptr, initial uint64, shared bool) *Fence {
	return &Fence{id: id, shared: shared, value: initial, changed: make(chan struct{})}
}

// NativeHandle returns the handle id.
func (f *Fence) NativeHandle() uintptr { return f.id }

// Signal sets the counter to value from the host.
func (f *Fence) Signal(value uint64) error {
	f.Complete(value)
	return nil
}

// Complete advances the counter to value, as if the device reached it.
// Lower values are ignored; waiters whose target is reached wake up.
func (f *Fence) Complete(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value <= f.value {
		return
	}
	f.value = value
	close(f.changed)
	f.changed = make(chan struct{})
}

// CompleteAfter completes value once d has elapsed.
func (f *Fence) CompleteAfter(value uint64, d time.Duration) {
	time.AfterFunc(d, func() { f.Complete(value) })
}

// CompletedValue returns the counter.
func (f *Fence) CompletedValue() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, nil
}

// Wait blocks until the counter reaches value. A negative timeout waits
// without limit.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		f.mu.Lock()
		if f.value >= value {
			f.mu.Unlock()
			return true, nil
		}
		if f.closed {
			f.mu.Unlock()
			return false, ErrDestroyed
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-deadline:
			return false, nil
		}
	}
}

// SharedHandle returns the handle id of a shared fence.
func (f *Fence) SharedHandle() (uintptr, error) {
	if !f.shared {
		return 0, ErrNotShareable
	}
	return f.id, nil
}

// close wakes every waiter with ErrDestroyed.
func (f *Fence) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.changed)
	f.changed = make(chan struct{})
}
