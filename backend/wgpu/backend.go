// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/gpures"
	"github.com/gogpu/gpures/backend"
)

// Errors returned by the wgpu backend.
var (
	// ErrDestroyed is returned after the backend or a fence was destroyed.
	ErrDestroyed = errors.New("wgpu: destroyed")

	// ErrUnknownHandle is returned for handles this backend did not create.
	ErrUnknownHandle = errors.New("wgpu: unknown handle")

	// ErrNotShareable is returned when a shared fence is requested.
	ErrNotShareable = fmt.Errorf("wgpu: %w", gpures.ErrSharedFenceUnsupported)

	// ErrUnsupportedFormat is returned for formats WebGPU cannot represent.
	ErrUnsupportedFormat = errors.New("wgpu: unsupported texture format")

	// ErrNoAdapter is returned by Open when the HAL backend exposes no
	// adapters.
	ErrNoAdapter = errors.New("wgpu: no GPU adapters found")
)

// DefaultSubmitTimeout bounds internal copy submissions.
const DefaultSubmitTimeout = 5 * time.Second

func init() {
	backend.Register(backend.BackendWGPU, func() (gpures.Backend, error) {
		return Open(Config{})
	})
}

// Config configures Open.
type Config struct {
	// API selects the HAL backend. Zero selects Vulkan.
	API gputypes.Backend

	// Limits overrides the reported limits; zero fields keep the defaults.
	Limits gpures.Limits

	// SubmitTimeout bounds readback submissions. Zero uses
	// DefaultSubmitTimeout.
	SubmitTimeout time.Duration
}

// Backend implements gpures.Backend and gpures.BufferMapper on a HAL device.
type Backend struct {
	device   hal.Device
	queue    hal.Queue
	adapter  hal.Adapter
	instance hal.Instance
	owned    bool
	limits   gpures.Limits
	timeout  time.Duration
	nextID   atomic.Uintptr

	mu        sync.Mutex
	live      map[uintptr]gpures.NativeHandle
	destroyed bool
}

// Buffer is a HAL buffer handle.
type Buffer struct {
	id     uintptr
	raw    hal.Buffer
	size   uint64
	mapped []byte
}

// NativeHandle implements gpures.NativeHandle.
func (b *Buffer) NativeHandle() uintptr { return b.id }

// Raw returns the HAL buffer.
func (b *Buffer) Raw() hal.Buffer { return b.raw }

// Texture is a HAL texture handle.
type Texture struct {
	id   uintptr
	raw  hal.Texture
	desc gpures.NativeTextureDesc
}

// NativeHandle implements gpures.NativeHandle.
func (t *Texture) NativeHandle() uintptr { return t.id }

// Raw returns the HAL texture.
func (t *Texture) Raw() hal.Texture { return t.raw }

// View is a HAL texture view, or an empty handle for buffer views.
type View struct {
	id  uintptr
	raw hal.TextureView
}

// NativeHandle implements gpures.NativeHandle.
func (v *View) NativeHandle() uintptr { return v.id }

// Raw returns the HAL texture view, or nil for buffer views.
func (v *View) Raw() hal.TextureView { return v.raw }

// Open creates a standalone device on the configured HAL backend,
// preferring discrete and integrated GPUs.
func Open(cfg Config) (*Backend, error) {
	api := cfg.API
	if api == gputypes.BackendEmpty {
		api = gputypes.BackendVulkan
	}
	hb, ok := hal.GetBackend(api)
	if !ok {
		return nil, fmt.Errorf("wgpu: %s: %w", api, hal.ErrBackendNotFound)
	}
	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	b := newBackend(openDev.Device, openDev.Queue, cfg)
	b.adapter = selected.Adapter
	b.instance = instance
	b.owned = true
	gpures.Logger().Info("wgpu: device opened", "api", api.String(), "adapter", selected.Info.Name)
	return b, nil
}

// FromHAL wraps a device and queue owned by the caller. Destroy does not
// destroy them.
func FromHAL(device hal.Device, queue hal.Queue, cfg Config) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, errors.New("wgpu: nil device or queue")
	}
	return newBackend(device, queue, cfg), nil
}

// FromProvider wraps the device of a gpucontext.DeviceProvider. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.New("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.New("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("wgpu: provider HalQueue is not hal.Queue")
	}
	return FromHAL(device, queue, cfg)
}

func newBackend(device hal.Device, queue hal.Queue, cfg Config) *Backend {
	limits := cfg.Limits
	if limits.TextureRowAlignment == 0 {
		limits.TextureRowAlignment = 256
	}
	if limits.BufferAlignment == 0 {
		limits.BufferAlignment = uint64(gputypes.DefaultLimits().MinStorageBufferOffsetAlignment)
	}
	timeout := cfg.SubmitTimeout
	if timeout == 0 {
		timeout = DefaultSubmitTimeout
	}
	return &Backend{
		device:  device,
		queue:   queue,
		limits:  limits,
		timeout: timeout,
		live:    make(map[uintptr]gpures.NativeHandle),
	}
}

// Name implements gpures.Backend.
func (b *Backend) Name() string { return backend.BackendWGPU }

// Limits implements gpures.Backend.
func (b *Backend) Limits() gpures.Limits { return b.limits }

// Device returns the HAL device.
func (b *Backend) Device() hal.Device { return b.device }

// Queue returns the HAL queue.
func (b *Backend) Queue() hal.Queue { return b.queue }

// LiveHandles returns the number of handles not yet released.
func (b *Backend) LiveHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

func (b *Backend) register(h gpures.NativeHandle) {
	b.mu.Lock()
	b.live[h.NativeHandle()] = h
	b.mu.Unlock()
}

func (b *Backend) checkAlive() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	return nil
}

func (b *Backend) id() uintptr { return b.nextID.Add(1) }

// SupportedStates implements gpures.Backend. Without an adapter the format
// defaults apply to every format WebGPU can represent.
func (b *Backend) SupportedStates(f gpures.Format) gpures.StateSet {
	tf, ok := TextureFormat(f)
	if !ok {
		return 0
	}
	if b.adapter == nil {
		return gpures.DefaultSupportedStates(f)
	}
	return formatStates(f, b.adapter.TextureFormatCapabilities(tf).Flags)
}

// CreateBuffer implements gpures.Backend. Host-visible buffers are mapped
// for their whole lifetime.
func (b *Backend) CreateBuffer(desc *gpures.NativeBufferDesc) (gpures.NativeHandle, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: bufferUsage(desc.Usage, desc.MemoryType),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	buf := &Buffer{id: b.id(), raw: raw, size: desc.Size}
	if desc.MemoryType != gpures.MemoryDeviceLocal {
		m, err := b.device.MapBuffer(raw, 0, desc.Size)
		if err != nil {
			b.device.DestroyBuffer(raw)
			return nil, fmt.Errorf("wgpu: map buffer %q: %w", desc.Label, err)
		}
		buf.mapped = unsafe.Slice((*byte)(m.Ptr), desc.Size)
	}
	b.register(buf)
	return buf, nil
}

// CreateTexture implements gpures.Backend.
func (b *Backend) CreateTexture(desc *gpures.NativeTextureDesc) (gpures.NativeHandle, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	format, ok := TextureFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, desc.Format)
	}
	raw, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          textureExtent(desc),
		MipLevelCount: desc.MipCount,
		SampleCount:   desc.SampleCount,
		Dimension:     textureDimension(desc.Type),
		Format:        format,
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	tex := &Texture{id: b.id(), raw: raw, desc: *desc}
	b.register(tex)
	return tex, nil
}

// CreateView implements gpures.Backend. WebGPU binds buffer ranges
// directly, so buffer views own no HAL object.
func (b *Backend) CreateView(resource gpures.NativeHandle, desc *gpures.NativeViewDesc) (gpures.NativeHandle, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	switch r := resource.(type) {
	case *Buffer:
		v := &View{id: b.id()}
		b.register(v)
		return v, nil
	case *Texture:
		format, ok := TextureFormat(desc.View.Format)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, desc.View.Format)
		}
		sub := desc.View.Subresources
		raw, err := b.device.CreateTextureView(r.raw, &hal.TextureViewDescriptor{
			Label:           desc.Label,
			Format:          format,
			Dimension:       viewDimension(desc),
			Aspect:          viewAspect(desc),
			BaseMipLevel:    sub.MipLevel,
			MipLevelCount:   sub.MipCount,
			BaseArrayLayer:  sub.BaseArrayLayer,
			ArrayLayerCount: sub.LayerCount,
		})
		if err != nil {
			return nil, fmt.Errorf("wgpu: create view %q: %w", desc.Label, err)
		}
		v := &View{id: b.id(), raw: raw}
		b.register(v)
		return v, nil
	default:
		return nil, ErrUnknownHandle
	}
}

// CreateFence implements gpures.Backend.
func (b *Backend) CreateFence(initial uint64, shared bool) (gpures.NativeFence, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	if shared {
		return nil, ErrNotShareable
	}
	f := &Fence{id: b.id(), b: b, completed: initial}
	b.register(f)
	return f, nil
}

// MapBuffer implements gpures.BufferMapper. WebGPU has no buffer device
// addresses, so the address is always zero.
func (b *Backend) MapBuffer(buffer gpures.NativeHandle) ([]byte, uint64, error) {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return nil, 0, ErrUnknownHandle
	}
	if buf.mapped == nil {
		return nil, 0, fmt.Errorf("wgpu: buffer %d is not host visible", buf.id)
	}
	return buf.mapped, 0, nil
}

// WriteBuffer implements gpures.Backend.
func (b *Backend) WriteBuffer(buffer gpures.NativeHandle, offset uint64, data []byte) error {
	buf, err := b.buffer(buffer, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	if buf.mapped != nil {
		copy(buf.mapped[offset:], data)
		return nil
	}
	return b.queue.WriteBuffer(buf.raw, offset, data)
}

// ReadBuffer implements gpures.Backend. Device-local buffers are copied to
// a staging buffer and read once the copy retires.
func (b *Backend) ReadBuffer(buffer gpures.NativeHandle, offset uint64, dst []byte) error {
	buf, err := b.buffer(buffer, offset, uint64(len(dst)))
	if err != nil {
		return err
	}
	if buf.mapped != nil {
		copy(dst, buf.mapped[offset:])
		return nil
	}
	size := alignUp(uint64(len(dst)), 4)
	return b.readback("read buffer", size, func(enc hal.CommandEncoder, staging hal.Buffer) {
		enc.CopyBufferToBuffer(buf.raw, staging, []hal.BufferCopy{{
			SrcOffset: offset,
			Size:      min(size, buf.size-offset),
		}})
	}, func(data []byte) {
		copy(dst, data)
	})
}

func (b *Backend) buffer(h gpures.NativeHandle, offset, size uint64) (*Buffer, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	buf, ok := h.(*Buffer)
	if !ok {
		return nil, ErrUnknownHandle
	}
	if offset > buf.size || size > buf.size-offset {
		return nil, fmt.Errorf("wgpu: range [%d, %d) outside buffer of %d bytes", offset, offset+size, buf.size)
	}
	return buf, nil
}

// WriteTexture implements gpures.Backend.
func (b *Backend) WriteTexture(texture gpures.NativeHandle, mip, slice uint32, layout gpures.SubresourceLayout, data []byte) error {
	tex, err := b.texture(texture)
	if err != nil {
		return err
	}
	size := tex.copyExtent(mip)
	return b.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex.raw, MipLevel: mip, Origin: hal.Origin3D{Z: slice}, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: uint32(layout.RowPitch), RowsPerImage: layout.RowCount}, //nolint:gosec // G115: row pitch fits uint32
		&size,
	)
}

// ReadTexture implements gpures.Backend.
func (b *Backend) ReadTexture(texture gpures.NativeHandle, mip, slice uint32, layout gpures.SubresourceLayout) ([]byte, error) {
	tex, err := b.texture(texture)
	if err != nil {
		return nil, err
	}
	out := make([]byte, layout.TotalSize())
	size := tex.copyExtent(mip)
	err = b.readback("read texture", uint64(len(out)), func(enc hal.CommandEncoder, staging hal.Buffer) {
		enc.CopyTextureToBuffer(tex.raw, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: uint32(layout.RowPitch), RowsPerImage: layout.RowCount}, //nolint:gosec // G115: row pitch fits uint32
			TextureBase:  hal.ImageCopyTexture{Texture: tex.raw, MipLevel: mip, Origin: hal.Origin3D{Z: slice}, Aspect: gputypes.TextureAspectAll},
			Size:         size,
		}})
	}, func(data []byte) {
		copy(out, data)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) texture(h gpures.NativeHandle) (*Texture, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	tex, ok := h.(*Texture)
	if !ok {
		return nil, ErrUnknownHandle
	}
	return tex, nil
}

// copyExtent returns the extent of one subresource of mip.
func (t *Texture) copyExtent(mip uint32) hal.Extent3D {
	e := hal.Extent3D{
		Width:              max(t.desc.Width>>mip, 1),
		Height:             max(t.desc.Height>>mip, 1),
		DepthOrArrayLayers: 1,
	}
	if t.desc.Type == gpures.Texture3D {
		e.DepthOrArrayLayers = max(t.desc.Depth>>mip, 1)
	}
	return e
}

// readback records a copy into a staging buffer of size bytes, submits it,
// waits for it to retire and hands the staging contents to read.
func (b *Backend) readback(label string, size uint64, record func(hal.CommandEncoder, hal.Buffer), read func([]byte)) error {
	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gpures " + label + " staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: %s: create staging buffer: %w", label, err)
	}
	defer b.device.DestroyBuffer(staging)

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gpures " + label})
	if err != nil {
		return fmt.Errorf("wgpu: %s: create command encoder: %w", label, err)
	}
	defer encoder.Destroy()
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("wgpu: %s: begin encoding: %w", label, err)
	}
	record(encoder, staging)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: %s: end encoding: %w", label, err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	index, err := b.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("wgpu: %s: submit: %w", label, err)
	}
	if err := b.waitSubmission(index); err != nil {
		return fmt.Errorf("wgpu: %s: %w", label, err)
	}

	m, err := b.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("wgpu: %s: map staging buffer: %w", label, err)
	}
	read(unsafe.Slice((*byte)(m.Ptr), size))
	return b.device.UnmapBuffer(staging)
}

func (b *Backend) waitSubmission(index uint64) error {
	deadline := time.Now().Add(b.timeout)
	interval := minPollInterval
	for b.queue.PollCompleted() < index {
		if !time.Now().Before(deadline) {
			return hal.ErrTimeout
		}
		time.Sleep(interval)
		interval = min(interval*2, maxPollInterval)
	}
	return nil
}

// Release implements gpures.Backend.
func (b *Backend) Release(h gpures.NativeHandle) {
	if h == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.live[h.NativeHandle()]
	delete(b.live, h.NativeHandle())
	b.mu.Unlock()
	if !ok {
		gpures.Logger().Warn("wgpu: release of unknown handle", "handle", h.NativeHandle())
		return
	}
	switch r := h.(type) {
	case *Buffer:
		if r.mapped != nil {
			r.mapped = nil
			if err := b.device.UnmapBuffer(r.raw); err != nil {
				gpures.Logger().Warn("wgpu: unmap buffer failed", "handle", r.id, "err", err)
			}
		}
		b.device.DestroyBuffer(r.raw)
	case *Texture:
		b.device.DestroyTexture(r.raw)
	case *View:
		if r.raw != nil {
			b.device.DestroyTextureView(r.raw)
		}
	case *Fence:
		r.destroy()
	}
}

// Destroy releases every live handle and, for devices created by Open, the
// device and instance. Destroy is idempotent.
func (b *Backend) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	live := make([]gpures.NativeHandle, 0, len(b.live))
	for _, h := range b.live {
		live = append(live, h)
	}
	b.mu.Unlock()

	if len(live) > 0 {
		gpures.Logger().Warn("wgpu: destroying backend with live handles", "count", len(live))
	}
	for _, h := range live {
		b.Release(h)
	}

	b.mu.Lock()
	b.destroyed = true
	b.mu.Unlock()

	if !b.owned {
		return
	}
	if err := b.device.WaitIdle(); err != nil {
		gpures.Logger().Warn("wgpu: wait idle failed", "err", err)
	}
	b.device.Destroy()
	if b.instance != nil {
		b.instance.Destroy()
	}
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

var (
	_ gpures.Backend      = (*Backend)(nil)
	_ gpures.BufferMapper = (*Backend)(nil)
	_ gpures.NativeFence  = (*Fence)(nil)
)
