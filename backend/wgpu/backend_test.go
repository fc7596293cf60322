//go:build !nogpu

package wgpu

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpures"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func newNoopBackend(t *testing.T) *Backend {
	t.Helper()
	device, queue := createNoopDevice(t)
	b, err := FromHAL(device, queue, Config{})
	if err != nil {
		t.Fatalf("FromHAL failed: %v", err)
	}
	t.Cleanup(b.Destroy)
	return b
}

// fakeProvider is a gpucontext.DeviceProvider exposing HAL types.
type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p fakeProvider) Device() gpucontext.Device             { return p.device }
func (p fakeProvider) Queue() gpucontext.Queue               { return p.queue }
func (p fakeProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p fakeProvider) Adapter() gpucontext.Adapter           { return nil }
func (p fakeProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }
func (p fakeProvider) HalDevice() any                        { return p.device }
func (p fakeProvider) HalQueue() any                         { return p.queue }

// plainProvider does not expose HAL types.
type plainProvider struct{ fakeProvider }

func (plainProvider) HalDevice() int { return 0 }

func TestFromHALNil(t *testing.T) {
	if _, err := FromHAL(nil, nil, Config{}); err == nil {
		t.Error("FromHAL(nil, nil) should fail")
	}
}

func TestFromProvider(t *testing.T) {
	device, queue := createNoopDevice(t)

	b, err := FromProvider(fakeProvider{device, queue}, Config{})
	if err != nil {
		t.Fatalf("FromProvider() error = %v", err)
	}
	defer b.Destroy()
	if b.Device() != device || b.Queue() != queue {
		t.Error("FromProvider() should wrap the provider's device and queue")
	}

	if _, err := FromProvider(plainProvider{fakeProvider{device, queue}}, Config{}); err == nil {
		t.Error("FromProvider() without HAL accessors should fail")
	}
}

func TestLimitsDefaults(t *testing.T) {
	b := newNoopBackend(t)
	l := b.Limits()
	if l.TextureRowAlignment != 256 || l.BufferAlignment != 256 {
		t.Errorf("Limits() = %+v, want row alignment 256 and buffer alignment 256", l)
	}
	if b.Name() != "wgpu" {
		t.Errorf("Name() = %q, want %q", b.Name(), "wgpu")
	}
}

func TestSupportedStates(t *testing.T) {
	b := newNoopBackend(t)
	if got := b.SupportedStates(gpures.FormatRGBA8Typeless); got != 0 {
		t.Errorf("SupportedStates(typeless) = %v, want none", got)
	}
	if !b.SupportedStates(gpures.FormatRGBA8Unorm).Has(gpures.StateRenderTarget) {
		t.Error("rgba8_unorm should support render target")
	}
}

func TestFormatStatesNarrowing(t *testing.T) {
	states := formatStates(gpures.FormatRGBA8Unorm, hal.TextureFormatCapabilitySampled)
	if !states.Has(gpures.StateShaderResource) {
		t.Error("sampled format should keep shader resource")
	}
	if states.Has(gpures.StateRenderTarget) || states.Has(gpures.StateUnorderedAccess) {
		t.Errorf("formatStates() = %v, want render target and UAV removed", states)
	}
}

func TestBufferUsage(t *testing.T) {
	tests := []struct {
		name  string
		usage gpures.ResourceUsage
		mem   gpures.MemoryType
		want  gputypes.BufferUsage
	}{
		{"upload", gpures.UsageVertex, gpures.MemoryUpload, gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc},
		{"readback", gpures.UsageNone, gpures.MemoryReadBack, gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst},
		{"vertex", gpures.UsageVertex, gpures.MemoryDeviceLocal,
			gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst | gputypes.BufferUsageVertex},
		{"srv", gpures.UsageShaderResource | gpures.UsageConstant, gpures.MemoryDeviceLocal,
			gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst | gputypes.BufferUsageUniform | gputypes.BufferUsageStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bufferUsage(tt.usage, tt.mem); got != tt.want {
				t.Errorf("bufferUsage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestViewDimension(t *testing.T) {
	tests := []struct {
		name string
		desc gpures.NativeViewDesc
		want gputypes.TextureViewDimension
	}{
		{"2d", gpures.NativeViewDesc{TextureType: gpures.Texture2D,
			View: gpures.ResourceViewDesc{Subresources: gpures.SubresourceRange{LayerCount: 1}}},
			gputypes.TextureViewDimension2D},
		{"2d array", gpures.NativeViewDesc{TextureType: gpures.Texture2D,
			View: gpures.ResourceViewDesc{Subresources: gpures.SubresourceRange{LayerCount: 4}}},
			gputypes.TextureViewDimension2DArray},
		{"cube srv", gpures.NativeViewDesc{TextureType: gpures.TextureCube,
			View: gpures.ResourceViewDesc{Type: gpures.ViewShaderResource, Subresources: gpures.SubresourceRange{LayerCount: 6}}},
			gputypes.TextureViewDimensionCube},
		{"cube array srv", gpures.NativeViewDesc{TextureType: gpures.TextureCube,
			View: gpures.ResourceViewDesc{Type: gpures.ViewShaderResource, Subresources: gpures.SubresourceRange{LayerCount: 12}}},
			gputypes.TextureViewDimensionCubeArray},
		{"cube face rtv", gpures.NativeViewDesc{TextureType: gpures.TextureCube,
			View: gpures.ResourceViewDesc{Type: gpures.ViewRenderTarget, Subresources: gpures.SubresourceRange{BaseArrayLayer: 2, LayerCount: 1}}},
			gputypes.TextureViewDimension2D},
		{"3d", gpures.NativeViewDesc{TextureType: gpures.Texture3D,
			View: gpures.ResourceViewDesc{Subresources: gpures.SubresourceRange{LayerCount: 1}}},
			gputypes.TextureViewDimension3D},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := viewDimension(&tt.desc); got != tt.want {
				t.Errorf("viewDimension() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUploadBufferRoundTrip(t *testing.T) {
	b := newNoopBackend(t)
	h, err := b.CreateBuffer(&gpures.NativeBufferDesc{Label: "upload", Size: 16, MemoryType: gpures.MemoryUpload})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if err := b.WriteBuffer(h, 2, []byte{7, 8, 9}); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}
	got := make([]byte, 4)
	if err := b.ReadBuffer(h, 1, got); err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	if want := []byte{0, 7, 8, 9}; !bytes.Equal(got, want) {
		t.Errorf("ReadBuffer() = %v, want %v", got, want)
	}

	data, addr, err := b.MapBuffer(h)
	if err != nil || len(data) != 16 || addr != 0 {
		t.Errorf("MapBuffer() = %d bytes at %#x, %v; want 16 bytes at 0", len(data), addr, err)
	}
	if err := b.WriteBuffer(h, 15, []byte{1, 2}); err == nil {
		t.Error("WriteBuffer() past the end should fail")
	}
}

func TestDeviceLocalBufferReadback(t *testing.T) {
	b := newNoopBackend(t)
	h, err := b.CreateBuffer(&gpures.NativeBufferDesc{Size: 64, Usage: gpures.UsageShaderResource})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if _, _, err := b.MapBuffer(h); err == nil {
		t.Error("MapBuffer() on device-local memory should fail")
	}
	if err := b.WriteBuffer(h, 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}
	// The noop queue does not execute copies; the staging path must still
	// complete and fill dst.
	dst := []byte{0xff, 0xff, 0xff}
	if err := b.ReadBuffer(h, 8, dst); err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
}

func TestTextureLifecycle(t *testing.T) {
	b := newNoopBackend(t)
	h, err := b.CreateTexture(&gpures.NativeTextureDesc{
		Label: "albedo", Type: gpures.Texture2D, Format: gpures.FormatRGBA8Unorm,
		Width: 4, Height: 4, Depth: 1, ArraySize: 2, MipCount: 3, SampleCount: 1,
		Usage: gpures.UsageShaderResource,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	view, err := b.CreateView(h, &gpures.NativeViewDesc{
		ResourceType: gpures.ResourceTypeTexture,
		TextureType:  gpures.Texture2D,
		View: gpures.ResourceViewDesc{
			Type:         gpures.ViewShaderResource,
			Format:       gpures.FormatRGBA8Unorm,
			Subresources: gpures.SubresourceRange{MipCount: 3, LayerCount: 2},
		},
	})
	if err != nil {
		t.Fatalf("CreateView() error = %v", err)
	}
	if view.(*View).Raw() == nil {
		t.Error("texture view should own a HAL view")
	}

	layout := gpures.SubresourceLayout{RowSize: 8, RowPitch: 256, RowCount: 2, Depth: 1}
	if err := b.WriteTexture(h, 1, 1, layout, make([]byte, layout.TotalSize())); err != nil {
		t.Fatalf("WriteTexture() error = %v", err)
	}
	got, err := b.ReadTexture(h, 1, 1, layout)
	if err != nil {
		t.Fatalf("ReadTexture() error = %v", err)
	}
	if uint64(len(got)) != layout.TotalSize() {
		t.Errorf("ReadTexture() = %d bytes, want %d", len(got), layout.TotalSize())
	}

	if n := b.LiveHandles(); n != 2 {
		t.Errorf("LiveHandles() = %d, want 2", n)
	}
	b.Release(view)
	b.Release(h)
	b.Release(h) // unknown, logged
	if n := b.LiveHandles(); n != 0 {
		t.Errorf("LiveHandles() after release = %d, want 0", n)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	b := newNoopBackend(t)
	_, err := b.CreateTexture(&gpures.NativeTextureDesc{
		Type: gpures.Texture2D, Format: gpures.FormatRGB32Float,
		Width: 1, Height: 1, Depth: 1, ArraySize: 1, MipCount: 1, SampleCount: 1,
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("CreateTexture(rgb32_float) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestBufferViewOwnsNothing(t *testing.T) {
	b := newNoopBackend(t)
	buf, _ := b.CreateBuffer(&gpures.NativeBufferDesc{Size: 16})
	v, err := b.CreateView(buf, &gpures.NativeViewDesc{ResourceType: gpures.ResourceTypeBuffer})
	if err != nil {
		t.Fatalf("CreateView() error = %v", err)
	}
	if v.(*View).Raw() != nil {
		t.Error("buffer view should not own a HAL view")
	}
}

func TestFence(t *testing.T) {
	b := newNoopBackend(t)
	if _, err := b.CreateFence(0, true); !errors.Is(err, ErrNotShareable) || !errors.Is(err, gpures.ErrSharedFenceUnsupported) {
		t.Errorf("CreateFence(shared) error = %v, want ErrNotShareable", err)
	}

	f, err := b.CreateFence(3, false)
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}
	if v, _ := f.CompletedValue(); v != 3 {
		t.Errorf("CompletedValue() = %d, want 3", v)
	}
	if err := f.Signal(5); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	// The noop queue retires submissions immediately.
	ok, err := f.Wait(5, time.Second)
	if err != nil || !ok {
		t.Errorf("Wait(5) = %v, %v; want true, nil", ok, err)
	}
	ok, err = f.Wait(6, time.Millisecond)
	if err != nil || ok {
		t.Errorf("Wait(6) = %v, %v; want false, nil", ok, err)
	}
	if _, err := f.SharedHandle(); !errors.Is(err, ErrNotShareable) {
		t.Errorf("SharedHandle() error = %v, want ErrNotShareable", err)
	}

	b.Release(f)
	if _, err := f.CompletedValue(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("CompletedValue() after release error = %v, want ErrDestroyed", err)
	}
}

func TestDeviceOverWGPU(t *testing.T) {
	b := newNoopBackend(t)
	d, err := gpures.NewDevice(b, gpures.WithLabel("noop"))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	tex, err := d.CreateTexture(gpures.TextureDesc{
		Format: gpures.FormatBGRA8Unorm,
		Width:  64,
		Height: 64,
		Usage:  gpures.UsageShaderResource | gpures.UsageRenderTarget,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	if _, err := tex.GetRTV(0, 0, 1); err != nil {
		t.Fatalf("GetRTV() error = %v", err)
	}
	tex.Destroy()
	if _, err := d.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestDestroyedBackend(t *testing.T) {
	device, queue := createNoopDevice(t)
	b, _ := FromHAL(device, queue, Config{})
	b.Destroy()
	b.Destroy()
	if _, err := b.CreateBuffer(&gpures.NativeBufferDesc{Size: 4}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("CreateBuffer() after Destroy error = %v, want ErrDestroyed", err)
	}
}
