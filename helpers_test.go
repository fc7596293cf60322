package gpures_test

import (
	"testing"
	"time"

	"github.com/gogpu/gpures"
	"github.com/gogpu/gpures/backend/soft"
)

// newDevice opens a device over a fresh soft backend and closes it when the
// test ends.
func newDevice(t *testing.T, opts ...gpures.DeviceOption) (*gpures.Device, *soft.Backend) {
	t.Helper()
	return newDeviceWith(t, soft.Config{}, opts...)
}

func newDeviceWith(t *testing.T, cfg soft.Config, opts ...gpures.DeviceOption) (*gpures.Device, *soft.Backend) {
	t.Helper()
	b := soft.New(cfg)
	opts = append([]gpures.DeviceOption{
		gpures.WithLabel(t.Name()),
		gpures.WithCloseTimeout(10 * time.Millisecond),
	}, opts...)
	d, err := gpures.NewDevice(b, opts...)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, b
}

// nativeFence returns the soft counter behind f.
func nativeFence(t *testing.T, f *gpures.Fence) *soft.Fence {
	t.Helper()
	nf, ok := f.Native().(*soft.Fence)
	if !ok {
		t.Fatalf("fence native is %T, want *soft.Fence", f.Native())
	}
	return nf
}

// markInFlight advances the device fence's host-side value without the
// device reaching it, as a queue submission would.
func markInFlight(t *testing.T, d *gpures.Device) uint64 {
	t.Helper()
	v, err := d.Fence().UpdateSignaledValue(gpures.Auto)
	if err != nil {
		t.Fatalf("UpdateSignaledValue() error = %v", err)
	}
	return v
}

func mustBuffer(t *testing.T, d *gpures.Device, desc gpures.BufferDesc) *gpures.Buffer {
	t.Helper()
	b, err := d.CreateBuffer(desc)
	if err != nil {
		t.Fatalf("CreateBuffer(%+v) error = %v", desc, err)
	}
	return b
}

func mustTexture(t *testing.T, d *gpures.Device, desc gpures.TextureDesc) *gpures.Texture {
	t.Helper()
	tex, err := d.CreateTexture(desc)
	if err != nil {
		t.Fatalf("CreateTexture(%+v) error = %v", desc, err)
	}
	return tex
}
