package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gogpu/gpures"
	"github.com/gogpu/gpures/backend/soft"
)

func newDevice(t *testing.T) *gpures.Device {
	t.Helper()
	d, err := gpures.NewDevice(soft.New(soft.Config{}), gpures.WithLabel("main"))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDeviceCollector(t *testing.T) {
	d := newDevice(t)
	buf, err := d.CreateBuffer(gpures.BufferDesc{Size: 256, Usage: gpures.UsageShaderResource})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if _, err := buf.GetSRV(gpures.EntireBuffer); err != nil {
		t.Fatalf("GetSRV() error = %v", err)
	}

	c := NewDeviceCollector("main", d)
	if n := testutil.CollectAndCount(c); n != 10 {
		t.Errorf("CollectAndCount() = %d, want 10", n)
	}

	want := `
# HELP gpures_device_buffers Live buffers.
# TYPE gpures_device_buffers gauge
gpures_device_buffers{backend="soft",device="main"} 1
# HELP gpures_device_views Live resource views.
# TYPE gpures_device_views gauge
gpures_device_views{backend="soft",device="main"} 1
# HELP gpures_device_memory_device_bytes Device-local bytes held by live resources.
# TYPE gpures_device_memory_device_bytes gauge
gpures_device_memory_device_bytes{backend="soft",device="main"} 256
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"gpures_device_buffers", "gpures_device_views", "gpures_device_memory_device_bytes"); err != nil {
		t.Error(err)
	}

	buf.Destroy()
	want = `
# HELP gpures_device_buffers Live buffers.
# TYPE gpures_device_buffers gauge
gpures_device_buffers{backend="soft",device="main"} 0
# HELP gpures_device_pending_releases Native handles waiting for the device fence.
# TYPE gpures_device_pending_releases gauge
gpures_device_pending_releases{backend="soft",device="main"} 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"gpures_device_buffers", "gpures_device_pending_releases"); err != nil {
		t.Error(err)
	}
}

func TestHeapCollector(t *testing.T) {
	d := newDevice(t)
	h, err := d.CreateMemoryHeap(nil, gpures.WithPageSize(1024), gpures.WithHeapLabel("upload"))
	if err != nil {
		t.Fatalf("CreateMemoryHeap() error = %v", err)
	}
	defer h.Close()

	c := NewHeapCollector("upload", h)
	if n := testutil.CollectAndCount(c); n != 8 {
		t.Errorf("CollectAndCount() = %d, want 8", n)
	}

	small, err := h.Allocate(512, 16)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if _, err := h.Allocate(4096, 16); err != nil {
		t.Fatalf("Allocate(large) error = %v", err)
	}

	// Scrapes see the snapshot, not the live heap.
	want := `
# HELP gpures_heap_pages Pages owned by the heap, including free pages.
# TYPE gpures_heap_pages gauge
gpures_heap_pages{heap="upload"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "gpures_heap_pages"); err != nil {
		t.Error(err)
	}

	small.Release()
	c.Update()
	want = `
# HELP gpures_heap_pages Pages owned by the heap, including free pages.
# TYPE gpures_heap_pages gauge
gpures_heap_pages{heap="upload"} 2
# HELP gpures_heap_large_pages Dedicated pages for oversized allocations.
# TYPE gpures_heap_large_pages gauge
gpures_heap_large_pages{heap="upload"} 1
# HELP gpures_heap_reserved_bytes Bytes reserved by heap pages.
# TYPE gpures_heap_reserved_bytes gauge
gpures_heap_reserved_bytes{heap="upload"} 5120
# HELP gpures_heap_pending_bytes Bytes of released allocations waiting for the heap fence.
# TYPE gpures_heap_pending_bytes gauge
gpures_heap_pending_bytes{heap="upload"} 512
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"gpures_heap_pages", "gpures_heap_large_pages", "gpures_heap_reserved_bytes",
		"gpures_heap_pending_bytes"); err != nil {
		t.Error(err)
	}
}

func TestRegistry(t *testing.T) {
	d := newDevice(t)
	h, err := d.CreateMemoryHeap(nil)
	if err != nil {
		t.Fatalf("CreateMemoryHeap() error = %v", err)
	}
	defer h.Close()

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewDeviceCollector("main", d)); err != nil {
		t.Fatalf("Register(device) error = %v", err)
	}
	if err := reg.Register(NewHeapCollector("transient", h)); err != nil {
		t.Fatalf("Register(heap) error = %v", err)
	}
	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 18 {
		t.Errorf("GatherAndCount() = %d, want 18", n)
	}
}
