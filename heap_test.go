package gpures_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gpures"
)

func newHeap(t *testing.T, d *gpures.Device, opts ...gpures.HeapOption) *gpures.MemoryHeap {
	t.Helper()
	h, err := d.CreateMemoryHeap(nil, append([]gpures.HeapOption{gpures.WithPageSize(1024)}, opts...)...)
	if err != nil {
		t.Fatalf("CreateMemoryHeap() error = %v", err)
	}
	t.Cleanup(h.Close)
	return h
}

func mustAllocate(t *testing.T, h *gpures.MemoryHeap, size, alignment uint64) *gpures.Allocation {
	t.Helper()
	a, err := h.Allocate(size, alignment)
	if err != nil {
		t.Fatalf("Allocate(%d, %d) error = %v", size, alignment, err)
	}
	return a
}

func TestCreateMemoryHeapInvalid(t *testing.T) {
	d, _ := newDevice(t)
	if _, err := d.CreateMemoryHeap(nil, gpures.WithPageSize(0)); !errors.Is(err, gpures.ErrConfiguration) {
		t.Errorf("page size 0 error = %v, want ErrConfiguration", err)
	}
	if _, err := d.CreateMemoryHeap(nil, gpures.WithHeapBudget(-1)); !errors.Is(err, gpures.ErrConfiguration) {
		t.Errorf("negative budget error = %v, want ErrConfiguration", err)
	}
}

func TestHeapAllocateInvalid(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d)
	if _, err := h.Allocate(0, 16); !errors.Is(err, gpures.ErrConfiguration) {
		t.Errorf("Allocate(0) error = %v, want ErrConfiguration", err)
	}
	if _, err := h.Allocate(16, 24); !errors.Is(err, gpures.ErrConfiguration) {
		t.Errorf("Allocate(align 24) error = %v, want ErrConfiguration", err)
	}
}

func TestHeapSubAllocation(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d)
	if h.Fence() != d.Fence() {
		t.Error("heap should default to the device fence")
	}

	tests := []struct {
		size, align uint64
		wantPage    uint64
		wantOffset  uint64
	}{
		{100, 16, 0, 0},
		{100, 64, 0, 128},
		{8, 0, 0, 228},
		{900, 16, 1, 0},
	}
	for _, tt := range tests {
		a := mustAllocate(t, h, tt.size, tt.align)
		if a.PageID() != tt.wantPage || a.Offset() != tt.wantOffset {
			t.Errorf("Allocate(%d, %d) = page %d offset %d, want page %d offset %d",
				tt.size, tt.align, a.PageID(), a.Offset(), tt.wantPage, tt.wantOffset)
		}
		if a.Size() != tt.size {
			t.Errorf("Size() = %d, want %d", a.Size(), tt.size)
		}
	}

	s := h.Stats()
	if s.Pages != 2 || s.FreePages != 0 || !s.HasActivePage || s.ActivePageID != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.ReservedBytes != 2048 {
		t.Errorf("ReservedBytes = %d, want 2048", s.ReservedBytes)
	}
}

func TestHeapPageReuse(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d)

	a := mustAllocate(t, h, 600, 16)
	b := mustAllocate(t, h, 600, 16)
	if a.PageID() == b.PageID() {
		t.Fatal("second allocation should open a new page")
	}

	// Page 0 is retired but still has a live allocation.
	a.Release()
	if h.Stats().PendingReleases != 1 {
		t.Errorf("PendingReleases = %d, want 1", h.Stats().PendingReleases)
	}
	if n := h.ExecuteDeferredReleases(); n != 1 {
		t.Errorf("ExecuteDeferredReleases() = %d, want 1", n)
	}
	if got := h.Stats().FreePages; got != 1 {
		t.Errorf("FreePages = %d, want 1", got)
	}

	c := mustAllocate(t, h, 600, 16)
	if c.PageID() != a.PageID() || c.Offset() != 0 {
		t.Errorf("Allocate() = page %d offset %d, want reused page %d at 0", c.PageID(), c.Offset(), a.PageID())
	}
	if got := h.Stats().Pages; got != 2 {
		t.Errorf("Pages = %d, want 2", got)
	}
}

func TestHeapReleaseWaitsForFence(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d)

	v := markInFlight(t, d)
	a := mustAllocate(t, h, 1000, 16)
	if a.FenceValue() != v {
		t.Errorf("FenceValue() = %d, want %d", a.FenceValue(), v)
	}
	mustAllocate(t, h, 1000, 16) // retires the first page
	a.Release()

	if n := h.ExecuteDeferredReleases(); n != 0 {
		t.Errorf("ExecuteDeferredReleases() = %d before the fence, want 0", n)
	}
	if got := h.Stats().FreePages; got != 0 {
		t.Fatalf("page recycled while in flight (FreePages = %d)", got)
	}
	if got := h.Stats().PendingBytes; got != 1000 {
		t.Errorf("PendingBytes = %d, want 1000", got)
	}

	nativeFence(t, d.Fence()).Complete(v)
	if n := h.ExecuteDeferredReleases(); n != 1 {
		t.Errorf("ExecuteDeferredReleases() = %d, want 1", n)
	}
	if s := h.Stats(); s.FreePages != 1 || s.PendingBytes != 0 {
		t.Errorf("FreePages = %d, PendingBytes = %d, want 1 and 0", s.FreePages, s.PendingBytes)
	}
}

func TestHeapReleaseStampsLatestSignal(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d)

	a := mustAllocate(t, h, 1000, 16)
	mustAllocate(t, h, 1000, 16)
	// Work referencing a was submitted after it was carved out.
	v := markInFlight(t, d)
	a.Release()

	if n := h.ExecuteDeferredReleases(); n != 0 {
		t.Errorf("ExecuteDeferredReleases() = %d, want 0 until %d completes", n, v)
	}
	nativeFence(t, d.Fence()).Complete(v)
	if n := h.ExecuteDeferredReleases(); n != 1 {
		t.Errorf("ExecuteDeferredReleases() = %d, want 1", n)
	}
}

func TestHeapActivePageNotRecycled(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d)

	a := mustAllocate(t, h, 64, 16)
	a.Release()
	h.ExecuteDeferredReleases()

	s := h.Stats()
	if s.FreePages != 0 || !s.HasActivePage {
		t.Errorf("active page was recycled: %+v", s)
	}
	b := mustAllocate(t, h, 64, 16)
	if b.PageID() != a.PageID() || b.Offset() != 64 {
		t.Errorf("Allocate() = page %d offset %d, want page %d offset 64", b.PageID(), b.Offset(), a.PageID())
	}
}

func TestHeapLargePages(t *testing.T) {
	tests := []struct {
		name   string
		retain bool
	}{
		{"destroyed", false},
		{"retained", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newDevice(t)
			h := newHeap(t, d, gpures.WithRetainLargePages(tt.retain))

			big := mustAllocate(t, h, 4096, 256)
			if big.Offset() != 0 || big.Buffer().Size() != 4096 {
				t.Errorf("large allocation = offset %d in %d byte page", big.Offset(), big.Buffer().Size())
			}
			s := h.Stats()
			if s.LargePages != 1 || s.HasActivePage {
				t.Errorf("Stats() = %+v, want one large page and no active page", s)
			}

			big.Release()
			h.ExecuteDeferredReleases()
			s = h.Stats()
			if tt.retain {
				if s.FreeLargePages != 1 || s.ReservedBytes != 4096 {
					t.Errorf("Stats() = %+v, want the large page retained", s)
				}
				again := mustAllocate(t, h, 3000, 16)
				if again.PageID() != big.PageID() {
					t.Errorf("PageID() = %d, want reused large page %d", again.PageID(), big.PageID())
				}
				bigger := mustAllocate(t, h, 8192, 16)
				if bigger.PageID() == big.PageID() {
					t.Error("a larger request cannot reuse a smaller page")
				}
				return
			}
			if s.Pages != 0 || s.LargePages != 0 || s.ReservedBytes != 0 {
				t.Errorf("Stats() = %+v, want the large page destroyed", s)
			}
			if got := d.PendingReleases(); got != 1 {
				t.Errorf("device PendingReleases() = %d, want the page buffer queued", got)
			}
		})
	}
}

func TestHeapBudget(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d, gpures.WithHeapBudget(4096))

	big := mustAllocate(t, h, 4096, 16)
	_, err := h.Allocate(16, 16)
	if !errors.Is(err, gpures.ErrBudget) {
		t.Fatalf("Allocate() over budget error = %v, want ErrBudget", err)
	}
	if got := h.Stats().Pages; got != 1 {
		t.Errorf("Pages = %d, a failed page was kept", got)
	}

	big.Release()
	h.ExecuteDeferredReleases()
	if _, err := h.Allocate(16, 16); err != nil {
		t.Errorf("Allocate() after release error = %v", err)
	}
}

func TestAllocationData(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d)

	mustAllocate(t, h, 10, 1)
	a := mustAllocate(t, h, 8, 16)
	if a.DeviceAddress() != a.Buffer().DeviceAddress()+16 {
		t.Errorf("DeviceAddress() = %#x, want page address + 16", a.DeviceAddress())
	}
	if err := a.Write([]byte("heapdata")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := a.Bytes(); !bytes.Equal(got, []byte("heapdata")) {
		t.Errorf("Bytes() = %q", got)
	}
	if cap(a.Bytes()) != 8 {
		t.Error("Bytes() must not expose memory past the allocation")
	}
	page, _ := a.Buffer().GetData(16, 8)
	if string(page) != "heapdata" {
		t.Errorf("page buffer = %q", page)
	}
	if err := a.Write(make([]byte, 9)); !errors.Is(err, gpures.ErrRange) {
		t.Errorf("Write(9 bytes) error = %v, want ErrRange", err)
	}

	a.Release()
	a.Release()
	if got := h.Stats().PendingReleases; got != 1 {
		t.Errorf("PendingReleases = %d, want 1 after double Release", got)
	}
	if a.Bytes() != nil {
		t.Error("Bytes() after Release should be nil")
	}
	if err := a.Write([]byte{1}); !errors.Is(err, gpures.ErrDestroyed) {
		t.Errorf("Write() after Release error = %v, want ErrDestroyed", err)
	}
}

func TestHeapDeviceLocal(t *testing.T) {
	d, _ := newDevice(t)
	h := newHeap(t, d, gpures.WithMemoryType(gpures.MemoryDeviceLocal))
	a := mustAllocate(t, h, 4, 4)
	if a.Bytes() != nil || a.DeviceAddress() != 0 {
		t.Error("device-local pages are not mapped")
	}
	if err := a.Write([]byte{9, 8, 7, 6}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, _ := a.Buffer().GetData(a.Offset(), 4)
	if !bytes.Equal(got, []byte{9, 8, 7, 6}) {
		t.Errorf("page data = %v", got)
	}
}

func TestHeapCustomFence(t *testing.T) {
	d, _ := newDevice(t)
	f, err := d.CreateFence(gpures.FenceDesc{Label: "copy", InitialValue: 40})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Destroy()
	h, err := d.CreateMemoryHeap(f, gpures.WithPageSize(256), gpures.WithHeapLabel("copy"))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if h.Fence() != f || h.PageSize() != 256 {
		t.Errorf("Fence() = %v, PageSize() = %d", h.Fence(), h.PageSize())
	}
	a := mustAllocate(t, h, 16, 16)
	if a.FenceValue() != 40 {
		t.Errorf("FenceValue() = %d, want 40", a.FenceValue())
	}
	if a.Buffer().Label() != "copy page 0" {
		t.Errorf("page label = %q", a.Buffer().Label())
	}
}

func TestHeapClose(t *testing.T) {
	d, _ := newDevice(t)
	h, err := d.CreateMemoryHeap(nil, gpures.WithPageSize(512))
	if err != nil {
		t.Fatal(err)
	}
	a := mustAllocate(t, h, 400, 16)
	mustAllocate(t, h, 400, 16)
	mustAllocate(t, h, 4000, 16)
	if got := d.Stats().Heaps; got != 1 {
		t.Errorf("Stats().Heaps = %d, want 1", got)
	}

	h.Close()
	h.Close()
	if got := d.PendingReleases(); got != 3 {
		t.Errorf("device PendingReleases() = %d, want 3 page buffers", got)
	}
	if got := d.Stats().Heaps; got != 0 {
		t.Errorf("Stats().Heaps = %d, want 0", got)
	}
	if _, err := h.Allocate(16, 16); !errors.Is(err, gpures.ErrDestroyed) {
		t.Errorf("Allocate() after Close error = %v, want ErrDestroyed", err)
	}
	a.Release()
	if n := h.ExecuteDeferredReleases(); n != 0 {
		t.Errorf("ExecuteDeferredReleases() after Close = %d, want 0", n)
	}
}
