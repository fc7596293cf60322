// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"fmt"
	"math/bits"
	"slices"

	"golang.org/x/sync/semaphore"

	"github.com/gogpu/gpures/internal/deferred"
)

// MemoryHeap is a page-based bump allocator for short-lived upload memory.
//
// Allocations are carved from the active page. When a request does not fit,
// the active page is retired and a page is taken from the free list or
// created. Requests larger than the page size get a dedicated large page.
//
// A page is reclaimed once every allocation carved from it has been released
// and the heap fence has reached the fence value of each release. Reclaimed
// regular pages return to the free list; large pages are destroyed unless
// WithRetainLargePages is set.
//
// MemoryHeap is not safe for concurrent use.
type MemoryHeap struct {
	deviceObject

	fence      *Fence
	opts       heapOptions
	budget     *semaphore.Weighted
	nextPageID uint64
	active     *heapPage
	pages      map[uint64]*heapPage
	free       []*heapPage
	freeLarge  []*heapPage
	releases   deferred.Queue[heapRelease]
	pending    uint64
	reserved   uint64
	closed     bool
}

type heapPage struct {
	id      uint64
	buffer  *Buffer
	data    []byte
	address uint64
	size    uint64
	cursor  uint64
	live    int
	large   bool
}

type heapRelease struct {
	pageID uint64
	size   uint64
}

// HeapStats is a point-in-time snapshot of heap bookkeeping.
type HeapStats struct {
	Label           string
	PageSize        uint64
	Pages           int
	FreePages       int
	LargePages      int
	FreeLargePages  int
	PendingReleases int
	PendingBytes    uint64
	ReservedBytes   uint64
	ActivePageID    uint64
	HasActivePage   bool
}

// Allocation is a range of a heap page.
type Allocation struct {
	heap          *MemoryHeap
	page          *heapPage
	pageID        uint64
	offset        uint64
	size          uint64
	fenceValue    uint64
	deviceAddress uint64
	released      bool
}

// CreateMemoryHeap creates a heap whose reclamation is gated by fence. A nil
// fence uses the device fence.
func (d *Device) CreateMemoryHeap(fence *Fence, opts ...HeapOption) (*MemoryHeap, error) {
	const op = "CreateMemoryHeap"
	if d.closed {
		return nil, destroyedErr(op)
	}
	o := defaultHeapOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.pageSize == 0 {
		return nil, configErr(op, "page size is zero")
	}
	if o.budget < 0 {
		return nil, configErr(op, "negative budget %d", o.budget)
	}
	if fence == nil {
		fence = d.fence
	}
	h := &MemoryHeap{
		fence: fence,
		opts:  o,
		pages: make(map[uint64]*heapPage),
	}
	h.device = d
	if o.budget > 0 {
		h.budget = semaphore.NewWeighted(o.budget)
	}
	d.heaps[h] = struct{}{}
	d.stats.heapsAlive.Add(1)
	d.logger().Debug("gpures: memory heap created",
		"label", o.label, "pageSize", o.pageSize, "budget", o.budget)
	return h, nil
}

// Fence returns the fence gating reclamation.
func (h *MemoryHeap) Fence() *Fence { return h.fence }

// PageSize returns the size of regular pages.
func (h *MemoryHeap) PageSize() uint64 { return h.opts.pageSize }

// Allocate carves size bytes aligned to alignment (a power of two; 0 means 1)
// from the heap. The allocation records the heap fence's signaled value.
func (h *MemoryHeap) Allocate(size, alignment uint64) (*Allocation, error) {
	const op = "MemoryHeap.Allocate"
	if h.closed {
		return nil, destroyedErr(op)
	}
	if size == 0 {
		return nil, configErr(op, "allocation size is zero")
	}
	if alignment == 0 {
		alignment = 1
	}
	if bits.OnesCount64(alignment) != 1 {
		return nil, configErr(op, "alignment %d is not a power of two", alignment)
	}

	var (
		page   *heapPage
		offset uint64
		err    error
	)
	if size > h.opts.pageSize {
		page, err = h.largePage(size)
		if err != nil {
			return nil, err
		}
	} else {
		if h.active != nil {
			offset = alignUp(h.active.cursor, alignment)
			if offset > h.opts.pageSize || size > h.opts.pageSize-offset {
				h.retireActive()
			}
		}
		if h.active == nil {
			if h.active, err = h.regularPage(); err != nil {
				return nil, err
			}
			offset = 0
		}
		page = h.active
	}

	page.cursor = offset + size
	page.live++
	a := &Allocation{
		heap:       h,
		page:       page,
		pageID:     page.id,
		offset:     offset,
		size:       size,
		fenceValue: h.fence.SignaledValue(),
	}
	if page.address != 0 {
		a.deviceAddress = page.address + offset
	}
	return a, nil
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// retireActive stops carving from the active page. A retired page with no
// live allocations is reclaimed immediately.
func (h *MemoryHeap) retireActive() {
	p := h.active
	h.active = nil
	if p.live == 0 {
		h.recycle(p)
	}
}

// regularPage takes a page from the free list or creates one.
func (h *MemoryHeap) regularPage() (*heapPage, error) {
	if n := len(h.free); n > 0 {
		p := h.free[n-1]
		h.free = h.free[:n-1]
		p.cursor = 0
		h.device.logger().Debug("gpures: heap page reused", "heap", h.opts.label, "page", p.id)
		return p, nil
	}
	return h.newPage(h.opts.pageSize, false)
}

// largePage returns a dedicated page of at least size bytes.
func (h *MemoryHeap) largePage(size uint64) (*heapPage, error) {
	best := -1
	for i, p := range h.freeLarge {
		if p.size >= size && (best < 0 || p.size < h.freeLarge[best].size) {
			best = i
		}
	}
	if best >= 0 {
		p := h.freeLarge[best]
		h.freeLarge = slices.Delete(h.freeLarge, best, best+1)
		p.cursor = 0
		return p, nil
	}
	return h.newPage(size, true)
}

func (h *MemoryHeap) newPage(size uint64, large bool) (*heapPage, error) {
	const op = "MemoryHeap.Allocate"
	if h.budget != nil && !h.budget.TryAcquire(int64(size)) { //nolint:gosec // G115: page sizes fit int64
		return nil, &Error{
			Kind:   KindBudget,
			Op:     op,
			Detail: fmt.Sprintf("page of %d bytes exceeds budget %d (reserved %d)", size, h.opts.budget, h.reserved),
		}
	}
	label := h.opts.label
	if label == "" {
		label = "heap"
	}
	buf, err := h.device.CreateBuffer(BufferDesc{
		Label:      fmt.Sprintf("%s page %d", label, h.nextPageID),
		Size:       size,
		MemoryType: h.opts.memoryType,
		Usage:      UsageVertex | UsageIndex | UsageConstant | UsageShaderResource,
	})
	if err != nil {
		if h.budget != nil {
			h.budget.Release(int64(size)) //nolint:gosec // G115: page sizes fit int64
		}
		return nil, err
	}
	p := &heapPage{
		id:      h.nextPageID,
		buffer:  buf,
		data:    buf.mapped,
		address: buf.deviceAddress,
		size:    size,
		large:   large,
	}
	h.nextPageID++
	h.pages[p.id] = p
	h.reserved += size
	h.device.logger().Debug("gpures: heap page created",
		"heap", h.opts.label, "page", p.id, "size", size, "large", large)
	return p, nil
}

// recycle returns a page with no live allocations to the matching free list,
// or destroys a large page that is not retained.
func (h *MemoryHeap) recycle(p *heapPage) {
	switch {
	case !p.large:
		h.free = append(h.free, p)
	case h.opts.retainLarge:
		h.freeLarge = append(h.freeLarge, p)
	default:
		h.destroyPage(p)
	}
}

func (h *MemoryHeap) destroyPage(p *heapPage) {
	delete(h.pages, p.id)
	p.buffer.Destroy()
	p.data = nil
	h.reserved -= p.size
	if h.budget != nil {
		h.budget.Release(int64(p.size)) //nolint:gosec // G115: page sizes fit int64
	}
	h.device.logger().Debug("gpures: heap page destroyed", "heap", h.opts.label, "page", p.id)
}

// release queues an allocation for reclamation.
func (h *MemoryHeap) release(a *Allocation) {
	if h.closed {
		return
	}
	h.releases.Push(heapRelease{pageID: a.pageID, size: a.size},
		max(a.fenceValue, h.fence.SignaledValue()))
	h.pending += a.size
}

// ExecuteDeferredReleases reclaims every released allocation whose fence
// value the heap fence has reached, and returns how many were reclaimed.
func (h *MemoryHeap) ExecuteDeferredReleases() int {
	if h.closed || h.releases.Len() == 0 {
		return 0
	}
	completed, err := h.fence.CurrentValue()
	if err != nil {
		h.device.logger().Warn("gpures: cannot query heap fence", "heap", h.opts.label, "err", err)
		return 0
	}
	return h.releases.Drain(completed, h.reclaim)
}

func (h *MemoryHeap) reclaim(r heapRelease) {
	h.pending -= r.size
	p, ok := h.pages[r.pageID]
	if !ok {
		return
	}
	p.live--
	if p.live == 0 && p != h.active {
		h.recycle(p)
	}
}

// Stats returns a snapshot of the heap bookkeeping.
func (h *MemoryHeap) Stats() HeapStats {
	s := HeapStats{
		Label:           h.opts.label,
		PageSize:        h.opts.pageSize,
		Pages:           len(h.pages),
		FreePages:       len(h.free),
		FreeLargePages:  len(h.freeLarge),
		PendingReleases: h.releases.Len(),
		PendingBytes:    h.pending,
		ReservedBytes:   h.reserved,
	}
	for _, p := range h.pages {
		if p.large {
			s.LargePages++
		}
	}
	if h.active != nil {
		s.ActivePageID = h.active.id
		s.HasActivePage = true
	}
	return s
}

// Close destroys every page regardless of pending releases. Page buffers go
// through the device's deferred-release queue. Device.Close closes the heaps
// still open. Close is idempotent.
func (h *MemoryHeap) Close() {
	if h.closed {
		return
	}
	for _, p := range h.pages {
		h.destroyPage(p)
	}
	h.releases.Flush(func(heapRelease) {})
	h.pending = 0
	h.active = nil
	h.free = nil
	h.freeLarge = nil
	h.closed = true
	delete(h.device.heaps, h)
	h.device.stats.heapsAlive.Add(-1)
}

// PageID returns the id of the page the allocation was carved from.
func (a *Allocation) PageID() uint64 { return a.pageID }

// Offset returns the byte offset within the page.
func (a *Allocation) Offset() uint64 { return a.offset }

// Size returns the allocation size.
func (a *Allocation) Size() uint64 { return a.size }

// FenceValue returns the heap fence's signaled value at allocation time.
func (a *Allocation) FenceValue() uint64 { return a.fenceValue }

// DeviceAddress returns the device address of the allocation, or 0 when the
// backend does not report addresses.
func (a *Allocation) DeviceAddress() uint64 { return a.deviceAddress }

// Buffer returns the page buffer backing the allocation.
func (a *Allocation) Buffer() *Buffer { return a.page.buffer }

// Bytes returns the host window of the allocation, or nil when the backend
// does not map buffers or the allocation was released.
func (a *Allocation) Bytes() []byte {
	if a.released || a.page.data == nil {
		return nil
	}
	return a.page.data[a.offset : a.offset+a.size : a.offset+a.size]
}

// Write copies data to the start of the allocation.
func (a *Allocation) Write(data []byte) error {
	const op = "Allocation.Write"
	if a.released {
		return destroyedErr(op)
	}
	if uint64(len(data)) > a.size {
		return rangeErr(op, "%d bytes do not fit allocation of %d", len(data), a.size)
	}
	return a.page.buffer.SetData(a.offset, data)
}

// Release returns the allocation to the heap. The page range is reused once
// the heap fence passes the recorded fence value. Release is idempotent.
func (a *Allocation) Release() {
	if a.released {
		return
	}
	a.released = true
	a.heap.release(a)
}
