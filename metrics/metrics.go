// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package metrics exports gpures device and heap statistics as Prometheus
// metrics.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewDeviceCollector("main", dev))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/gpures"
)

const namespace = "gpures"

var (
	deviceLabels = []string{"device", "backend"}
	heapLabels   = []string{"heap"}
)

// DeviceCollector reports Device.Stats on every scrape. Device.Stats is safe
// for concurrent use, so no coordination with the device thread is needed.
type DeviceCollector struct {
	name   string
	device *gpures.Device

	buffers     *prometheus.Desc
	textures    *prometheus.Desc
	views       *prometheus.Desc
	heaps       *prometheus.Desc
	pending     *prometheus.Desc
	released    *prometheus.Desc
	signaled    *prometheus.Desc
	completed   *prometheus.Desc
	deviceBytes *prometheus.Desc
	hostBytes   *prometheus.Desc
}

// NewDeviceCollector returns a collector for d labeled device=name.
func NewDeviceCollector(name string, d *gpures.Device) *DeviceCollector {
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "device", metric), help, deviceLabels, nil)
	}
	return &DeviceCollector{
		name:        name,
		device:      d,
		buffers:     desc("buffers", "Live buffers."),
		textures:    desc("textures", "Live textures."),
		views:       desc("views", "Live resource views."),
		heaps:       desc("heaps", "Open memory heaps."),
		pending:     desc("pending_releases", "Native handles waiting for the device fence."),
		released:    desc("released_handles_total", "Native handles released through the deferred queue."),
		signaled:    desc("fence_signaled_value", "Last value signaled on the device fence."),
		completed:   desc("fence_completed_value", "Last completed device fence value observed by a drain."),
		deviceBytes: desc("memory_device_bytes", "Device-local bytes held by live resources."),
		hostBytes:   desc("memory_host_bytes", "Host-visible bytes held by live resources."),
	}
}

// Describe implements prometheus.Collector.
func (c *DeviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buffers
	ch <- c.textures
	ch <- c.views
	ch <- c.heaps
	ch <- c.pending
	ch <- c.released
	ch <- c.signaled
	ch <- c.completed
	ch <- c.deviceBytes
	ch <- c.hostBytes
}

// Collect implements prometheus.Collector.
func (c *DeviceCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.device.Stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, c.name, s.Backend)
	}
	gauge(c.buffers, float64(s.Buffers))
	gauge(c.textures, float64(s.Textures))
	gauge(c.views, float64(s.Views))
	gauge(c.heaps, float64(s.Heaps))
	gauge(c.pending, float64(s.PendingReleases))
	ch <- prometheus.MustNewConstMetric(c.released, prometheus.CounterValue, float64(s.ReleasedHandles), c.name, s.Backend)
	gauge(c.signaled, float64(s.SignaledValue))
	gauge(c.completed, float64(s.CompletedValue))
	gauge(c.deviceBytes, float64(s.Memory.DeviceBytes))
	gauge(c.hostBytes, float64(s.Memory.HostBytes))
}

// HeapCollector reports the last snapshot taken by Update. MemoryHeap is
// single-threaded, so the owning thread calls Update (typically once per
// frame) and scrapes read the cached snapshot.
type HeapCollector struct {
	name string
	heap *gpures.MemoryHeap

	mu    sync.Mutex
	stats gpures.HeapStats

	pages          *prometheus.Desc
	freePages      *prometheus.Desc
	largePages     *prometheus.Desc
	freeLargePages *prometheus.Desc
	pending        *prometheus.Desc
	pendingBytes   *prometheus.Desc
	reserved       *prometheus.Desc
	pageSize       *prometheus.Desc
}

// NewHeapCollector returns a collector for h labeled heap=name and takes an
// initial snapshot.
func NewHeapCollector(name string, h *gpures.MemoryHeap) *HeapCollector {
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "heap", metric), help, heapLabels, nil)
	}
	c := &HeapCollector{
		name:           name,
		heap:           h,
		pages:          desc("pages", "Pages owned by the heap, including free pages."),
		freePages:      desc("free_pages", "Regular pages on the free list."),
		largePages:     desc("large_pages", "Dedicated pages for oversized allocations."),
		freeLargePages: desc("free_large_pages", "Retained large pages available for reuse."),
		pending:        desc("pending_releases", "Released allocations waiting for the heap fence."),
		pendingBytes:   desc("pending_bytes", "Bytes of released allocations waiting for the heap fence."),
		reserved:       desc("reserved_bytes", "Bytes reserved by heap pages."),
		pageSize:       desc("page_size_bytes", "Size of regular pages."),
	}
	c.Update()
	return c
}

// Update snapshots the heap. It must be called from the heap's thread.
func (c *HeapCollector) Update() {
	s := c.heap.Stats()
	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *HeapCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pages
	ch <- c.freePages
	ch <- c.largePages
	ch <- c.freeLargePages
	ch <- c.pending
	ch <- c.pendingBytes
	ch <- c.reserved
	ch <- c.pageSize
}

// Collect implements prometheus.Collector.
func (c *HeapCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	s := c.stats
	c.mu.Unlock()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, c.name)
	}
	gauge(c.pages, float64(s.Pages))
	gauge(c.freePages, float64(s.FreePages))
	gauge(c.largePages, float64(s.LargePages))
	gauge(c.freeLargePages, float64(s.FreeLargePages))
	gauge(c.pending, float64(s.PendingReleases))
	gauge(c.pendingBytes, float64(s.PendingBytes))
	gauge(c.reserved, float64(s.ReservedBytes))
	gauge(c.pageSize, float64(s.PageSize))
}

var (
	_ prometheus.Collector = (*DeviceCollector)(nil)
	_ prometheus.Collector = (*HeapCollector)(nil)
)
