// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpures

import (
	"log/slog"
	"time"
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	dev, err := gpures.NewDevice(backend,
//	    gpures.WithLabel("main"),
//	    gpures.WithLogger(logger),
//	)
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	label        string
	logger       *slog.Logger
	rowAlignment uint32
	drainOnFlush bool
	closeTimeout time.Duration
}

// DefaultCloseTimeout bounds the idle wait performed by Device.Close.
const DefaultCloseTimeout = 5 * time.Second

func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		drainOnFlush: true,
		closeTimeout: DefaultCloseTimeout,
	}
}

// WithLabel sets the debug label of the device. The label is attached to log
// records and metrics.
func WithLabel(label string) DeviceOption {
	return func(o *deviceOptions) {
		o.label = label
	}
}

// WithLogger sets a device-scoped logger. Without it the device logs through
// the package logger (see SetLogger).
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}

// WithTextureRowAlignment overrides the row pitch alignment reported by the
// backend. The value must be a power of two.
func WithTextureRowAlignment(alignment uint32) DeviceOption {
	return func(o *deviceOptions) {
		o.rowAlignment = alignment
	}
}

// WithDrainOnFlush controls whether Flush drains the deferred-release queue
// after signaling. Enabled by default.
func WithDrainOnFlush(drain bool) DeviceOption {
	return func(o *deviceOptions) {
		o.drainOnFlush = drain
	}
}

// WithCloseTimeout bounds how long Close waits for the device fence before
// releasing everything unconditionally.
func WithCloseTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		o.closeTimeout = d
	}
}

// HeapOption configures a MemoryHeap during creation.
type HeapOption func(*heapOptions)

// DefaultPageSize is the page size of a MemoryHeap unless overridden.
const DefaultPageSize = 2 << 20

type heapOptions struct {
	pageSize    uint64
	retainLarge bool
	budget      int64
	label       string
	memoryType  MemoryType
}

func defaultHeapOptions() heapOptions {
	return heapOptions{
		pageSize:   DefaultPageSize,
		memoryType: MemoryUpload,
	}
}

// WithPageSize sets the size of regular heap pages. Requests larger than a
// page get a dedicated large page.
func WithPageSize(size uint64) HeapOption {
	return func(o *heapOptions) {
		o.pageSize = size
	}
}

// WithRetainLargePages keeps reclaimed large pages for reuse instead of
// destroying them.
func WithRetainLargePages(retain bool) HeapOption {
	return func(o *heapOptions) {
		o.retainLarge = retain
	}
}

// WithHeapBudget caps the bytes of page memory the heap may hold at once.
// Zero means unlimited.
func WithHeapBudget(bytes int64) HeapOption {
	return func(o *heapOptions) {
		o.budget = bytes
	}
}

// WithHeapLabel sets the debug label of the heap and its page buffers.
func WithHeapLabel(label string) HeapOption {
	return func(o *heapOptions) {
		o.label = label
	}
}

// WithMemoryType selects the memory type of heap pages. Defaults to
// MemoryUpload.
func WithMemoryType(mt MemoryType) HeapOption {
	return func(o *heapOptions) {
		o.memoryType = mt
	}
}
