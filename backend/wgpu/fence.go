// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"sync"
	"time"
)

const (
	minPollInterval = 50 * time.Microsecond
	maxPollInterval = 2 * time.Millisecond
)

// fenceSignal is a fence value carried by a queue submission.
type fenceSignal struct {
	index uint64
	value uint64
}

// Fence is a monotonic counter driven by queue submissions.
type Fence struct {
	id uintptr
	b  *Backend

	mu        sync.Mutex
	completed uint64
	pending   []fenceSignal
	destroyed bool
}

// NativeHandle implements gpures.NativeHandle.
func (f *Fence) NativeHandle() uintptr { return f.id }

// Signal submits an empty batch carrying value. The value completes when
// the queue retires the batch, after all work submitted before it.
func (f *Fence) Signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return ErrDestroyed
	}
	index, err := f.b.queue.Submit(nil)
	if err != nil {
		return err
	}
	f.pending = append(f.pending, fenceSignal{index: index, value: value})
	return nil
}

// CompletedValue returns the highest value whose submission has retired.
func (f *Fence) CompletedValue() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return 0, ErrDestroyed
	}
	f.pollLocked()
	return f.completed, nil
}

func (f *Fence) pollLocked() {
	if len(f.pending) == 0 {
		return
	}
	retired := f.b.queue.PollCompleted()
	n := 0
	for _, s := range f.pending {
		if s.index > retired {
			break
		}
		f.completed = max(f.completed, s.value)
		n++
	}
	f.pending = f.pending[n:]
}

// Wait polls the queue until the counter reaches value. A negative timeout
// waits forever.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	interval := minPollInterval
	for {
		done, err := f.CompletedValue()
		if err != nil {
			return false, err
		}
		if done >= value {
			return true, nil
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(interval)
		interval = min(interval*2, maxPollInterval)
	}
}

// SharedHandle always fails; HAL fences cannot be exported.
func (f *Fence) SharedHandle() (uintptr, error) {
	return 0, ErrNotShareable
}

func (f *Fence) destroy() {
	f.mu.Lock()
	f.destroyed = true
	f.pending = nil
	f.mu.Unlock()
}
