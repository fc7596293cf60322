// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package deferred provides a fence-gated release queue.
//
// Each entry is stamped with the fence value that must complete before the
// entry may be reclaimed. Draining compares stamps against the completed
// value reported by the fence and hands reclaimable entries to a callback,
// so reclamation never blocks the host on device progress.
//
//	var q deferred.Queue[Handle]
//	q.Push(h, fence.SignaledValue())
//	...
//	q.Drain(fence.CurrentValue(), release)
//
// Queue is not safe for concurrent use.
package deferred

// Entry is one queued item and the fence value it waits for.
type Entry[T any] struct {
	Item  T
	Fence uint64
}

// Queue holds items until their fence value completes.
// The zero value is an empty queue ready to use.
type Queue[T any] struct {
	entries []Entry[T]
}

// Push appends item, to be released once the fence reaches value.
func (q *Queue[T]) Push(item T, value uint64) {
	q.entries = append(q.entries, Entry[T]{Item: item, Fence: value})
}

// Len returns the number of pending entries.
func (q *Queue[T]) Len() int {
	return len(q.entries)
}

// Drain calls release for every entry whose fence value is <= completed,
// in push order, and removes those entries. It returns the number released.
func (q *Queue[T]) Drain(completed uint64, release func(T)) int {
	kept := q.entries[:0]
	released := 0
	for _, e := range q.entries {
		if e.Fence <= completed {
			release(e.Item)
			released++
			continue
		}
		kept = append(kept, e)
	}
	// Clear the tail so released items can be collected.
	clear(q.entries[len(kept):])
	q.entries = kept
	return released
}

// Flush releases every entry regardless of its fence value.
func (q *Queue[T]) Flush(release func(T)) int {
	n := len(q.entries)
	for _, e := range q.entries {
		release(e.Item)
	}
	q.entries = nil
	return n
}

// MaxFence returns the largest pending fence value, or 0 when empty.
func (q *Queue[T]) MaxFence() uint64 {
	var maxValue uint64
	for _, e := range q.entries {
		maxValue = max(maxValue, e.Fence)
	}
	return maxValue
}
