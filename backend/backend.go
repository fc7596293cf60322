// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"

	"github.com/gogpu/gpures"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when no registered backend can be opened.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotRegistered is returned by Open for an unknown backend name.
	ErrNotRegistered = errors.New("backend: not registered")
)

// Backend name constants.
const (
	// BackendSoft is the name of the host-memory backend.
	BackendSoft = "soft"
	// BackendWGPU is the name of the gogpu/wgpu HAL backend.
	BackendWGPU = "wgpu"
)

// Factory opens a backend instance. A factory may fail when the platform
// lacks the required device (for example, no GPU adapter).
type Factory func() (gpures.Backend, error)
