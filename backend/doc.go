// Package backend provides a registry of gpures backends.
//
// Backend packages register a factory from their init() function, so
// importing them for side effects makes them selectable by name:
//
//	import (
//		"github.com/gogpu/gpures/backend"
//		_ "github.com/gogpu/gpures/backend/soft"
//		_ "github.com/gogpu/gpures/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use Default() to open the best available backend, or Open() to request
// a specific backend by name:
//
//	// Open the default (best available) backend
//	b, err := backend.Default()
//
//	// Or request a specific backend
//	b, err := backend.Open("soft")
//
// OpenDevice combines selection with gpures.NewDevice:
//
//	dev, err := backend.OpenDevice("", gpures.WithLabel("main"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Available Backends
//
// - "soft": host-memory reference device (always available)
// - "wgpu": gogpu/wgpu HAL device (requires a GPU adapter)
package backend
