// Package backend provides a pluggable presentation backend abstraction.
//
// A backend bundles everything the pipeline needs from a graphics stack:
// the platform (surfaces, swapchains, device-idle waits), the two sides of
// the cross-API bridge, and the renderer that composites video and overlay.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime:
//
//	import _ "github.com/gogpu/streamview/backend/software"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b := backend.Default()
//	if err := b.Init(backend.Config{Logger: log}); err != nil {
//		return err
//	}
//	defer b.Close()
//
// # Available Backends
//
//   - "native": GPU presentation through gogpu/wgpu
//   - "software": CPU presentation into in-memory swapchain images (always available)
package backend
