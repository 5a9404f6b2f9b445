package backend

import (
	"slices"
	"sync"
)

// BackendFactory creates a new backend instance.
type BackendFactory func() RenderBackend

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{BackendNative, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns a backend instance by name.
// Returns nil if the backend is not registered.
func Get(name string) RenderBackend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := backends[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the best available backend based on priority.
// Priority order: native > software.
// Returns nil if no backends are registered.
func Default() RenderBackend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range backendPriority {
		if factory, ok := backends[name]; ok {
			if b := factory(); b != nil {
				return b
			}
		}
	}

	// Fallback: first registered name in sorted order.
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if b := backends[name](); b != nil {
			return b
		}
	}
	return nil
}

// Open returns the named backend, or the default one for an empty name,
// initialized with cfg. If the default backend fails to initialize, the
// next one in priority order is tried.
func Open(name string, cfg Config) (RenderBackend, error) {
	if name != "" {
		b := Get(name)
		if b == nil {
			return nil, ErrBackendNotAvailable
		}
		if err := b.Init(cfg); err != nil {
			return nil, err
		}
		return b, nil
	}

	var firstErr error
	for _, candidate := range append(slices.Clone(backendPriority), Available()...) {
		b := Get(candidate)
		if b == nil {
			continue
		}
		err := b.Init(cfg)
		if err == nil {
			return b, nil
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn("backend: init failed, trying next", "backend", candidate, "err", err)
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrBackendNotAvailable
}
