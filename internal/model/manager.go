// Package model owns the single resident recognition model. All model access
// goes through Manager.Acquire, which serializes loads and reuses the loaded
// handle when path and device match.
package model

import (
	"context"
	"sync"

	"speech-desk/internal/domain"
)

// DefaultDevice selects the engine's default compute device.
const DefaultDevice = 0

// Handle is an opaque reference to a loaded recognition model.
type Handle interface {
	Close() error
}

// Loader performs the actual model load for a path/device pair.
type Loader interface {
	Load(ctx context.Context, path string, device int) (Handle, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string, device int) (Handle, error)

// Load calls the wrapped function.
func (f LoaderFunc) Load(ctx context.Context, path string, device int) (Handle, error) {
	return f(ctx, path, device)
}

type resident struct {
	path   string
	device int
	handle Handle
}

type inflight struct {
	path   string
	device int
	done   chan struct{}
	handle Handle
	err    error
}

// Manager keeps at most one model resident at a time. Concurrent Acquire
// calls for the same path/device while a load is in flight share the single
// in-flight result instead of triggering duplicate loads.
type Manager struct {
	mu      sync.Mutex
	loader  Loader
	loaded  *resident
	pending *inflight
}

// NewManager creates a manager with no resident model.
func NewManager(loader Loader) *Manager {
	return &Manager{loader: loader}
}

// Acquire returns the resident handle when path and device match, otherwise
// releases any prior handle and loads the requested model.
func (m *Manager) Acquire(ctx context.Context, path string, device int) (Handle, error) {
	for {
		m.mu.Lock()
		if m.loaded != nil && m.loaded.path == path && m.loaded.device == device {
			handle := m.loaded.handle
			m.mu.Unlock()
			return handle, nil
		}

		if p := m.pending; p != nil {
			m.mu.Unlock()
			if p.path == path && p.device == device {
				select {
				case <-p.done:
					return p.handle, p.err
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			// A different load is in flight; wait for it and re-evaluate.
			select {
			case <-p.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		// One resident model at a time: evict before loading.
		if m.loaded != nil {
			_ = m.loaded.handle.Close()
			m.loaded = nil
		}
		p := &inflight{path: path, device: device, done: make(chan struct{})}
		m.pending = p
		m.mu.Unlock()

		handle, err := m.loader.Load(ctx, path, device)

		m.mu.Lock()
		p.handle, p.err = handle, err
		if err == nil {
			m.loaded = &resident{path: path, device: device, handle: handle}
		}
		m.pending = nil
		m.mu.Unlock()
		close(p.done)

		return handle, err
	}
}

// AcquireWithFallback retries on the default device when the requested device
// is unavailable. The second return value reports whether a fallback happened,
// so callers can surface a non-fatal warning.
func (m *Manager) AcquireWithFallback(ctx context.Context, path string, device int) (Handle, bool, error) {
	handle, err := m.Acquire(ctx, path, device)
	if err == nil || device == DefaultDevice || domain.KindOf(err) != domain.FailureDeviceUnavailable {
		return handle, false, err
	}

	handle, err = m.Acquire(ctx, path, DefaultDevice)
	return handle, err == nil, err
}

// Loaded returns the resident model's identity, if any.
func (m *Manager) Loaded() (path string, device int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded == nil {
		return "", 0, false
	}
	return m.loaded.path, m.loaded.device, true
}

// Release closes and forgets the resident handle. Called at process shutdown.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded == nil {
		return nil
	}
	err := m.loaded.handle.Close()
	m.loaded = nil
	return err
}
