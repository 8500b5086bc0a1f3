// Package registry provides a process-wide named registry for handing
// bootstrapped resources to collaborators that never saw the bootstrapper.
//
// New code should receive its dependencies explicitly; the registry exists
// for callers that look up the entity manager by name (key "em").
package registry

import (
	"fmt"
	"sync"
)

// Registry is a concurrency-safe name to value map
type Registry struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// New creates an empty registry
func New() *Registry {
	return &Registry{entries: make(map[string]interface{})}
}

// Default returns the process-wide registry
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// Set stores value under name, replacing any previous value
func (r *Registry) Set(name string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = value
}

// Get returns the value stored under name
func (r *Registry) Get(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.entries[name]
	return value, ok
}

// IsRegistered reports whether name holds a value
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Delete removes name from the registry
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// CompareAndDelete removes name only while it still holds value and reports
// whether it did. value must be comparable.
func (r *Registry) CompareAndDelete(name string, value interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entries[name]
	if !ok || current != value {
		return false
	}
	delete(r.entries, name)
	return true
}

// Lookup returns the value stored under name as a T
func Lookup[T any](r *Registry, name string) (T, error) {
	var zero T
	value, ok := r.Get(name)
	if !ok {
		return zero, fmt.Errorf("no entry registered under %q", name)
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("entry %q is %T, not %T", name, value, zero)
	}
	return typed, nil
}
