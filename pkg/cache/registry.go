package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ammar0144/ormresource/pkg/config"
)

// Factory builds a cache from the resource configuration
type Factory func(cfg *config.Config) (Cache, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a cache implementation available under name.
// Names are case-insensitive; registering a name twice panics.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	key := strings.ToLower(name)
	if factory == nil {
		panic("cache: Register factory is nil")
	}
	if _, dup := factories[key]; dup {
		panic("cache: Register called twice for " + key)
	}
	factories[key] = factory
}

// Implementations returns the sorted list of registered names
func Implementations() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates the cache registered under name
func New(name string, cfg *config.Config) (Cache, error) {
	factoriesMu.RLock()
	factory, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	factoriesMu.RUnlock()

	if !ok {
		return nil, &UnknownImplementationError{Name: name, Available: Implementations()}
	}

	c, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cache: %w", name, err)
	}
	return c, nil
}
