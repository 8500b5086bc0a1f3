package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors for cache operations
var (
	// ErrMiss is returned when a key doesn't exist (not an error condition)
	ErrMiss = errors.New("cache key not found")

	// ErrCacheDisabled is returned when attempting operations on a disabled cache
	ErrCacheDisabled = errors.New("cache is disabled")

	// ErrSerializationFailed is returned when encoding or decoding a value fails
	ErrSerializationFailed = errors.New("cache serialization failed")

	// ErrUnknownImplementation is returned by New for unregistered names
	ErrUnknownImplementation = errors.New("unknown cache implementation")
)

// UnknownImplementationError names the cache implementation that could not be resolved
type UnknownImplementationError struct {
	Name      string
	Available []string
}

func (e *UnknownImplementationError) Error() string {
	return fmt.Sprintf("%s %q (available: %v)", ErrUnknownImplementation, e.Name, e.Available)
}

// Is reports whether target is ErrUnknownImplementation
func (e *UnknownImplementationError) Is(target error) bool {
	return target == ErrUnknownImplementation
}

// IsMiss checks if an error is ErrMiss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// IsUnknownImplementation checks if an error is ErrUnknownImplementation
func IsUnknownImplementation(err error) bool {
	return errors.Is(err, ErrUnknownImplementation)
}
