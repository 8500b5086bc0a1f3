package resource

import (
	"errors"
	"fmt"
)

// Sentinel errors for resource construction
var (
	// ErrInvalidArgument is returned for bad constructor inputs and options
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClassNotFound is returned when cacheImplementation names no registered cache
	ErrClassNotFound = errors.New("class not found")

	// ErrFilesystem is returned when a path cannot be inspected
	ErrFilesystem = errors.New("filesystem error")

	// ErrUninitialized is returned by accessors of a resource that was never built
	ErrUninitialized = errors.New("resource not initialized")
)

// InvalidOptionError names the option that was rejected
type InvalidOptionError struct {
	Key    string
	Reason string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("%s: option %q: %s", ErrInvalidArgument, e.Key, e.Reason)
}

// Is reports whether target is ErrInvalidArgument
func (e *InvalidOptionError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// IsInvalidArgument checks if an error is ErrInvalidArgument
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsClassNotFound checks if an error is ErrClassNotFound
func IsClassNotFound(err error) bool {
	return errors.Is(err, ErrClassNotFound)
}

// IsFilesystem checks if an error is ErrFilesystem
func IsFilesystem(err error) bool {
	return errors.Is(err, ErrFilesystem)
}
