package orm

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotMapped is returned for types that are not mapped entities
	ErrEntityNotMapped = errors.New("entity not mapped")

	// ErrInvalidEntity is returned for values that cannot be entities (nil, non-struct)
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrNoMetadataDriver is returned when a configuration lacks a metadata driver
	ErrNoMetadataDriver = errors.New("no metadata driver configured")
)

// MappingError names the type that failed to resolve to an entity
type MappingError struct {
	Type   string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrEntityNotMapped, e.Type, e.Reason)
}

// Is reports whether target is ErrEntityNotMapped
func (e *MappingError) Is(target error) bool {
	return target == ErrEntityNotMapped
}

// IsEntityNotMapped checks if an error is ErrEntityNotMapped
func IsEntityNotMapped(err error) bool {
	return errors.Is(err, ErrEntityNotMapped)
}
