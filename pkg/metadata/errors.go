package metadata

import "errors"

var (
	// ErrEntityNotFound is returned when no entity is declared under a name
	ErrEntityNotFound = errors.New("entity not found in metadata paths")

	// ErrDuplicateEntity is returned when two sources declare the same entity name
	ErrDuplicateEntity = errors.New("duplicate entity declaration")

	// ErrParse is returned when an entity source file cannot be parsed
	ErrParse = errors.New("failed to parse entity source")
)

// IsEntityNotFound checks if an error is ErrEntityNotFound
func IsEntityNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
