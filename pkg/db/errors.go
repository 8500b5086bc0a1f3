package db

import "errors"

var (
	// ErrUnsupportedDriver is returned for drivers other than mysql and sqlite aliases
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrInvalidParams is returned when connection parameters are incomplete or malformed
	ErrInvalidParams = errors.New("invalid connection parameters")
)

// IsUnsupportedDriver checks if an error is ErrUnsupportedDriver
func IsUnsupportedDriver(err error) bool {
	return errors.Is(err, ErrUnsupportedDriver)
}

// ErrInvalidCriteria is returned when criteria reference a malformed identifier
var ErrInvalidCriteria = errors.New("invalid query criteria")
