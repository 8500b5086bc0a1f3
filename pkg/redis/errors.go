package redis

import "errors"

// Sentinel errors for Redis operations
var (
	// ErrClientNotInitialized is returned when the Redis client is nil
	ErrClientNotInitialized = errors.New("redis client not initialized")

	// ErrConnectionFailed is returned when Redis connection cannot be established
	ErrConnectionFailed = errors.New("redis connection failed")

	// ErrValueTooLarge is returned when a value exceeds the configured maximum size
	ErrValueTooLarge = errors.New("cache value too large")

	// ErrCorruptValue is returned when a stored value carries an unknown encoding header
	ErrCorruptValue = errors.New("corrupt cache value")
)

// IsConnectionFailed checks if an error is ErrConnectionFailed
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsValueTooLarge checks if an error is ErrValueTooLarge
func IsValueTooLarge(err error) bool {
	return errors.Is(err, ErrValueTooLarge)
}
