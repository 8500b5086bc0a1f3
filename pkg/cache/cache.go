// Package cache defines the metadata and query cache used by the entity
// manager, plus a name based factory registry for its implementations.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores opaque byte values under string keys
type Cache interface {
	// Name returns the implementation name the cache was registered under
	Name() string

	// Get returns ErrMiss when key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value; a zero ttl uses the implementation default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes every key owned by this cache
	Clear(ctx context.Context) error

	Close() error
}

// GetValue reads key and decodes it into dest
func GetValue(ctx context.Context, c Cache, key string, dest interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return nil
}

// SetValue encodes value and stores it under key
func SetValue(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// Remember returns the cached value of key or computes, stores and returns it.
// Cache failures other than a miss are ignored and fall through to compute.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	var cached T
	err := GetValue(ctx, c, key, &cached)
	if err == nil {
		return cached, nil
	}

	value, err := compute()
	if err != nil {
		return value, err
	}
	_ = SetValue(ctx, c, key, value, ttl)
	return value, nil
}
