package redis

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ammar0144/ormresource/pkg/cache"
	"github.com/ammar0144/ormresource/pkg/config"
)

// Cache key constants for consistent key generation across the application
const (
	cacheKeySeparator = ":"
	scanBatchSize     = 100
)

// Stored values carry a one byte encoding header
const (
	encodingRaw  byte = 0
	encodingGzip byte = 1
)

func init() {
	cache.Register("redis", func(cfg *config.Config) (cache.Cache, error) {
		return NewManager(ConfigFrom(cfg))
	})
}

// Manager manages Redis connections and implements cache.Cache
type Manager struct {
	config  *Config
	client  redis.UniversalClient
	metrics *cache.Metrics
}

var _ cache.Cache = (*Manager)(nil)

// NewManager creates a new Redis cache manager.
// The client connects lazily; use Ping to verify the server is reachable.
func NewManager(config *Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{
		config:  config,
		metrics: cache.NewMetrics(),
	}
	manager.initializeClient()
	return manager, nil
}

// NewManagerWithClient wraps an existing client
func NewManagerWithClient(config *Config, client redis.UniversalClient) *Manager {
	return &Manager{config: config, client: client, metrics: cache.NewMetrics()}
}

// initializeClient sets up the Redis client based on configuration
func (m *Manager) initializeClient() {
	if !m.config.Enabled {
		return
	}

	if m.config.IsClusterMode() {
		m.client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           m.config.Cluster.Addresses,
			Username:        m.config.Cluster.Username,
			Password:        m.config.Cluster.Password,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
		return
	}

	m.client = redis.NewClient(&redis.Options{
		Addr:            m.config.GetAddr(),
		Password:        m.config.Password,
		DB:              m.config.Database,
		PoolSize:        m.config.PoolSize,
		MinIdleConns:    m.config.MinIdleConns,
		ConnMaxLifetime: m.config.MaxConnAge,
		PoolTimeout:     m.config.PoolTimeout,
		ConnMaxIdleTime: m.config.IdleTimeout,
		ReadTimeout:     m.config.ReadTimeout,
		WriteTimeout:    m.config.WriteTimeout,
		DialTimeout:     m.config.DialTimeout,
	})
}

// Name returns the implementation name
func (m *Manager) Name() string {
	return "redis"
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection.
// Returns nil if cache is disabled (not an error condition).
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// checkClient validates that cache is enabled and client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return cache.ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// key prefixes a caller key with the configured namespace
func (m *Manager) key(k string) string {
	if m.config.Namespace == "" {
		return k
	}
	return m.config.Namespace + cacheKeySeparator + k
}

// Get retrieves a value from cache
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := m.client.Get(ctx, m.key(key)).Bytes()
	m.metrics.RecordGet(time.Since(start))

	if errors.Is(err, redis.Nil) {
		m.metrics.RecordCacheMiss()
		return nil, cache.ErrMiss
	}
	if err != nil {
		m.metrics.RecordCacheError()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	value, err := decodeValue(data)
	if err != nil {
		m.metrics.RecordCacheError()
		return nil, err
	}
	m.metrics.RecordCacheHit()
	return value, nil
}

// Set stores a value in cache; a zero ttl uses the default TTL
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	if limit := m.config.LargeValue.MaxValueSize; limit > 0 && len(value) > limit {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrValueTooLarge, len(value), limit)
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0 // no expiry
	}

	data, err := m.encodeValue(value)
	if err != nil {
		return err
	}

	start := time.Now()
	err = m.client.Set(ctx, m.key(key), data, ttl).Err()
	m.metrics.RecordSet(time.Since(start))
	if err != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete removes a key from cache
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	m.metrics.RecordDelete()
	return m.client.Del(ctx, m.key(key)).Err()
}

// DeletePrefix removes keys starting with prefix. Keys are found with SCAN,
// on every master in cluster mode, and deleted one pipeline per batch so
// that keys of different hash slots never share a DEL.
func (m *Manager) DeletePrefix(ctx context.Context, prefix string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	pattern := m.key(escapePattern(prefix)) + "*"
	if cluster, ok := m.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return m.deleteMatching(ctx, node, pattern)
		})
	}
	return m.deleteMatching(ctx, m.client, pattern)
}

func (m *Manager) deleteMatching(ctx context.Context, c redis.Cmdable, pattern string) error {
	var cursor uint64
	for {
		batch, next, err := c.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}

		if len(batch) > 0 {
			pipe := c.Pipeline()
			for _, key := range batch {
				pipe.Del(ctx, key)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
			m.metrics.RecordInvalidation()
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Clear removes every key under the namespace
func (m *Manager) Clear(ctx context.Context) error {
	return m.DeletePrefix(ctx, "")
}

// GetStats returns Redis server memory and stats info
func (m *Manager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	info := m.client.Info(ctx, "memory", "stats")
	if info.Err() != nil {
		return nil, fmt.Errorf("failed to get redis info: %w", info.Err())
	}
	return map[string]interface{}{"redis_info": info.Val()}, nil
}

// GetMetrics returns current cache performance metrics
func (m *Manager) GetMetrics() cache.MetricsSnapshot {
	return m.metrics.GetSnapshot()
}

// ResetMetrics resets all performance metrics counters
func (m *Manager) ResetMetrics() {
	m.metrics.Reset()
}

// encodeValue prepends the encoding header, compressing large values
func (m *Manager) encodeValue(value []byte) ([]byte, error) {
	lv := m.config.LargeValue
	if lv.EnableCompression && lv.CompressThreshold > 0 && len(value) > lv.CompressThreshold {
		compressed, err := compressData(value)
		if err != nil {
			return nil, fmt.Errorf("failed to compress large value: %w", err)
		}
		// Use compressed version if it's smaller
		if len(compressed) < len(value) {
			m.metrics.RecordCompression(uint64(len(value) - len(compressed)))
			return append([]byte{encodingGzip}, compressed...), nil
		}
	}
	return append([]byte{encodingRaw}, value...), nil
}

func decodeValue(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrCorruptValue
	}
	switch data[0] {
	case encodingRaw:
		return data[1:], nil
	case encodingGzip:
		return decompressData(data[1:])
	default:
		return nil, fmt.Errorf("%w: header %#x", ErrCorruptValue, data[0])
	}
}

// compressData compresses data using gzip
func compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompressData decompresses gzip data
func decompressData(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// escapePattern escapes glob metacharacters understood by SCAN MATCH
func escapePattern(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
