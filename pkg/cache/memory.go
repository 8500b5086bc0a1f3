package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ammar0144/ormresource/pkg/config"
)

// DefaultMemorySize bounds the number of entries an in-process cache keeps
const DefaultMemorySize = 10000

func init() {
	Register("array", newMemoryFromConfig("array"))
	Register("memory", newMemoryFromConfig("memory"))
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is a process-local LRU cache. Entries live as long as the process.
type Memory struct {
	name       string
	defaultTTL time.Duration
	entries    *lru.Cache[string, memoryEntry]
	metrics    *Metrics
	now        func() time.Time
}

// NewMemory creates an in-process cache holding at most size entries
func NewMemory(name string, size int, defaultTTL time.Duration) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &Memory{
		name:       name,
		defaultTTL: defaultTTL,
		entries:    entries,
		metrics:    NewMetrics(),
		now:        time.Now,
	}, nil
}

func newMemoryFromConfig(name string) Factory {
	return func(cfg *config.Config) (Cache, error) {
		return NewMemory(name, DefaultMemorySize, cfg.Cache.DefaultTTL)
	}
}

func (m *Memory) Name() string {
	return m.name
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	start := m.now()
	entry, ok := m.entries.Get(key)
	m.metrics.RecordGet(m.now().Sub(start))

	if ok && !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.entries.Remove(key)
		ok = false
	}
	if !ok {
		m.metrics.RecordCacheMiss()
		return nil, ErrMiss
	}

	m.metrics.RecordCacheHit()
	return entry.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	start := m.now()
	if ttl == 0 {
		ttl = m.defaultTTL
	}

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = start.Add(ttl)
	}
	if evicted := m.entries.Add(key, entry); evicted {
		m.metrics.RecordEviction()
	}
	m.metrics.RecordSet(m.now().Sub(start))
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	m.metrics.RecordDelete()
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	for _, key := range m.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.entries.Remove(key)
		}
	}
	m.metrics.RecordInvalidation()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.entries.Purge()
	m.metrics.RecordInvalidation()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *Memory) Len() int {
	return m.entries.Len()
}

func (m *Memory) Close() error {
	m.entries.Purge()
	return nil
}

// GetMetrics returns current cache performance metrics
func (m *Memory) GetMetrics() MetricsSnapshot {
	return m.metrics.GetSnapshot()
}
