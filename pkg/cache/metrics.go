package cache

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"
)

type counter int

const (
	hits counter = iota
	misses
	failures
	gets
	sets
	deletes
	getNanos
	setNanos
	compressedBytes
	invalidations
	evictions
	numCounters
)

// Metrics counts cache operations. The zero value is ready to use.
type Metrics struct {
	counters [numCounters]atomic.Uint64
}

// NewMetrics returns zeroed counters
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) add(c counter, n uint64) {
	m.counters[c].Add(n)
}

func (m *Metrics) load(c counter) uint64 {
	return m.counters[c].Load()
}

func (m *Metrics) RecordCacheHit()   { m.add(hits, 1) }
func (m *Metrics) RecordCacheMiss()  { m.add(misses, 1) }
func (m *Metrics) RecordCacheError() { m.add(failures, 1) }
func (m *Metrics) RecordDelete()     { m.add(deletes, 1) }

// RecordInvalidation counts a prefix delete or a clear
func (m *Metrics) RecordInvalidation() { m.add(invalidations, 1) }

// RecordEviction counts an entry pushed out to make room
func (m *Metrics) RecordEviction() { m.add(evictions, 1) }

// RecordGet counts a lookup and its latency
func (m *Metrics) RecordGet(d time.Duration) {
	m.add(gets, 1)
	m.add(getNanos, uint64(d))
}

// RecordSet counts a write and its latency
func (m *Metrics) RecordSet(d time.Duration) {
	m.add(sets, 1)
	m.add(setNanos, uint64(d))
}

// RecordCompression adds the bytes a compressed value saved
func (m *Metrics) RecordCompression(saved uint64) { m.add(compressedBytes, saved) }

// GetSnapshot reads every counter
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		CacheHits:             m.load(hits),
		CacheMisses:           m.load(misses),
		CacheErrors:           m.load(failures),
		GetOperations:         m.load(gets),
		SetOperations:         m.load(sets),
		DeleteOperations:      m.load(deletes),
		CompressionBytesSaved: m.load(compressedBytes),
		InvalidationCount:     m.load(invalidations),
		Evictions:             m.load(evictions),
	}
	if lookups := s.CacheHits + s.CacheMisses; lookups > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(lookups) * 100
	}
	if s.GetOperations > 0 {
		s.AvgGetLatency = time.Duration(m.load(getNanos) / s.GetOperations)
	}
	if s.SetOperations > 0 {
		s.AvgSetLatency = time.Duration(m.load(setNanos) / s.SetOperations)
	}
	return s
}

// Reset zeroes every counter
func (m *Metrics) Reset() {
	for i := range m.counters {
		m.counters[i].Store(0)
	}
}

// MetricsSnapshot is a point-in-time copy of the counters
type MetricsSnapshot struct {
	CacheHits    uint64  `json:"cache_hits" yaml:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses" yaml:"cache_misses"`
	CacheErrors  uint64  `json:"cache_errors" yaml:"cache_errors"`
	CacheHitRate float64 `json:"cache_hit_rate" yaml:"cache_hit_rate"` // percent

	GetOperations    uint64 `json:"get_operations" yaml:"get_operations"`
	SetOperations    uint64 `json:"set_operations" yaml:"set_operations"`
	DeleteOperations uint64 `json:"delete_operations" yaml:"delete_operations"`

	AvgGetLatency time.Duration `json:"avg_get_latency" yaml:"avg_get_latency"`
	AvgSetLatency time.Duration `json:"avg_set_latency" yaml:"avg_set_latency"`

	CompressionBytesSaved uint64 `json:"compression_bytes_saved" yaml:"compression_bytes_saved"`
	InvalidationCount     uint64 `json:"invalidation_count" yaml:"invalidation_count"`
	Evictions             uint64 `json:"evictions" yaml:"evictions"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (s MetricsSnapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("hits", s.CacheHits)
	enc.AddUint64("misses", s.CacheMisses)
	enc.AddUint64("errors", s.CacheErrors)
	enc.AddFloat64("hit_rate", s.CacheHitRate)
	enc.AddDuration("avg_get", s.AvgGetLatency)
	enc.AddDuration("avg_set", s.AvgSetLatency)
	enc.AddUint64("evictions", s.Evictions)
	enc.AddUint64("invalidations", s.InvalidationCount)
	if s.CompressionBytesSaved > 0 {
		enc.AddUint64("compression_saved", s.CompressionBytesSaved)
	}
	return nil
}

// MetricsReporter is implemented by caches that track metrics
type MetricsReporter interface {
	GetMetrics() MetricsSnapshot
}
