package redis

import (
	"fmt"
	"time"

	"github.com/ammar0144/ormresource/pkg/config"
)

// Config holds Redis cache configuration
type Config struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	Namespace  string        `json:"namespace" yaml:"namespace"` // prefixes every key
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`

	// Redis Connection
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	Database int    `json:"database" yaml:"database"`

	// Connection Pool
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns"`
	MaxConnAge   time.Duration `json:"max_conn_age" yaml:"max_conn_age"`
	PoolTimeout  time.Duration `json:"pool_timeout" yaml:"pool_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// Performance
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// Clustering (for Redis Cluster)
	Cluster ClusterConfig `json:"cluster" yaml:"cluster"`

	// Large Value Handling
	LargeValue LargeValueConfig `json:"large_value" yaml:"large_value"`
}

// ClusterConfig for Redis Cluster setup
type ClusterConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Addresses []string `json:"addresses" yaml:"addresses"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`
}

// LargeValueConfig controls handling of large cache values
type LargeValueConfig struct {
	MaxValueSize      int  `json:"max_value_size" yaml:"max_value_size"`         // Maximum size per key (bytes)
	CompressThreshold int  `json:"compress_threshold" yaml:"compress_threshold"` // Auto-compress above this size
	EnableCompression bool `json:"enable_compression" yaml:"enable_compression"`
}

// DefaultConfig returns a Redis configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		Namespace:    "ormresource",
		DefaultTTL:   time.Hour,
		Host:         "localhost",
		Port:         6379,
		Database:     0,
		PoolSize:     10,
		MinIdleConns: 3,
		MaxConnAge:   time.Hour,
		PoolTimeout:  time.Second * 4,
		IdleTimeout:  time.Minute * 5,
		ReadTimeout:  time.Second * 3,
		WriteTimeout: time.Second * 3,
		DialTimeout:  time.Second * 5,
		LargeValue: LargeValueConfig{
			MaxValueSize:      1024 * 1024 * 10, // 10MB max per key
			CompressThreshold: 1024 * 100,       // Compress values larger than 100KB
			EnableCompression: true,
		},
	}
}

// ConfigFrom derives the Redis configuration from the resource configuration
func ConfigFrom(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg.Cache.Namespace != "" {
		c.Namespace = cfg.Cache.Namespace
	}
	if cfg.Cache.DefaultTTL > 0 {
		c.DefaultTTL = cfg.Cache.DefaultTTL
	}
	r := cfg.Cache.Redis
	if r.Host != "" {
		c.Host = r.Host
	}
	if r.Port > 0 {
		c.Port = r.Port
	}
	if r.PoolSize > 0 {
		c.PoolSize = r.PoolSize
	}
	if c.MinIdleConns > c.PoolSize {
		c.MinIdleConns = c.PoolSize
	}
	c.Password = r.Password
	c.Database = r.Database
	return c
}

// Validate checks if the Redis configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // Skip validation if cache is disabled
	}

	if c.Host == "" && !c.IsClusterMode() {
		return fmt.Errorf("redis host is required when cache is enabled")
	}
	if c.Port <= 0 && !c.IsClusterMode() {
		return fmt.Errorf("redis port must be positive")
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive when cache is enabled")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1")
	}

	return nil
}

// GetAddr returns the Redis connection address
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsClusterMode returns true if Redis cluster is enabled
func (c *Config) IsClusterMode() bool {
	return c.Cluster.Enabled && len(c.Cluster.Addresses) > 0
}
