package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config mirrors the resource section of an application INI file.
//
// Keys are dotted the way sectioned INI files nest them, e.g.
//
//	[production]
//	cacheImplementation = array
//	modelFolder = models
//	proxy.namespace = proxies
//	connection.driver = pdo_mysql
//	connection.host = localhost
type Config struct {
	// Name of a registered cache implementation (array, memory, redis)
	CacheImplementation string `json:"cache_implementation" yaml:"cache_implementation" mapstructure:"cacheImplementation"`

	// Sub folder of a module holding entity sources
	ModelFolder string `json:"model_folder" yaml:"model_folder" mapstructure:"modelFolder"`

	AutoGenerateProxyClasses bool `json:"auto_generate_proxy_classes" yaml:"auto_generate_proxy_classes" mapstructure:"autoGenerateProxyClasses"`

	Proxy      ProxyConfig      `json:"proxy" yaml:"proxy" mapstructure:"proxy"`
	Connection ConnectionConfig `json:"connection" yaml:"connection" mapstructure:"connection"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" mapstructure:"cache"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}

// ProxyConfig holds proxy generation settings
type ProxyConfig struct {
	Namespace string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
	// Folder is accepted for compatibility; proxies always go to the library folder
	Folder string `json:"folder" yaml:"folder" mapstructure:"folder"`
}

// ConnectionConfig holds database connection parameters
type ConnectionConfig struct {
	Driver   string `json:"driver" yaml:"driver" mapstructure:"driver"` // pdo_mysql, mysql, pdo_sqlite, sqlite
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	User     string `json:"user" yaml:"user" mapstructure:"user"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	DBName   string `json:"dbname" yaml:"dbname" mapstructure:"dbname"`
	Charset  string `json:"charset" yaml:"charset" mapstructure:"charset"`
	Path     string `json:"path" yaml:"path" mapstructure:"path"` // sqlite database file

	// Connection Pool Settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"connMaxLifetime"`
}

// CacheConfig holds settings shared by cache implementations
type CacheConfig struct {
	Namespace  string        `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"ttl"`
	Redis      RedisConfig   `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// RedisConfig is consulted when CacheImplementation is redis
type RedisConfig struct {
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	Database int    `json:"database" yaml:"database" mapstructure:"database"`
	PoolSize int    `json:"pool_size" yaml:"pool_size" mapstructure:"poolSize"`
}

// LogConfig controls logging
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`   // silent, error, warn, info
	Format string `json:"format" yaml:"format" mapstructure:"format"` // json, console
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		CacheImplementation: "array",
		ModelFolder:         "models",
		Proxy: ProxyConfig{
			Namespace: "proxies",
		},
		Connection: ConnectionConfig{
			Driver:          "pdo_mysql",
			Host:            "localhost",
			Port:            3306,
			Charset:         "utf8mb4",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Cache: CacheConfig{
			Namespace:  "ormresource",
			DefaultTTL: time.Hour,
			Redis: RedisConfig{
				Host:     "localhost",
				Port:     6379,
				PoolSize: 10,
			},
		},
		Log: LogConfig{
			Level:  "error",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.CacheImplementation == "" {
		return fmt.Errorf("cacheImplementation is required")
	}
	if c.Proxy.Namespace == "" {
		return fmt.Errorf("proxy.namespace is required")
	}
	if c.Connection.Driver == "" {
		return fmt.Errorf("connection.driver is required")
	}
	if c.Connection.Port < 0 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port must be between 0 and 65535, got %d", c.Connection.Port)
	}
	if c.Connection.MaxIdleConns > c.Connection.MaxOpenConns && c.Connection.MaxOpenConns > 0 {
		return fmt.Errorf("connection.maxIdleConns cannot be greater than connection.maxOpenConns")
	}
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative")
	}
	return nil
}

// ToMap flattens the connection parameters
func (c ConnectionConfig) ToMap() map[string]string {
	m := map[string]string{
		"driver":   c.Driver,
		"host":     c.Host,
		"user":     c.User,
		"password": c.Password,
		"dbname":   c.DBName,
		"charset":  c.Charset,
	}
	if c.Port > 0 {
		m["port"] = strconv.Itoa(c.Port)
	}
	if c.Path != "" {
		m["path"] = c.Path
	}
	if c.MaxOpenConns > 0 {
		m["max_open_conns"] = strconv.Itoa(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		m["max_idle_conns"] = strconv.Itoa(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		m["conn_max_lifetime"] = c.ConnMaxLifetime.String()
	}
	return m
}
