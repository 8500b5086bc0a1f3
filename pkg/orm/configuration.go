package orm

import (
	"time"

	"gorm.io/gorm/logger"

	"github.com/ammar0144/ormresource/pkg/cache"
	"github.com/ammar0144/ormresource/pkg/metadata"
)

// Configuration carries the mapping settings of an entity manager
type Configuration struct {
	// MetadataDriver discovers entity declarations
	MetadataDriver *metadata.Driver

	MetadataCache cache.Cache
	QueryCache    cache.Cache

	// QueryCacheTTL is the lifetime of cached query results; zero uses the cache default
	QueryCacheTTL time.Duration

	ProxyDir                 string
	ProxyNamespace           string
	AutoGenerateProxyClasses bool

	// SQLLogger receives every statement; nil uses GORM's default logger at LogLevel
	SQLLogger logger.Interface
	LogLevel  string

	// Models are the Go types that may be mapped; only those declared in the
	// driver's paths become entities
	Models []interface{}
}

// NewConfiguration returns an empty configuration logging errors only
func NewConfiguration() *Configuration {
	return &Configuration{LogLevel: "error"}
}

// AddModels appends model types to map
func (c *Configuration) AddModels(models ...interface{}) {
	c.Models = append(c.Models, models...)
}
