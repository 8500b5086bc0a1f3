// Package ormresource bootstraps a GORM entity manager for one application
// module, with optional timestamping, slug and tree behaviors.
package ormresource

import (
	"github.com/ammar0144/ormresource/pkg/config"
	"github.com/ammar0144/ormresource/pkg/orm"
	"github.com/ammar0144/ormresource/pkg/repository"
	"github.com/ammar0144/ormresource/pkg/resource"
)

// Config represents the resource configuration
type Config = config.Config

// LoadConfig reads a section of an INI or YAML configuration file
func LoadConfig(path, section string) (*Config, error) {
	return config.Load(path, section)
}

// Resource holds the entity manager of one module
type Resource = resource.Resource

// EntityManager is the handle to a configured database
type EntityManager = orm.EntityManager

// New creates a resource for module below rootPath.
// options may hold timestampable, sluggable, tree and profile.
func New(cfg *Config, rootPath, module string, options map[string]interface{}, opts ...resource.Option) (*Resource, error) {
	return resource.New(cfg, rootPath, module, options, opts...)
}

// Repository provides the generic repository interface
type Repository[T any] interface {
	repository.Repository[T]
}

// NewRepository creates a cache-first repository for the mapped entity T
func NewRepository[T any](em *EntityManager) (Repository[T], error) {
	repo, err := repository.For[T](em)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
