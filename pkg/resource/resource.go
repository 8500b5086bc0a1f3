// Package resource bootstraps an entity manager for one application module.
//
// A Resource reads the module's configuration, switches on the behavior
// listeners named in its options, resolves the entity and proxy folders,
// selects a cache by name and builds the entity manager. The manager is
// returned by EntityManager and also published in a registry under "em".
//
//	cfg, _ := config.Load("app/configs/doctrine.ini", "production")
//	res, err := resource.New(cfg, root, "default", map[string]interface{}{
//		"timestampable": true,
//		"sluggable":     true,
//	}, resource.WithModels(models.Article{}))
//	if err != nil {
//		return err
//	}
//	em, _ := res.EntityManager()
package resource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/ammar0144/ormresource/pkg/annotation"
	"github.com/ammar0144/ormresource/pkg/cache"
	"github.com/ammar0144/ormresource/pkg/config"
	"github.com/ammar0144/ormresource/pkg/db"
	"github.com/ammar0144/ormresource/pkg/metadata"
	"github.com/ammar0144/ormresource/pkg/orm"

	// registers the redis cache implementation
	_ "github.com/ammar0144/ormresource/pkg/redis"
)

// RegistryKey is the registry name the entity manager is published under
const RegistryKey = "em"

// Library relative folders
var (
	ModelDir      = filepath.Join("library", "Doctrine", "Model")
	ProxyDir      = filepath.Join("library", "Doctrine", "Proxy")
	ExtensionsDir = filepath.Join("vendor", "gedmo", "doctrine-extensions", "lib")
)

// Resource holds the entity manager of one module
type Resource struct {
	config     *config.Config
	rootPath   string
	module     string
	modulePath string
	options    Options

	entityFolders []string
	proxyDir      string
	cache         cache.Cache
	events        *orm.EventManager
	ormConfig     *orm.Configuration
	em            *orm.EntityManager

	logger *zap.Logger
}

// New validates its inputs and builds the entity manager.
// options may only hold the keys timestampable, sluggable, tree and profile,
// each with a bool value.
func New(cfg *config.Config, rootPath, module string, options map[string]interface{}, opts ...Option) (*Resource, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.echo == nil {
		s.echo = os.Stdout
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}

	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration cannot be nil", ErrInvalidArgument)
	}
	if rootPath == "" {
		return nil, fmt.Errorf("%w: root path needs to be given", ErrInvalidArgument)
	}
	if module == "" {
		return nil, fmt.Errorf("%w: module name needs to be given", ErrInvalidArgument)
	}
	if s.appDir == "" {
		return nil, fmt.Errorf("%w: application folder cannot be empty", ErrInvalidArgument)
	}
	if s.registry == nil {
		return nil, fmt.Errorf("%w: registry cannot be nil", ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	parsed, err := ParseOptions(options)
	if err != nil {
		return nil, err
	}

	r := &Resource{
		config:     cfg,
		rootPath:   rootPath,
		module:     module,
		modulePath: rootPath + "/" + s.appDir + "/modules/" + module,
		options:    parsed,
		logger:     s.logger.With(zap.String("module", module)),
	}
	if err := r.init(s); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resource) init(s *settings) error {
	r.events = orm.NewEventManager()
	for _, l := range listenersFor(r.options, s) {
		r.events.AddEventSubscriber(l)
	}

	r.ormConfig = orm.NewConfiguration()
	r.ormConfig.LogLevel = r.config.Log.Level
	if r.options.Profile {
		r.ormConfig.SQLLogger = db.NewEchoLogger(s.echo)
	}

	folders, err := r.resolveEntityFolders()
	if err != nil {
		return err
	}
	r.entityFolders = folders
	r.proxyDir = filepath.Join(r.rootPath, ProxyDir)

	c, err := cache.New(r.config.CacheImplementation, r.config)
	if err != nil {
		if cache.IsUnknownImplementation(err) {
			return fmt.Errorf("%w: %w", ErrClassNotFound, err)
		}
		return err
	}
	r.cache = c

	driver := metadata.NewAnnotationDriver(annotation.NewReader(), r.entityFolders,
		metadata.WithCache(c),
		metadata.WithLogger(r.logger))

	annotation.RegisterNamespace(annotation.Gedmo, filepath.Join(r.rootPath, ExtensionsDir))

	r.ormConfig.MetadataDriver = driver
	r.ormConfig.MetadataCache = c
	r.ormConfig.QueryCache = c
	r.ormConfig.QueryCacheTTL = r.config.Cache.DefaultTTL
	r.ormConfig.ProxyDir = r.proxyDir
	r.ormConfig.ProxyNamespace = r.config.Proxy.Namespace
	r.ormConfig.AutoGenerateProxyClasses = r.config.AutoGenerateProxyClasses
	r.ormConfig.AddModels(s.models...)

	em, err := orm.Create(s.ctx, r.config.Connection.ToMap(), r.ormConfig, r.events,
		orm.WithConn(s.conn),
		orm.WithLogger(r.logger))
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to create entity manager: %w", err)
	}
	r.em = em
	s.registry.Set(RegistryKey, em)

	r.logger.Info("resource initialized",
		zap.String("module_path", r.modulePath),
		zap.Strings("entity_folders", r.entityFolders),
		zap.String("cache", c.Name()),
		zap.Any("options", r.options.Map()))
	return nil
}

// resolveEntityFolders returns the library model folder plus the module's
// model folder when it is a directory. With no model folder configured the
// module folder itself is used.
func (r *Resource) resolveEntityFolders() ([]string, error) {
	folders := []string{filepath.Join(r.rootPath, ModelDir)}

	moduleModels := r.modulePath
	if r.config.ModelFolder != "" {
		moduleModels = filepath.Join(r.modulePath, r.config.ModelFolder)
	}
	info, err := os.Stat(moduleModels)
	switch {
	case err == nil && info.IsDir():
		folders = append(folders, moduleModels)
	case err == nil:
		r.logger.Warn("module model folder is not a directory", zap.String("path", moduleModels))
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		r.logger.Debug("module model folder not found", zap.String("path", moduleModels))
	default:
		return nil, fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	return folders, nil
}

// EntityManager returns the entity manager built by New
func (r *Resource) EntityManager() (*orm.EntityManager, error) {
	if r == nil || r.em == nil {
		return nil, ErrUninitialized
	}
	return r.em, nil
}

// Options returns the effective option set
func (r *Resource) Options() Options {
	return r.options
}

// ModulePath returns root/appDir/modules/module
func (r *Resource) ModulePath() string {
	return r.modulePath
}

// EntityFolders returns the folders the metadata driver reads
func (r *Resource) EntityFolders() []string {
	return append([]string(nil), r.entityFolders...)
}

// ProxyDir returns the folder generated proxies are written to
func (r *Resource) ProxyDir() string {
	return r.proxyDir
}

// EventManager returns the event bus holding the enabled listeners
func (r *Resource) EventManager() *orm.EventManager {
	return r.events
}

// Configuration returns the mapping configuration handed to the entity manager
func (r *Resource) Configuration() *orm.Configuration {
	return r.ormConfig
}

// Close closes the entity manager along with its cache.
// The registry entry is left alone.
func (r *Resource) Close() error {
	if r == nil || r.em == nil {
		return ErrUninitialized
	}
	return r.em.Close()
}

// Cache returns the cache used for metadata and queries
func (r *Resource) Cache() cache.Cache {
	return r.cache
}
