// Package orm assembles a GORM connection, entity metadata and lifecycle
// listeners into an EntityManager.
package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ammar0144/ormresource/pkg/db"
	"github.com/ammar0144/ormresource/pkg/proxy"
)

// EntityManager owns a database connection and the metadata of its entities
type EntityManager struct {
	id     uuid.UUID
	conn   *db.Manager
	config *Configuration
	events *EventManager
	logger *zap.Logger

	mu     sync.RWMutex
	byType map[reflect.Type]*ClassMetadata
	byName map[string]*ClassMetadata

	closeOnce sync.Once
	closeErr  error
}

// Option configures Create
type Option func(*createOptions)

type createOptions struct {
	conn   *sql.DB
	logger *zap.Logger
}

// WithConn reuses an existing connection pool
func WithConn(conn *sql.DB) Option {
	return func(o *createOptions) { o.conn = conn }
}

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *createOptions) { o.logger = logger }
}

// Create opens the connection described by the flat params mapping, installs
// the listeners of events and maps the configured models
func Create(ctx context.Context, params map[string]string, config *Configuration, events *EventManager, opts ...Option) (*EntityManager, error) {
	if config == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if config.MetadataDriver == nil {
		return nil, ErrNoMetadataDriver
	}
	if events == nil {
		events = NewEventManager()
	}

	o := &createOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	connParams, err := db.ParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	sqlLogger := config.SQLLogger
	if sqlLogger == nil {
		sqlLogger = db.NewLogger(config.LogLevel)
	}
	conn, err := db.Open(connParams, db.Options{Logger: sqlLogger, Conn: o.conn})
	if err != nil {
		return nil, err
	}

	em := &EntityManager{
		id:     uuid.New(),
		conn:   conn,
		config: config,
		events: events,
		logger: o.logger,
	}
	em.logger = em.logger.With(zap.String("entity_manager", em.id.String()))

	if err := events.install(conn.DB()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to install listeners: %w", err)
	}

	if err := em.mapModels(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if config.AutoGenerateProxyClasses {
		if _, err := em.GenerateProxies(); err != nil {
			conn.Close()
			return nil, err
		}
	}

	em.logger.Info("entity manager created",
		zap.String("driver", connParams.Driver),
		zap.Int("listeners", events.Count()),
		zap.Int("entities", em.entityCount()),
		zap.Strings("metadata_paths", config.MetadataDriver.Paths()))
	return em, nil
}

// mapModels keeps the configured models that the driver found declared
func (em *EntityManager) mapModels(ctx context.Context) error {
	definitions, err := em.config.MetadataDriver.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load entity metadata: %w", err)
	}

	byType := make(map[reflect.Type]*ClassMetadata)
	byName := make(map[string]*ClassMetadata)
	for _, model := range em.config.Models {
		typ, err := modelType(model)
		if err != nil {
			return err
		}
		def, ok := definitions[typ.Name()]
		if !ok {
			em.logger.Debug("model not declared in metadata paths", zap.String("model", typ.String()))
			continue
		}

		stmt := &gorm.Statement{DB: em.conn.DB()}
		if err := stmt.Parse(reflect.New(typ).Interface()); err != nil {
			return fmt.Errorf("failed to parse schema of %s: %w", typ, err)
		}
		if def.Table != "" {
			stmt.Schema.Table = def.Table
		}

		cm := newClassMetadata(typ, stmt.Schema, def)
		byType[typ] = cm
		byName[cm.Name] = cm
	}

	em.mu.Lock()
	em.byType, em.byName = byType, byName
	em.mu.Unlock()
	return nil
}

// Reload rescans the metadata paths and replaces the entity mapping.
// Entities whose declaration was removed stop being mapped; on error the
// previous mapping is kept.
func (em *EntityManager) Reload(ctx context.Context) error {
	em.config.MetadataDriver.Reset()
	if err := em.mapModels(ctx); err != nil {
		return err
	}
	em.logger.Debug("entity metadata reloaded", zap.Int("entities", em.entityCount()))
	return nil
}

func (em *EntityManager) entityCount() int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return len(em.byName)
}

func modelType(model interface{}) (reflect.Type, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidEntity)
	}
	typ := reflect.TypeOf(model)
	if t, ok := model.(reflect.Type); ok {
		typ = t
	}
	for typ.Kind() == reflect.Ptr || typ.Kind() == reflect.Slice {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidEntity, typ)
	}
	return typ, nil
}

// ID identifies this entity manager in logs
func (em *EntityManager) ID() string {
	return em.id.String()
}

// DB returns the GORM handle with every listener installed
func (em *EntityManager) DB() *gorm.DB {
	return em.conn.DB()
}

// WithContext returns a GORM session bound to ctx
func (em *EntityManager) WithContext(ctx context.Context) *gorm.DB {
	return em.conn.DB().WithContext(ctx)
}

// Connection returns the underlying connection manager
func (em *EntityManager) Connection() *db.Manager {
	return em.conn
}

// Configuration returns the mapping configuration
func (em *EntityManager) Configuration() *Configuration {
	return em.config
}

// EventManager returns the event manager whose listeners are installed
func (em *EntityManager) EventManager() *EventManager {
	return em.events
}

// Logger returns the structured logger
func (em *EntityManager) Logger() *zap.Logger {
	return em.logger
}

// MetadataFor returns the metadata of a model (value, pointer, slice or reflect.Type)
func (em *EntityManager) MetadataFor(model interface{}) (*ClassMetadata, error) {
	typ, err := modelType(model)
	if err != nil {
		return nil, err
	}
	em.mu.RLock()
	cm, ok := em.byType[typ]
	em.mu.RUnlock()
	if !ok {
		return nil, &MappingError{Type: typ.String(), Reason: "not declared as an entity in the metadata paths"}
	}
	return cm, nil
}

// MetadataByName returns the metadata of the entity declared under name
func (em *EntityManager) MetadataByName(name string) (*ClassMetadata, error) {
	em.mu.RLock()
	cm, ok := em.byName[name]
	em.mu.RUnlock()
	if !ok {
		return nil, &MappingError{Type: name, Reason: "unknown entity name"}
	}
	return cm, nil
}

// AllMetadata returns the metadata of every mapped entity sorted by name
func (em *EntityManager) AllMetadata() []*ClassMetadata {
	em.mu.RLock()
	out := make([]*ClassMetadata, 0, len(em.byName))
	for _, cm := range em.byName {
		out = append(out, cm)
	}
	em.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetRepository returns the repository of a mapped model
func (em *EntityManager) GetRepository(model interface{}) (*EntityRepository, error) {
	cm, err := em.MetadataFor(model)
	if err != nil {
		return nil, err
	}
	return &EntityRepository{em: em, meta: cm}, nil
}

// GenerateProxies writes proxy sources for every mapped entity and returns the files written
func (em *EntityManager) GenerateProxies() ([]string, error) {
	if em.config.ProxyDir == "" {
		return nil, fmt.Errorf("proxy directory is not configured")
	}

	var entities []proxy.Entity
	for _, cm := range em.AllMetadata() {
		e := proxy.Entity{Name: cm.Name, Table: cm.Table}
		if pf := cm.PrimaryField(); pf != nil {
			e.PrimaryKey = pf.DBName
		}
		entities = append(entities, e)
	}

	written, err := proxy.NewGenerator(em.config.ProxyDir, em.config.ProxyNamespace, em.logger).Generate(entities)
	if err != nil {
		return written, fmt.Errorf("failed to generate proxies: %w", err)
	}
	return written, nil
}

// UpdateSchema creates or alters the tables of every mapped entity
func (em *EntityManager) UpdateSchema(ctx context.Context) error {
	metas := em.AllMetadata()
	models := make([]interface{}, 0, len(metas))
	for _, cm := range metas {
		models = append(models, reflect.New(cm.Type).Interface())
	}
	if len(models) == 0 {
		return nil
	}
	if err := em.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to update schema: %w", err)
	}
	return nil
}

// ClearCaches empties the metadata and query caches
func (em *EntityManager) ClearCaches(ctx context.Context) error {
	var errs []error
	if c := em.config.MetadataCache; c != nil {
		errs = append(errs, c.Clear(ctx))
	}
	if c := em.config.QueryCache; c != nil && c != em.config.MetadataCache {
		errs = append(errs, c.Clear(ctx))
	}
	em.config.MetadataDriver.Reset()
	return errors.Join(errs...)
}

// Ping tests the database connection
func (em *EntityManager) Ping(ctx context.Context) error {
	return em.conn.Ping(ctx)
}

// Stats returns database connection statistics
func (em *EntityManager) Stats() (sql.DBStats, error) {
	return em.conn.Stats()
}

// Close releases the connection and caches; later calls return the first result
func (em *EntityManager) Close() error {
	em.closeOnce.Do(func() {
		var errs []error
		errs = append(errs, em.conn.Close())
		if c := em.config.MetadataCache; c != nil {
			errs = append(errs, c.Close())
		}
		if c := em.config.QueryCache; c != nil && c != em.config.MetadataCache {
			errs = append(errs, c.Close())
		}
		em.closeErr = errors.Join(errs...)
		em.logger.Debug("entity manager closed")
	})
	return em.closeErr
}
