// Package repository provides typed, cache-first repositories over the
// entity manager. Reads go through the entity manager's query cache; writes
// invalidate every cached query of the entity's table and of the tables
// related to it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ammar0144/ormresource/pkg/cache"
	"github.com/ammar0144/ormresource/pkg/db"
	"github.com/ammar0144/ormresource/pkg/orm"
)

// Cache key constants for consistent key generation
const (
	cacheKeyPrefix     = "ormresource"
	cacheKeySeparator  = ":"
	cacheKeyHashLength = 12 // Balance between uniqueness and key length
)

var _ Repository[struct{}] = (*GenericRepository[struct{}])(nil)

// Option tunes a GenericRepository
type Option func(*options)

type options struct {
	ttl          time.Duration
	queryTimeout time.Duration
	noCache      bool
}

// WithTTL sets how long query results stay cached
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithQueryTimeout bounds every database call
func WithQueryTimeout(timeout time.Duration) Option {
	return func(o *options) { o.queryTimeout = timeout }
}

// WithoutCache reads from the database only
func WithoutCache() Option {
	return func(o *options) { o.noCache = true }
}

// GenericRepository provides CRUD operations with cache-first reads
type GenericRepository[T any] struct {
	em       *orm.EntityManager
	entities *orm.EntityRepository
	cache    cache.Cache
	logger   *zap.Logger

	tableName     string
	dbName        string // Database name for cache key isolation
	relatedTables []string
	preloads      []string

	ttl          time.Duration
	queryTimeout time.Duration
}

// For returns the repository of entity type T, which must be mapped by em
func For[T any](em *orm.EntityManager, opts ...Option) (*GenericRepository[T], error) {
	entityType := reflect.TypeOf((*T)(nil)).Elem()
	entities, err := em.GetRepository(entityType)
	if err != nil {
		return nil, err
	}

	cfg := em.Configuration()
	o := &options{ttl: cfg.QueryCacheTTL}
	model := reflect.New(entities.Metadata().Type).Interface()
	if p, ok := model.(CacheTTLProvider); ok {
		o.ttl = p.CacheTTL()
	}
	if u, ok := model.(Uncacheable); ok && u.SkipQueryCache() {
		o.noCache = true
	}
	for _, opt := range opts {
		opt(o)
	}

	r := &GenericRepository[T]{
		em:            em,
		entities:      entities,
		cache:         cfg.QueryCache,
		logger:        em.Logger().With(zap.String("entity", entities.ClassName())),
		tableName:     entities.Metadata().Table,
		dbName:        databaseName(em.Connection().Params()),
		relatedTables: relatedTables(em, entities.Metadata()),
		ttl:           o.ttl,
		queryTimeout:  o.queryTimeout,
	}
	if o.noCache {
		r.cache = nil
	}
	return r, nil
}

// Metadata returns the mapping of T
func (r *GenericRepository[T]) Metadata() *orm.ClassMetadata {
	return r.entities.Metadata()
}

// withQueryTimeout wraps a context with the configured query timeout
func (r *GenericRepository[T]) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout > 0 {
		return context.WithTimeout(ctx, r.queryTimeout)
	}
	return ctx, func() {}
}

func (r *GenericRepository[T]) query(ctx context.Context) *gorm.DB {
	tx := r.em.WithContext(ctx)
	for _, association := range r.preloads {
		tx = tx.Preload(association)
	}
	return tx
}

// ============================================================================
// READ OPERATIONS - Cache-First Implementation
// ============================================================================

// FindByID finds a record by primary key; a missing record is (nil, nil)
func (r *GenericRepository[T]) FindByID(ctx context.Context, id interface{}) (*T, error) {
	if id == nil {
		return nil, fmt.Errorf("id cannot be nil")
	}
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var entity T
	found, err := r.cached(ctx, r.generateCacheKey("find_by_id", fmt.Sprintf("%v", id)), &entity, func() error {
		return r.query(ctx).First(&entity, r.primaryKeyCondition(), id).Error
	})
	if err != nil || !found {
		return nil, err
	}
	return &entity, nil
}

// FindAll finds all records
func (r *GenericRepository[T]) FindAll(ctx context.Context) ([]T, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var entities []T
	_, err := r.cached(ctx, r.generateCacheKey("find_all", ""), &entities, func() error {
		return r.query(ctx).Find(&entities).Error
	})
	return entities, err
}

// FindWhere finds the records matching criteria
func (r *GenericRepository[T]) FindWhere(ctx context.Context, criteria *db.Criteria) ([]T, error) {
	if err := r.entities.ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var entities []T
	_, err := r.cached(ctx, r.generateCacheKeyFromCriteria("find_where", criteria), &entities, func() error {
		tx, err := apply(r.query(ctx), criteria)
		if err != nil {
			return err
		}
		return tx.Find(&entities).Error
	})
	return entities, err
}

// First finds the first record matching criteria; no match is (nil, nil)
func (r *GenericRepository[T]) First(ctx context.Context, criteria *db.Criteria) (*T, error) {
	if err := r.entities.ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var entity T
	found, err := r.cached(ctx, r.generateCacheKeyFromCriteria("first", criteria), &entity, func() error {
		tx, err := apply(r.query(ctx), criteria)
		if err != nil {
			return err
		}
		return tx.First(&entity).Error
	})
	if err != nil || !found {
		return nil, err
	}
	return &entity, nil
}

// Count counts the records matching criteria; nil counts every record
func (r *GenericRepository[T]) Count(ctx context.Context, criteria *db.Criteria) (int64, error) {
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var count int64
	_, err := r.cached(ctx, r.generateCacheKeyFromCriteria("count", criteria), &count, func() error {
		n, err := r.entities.Count(ctx, criteria)
		count = n
		return err
	})
	return count, err
}

// Exists checks if a record exists by ID
func (r *GenericRepository[T]) Exists(ctx context.Context, id interface{}) (bool, error) {
	entity, err := r.FindByID(ctx, id)
	return entity != nil, err
}

// Preload returns a copy of the repository that loads associations on every read
func (r *GenericRepository[T]) Preload(associations ...string) Repository[T] {
	clone := *r
	clone.preloads = append(append([]string(nil), r.preloads...), associations...)
	return &clone
}

// ============================================================================
// WRITE OPERATIONS - Cache Invalidation Implementation
// ============================================================================

// Create inserts a record and invalidates cached queries
func (r *GenericRepository[T]) Create(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	if err := r.em.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	r.invalidateEntityCaches(ctx)
	return nil
}

// Update saves every field of a record and invalidates cached queries
func (r *GenericRepository[T]) Update(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	if err := r.em.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	r.invalidateEntityCaches(ctx)
	return nil
}

// Delete removes the record with primary key id and reports whether it existed
func (r *GenericRepository[T]) Delete(ctx context.Context, id interface{}) (bool, error) {
	if id == nil {
		return false, fmt.Errorf("id cannot be nil")
	}
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	result := r.em.WithContext(ctx).Where(r.primaryKeyCondition(), id).Delete(new(T))
	if result.Error != nil {
		return false, fmt.Errorf("database error: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	r.invalidateEntityCaches(ctx)
	return true, nil
}

// CreateBatch creates multiple records in one transaction
func (r *GenericRepository[T]) CreateBatch(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	err := r.em.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(entities).Error
	})
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	r.invalidateEntityCaches(ctx)
	return nil
}

// UpdateBatch saves multiple records in one transaction
func (r *GenericRepository[T]) UpdateBatch(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	err := r.em.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entity := range entities {
			if entity == nil {
				continue
			}
			if err := tx.Save(entity).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	r.invalidateEntityCaches(ctx)
	return nil
}

// InvalidateCache invalidates all caches for this entity type in this database
func (r *GenericRepository[T]) InvalidateCache(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.DeletePrefix(ctx, r.tablePrefix(r.tableName))
}

// WarmCache preloads commonly accessed data
func (r *GenericRepository[T]) WarmCache(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	if _, err := r.FindAll(ctx); err != nil {
		return err
	}
	_, err := r.Count(ctx, nil)
	return err
}

// ============================================================================
// HELPER METHODS - Cache Key Generation and Management
// ============================================================================

// cached fills dest from the cache or, on a miss, from load and stores the
// result. Cache failures only cost a database round trip. It reports false
// when load found no record.
func (r *GenericRepository[T]) cached(ctx context.Context, key string, dest interface{}, load func() error) (bool, error) {
	if r.cache != nil {
		err := cache.GetValue(ctx, r.cache, key, dest)
		if err == nil {
			return true, nil
		}
		if !cache.IsMiss(err) {
			r.logger.Debug("query cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	if err := load(); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("database error: %w", err)
	}

	if r.cache != nil {
		if err := cache.SetValue(ctx, r.cache, key, dest, r.ttl); err != nil {
			r.logger.Debug("query cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return true, nil
}

func (r *GenericRepository[T]) tablePrefix(table string) string {
	return strings.Join([]string{cacheKeyPrefix, r.dbName, table}, cacheKeySeparator) + cacheKeySeparator
}

// generateCacheKey creates a cache key for simple operations with database isolation
func (r *GenericRepository[T]) generateCacheKey(operation, suffix string) string {
	key := r.tablePrefix(r.tableName) + operation
	if len(r.preloads) > 0 {
		key += cacheKeySeparator + "preload=" + strings.Join(r.preloads, ",")
	}
	if suffix != "" {
		key += cacheKeySeparator + suffix
	}
	return key
}

// generateCacheKeyFromCriteria hashes the rendered criteria into the key
func (r *GenericRepository[T]) generateCacheKeyFromCriteria(operation string, criteria *db.Criteria) string {
	if criteria == nil {
		return r.generateCacheKey(operation, "")
	}
	where, args := criteria.BuildWhere()
	argsData, err := msgpack.Marshal(args)
	if err != nil {
		argsData = []byte(fmt.Sprintf("%v", args))
	}
	combined := criteria.String() + cacheKeySeparator + where + cacheKeySeparator + string(argsData)

	// xxhash: fast, non-cryptographic, stable across processes
	hashStr := fmt.Sprintf("%016x", xxhash.Sum64String(combined))
	return r.generateCacheKey(operation, hashStr[:cacheKeyHashLength])
}

// invalidateEntityCaches drops the cached queries of the entity's table and
// of every table related to it. Failures are logged; the write already succeeded.
func (r *GenericRepository[T]) invalidateEntityCaches(ctx context.Context) {
	if r.cache == nil {
		return
	}
	for _, table := range append([]string{r.tableName}, r.relatedTables...) {
		if err := r.cache.DeletePrefix(ctx, r.tablePrefix(table)); err != nil {
			r.logger.Warn("query cache invalidation failed", zap.String("table", table), zap.Error(err))
		}
	}
}

func (r *GenericRepository[T]) primaryKeyCondition() string {
	if pf := r.entities.Metadata().PrimaryField(); pf != nil {
		return pf.DBName + " = ?"
	}
	return "id = ?"
}

func apply(tx *gorm.DB, criteria *db.Criteria) (*gorm.DB, error) {
	if criteria == nil {
		return tx, nil
	}
	return criteria.Apply(tx)
}

// ============================================================================
// UTILITY FUNCTIONS
// ============================================================================

// databaseName isolates cache keys of different databases sharing one cache
func databaseName(p *db.Params) string {
	switch {
	case p == nil:
		return "default"
	case p.DBName != "":
		return p.DBName
	case p.Path != "":
		return strings.TrimSuffix(filepath.Base(p.Path), filepath.Ext(p.Path))
	default:
		return p.Driver
	}
}

// relatedTables lists the tables meta has relationships with, and the tables
// of mapped entities that have relationships with meta
func relatedTables(em *orm.EntityManager, meta *orm.ClassMetadata) []string {
	seen := map[string]bool{meta.Table: true}
	var tables []string
	add := func(table string) {
		if table != "" && !seen[table] {
			seen[table] = true
			tables = append(tables, table)
		}
	}

	for _, rel := range meta.Schema.Relationships.Relations {
		if rel.FieldSchema != nil {
			add(rel.FieldSchema.Table)
		}
	}
	for _, other := range em.AllMetadata() {
		for _, rel := range other.Schema.Relationships.Relations {
			if rel.FieldSchema != nil && rel.FieldSchema.Table == meta.Table {
				add(other.Table)
			}
		}
	}
	sort.Strings(tables)
	return tables
}
