package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/ammar0144/ormresource/pkg/annotation"
	"github.com/ammar0144/ormresource/pkg/cache"
	"github.com/ammar0144/ormresource/pkg/db"
	"github.com/ammar0144/ormresource/pkg/metadata"
	"github.com/ammar0144/ormresource/pkg/orm"
)

type Product struct {
	ID     uint
	Name   string
	Status string
	Price  int
}

type Review struct {
	ID        uint
	ProductID uint
	Product   Product
	Body      string
}

type Note struct {
	ID   uint
	Text string
}

func (Note) SkipQueryCache() bool { return true }

func (Review) CacheTTL() time.Duration { return time.Minute }

// Unmapped has no entity declaration
type Unmapped struct {
	ID uint
}

const modelsSource = `package models

//orm:entity
type Product struct{}

//orm:entity
type Review struct{}

//orm:entity
type Note struct{}
`

func newEntityManager(t *testing.T) (*orm.EntityManager, *cache.Memory) {
	t.Helper()
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(models, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(models, "models.go"), []byte(modelsSource), 0o644))

	c, err := cache.NewMemory("array", 1000, 0)
	require.NoError(t, err)

	cfg := orm.NewConfiguration()
	cfg.MetadataDriver = metadata.NewAnnotationDriver(annotation.NewReader(), []string{models})
	cfg.QueryCache = c
	cfg.SQLLogger = logger.Discard
	cfg.AddModels(Product{}, Review{}, Note{}, Unmapped{})

	em, err := orm.Create(context.Background(),
		map[string]string{"driver": "sqlite", "path": filepath.Join(dir, "shop.db")}, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { em.Close() })
	require.NoError(t, em.UpdateSchema(context.Background()))
	return em, c
}

func TestForUnmappedEntity(t *testing.T) {
	em, _ := newEntityManager(t)
	_, err := For[Unmapped](em)
	assert.True(t, orm.IsEntityNotMapped(err))
}

func TestReadsAreCacheFirst(t *testing.T) {
	em, c := newEntityManager(t)
	ctx := context.Background()

	repo, err := For[Product](em)
	require.NoError(t, err)
	require.NoError(t, repo.CreateBatch(ctx, []*Product{
		{Name: "Pen", Status: "active", Price: 2},
		{Name: "Ink", Status: "active", Price: 5},
		{Name: "Quill", Status: "retired", Price: 9},
	}))

	p, err := repo.FindByID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ink", p.Name)

	// change the row behind the repository's back; the cached copy is served
	require.NoError(t, em.DB().Model(&Product{}).Where("id = ?", 2).Update("name", "Changed").Error)
	p, err = repo.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Ink", p.Name)
	assert.Equal(t, uint64(1), c.GetMetrics().CacheHits)

	require.NoError(t, repo.InvalidateCache(ctx))
	p, err = repo.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Changed", p.Name)

	missing, err := repo.FindByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, missing)
	exists, err := repo.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.FindByID(ctx, nil)
	assert.Error(t, err)
}

func TestCriteriaQueries(t *testing.T) {
	em, _ := newEntityManager(t)
	ctx := context.Background()

	repo, err := For[Product](em)
	require.NoError(t, err)
	for _, p := range []*Product{
		{Name: "Pen", Status: "active", Price: 2},
		{Name: "Ink", Status: "active", Price: 5},
		{Name: "Quill", Status: "retired", Price: 9},
	} {
		require.NoError(t, repo.Create(ctx, p))
	}

	active, err := repo.FindWhere(ctx, db.NewCriteria().Where("status", db.Equal, "active").OrderBy("price", true))
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Ink", active[0].Name)

	cheap, err := repo.First(ctx, db.NewCriteria().Where("price", db.LessThan, 3))
	require.NoError(t, err)
	require.NotNil(t, cheap)
	assert.Equal(t, "Pen", cheap.Name)

	none, err := repo.First(ctx, db.NewCriteria().Where("price", db.GreaterThan, 100))
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := repo.Count(ctx, db.NewCriteria().Where("status", db.In, []string{"active", "retired"}))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = repo.FindWhere(ctx, db.NewCriteria().Where("price; DROP TABLE products", db.Equal, 1))
	assert.ErrorIs(t, err, db.ErrInvalidCriteria)
	_, err = repo.FindWhere(ctx, db.NewCriteria().Where("unknown", db.Equal, 1))
	assert.ErrorIs(t, err, db.ErrInvalidCriteria)
}

func TestWritesInvalidate(t *testing.T) {
	em, c := newEntityManager(t)
	ctx := context.Background()

	repo, err := For[Product](em)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, &Product{Name: "Pen", Status: "active"}))

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	count, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, repo.Create(ctx, &Product{Name: "Ink", Status: "active"}))
	all, err = repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	all[0].Status = "retired"
	require.NoError(t, repo.Update(ctx, &all[0]))
	retired, err := repo.FindWhere(ctx, db.NewCriteria().Where("status", db.Equal, "retired"))
	require.NoError(t, err)
	assert.Len(t, retired, 1)

	deleted, err := repo.Delete(ctx, all[0].ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, all[0].ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	count, err = repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	all[1].Name = "Blue Ink"
	require.NoError(t, repo.UpdateBatch(ctx, []*Product{&all[1], nil}))
	p, err := repo.FindByID(ctx, all[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Blue Ink", p.Name)

	require.NoError(t, repo.WarmCache(ctx))
	assert.Positive(t, c.Len())
}

func TestRelatedTablesAreInvalidated(t *testing.T) {
	em, _ := newEntityManager(t)
	ctx := context.Background()

	products, err := For[Product](em)
	require.NoError(t, err)
	reviews, err := For[Review](em)
	require.NoError(t, err)
	assert.Equal(t, []string{"reviews"}, products.relatedTables)
	assert.Equal(t, []string{"products"}, reviews.relatedTables)
	assert.Equal(t, time.Minute, reviews.ttl)

	pen := &Product{Name: "Pen"}
	require.NoError(t, products.Create(ctx, pen))
	require.NoError(t, reviews.Create(ctx, &Review{ProductID: pen.ID, Body: "great"}))

	withProduct := reviews.Preload("Product")
	list, err := withProduct.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Pen", list[0].Product.Name)

	pen.Name = "Fountain Pen"
	require.NoError(t, products.Update(ctx, pen))
	list, err = withProduct.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fountain Pen", list[0].Product.Name)
}

func TestUncacheableEntity(t *testing.T) {
	em, c := newEntityManager(t)
	ctx := context.Background()

	notes, err := For[Note](em)
	require.NoError(t, err)
	require.NoError(t, notes.Create(ctx, &Note{Text: "hi"}))
	_, err = notes.FindAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.Len())
	assert.NoError(t, notes.InvalidateCache(ctx))
	assert.NoError(t, notes.WarmCache(ctx))
}

func TestCacheKeys(t *testing.T) {
	em, _ := newEntityManager(t)
	repo, err := For[Product](em, WithTTL(time.Second), WithQueryTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Second, repo.ttl)
	assert.Equal(t, "shop", repo.dbName)

	assert.Equal(t, "ormresource:shop:products:find_all", repo.generateCacheKey("find_all", ""))
	assert.Equal(t, "ormresource:shop:products:find_by_id:7", repo.generateCacheKey("find_by_id", "7"))

	a := repo.generateCacheKeyFromCriteria("find_where", db.NewCriteria().Where("status", db.Equal, "active"))
	b := repo.generateCacheKeyFromCriteria("find_where", db.NewCriteria().Where("status", db.Equal, "retired"))
	assert.NotEqual(t, a, b)
	assert.Len(t, a, len("ormresource:shop:products:find_where:")+cacheKeyHashLength)

	preloaded := repo.Preload("Reviews").(*GenericRepository[Product])
	assert.Equal(t, "ormresource:shop:products:find_all:preload=Reviews", preloaded.generateCacheKey("find_all", ""))
	assert.Empty(t, repo.preloads)
}
