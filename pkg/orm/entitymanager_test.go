package orm

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ammar0144/ormresource/pkg/annotation"
	"github.com/ammar0144/ormresource/pkg/cache"
	"github.com/ammar0144/ormresource/pkg/db"
	"github.com/ammar0144/ormresource/pkg/metadata"
)

type Article struct {
	ID     uint   `gorm:"primaryKey"`
	Title  string `gorm:"size:255"`
	Status string `gorm:"size:32"`
	Slug   string `gedmo:"slug;fields:Title"`
}

type Author struct {
	ID   uint
	Name string
}

// Draft is never declared as an entity
type Draft struct {
	ID uint
}

const modelsSource = `package models

//orm:entity table=news_articles
type Article struct {
	ID     uint
	Title  string
	Status string
	Slug   string ` + "`gedmo:\"slug;fields:Title\"`" + `
}

//orm:entity
type Author struct {
	ID   uint
	Name string
}
`

// countingListener records how often it was installed and how many creates it saw
type countingListener struct {
	installed int
	creates   int
}

func (l *countingListener) Name() string { return "test:counting" }

func (l *countingListener) SubscribedEvents() []string { return []string{PrePersist} }

func (l *countingListener) Initialize(db *gorm.DB) error {
	l.installed++
	return db.Callback().Create().Before("gorm:create").Register("test:counting", func(*gorm.DB) {
		l.creates++
	})
}

type fixture struct {
	dir    string
	config *Configuration
	params map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(models, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(models, "models.go"), []byte(modelsSource), 0o644))

	c, err := cache.NewMemory("array", 100, 0)
	require.NoError(t, err)

	cfg := NewConfiguration()
	cfg.MetadataDriver = metadata.NewAnnotationDriver(annotation.NewReader(), []string{models}, metadata.WithCache(c))
	cfg.MetadataCache = c
	cfg.QueryCache = c
	cfg.ProxyDir = filepath.Join(dir, "proxies")
	cfg.ProxyNamespace = "App\\Proxies"
	cfg.SQLLogger = logger.Discard
	cfg.AddModels(&Article{}, Author{}, []Draft{})

	return &fixture{
		dir:    dir,
		config: cfg,
		params: map[string]string{"driver": "pdo_sqlite", "path": filepath.Join(dir, "app.db")},
	}
}

func TestCreateMapsDeclaredModels(t *testing.T) {
	f := newFixture(t)
	listener := &countingListener{}
	events := NewEventManager()
	events.AddEventSubscriber(listener)

	em, err := Create(context.Background(), f.params, f.config, events)
	require.NoError(t, err)
	defer em.Close()

	assert.Equal(t, 1, listener.installed)
	assert.Same(t, events, em.EventManager())
	assert.NotEmpty(t, em.ID())
	require.NoError(t, em.Ping(context.Background()))

	metas := em.AllMetadata()
	require.Len(t, metas, 2)
	assert.Equal(t, "Article", metas[0].Name)
	assert.Equal(t, "Author", metas[1].Name)

	article, err := em.MetadataFor(&Article{})
	require.NoError(t, err)
	assert.Equal(t, "news_articles", article.Table)
	assert.Equal(t, []string{"id"}, article.PrimaryKey)
	assert.True(t, article.HasAnnotation("Slug", annotation.Gedmo))
	assert.False(t, article.HasAnnotation("Title", annotation.Gedmo))
	col, ok := article.Column("Status")
	assert.True(t, ok)
	assert.Equal(t, "status", col)

	author, err := em.MetadataByName("Author")
	require.NoError(t, err)
	assert.Equal(t, "authors", author.Table)

	_, err = em.MetadataFor(Draft{})
	assert.True(t, IsEntityNotMapped(err))
	_, err = em.MetadataByName("Draft")
	assert.ErrorIs(t, err, ErrEntityNotMapped)
	_, err = em.MetadataFor(nil)
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestCreateRequiresDriver(t *testing.T) {
	_, err := Create(context.Background(), nil, NewConfiguration(), nil)
	assert.ErrorIs(t, err, ErrNoMetadataDriver)

	_, err = Create(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestCreateRejectsUnsupportedDriver(t *testing.T) {
	f := newFixture(t)
	_, err := Create(context.Background(), map[string]string{"driver": "pdo_pgsql"}, f.config, nil)
	assert.True(t, db.IsUnsupportedDriver(err))
}

func TestRepositoryQueries(t *testing.T) {
	f := newFixture(t)
	conn, err := sql.Open("sqlite3", filepath.Join(f.dir, "shared.db"))
	require.NoError(t, err)
	defer conn.Close()

	em, err := Create(context.Background(), f.params, f.config, nil, WithConn(conn))
	require.NoError(t, err)
	require.NoError(t, em.UpdateSchema(context.Background()))

	ctx := context.Background()
	require.NoError(t, em.WithContext(ctx).Create(&[]Article{
		{Title: "First", Status: "published"},
		{Title: "Second", Status: "draft"},
		{Title: "Third", Status: "published"},
	}).Error)

	repo, err := em.GetRepository(Article{})
	require.NoError(t, err)
	assert.Equal(t, "Article", repo.ClassName())
	assert.Same(t, em, repo.EntityManager())

	var a Article
	found, err := repo.Find(ctx, 2, &a)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Second", a.Title)

	found, err = repo.Find(ctx, 99, &a)
	require.NoError(t, err)
	assert.False(t, found)

	var all []Article
	require.NoError(t, repo.FindAll(ctx, &all))
	assert.Len(t, all, 3)

	var published []*Article
	criteria := db.NewCriteria().Where("status", db.Equal, "published").OrderBy("title", true)
	require.NoError(t, repo.FindBy(ctx, criteria, &published))
	require.Len(t, published, 2)
	assert.Equal(t, "Third", published[0].Title)

	found, err = repo.FindOneBy(ctx, db.NewCriteria().Where("news_articles.title", db.Equal, "First"), &a)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint(1), a.ID)

	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = repo.Count(ctx, db.NewCriteria().Where("status", db.In, []string{"draft"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	t.Run("unknown column", func(t *testing.T) {
		err := repo.FindBy(ctx, db.NewCriteria().Where("missing", db.Equal, 1), &all)
		assert.ErrorIs(t, err, db.ErrInvalidCriteria)
		err = repo.FindBy(ctx, db.NewCriteria().Where("authors.name", db.Equal, 1), &all)
		assert.ErrorIs(t, err, db.ErrInvalidCriteria)
	})

	t.Run("wrong destination", func(t *testing.T) {
		var authors []Author
		assert.ErrorIs(t, repo.FindAll(ctx, &authors), ErrInvalidEntity)
		assert.ErrorIs(t, repo.FindAll(ctx, all), ErrInvalidEntity)
		_, err := repo.Find(ctx, 1, &all)
		assert.ErrorIs(t, err, ErrInvalidEntity)
	})

	_, err = em.GetRepository(&Draft{})
	assert.True(t, IsEntityNotMapped(err))

	// a borrowed pool survives Close
	require.NoError(t, em.Close())
	require.NoError(t, em.Close())
	assert.NoError(t, conn.Ping())
}

func TestCreateGeneratesProxies(t *testing.T) {
	f := newFixture(t)
	f.config.AutoGenerateProxyClasses = true

	em, err := Create(context.Background(), f.params, f.config, nil)
	require.NoError(t, err)
	defer em.Close()

	for _, name := range []string{"article_proxy.go", "author_proxy.go"} {
		_, err := os.Stat(filepath.Join(f.config.ProxyDir, name))
		assert.NoError(t, err, name)
	}

	// unchanged sources are not rewritten
	written, err := em.GenerateProxies()
	require.NoError(t, err)
	assert.Empty(t, written)
}

func TestReloadFollowsSources(t *testing.T) {
	f := newFixture(t)
	f.config.AutoGenerateProxyClasses = true
	ctx := context.Background()

	em, err := Create(ctx, f.params, f.config, nil)
	require.NoError(t, err)
	defer em.Close()
	require.Len(t, em.AllMetadata(), 2)

	const authorOnly = `package models

//orm:entity
type Author struct {
	ID   uint
	Name string
}
`
	articleProxy := filepath.Join(f.config.ProxyDir, "article_proxy.go")
	require.NoError(t, os.Remove(articleProxy))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "models", "models.go"), []byte(authorOnly), 0o644))

	require.NoError(t, em.ClearCaches(ctx))
	require.NoError(t, em.Reload(ctx))

	metas := em.AllMetadata()
	require.Len(t, metas, 1)
	assert.Equal(t, "Author", metas[0].Name)
	_, err = em.GetRepository(Article{})
	assert.True(t, IsEntityNotMapped(err))

	written, err := em.GenerateProxies()
	require.NoError(t, err)
	assert.Empty(t, written)
	assert.NoFileExists(t, articleProxy)

	// declaring it again maps it again
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "models", "models.go"), []byte(modelsSource), 0o644))
	require.NoError(t, em.Reload(ctx))
	_, err = em.GetRepository(&Article{})
	assert.NoError(t, err)
	written, err = em.GenerateProxies()
	require.NoError(t, err)
	assert.Equal(t, []string{articleProxy}, written)
}

func TestClearCaches(t *testing.T) {
	f := newFixture(t)
	em, err := Create(context.Background(), f.params, f.config, nil)
	require.NoError(t, err)
	defer em.Close()

	c := f.config.MetadataCache.(*cache.Memory)
	assert.Equal(t, 1, c.Len())
	require.NoError(t, em.ClearCaches(context.Background()))
	assert.Equal(t, 0, c.Len())
}

func TestEventManagerListenersFor(t *testing.T) {
	events := NewEventManager()
	assert.False(t, events.HasListeners(PrePersist))

	l := &countingListener{}
	events.AddEventSubscriber(l)
	assert.Equal(t, 1, events.Count())
	assert.True(t, events.HasListeners(PrePersist))
	assert.False(t, events.HasListeners(OnFlush))
	assert.Equal(t, []Listener{l}, events.ListenersFor(PrePersist))
}
