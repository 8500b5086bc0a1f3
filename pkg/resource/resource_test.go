package resource

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/ormresource/pkg/annotation"
	"github.com/ammar0144/ormresource/pkg/behavior/sluggable"
	"github.com/ammar0144/ormresource/pkg/behavior/timestampable"
	"github.com/ammar0144/ormresource/pkg/behavior/tree"
	"github.com/ammar0144/ormresource/pkg/cache"
	"github.com/ammar0144/ormresource/pkg/config"
	"github.com/ammar0144/ormresource/pkg/orm"
	"github.com/ammar0144/ormresource/pkg/registry"
)

type Post struct {
	ID        uint
	Title     string
	Slug      string `gedmo:"slug;fields:Title"`
	CreatedAt int64  `gedmo:"timestampable;on:create"`
}

type Tag struct {
	ID   uint
	Name string
}

const libraryModels = `package model

//orm:entity
type Tag struct {
	ID   uint
	Name string
}
`

const moduleModels = `package models

//orm:entity table=blog_posts
type Post struct {
	ID        uint
	Title     string
	Slug      string
	CreatedAt int64
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newRoot lays out a project root with a library model and, when withModule
// is set, a blog module model folder
func newRoot(t *testing.T, withModule bool) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ModelDir, "tag.go"), libraryModels)
	if withModule {
		writeFile(t, filepath.Join(root, "app", "modules", "blog", "models", "post.go"), moduleModels)
	}
	return root
}

func testConfig(root string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.CacheImplementation = "array"
	cfg.Connection = config.ConnectionConfig{
		Driver: "pdo_sqlite",
		Path:   filepath.Join(root, "test.db"),
	}
	return cfg
}

func build(t *testing.T, cfg *config.Config, root, module string, options map[string]interface{}, opts ...Option) (*Resource, error) {
	t.Helper()
	opts = append([]Option{
		WithRegistry(registry.New()),
		WithModels(Post{}, Tag{}),
	}, opts...)
	r, err := New(cfg, root, module, options, opts...)
	if err == nil {
		t.Cleanup(func() { r.Close() })
	}
	return r, err
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		want    Options
		wantErr bool
	}{
		{name: "nil uses defaults", raw: nil, want: Options{}},
		{name: "empty uses defaults", raw: map[string]interface{}{}, want: Options{}},
		{
			name: "supplied keys overwrite defaults",
			raw:  map[string]interface{}{"timestampable": true, "tree": true},
			want: Options{Timestampable: true, Tree: true},
		},
		{
			name: "all keys",
			raw:  map[string]interface{}{"timestampable": true, "sluggable": true, "tree": false, "profile": true},
			want: Options{Timestampable: true, Sluggable: true, Profile: true},
		},
		{name: "unknown key", raw: map[string]interface{}{"versionable": true}, wantErr: true},
		{
			name:    "unknown key among valid ones",
			raw:     map[string]interface{}{"timestampable": true, "softdeleteable": false},
			wantErr: true,
		},
		{name: "string value", raw: map[string]interface{}{"sluggable": "true"}, wantErr: true},
		{name: "int value", raw: map[string]interface{}{"profile": 1}, wantErr: true},
		{name: "nil value", raw: map[string]interface{}{"tree": nil}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOptions(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				var optErr *InvalidOptionError
				assert.ErrorAs(t, err, &optErr)
				assert.Equal(t, DefaultOptions(), got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAppliesOptions(t *testing.T) {
	root := newRoot(t, false)
	r, err := build(t, testConfig(root), root, "blog", map[string]interface{}{"sluggable": true, "profile": false})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{
		OptionTimestampable: false,
		OptionSluggable:     true,
		OptionTree:          false,
		OptionProfile:       false,
	}, r.Options().Map())
}

func TestNewRejectsInvalidArguments(t *testing.T) {
	root := newRoot(t, false)
	cfg := testConfig(root)

	tests := []struct {
		name    string
		cfg     *config.Config
		root    string
		module  string
		options map[string]interface{}
	}{
		{name: "nil config", cfg: nil, root: root, module: "blog"},
		{name: "empty root", cfg: cfg, root: "", module: "blog"},
		{name: "empty module", cfg: cfg, root: root, module: ""},
		{name: "unknown option", cfg: cfg, root: root, module: "blog", options: map[string]interface{}{"loggable": true}},
		{name: "non bool option", cfg: cfg, root: root, module: "blog", options: map[string]interface{}{"tree": "yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New()
			_, err := New(tt.cfg, tt.root, tt.module, tt.options, WithRegistry(reg))
			assert.True(t, IsInvalidArgument(err), "got %v", err)
			assert.False(t, reg.IsRegistered(RegistryKey))
		})
	}
}

func TestModulePath(t *testing.T) {
	tests := []struct {
		module string
		appDir string
		suffix string
	}{
		{module: "default", suffix: "/app/modules/default"},
		{module: "default", appDir: "application", suffix: "/application/modules/default"},
		{module: "foo", appDir: "app", suffix: "/app/modules/foo"},
	}

	for _, tt := range tests {
		t.Run(tt.suffix, func(t *testing.T) {
			root := newRoot(t, false)
			var opts []Option
			if tt.appDir != "" {
				opts = append(opts, WithAppDir(tt.appDir))
			}
			r, err := build(t, testConfig(root), root, tt.module, nil, opts...)
			require.NoError(t, err)
			assert.Equal(t, root+tt.suffix, r.ModulePath())
		})
	}
}

func TestListenersFollowOptions(t *testing.T) {
	root := newRoot(t, false)
	cfg := testConfig(root)

	r, err := build(t, cfg, root, "blog", map[string]interface{}{})
	require.NoError(t, err)
	assert.Zero(t, r.EventManager().Count())

	r, err = build(t, cfg, root, "blog", map[string]interface{}{"timestampable": true})
	require.NoError(t, err)
	listeners := r.EventManager().Listeners()
	require.Len(t, listeners, 1)
	assert.IsType(t, &timestampable.Listener{}, listeners[0])

	r, err = build(t, cfg, root, "blog", map[string]interface{}{"tree": true, "sluggable": true, "timestampable": true})
	require.NoError(t, err)
	listeners = r.EventManager().Listeners()
	require.Len(t, listeners, 3)
	assert.IsType(t, &timestampable.Listener{}, listeners[0])
	assert.IsType(t, &sluggable.Listener{}, listeners[1])
	assert.IsType(t, &tree.Listener{}, listeners[2])
}

func TestEntityFolders(t *testing.T) {
	t.Run("module folder missing", func(t *testing.T) {
		root := newRoot(t, false)
		r, err := build(t, testConfig(root), root, "blog", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(root, ModelDir)}, r.EntityFolders())
	})

	t.Run("module folder present", func(t *testing.T) {
		root := newRoot(t, true)
		r, err := build(t, testConfig(root), root, "blog", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(root, ModelDir),
			filepath.Join(root, "app", "modules", "blog", "models"),
		}, r.EntityFolders())
	})

	t.Run("model folder is a file", func(t *testing.T) {
		root := newRoot(t, false)
		writeFile(t, filepath.Join(root, "app", "modules", "blog", "models"), "not a folder")
		r, err := build(t, testConfig(root), root, "blog", nil)
		require.NoError(t, err)
		assert.Len(t, r.EntityFolders(), 1)
	})

	t.Run("module folder is a file", func(t *testing.T) {
		root := newRoot(t, false)
		writeFile(t, filepath.Join(root, "app", "modules", "blog"), "not a folder")
		r, err := build(t, testConfig(root), root, "blog", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(root, ModelDir)}, r.EntityFolders())
	})

	t.Run("no model folder uses the module folder", func(t *testing.T) {
		root := newRoot(t, true)
		cfg := testConfig(root)
		cfg.ModelFolder = ""
		r, err := build(t, cfg, root, "blog", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(root, ModelDir),
			filepath.Join(root, "app", "modules", "blog"),
		}, r.EntityFolders())

		r, err = build(t, cfg, root, "shop", nil)
		require.NoError(t, err)
		assert.Len(t, r.EntityFolders(), 1)
	})

	t.Run("unreadable module path", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("path length limits differ on windows")
		}
		root := newRoot(t, false)
		reg := registry.New()
		_, err := build(t, testConfig(root), root, strings.Repeat("m", 300), nil, WithRegistry(reg))
		assert.ErrorIs(t, err, ErrFilesystem)
		assert.True(t, IsFilesystem(err))
		assert.False(t, reg.IsRegistered(RegistryKey))
	})
}

func TestProxyDirIsFixed(t *testing.T) {
	root := newRoot(t, true)
	cfg := testConfig(root)
	cfg.Proxy.Folder = "module/proxies"
	cfg.AutoGenerateProxyClasses = true

	r, err := build(t, cfg, root, "blog", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ProxyDir), r.ProxyDir())
	assert.Equal(t, r.ProxyDir(), r.Configuration().ProxyDir)
	assert.Equal(t, "proxies", r.Configuration().ProxyNamespace)
	assert.FileExists(t, filepath.Join(root, ProxyDir, "post_proxy.go"))
	assert.FileExists(t, filepath.Join(root, ProxyDir, "tag_proxy.go"))
}

func TestRepositoryLookup(t *testing.T) {
	root := newRoot(t, true)
	r, err := build(t, testConfig(root), root, "blog", nil)
	require.NoError(t, err)

	em, err := r.EntityManager()
	require.NoError(t, err)

	repo, err := em.GetRepository(Post{})
	require.NoError(t, err)
	assert.IsType(t, &orm.EntityRepository{}, repo)
	assert.Equal(t, "Post", repo.ClassName())
	assert.Equal(t, "blog_posts", repo.Metadata().Table)

	_, err = em.GetRepository(Tag{})
	require.NoError(t, err)
}

func TestModuleEntitiesNeedModuleFolder(t *testing.T) {
	root := newRoot(t, false)
	r, err := build(t, testConfig(root), root, "blog", nil)
	require.NoError(t, err)

	em, err := r.EntityManager()
	require.NoError(t, err)
	_, err = em.GetRepository(Post{})
	assert.True(t, orm.IsEntityNotMapped(err))
}

func TestUnknownCacheImplementation(t *testing.T) {
	root := newRoot(t, false)
	cfg := testConfig(root)
	cfg.CacheImplementation = "apc"

	reg := registry.New()
	_, err := New(cfg, root, "blog", nil, WithRegistry(reg))
	assert.True(t, IsClassNotFound(err))
	assert.True(t, cache.IsUnknownImplementation(err))
	assert.False(t, reg.IsRegistered(RegistryKey))
}

func TestFailedConnectionIsTerminal(t *testing.T) {
	root := newRoot(t, false)
	cfg := testConfig(root)
	cfg.Connection.Path = ""

	reg := registry.New()
	_, err := New(cfg, root, "blog", nil, WithRegistry(reg))
	assert.Error(t, err)
	assert.False(t, reg.IsRegistered(RegistryKey))
}

func TestPublishesEntityManager(t *testing.T) {
	root := newRoot(t, false)
	reg := registry.New()
	r, err := build(t, testConfig(root), root, "blog", nil, WithRegistry(reg))
	require.NoError(t, err)

	em, err := r.EntityManager()
	require.NoError(t, err)
	published, err := registry.Lookup[*orm.EntityManager](reg, RegistryKey)
	require.NoError(t, err)
	assert.Same(t, em, published)
}

func TestConfigurationWiring(t *testing.T) {
	root := newRoot(t, false)
	cfg := testConfig(root)
	cfg.Cache.DefaultTTL = 5 * time.Minute

	r, err := build(t, cfg, root, "blog", nil)
	require.NoError(t, err)

	ormCfg := r.Configuration()
	assert.Same(t, ormCfg.MetadataCache, ormCfg.QueryCache)
	assert.Equal(t, "array", r.Cache().Name())
	assert.Equal(t, 5*time.Minute, ormCfg.QueryCacheTTL)
	assert.Equal(t, r.EntityFolders(), ormCfg.MetadataDriver.Paths())
	assert.Nil(t, ormCfg.SQLLogger)

	path, ok := annotation.NamespacePath(annotation.Gedmo)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, ExtensionsDir), path)
}

func TestProfileEchoesStatements(t *testing.T) {
	root := newRoot(t, false)
	var out bytes.Buffer
	r, err := build(t, testConfig(root), root, "blog", map[string]interface{}{"profile": true}, WithEchoWriter(&out))
	require.NoError(t, err)
	require.NotNil(t, r.Configuration().SQLLogger)

	em, err := r.EntityManager()
	require.NoError(t, err)
	require.NoError(t, em.DB().Exec("SELECT 42").Error)
	assert.Contains(t, out.String(), "SELECT 42")
}

func TestListenersReachEntities(t *testing.T) {
	root := newRoot(t, true)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r, err := build(t, testConfig(root), root, "blog",
		map[string]interface{}{"timestampable": true, "sluggable": true},
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	em, err := r.EntityManager()
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, em.UpdateSchema(ctx))

	post := Post{Title: "Hello Go World"}
	require.NoError(t, em.WithContext(ctx).Create(&post).Error)
	assert.Equal(t, "hello-go-world", post.Slug)
	assert.Equal(t, now.Unix(), post.CreatedAt)

	var stored Post
	require.NoError(t, em.WithContext(ctx).Table("blog_posts").First(&stored, post.ID).Error)
	assert.Equal(t, "hello-go-world", stored.Slug)
}

func TestEntityManagerUninitialized(t *testing.T) {
	var r *Resource
	_, err := r.EntityManager()
	assert.ErrorIs(t, err, ErrUninitialized)

	_, err = (&Resource{}).EntityManager()
	assert.ErrorIs(t, err, ErrUninitialized)
	assert.ErrorIs(t, (&Resource{}).Close(), ErrUninitialized)
}
