package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/ormresource/pkg/annotation"
	"github.com/ammar0144/ormresource/pkg/cache"
)

const postSource = `package models

import "time"

// Post is a blog post
//
//orm:entity table=blog_posts
type Post struct {
	ID        uint      ` + "`gorm:\"primaryKey\"`" + `
	Title     string    ` + "`gorm:\"size:255\"`" + `
	Slug      string    ` + "`gedmo:\"slug;fields:Title\"`" + `
	CreatedAt time.Time ` + "`gedmo:\"timestampable;on:create\"`" + `
	internal  string
}

//orm:entity
type Category struct {
	ID   uint
	Path string ` + "`gedmo:\"treePath\" ignored:\"x\"`" + `
}

// Helper is not an entity
type Helper struct {
	Name string
}

//orm:entityish
type NotEntity struct{}
`

func init() {
	annotation.RegisterNamespace(annotation.Gedmo, "/vendor/gedmo/doctrine-extensions/lib")
}

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	path := writeSource(t, t.TempDir(), "post.go", postSource)

	defs, err := ParseFile(annotation.NewReader(), path)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	post := defs[0]
	assert.Equal(t, "Post", post.Name)
	assert.Equal(t, "models", post.Package)
	assert.Equal(t, "blog_posts", post.Table)
	assert.Equal(t, path, post.SourceFile)
	require.Len(t, post.Fields, 4, "unexported fields are skipped")

	created, ok := post.Field("CreatedAt")
	require.True(t, ok)
	assert.Equal(t, "time.Time", created.Type)
	assert.Equal(t, "timestampable;on:create", created.Annotations[annotation.Gedmo])

	id, _ := post.Field("ID")
	assert.Empty(t, id.Annotations, "gorm is not an annotation namespace")
	assert.Equal(t, `gorm:"primaryKey"`, id.Tag)

	assert.Len(t, post.Annotated(annotation.Gedmo), 2)

	category := defs[1]
	assert.Equal(t, "Category", category.Name)
	assert.Empty(t, category.Table)
	pathField, _ := category.Field("Path")
	assert.NotContains(t, pathField.Annotations, "ignored")
}

func TestParseFileInvalid(t *testing.T) {
	path := writeSource(t, t.TempDir(), "broken.go", "package models\n type {")
	_, err := ParseFile(annotation.NewReader(), path)
	assert.ErrorIs(t, err, ErrParse)
}

func TestDriverLoadsAllFolders(t *testing.T) {
	root := t.TempDir()
	lib := filepath.Join(root, "library", "Model")
	mod := filepath.Join(root, "modules", "blog", "models")
	writeSource(t, lib, "post.go", postSource)
	writeSource(t, mod, "tag.go", "package models\n\n//orm:entity\ntype Tag struct{ ID uint }\n")
	writeSource(t, mod, "tag_test.go", "package models\n\n//orm:entity\ntype Fixture struct{ ID uint }\n")

	d := NewAnnotationDriver(annotation.NewReader(),
		[]string{lib, mod, filepath.Join(root, "missing")}, WithWorkers(2))

	names, err := d.AllClassNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Category", "Post", "Tag"}, names)

	def, err := d.Definition(context.Background(), "Tag")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mod, "tag.go"), def.SourceFile)

	_, err = d.Definition(context.Background(), "Fixture")
	assert.True(t, IsEntityNotFound(err))
}

func TestDriverDuplicateEntity(t *testing.T) {
	root := t.TempDir()
	writeSource(t, filepath.Join(root, "a"), "tag.go", "package a\n\n//orm:entity\ntype Tag struct{}\n")
	writeSource(t, filepath.Join(root, "b"), "tag.go", "package b\n\n//orm:entity\ntype Tag struct{}\n")

	d := NewAnnotationDriver(annotation.NewReader(),
		[]string{filepath.Join(root, "a"), filepath.Join(root, "b")})
	_, err := d.Load(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateEntity)
}

func TestCachedDriverReusesParsedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "post.go", postSource)

	c, err := cache.NewMemory("array", 100, 0)
	require.NoError(t, err)

	d := NewAnnotationDriver(annotation.NewReader(), []string{dir}, WithCache(c))
	_, err = d.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Same(t, c, d.Cache())

	// a second driver over the same cache must not need the parser
	d2 := NewAnnotationDriver(annotation.NewReader(), []string{dir}, WithCache(c))
	names, err := d2.AllClassNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Category", "Post"}, names)
	assert.Equal(t, uint64(1), c.GetMetrics().CacheHits)

	// editing the file changes the key
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("package models\n\n//orm:entity\ntype Only struct{}\n"), 0o644))
	require.NoError(t, os.Chtimes(path, later, later))

	d2.Reset()
	names, err = d2.AllClassNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Only"}, names)
}
