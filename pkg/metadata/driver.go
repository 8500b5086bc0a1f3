// Package metadata discovers entity definitions by reading annotated Go
// sources in the configured entity folders.
//
// An entity is a struct type whose doc comment carries the marker
//
//	//orm:entity
//	//orm:entity table=blog_posts
//
// Field annotations are recorded for the namespaces registered with the
// annotation package.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ammar0144/ormresource/pkg/annotation"
	"github.com/ammar0144/ormresource/pkg/cache"
)

// EntityMarker introduces an entity declaration in a doc comment
const EntityMarker = "orm:entity"

const (
	cacheKeyPrefix = "metadata"
	defaultWorkers = 4
)

// EntityDefinition describes one entity found in source
type EntityDefinition struct {
	Name       string            `msgpack:"name"`
	Package    string            `msgpack:"package"`
	SourceFile string            `msgpack:"source_file"`
	Table      string            `msgpack:"table,omitempty"`
	Fields     []FieldDefinition `msgpack:"fields"`
}

// FieldDefinition describes one struct field of an entity
type FieldDefinition struct {
	Name        string            `msgpack:"name"`
	Type        string            `msgpack:"type"`
	Tag         string            `msgpack:"tag,omitempty"`
	Annotations map[string]string `msgpack:"annotations,omitempty"`
}

// Field returns the named field
func (d *EntityDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Annotated returns the fields carrying an annotation of namespace
func (d *EntityDefinition) Annotated(namespace string) []FieldDefinition {
	var out []FieldDefinition
	for _, f := range d.Fields {
		if _, ok := f.Annotations[namespace]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Driver is an annotation metadata driver scoped to a list of folders
type Driver struct {
	folders []string
	reader  *annotation.Reader
	cache   cache.Cache
	logger  *zap.Logger
	workers int

	mu       sync.Mutex
	entities map[string]*EntityDefinition
}

// Option configures a Driver
type Option func(*Driver)

// WithCache caches parsed files in c, keyed by path, size and modification time
func WithCache(c cache.Cache) Option {
	return func(d *Driver) { d.cache = c }
}

// WithLogger sets the driver logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithWorkers bounds the number of folders scanned concurrently
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// NewAnnotationDriver creates a driver reading annotations from the given folders
func NewAnnotationDriver(reader *annotation.Reader, folders []string, opts ...Option) *Driver {
	d := &Driver{
		folders: append([]string(nil), folders...),
		reader:  reader,
		logger:  zap.NewNop(),
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Paths returns the folders the driver reads
func (d *Driver) Paths() []string {
	return append([]string(nil), d.folders...)
}

// Cache returns the cache backing the driver, or nil
func (d *Driver) Cache() cache.Cache {
	return d.cache
}

// Load scans every folder once and returns the entity definitions by name.
// Later calls return the same result until Reset is called.
func (d *Driver) Load(ctx context.Context) (map[string]*EntityDefinition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.entities != nil {
		return d.entities, nil
	}

	results := make([][]EntityDefinition, len(d.folders))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.workers)

	for i, folder := range d.folders {
		i, folder := i, folder
		eg.Go(func() error {
			defs, err := d.scanFolder(ctx, folder)
			if err != nil {
				return err
			}
			results[i] = defs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	entities := make(map[string]*EntityDefinition)
	for _, defs := range results {
		for i := range defs {
			def := defs[i]
			if prev, dup := entities[def.Name]; dup {
				return nil, fmt.Errorf("%w: %s declared in %s and %s", ErrDuplicateEntity, def.Name, prev.SourceFile, def.SourceFile)
			}
			entities[def.Name] = &def
		}
	}

	d.logger.Debug("entity metadata loaded",
		zap.Strings("folders", d.folders),
		zap.Int("entities", len(entities)))

	d.entities = entities
	return entities, nil
}

// Reset forgets loaded definitions so the next Load rescans the folders
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entities = nil
}

// AllClassNames returns the sorted names of every entity
func (d *Driver) AllClassNames(ctx context.Context) ([]string, error) {
	entities, err := d.Load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Definition returns the entity declared under name
func (d *Driver) Definition(ctx context.Context, name string) (*EntityDefinition, error) {
	entities, err := d.Load(ctx)
	if err != nil {
		return nil, err
	}
	def, ok := entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	return def, nil
}

// scanFolder walks folder and parses every non-test Go file.
// A missing folder yields no entities.
func (d *Driver) scanFolder(ctx context.Context, folder string) ([]EntityDefinition, error) {
	var defs []EntityDefinition
	err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == folder && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !isSourceFile(path) {
			return nil
		}

		fileDefs, err := d.readFile(ctx, path)
		if err != nil {
			return err
		}
		defs = append(defs, fileDefs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", folder, err)
	}
	return defs, nil
}

func (d *Driver) readFile(ctx context.Context, path string) ([]EntityDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var key string
	if d.cache != nil {
		key = fileCacheKey(path, info)
		var cached []EntityDefinition
		if err := cache.GetValue(ctx, d.cache, key, &cached); err == nil {
			return cached, nil
		}
	}

	defs, err := ParseFile(d.reader, path)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := cache.SetValue(ctx, d.cache, key, defs, 0); err != nil {
			d.logger.Warn("failed to cache entity metadata", zap.String("file", path), zap.Error(err))
		}
	}
	return defs, nil
}

// ParseFile extracts entity definitions from one Go source file
func ParseFile(reader *annotation.Reader, path string) ([]EntityDefinition, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var defs []EntityDefinition
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			doc := ts.Doc
			if doc == nil && len(gen.Specs) == 1 {
				doc = gen.Doc
			}
			args, ok := entityMarker(doc)
			if !ok {
				continue
			}

			defs = append(defs, EntityDefinition{
				Name:       ts.Name.Name,
				Package:    file.Name.Name,
				SourceFile: path,
				Table:      args["table"],
				Fields:     structFields(reader, st),
			})
		}
	}
	return defs, nil
}

// entityMarker finds the marker line and parses its key=value arguments
func entityMarker(doc *ast.CommentGroup) (map[string]string, bool) {
	if doc == nil {
		return nil, false
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		rest, ok := strings.CutPrefix(text, EntityMarker)
		if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
			continue
		}
		args := make(map[string]string)
		for _, field := range strings.Fields(rest) {
			k, v, _ := strings.Cut(field, "=")
			args[strings.ToLower(k)] = v
		}
		return args, true
	}
	return nil, false
}

func structFields(reader *annotation.Reader, st *ast.StructType) []FieldDefinition {
	var fields []FieldDefinition
	for _, field := range st.Fields.List {
		var tag string
		if field.Tag != nil {
			if unquoted, err := strconv.Unquote(field.Tag.Value); err == nil {
				tag = unquoted
			}
		}
		annotations := reader.Read(reflect.StructTag(tag))
		typ := types.ExprString(field.Type)

		names := field.Names
		if len(names) == 0 {
			// embedded field, named after its type
			name := strings.TrimPrefix(typ, "*")
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			names = []*ast.Ident{ast.NewIdent(name)}
		}
		for _, name := range names {
			if !name.IsExported() {
				continue
			}
			fields = append(fields, FieldDefinition{
				Name:        name.Name,
				Type:        typ,
				Tag:         tag,
				Annotations: annotations,
			})
		}
	}
	return fields
}

func isSourceFile(path string) bool {
	return strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go")
}

// fileCacheKey changes whenever the file or the registered namespaces change
func fileCacheKey(path string, info fs.FileInfo) string {
	raw := fmt.Sprintf("%s|%d|%d|%s", path, info.Size(), info.ModTime().UnixNano(),
		strings.Join(annotation.Namespaces(), ","))
	return fmt.Sprintf("%s:%x", cacheKeyPrefix, xxhash.Sum64String(raw))
}
