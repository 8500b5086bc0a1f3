// Package sluggable builds URL slugs from other fields of an entity.
//
//	Title string
//	Slug  string `gedmo:"slug;fields:Title;separator:-;style:lower;unique;updatable"`
//
// unique and updatable default to true; set them to false to disable.
// Unique slugs get a numeric suffix ("hello-world-1") when taken.
package sluggable

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/ammar0144/ormresource/pkg/behavior"
	"github.com/ammar0144/ormresource/pkg/orm"
)

// Name identifies the listener among GORM plugins
const Name = "gedmo:sluggable"

// Annotation is the gedmo setting that marks a slug field
const Annotation = "slug"

// Listener maintains slug fields
type Listener struct{}

// New creates the listener
func New() *Listener {
	return &Listener{}
}

// Name implements gorm.Plugin
func (l *Listener) Name() string {
	return Name
}

// SubscribedEvents implements orm.Listener
func (l *Listener) SubscribedEvents() []string {
	return []string{orm.PrePersist, orm.PreUpdate}
}

// Initialize implements gorm.Plugin
func (l *Listener) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register(Name+":create", l.beforeCreate); err != nil {
		return err
	}
	return db.Callback().Update().Before("gorm:update").Register(Name+":update", l.beforeUpdate)
}

type slugField struct {
	behavior.AnnotatedField
	sources   []*schema.Field
	separator string
	style     string
	prefix    string
	suffix    string
	unique    bool
	updatable bool
}

func slugFields(sch *schema.Schema) ([]slugField, error) {
	var out []slugField
	for _, af := range behavior.Fields(sch, Annotation) {
		sf := slugField{
			AnnotatedField: af,
			separator:      af.Settings.Get("separator"),
			style:          strings.ToLower(af.Settings.Get("style")),
			prefix:         af.Settings.Get("prefix"),
			suffix:         af.Settings.Get("suffix"),
			unique:         flag(af.Settings.Get("unique"), true),
			updatable:      flag(af.Settings.Get("updatable"), true),
		}
		if sf.separator == "" {
			sf.separator = DefaultSeparator
		}
		names := af.Settings.List("fields")
		if len(names) == 0 {
			return nil, fmt.Errorf("sluggable: %s.%s lists no source fields", sch.Name, af.Field.Name)
		}
		for _, name := range names {
			f := sch.LookUpField(name)
			if f == nil {
				return nil, fmt.Errorf("sluggable: %s has no field %q", sch.Name, name)
			}
			sf.sources = append(sf.sources, f)
		}
		out = append(out, sf)
	}
	return out, nil
}

func flag(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return def
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}

func (sf slugField) build(text string) string {
	slug := Slugify(text, sf.separator, sf.style)
	if slug == "" {
		return ""
	}
	return sf.prefix + slug + sf.suffix
}

func (l *Listener) beforeCreate(db *gorm.DB) {
	if !behavior.Applicable(db) {
		return
	}
	fields, err := slugFields(db.Statement.Schema)
	if err != nil {
		db.AddError(err)
		return
	}
	if len(fields) == 0 {
		return
	}

	ctx := db.Statement.Context
	taken := make(map[string]map[string]bool)
	behavior.EachRow(db, func(row reflect.Value) {
		for _, sf := range fields {
			text := ""
			if current, zero := sf.Field.ValueOf(ctx, row); !zero {
				text = behavior.Key(current)
			} else {
				text = sourceText(sf, func(f *schema.Field) interface{} {
					v, _ := f.ValueOf(ctx, row)
					return v
				})
			}
			slug := sf.build(text)
			if slug == "" {
				continue
			}
			if sf.unique {
				if taken[sf.Field.DBName] == nil {
					taken[sf.Field.DBName] = make(map[string]bool)
				}
				if slug, err = uniqueSlug(db, sf, row, slug, taken[sf.Field.DBName]); err != nil {
					db.AddError(err)
					return
				}
			}
			if err := sf.Field.Set(ctx, row, slug); err != nil {
				db.AddError(err)
				return
			}
		}
	})
}

func (l *Listener) beforeUpdate(db *gorm.DB) {
	if !behavior.Applicable(db) || db.Statement.ReflectValue.Kind() != reflect.Struct {
		return
	}
	fields, err := slugFields(db.Statement.Schema)
	if err != nil {
		db.AddError(err)
		return
	}

	ctx := db.Statement.Context
	row := db.Statement.ReflectValue
	for _, sf := range fields {
		if !sf.updatable {
			continue
		}
		current, _ := sf.Field.ValueOf(ctx, row)

		var slug string
		if explicit, ok := explicitSlug(db, sf); ok {
			slug = sf.build(explicit)
		} else {
			slug = sf.build(sourceText(sf, func(f *schema.Field) interface{} {
				v, _ := behavior.NewValue(db, f, row)
				return v
			}))
			if derivedFrom(behavior.Key(current), slug, sf.separator) {
				continue
			}
		}
		if slug == "" {
			continue
		}
		if sf.unique {
			if slug, err = uniqueSlug(db, sf, row, slug, make(map[string]bool)); err != nil {
				db.AddError(err)
				return
			}
		}
		if slug != behavior.Key(current) {
			db.Statement.SetColumn(sf.Field.DBName, slug, true)
		}
	}
}

// explicitSlug returns the slug an update map sets directly
func explicitSlug(db *gorm.DB, sf slugField) (string, bool) {
	dest, ok := db.Statement.Dest.(map[string]interface{})
	if !ok {
		return "", false
	}
	for _, key := range []string{sf.Field.Name, sf.Field.DBName} {
		if v, ok := dest[key]; ok {
			return behavior.Key(v), true
		}
	}
	return "", false
}

func sourceText(sf slugField, value func(*schema.Field) interface{}) string {
	parts := make([]string, 0, len(sf.sources))
	for _, f := range sf.sources {
		if s := behavior.Key(value(f)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// derivedFrom reports whether current is base or base with a uniqueness suffix
func derivedFrom(current, base, separator string) bool {
	if current == base {
		return true
	}
	rest, ok := strings.CutPrefix(current, base+separator)
	if !ok {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

// uniqueSlug appends separator and a counter until slug is used by no other
// row of the table and by no row written earlier in the statement
func uniqueSlug(db *gorm.DB, sf slugField, row reflect.Value, slug string, taken map[string]bool) (string, error) {
	col := clause.Column{Name: sf.Field.DBName}
	q := behavior.Query(db, db.Statement.Table).Where(clause.Or(
		clause.Eq{Column: col, Value: slug},
		clause.Like{Column: col, Value: slug + sf.separator + "%"},
	))
	if pf := db.Statement.Schema.PrioritizedPrimaryField; pf != nil {
		if id, zero := pf.ValueOf(db.Statement.Context, row); !zero {
			q = q.Where(clause.Neq{Column: clause.Column{Name: pf.DBName}, Value: id})
		}
	}

	var existing []string
	if err := q.Pluck(sf.Field.DBName, &existing).Error; err != nil {
		return "", fmt.Errorf("sluggable: failed to check slug uniqueness: %w", err)
	}
	for _, s := range existing {
		taken[s] = true
	}

	candidate := slug
	for i := 1; taken[candidate]; i++ {
		candidate = slug + sf.separator + strconv.Itoa(i)
	}
	taken[candidate] = true
	return candidate, nil
}
