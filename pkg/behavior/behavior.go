// Package behavior holds the helpers shared by the gedmo lifecycle listeners.
//
// Listeners are GORM plugins: Initialize registers callbacks around the
// create and update processors, and each callback reads the gedmo annotation
// of the statement's schema to find the fields it maintains.
package behavior

import (
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/ammar0144/ormresource/pkg/annotation"
)

// AnnotatedField pairs a schema field with its parsed gedmo settings
type AnnotatedField struct {
	Field    *schema.Field
	Settings annotation.Settings
}

// Fields returns the fields of sch whose gedmo annotation carries kind
func Fields(sch *schema.Schema, kind string) []AnnotatedField {
	if sch == nil {
		return nil
	}
	var out []AnnotatedField
	for _, f := range sch.Fields {
		settings, ok := annotation.Lookup(f.Tag, annotation.Gedmo)
		if ok && settings.Has(kind) {
			out = append(out, AnnotatedField{Field: f, Settings: settings})
		}
	}
	return out
}

// Applicable reports whether a callback should touch the statement
func Applicable(db *gorm.DB) bool {
	return db.Error == nil && db.Statement.Schema != nil && db.Statement.ReflectValue.IsValid()
}

// EachRow calls fn with every struct value the statement writes
func EachRow(db *gorm.DB, fn func(row reflect.Value)) {
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if row := reflect.Indirect(rv.Index(i)); row.Kind() == reflect.Struct {
				fn(row)
			}
		}
	case reflect.Struct:
		fn(rv)
	}
}

// NewValue returns the value an update will write to field: the entry of a
// map destination, a non-zero field of a separate struct destination, or the
// row's own value.
// The second result is false when the update does not write field.
func NewValue(db *gorm.DB, field *schema.Field, row reflect.Value) (interface{}, bool) {
	stmt := db.Statement
	switch dest := stmt.Dest.(type) {
	case map[string]interface{}:
		if v, ok := dest[field.Name]; ok {
			return v, true
		}
		if v, ok := dest[field.DBName]; ok {
			return v, true
		}
		return nil, false
	}

	dv := reflect.ValueOf(stmt.Dest)
	separate := dv.Kind() == reflect.Struct
	if dv.Kind() == reflect.Ptr && !dv.IsNil() {
		mv := reflect.ValueOf(stmt.Model)
		separate = mv.Kind() != reflect.Ptr || mv.Pointer() != dv.Pointer()
		dv = dv.Elem()
	}
	if separate && dv.Kind() == reflect.Struct && dv.Type() == row.Type() {
		v, zero := field.ValueOf(stmt.Context, dv)
		return v, !zero
	}

	v, _ := field.ValueOf(stmt.Context, row)
	return v, true
}

// Deref unwraps pointers; the second result is false for nil
func Deref(v interface{}) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}

// Key renders a column value for comparisons and path segments
func Key(v interface{}) string {
	v, ok := Deref(v)
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

// Query returns a fresh session on the statement's connection and context,
// scoped to table
func Query(db *gorm.DB, table string) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).WithContext(db.Statement.Context).Table(table)
}
