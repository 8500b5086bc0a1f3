package orm

import (
	"reflect"

	"gorm.io/gorm/schema"

	"github.com/ammar0144/ormresource/pkg/metadata"
)

// ClassMetadata describes how one entity type maps to storage
type ClassMetadata struct {
	Name       string
	Table      string
	Type       reflect.Type
	Schema     *schema.Schema
	SourceFile string
	PrimaryKey []string

	// Annotations maps field name to namespace to raw annotation value
	Annotations map[string]map[string]string
}

func newClassMetadata(typ reflect.Type, sch *schema.Schema, def *metadata.EntityDefinition) *ClassMetadata {
	cm := &ClassMetadata{
		Name:        def.Name,
		Table:       sch.Table,
		Type:        typ,
		Schema:      sch,
		SourceFile:  def.SourceFile,
		Annotations: make(map[string]map[string]string),
	}
	for _, f := range sch.PrimaryFields {
		cm.PrimaryKey = append(cm.PrimaryKey, f.DBName)
	}
	for _, f := range def.Fields {
		if len(f.Annotations) > 0 {
			cm.Annotations[f.Name] = f.Annotations
		}
	}
	return cm
}

// HasAnnotation reports whether field carries an annotation of namespace
func (cm *ClassMetadata) HasAnnotation(field, namespace string) bool {
	_, ok := cm.Annotations[field][namespace]
	return ok
}

// Column returns the column name of a struct field
func (cm *ClassMetadata) Column(field string) (string, bool) {
	f := cm.Schema.LookUpField(field)
	if f == nil || f.DBName == "" {
		return "", false
	}
	return f.DBName, true
}

// PrimaryField returns the single primary key field, or nil for composite keys
func (cm *ClassMetadata) PrimaryField() *schema.Field {
	return cm.Schema.PrioritizedPrimaryField
}
