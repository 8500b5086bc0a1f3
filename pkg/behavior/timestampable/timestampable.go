// Package timestampable fills date fields when rows are created or updated.
//
//	CreatedAt   time.Time  `gedmo:"timestampable;on:create"`
//	UpdatedAt   time.Time  `gedmo:"timestampable;on:update"`
//	PublishedAt *time.Time `gedmo:"timestampable;on:change;field:Status;value:published"`
//
// Fields may be time.Time, *time.Time or integer unix seconds.
package timestampable

import (
	"reflect"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/ammar0144/ormresource/pkg/behavior"
	"github.com/ammar0144/ormresource/pkg/orm"
)

// Name identifies the listener among GORM plugins
const Name = "gedmo:timestampable"

// Annotation is the gedmo setting that marks a field
const Annotation = "timestampable"

// Trigger values of the "on" setting
const (
	OnCreate = "create"
	OnUpdate = "update"
	OnChange = "change"
)

// Listener maintains timestampable fields
type Listener struct {
	now func() time.Time
}

// Option configures a Listener
type Option func(*Listener)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Listener) { l.now = now }
}

// New creates the listener
func New(opts ...Option) *Listener {
	l := &Listener{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
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

type trackedField struct {
	behavior.AnnotatedField
	on    string
	field string
	value string
}

func fields(db *gorm.DB) []trackedField {
	var out []trackedField
	for _, af := range behavior.Fields(db.Statement.Schema, Annotation) {
		on := strings.ToLower(strings.TrimSpace(af.Settings.Get("on")))
		if on == "" {
			on = OnUpdate
		}
		out = append(out, trackedField{
			AnnotatedField: af,
			on:             on,
			field:          strings.TrimSpace(af.Settings.Get("field")),
			value:          af.Settings.Get("value"),
		})
	}
	return out
}

// beforeCreate stamps empty create and update fields, and change fields whose
// tracked field already holds the expected value
func (l *Listener) beforeCreate(db *gorm.DB) {
	if !behavior.Applicable(db) {
		return
	}
	tracked := fields(db)
	if len(tracked) == 0 {
		return
	}

	now := l.now()
	ctx := db.Statement.Context
	behavior.EachRow(db, func(row reflect.Value) {
		for _, tf := range tracked {
			if _, zero := tf.Field.ValueOf(ctx, row); !zero {
				continue
			}
			switch tf.on {
			case OnCreate, OnUpdate:
			case OnChange:
				source := db.Statement.Schema.LookUpField(tf.field)
				if source == nil {
					continue
				}
				v, zero := source.ValueOf(ctx, row)
				if zero || (tf.value != "" && behavior.Key(v) != tf.value) {
					continue
				}
			default:
				continue
			}
			if err := tf.Field.Set(ctx, row, stamp(tf.Field, now)); err != nil {
				db.AddError(err)
				return
			}
		}
	})
}

// beforeUpdate stamps update fields, and change fields whose tracked field is
// being written with the expected value
func (l *Listener) beforeUpdate(db *gorm.DB) {
	if !behavior.Applicable(db) {
		return
	}
	tracked := fields(db)
	if len(tracked) == 0 {
		return
	}

	now := l.now()
	for _, tf := range tracked {
		switch tf.on {
		case OnUpdate:
		case OnChange:
			if !l.changed(db, tf) {
				continue
			}
		default:
			continue
		}
		db.Statement.SetColumn(tf.Field.DBName, stamp(tf.Field, now), true)
	}
}

// stamp converts now to the field's storage type
func stamp(f *schema.Field, now time.Time) interface{} {
	switch f.IndirectFieldType.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return now.Unix()
	}
	return now
}

func (l *Listener) changed(db *gorm.DB, tf trackedField) bool {
	source := db.Statement.Schema.LookUpField(tf.field)
	if source == nil || !db.Statement.Changed(source.Name) {
		return false
	}
	if tf.value == "" {
		return true
	}
	row := db.Statement.ReflectValue
	if row.Kind() != reflect.Struct {
		return false
	}
	v, ok := behavior.NewValue(db, source, row)
	return ok && behavior.Key(v) == tf.value
}
