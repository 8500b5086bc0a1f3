// Package tree maintains materialized-path trees.
//
//	ID       uint
//	ParentID *uint  `gedmo:"treeParent"`
//	Path     string `gedmo:"treePath;separator:/"`
//	Level    int    `gedmo:"treeLevel"`
//
// A node's path is its parent's path followed by its primary key and the
// separator ("1/4/9/"); roots have level 0. Moving a node rewrites the paths
// and levels of all its descendants.
package tree

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/ammar0144/ormresource/pkg/behavior"
	"github.com/ammar0144/ormresource/pkg/orm"
)

// Name identifies the listener among GORM plugins
const Name = "gedmo:tree"

// Annotations marking tree fields
const (
	ParentAnnotation = "treeParent"
	PathAnnotation   = "treePath"
	LevelAnnotation  = "treeLevel"
)

// DefaultSeparator ends every path segment
const DefaultSeparator = "/"

var (
	// ErrInvalidMove is returned when a node is moved under itself or its descendants
	ErrInvalidMove = errors.New("tree: cannot move a node under itself or its descendants")

	// ErrParentNotFound is returned when the parent of a node does not exist
	ErrParentNotFound = errors.New("tree: parent node not found")

	// ErrNotTree is returned for entities without a complete tree mapping
	ErrNotTree = errors.New("tree: entity has no treeParent and treePath fields")
)

const movesKey = "gedmo:tree:moves"

// Listener maintains tree paths and levels
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
	return []string{orm.PostPersist, orm.PreUpdate, orm.PostUpdate}
}

// Initialize implements gorm.Plugin
func (l *Listener) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().After("gorm:create").Register(Name+":create", l.afterCreate); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register(Name+":before_update", l.beforeUpdate); err != nil {
		return err
	}
	return db.Callback().Update().After("gorm:update").Register(Name+":after_update", l.afterUpdate)
}

// Mapping locates the tree fields of an entity
type Mapping struct {
	Table     string
	Primary   *schema.Field
	Parent    *schema.Field
	Path      *schema.Field
	Level     *schema.Field
	Separator string
}

// MappingOf returns the tree mapping of sch, or ErrNotTree
func MappingOf(sch *schema.Schema) (*Mapping, error) {
	if sch == nil || sch.PrioritizedPrimaryField == nil {
		return nil, ErrNotTree
	}
	m := &Mapping{Table: sch.Table, Primary: sch.PrioritizedPrimaryField, Separator: DefaultSeparator}
	if f := behavior.Fields(sch, ParentAnnotation); len(f) > 0 {
		m.Parent = f[0].Field
	}
	if f := behavior.Fields(sch, PathAnnotation); len(f) > 0 {
		m.Path = f[0].Field
		if sep := f[0].Settings.Get("separator"); sep != "" {
			m.Separator = sep
		}
	}
	if f := behavior.Fields(sch, LevelAnnotation); len(f) > 0 {
		m.Level = f[0].Field
	}
	if m.Parent == nil || m.Path == nil {
		return nil, ErrNotTree
	}
	return m, nil
}

// Depth returns the level of a node with path
func (m *Mapping) Depth(path string) int {
	return strings.Count(path, m.Separator) - 1
}

func (m *Mapping) nodePath(parentPath string, id interface{}) string {
	return parentPath + behavior.Key(id) + m.Separator
}

// mapping returns nil for statements on entities that are not trees
func mapping(db *gorm.DB) *Mapping {
	if !behavior.Applicable(db) {
		return nil
	}
	m, err := MappingOf(db.Statement.Schema)
	if err != nil {
		return nil
	}
	m.Table = db.Statement.Table
	return m
}

// storedPath loads the stored path of the node with primary key id
func (m *Mapping) storedPath(db *gorm.DB, id interface{}) (string, error) {
	var paths []string
	err := behavior.Query(db, m.Table).
		Where(clause.Eq{Column: clause.Column{Name: m.Primary.DBName}, Value: id}).
		Limit(1).
		Pluck(m.Path.DBName, &paths).Error
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%w: %s=%v", ErrParentNotFound, m.Primary.DBName, id)
	}
	return paths[0], nil
}

// afterCreate computes the path of every inserted row once its key is known
func (l *Listener) afterCreate(db *gorm.DB) {
	m := mapping(db)
	if m == nil {
		return
	}
	ctx := db.Statement.Context
	behavior.EachRow(db, func(row reflect.Value) {
		if db.Error != nil {
			return
		}
		id, zero := m.Primary.ValueOf(ctx, row)
		if zero {
			return
		}

		prefix := ""
		parentValue, _ := m.Parent.ValueOf(ctx, row)
		if parentID, ok := behavior.Deref(parentValue); ok && !reflect.ValueOf(parentID).IsZero() {
			p, err := m.storedPath(db, parentID)
			if err != nil {
				db.AddError(err)
				return
			}
			prefix = p
		}

		path := m.nodePath(prefix, id)
		updates := map[string]interface{}{m.Path.DBName: path}
		if err := m.Path.Set(ctx, row, path); err != nil {
			db.AddError(err)
			return
		}
		if m.Level != nil {
			updates[m.Level.DBName] = m.Depth(path)
			if err := m.Level.Set(ctx, row, m.Depth(path)); err != nil {
				db.AddError(err)
				return
			}
		}

		err := behavior.Query(db, m.Table).
			Where(clause.Eq{Column: clause.Column{Name: m.Primary.DBName}, Value: id}).
			UpdateColumns(updates).Error
		if err != nil {
			db.AddError(fmt.Errorf("tree: failed to store path: %w", err))
		}
	})
}

type move struct {
	oldPath string
	newPath string
}

// beforeUpdate detects parent changes and sets the node's new path and level
func (l *Listener) beforeUpdate(db *gorm.DB) {
	m := mapping(db)
	if m == nil || db.Statement.ReflectValue.Kind() != reflect.Struct {
		return
	}
	ctx := db.Statement.Context
	row := db.Statement.ReflectValue

	newParent, written := behavior.NewValue(db, m.Parent, row)
	if !written {
		return
	}
	id, zero := m.Primary.ValueOf(ctx, row)
	if zero {
		return
	}

	oldPath, err := m.storedPath(db, id)
	if err != nil {
		// the node itself is gone; nothing to maintain
		return
	}

	prefix := ""
	if parentID, ok := behavior.Deref(newParent); ok && !reflect.ValueOf(parentID).IsZero() {
		if prefix, err = m.storedPath(db, parentID); err != nil {
			db.AddError(err)
			return
		}
		if oldPath != "" && strings.HasPrefix(prefix, oldPath) {
			db.AddError(ErrInvalidMove)
			return
		}
	}

	newPath := m.nodePath(prefix, id)
	if newPath == oldPath {
		return
	}
	db.Statement.SetColumn(m.Path.DBName, newPath, true)
	if m.Level != nil {
		db.Statement.SetColumn(m.Level.DBName, m.Depth(newPath), true)
	}
	if oldPath != "" {
		db.InstanceSet(movesKey, move{oldPath: oldPath, newPath: newPath})
	}
}

// afterUpdate rewrites the descendants of a moved node
func (l *Listener) afterUpdate(db *gorm.DB) {
	m := mapping(db)
	if m == nil {
		return
	}
	v, ok := db.InstanceGet(movesKey)
	if !ok {
		return
	}
	mv := v.(move)

	type node struct {
		ID   interface{}
		Path string
	}
	var descendants []node
	rows, err := behavior.Query(db, m.Table).
		Select(m.Primary.DBName, m.Path.DBName).
		Where(clause.Like{Column: clause.Column{Name: m.Path.DBName}, Value: mv.oldPath + "%"}).
		Rows()
	if err != nil {
		db.AddError(fmt.Errorf("tree: failed to load descendants: %w", err))
		return
	}
	for rows.Next() {
		var n node
		if err := rows.Scan(&n.ID, &n.Path); err != nil {
			rows.Close()
			db.AddError(err)
			return
		}
		descendants = append(descendants, n)
	}
	rows.Close()

	for _, n := range descendants {
		if !strings.HasPrefix(n.Path, mv.oldPath) {
			continue
		}
		path := mv.newPath + strings.TrimPrefix(n.Path, mv.oldPath)
		updates := map[string]interface{}{m.Path.DBName: path}
		if m.Level != nil {
			updates[m.Level.DBName] = m.Depth(path)
		}
		err := behavior.Query(db, m.Table).
			Where(clause.Eq{Column: clause.Column{Name: m.Primary.DBName}, Value: n.ID}).
			UpdateColumns(updates).Error
		if err != nil {
			db.AddError(fmt.Errorf("tree: failed to move descendant: %w", err))
			return
		}
	}
}
