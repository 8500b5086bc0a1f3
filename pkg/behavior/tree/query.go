package tree

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ammar0144/ormresource/pkg/behavior"
)

// nodeMapping parses node's schema and returns its mapping and stored path
func nodeMapping(ctx context.Context, db *gorm.DB, node interface{}) (*Mapping, string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(node); err != nil {
		return nil, "", err
	}
	m, err := MappingOf(stmt.Schema)
	if err != nil {
		return nil, "", err
	}
	m.Table = stmt.Table

	rv := reflect.Indirect(reflect.ValueOf(node))
	if rv.Kind() != reflect.Struct {
		return nil, "", fmt.Errorf("tree: node must be a struct, got %s", rv.Kind())
	}
	v, _ := m.Path.ValueOf(ctx, rv)
	path := behavior.Key(v)
	if path == "" {
		return nil, "", fmt.Errorf("tree: node has no path; save it first")
	}
	return m, path, nil
}

// Children loads the descendants of node into dest ordered by path.
// With direct set only the immediate children are loaded.
func Children(ctx context.Context, db *gorm.DB, node interface{}, direct bool, dest interface{}) error {
	m, path, err := nodeMapping(ctx, db, node)
	if err != nil {
		return err
	}

	col := clause.Column{Name: m.Path.DBName}
	tx := db.WithContext(ctx).Table(m.Table).
		Where(clause.Like{Column: col, Value: path + "%"}).
		Where(clause.Neq{Column: col, Value: path})
	if direct {
		if m.Level != nil {
			tx = tx.Where(clause.Eq{Column: clause.Column{Name: m.Level.DBName}, Value: m.Depth(path) + 1})
		} else {
			tx = tx.Not(clause.Like{Column: col, Value: path + "%" + m.Separator + "%" + m.Separator})
		}
	}
	return tx.Order(clause.OrderByColumn{Column: col}).Find(dest).Error
}

// Ancestors loads the nodes on the way from the root to node, root first
func Ancestors(ctx context.Context, db *gorm.DB, node interface{}, dest interface{}) error {
	m, path, err := nodeMapping(ctx, db, node)
	if err != nil {
		return err
	}

	segments := strings.Split(strings.TrimSuffix(path, m.Separator), m.Separator)
	ids := make([]interface{}, 0, len(segments))
	for _, s := range segments[:len(segments)-1] {
		ids = append(ids, s)
	}
	if len(ids) == 0 {
		ids = append(ids, nil)
	}

	return db.WithContext(ctx).Table(m.Table).
		Where(clause.IN{Column: clause.Column{Name: m.Primary.DBName}, Values: ids}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: m.Path.DBName}}).
		Find(dest).Error
}
