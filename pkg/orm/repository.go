package orm

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"

	"github.com/ammar0144/ormresource/pkg/db"
)

// EntityRepository queries one mapped entity
type EntityRepository struct {
	em   *EntityManager
	meta *ClassMetadata
}

// ClassName returns the entity name
func (r *EntityRepository) ClassName() string {
	return r.meta.Name
}

// Metadata returns the entity metadata
func (r *EntityRepository) Metadata() *ClassMetadata {
	return r.meta
}

// EntityManager returns the owning entity manager
func (r *EntityRepository) EntityManager() *EntityManager {
	return r.em
}

// Query returns a GORM query scoped to the entity's table
func (r *EntityRepository) Query(ctx context.Context) *gorm.DB {
	return r.em.WithContext(ctx).Model(reflect.New(r.meta.Type).Interface())
}

// Find loads the entity with primary key id into dest.
// It reports false without error when no row matches.
func (r *EntityRepository) Find(ctx context.Context, id interface{}, dest interface{}) (bool, error) {
	if err := r.checkDest(dest, false); err != nil {
		return false, err
	}
	err := r.em.WithContext(ctx).First(dest, r.primaryKeyCondition(), id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// FindAll loads every row into dest, a pointer to a slice
func (r *EntityRepository) FindAll(ctx context.Context, dest interface{}) error {
	if err := r.checkDest(dest, true); err != nil {
		return err
	}
	return r.em.WithContext(ctx).Find(dest).Error
}

// FindBy loads the rows matching criteria into dest, a pointer to a slice
func (r *EntityRepository) FindBy(ctx context.Context, criteria *db.Criteria, dest interface{}) error {
	if err := r.checkDest(dest, true); err != nil {
		return err
	}
	tx, err := r.apply(r.em.WithContext(ctx), criteria)
	if err != nil {
		return err
	}
	return tx.Find(dest).Error
}

// FindOneBy loads the first row matching criteria into dest
func (r *EntityRepository) FindOneBy(ctx context.Context, criteria *db.Criteria, dest interface{}) (bool, error) {
	if err := r.checkDest(dest, false); err != nil {
		return false, err
	}
	tx, err := r.apply(r.em.WithContext(ctx), criteria)
	if err != nil {
		return false, err
	}
	err = tx.Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Count returns the number of rows matching criteria; nil criteria counts every row
func (r *EntityRepository) Count(ctx context.Context, criteria *db.Criteria) (int64, error) {
	tx, err := r.apply(r.Query(ctx), criteria)
	if err != nil {
		return 0, err
	}
	var n int64
	err = tx.Count(&n).Error
	return n, err
}

// ValidateCriteria checks that criteria only reference columns of the entity
func (r *EntityRepository) ValidateCriteria(criteria *db.Criteria) error {
	if criteria == nil {
		return nil
	}
	if err := criteria.Validate(); err != nil {
		return err
	}
	for _, field := range criteria.Fields() {
		name := field
		if table, col, ok := strings.Cut(field, "."); ok {
			if table != r.meta.Table {
				return fmt.Errorf("%w: %q is not a column of %s", db.ErrInvalidCriteria, field, r.meta.Table)
			}
			name = col
		}
		if r.meta.Schema.LookUpField(name) == nil {
			return fmt.Errorf("%w: %q is not a column of %s", db.ErrInvalidCriteria, field, r.meta.Table)
		}
	}
	return nil
}

func (r *EntityRepository) apply(tx *gorm.DB, criteria *db.Criteria) (*gorm.DB, error) {
	if criteria == nil {
		return tx, nil
	}
	if err := r.ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	return criteria.Apply(tx)
}

func (r *EntityRepository) primaryKeyCondition() string {
	if pf := r.meta.PrimaryField(); pf != nil {
		return pf.DBName + " = ?"
	}
	return "id = ?"
}

// checkDest ensures dest points to the entity type, or to a slice of it
func (r *EntityRepository) checkDest(dest interface{}, slice bool) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("%w: destination must be a non-nil pointer", ErrInvalidEntity)
	}
	typ := v.Elem().Type()
	if slice {
		if typ.Kind() != reflect.Slice {
			return fmt.Errorf("%w: destination must point to a slice", ErrInvalidEntity)
		}
		typ = typ.Elem()
		if typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
	}
	if typ != r.meta.Type {
		return fmt.Errorf("%w: destination holds %s, repository serves %s", ErrInvalidEntity, typ, r.meta.Type)
	}
	return nil
}
