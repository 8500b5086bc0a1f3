package db

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

// Criteria builds WHERE / ORDER BY / LIMIT clauses applied to a GORM query.
//
// Field names are identifiers, not values: they are checked against
// identifierPattern and, by the repository, against the entity's columns.
// User input belongs in Condition.Value only, which is always parameterized.
//
// Example:
//
//	db.NewCriteria().Where("status", db.Equal, "published").OrderBy("created_at", true).Limit(10)

// Operator represents SQL comparison operators
type Operator string

const (
	Equal              Operator = "="
	NotEqual           Operator = "!="
	GreaterThan        Operator = ">"
	GreaterThanOrEqual Operator = ">="
	LessThan           Operator = "<"
	LessThanOrEqual    Operator = "<="
	Like               Operator = "LIKE"
	NotLike            Operator = "NOT LIKE"
	In                 Operator = "IN"
	NotIn              Operator = "NOT IN"
	IsNull             Operator = "IS NULL"
	IsNotNull          Operator = "IS NOT NULL"
	Between            Operator = "BETWEEN"
	NotBetween         Operator = "NOT BETWEEN"
)

// LogicalOperator for combining conditions
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Condition represents a WHERE clause condition
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// ConditionGroup represents grouped conditions with logical operators
type ConditionGroup struct {
	Conditions []interface{} // Can be Condition or nested *ConditionGroup
	Operator   LogicalOperator
}

type orderClause struct {
	field string
	desc  bool
}

// Criteria collects filtering, ordering and paging for a query
type Criteria struct {
	where   *ConditionGroup
	orderBy []orderClause
	limit   int
	offset  int
}

// NewCriteria creates empty criteria matching every row
func NewCriteria() *Criteria {
	return &Criteria{where: &ConditionGroup{Operator: And}}
}

// Where adds an AND condition
func (c *Criteria) Where(field string, operator Operator, value interface{}) *Criteria {
	c.where.Conditions = append(c.where.Conditions, Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	})
	return c
}

// WhereGroup adds a grouped condition
func (c *Criteria) WhereGroup(operator LogicalOperator, fn func(*ConditionGroup)) *Criteria {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	c.where.Conditions = append(c.where.Conditions, group)
	return c
}

// OrWhere adds an OR condition.
// Existing AND conditions are wrapped in a group so their semantics are preserved.
func (c *Criteria) OrWhere(field string, operator Operator, value interface{}) *Criteria {
	if len(c.where.Conditions) == 0 {
		return c.Where(field, operator, value)
	}

	newCondition := Condition{Field: field, Operator: operator, Value: value}
	if c.where.Operator == Or {
		c.where.Conditions = append(c.where.Conditions, newCondition)
		return c
	}

	existingGroup := &ConditionGroup{Conditions: c.where.Conditions, Operator: And}
	c.where = &ConditionGroup{
		Conditions: []interface{}{existingGroup, newCondition},
		Operator:   Or,
	}
	return c
}

// OrderBy adds an ORDER BY clause
func (c *Criteria) OrderBy(field string, desc bool) *Criteria {
	c.orderBy = append(c.orderBy, orderClause{field: field, desc: desc})
	return c
}

// Limit sets the LIMIT clause; negative values are normalized to 0
func (c *Criteria) Limit(limit int) *Criteria {
	if limit < 0 {
		limit = 0
	}
	c.limit = limit
	return c
}

// Offset sets the OFFSET clause; negative values are normalized to 0
func (c *Criteria) Offset(offset int) *Criteria {
	if offset < 0 {
		offset = 0
	}
	c.offset = offset
	return c
}

// Where adds a condition to the group
func (g *ConditionGroup) Where(field string, operator Operator, value interface{}) *ConditionGroup {
	g.Conditions = append(g.Conditions, Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	})
	return g
}

// Group adds a nested condition group
func (g *ConditionGroup) Group(operator LogicalOperator, fn func(*ConditionGroup)) *ConditionGroup {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	g.Conditions = append(g.Conditions, group)
	return g
}

// Fields returns every identifier the criteria references
func (c *Criteria) Fields() []string {
	var fields []string
	var walk func(*ConditionGroup)
	walk = func(g *ConditionGroup) {
		for _, item := range g.Conditions {
			switch cond := item.(type) {
			case Condition:
				fields = append(fields, cond.Field)
			case *ConditionGroup:
				walk(cond)
			}
		}
	}
	walk(c.where)
	for _, o := range c.orderBy {
		fields = append(fields, o.field)
	}
	return fields
}

// Validate rejects identifiers that are not plain column names
func (c *Criteria) Validate() error {
	for _, f := range c.Fields() {
		if !identifierPattern.MatchString(f) {
			return fmt.Errorf("%w: invalid identifier %q", ErrInvalidCriteria, f)
		}
	}
	return nil
}

// BuildWhere returns the WHERE expression (without the keyword) and its arguments
func (c *Criteria) BuildWhere() (string, []interface{}) {
	return buildConditionGroup(c.where)
}

// String renders the criteria for cache keys and logs
func (c *Criteria) String() string {
	where, args := c.BuildWhere()
	var b strings.Builder
	b.WriteString(where)
	for _, o := range c.orderBy {
		fmt.Fprintf(&b, "|order:%s:%t", o.field, o.desc)
	}
	fmt.Fprintf(&b, "|limit:%d|offset:%d|args:%v", c.limit, c.offset, args)
	return b.String()
}

// Apply adds the criteria to a GORM query
func (c *Criteria) Apply(tx *gorm.DB) (*gorm.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if where, args := c.BuildWhere(); where != "" {
		tx = tx.Where(where, args...)
	}
	for _, o := range c.orderBy {
		dir := " ASC"
		if o.desc {
			dir = " DESC"
		}
		tx = tx.Order(o.field + dir)
	}
	if c.limit > 0 {
		tx = tx.Limit(c.limit)
	}
	if c.offset > 0 {
		tx = tx.Offset(c.offset)
	}
	return tx, nil
}

// buildConditionGroup builds SQL for a condition group with proper logical operators
func buildConditionGroup(group *ConditionGroup) (string, []interface{}) {
	if len(group.Conditions) == 0 {
		return "", nil
	}

	var conditions []string
	var args []interface{}

	for _, item := range group.Conditions {
		switch cond := item.(type) {
		case Condition:
			condSQL, condArgs := buildCondition(cond)
			conditions = append(conditions, condSQL)
			args = append(args, condArgs...)
		case *ConditionGroup:
			if len(cond.Conditions) > 0 {
				groupSQL, groupArgs := buildConditionGroup(cond)
				conditions = append(conditions, "("+groupSQL+")")
				args = append(args, groupArgs...)
			}
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}

	operator := " " + string(group.Operator) + " "
	return strings.Join(conditions, operator), args
}

// buildCondition builds SQL for a single condition
func buildCondition(cond Condition) (string, []interface{}) {
	switch cond.Operator {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", cond.Field, cond.Operator), nil
	case In, NotIn:
		return buildInCondition(cond)
	case Between, NotBetween:
		return buildBetweenCondition(cond)
	default:
		return fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), []interface{}{cond.Value}
	}
}

// buildInCondition builds IN/NOT IN conditions with placeholder expansion
func buildInCondition(cond Condition) (string, []interface{}) {
	never, always := "1 = 0", "1 = 1"
	if cond.Operator == NotIn {
		never, always = always, never
	}
	if cond.Value == nil {
		return never, nil
	}

	v := reflect.ValueOf(cond.Value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Sprintf("%s %s (?)", cond.Field, cond.Operator), []interface{}{cond.Value}
	}
	if v.Len() == 0 {
		return never, nil
	}

	placeholders := make([]string, v.Len())
	args := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		placeholders[i] = "?"
		args[i] = v.Index(i).Interface()
	}
	return fmt.Sprintf("%s %s (%s)", cond.Field, cond.Operator, strings.Join(placeholders, ", ")), args
}

// buildBetweenCondition builds BETWEEN/NOT BETWEEN conditions from a two element slice
func buildBetweenCondition(cond Condition) (string, []interface{}) {
	if cond.Value == nil {
		return "1 = 0", nil
	}

	v := reflect.ValueOf(cond.Value)
	if (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) || v.Len() != 2 {
		return "1 = 0", nil // Invalid condition that never matches
	}

	sql := fmt.Sprintf("%s %s ? AND ?", cond.Field, cond.Operator)
	return sql, []interface{}{v.Index(0).Interface(), v.Index(1).Interface()}
}
