package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriteriaBuildWhere(t *testing.T) {
	tests := []struct {
		name     string
		criteria *Criteria
		sql      string
		args     []interface{}
	}{
		{"empty", NewCriteria(), "", nil},
		{
			"and",
			NewCriteria().Where("status", Equal, "published").Where("views", GreaterThan, 10),
			"status = ? AND views > ?",
			[]interface{}{"published", 10},
		},
		{
			"or wraps existing",
			NewCriteria().Where("a", Equal, 1).Where("b", Equal, 2).OrWhere("c", Equal, 3),
			"(a = ? AND b = ?) OR c = ?",
			[]interface{}{1, 2, 3},
		},
		{
			"in expands",
			NewCriteria().Where("id", In, []int{1, 2, 3}),
			"id IN (?, ?, ?)",
			[]interface{}{1, 2, 3},
		},
		{"empty in never matches", NewCriteria().Where("id", In, []int{}), "1 = 0", nil},
		{"empty not in always matches", NewCriteria().Where("id", NotIn, []int{}), "1 = 1", nil},
		{
			"between",
			NewCriteria().Where("level", Between, []int{1, 3}),
			"level BETWEEN ? AND ?",
			[]interface{}{1, 3},
		},
		{"bad between", NewCriteria().Where("level", Between, 1), "1 = 0", nil},
		{"null", NewCriteria().Where("parent_id", IsNull, nil), "parent_id IS NULL", nil},
		{
			"group",
			NewCriteria().Where("a", Equal, 1).WhereGroup(Or, func(g *ConditionGroup) {
				g.Where("b", Equal, 2).Where("c", Equal, 3)
			}),
			"a = ? AND (b = ? OR c = ?)",
			[]interface{}{1, 2, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.criteria.BuildWhere()
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestCriteriaValidate(t *testing.T) {
	c := NewCriteria().Where("posts.title", Like, "%go%").OrderBy("created_at", true)
	require.NoError(t, c.Validate())
	assert.Equal(t, []string{"posts.title", "created_at"}, c.Fields())

	bad := NewCriteria().Where("title; DROP TABLE posts", Equal, 1)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidCriteria)

	bad = NewCriteria().OrderBy("id desc, (select 1)", false)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidCriteria)
}

func TestCriteriaString(t *testing.T) {
	a := NewCriteria().Where("a", Equal, 1).Limit(5).Offset(-2)
	b := NewCriteria().Where("a", Equal, 1).Limit(5)
	c := NewCriteria().Where("a", Equal, 2).Limit(5)

	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
}
