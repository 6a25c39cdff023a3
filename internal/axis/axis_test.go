package axis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncube/internal/value"
)

func mustRange(t *testing.T, low, high value.Value) value.Range {
	t.Helper()
	r, err := value.NewRange(low, high)
	require.NoError(t, err)
	return r
}

// TestDiscreteSortedOrdering mirrors spec §8 scenario 1: add 65, 18, 0 to a
// SORTED discrete LONG axis and expect them stored in ascending order.
func TestDiscreteSortedOrdering(t *testing.T) {
	a, err := New(1, "age", value.AxisDiscrete, value.TypeLong, Sorted, true)
	require.NoError(t, err)

	for _, n := range []int64{65, 18, 0} {
		_, err := a.AddColumn(value.Long(n))
		require.NoError(t, err)
	}

	cols := a.Columns()
	require.Len(t, cols, 4) // 3 values + default
	assert.Equal(t, int64(0), cols[0].Value.AsLong())
	assert.Equal(t, int64(18), cols[1].Value.AsLong())
	assert.Equal(t, int64(65), cols[2].Value.AsLong())
	assert.True(t, cols[3].IsDefault())
	assert.Equal(t, int32(MaxDisplayOrder), cols[3].DisplayOrder)

	col, err := a.FindColumn(value.Long(18))
	require.NoError(t, err)
	assert.Equal(t, int64(18), col.Value.AsLong())
}

func TestDiscreteFindMissingWithAndWithoutDefault(t *testing.T) {
	withDefault, err := New(1, "age", value.AxisDiscrete, value.TypeLong, Sorted, true)
	require.NoError(t, err)
	_, err = withDefault.AddColumn(value.Long(18))
	require.NoError(t, err)
	col, err := withDefault.FindColumn(value.Long(7))
	require.NoError(t, err)
	require.NotNil(t, col)
	assert.True(t, col.IsDefault())

	noDefault, err := New(2, "age2", value.AxisDiscrete, value.TypeLong, Sorted, false)
	require.NoError(t, err)
	_, err = noDefault.AddColumn(value.Long(18))
	require.NoError(t, err)
	col, err = noDefault.FindColumn(value.Long(7))
	require.NoError(t, err)
	assert.Nil(t, col)
}

func TestDiscreteDuplicateOverlap(t *testing.T) {
	a, err := New(1, "state", value.AxisDiscrete, value.TypeString, Sorted, false)
	require.NoError(t, err)
	_, err = a.AddColumn(value.String("CA"))
	require.NoError(t, err)
	_, err = a.AddColumn(value.String("ca"))
	require.Error(t, err, "discrete string columns are unique case-insensitively")
}

// TestRangeOverlapScenario mirrors spec §8 scenario 2.
func TestRangeOverlapScenario(t *testing.T) {
	a, err := New(1, "age", value.AxisRange, value.TypeLong, Sorted, false)
	require.NoError(t, err)

	add := func(low, high int64) error {
		r := mustRange(t, value.Long(low), value.Long(high))
		_, err := a.AddColumn(value.Comparable(r))
		return err
	}

	require.NoError(t, add(0, 18))
	require.NoError(t, add(18, 30))
	require.NoError(t, add(65, 80))

	assert.Error(t, add(17, 20))
	assert.Error(t, add(-150, 150))

	assert.NoError(t, add(30, 65))
	assert.NoError(t, add(80, 100))
}

func TestRangeFind(t *testing.T) {
	a, err := New(1, "age", value.AxisRange, value.TypeLong, Sorted, true)
	require.NoError(t, err)
	r := mustRange(t, value.Long(0), value.Long(18))
	_, err = a.AddColumn(value.Comparable(r))
	require.NoError(t, err)

	col, err := a.FindColumn(value.Long(5))
	require.NoError(t, err)
	require.NotNil(t, col)
	assert.False(t, col.IsDefault())

	col, err = a.FindColumn(value.Long(50))
	require.NoError(t, err)
	require.NotNil(t, col)
	assert.True(t, col.IsDefault())
}

// TestNearestDateScenario mirrors spec §8 scenario 3.
func TestNearestDateScenario(t *testing.T) {
	a, err := New(1, "era", value.AxisNearest, value.TypeDate, Display, false)
	require.NoError(t, err)

	dates := []string{"1970-01-01", "1991-10-05", "2000-01-01", "2005-05-31", "2016-06-06"}
	for _, d := range dates {
		parsed, err := value.ParseDate(d)
		require.NoError(t, err)
		_, err = a.AddColumn(value.Comparable(parsed))
		require.NoError(t, err)
	}

	query := func(s string) string {
		parsed, err := value.ParseDate(s)
		require.NoError(t, err)
		col, err := a.FindColumn(value.Comparable(parsed))
		require.NoError(t, err)
		require.NotNil(t, col)
		return col.Value.AsComparable().(time.Time).Format("2006-01-02")
	}

	assert.Equal(t, "1970-01-01", query("1980-11-17"))
	assert.Equal(t, "1991-10-05", query("1980-11-18"))
	assert.Equal(t, "2016-06-06", query("2316-12-25"))
}

func TestNearestAxisRejectsDefaultColumn(t *testing.T) {
	_, err := New(1, "era", value.AxisNearest, value.TypeDate, Display, true)
	require.Error(t, err)
}

// TestRuleAxisParsingScenario mirrors spec §8 scenario 4.
func TestRuleAxisParsingScenario(t *testing.T) {
	e, err := value.ParseExpression("url|cache|http://x")
	require.NoError(t, err)
	assert.Equal(t, "http://x", e.URL)
	assert.True(t, e.Cacheable)
	assert.Empty(t, e.Cmd)
}

func TestRuleAxisForcedDisplayOrderAndExpressionType(t *testing.T) {
	a, err := New(1, "rule", value.AxisRule, value.TypeString, Sorted, false)
	require.NoError(t, err)
	assert.Equal(t, Display, a.Order)
	assert.Equal(t, value.TypeExpression, a.ValueType)
}

func TestRuleColumnsAndGetStartingAt(t *testing.T) {
	a, err := New(1, "rule", value.AxisRule, value.TypeExpression, Display, true)
	require.NoError(t, err)

	names := []string{"init", "validate", "execute", "finalize"}
	for _, n := range names {
		_, err := a.AddRuleColumn(n, value.Expr(&value.Expression{Cmd: n}))
		require.NoError(t, err)
	}

	tail, err := a.GetRuleColumnsStartingAt("execute")
	require.NoError(t, err)
	require.Len(t, tail, 3) // execute, finalize, then the default column
	assert.Equal(t, "execute", ruleName(tail[0]))
	assert.Equal(t, "finalize", ruleName(tail[1]))
	assert.True(t, tail[2].IsDefault())

	_, err = a.GetRuleColumnsStartingAt("missing-and-no-default")
	require.NoError(t, err) // axis has a default, so missing name resolves to it

	noDefault, err := New(2, "rule2", value.AxisRule, value.TypeExpression, Display, false)
	require.NoError(t, err)
	_, err = noDefault.AddRuleColumn("only", value.Expr(&value.Expression{Cmd: "x"}))
	require.NoError(t, err)
	_, err = noDefault.GetRuleColumnsStartingAt("missing")
	require.Error(t, err)
}

func TestRuleDuplicateNameOverlap(t *testing.T) {
	a, err := New(1, "rule", value.AxisRule, value.TypeExpression, Display, false)
	require.NoError(t, err)
	_, err = a.AddRuleColumn("dup", value.Expr(&value.Expression{Cmd: "a"}))
	require.NoError(t, err)
	_, err = a.AddRuleColumn("DUP", value.Expr(&value.Expression{Cmd: "b"}))
	require.Error(t, err)
}

func TestUpdateColumnsAddRemoveModify(t *testing.T) {
	a, err := New(1, "age", value.AxisDiscrete, value.TypeLong, Sorted, false)
	require.NoError(t, err)
	c1, err := a.AddColumn(value.Long(10))
	require.NoError(t, err)
	_, err = a.AddColumn(value.Long(20))
	require.NoError(t, err)

	err = a.UpdateColumns([]ColumnUpdate{
		{ID: c1.ID, Value: value.Long(11)}, // modify c1, drop the 20 column, add a new one
		{ID: -1, Value: value.Long(30)},
	})
	require.NoError(t, err)

	cols := a.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, int64(11), cols[0].Value.AsLong())
	assert.Equal(t, int64(30), cols[1].Value.AsLong())
}

func TestUpdateColumnsOverlapAborts(t *testing.T) {
	a, err := New(1, "age", value.AxisDiscrete, value.TypeLong, Sorted, false)
	require.NoError(t, err)
	c1, err := a.AddColumn(value.Long(10))
	require.NoError(t, err)
	_, err = a.AddColumn(value.Long(20))
	require.NoError(t, err)

	err = a.UpdateColumns([]ColumnUpdate{
		{ID: c1.ID, Value: value.Long(20)},
		{ID: -1, Value: value.Long(20)},
	})
	require.Error(t, err)

	// the axis must be unchanged after the aborted update
	cols := a.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, int64(10), cols[0].Value.AsLong())
}

func TestUpdateColumnsUnknownPositiveIDFails(t *testing.T) {
	a, err := New(1, "age", value.AxisDiscrete, value.TypeLong, Sorted, false)
	require.NoError(t, err)
	err = a.UpdateColumns([]ColumnUpdate{{ID: 999, Value: value.Long(1)}})
	require.Error(t, err)
}

func TestSetOverlap(t *testing.T) {
	a, err := New(1, "days", value.AxisSet, value.TypeLong, Display, false)
	require.NoError(t, err)
	rs1, err := value.ParseRangeSet(value.TypeLong, "1, [5, 10]")
	require.NoError(t, err)
	_, err = a.AddColumn(value.Comparable(rs1))
	require.NoError(t, err)

	rs2, err := value.ParseRangeSet(value.TypeLong, "7")
	require.NoError(t, err)
	_, err = a.AddColumn(value.Comparable(rs2))
	require.Error(t, err)

	rs3, err := value.ParseRangeSet(value.TypeLong, "20")
	require.NoError(t, err)
	_, err = a.AddColumn(value.Comparable(rs3))
	require.NoError(t, err)
}

func TestColumnIDEncodingIsStablePerAxis(t *testing.T) {
	a, err := New(7, "x", value.AxisDiscrete, value.TypeLong, Display, false)
	require.NoError(t, err)
	c1, err := a.AddColumn(value.Long(1))
	require.NoError(t, err)
	c2, err := a.AddColumn(value.Long(2))
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
	assert.Equal(t, c1.ID>>48, int64(7))
	assert.Equal(t, c2.ID>>48, int64(7))
}
