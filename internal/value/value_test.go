package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareLong(t *testing.T) {
	c, err := Compare(Long(18), Long(65))
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestCompareDifferentTypes(t *testing.T) {
	_, err := Compare(Long(1), String("1"))
	require.Error(t, err)
}

func TestRangeOverlap(t *testing.T) {
	r1, err := NewRange(Long(0), Long(18))
	require.NoError(t, err)
	r2, err := NewRange(Long(17), Long(20))
	require.NoError(t, err)
	assert.True(t, r1.Overlaps(r2))

	r3, err := NewRange(Long(18), Long(30))
	require.NoError(t, err)
	assert.False(t, r1.Overlaps(r3), "adjacent ranges must not overlap")
}

func TestRangeLowMustBeLessThanHigh(t *testing.T) {
	_, err := NewRange(Long(18), Long(18))
	require.Error(t, err)
}

func TestRangeSetOverlap(t *testing.T) {
	r1, _ := NewRange(Long(0), Long(10))
	rs1 := RangeSet{Elements: []RangeSetElement{RangeElement(r1), PointElement(Long(50))}}

	r2, _ := NewRange(Long(5), Long(15))
	rs2 := RangeSet{Elements: []RangeSetElement{RangeElement(r2)}}
	assert.True(t, rs1.Overlaps(rs2))

	rs3 := RangeSet{Elements: []RangeSetElement{PointElement(Long(50))}}
	assert.True(t, rs1.Overlaps(rs3))

	rs4 := RangeSet{Elements: []RangeSetElement{PointElement(Long(99))}}
	assert.False(t, rs1.Overlaps(rs4))
}

func TestDistanceNumeric(t *testing.T) {
	d, err := Distance(Long(10), Long(3))
	require.NoError(t, err)
	assert.Equal(t, 7.0, d)
}

func TestDistanceLatLon(t *testing.T) {
	d, err := Distance(Comparable(LatLon{Lat: 0, Lon: 0}), Comparable(LatLon{Lat: 3, Lon: 4}))
	require.NoError(t, err)
	assert.Equal(t, 5.0, d)
}

func TestParseScalarLong(t *testing.T) {
	v, err := ParseScalar(TypeLong, " 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.AsLong())
}

func TestParseScalarLongInvalid(t *testing.T) {
	_, err := ParseScalar(TypeLong, "not-a-number")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-number")
}

func TestParseDateFormats(t *testing.T) {
	cases := []string{"1970-01-01", "1970/01/01", "01/01/1970", "Jan 1 1970"}
	for _, c := range cases {
		_, err := ParseDate(c)
		assert.NoError(t, err, "format %q should parse", c)
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange(TypeLong, "[0, 18]")
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.Low.AsLong())
	assert.Equal(t, int64(18), r.High.AsLong())
}

func TestParseRangeSet(t *testing.T) {
	rs, err := ParseRangeSet(TypeLong, "1, [5, 10], 20")
	require.NoError(t, err)
	require.Len(t, rs.Elements, 3)
	assert.False(t, rs.Elements[0].IsRange)
	assert.True(t, rs.Elements[1].IsRange)
}

func TestParseNearestLatLon(t *testing.T) {
	v, err := ParseNearest("12.5, -8.25")
	require.NoError(t, err)
	ll, ok := v.AsComparable().(LatLon)
	require.True(t, ok)
	assert.Equal(t, 12.5, ll.Lat)
}

func TestParseNearestPoint3D(t *testing.T) {
	v, err := ParseNearest("1, 2, 3")
	require.NoError(t, err)
	p, ok := v.AsComparable().(Point3D)
	require.True(t, ok)
	assert.Equal(t, 3.0, p.Z)
}

func TestParseExpressionURLCache(t *testing.T) {
	e, err := ParseExpression("url|cache|http://x")
	require.NoError(t, err)
	assert.Equal(t, "http://x", e.URL)
	assert.True(t, e.Cacheable)
	assert.Empty(t, e.Cmd)
}

func TestParseExpressionPlain(t *testing.T) {
	e, err := ParseExpression("return 1 + 1")
	require.NoError(t, err)
	assert.Equal(t, "return 1 + 1", e.Cmd)
	assert.False(t, e.Cacheable)
}

func TestDateRender(t *testing.T) {
	d := Date(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, d.Render(), "2020-01-02")
}
