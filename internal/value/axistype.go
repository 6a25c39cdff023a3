package value

// AxisType identifies the column-structure family an axis uses. It lives in
// this package beside the parsers (ParseScalar, ParseRange, ParseRangeSet,
// ParseNearest, ParseExpression) that each axis type selects between.
type AxisType string

const (
	AxisDiscrete AxisType = "DISCRETE"
	AxisRange    AxisType = "RANGE"
	AxisSet      AxisType = "SET"
	AxisNearest  AxisType = "NEAREST"
	AxisRule     AxisType = "RULE"
)
