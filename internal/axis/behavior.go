package axis

import (
	"strings"

	"ncube/internal/ncerr"
	"ncube/internal/value"
)

// typeBehavior is the per-AxisType behavior table referenced by spec §9's
// design note ("avoid class-hierarchy dispatch"): one set of
// overlap/index/find functions per axis type, selected once by a.Type.
type typeBehavior struct {
	checkOverlap func(a *Axis, col *Column) error
	index        func(a *Axis, col *Column)
	find         func(a *Axis, v value.Value) (*Column, error)
}

var behaviors = map[value.AxisType]typeBehavior{
	value.AxisDiscrete: {checkOverlap: discreteOverlap, index: discreteIndexFn, find: discreteFind},
	value.AxisRule:     {checkOverlap: ruleOverlap, index: ruleIndexFn, find: ruleFind},
	value.AxisRange:    {checkOverlap: rangeOverlap, index: rangeIndexFn, find: rangeFind},
	value.AxisSet:      {checkOverlap: setOverlap, index: setIndexFn, find: setFind},
	value.AxisNearest:  {checkOverlap: nearestOverlap, index: nearestIndexFn, find: nearestFind},
}

// columnCompare orders two column values for a SORTED axis. RANGE columns
// sort by (low, high); SET columns sort by their first member's low bound
// (or point value); everything else uses the scalar comparator.
func columnCompare(axisType value.AxisType, x, y value.Value) (int, error) {
	switch axisType {
	case value.AxisRange:
		rx, _ := asRange(x)
		ry, _ := asRange(y)
		return rx.Compare(ry)
	case value.AxisSet:
		rsx, _ := x.AsComparable().(value.RangeSet)
		rsy, _ := y.AsComparable().(value.RangeSet)
		return compareSetFirstMember(rsx, rsy)
	default:
		return value.Compare(x, y)
	}
}

func compareSetFirstMember(x, y value.RangeSet) (int, error) {
	if len(x.Elements) == 0 || len(y.Elements) == 0 {
		return 0, nil
	}
	xv := setMemberSortValue(x.Elements[0])
	yv := setMemberSortValue(y.Elements[0])
	return value.Compare(xv, yv)
}

func setMemberSortValue(e value.RangeSetElement) value.Value {
	if e.IsRange {
		return e.Range.Low
	}
	return e.Point
}

func canonicalKey(valueType value.Type, v value.Value) string {
	if valueType == value.TypeString {
		return strings.ToLower(v.Render())
	}
	return v.Render()
}

// --- DISCRETE: map from canonical value to Column ---

func discreteOverlap(a *Axis, col *Column) error {
	key := canonicalKey(a.ValueType, *col.Value)
	if _, exists := a.discreteIndex[key]; exists {
		return &ncerr.AxisOverlap{AxisName: a.name, Value: col.Value.Render(), Message: "duplicate discrete value"}
	}
	return nil
}

func discreteIndexFn(a *Axis, col *Column) {
	key := canonicalKey(a.ValueType, *col.Value)
	a.discreteIndex[key] = col
}

func discreteFind(a *Axis, v value.Value) (*Column, error) {
	key := canonicalKey(a.ValueType, v)
	if col, ok := a.discreteIndex[key]; ok {
		return col, nil
	}
	return nil, nil
}

// --- RULE: same map shape as DISCRETE, but keyed by the column's "name"
// meta-property rather than its expression value, per spec §4.2. ---

func ruleName(col *Column) string {
	if col.MetaProperties == nil {
		return ""
	}
	if n, ok := col.MetaProperties["name"].(string); ok {
		return n
	}
	return ""
}

func ruleOverlap(a *Axis, col *Column) error {
	key := strings.ToLower(ruleName(col))
	if key == "" {
		return ncerr.NewIllegalArgument("axis", a.name, "RULE column requires a name")
	}
	if _, exists := a.discreteIndex[key]; exists {
		return &ncerr.AxisOverlap{AxisName: a.name, Value: key, Message: "duplicate rule name"}
	}
	return nil
}

func ruleIndexFn(a *Axis, col *Column) {
	a.discreteIndex[strings.ToLower(ruleName(col))] = col
}

func ruleFind(a *Axis, v value.Value) (*Column, error) {
	if v.Type != value.TypeString {
		return nil, ncerr.NewIllegalArgument("axis", a.name, "RULE axis findColumn requires a string rule name")
	}
	key := strings.ToLower(v.AsString())
	if col, ok := a.discreteIndex[key]; ok {
		return col, nil
	}
	return nil, nil
}

// --- RANGE: slice of ranges in insertion order, scanned linearly for
// overlap/containment ---

func rangeOverlap(a *Axis, col *Column) error {
	r, ok := asRange(*col.Value)
	if !ok {
		return ncerr.NewIllegalArgument("axis", a.name, "RANGE axis requires a Range value")
	}
	for _, e := range a.rangeIndex {
		if e.Range.Overlaps(r) {
			return &ncerr.AxisOverlap{AxisName: a.name, Value: r.Render(), Message: "overlaps existing range " + e.Range.Render()}
		}
	}
	return nil
}

func rangeIndexFn(a *Axis, col *Column) {
	r, _ := asRange(*col.Value)
	a.rangeIndex = append(a.rangeIndex, &rangeEntry{Range: r, Column: col})
}

func rangeFind(a *Axis, v value.Value) (*Column, error) {
	for _, e := range a.rangeIndex {
		if e.Range.Contains(v) {
			return e.Column, nil
		}
	}
	return nil, nil
}

func asRange(v value.Value) (value.Range, bool) {
	r, ok := v.AsComparable().(value.Range)
	return r, ok
}

// --- SET: an index over each member Range plus a discrete map for points;
// one Column may own several tree/map entries. ---

func setOverlap(a *Axis, col *Column) error {
	rs, ok := col.Value.AsComparable().(value.RangeSet)
	if !ok {
		return ncerr.NewIllegalArgument("axis", a.name, "SET axis requires a RangeSet value")
	}
	for _, e := range a.setIndex {
		for _, m := range rs.Elements {
			if memberOverlaps(e.Range, m) {
				return &ncerr.AxisOverlap{AxisName: a.name, Value: col.Value.Render(), Message: "overlaps existing set member"}
			}
		}
	}
	for key := range a.setPoints {
		for _, m := range rs.Elements {
			if !m.IsRange && canonicalKey(a.ValueType, m.Point) == key {
				return &ncerr.AxisOverlap{AxisName: a.name, Value: col.Value.Render(), Message: "overlaps existing set member"}
			}
		}
	}
	return nil
}

func memberOverlaps(r value.Range, m value.RangeSetElement) bool {
	if m.IsRange {
		return r.Overlaps(m.Range)
	}
	return r.Contains(m.Point)
}

func setIndexFn(a *Axis, col *Column) {
	rs, _ := col.Value.AsComparable().(value.RangeSet)
	for _, m := range rs.Elements {
		if m.IsRange {
			a.setIndex = append(a.setIndex, &rangeEntry{Range: m.Range, Column: col})
			continue
		}
		a.setPoints[canonicalKey(a.ValueType, m.Point)] = col
	}
}

func setFind(a *Axis, v value.Value) (*Column, error) {
	if col, ok := a.setPoints[canonicalKey(a.ValueType, v)]; ok {
		return col, nil
	}
	for _, e := range a.setIndex {
		if e.Range.Contains(v) {
			return e.Column, nil
		}
	}
	return nil, nil
}

// --- NEAREST: linear scan minimizing the type's distance metric, ties
// broken by insertion order. No overlap check; no default column. ---

func nearestOverlap(a *Axis, col *Column) error { return nil }

func nearestIndexFn(a *Axis, col *Column) {
	a.nearestList = append(a.nearestList, col)
}

func nearestFind(a *Axis, v value.Value) (*Column, error) {
	var best *Column
	bestDist := 0.0
	for _, col := range a.nearestList {
		d, err := value.Distance(v, *col.Value)
		if err != nil {
			return nil, err
		}
		if best == nil || d < bestDist {
			best = col
			bestDist = d
		}
	}
	return best, nil
}
