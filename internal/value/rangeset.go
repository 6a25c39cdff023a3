package value

// RangeSetElement is either a discrete point or a Range within a SET
// column's member list.
type RangeSetElement struct {
	IsRange bool
	Point   Value
	Range   Range
}

// PointElement wraps a discrete value as a RangeSetElement.
func PointElement(v Value) RangeSetElement { return RangeSetElement{Point: v} }

// RangeElement wraps a Range as a RangeSetElement.
func RangeElement(r Range) RangeSetElement { return RangeSetElement{IsRange: true, Range: r} }

// RangeSet is an ordered collection of discrete values and/or Ranges that
// together form a single SET column's membership.
type RangeSet struct {
	Elements []RangeSetElement
}

// overlapsElement reports whether e1 and e2 overlap or are equal, per the
// mixed point/range overlap rule: two points overlap iff equal, a point and
// a range overlap iff the range contains the point, two ranges overlap per
// Range.Overlaps.
func overlapsElement(e1, e2 RangeSetElement) bool {
	switch {
	case !e1.IsRange && !e2.IsRange:
		return Equal(e1.Point, e2.Point)
	case e1.IsRange && e2.IsRange:
		return e1.Range.Overlaps(e2.Range)
	case e1.IsRange && !e2.IsRange:
		return e1.Range.Contains(e2.Point)
	default:
		return e2.Range.Contains(e1.Point)
	}
}

// Overlaps reports whether any element of rs overlaps or equals any element
// of o, per spec §3's RangeSet overlap predicate.
func (rs RangeSet) Overlaps(o RangeSet) bool {
	for _, e1 := range rs.Elements {
		for _, e2 := range o.Elements {
			if overlapsElement(e1, e2) {
				return true
			}
		}
	}
	return false
}

// Contains reports whether v is bound by some element of rs: equal to a
// point element, or within a range element.
func (rs RangeSet) Contains(v Value) bool {
	for _, e := range rs.Elements {
		if e.IsRange {
			if e.Range.Contains(v) {
				return true
			}
			continue
		}
		if Equal(e.Point, v) {
			return true
		}
	}
	return false
}
