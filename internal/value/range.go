package value

import "fmt"

// Range is a half-open-by-convention low/high pair ordered lexicographically
// by (low, high). low must be strictly less than high.
type Range struct {
	Low  Value
	High Value
}

// NewRange validates low < high and returns the Range.
func NewRange(low, high Value) (Range, error) {
	c, err := Compare(low, high)
	if err != nil {
		return Range{}, err
	}
	if c >= 0 {
		return Range{}, fmt.Errorf("range low (%s) must be strictly less than high (%s)", low.Render(), high.Render())
	}
	return Range{Low: low, High: high}, nil
}

// Overlaps implements the Range overlap predicate from spec §3:
// a and b overlap iff a.Low < b.High && b.Low < a.High.
func (r Range) Overlaps(o Range) bool {
	lt := func(a, b Value) bool {
		c, err := Compare(a, b)
		return err == nil && c < 0
	}
	return lt(r.Low, o.High) && lt(o.Low, r.High)
}

// Contains reports whether v falls within [Low, High).
func (r Range) Contains(v Value) bool {
	geLow, err := Compare(v, r.Low)
	if err != nil {
		return false
	}
	ltHigh, err := Compare(v, r.High)
	if err != nil {
		return false
	}
	return geLow >= 0 && ltHigh < 0
}

// Compare orders ranges lexicographically by (Low, High), used when an
// axis is SORTED.
func (r Range) Compare(o Range) (int, error) {
	c, err := Compare(r.Low, o.Low)
	if err != nil {
		return 0, err
	}
	if c != 0 {
		return c, nil
	}
	return Compare(r.High, o.High)
}

func (r Range) Render() string {
	return fmt.Sprintf("[%s, %s]", r.Low.Render(), r.High.Render())
}
