// Package value implements the comparable column-value variants that back
// axis columns: plain scalars, Range, RangeSet, the NEAREST point types
// (LatLon, Point3D), and Expression for RULE axes. It also implements the
// textual parsing rules that turn a user-supplied string into one of these
// variants for a given (AxisType, AxisValueType) pair.
package value

import (
	"fmt"
	"math/big"
	"time"
)

// Type identifies the underlying representation of a column value.
// It corresponds to spec's AxisValueType.
type Type string

const (
	TypeString     Type = "STRING"
	TypeLong       Type = "LONG"
	TypeBigDecimal Type = "BIG_DECIMAL"
	TypeDouble     Type = "DOUBLE"
	TypeDate       Type = "DATE"
	TypeExpression Type = "EXPRESSION"
	TypeComparable Type = "COMPARABLE"
)

// Value is a tagged union over the value types an axis column may hold.
// Exactly one of the typed fields is meaningful, selected by Type.
type Value struct {
	Type Type

	str  string
	i64  int64
	dec  *big.Rat
	f64  float64
	date time.Time
	expr *Expression
	cmp  any // TypeComparable payload: Range, RangeSet, LatLon, Point3D, time.Time, or a JSON-decoded value
}

func String(s string) Value     { return Value{Type: TypeString, str: s} }
func Long(i int64) Value        { return Value{Type: TypeLong, i64: i} }
func BigDecimal(r *big.Rat) Value { return Value{Type: TypeBigDecimal, dec: r} }
func Double(f float64) Value    { return Value{Type: TypeDouble, f64: f} }
func Date(t time.Time) Value    { return Value{Type: TypeDate, date: t} }
func Expr(e *Expression) Value  { return Value{Type: TypeExpression, expr: e} }
func Comparable(v any) Value    { return Value{Type: TypeComparable, cmp: v} }

func (v Value) AsString() string       { return v.str }
func (v Value) AsLong() int64          { return v.i64 }
func (v Value) AsBigDecimal() *big.Rat { return v.dec }
func (v Value) AsDouble() float64      { return v.f64 }
func (v Value) AsDate() time.Time      { return v.date }
func (v Value) AsExpression() *Expression { return v.expr }
func (v Value) AsComparable() any      { return v.cmp }

// Render renders the value in its canonical textual form, used for error
// messages, map keys, and display.
func (v Value) Render() string {
	switch v.Type {
	case TypeString:
		return v.str
	case TypeLong:
		return fmt.Sprintf("%d", v.i64)
	case TypeBigDecimal:
		if v.dec == nil {
			return "0"
		}
		return v.dec.RatString()
	case TypeDouble:
		return fmt.Sprintf("%g", v.f64)
	case TypeDate:
		return v.date.Format(time.RFC3339)
	case TypeExpression:
		if v.expr == nil {
			return ""
		}
		return v.expr.Cmd
	case TypeComparable:
		return fmt.Sprintf("%v", v.cmp)
	default:
		return ""
	}
}

// Compare orders two values of the same Type. Values of differing Type are
// not comparable and Compare returns an error naming both types.
func Compare(a, b Value) (int, error) {
	if a.Type != b.Type {
		return 0, fmt.Errorf("cannot compare value of type %s with value of type %s", a.Type, b.Type)
	}
	switch a.Type {
	case TypeString, TypeExpression:
		as, bs := a.Render(), b.Render()
		return stringCompare(as, bs), nil
	case TypeLong:
		return int64Compare(a.i64, b.i64), nil
	case TypeDouble:
		return float64Compare(a.f64, b.f64), nil
	case TypeBigDecimal:
		if a.dec == nil || b.dec == nil {
			return 0, fmt.Errorf("nil BIG_DECIMAL value")
		}
		return a.dec.Cmp(b.dec), nil
	case TypeDate:
		switch {
		case a.date.Before(b.date):
			return -1, nil
		case a.date.After(b.date):
			return 1, nil
		default:
			return 0, nil
		}
	case TypeComparable:
		return 0, fmt.Errorf("COMPARABLE values require a custom comparator; use Equal for binding")
	default:
		return 0, fmt.Errorf("unknown value type %s", a.Type)
	}
}

// Equal reports whether a and b represent the same value. Unlike Compare,
// it is defined for every Type, including COMPARABLE (deep structural
// equality on the decoded JSON form).
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == TypeComparable {
		return fmt.Sprintf("%v", a.cmp) == fmt.Sprintf("%v", b.cmp)
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func float64Compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
