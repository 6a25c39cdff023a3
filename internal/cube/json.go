package cube

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"ncube/internal/axis"
	"ncube/internal/ncerr"
	"ncube/internal/value"
)

// ToJSON serializes the cube. When indexFormat is false (the common case)
// each axis's columns are written as an ordered array; when true they are
// written as an object keyed by the column's string id, which lets large
// axes be patched column-by-column without rewriting the whole array
// (spec §6's two encodings).
func (c *Cube) ToJSON(indexFormat bool) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc := cubeJSON{
		Name:        c.Name,
		AppID:       c.AppID,
		IndexFormat: indexFormat,
		Meta:        c.metaProperties,
	}

	for _, a := range c.axes {
		aj, err := axisToJSON(a, indexFormat)
		if err != nil {
			return nil, err
		}
		doc.Axes = append(doc.Axes, aj)
	}

	for key, v := range c.cells {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cube %q: marshal cell %s: %w", c.Name, key, err)
		}
		doc.Cells = append(doc.Cells, cellJSON{Key: key, Value: raw})
	}

	if c.hasDefaultCell {
		raw, err := json.Marshal(c.defaultCellValue)
		if err != nil {
			return nil, fmt.Errorf("cube %q: marshal default cell: %w", c.Name, err)
		}
		doc.DefaultCell = raw
	}

	return json.Marshal(doc)
}

// FromJSON parses a cube document produced by ToJSON, in either encoding.
func FromJSON(data []byte) (*Cube, error) {
	var doc cubeJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cube document: %w", err)
	}

	c := New(doc.Name, doc.AppID)
	c.metaProperties = doc.Meta
	if c.metaProperties == nil {
		c.metaProperties = map[string]any{}
	}

	for _, aj := range doc.Axes {
		a, err := axisFromJSON(aj)
		if err != nil {
			return nil, err
		}
		if err := c.AddAxis(a); err != nil {
			return nil, err
		}
	}

	for _, cj := range doc.Cells {
		var v any
		if err := json.Unmarshal(cj.Value, &v); err != nil {
			return nil, fmt.Errorf("cube %q: unmarshal cell %s: %w", doc.Name, cj.Key, err)
		}
		c.cells[cj.Key] = v
	}

	if len(doc.DefaultCell) > 0 {
		var v any
		if err := json.Unmarshal(doc.DefaultCell, &v); err != nil {
			return nil, fmt.Errorf("cube %q: unmarshal default cell: %w", doc.Name, err)
		}
		c.defaultCellValue = v
		c.hasDefaultCell = true
	}

	return c, nil
}

type cubeJSON struct {
	Name        string          `json:"name"`
	AppID       ApplicationID   `json:"appId"`
	IndexFormat bool            `json:"indexFormat,omitempty"`
	Axes        []axisJSON      `json:"axes"`
	Cells       []cellJSON      `json:"cells,omitempty"`
	DefaultCell json.RawMessage `json:"defaultCellValue,omitempty"`
	Meta        map[string]any  `json:"metaProperties,omitempty"`
}

// cellJSON carries the cube's canonical cellKey string verbatim rather than
// re-deriving it from a bindings map, so round-tripping never depends on
// map iteration order.
type cellJSON struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type axisJSON struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Type       value.AxisType  `json:"type"`
	ValueType  value.Type      `json:"valueType"`
	Order      axis.Order      `json:"order"`
	HasDefault bool            `json:"hasDefault"`
	Meta       map[string]any  `json:"metaProperties,omitempty"`
	Columns    []columnJSON    `json:"columns,omitempty"`
	ColumnsByID map[string]columnJSON `json:"columnsById,omitempty"`
}

type columnJSON struct {
	ID           int64          `json:"id"`
	Value        *valueJSON     `json:"value,omitempty"`
	DisplayOrder int32          `json:"displayOrder"`
	Meta         map[string]any `json:"metaProperties,omitempty"`
}

func axisToJSON(a *axis.Axis, indexFormat bool) (axisJSON, error) {
	aj := axisJSON{
		ID:         a.ID(),
		Name:       a.Name(),
		Type:       a.Type,
		ValueType:  a.ValueType,
		Order:      a.Order,
		HasDefault: a.HasDefault(),
		Meta:       a.MetaProperties(),
	}

	cols := a.Columns()
	if indexFormat {
		aj.ColumnsByID = make(map[string]columnJSON, len(cols))
	}
	for _, col := range cols {
		cj := columnJSON{ID: col.ID, DisplayOrder: col.DisplayOrder, Meta: col.MetaProperties}
		if !col.IsDefault() {
			vj, err := marshalValue(*col.Value)
			if err != nil {
				return axisJSON{}, fmt.Errorf("axis %q column %d: %w", a.Name(), col.ID, err)
			}
			cj.Value = &vj
		}
		if indexFormat {
			aj.ColumnsByID[strconv.FormatInt(col.ID, 10)] = cj
		} else {
			aj.Columns = append(aj.Columns, cj)
		}
	}
	return aj, nil
}

func axisFromJSON(aj axisJSON) (*axis.Axis, error) {
	a, err := axis.New(aj.ID, aj.Name, aj.Type, aj.ValueType, aj.Order, false)
	if err != nil {
		return nil, err
	}
	for k, v := range aj.Meta {
		a.SetMetaProperty(k, v)
	}

	// id/columns are restored with their original ids (see RestoreColumn)
	// rather than re-minted, so cell bindings captured against the
	// original axis remain valid after round-tripping.
	cols := aj.Columns
	if len(cols) == 0 && len(aj.ColumnsByID) > 0 {
		cols = make([]columnJSON, 0, len(aj.ColumnsByID))
		for _, cj := range aj.ColumnsByID {
			cols = append(cols, cj)
		}
	}

	for _, cj := range cols {
		if cj.Value == nil {
			if _, err := a.RestoreColumn(nil, cj.ID, cj.Meta); err != nil {
				return nil, fmt.Errorf("axis %q: %w", aj.Name, err)
			}
			continue
		}
		v, err := unmarshalValue(aj.Type, *cj.Value)
		if err != nil {
			return nil, fmt.Errorf("axis %q column %d: %w", aj.Name, cj.ID, err)
		}
		if _, err := a.RestoreColumn(&v, cj.ID, cj.Meta); err != nil {
			return nil, fmt.Errorf("axis %q: %w", aj.Name, err)
		}
	}
	return a, nil
}

// valueJSON is the wire envelope for a single axis column value: a type
// tag plus exactly one populated payload field, selected by Type.
type valueJSON struct {
	Type       value.Type      `json:"type"`
	Scalar     json.RawMessage `json:"scalar,omitempty"`
	Expression *expressionJSON `json:"expression,omitempty"`
	Comparable *comparableJSON `json:"comparable,omitempty"`
}

type expressionJSON struct {
	Cmd       string `json:"cmd,omitempty"`
	URL       string `json:"url,omitempty"`
	Cacheable bool   `json:"cacheable,omitempty"`
}

// comparableJSON covers the structured shapes a TypeComparable value may
// hold: Range and RangeSet (SET/RANGE axes) or LatLon/Point3D/Date
// (NEAREST axes).
type comparableJSON struct {
	Kind     string            `json:"kind"`
	Range    *rangeJSON        `json:"range,omitempty"`
	Elements []rangeSetElemJSON `json:"elements,omitempty"`
	LatLon   *value.LatLon     `json:"latlon,omitempty"`
	Point3D  *value.Point3D    `json:"point3d,omitempty"`
	Date     *time.Time        `json:"date,omitempty"`
}

type rangeJSON struct {
	Low  valueJSON `json:"low"`
	High valueJSON `json:"high"`
}

type rangeSetElemJSON struct {
	IsRange bool       `json:"isRange"`
	Point   *valueJSON `json:"point,omitempty"`
	Range   *rangeJSON `json:"range,omitempty"`
}

func marshalValue(v value.Value) (valueJSON, error) {
	vj := valueJSON{Type: v.Type}
	switch v.Type {
	case value.TypeString:
		raw, _ := json.Marshal(v.AsString())
		vj.Scalar = raw
	case value.TypeLong:
		raw, _ := json.Marshal(v.AsLong())
		vj.Scalar = raw
	case value.TypeDouble:
		raw, _ := json.Marshal(v.AsDouble())
		vj.Scalar = raw
	case value.TypeBigDecimal:
		d := v.AsBigDecimal()
		s := "0"
		if d != nil {
			s = d.RatString()
		}
		raw, _ := json.Marshal(s)
		vj.Scalar = raw
	case value.TypeDate:
		raw, _ := json.Marshal(v.AsDate().Format(time.RFC3339Nano))
		vj.Scalar = raw
	case value.TypeExpression:
		e := v.AsExpression()
		if e != nil {
			vj.Expression = &expressionJSON{Cmd: e.Cmd, URL: e.URL, Cacheable: e.Cacheable}
		}
	case value.TypeComparable:
		cj, err := marshalComparable(v.AsComparable())
		if err != nil {
			return valueJSON{}, err
		}
		vj.Comparable = cj
	default:
		return valueJSON{}, fmt.Errorf("unknown value type %s", v.Type)
	}
	return vj, nil
}

func marshalComparable(cmp any) (*comparableJSON, error) {
	switch c := cmp.(type) {
	case value.Range:
		low, err := marshalValue(c.Low)
		if err != nil {
			return nil, err
		}
		high, err := marshalValue(c.High)
		if err != nil {
			return nil, err
		}
		return &comparableJSON{Kind: "range", Range: &rangeJSON{Low: low, High: high}}, nil
	case value.RangeSet:
		elems := make([]rangeSetElemJSON, 0, len(c.Elements))
		for _, e := range c.Elements {
			if e.IsRange {
				low, err := marshalValue(e.Range.Low)
				if err != nil {
					return nil, err
				}
				high, err := marshalValue(e.Range.High)
				if err != nil {
					return nil, err
				}
				elems = append(elems, rangeSetElemJSON{IsRange: true, Range: &rangeJSON{Low: low, High: high}})
				continue
			}
			pv, err := marshalValue(e.Point)
			if err != nil {
				return nil, err
			}
			elems = append(elems, rangeSetElemJSON{Point: &pv})
		}
		return &comparableJSON{Kind: "rangeset", Elements: elems}, nil
	case value.LatLon:
		cc := c
		return &comparableJSON{Kind: "latlon", LatLon: &cc}, nil
	case value.Point3D:
		cc := c
		return &comparableJSON{Kind: "point3d", Point3D: &cc}, nil
	case time.Time:
		cc := c
		return &comparableJSON{Kind: "date", Date: &cc}, nil
	default:
		return nil, fmt.Errorf("unsupported COMPARABLE value for JSON encoding: %T", cmp)
	}
}

// unmarshalValue decodes a valueJSON envelope. The envelope's own Type tag
// (and, for COMPARABLE payloads, its Kind) selects the decoding; axisType
// is not consulted.
func unmarshalValue(axisType value.AxisType, vj valueJSON) (value.Value, error) {
	switch vj.Type {
	case value.TypeString:
		var s string
		if err := json.Unmarshal(vj.Scalar, &s); err != nil {
			return value.Value{}, err
		}
		return value.String(s), nil
	case value.TypeLong:
		var n int64
		if err := json.Unmarshal(vj.Scalar, &n); err != nil {
			return value.Value{}, err
		}
		return value.Long(n), nil
	case value.TypeDouble:
		var f float64
		if err := json.Unmarshal(vj.Scalar, &f); err != nil {
			return value.Value{}, err
		}
		return value.Double(f), nil
	case value.TypeBigDecimal:
		var s string
		if err := json.Unmarshal(vj.Scalar, &s); err != nil {
			return value.Value{}, err
		}
		r, ok := new(big.Rat).SetString(s)
		if !ok {
			return value.Value{}, fmt.Errorf("invalid BIG_DECIMAL literal %q", s)
		}
		return value.BigDecimal(r), nil
	case value.TypeDate:
		var s string
		if err := json.Unmarshal(vj.Scalar, &s); err != nil {
			return value.Value{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return value.Value{}, err
		}
		return value.Date(t), nil
	case value.TypeExpression:
		if vj.Expression == nil {
			return value.Expr(&value.Expression{}), nil
		}
		return value.Expr(&value.Expression{Cmd: vj.Expression.Cmd, URL: vj.Expression.URL, Cacheable: vj.Expression.Cacheable}), nil
	case value.TypeComparable:
		if vj.Comparable == nil {
			return value.Value{}, ncerr.NewIllegalArgument("cube", "", "missing comparable payload")
		}
		cmp, err := unmarshalComparable(*vj.Comparable)
		if err != nil {
			return value.Value{}, err
		}
		return value.Comparable(cmp), nil
	default:
		return value.Value{}, fmt.Errorf("unknown value type %s", vj.Type)
	}
}

func unmarshalComparable(cj comparableJSON) (any, error) {
	switch cj.Kind {
	case "range":
		if cj.Range == nil {
			return nil, fmt.Errorf("range comparable missing range payload")
		}
		low, err := unmarshalValue(value.AxisRange, cj.Range.Low)
		if err != nil {
			return nil, err
		}
		high, err := unmarshalValue(value.AxisRange, cj.Range.High)
		if err != nil {
			return nil, err
		}
		r, err := value.NewRange(low, high)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "rangeset":
		rs := value.RangeSet{}
		for _, e := range cj.Elements {
			if e.IsRange {
				if e.Range == nil {
					return nil, fmt.Errorf("rangeset element missing range payload")
				}
				low, err := unmarshalValue(value.AxisSet, e.Range.Low)
				if err != nil {
					return nil, err
				}
				high, err := unmarshalValue(value.AxisSet, e.Range.High)
				if err != nil {
					return nil, err
				}
				r, err := value.NewRange(low, high)
				if err != nil {
					return nil, err
				}
				rs.Elements = append(rs.Elements, value.RangeElement(r))
				continue
			}
			if e.Point == nil {
				return nil, fmt.Errorf("rangeset element missing point payload")
			}
			pv, err := unmarshalValue(value.AxisSet, *e.Point)
			if err != nil {
				return nil, err
			}
			rs.Elements = append(rs.Elements, value.PointElement(pv))
		}
		return rs, nil
	case "latlon":
		if cj.LatLon == nil {
			return nil, fmt.Errorf("latlon comparable missing payload")
		}
		return *cj.LatLon, nil
	case "point3d":
		if cj.Point3D == nil {
			return nil, fmt.Errorf("point3d comparable missing payload")
		}
		return *cj.Point3D, nil
	case "date":
		if cj.Date == nil {
			return nil, fmt.Errorf("date comparable missing payload")
		}
		return *cj.Date, nil
	default:
		return nil, fmt.Errorf("unknown comparable kind %q", cj.Kind)
	}
}
