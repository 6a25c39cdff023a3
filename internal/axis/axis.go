// Package axis implements the typed column axis: ordering, overlap
// detection, and coordinate-to-column binding described in spec §3-§4.2.
// Dispatch on AxisType is a per-type behavior table (addColumn/findColumn
// implementations keyed by value.AxisType), not a class hierarchy, per the
// design note in spec §9.
package axis

import (
	"sort"
	"strings"
	"sync"

	"ncube/internal/ncerr"
	"ncube/internal/value"
)

// Order controls how non-default columns sort: by natural value order
// (SORTED) or by insertion/explicit DisplayOrder (DISPLAY). RULE axes are
// always DISPLAY; the SORTED flag is silently upgraded, per spec §3.
type Order string

const (
	Sorted  Order = "SORTED"
	Display Order = "DISPLAY"
)

// Axis is a named, typed dimension of a cube: an ordered set of columns
// plus the indexing structure appropriate to its Type.
type Axis struct {
	mu sync.RWMutex

	id        int64
	name      string
	nameLower string

	Type      value.AxisType
	ValueType value.Type
	Order     Order

	hasDefault    bool
	defaultColumn *Column
	columns       []*Column
	nextSeq       int64

	metaProperties map[string]any

	reference *RefSpec

	discreteIndex map[string]*Column
	rangeIndex    []*rangeEntry
	setIndex      []*rangeEntry
	setPoints     map[string]*Column
	nearestList   []*Column
}

type rangeEntry struct {
	Range  value.Range
	Column *Column
}

// New constructs an empty axis of the given name/type/valueType/order.
// NEAREST axes must not have a default column (spec §3); RULE axes are
// forced to DISPLAY order and EXPRESSION value type (spec §3, §9).
func New(id int64, name string, axisType value.AxisType, valueType value.Type, order Order, hasDefault bool) (*Axis, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ncerr.NewIllegalArgument("axis", name, "axis name must not be empty")
	}
	if axisType == value.AxisRule {
		order = Display
		valueType = value.TypeExpression
	}
	if axisType == value.AxisNearest && hasDefault {
		return nil, ncerr.NewIllegalArgument("axis", name, "NEAREST axes must not have a default column")
	}

	a := &Axis{
		id:            id,
		name:          name,
		nameLower:     strings.ToLower(name),
		Type:          axisType,
		ValueType:     valueType,
		Order:         order,
		hasDefault:    hasDefault,
		metaProperties: map[string]any{},
		discreteIndex: map[string]*Column{},
		setPoints:     map[string]*Column{},
	}
	if hasDefault {
		col := &Column{ID: a.allocID(), DisplayOrder: MaxDisplayOrder, MetaProperties: map[string]any{}}
		a.defaultColumn = col
		a.columns = append(a.columns, col)
	}
	return a, nil
}

// ID returns the axis's id, the high bits of every column id it mints.
func (a *Axis) ID() int64 { return a.id }

// Name returns the axis's display-case name.
func (a *Axis) Name() string { return a.name }

// NameLower returns the canonicalized (lower-case) name used for
// case-insensitive axis lookup, per spec §9.
func (a *Axis) NameLower() string { return a.nameLower }

// HasDefault reports whether this axis carries a default column.
func (a *Axis) HasDefault() bool { return a.hasDefault }

// Reference returns the axis's RefSpec, or nil if this is an ordinary axis.
func (a *Axis) Reference() *RefSpec { return a.reference }

// SetReference marks this axis as a reference axis backed by spec. Callers
// (package refaxis) must also populate columns via RestoreColumn.
func (a *Axis) SetReference(spec RefSpec) { a.reference = &spec }

// IsReference reports whether this axis's columns are borrowed from
// another cube's axis.
func (a *Axis) IsReference() bool { return a.reference != nil }

func (a *Axis) allocID() int64 {
	a.nextSeq++
	return encodeColumnID(a.id, a.nextSeq)
}

// MetaProperty looks up an axis meta-property case-insensitively, per
// spec §9.
func (a *Axis) MetaProperty(key string) (any, bool) {
	v, ok := a.metaProperties[strings.ToLower(key)]
	return v, ok
}

// SetMetaProperty sets an axis meta-property, canonicalizing the key to
// lower-case for lookup while the caller's original case is discarded —
// matching spec §9's "store canonicalized keys" guidance.
func (a *Axis) SetMetaProperty(key string, val any) {
	a.metaProperties[strings.ToLower(key)] = val
}

// MetaProperties returns a copy of the axis's meta-property map.
func (a *Axis) MetaProperties() map[string]any {
	out := make(map[string]any, len(a.metaProperties))
	for k, v := range a.metaProperties {
		out[k] = v
	}
	return out
}

// Columns returns the axis's columns in display order (the order they
// should render/serialize in), default column always last.
func (a *Axis) Columns() []*Column {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Column, len(a.columns))
	copy(out, a.columns)
	return out
}

// DefaultColumn returns the axis's default column, or nil if it has none.
func (a *Axis) DefaultColumn() *Column { return a.defaultColumn }

// AddColumn validates, overlap-checks, and inserts v as a new column,
// returning the minted Column. See spec §4.2.
func (a *Axis) AddColumn(v value.Value) (*Column, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addColumnLocked(v, nil)
}

// AddRuleColumn adds a named column to a RULE axis. RULE axes are keyed by
// column name (stored as the "name" meta-property), not by the expression
// value itself, per spec §4.2's GetRuleColumnsStartingAt contract.
func (a *Axis) AddRuleColumn(name string, v value.Value) (*Column, error) {
	if a.Type != value.AxisRule {
		return nil, ncerr.NewIllegalArgument("axis", a.name, "AddRuleColumn is only valid on RULE axes")
	}
	if strings.TrimSpace(name) == "" {
		return nil, ncerr.NewIllegalArgument("axis", a.name, "RULE column requires a non-empty name")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addColumnLocked(v, map[string]any{"name": name})
}

// AddDefaultColumn adds the axis's single default (catch-all) column. It is
// an error to call this twice, or on a NEAREST axis.
func (a *Axis) AddDefaultColumn() (*Column, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Type == value.AxisNearest {
		return nil, ncerr.NewIllegalArgument("axis", a.name, "NEAREST axes must not have a default column")
	}
	if a.hasDefault {
		return nil, ncerr.NewIllegalArgument("axis", a.name, "axis already has a default column")
	}
	col := &Column{ID: a.allocID(), DisplayOrder: MaxDisplayOrder, MetaProperties: map[string]any{}}
	a.defaultColumn = col
	a.hasDefault = true
	a.columns = append(a.columns, col)
	a.reorderLocked()
	return col, nil
}

// RestoreColumn reconstructs a column carrying an explicit id instead of
// minting a new one via allocID, and bumps the axis's sequence counter past
// it. It is only valid during deserialization, before any allocID-based
// addition has run. A nil v restores the axis's default column.
func (a *Axis) RestoreColumn(v *value.Value, id int64, meta map[string]any) (*Column, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if seq := id & 0xFFFFFFFFFFFF; seq >= a.nextSeq {
		a.nextSeq = seq + 1
	}

	if v == nil {
		col := &Column{ID: id, DisplayOrder: MaxDisplayOrder, MetaProperties: meta}
		a.defaultColumn = col
		a.hasDefault = true
		a.columns = append(a.columns, col)
		a.reorderLocked()
		return col, nil
	}

	switch a.Type {
	case value.AxisDiscrete:
		if v.Type != a.ValueType {
			return nil, ncerr.NewIllegalArgument("axis", a.name, "column value type does not match axis value type")
		}
	case value.AxisRule:
		if v.Type != value.TypeExpression {
			return nil, ncerr.NewIllegalArgument("axis", a.name, "RULE axis columns must be EXPRESSION values")
		}
	case value.AxisRange, value.AxisSet, value.AxisNearest:
		if v.Type != value.TypeComparable {
			return nil, ncerr.NewIllegalArgument("axis", a.name, "column value has the wrong shape for this axis type")
		}
	}

	b, ok := behaviors[a.Type]
	if !ok {
		return nil, ncerr.NewIllegalState("no behavior registered for axis type %s", a.Type)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	col := &Column{ID: id, Value: v, DisplayOrder: int32(len(a.columns)), MetaProperties: meta}
	if err := b.checkOverlap(a, col); err != nil {
		return nil, err
	}
	a.columns = append(a.columns, col)
	b.index(a, col)
	a.reorderLocked()
	return col, nil
}

func (a *Axis) addColumnLocked(v value.Value, meta map[string]any) (*Column, error) {
	switch a.Type {
	case value.AxisDiscrete:
		if v.Type != a.ValueType {
			return nil, ncerr.NewIllegalArgument("axis", a.name, "column value type does not match axis value type")
		}
	case value.AxisRule:
		if v.Type != value.TypeExpression {
			return nil, ncerr.NewIllegalArgument("axis", a.name, "RULE axis columns must be EXPRESSION values")
		}
	case value.AxisRange, value.AxisSet, value.AxisNearest:
		if v.Type != value.TypeComparable {
			return nil, ncerr.NewIllegalArgument("axis", a.name, "column value has the wrong shape for this axis type")
		}
	}

	b, ok := behaviors[a.Type]
	if !ok {
		return nil, ncerr.NewIllegalState("no behavior registered for axis type %s", a.Type)
	}

	id := a.allocID()
	if meta == nil {
		meta = map[string]any{}
	}
	col := &Column{ID: id, Value: &v, DisplayOrder: int32(len(a.columns)), MetaProperties: meta}

	if err := b.checkOverlap(a, col); err != nil {
		return nil, err
	}

	a.columns = append(a.columns, col)
	b.index(a, col)
	a.reorderLocked()
	return col, nil
}

// reorderLocked re-sorts a.columns according to a.Order, always placing the
// default column last with DisplayOrder == MaxDisplayOrder.
func (a *Axis) reorderLocked() {
	nonDefault := make([]*Column, 0, len(a.columns))
	for _, c := range a.columns {
		if !c.IsDefault() {
			nonDefault = append(nonDefault, c)
		}
	}

	if a.Order == Sorted {
		sort.SliceStable(nonDefault, func(i, j int) bool {
			c, err := columnCompare(a.Type, *nonDefault[i].Value, *nonDefault[j].Value)
			if err != nil {
				return false
			}
			return c < 0
		})
	} else {
		sort.SliceStable(nonDefault, func(i, j int) bool {
			return nonDefault[i].DisplayOrder < nonDefault[j].DisplayOrder
		})
	}

	for i, c := range nonDefault {
		c.DisplayOrder = int32(i)
	}

	out := nonDefault
	if a.defaultColumn != nil {
		a.defaultColumn.DisplayOrder = MaxDisplayOrder
		out = append(out, a.defaultColumn)
	}
	a.columns = out
}

// FindColumn binds v to the column that claims it, falling back to the
// default column if one exists, or nil if neither matches. Per spec §4.2,
// RULE axes require FindColumn's argument to be a string naming the rule;
// use GetRuleColumnsStartingAt/EvalRuleColumns for rule iteration instead.
func (a *Axis) FindColumn(v value.Value) (*Column, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := behaviors[a.Type]
	if !ok {
		return nil, ncerr.NewIllegalState("no behavior registered for axis type %s", a.Type)
	}
	col, err := b.find(a, v)
	if err != nil {
		return nil, err
	}
	if col != nil {
		return col, nil
	}
	if a.defaultColumn != nil {
		return a.defaultColumn, nil
	}
	return nil, nil
}

// FindColumnExact binds v to the column that claims it, returning nil if
// none does — unlike FindColumn, it never falls back to the default
// column. Callers that need to know whether a discrete value has already
// been declared (rather than where a lookup would land) use this.
func (a *Axis) FindColumnExact(v value.Value) (*Column, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := behaviors[a.Type]
	if !ok {
		return nil, ncerr.NewIllegalState("no behavior registered for axis type %s", a.Type)
	}
	return b.find(a, v)
}

// ParseAndFind parses token as this axis's value type (or RULE name) and
// finds the bound column in one step, as a lookup coordinate value arrives.
func (a *Axis) ParseAndFind(token string) (*Column, error) {
	v, err := a.ParseValue(token)
	if err != nil {
		return nil, err
	}
	return a.FindColumn(v)
}

// ParseValue parses a textual coordinate token per this axis's Type and
// ValueType, following the rules in spec §4.1.
func (a *Axis) ParseValue(token string) (value.Value, error) {
	switch a.Type {
	case value.AxisDiscrete, value.AxisRule:
		if a.Type == value.AxisRule {
			return value.String(token), nil
		}
		return value.ParseScalar(a.ValueType, token)
	case value.AxisRange:
		// A coordinate lookup against a RANGE axis supplies a single point,
		// not a [low, high) pair; parse it as a scalar of the range's bound type.
		return value.ParseScalar(a.ValueType, token)
	case value.AxisSet:
		return value.ParseScalar(a.ValueType, token)
	case value.AxisNearest:
		return value.ParseNearest(token)
	default:
		return value.Value{}, ncerr.NewIllegalArgument("axis", a.name, "unsupported axis type for value parsing")
	}
}
