package axis

import (
	"ncube/internal/ncerr"
	"ncube/internal/value"
)

// ColumnUpdate describes one entry of an externally edited column list
// passed to UpdateColumns. A negative ID marks an addition; a positive ID
// must name an existing column.
type ColumnUpdate struct {
	ID             int64
	Value          value.Value
	MetaProperties map[string]any
}

// UpdateColumns reconciles the axis's non-default columns against an
// externally edited list, per spec §4.2:
//   - positive ids must already exist; their value/meta are replaced
//   - negative ids are additions, minted a fresh positive id
//   - existing columns absent from updates are removed
//   - the result is re-ordered per a.Order, default column forced last
//   - any overlap aborts the whole operation, leaving the axis untouched
func (a *Axis) UpdateColumns(updates []ColumnUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing := map[int64]*Column{}
	for _, c := range a.columns {
		if !c.IsDefault() {
			existing[c.ID] = c
		}
	}

	newCols := make([]*Column, 0, len(updates))
	for _, u := range updates {
		v := u.Value
		meta := u.MetaProperties
		if meta == nil {
			meta = map[string]any{}
		}
		if pendingAdd(u.ID) {
			newCols = append(newCols, &Column{Value: &v, MetaProperties: meta})
			continue
		}
		if _, ok := existing[u.ID]; !ok {
			return ncerr.NewIllegalArgument("axis", a.name, "updateColumns: column id does not exist on this axis")
		}
		newCols = append(newCols, &Column{ID: u.ID, Value: &v, MetaProperties: meta})
	}

	for _, c := range newCols {
		if c.ID == 0 {
			c.ID = a.allocID()
		}
	}

	b, ok := behaviors[a.Type]
	if !ok {
		return ncerr.NewIllegalState("no behavior registered for axis type %s", a.Type)
	}

	tmp := &Axis{
		Type:          a.Type,
		ValueType:     a.ValueType,
		name:          a.name,
		discreteIndex: map[string]*Column{},
		setPoints:     map[string]*Column{},
	}
	for _, c := range newCols {
		if err := b.checkOverlap(tmp, c); err != nil {
			return err
		}
		b.index(tmp, c)
	}

	// Validation passed against the scratch axis; commit atomically.
	for _, c := range newCols {
		if c.ID == 0 {
			c.ID = a.allocID()
		}
	}
	if a.defaultColumn != nil {
		newCols = append(newCols, a.defaultColumn)
	}
	a.columns = newCols
	a.discreteIndex = tmp.discreteIndex
	a.rangeIndex = tmp.rangeIndex
	a.setIndex = tmp.setIndex
	a.setPoints = tmp.setPoints
	a.nearestList = tmp.nearestList
	a.reorderLocked()
	return nil
}
