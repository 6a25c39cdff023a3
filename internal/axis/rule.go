package axis

import (
	"strings"

	"ncube/internal/ncerr"
)

// GetRuleColumnsStartingAt returns the ordered tail of this RULE axis's
// columns beginning with the column named start, per spec §4.2; the
// default column, when present, is the last column of that tail. An empty
// start returns the full ordered list. A name that does not exist:
//   - with a default column present, returns just the default column
//   - otherwise fails with CoordinateNotFound
func (a *Axis) GetRuleColumnsStartingAt(start string) ([]*Column, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cols := a.columns
	if start == "" {
		return append([]*Column(nil), cols...), nil
	}

	key := strings.ToLower(start)
	idx := -1
	for i, c := range cols {
		if c.IsDefault() {
			continue
		}
		if strings.ToLower(ruleName(c)) == key {
			idx = i
			break
		}
	}
	if idx == -1 {
		if a.defaultColumn != nil {
			return []*Column{a.defaultColumn}, nil
		}
		return nil, &ncerr.CoordinateNotFound{AxisName: a.name, Value: start}
	}
	return append([]*Column(nil), cols[idx:]...), nil
}
