package cube

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"ncube/internal/axis"
	"ncube/internal/ncerr"
)

// Cube is a named set of axes plus a sparse cell map, keyed by the
// combination of column ids one binding produces (spec §3).
type Cube struct {
	mu sync.RWMutex

	Name  string
	AppID ApplicationID

	axes       []*axis.Axis
	axisByName map[string]*axis.Axis

	cells            map[string]any
	defaultCellValue any
	hasDefaultCell   bool

	metaProperties map[string]any
}

// New constructs an empty cube bound to appID.
func New(name string, appID ApplicationID) *Cube {
	return &Cube{
		Name:           name,
		AppID:          appID,
		axisByName:     map[string]*axis.Axis{},
		cells:          map[string]any{},
		metaProperties: map[string]any{},
	}
}

// AddAxis appends a to the cube's ordered axis list. Axis names are unique
// case-insensitively within a cube.
func (c *Cube) AddAxis(a *axis.Axis) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(a.Name())
	if _, exists := c.axisByName[key]; exists {
		return ncerr.NewIllegalArgument("cube", c.Name, "duplicate axis name: "+a.Name())
	}
	c.axes = append(c.axes, a)
	c.axisByName[key] = a
	return nil
}

// Axes returns the cube's axes in declaration order.
func (c *Cube) Axes() []*axis.Axis {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*axis.Axis, len(c.axes))
	copy(out, c.axes)
	return out
}

// GetAxis looks up an axis by name, case-insensitively.
func (c *Cube) GetAxis(name string) (*axis.Axis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.axisByName[strings.ToLower(name)]
	return a, ok
}

// ReplaceAxis swaps in a freshly-resolved axis of the same name (used by
// the registry after re-resolving a reference axis against its current
// source). The replacement must carry the same name as the axis it
// replaces.
func (c *Cube) ReplaceAxis(a *axis.Axis) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(a.Name())
	if _, exists := c.axisByName[key]; !exists {
		return ncerr.NewIllegalArgument("cube", c.Name, "no existing axis named "+a.Name()+" to replace")
	}
	for i, existing := range c.axes {
		if strings.ToLower(existing.Name()) == key {
			c.axes[i] = a
			break
		}
	}
	c.axisByName[key] = a
	return nil
}

// SetDefaultCellValue sets the cube-wide fallback returned when a bound
// coordinate has no explicit cell.
func (c *Cube) SetDefaultCellValue(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultCellValue = v
	c.hasDefaultCell = true
}

// DefaultCellValue returns the cube's default cell value and whether one
// was set.
func (c *Cube) DefaultCellValue() (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultCellValue, c.hasDefaultCell
}

// MetaProperty looks up a cube meta-property case-insensitively.
func (c *Cube) MetaProperty(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.metaProperties[strings.ToLower(key)]
	return v, ok
}

// SetMetaProperty sets a cube meta-property, canonicalized to lower-case.
func (c *Cube) SetMetaProperty(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metaProperties[strings.ToLower(key)] = v
}

// MetaProperties returns a copy of the cube's meta-property map.
func (c *Cube) MetaProperties() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metaProperties))
	for k, v := range c.metaProperties {
		out[k] = v
	}
	return out
}

// cellKey is the Cube's unordered set of (axis, columnID) bindings,
// canonicalized into a single string: spec's "ColumnIdSet ... stored
// hashed". Axes are sorted by name so the key is independent of axis
// declaration order.
type cellKey struct {
	axisName string
	colID    int64
}

func makeCellKey(bindings map[string]int64) string {
	keys := make([]cellKey, 0, len(bindings))
	for name, id := range bindings {
		keys = append(keys, cellKey{axisName: name, colID: id})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].axisName < keys[j].axisName })
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(k.axisName)
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(k.colID, 10))
	}
	return sb.String()
}

// SetCellByColumns stores a value keyed directly by one column id per axis
// name, bypassing coordinate binding. Used by loaders (JSON import) and by
// GetOrCreateCell-style callers that already resolved columns.
func (c *Cube) SetCellByColumns(bindings map[string]int64, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells[makeCellKey(bindings)] = v
}

// CellCount reports the number of explicit (non-default) cells.
func (c *Cube) CellCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cells)
}
