package cube

import (
	"sort"
	"strings"
	"time"

	"ncube/internal/axis"
	"ncube/internal/ncerr"
	"ncube/internal/value"
)

// ExpressionEvaluator is the external port (spec §1, §6) that runs a RULE
// axis column's expression against a lookup context and reports whether it
// fired. Expression-language semantics are out of scope for this module;
// only this interface is specified.
type ExpressionEvaluator interface {
	Evaluate(expr *value.Expression, ctx map[string]any) (bool, error)
}

// RuleInfo records, for a lookup that touched one or more RULE axes, which
// columns were evaluated and which fired, and the cell value produced by
// each firing combination. GetCell returns it alongside the cell value.
type RuleInfo struct {
	Evaluated map[string][]string
	Fired     map[string][]string
	Results   map[string]any
}

func newRuleInfo() *RuleInfo {
	return &RuleInfo{Evaluated: map[string][]string{}, Fired: map[string][]string{}, Results: map[string]any{}}
}

// CoerceCoordinateValue converts a raw coordinate value (typically a
// string from an HTTP/CLI boundary, but natively-typed Go values are also
// accepted) into the value.Value shape axis a expects.
func CoerceCoordinateValue(a *axis.Axis, raw any) (value.Value, error) {
	switch v := raw.(type) {
	case value.Value:
		return v, nil
	case string:
		return a.ParseValue(v)
	case int:
		return value.Long(int64(v)), nil
	case int64:
		return value.Long(v), nil
	case float64:
		if a.ValueType == value.TypeDouble {
			return value.Double(v), nil
		}
		return value.Long(int64(v)), nil
	case time.Time:
		if a.Type == value.AxisNearest {
			return value.Comparable(v), nil
		}
		return value.Date(v), nil
	case value.LatLon, value.Point3D, value.Range, value.RangeSet:
		return value.Comparable(v), nil
	default:
		return value.Value{}, ncerr.NewIllegalArgument("cube", "", "unsupported coordinate value type")
	}
}

func normalizeCoord(coord map[string]any) map[string]any {
	out := make(map[string]any, len(coord))
	for k, v := range coord {
		out[strings.ToLower(k)] = v
	}
	return out
}

// SetCell binds coord through every axis and stores v at the resulting
// column-id-set key.
func (c *Cube) SetCell(coord map[string]any, v any) error {
	c.mu.RLock()
	axes := append([]*axis.Axis(nil), c.axes...)
	c.mu.RUnlock()

	norm := normalizeCoord(coord)
	bindings := map[string]int64{}
	for _, a := range axes {
		col, err := bindAxis(a, norm)
		if err != nil {
			return err
		}
		bindings[a.NameLower()] = col.ID
	}
	c.SetCellByColumns(bindings, v)
	return nil
}

func bindAxis(a *axis.Axis, norm map[string]any) (*axis.Column, error) {
	raw, present := norm[a.NameLower()]
	if !present {
		if a.HasDefault() {
			return a.DefaultColumn(), nil
		}
		return nil, &ncerr.CoordinateNotFound{AxisName: a.Name()}
	}
	v, err := CoerceCoordinateValue(a, raw)
	if err != nil {
		return nil, err
	}
	col, err := a.FindColumn(v)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, &ncerr.CoordinateNotFound{AxisName: a.Name(), Value: v.Render()}
	}
	return col, nil
}

// GetCell resolves coord against the cube's axes, per spec §4.4. evaluator
// and ruleStart are only consulted when the cube has one or more RULE
// axes; ruleStart names the rule column GetRuleColumnsStartingAt begins
// from (empty means start from the first rule). The returned RuleInfo is
// nil unless the cube has a RULE axis.
func (c *Cube) GetCell(coord map[string]any, evaluator ExpressionEvaluator, ruleStart string) (any, *RuleInfo, error) {
	c.mu.RLock()
	axes := append([]*axis.Axis(nil), c.axes...)
	defCell, hasDef := c.defaultCellValue, c.hasDefaultCell
	c.mu.RUnlock()

	norm := normalizeCoord(coord)

	bindings := map[string]int64{}
	var ruleAxes []*axis.Axis
	for _, a := range axes {
		if a.Type == value.AxisRule {
			ruleAxes = append(ruleAxes, a)
			continue
		}
		col, err := bindAxis(a, norm)
		if err != nil {
			return nil, nil, err
		}
		bindings[a.NameLower()] = col.ID
	}

	if len(ruleAxes) == 0 {
		v, ok := c.lookupCell(bindings)
		if ok {
			return v, nil, nil
		}
		if hasDef {
			return defCell, nil, nil
		}
		return nil, nil, nil
	}

	if evaluator == nil {
		return nil, nil, ncerr.NewIllegalState("cube %q: RULE axis lookup requires an ExpressionEvaluator", c.Name)
	}

	info := newRuleInfo()
	combos, err := c.fireRuleAxes(ruleAxes, 0, bindings, norm, evaluator, ruleStart, info)
	if err != nil {
		return nil, info, err
	}

	var single any
	for key, combo := range combos {
		v, ok := c.lookupCell(combo)
		if !ok {
			if hasDef {
				v = defCell
			} else {
				continue
			}
		}
		info.Results[key] = v
		single = v
	}
	if len(info.Results) == 1 {
		return single, info, nil
	}
	return nil, info, nil
}

func (c *Cube) lookupCell(bindings map[string]int64) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cells[makeCellKey(bindings)]
	return v, ok
}

// fireRuleAxes recursively builds every combination of truthy rule columns
// across ruleAxes[idx:], recording evaluation/firing in info, and returns
// a map of combo-key -> full column-id binding set (base plus the rule
// columns chosen for that combination).
func (c *Cube) fireRuleAxes(ruleAxes []*axis.Axis, idx int, base map[string]int64, ctx map[string]any, evaluator ExpressionEvaluator, ruleStart string, info *RuleInfo) (map[string]map[string]int64, error) {
	if idx == len(ruleAxes) {
		return map[string]map[string]int64{"": cloneBindings(base)}, nil
	}

	a := ruleAxes[idx]
	candidates, err := a.GetRuleColumnsStartingAt(ruleStart)
	if err != nil {
		return nil, err
	}

	var fired []*axis.Column
	var evaluated []string
	var firedNames []string
	for _, col := range candidates {
		if col.IsDefault() {
			fired = append(fired, col)
			continue
		}
		name := ruleColumnName(col)
		evaluated = append(evaluated, name)
		ok, err := evaluator.Evaluate(col.Value.AsExpression(), ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			fired = append(fired, col)
			firedNames = append(firedNames, name)
		}
	}
	info.Evaluated[a.Name()] = append(info.Evaluated[a.Name()], evaluated...)
	info.Fired[a.Name()] = append(info.Fired[a.Name()], firedNames...)

	rest, err := c.fireRuleAxes(ruleAxes, idx+1, base, ctx, evaluator, ruleStart, info)
	if err != nil {
		return nil, err
	}

	out := map[string]map[string]int64{}
	for _, col := range fired {
		name := ruleColumnName(col)
		for restKey, restBindings := range rest {
			b := cloneBindings(restBindings)
			b[a.NameLower()] = col.ID
			key := name
			if restKey != "" {
				key = key + "," + restKey
			}
			out[key] = b
		}
	}
	return out, nil
}

func ruleColumnName(col *axis.Column) string {
	if col.MetaProperties == nil {
		return ""
	}
	n, _ := col.MetaProperties["name"].(string)
	return n
}

func cloneBindings(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// sortedAxisNames returns the cube's lower-cased axis names in sorted
// order, independent of declaration order.
func (c *Cube) sortedAxisNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.axes))
	for _, a := range c.axes {
		names = append(names, a.NameLower())
	}
	sort.Strings(names)
	return names
}
