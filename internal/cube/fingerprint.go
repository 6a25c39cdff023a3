package cube

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"ncube/internal/axis"
)

// Fingerprint returns the cube's SHA-1 content hash, hex-encoded. The hash
// is a pure function of axis names/types/valueset/default-flag and cell
// contents: it is stable across axis rename case changes, re-insertion of
// SORTED columns in a different order, and meta-property map iteration
// order, but changes whenever a cell value, an axis's value set, its
// default flag, or its type changes (spec §3, §8).
func (c *Cube) Fingerprint() string {
	c.mu.RLock()
	axes := append([]*axis.Axis(nil), c.axes...)
	cells := make(map[string]any, len(c.cells))
	for k, v := range c.cells {
		cells[k] = v
	}
	defVal, hasDef := c.defaultCellValue, c.hasDefaultCell
	c.mu.RUnlock()

	h := sha1.New()

	axisLines := make([]string, 0, len(axes))
	for _, a := range axes {
		axisLines = append(axisLines, fingerprintAxis(a))
	}
	sort.Strings(axisLines)
	for _, line := range axisLines {
		fmt.Fprintln(h, line)
	}

	// Cell keys name column ids, which depend on insertion order; hash each
	// binding by its column's value (or rule name) instead.
	colLabels := map[string]string{}
	for _, a := range axes {
		for _, col := range a.Columns() {
			label := "default"
			if !col.IsDefault() {
				name, _ := col.MetaProperty("name")
				label = fmt.Sprintf("%v:%s", name, col.Value.Render())
			}
			colLabels[fmt.Sprintf("%s:%d", a.NameLower(), col.ID)] = a.NameLower() + ":" + label
		}
	}
	cellLines := make([]string, 0, len(cells))
	for k, v := range cells {
		parts := strings.Split(k, "|")
		for i, p := range parts {
			if label, ok := colLabels[p]; ok {
				parts[i] = label
			}
		}
		cellLines = append(cellLines, fmt.Sprintf("%s=%v", strings.Join(parts, "|"), v))
	}
	sort.Strings(cellLines)
	for _, line := range cellLines {
		fmt.Fprintln(h, line)
	}

	if hasDef {
		fmt.Fprintf(h, "default=%v\n", defVal)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// fingerprintAxis renders an axis's name, type, value type, default flag,
// and value set into a canonical, order-independent line. Column
// DisplayOrder is deliberately excluded: reordering a SORTED axis's
// insertions, or renaming an axis to a different case, must not change the
// fingerprint.
func fingerprintAxis(a *axis.Axis) string {
	cols := a.Columns()
	rendered := make([]string, 0, len(cols))
	for _, col := range cols {
		if col.IsDefault() {
			continue
		}
		name, _ := col.MetaProperty("name")
		var v string
		if col.Value != nil {
			v = col.Value.Render()
		}
		rendered = append(rendered, fmt.Sprintf("%v:%s", name, v))
	}
	sort.Strings(rendered)

	return fmt.Sprintf("%s|%s|%s|%s|%v|[%s]",
		a.NameLower(), a.Type, a.ValueType, a.Order, a.HasDefault(), strings.Join(rendered, ","))
}
