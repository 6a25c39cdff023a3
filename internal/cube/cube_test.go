package cube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncube/internal/axis"
	"ncube/internal/value"
)

func sampleAppID() ApplicationID {
	return ApplicationID{Tenant: "acme", App: "pricing", Version: "1.0.0", Status: StatusSnapshot, Branch: "HEAD"}
}

func buildDiscreteCube(t *testing.T) *Cube {
	t.Helper()
	c := New("discount", sampleAppID())

	state, err := axis.New(1, "state", value.AxisDiscrete, value.TypeString, axis.Sorted, true)
	require.NoError(t, err)
	_, err = state.AddColumn(value.String("CA"))
	require.NoError(t, err)
	_, err = state.AddColumn(value.String("NY"))
	require.NoError(t, err)
	require.NoError(t, c.AddAxis(state))

	tier, err := axis.New(2, "tier", value.AxisDiscrete, value.TypeLong, axis.Sorted, false)
	require.NoError(t, err)
	_, err = tier.AddColumn(value.Long(1))
	require.NoError(t, err)
	_, err = tier.AddColumn(value.Long(2))
	require.NoError(t, err)
	require.NoError(t, c.AddAxis(tier))

	require.NoError(t, c.SetCell(map[string]any{"state": "CA", "tier": int64(1)}, 0.10))
	require.NoError(t, c.SetCell(map[string]any{"state": "NY", "tier": int64(2)}, 0.25))
	c.SetDefaultCellValue(0.0)
	return c
}

func TestGetCellBindsAndFallsBackToDefault(t *testing.T) {
	c := buildDiscreteCube(t)

	v, info, err := c.GetCell(map[string]any{"state": "CA", "tier": int64(1)}, nil, "")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Equal(t, 0.10, v)

	// "TX" has no column on the state axis, so it binds to that axis's default
	// column; no cell is stored there, so the cube's default value comes back.
	v, _, err = c.GetCell(map[string]any{"state": "TX", "tier": int64(2)}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestGetCellCoordinateNotFoundWithoutDefault(t *testing.T) {
	c := buildDiscreteCube(t)
	_, _, err := c.GetCell(map[string]any{"state": "CA"}, nil, "")
	require.Error(t, err)
}

type alwaysTrueEvaluator struct{ onlyCmd string }

func (e alwaysTrueEvaluator) Evaluate(expr *value.Expression, ctx map[string]any) (bool, error) {
	if e.onlyCmd == "" {
		return true, nil
	}
	return expr != nil && expr.Cmd == e.onlyCmd, nil
}

func buildRuleCube(t *testing.T) *Cube {
	t.Helper()
	c := New("workflow", sampleAppID())
	rule, err := axis.New(1, "step", value.AxisRule, value.TypeExpression, axis.Display, false)
	require.NoError(t, err)
	for _, name := range []string{"init", "validate", "finalize"} {
		_, err := rule.AddRuleColumn(name, value.Expr(&value.Expression{Cmd: name}))
		require.NoError(t, err)
	}
	require.NoError(t, c.AddAxis(rule))
	return c
}

func TestGetCellRuleAxisFiresMatchingColumns(t *testing.T) {
	c := buildRuleCube(t)

	cols := c.Axes()[0].Columns()
	for _, col := range cols {
		require.NoError(t, c.SetCell(map[string]any{"step": ruleColumnName(col)}, ruleColumnName(col)+"-result"))
	}

	_, info, err := c.GetCell(map[string]any{}, alwaysTrueEvaluator{onlyCmd: "validate"}, "")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Contains(t, info.Fired["step"], "validate")
	assert.NotContains(t, info.Fired["step"], "init")
	assert.Equal(t, "validate-result", info.Results["validate"])
}

func TestGetCellRuleAxisWithoutEvaluatorFails(t *testing.T) {
	c := buildRuleCube(t)
	_, _, err := c.GetCell(map[string]any{}, nil, "")
	require.Error(t, err)
}

func TestFingerprintStableAcrossRenameCaseAndInsertionOrder(t *testing.T) {
	build := func(axisName, state1, state2 string) *Cube {
		c := New("discount", sampleAppID())
		a, err := axis.New(1, axisName, value.AxisDiscrete, value.TypeString, axis.Sorted, false)
		require.NoError(t, err)
		_, err = a.AddColumn(value.String(state1))
		require.NoError(t, err)
		_, err = a.AddColumn(value.String(state2))
		require.NoError(t, err)
		require.NoError(t, c.AddAxis(a))
		require.NoError(t, c.SetCell(map[string]any{"state": "CA"}, 1))
		require.NoError(t, c.SetCell(map[string]any{"state": "NY"}, 2))
		return c
	}

	c1 := build("STATE", "CA", "NY")
	c2 := build("state", "NY", "CA") // same cells, axis name in another case, reversed insertion into a SORTED axis

	assert.Equal(t, c1.Fingerprint(), c2.Fingerprint())
}

func TestFingerprintChangesWithCellValue(t *testing.T) {
	c := buildDiscreteCube(t)
	before := c.Fingerprint()
	require.NoError(t, c.SetCell(map[string]any{"state": "CA", "tier": int64(1)}, 0.50))
	assert.NotEqual(t, before, c.Fingerprint())
}

func TestJSONRoundTripBothEncodings(t *testing.T) {
	c := buildDiscreteCube(t)

	for _, indexFormat := range []bool{false, true} {
		data, err := c.ToJSON(indexFormat)
		require.NoError(t, err)

		restored, err := FromJSON(data)
		require.NoError(t, err)

		assert.Equal(t, c.Fingerprint(), restored.Fingerprint())
		assert.Equal(t, c.CellCount(), restored.CellCount())

		v, _, err := restored.GetCell(map[string]any{"state": "NY", "tier": int64(2)}, nil, "")
		require.NoError(t, err)
		assert.Equal(t, 0.25, v)
	}
}

func TestJSONRoundTripPreservesColumnIDs(t *testing.T) {
	c := buildDiscreteCube(t)
	data, err := c.ToJSON(false)
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	origAxis, _ := c.GetAxis("state")
	restoredAxis, _ := restored.GetAxis("state")
	for i, col := range origAxis.Columns() {
		assert.Equal(t, col.ID, restoredAxis.Columns()[i].ID)
	}
}
