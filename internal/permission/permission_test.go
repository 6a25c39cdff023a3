package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncube/internal/axis"
	"ncube/internal/cube"
	"ncube/internal/value"
)

func bootstrapAppID() cube.ApplicationID {
	return cube.ApplicationID{Tenant: "sys", App: "sys", Version: cube.BootstrapVersion, Status: cube.StatusSnapshot, Branch: cube.HeadBranch}
}

func buildUsergroupsCube(t *testing.T) *cube.Cube {
	t.Helper()
	c := cube.New("sys.usergroups", bootstrapAppID())
	a, err := axis.New(1, "user", value.AxisDiscrete, value.TypeString, axis.Display, false)
	require.NoError(t, err)
	_, err = a.AddColumn(value.String("alice"))
	require.NoError(t, err)
	require.NoError(t, c.AddAxis(a))
	require.NoError(t, c.SetCell(map[string]any{"user": "alice"}, []string{"admins"}))
	return c
}

func buildPermissionsCube(t *testing.T) *cube.Cube {
	t.Helper()
	c := cube.New("sys.permissions", bootstrapAppID())

	resource, err := axis.New(1, "resource", value.AxisDiscrete, value.TypeString, axis.Display, false)
	require.NoError(t, err)
	_, err = resource.AddColumn(value.String("acme/pricing/*"))
	require.NoError(t, err)
	require.NoError(t, c.AddAxis(resource))

	action, err := axis.New(2, "action", value.AxisDiscrete, value.TypeString, axis.Display, false)
	require.NoError(t, err)
	_, err = action.AddColumn(value.String(string(ActionUpdate)))
	require.NoError(t, err)
	require.NoError(t, c.AddAxis(action))

	require.NoError(t, c.SetCell(map[string]any{"resource": "acme/pricing/*", "action": string(ActionUpdate)}, []string{"admins"}))
	return c
}

func TestCheckPermissionsAllowsMatchingGroup(t *testing.T) {
	e := NewEngine(buildUsergroupsCube(t), buildPermissionsCube(t), nil, nil, false)
	allowed, err := e.CheckPermissions("alice", "acme/pricing/discount", ActionUpdate)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckPermissionsDeniesUnknownUser(t *testing.T) {
	e := NewEngine(buildUsergroupsCube(t), buildPermissionsCube(t), nil, nil, false)
	allowed, err := e.CheckPermissions("mallory", "acme/pricing/discount", ActionUpdate)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckPermissionsDeniesNonMatchingResource(t *testing.T) {
	e := NewEngine(buildUsergroupsCube(t), buildPermissionsCube(t), nil, nil, false)
	allowed, err := e.CheckPermissions("alice", "other/app/discount", ActionUpdate)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestBootstrapModePermitsEverything(t *testing.T) {
	e := NewEngine(nil, nil, nil, nil, true)
	allowed, err := e.CheckPermissions("anyone", "anything", ActionAdmin)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLockHolderRoundTrip(t *testing.T) {
	lockCube := cube.New("sys.lock", bootstrapAppID())
	a, err := axis.New(1, "appid", value.AxisDiscrete, value.TypeString, axis.Display, false)
	require.NoError(t, err)
	_, err = a.AddColumn(value.String("acme/pricing/1.0.0/snapshot/head"))
	require.NoError(t, err)
	require.NoError(t, lockCube.AddAxis(a))

	e := NewEngine(nil, nil, nil, lockCube, false)
	holder, err := e.LockHolder("acme/pricing/1.0.0/snapshot/head")
	require.NoError(t, err)
	assert.Empty(t, holder)

	require.NoError(t, e.SetLockHolder("acme/pricing/1.0.0/snapshot/head", "bob"))
	holder, err = e.LockHolder("acme/pricing/1.0.0/snapshot/head")
	require.NoError(t, err)
	assert.Equal(t, "bob", holder)
}
