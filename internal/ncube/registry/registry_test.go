package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncube/internal/axis"
	"ncube/internal/cube"
	"ncube/internal/permission"
	"ncube/internal/persist/mem"
	"ncube/internal/value"
)

func permissionEngineAllowAll() *permission.Engine {
	lock := cube.New("sys.lock", cube.ApplicationID{
		Tenant: "sys", App: "sys", Version: cube.BootstrapVersion, Status: cube.StatusSnapshot, Branch: cube.HeadBranch,
	})
	a, err := axis.New(1, "appid", value.AxisDiscrete, value.TypeString, axis.Display, false)
	if err != nil {
		panic(err)
	}
	if err := lock.AddAxis(a); err != nil {
		panic(err)
	}
	return permission.NewEngine(nil, nil, nil, lock, true)
}

func testAppID() cube.ApplicationID {
	return cube.ApplicationID{Tenant: "acme", App: "pricing", Version: "1.0.0", Status: cube.StatusSnapshot, Branch: "HEAD"}
}

func buildCube(t *testing.T, name string, appID cube.ApplicationID) *cube.Cube {
	t.Helper()
	c := cube.New(name, appID)
	a, err := axis.New(1, "state", value.AxisDiscrete, value.TypeString, axis.Sorted, true)
	require.NoError(t, err)
	_, err = a.AddColumn(value.String("CA"))
	require.NoError(t, err)
	require.NoError(t, c.AddAxis(a))
	require.NoError(t, c.SetCell(map[string]any{"state": "CA"}, 1))
	return c
}

func TestUpdateCubeAndGetCubeRoundTrip(t *testing.T) {
	store := mem.New()
	r := New(store, nil)

	c := buildCube(t, "discount", testAppID())
	require.NoError(t, r.UpdateCube(context.Background(), "alice", c))

	got, err := r.GetCube(context.Background(), testAppID(), "discount")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "discount", got.Name)
}

func TestUpdateCubeRejectsReleaseVersion(t *testing.T) {
	store := mem.New()
	r := New(store, nil)

	released := testAppID().WithVersionStatus("1.0.0", cube.StatusRelease)
	c := buildCube(t, "discount", released)
	err := r.UpdateCube(context.Background(), "alice", c)
	require.Error(t, err)
}

func TestDeleteAndRestoreCube(t *testing.T) {
	store := mem.New()
	r := New(store, nil)
	ctx := context.Background()

	c := buildCube(t, "discount", testAppID())
	require.NoError(t, r.UpdateCube(ctx, "alice", c))

	require.NoError(t, r.DeleteCubes(ctx, "alice", testAppID(), "discount"))
	got, err := r.GetCube(ctx, testAppID(), "discount")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.RestoreCubes(ctx, "alice", testAppID(), "discount"))
	got, err = r.GetCube(ctx, testAppID(), "discount")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestReleaseVersionCopiesHeadToRelease(t *testing.T) {
	store := mem.New()
	r := New(store, nil)
	ctx := context.Background()

	c := buildCube(t, "discount", testAppID())
	require.NoError(t, r.UpdateCube(ctx, "alice", c))

	require.NoError(t, r.ReleaseVersion(ctx, "alice", testAppID()))

	released := testAppID().WithVersionStatus("1.0.0", cube.StatusRelease)
	got, err := r.GetCube(ctx, released, "discount")
	require.NoError(t, err)
	require.NotNil(t, got)

	// the released copy is immutable
	err = r.UpdateCube(ctx, "alice", got)
	require.Error(t, err)
}

func TestAppLockBlocksOtherUsers(t *testing.T) {
	store := mem.New()
	perm := permissionEngineAllowAll()
	r := New(store, perm)

	require.NoError(t, r.LockApp("alice", testAppID()))
	err := r.LockApp("bob", testAppID())
	require.Error(t, err)

	c := buildCube(t, "discount", testAppID())
	err = r.UpdateCube(context.Background(), "bob", c)
	require.Error(t, err)

	require.NoError(t, r.UnlockApp("alice", testAppID()))
	require.NoError(t, r.LockApp("bob", testAppID()))
}
