package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"ncube/internal/axis"
	"ncube/internal/cube"
	"ncube/internal/persist"
	"ncube/internal/value"
)

func setupMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	mysqlContainer, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("root"),
		mysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(mysqlContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := mysqlContainer.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err, "failed to get connection string")
	return dsn
}

func testAppID() cube.ApplicationID {
	return cube.ApplicationID{Tenant: "acme", App: "pricing", Version: "1.0.0", Status: cube.StatusSnapshot, Branch: "HEAD"}
}

func buildCube(t *testing.T, name string) *cube.Cube {
	t.Helper()
	c := cube.New(name, testAppID())
	a, err := axis.New(1, "state", value.AxisDiscrete, value.TypeString, axis.Sorted, true)
	require.NoError(t, err)
	_, err = a.AddColumn(value.String("CA"))
	require.NoError(t, err)
	require.NoError(t, c.AddAxis(a))
	require.NoError(t, c.SetCell(map[string]any{"state": "CA"}, 1))
	return c
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dsn := setupMySQL(t)
	ctx := context.Background()

	store, err := Open(ctx, dsn)
	require.NoError(t, err, "failed to open store and bootstrap schema")
	t.Cleanup(func() { _ = store.Close() })

	t.Run("save then load round-trips a cube", func(t *testing.T) {
		c := buildCube(t, "discount")
		require.NoError(t, store.SaveCube(ctx, c))

		got, err := store.LoadCube(ctx, testAppID(), "discount")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "discount", got.Name)
	})

	t.Run("load of missing cube returns nil, nil", func(t *testing.T) {
		got, err := store.LoadCube(ctx, testAppID(), "does-not-exist")
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("save is idempotent on the same coordinate", func(t *testing.T) {
		c := buildCube(t, "rebates")
		require.NoError(t, store.SaveCube(ctx, c))
		require.NoError(t, store.SaveCube(ctx, c))

		results, err := store.Search(ctx, testAppID(), persist.SearchOptions{})
		require.NoError(t, err)
		count := 0
		for _, r := range results {
			if r.Name == "rebates" {
				count++
			}
		}
		require.Equal(t, 1, count)
	})

	t.Run("copy-branch duplicates cubes under a new coordinate", func(t *testing.T) {
		c := buildCube(t, "tiering")
		require.NoError(t, store.SaveCube(ctx, c))

		toAppID := testAppID().WithBranch("feature-x")
		require.NoError(t, store.CopyBranch(ctx, testAppID(), toAppID))

		got, err := store.LoadCube(ctx, toAppID, "tiering")
		require.NoError(t, err)
		require.NotNil(t, got)
	})

	t.Run("delete removes the row", func(t *testing.T) {
		c := buildCube(t, "to-delete")
		require.NoError(t, store.SaveCube(ctx, c))
		require.NoError(t, store.DeleteCube(ctx, testAppID(), "to-delete"))

		got, err := store.LoadCube(ctx, testAppID(), "to-delete")
		require.NoError(t, err)
		require.Nil(t, got)
	})
}
