// Package persist defines the storage port the n-cube core runs against:
// load/save a cube document by ApplicationID + name, list/search cube
// metadata, and the branch/version bookkeeping the registry needs but
// doesn't want to implement against a specific backend. Concrete
// implementations live in persist/mem (tests, the bootstrap sandbox) and
// persist/sql (MySQL).
package persist

import (
	"context"

	"ncube/internal/cube"
)

// NCubeInfoDto is the metadata record returned by listing/search
// operations: enough to populate a registry cache entry or a CLI listing
// without deserializing the full cube body.
type NCubeInfoDto struct {
	Name        string
	AppID       cube.ApplicationID
	Sha1        string
	CreateDate  string
	CreateHid   string
	Axes        []string
	NumDims     int
}

// SearchOptions filters persist.Persister.Search results.
type SearchOptions struct {
	NamePattern    string // SQL LIKE-style pattern, "" matches all
	ActiveOnly     bool
	IncludeSha1    bool
	IncludeCellIds bool
}

// Persister is the external storage port (spec §1): every operation the
// registry performs against durable storage goes through this interface,
// so the in-memory and SQL implementations are interchangeable.
type Persister interface {
	// LoadCube fetches one cube body by name within appID. Returns
	// (nil, nil) if no such cube exists.
	LoadCube(ctx context.Context, appID cube.ApplicationID, name string) (*cube.Cube, error)

	// SaveCube inserts or updates a cube body. Callers are responsible
	// for enforcing that RELEASE versions are immutable; the persister
	// itself does not interpret Status.
	SaveCube(ctx context.Context, c *cube.Cube) error

	// DeleteCube soft- or hard-deletes a cube; restoreable deletes are a
	// registry-level (not persister-level) concern, per spec §5.
	DeleteCube(ctx context.Context, appID cube.ApplicationID, name string) error

	// Search lists cube metadata across one application coordinate.
	Search(ctx context.Context, appID cube.ApplicationID, opts SearchOptions) ([]NCubeInfoDto, error)

	// Branches lists the distinct branch names recorded for tenant/app/version.
	Branches(ctx context.Context, tenant, app, version string) ([]string, error)

	// CopyBranch duplicates every cube under fromAppID into toAppID. Used
	// both for ordinary branch creation and for release promotion (copy
	// HEAD into a new immutable version).
	CopyBranch(ctx context.Context, fromAppID, toAppID cube.ApplicationID) error

	// DeleteBranch removes every cube recorded under appID.
	DeleteBranch(ctx context.Context, appID cube.ApplicationID) error

	// RenameCube renames a cube in place, keeping its id/history.
	RenameCube(ctx context.Context, appID cube.ApplicationID, oldName, newName string) error

	// UpdateNotes stores a free-text note on a cube's persisted record,
	// replacing any earlier note.
	UpdateNotes(ctx context.Context, appID cube.ApplicationID, name, notes string) error
}
