// Package registry is the orchestrator that ties the axis/cube/refaxis/
// permission layers to a Persister backend: a per-application cache,
// reference-axis resolution on load, branch/release/lock operations, and
// permission enforcement ahead of every mutating call (spec §5-§7).
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ncube/internal/axis"
	"ncube/internal/cube"
	"ncube/internal/ncerr"
	"ncube/internal/permission"
	"ncube/internal/persist"
	"ncube/internal/refaxis"
)

// BroadcastFunc is notified after a mutating operation commits, so a
// multi-node deployment can invalidate peer caches. The default is a
// no-op; Registry.SetBroadcast installs a real one.
type BroadcastFunc func(event string, appID cube.ApplicationID)

// Registry is the n-cube core's single entry point: every axis/cube
// operation a caller (the CLI, an HTTP handler, a test) performs against
// a persisted application goes through a Registry.
type Registry struct {
	persister persist.Persister
	perm      *permission.Engine
	refLoader *refaxis.Loader
	broadcast BroadcastFunc

	mu    sync.RWMutex
	cache map[string]*cube.Cube // appID.CacheKey()+"/"+lower(name) -> cube

	// trash holds soft-deleted cubes keyed the same way as cache, so
	// RestoreCubes can bring them back without the Persister needing its
	// own undelete support.
	trash map[string]*cube.Cube
}

// New constructs a Registry. perm may be nil (no access control enforced,
// equivalent to bootstrap mode).
func New(persister persist.Persister, perm *permission.Engine) *Registry {
	r := &Registry{
		persister: persister,
		perm:      perm,
		broadcast: func(string, cube.ApplicationID) {},
		cache:     map[string]*cube.Cube{},
		trash:     map[string]*cube.Cube{},
	}
	r.refLoader = refaxis.NewLoader(r, nil)
	return r
}

// SetTransformer installs the ValueTransformer reference axes with a
// transform cube will invoke. Optional: only needed once such an axis
// exists.
func (r *Registry) SetTransformer(t refaxis.ValueTransformer) {
	r.refLoader = refaxis.NewLoader(r, t)
}

// SetBroadcast installs the cache-invalidation hook.
func (r *Registry) SetBroadcast(fn BroadcastFunc) { r.broadcast = fn }

func cacheKey(appID cube.ApplicationID, name string) string {
	return appID.CacheKey() + "/" + strings.ToLower(name)
}

// GetCube implements refaxis.CubeSource, so reference axes resolve
// through the same cache and persister this Registry already uses.
func (r *Registry) GetCube(ctx context.Context, appID cube.ApplicationID, name string) (*cube.Cube, error) {
	key := cacheKey(appID, name)

	r.mu.RLock()
	if c, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	c, err := r.persister.LoadCube(ctx, appID, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}

	if err := r.resolveReferenceAxes(ctx, c); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = c
	r.mu.Unlock()
	return c, nil
}

func (r *Registry) resolveReferenceAxes(ctx context.Context, c *cube.Cube) error {
	for _, a := range c.Axes() {
		if !a.IsReference() {
			continue
		}
		resolved, err := r.refLoader.Resolve(ctx, *a.Reference(), map[string]bool{})
		if err != nil {
			return fmt.Errorf("cube %q: resolve reference axis %q: %w", c.Name, a.Name(), err)
		}
		if err := c.ReplaceAxis(resolved); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) authorize(userID string, appID cube.ApplicationID, cubeName string, action permission.Action) error {
	if r.perm == nil {
		return nil
	}
	resource := strings.ToLower(fmt.Sprintf("%s/%s", appID, cubeName))
	allowed, err := r.perm.CheckPermissions(userID, resource, action)
	if err != nil {
		return err
	}
	if !allowed {
		return ncerr.NewSecurity("user %q is not permitted to %s %s", userID, action, resource)
	}
	return nil
}

// UpdateCube validates userID's permissions and the application's write
// lock, then persists c. RELEASE versions reject every update (spec §5's
// immutability rule).
func (r *Registry) UpdateCube(ctx context.Context, userID string, c *cube.Cube) error {
	if c.AppID.Status == cube.StatusRelease {
		return ncerr.NewIllegalState("cube %q: cannot modify a RELEASE version", c.Name)
	}
	if err := r.authorize(userID, c.AppID, c.Name, permission.ActionUpdate); err != nil {
		return err
	}
	if err := r.assertNotLockBlocked(userID, c.AppID); err != nil {
		return err
	}
	if err := r.persister.SaveCube(ctx, c); err != nil {
		return err
	}
	r.mu.Lock()
	r.cache[cacheKey(c.AppID, c.Name)] = c
	r.mu.Unlock()
	r.broadcast("update", c.AppID)
	return nil
}

// DeleteCubes soft-deletes cubes by name: they move to an in-memory trash
// set and RestoreCubes can bring them back, but Search/GetCube no longer
// see them.
func (r *Registry) DeleteCubes(ctx context.Context, userID string, appID cube.ApplicationID, names ...string) error {
	for _, name := range names {
		if err := r.authorize(userID, appID, name, permission.ActionUpdate); err != nil {
			return err
		}
	}
	if err := r.assertNotLockBlocked(userID, appID); err != nil {
		return err
	}
	for _, name := range names {
		c, err := r.GetCube(ctx, appID, name)
		if err != nil {
			return err
		}
		if c == nil {
			continue
		}
		if err := r.persister.DeleteCube(ctx, appID, name); err != nil {
			return err
		}
		key := cacheKey(appID, name)
		r.mu.Lock()
		delete(r.cache, key)
		r.trash[key] = c
		r.mu.Unlock()
	}
	r.broadcast("delete", appID)
	return nil
}

// RestoreCubes re-persists previously deleted cubes.
func (r *Registry) RestoreCubes(ctx context.Context, userID string, appID cube.ApplicationID, names ...string) error {
	for _, name := range names {
		if err := r.authorize(userID, appID, name, permission.ActionUpdate); err != nil {
			return err
		}
		key := cacheKey(appID, name)
		r.mu.Lock()
		c, ok := r.trash[key]
		r.mu.Unlock()
		if !ok {
			return ncerr.NewIllegalState("cube %q was not deleted, nothing to restore", name)
		}
		if err := r.persister.SaveCube(ctx, c); err != nil {
			return err
		}
		r.mu.Lock()
		delete(r.trash, key)
		r.cache[key] = c
		r.mu.Unlock()
	}
	r.broadcast("restore", appID)
	return nil
}

// RenameCube renames a cube in place.
func (r *Registry) RenameCube(ctx context.Context, userID string, appID cube.ApplicationID, oldName, newName string) error {
	if err := r.authorize(userID, appID, oldName, permission.ActionUpdate); err != nil {
		return err
	}
	if err := r.assertNotLockBlocked(userID, appID); err != nil {
		return err
	}
	if err := r.persister.RenameCube(ctx, appID, oldName, newName); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.cache, cacheKey(appID, oldName))
	r.mu.Unlock()
	r.broadcast("rename", appID)
	return nil
}

// Duplicate copies a single cube to a new name within the same
// application coordinate.
func (r *Registry) Duplicate(ctx context.Context, userID string, appID cube.ApplicationID, name, newName string) error {
	if err := r.authorize(userID, appID, name, permission.ActionRead); err != nil {
		return err
	}
	c, err := r.GetCube(ctx, appID, name)
	if err != nil {
		return err
	}
	if c == nil {
		return ncerr.NewIllegalState("cube %q not found in %s", name, appID)
	}
	data, err := c.ToJSON(false)
	if err != nil {
		return err
	}
	dup, err := cube.FromJSON(data)
	if err != nil {
		return err
	}
	dup.Name = newName
	return r.UpdateCube(ctx, userID, dup)
}

// CopyBranch duplicates every cube under fromAppID into toAppID (spec
// §5's branch creation), rejecting the call if toAppID already has cubes.
func (r *Registry) CopyBranch(ctx context.Context, userID string, fromAppID, toAppID cube.ApplicationID) error {
	if err := r.authorize(userID, fromAppID, "*", permission.ActionRead); err != nil {
		return err
	}
	if err := r.persister.CopyBranch(ctx, fromAppID, toAppID); err != nil {
		return err
	}
	r.invalidateApp(toAppID)
	r.broadcast("copy-branch", toAppID)
	return nil
}

// MoveBranch renames fromAppID's branch to toAppID's branch by copying
// then deleting the source.
func (r *Registry) MoveBranch(ctx context.Context, userID string, fromAppID, toAppID cube.ApplicationID) error {
	if err := r.CopyBranch(ctx, userID, fromAppID, toAppID); err != nil {
		return err
	}
	return r.DeleteBranch(ctx, userID, fromAppID)
}

// DeleteBranch removes every cube recorded under appID.
func (r *Registry) DeleteBranch(ctx context.Context, userID string, appID cube.ApplicationID) error {
	if err := r.authorize(userID, appID, "*", permission.ActionUpdate); err != nil {
		return err
	}
	if err := r.persister.DeleteBranch(ctx, appID); err != nil {
		return err
	}
	r.invalidateApp(appID)
	r.broadcast("delete-branch", appID)
	return nil
}

// ReleaseVersion promotes appID's SNAPSHOT/HEAD cubes to an immutable
// RELEASE at the same version (spec §5's version lifecycle): it copies
// HEAD into version/RELEASE/HEAD and leaves the SNAPSHOT branch in place
// for continued development.
func (r *Registry) ReleaseVersion(ctx context.Context, userID string, appID cube.ApplicationID) error {
	if appID.Status != cube.StatusSnapshot || !appID.IsHead() {
		return ncerr.NewIllegalArgument("registry", appID.String(), "ReleaseVersion requires a SNAPSHOT/HEAD application id")
	}
	released := appID.WithVersionStatus(appID.Version, cube.StatusRelease)
	return r.CopyBranch(ctx, userID, appID, released)
}

func (r *Registry) invalidateApp(appID cube.ApplicationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := appID.CacheKey() + "/"
	for k := range r.cache {
		if strings.HasPrefix(k, prefix) {
			delete(r.cache, k)
		}
	}
}

// Search lists cube metadata under appID.
func (r *Registry) Search(ctx context.Context, userID string, appID cube.ApplicationID, opts persist.SearchOptions) ([]persist.NCubeInfoDto, error) {
	if err := r.authorize(userID, appID, "*", permission.ActionRead); err != nil {
		return nil, err
	}
	return r.persister.Search(ctx, appID, opts)
}

// Branches lists the distinct branches recorded for tenant/app/version.
func (r *Registry) Branches(ctx context.Context, tenant, app, version string) ([]string, error) {
	return r.persister.Branches(ctx, tenant, app, version)
}

// --- application write lock ---

func (r *Registry) assertNotLockBlocked(userID string, appID cube.ApplicationID) error {
	if r.perm == nil {
		return nil
	}
	holder, err := r.perm.LockHolder(appID.CacheKey())
	if err != nil {
		return err
	}
	if holder != "" && holder != userID {
		return ncerr.NewSecurity("application %s is locked by %q", appID, holder)
	}
	return nil
}

// LockApp locks appID for exclusive writing by userID.
func (r *Registry) LockApp(userID string, appID cube.ApplicationID) error {
	if r.perm == nil {
		return ncerr.NewIllegalState("no permission engine configured, cannot lock")
	}
	holder, err := r.perm.LockHolder(appID.CacheKey())
	if err != nil {
		return err
	}
	if holder != "" && holder != userID {
		return ncerr.NewSecurity("application %s is already locked by %q", appID, holder)
	}
	return r.perm.SetLockHolder(appID.CacheKey(), userID)
}

// UnlockApp releases appID's write lock. Only the current holder may
// unlock it.
func (r *Registry) UnlockApp(userID string, appID cube.ApplicationID) error {
	if err := r.assertLockedByMe(userID, appID); err != nil {
		return err
	}
	return r.perm.SetLockHolder(appID.CacheKey(), "")
}

func (r *Registry) assertLockedByMe(userID string, appID cube.ApplicationID) error {
	if r.perm == nil {
		return ncerr.NewIllegalState("no permission engine configured, cannot check lock")
	}
	holder, err := r.perm.LockHolder(appID.CacheKey())
	if err != nil {
		return err
	}
	if holder != userID {
		return ncerr.NewSecurity("application %s is not locked by %q", appID, userID)
	}
	return nil
}

// AddAxisToCube is a convenience wrapper used by callers (e.g. the CLI)
// that want to mutate a cube's structure and persist it in one call.
func (r *Registry) AddAxisToCube(ctx context.Context, userID string, appID cube.ApplicationID, cubeName string, a *axis.Axis) error {
	c, err := r.GetCube(ctx, appID, cubeName)
	if err != nil {
		return err
	}
	if c == nil {
		c = cube.New(cubeName, appID)
	}
	if err := c.AddAxis(a); err != nil {
		return err
	}
	return r.UpdateCube(ctx, userID, c)
}
