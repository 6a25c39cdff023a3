// Package mem is the in-memory reference Persister: the sandbox/bootstrap
// backend and the one exercised by the registry's own tests, grounded in
// the same method set persist/sql implements against MySQL.
package mem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"ncube/internal/cube"
	"ncube/internal/ncerr"
	"ncube/internal/persist"
)

type record struct {
	cube  *cube.Cube
	notes string
}

// Store is a concurrency-safe, process-local Persister.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]*record // appID.CacheKey() -> lower(cubeName) -> record
}

// New constructs an empty Store.
func New() *Store {
	return &Store{data: map[string]map[string]*record{}}
}

var _ persist.Persister = (*Store)(nil)

func (s *Store) LoadCube(_ context.Context, appID cube.ApplicationID, name string) (*cube.Cube, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.data[appID.CacheKey()]
	if !ok {
		return nil, nil
	}
	rec, ok := bucket[strings.ToLower(name)]
	if !ok {
		return nil, nil
	}
	return rec.cube, nil
}

func (s *Store) SaveCube(_ context.Context, c *cube.Cube) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.AppID.CacheKey()
	bucket, ok := s.data[key]
	if !ok {
		bucket = map[string]*record{}
		s.data[key] = bucket
	}
	bucket[strings.ToLower(c.Name)] = &record{cube: c}
	return nil
}

func (s *Store) DeleteCube(_ context.Context, appID cube.ApplicationID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[appID.CacheKey()]
	if !ok {
		return nil
	}
	delete(bucket, strings.ToLower(name))
	return nil
}

func (s *Store) Search(_ context.Context, appID cube.ApplicationID, opts persist.SearchOptions) ([]persist.NCubeInfoDto, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.data[appID.CacheKey()]
	pattern := strings.ToLower(strings.ReplaceAll(opts.NamePattern, "%", ""))

	out := make([]persist.NCubeInfoDto, 0, len(bucket))
	for name, rec := range bucket {
		if pattern != "" && !strings.Contains(name, pattern) {
			continue
		}
		info := persist.NCubeInfoDto{
			Name:    rec.cube.Name,
			AppID:   appID,
			NumDims: len(rec.cube.Axes()),
		}
		if opts.IncludeSha1 {
			info.Sha1 = rec.cube.Fingerprint()
		}
		for _, a := range rec.cube.Axes() {
			info.Axes = append(info.Axes, a.Name())
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Branches(_ context.Context, tenant, app, version string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	for key := range s.data {
		parts := strings.Split(key, "/")
		if len(parts) != 5 {
			continue
		}
		if parts[0] == strings.ToLower(tenant) && parts[1] == strings.ToLower(app) && parts[2] == strings.ToLower(version) {
			seen[parts[4]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CopyBranch(_ context.Context, fromAppID, toAppID cube.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.data[fromAppID.CacheKey()]
	if !ok {
		return ncerr.NewIllegalState("no cubes found under %s", fromAppID)
	}
	dstKey := toAppID.CacheKey()
	if _, exists := s.data[dstKey]; exists {
		return ncerr.NewIllegalState("destination application %s already has cubes", toAppID)
	}
	dst := make(map[string]*record, len(src))
	for name, rec := range src {
		data, err := rec.cube.ToJSON(false)
		if err != nil {
			return err
		}
		copied, err := cube.FromJSON(data)
		if err != nil {
			return err
		}
		copied.AppID = toAppID
		dst[name] = &record{cube: copied, notes: rec.notes}
	}
	s.data[dstKey] = dst
	return nil
}

func (s *Store) DeleteBranch(_ context.Context, appID cube.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, appID.CacheKey())
	return nil
}

func (s *Store) RenameCube(_ context.Context, appID cube.ApplicationID, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[appID.CacheKey()]
	if !ok {
		return ncerr.NewIllegalState("no cubes found under %s", appID)
	}
	rec, ok := bucket[strings.ToLower(oldName)]
	if !ok {
		return ncerr.NewIllegalState("cube %q not found under %s", oldName, appID)
	}
	if _, exists := bucket[strings.ToLower(newName)]; exists {
		return ncerr.NewIllegalArgument("cube", newName, "a cube with this name already exists")
	}
	rec.cube.Name = newName
	delete(bucket, strings.ToLower(oldName))
	bucket[strings.ToLower(newName)] = rec
	return nil
}

func (s *Store) UpdateNotes(_ context.Context, appID cube.ApplicationID, name, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[appID.CacheKey()]
	if !ok {
		return ncerr.NewIllegalState("no cubes found under %s", appID)
	}
	rec, ok := bucket[strings.ToLower(name)]
	if !ok {
		return ncerr.NewIllegalState("cube %q not found under %s", name, appID)
	}
	rec.notes = notes
	return nil
}
