// Package permission implements the access-control layer as cubes (spec
// §7): sys.usergroups maps users to group membership, sys.permissions maps
// (resource pattern, action) to the groups allowed to perform it,
// sys.branch.permissions additionally restricts which groups may write to
// a given branch, and sys.lock records per-application write locks. All
// four are ordinary n-cubes read through the same Cube API the rest of
// the core uses; this package only adds the access-control semantics of
// reading them.
package permission

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"ncube/internal/cube"
	"ncube/internal/ncerr"
	"ncube/internal/value"
)

// Action is an operation being checked against the permission cubes.
type Action string

const (
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionCommit Action = "COMMIT"
	ActionAdmin  Action = "ADMIN"
)

const decisionTTL = 30 * time.Minute

// decision caches one checkPermissions outcome.
type decision struct {
	allowed bool
	expires time.Time
}

// Engine evaluates access-control decisions against the four sys.*
// permission cubes. The cubes themselves are supplied by the caller
// (typically the registry, which knows how to load bootstrap-version
// cubes) rather than loaded directly, so this package stays independent
// of the persistence and registry layers.
type Engine struct {
	mu sync.Mutex

	usergroups         *cube.Cube // sys.usergroups: axis "user" -> cell []string groups
	permissions        *cube.Cube // sys.permissions: axes "resource","action" -> cell []string groups
	branchPermissions  *cube.Cube // sys.branch.permissions: axes "branch","action" -> cell []string groups
	lock               *cube.Cube // sys.lock: axis "appId" -> cell string userId

	bootstrapMode bool // when true, every check is permitted (spec §7)

	cache    map[string]decision
	reCache  map[string]*regexp.Regexp
}

// NewEngine constructs an Engine over the four sys.* cubes. Any of them
// may be nil; a nil permissions cube denies everything except in
// bootstrapMode.
func NewEngine(usergroups, permissions, branchPermissions, lock *cube.Cube, bootstrapMode bool) *Engine {
	return &Engine{
		usergroups:        usergroups,
		permissions:       permissions,
		branchPermissions: branchPermissions,
		lock:              lock,
		bootstrapMode:     bootstrapMode,
		cache:             map[string]decision{},
		reCache:           map[string]*regexp.Regexp{},
	}
}

// CheckPermissions decides whether userID may perform action against
// resource (an application/cube-qualified path such as
// "acme/pricing/1.0.0/SNAPSHOT/HEAD/discount"). Decisions are cached for
// 30 minutes per (userID, resource, action), per spec §7.
func (e *Engine) CheckPermissions(userID, resource string, action Action) (bool, error) {
	if e.bootstrapMode {
		return true, nil
	}

	key := cacheKey(userID, resource, action)

	e.mu.Lock()
	if d, ok := e.cache[key]; ok && time.Now().Before(d.expires) {
		e.mu.Unlock()
		return d.allowed, nil
	}
	e.mu.Unlock()

	allowed, err := e.evaluate(userID, resource, action)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	e.cache[key] = decision{allowed: allowed, expires: time.Now().Add(decisionTTL)}
	e.mu.Unlock()

	return allowed, nil
}

func cacheKey(userID, resource string, action Action) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s", userID, resource, action)
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Engine) evaluate(userID, resource string, action Action) (bool, error) {
	groups, err := e.groupsFor(userID)
	if err != nil {
		return false, err
	}
	if len(groups) == 0 {
		return false, nil
	}

	allowedGroups, err := e.allowedGroups(resource, action)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if allowedGroups[strings.ToLower(g)] {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) groupsFor(userID string) ([]string, error) {
	if e.usergroups == nil {
		return nil, nil
	}
	v, _, err := e.usergroups.GetCell(map[string]any{"user": userID}, nil, "")
	if err != nil {
		if _, ok := err.(*ncerr.CoordinateNotFound); ok {
			return nil, nil
		}
		return nil, err
	}
	return toStringSlice(v), nil
}

func (e *Engine) allowedGroups(resource string, action Action) (map[string]bool, error) {
	if e.permissions == nil {
		return nil, nil
	}
	set := map[string]bool{}
	for _, a := range e.permissions.Axes() {
		if a.Name() != "resource" {
			continue
		}
		for _, col := range a.Columns() {
			if col.IsDefault() {
				continue
			}
			pattern, _ := col.MetaProperty("pattern")
			patternStr, _ := pattern.(string)
			if patternStr == "" {
				patternStr = col.Value.Render()
			}
			if !e.matches(patternStr, resource) {
				continue
			}
			v, _, err := e.permissions.GetCell(map[string]any{"resource": col.Value.AsString(), "action": string(action)}, nil, "")
			if err != nil {
				continue
			}
			for _, g := range toStringSlice(v) {
				set[strings.ToLower(g)] = true
			}
		}
	}
	return set, nil
}

// matches implements spec §7's wildcard resource matching: a pattern
// segment of "*" matches exactly one "/"-delimited path segment.
func (e *Engine) matches(pattern, resource string) bool {
	e.mu.Lock()
	re, ok := e.reCache[pattern]
	e.mu.Unlock()
	if !ok {
		segments := strings.Split(pattern, "/")
		for i, s := range segments {
			if s == "*" {
				segments[i] = "[^/]+"
			} else {
				segments[i] = regexp.QuoteMeta(s)
			}
		}
		compiled, err := regexp.Compile("^" + strings.Join(segments, "/") + "$")
		if err != nil {
			return false
		}
		re = compiled
		e.mu.Lock()
		e.reCache[pattern] = re
		e.mu.Unlock()
	}
	return re.MatchString(resource)
}

// AssertBranchWritable returns a Security error unless userID's groups
// are permitted to write to branch, per sys.branch.permissions.
func (e *Engine) AssertBranchWritable(userID, branch string) error {
	if e.bootstrapMode || e.branchPermissions == nil {
		return nil
	}
	groups, err := e.groupsFor(userID)
	if err != nil {
		return err
	}
	v, _, err := e.branchPermissions.GetCell(map[string]any{"branch": branch, "action": string(ActionUpdate)}, nil, "")
	if err != nil {
		if _, ok := err.(*ncerr.CoordinateNotFound); ok {
			return ncerr.NewSecurity("no write permission recorded for branch %q", branch)
		}
		return err
	}
	allowed := toStringSlice(v)
	for _, want := range groups {
		for _, have := range allowed {
			if strings.EqualFold(want, have) {
				return nil
			}
		}
	}
	return ncerr.NewSecurity("user %q is not permitted to write to branch %q", userID, branch)
}

// LockHolder returns the userID holding appID's write lock, or "" if the
// application is unlocked.
func (e *Engine) LockHolder(appCacheKey string) (string, error) {
	if e.lock == nil {
		return "", nil
	}
	v, _, err := e.lock.GetCell(map[string]any{"appid": appCacheKey}, nil, "")
	if err != nil {
		if _, ok := err.(*ncerr.CoordinateNotFound); ok {
			return "", nil
		}
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// SetLockHolder records userID as holding (or, with userID == "",
// releasing) appID's write lock. The first caller to lock a given
// application grows sys.lock's "appid" axis with a new discrete column;
// later callers reuse it.
func (e *Engine) SetLockHolder(appCacheKey, userID string) error {
	if e.lock == nil {
		return ncerr.NewIllegalState("no sys.lock cube configured")
	}
	if err := ensureDiscreteColumn(e.lock, "appid", appCacheKey); err != nil {
		return err
	}
	return e.lock.SetCell(map[string]any{"appid": appCacheKey}, userID)
}

// ensureDiscreteColumn adds a column for val on axisName if one doesn't
// already exist, used when a sys.* cube is keyed by a value that isn't
// known ahead of time (a new user id, a new application lock key).
func ensureDiscreteColumn(c *cube.Cube, axisName, val string) error {
	a, ok := c.GetAxis(axisName)
	if !ok {
		return ncerr.NewIllegalState("cube %q has no %q axis", c.Name, axisName)
	}
	existing, err := a.FindColumnExact(value.String(val))
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = a.AddColumn(value.String(val))
	return err
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}
