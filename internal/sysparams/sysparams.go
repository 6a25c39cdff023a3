// Package sysparams loads the n-cube runtime's own configuration: the
// NCUBE_PARAMS JSON blob (cache sizing, permission bootstrap mode, default
// branch) read from the environment, and the sandbox bootstrap TOML file
// that seeds the first tenant/app/admin user on an empty install.
package sysparams

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

// Params is the NCUBE_PARAMS configuration object, parsed once and cached
// for the process lifetime (spec §7's bootstrap/runtime configuration).
type Params struct {
	PermissionsBootstrapMode bool   `json:"permissionsBootstrapMode"`
	CacheMaxSizeCubes        int    `json:"cacheMaxSizeCubes"`
	DefaultBranch            string `json:"defaultBranch"`
	AllowExtendedValueTypes  bool   `json:"allowExtendedValueTypes"`
}

// DefaultParams is used whenever NCUBE_PARAMS is unset or empty.
func DefaultParams() Params {
	return Params{
		PermissionsBootstrapMode: false,
		CacheMaxSizeCubes:        10000,
		DefaultBranch:            "HEAD",
		AllowExtendedValueTypes:  true,
	}
}

var (
	once       sync.Once
	cached     Params
	cachedErr  error
)

// Load parses NCUBE_PARAMS from the environment variable of the same
// name, caching the result for the lifetime of the process. An unset or
// empty variable yields DefaultParams.
func Load() (Params, error) {
	once.Do(func() {
		raw := os.Getenv("NCUBE_PARAMS")
		if raw == "" {
			cached = DefaultParams()
			return
		}
		p := DefaultParams()
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			cachedErr = fmt.Errorf("sysparams: parse NCUBE_PARAMS: %w", err)
			return
		}
		cached = p
	})
	return cached, cachedErr
}

// Bootstrap describes the sandbox tenant/app/seed-user a fresh install is
// primed with (configs/bootstrap.toml).
type Bootstrap struct {
	Tenant    string   `toml:"tenant"`
	App       string   `toml:"app"`
	AdminUser string   `toml:"admin_user"`
	AdminUsers []string `toml:"admin_users"`
}

// LoadBootstrap parses a bootstrap.toml document from path.
func LoadBootstrap(path string) (Bootstrap, error) {
	var b Bootstrap
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return Bootstrap{}, fmt.Errorf("sysparams: parse bootstrap file %q: %w", path, err)
	}
	if b.Tenant == "" || b.App == "" {
		return Bootstrap{}, fmt.Errorf("sysparams: bootstrap file %q must set tenant and app", path)
	}
	return b, nil
}
