package ratelimit

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the quota applied by one Limiter.
type Policy struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	Window        time.Duration `yaml:"window" json:"window"`
	Anonymous     int           `yaml:"anonymous" json:"anonymous"`
	Authenticated int           `yaml:"authenticated" json:"authenticated"`
}

// Limit returns the quota for a caller.
func (p Policy) Limit(authenticated bool) int {
	if authenticated {
		return p.Authenticated
	}
	return p.Anonymous
}

// Validate checks an enabled policy: a positive window, at least one request
// per window, and an authenticated quota no smaller than the anonymous one.
func (p Policy) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", p.Window)
	}
	if p.Anonymous < 1 {
		return fmt.Errorf("anonymous quota must be at least 1, got %d", p.Anonymous)
	}
	if p.Authenticated < p.Anonymous {
		return fmt.Errorf("authenticated quota %d is lower than anonymous quota %d", p.Authenticated, p.Anonymous)
	}
	return nil
}

// PolicyFile is the on-disk layout of per-endpoint policies.
type PolicyFile struct {
	Endpoints map[string]PolicyOverride `yaml:"endpoints"`
}

// PolicyOverride holds the fields an endpoint sets in the policy file.
// Fields left out keep the value derived from the environment.
type PolicyOverride struct {
	Enabled       *bool          `yaml:"enabled"`
	Window        *time.Duration `yaml:"window"`
	Anonymous     *int           `yaml:"anonymous"`
	Authenticated *int           `yaml:"authenticated"`
}

// Apply returns base with every set field of o replacing its counterpart.
func (o PolicyOverride) Apply(base Policy) Policy {
	if o.Enabled != nil {
		base.Enabled = *o.Enabled
	}
	if o.Window != nil {
		base.Window = *o.Window
	}
	if o.Anonymous != nil {
		base.Anonymous = *o.Anonymous
	}
	if o.Authenticated != nil {
		base.Authenticated = *o.Authenticated
	}
	return base
}

// LoadPolicies reads the YAML file at path and overlays it on defaults.
// An empty path or a missing file leaves defaults untouched. Only the fields
// an endpoint sets in the file replace its default.
func LoadPolicies(path string, defaults map[string]Policy) (map[string]Policy, error) {
	out := make(map[string]Policy, len(defaults))
	for name, p := range defaults {
		out[name] = p
	}
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit config: %w", err)
	}

	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rate limit config %s: %w", path, err)
	}
	for name, o := range file.Endpoints {
		p := o.Apply(out[name])
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rate limit policy for %q: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}
