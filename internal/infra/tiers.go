package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"scenestudio/internal/domain"
)

type tierFile struct {
	Tiers map[string]int `yaml:"tiers"`
}

// LoadTierCatalog returns the default catalog overridden by the YAML file at
// path. Environment variables in the form ${VAR} are expanded before parsing.
// An empty path yields the defaults.
func LoadTierCatalog(path string) (domain.TierCatalog, error) {
	catalog := domain.DefaultTierCatalog()
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tiers file: %w", err)
	}

	var f tierFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse tiers file: %w", err)
	}
	for name, allowance := range f.Tiers {
		t := domain.Tier(name)
		if !t.Valid() {
			return nil, fmt.Errorf("tiers file: unknown tier %q", name)
		}
		if allowance < 0 {
			return nil, fmt.Errorf("tiers file: tier %q has negative allowance", name)
		}
		if t == domain.TierNone && allowance != 0 {
			return nil, fmt.Errorf("tiers file: tier %q must not grant operations", name)
		}
		catalog[t] = allowance
	}
	return catalog, nil
}
