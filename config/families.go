package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"resale-pipeline/models"
)

//go:embed families.yaml
var defaultCatalog []byte

type catalogFile struct {
	Families []catalogEntry `yaml:"families"`
}

type catalogEntry struct {
	Brand       string   `yaml:"brand"`
	Family      string   `yaml:"family"`
	DisplayName string   `yaml:"display_name"`
	Quota       int      `yaml:"quota"`
	MinRequired int      `yaml:"min_required"`
	Queries     []string `yaml:"queries"`
}

// LoadFamilies reads the family catalog from path, or the embedded default when
// path is empty. Missing quotas fall back to the configured defaults.
func LoadFamilies(path string, defaultQuota, defaultMinRequired int) ([]*models.Family, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("families: read %q: %w", path, err)
		}
		data = b
	}
	return ParseFamilies(data, defaultQuota, defaultMinRequired)
}

// ParseFamilies decodes a YAML catalog.
func ParseFamilies(data []byte, defaultQuota, defaultMinRequired int) ([]*models.Family, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("families: parse: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Families))
	out := make([]*models.Family, 0, len(file.Families))
	for i, e := range file.Families {
		brand := strings.ToLower(strings.TrimSpace(e.Brand))
		family := strings.ToLower(strings.TrimSpace(e.Family))
		if brand == "" || family == "" {
			return nil, fmt.Errorf("families: entry %d: brand and family are required", i)
		}

		f := &models.Family{
			Brand:       brand,
			Family:      family,
			DisplayName: strings.TrimSpace(e.DisplayName),
			Quota:       e.Quota,
			MinRequired: e.MinRequired,
			Status:      models.StatusBuilding,
			Queries:     e.Queries,
		}
		if f.DisplayName == "" {
			f.DisplayName = e.Brand + " " + e.Family
		}
		if f.Quota <= 0 {
			f.Quota = defaultQuota
		}
		if f.MinRequired <= 0 {
			f.MinRequired = defaultMinRequired
		}
		if f.MinRequired > f.Quota {
			f.MinRequired = f.Quota
		}
		if len(f.Queries) == 0 {
			f.Queries = []string{f.DisplayName}
		}

		if _, dup := seen[f.Key()]; dup {
			return nil, fmt.Errorf("families: duplicate family %s", f.Key())
		}
		seen[f.Key()] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// SelectFamilies filters the catalog to the given brand/family keys. An empty
// selection returns the whole catalog.
func SelectFamilies(all []*models.Family, keys []string) ([]*models.Family, error) {
	if len(keys) == 0 {
		return all, nil
	}
	byKey := make(map[string]*models.Family, len(all))
	for _, f := range all {
		byKey[f.Key()] = f
	}
	out := make([]*models.Family, 0, len(keys))
	for _, k := range keys {
		f, ok := byKey[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			return nil, fmt.Errorf("families: unknown family %q", k)
		}
		out = append(out, f)
	}
	return out, nil
}
