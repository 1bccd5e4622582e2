package plans

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table maps plan tiers to quotas. A Table is read-only once built and safe
// for concurrent use.
type Table struct {
	quotas map[Tier]Quota
}

// tableFile is the on-disk layout of a plan override file:
//
//	plans:
//	  pro:
//	    max_collaborators: 5
type tableFile struct {
	Plans map[string]Quota `yaml:"plans"`
}

// DefaultTable returns the built-in free/pro/team table
func DefaultTable() *Table {
	return &Table{
		quotas: map[Tier]Quota{
			TierFree: DefaultQuota(TierFree),
			TierPro:  DefaultQuota(TierPro),
			TierTeam: DefaultQuota(TierTeam),
		},
	}
}

// LoadTable reads plan overrides from YAML and merges them over the defaults.
// Plan names are case-insensitive and must be one of the built-in tiers.
// Tiers not named in the file keep their default limits.
func LoadTable(r io.Reader) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode plan table: %w", err)
	}

	t := DefaultTable()
	for name, q := range f.Plans {
		tier := Tier(strings.ToLower(strings.TrimSpace(name)))
		if _, known := t.quotas[tier]; !known {
			return nil, fmt.Errorf("plan table contains unknown plan %q (want free, pro or team)", name)
		}
		if q.MaxCollaborators < 0 {
			return nil, fmt.Errorf("plan %q: max_collaborators must be non-negative, got %d", name, q.MaxCollaborators)
		}
		t.quotas[tier] = q
	}

	return t, nil
}

// LoadTableFile reads plan overrides from a YAML file. An empty path returns
// the default table.
func LoadTableFile(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan table %s: %w", path, err)
	}
	defer f.Close()

	return LoadTable(f)
}

// Quota returns the quota for a tier, falling back to the free tier for
// unknown or empty tiers
func (t *Table) Quota(tier Tier) Quota {
	if q, ok := t.quotas[tier]; ok {
		return q
	}
	return t.quotas[TierFree]
}

// MaxCollaborators returns the maximum number of non-owner grants a project
// owned by a user on the given tier may hold
func (t *Table) MaxCollaborators(tier Tier) int {
	return t.Quota(tier).MaxCollaborators
}

// Tiers returns the configured tiers in name order
func (t *Table) Tiers() []Tier {
	tiers := make([]Tier, 0, len(t.quotas))
	for tier := range t.quotas {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}
