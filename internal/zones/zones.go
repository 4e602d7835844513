package zones

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Zone is static reference data for one geographic zone: where it sits,
// how interesting it is to the business, and what the market charges there.
type Zone struct {
	Name                string  `yaml:"name"`
	District            string  `yaml:"district"`
	PriorityTier        int     `yaml:"priority_tier"`
	ReferencePricePerM2 float64 `yaml:"reference_price_per_m2"`
}

// Table is a read-only lookup of zones keyed by normalized zone name.
type Table struct {
	byName map[string]Zone
}

// NewTable builds a lookup table from a zone list.
func NewTable(zones []Zone) *Table {
	t := &Table{byName: make(map[string]Zone, len(zones))}
	for _, z := range zones {
		t.byName[normalize(z.Name)] = z
	}
	return t
}

// Load reads the zone reference file (a yaml list of zones).
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}

	var zones []Zone
	if err := yaml.Unmarshal(data, &zones); err != nil {
		return nil, fmt.Errorf("failed to parse zones file: %w", err)
	}

	return NewTable(zones), nil
}

// Lookup returns the zone entry for a name, if known.
func (t *Table) Lookup(name string) (Zone, bool) {
	z, ok := t.byName[normalize(name)]
	return z, ok
}

// Names returns every zone name in the table.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for _, z := range t.byName {
		names = append(names, z.Name)
	}
	return names
}

// Len returns the number of zones loaded.
func (t *Table) Len() int {
	return len(t.byName)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
