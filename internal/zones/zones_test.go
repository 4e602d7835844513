package zones

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupNormalizesNames(t *testing.T) {
	table := NewTable([]Zone{
		{Name: "Lavapiés", District: "Centro", PriorityTier: 1, ReferencePricePerM2: 3800},
		{Name: "Puente de Vallecas", District: "Puente de Vallecas", PriorityTier: 3, ReferencePricePerM2: 2100},
	})

	z, ok := table.Lookup("lavapiés")
	require.True(t, ok)
	assert.Equal(t, 1, z.PriorityTier)

	z, ok = table.Lookup("  Puente de Vallecas ")
	require.True(t, ok)
	assert.Equal(t, 2100.0, z.ReferencePricePerM2)

	_, ok = table.Lookup("narnia")
	assert.False(t, ok)
}

func TestLoadZoneFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	content := `- name: Delicias
  district: Arganzuela
  priority_tier: 2
  reference_price_per_m2: 3200
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	z, ok := table.Lookup("delicias")
	require.True(t, ok)
	assert.Equal(t, "Arganzuela", z.District)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/zones.yaml")
	require.Error(t, err)
}
