package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

const testYAML = `
server:
  port: 9090
  mode: test
composite:
  base_url: https://composites.example.com
monitor:
  regions:
    - id: austin-east
      name: Austin East
      tier: metro
      bbox:
        min_lon: -97.75
        min_lat: 30.25
        max_lon: -97.65
        max_lat: 30.35
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "test", cfg.Server.Mode)
	assert.Equal(t, "https://composites.example.com", cfg.Composite.BaseURL)

	// Defaults fill everything the file leaves unset.
	assert.Equal(t, DefaultDBName, cfg.Database.DBName)
	assert.Equal(t, DefaultCompositeTimeout, cfg.Composite.RequestTimeout)

	require.Len(t, cfg.Monitor.Regions, 1)
	region := cfg.Monitor.Regions[0]
	assert.Equal(t, "austin-east", region.ID)
	assert.Equal(t, geo.TierMetro, region.Tier)
	assert.InDelta(t, -97.75, region.BBox.MinLon, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	// A region without a bounding box fails validation.
	bad := `
composite:
  base_url: https://composites.example.com
monitor:
  regions:
    - id: broken
`
	_, err := Load(writeTempConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TERRA_COMPOSITE_BASE_URL", "https://composites.example.com")
	t.Setenv("TERRA_DATABASE_HOST", "db.internal")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://composites.example.com", cfg.Composite.BaseURL)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestMustLoadPanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad("/nonexistent/config.yaml") })
}
