package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultZoom, cfg.Imagery.Zoom)
	assert.Equal(t, DefaultTileSize, cfg.Imagery.Size)
	assert.Equal(t, DefaultWorkers, cfg.Pipeline.Workers)
	assert.Equal(t, DefaultIoUThreshold, cfg.Pipeline.IoUThreshold)
	assert.Equal(t, DefaultNearDistanceM, cfg.LandUse.NearDistanceM)
	assert.Equal(t, GridModeAdaptive, cfg.Grid.Mode)
	assert.Equal(t, DefaultOverpassEndpoints, cfg.LandUse.OverpassEndpoints)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SOLARSCAN_PIPELINE_WORKERS", "64")
	t.Setenv("SOLARSCAN_PIPELINE_IOU_THRESHOLD", "0.55")
	t.Setenv("SOLARSCAN_IMAGERY_TIMEOUT", "3s")
	t.Setenv("SOLARSCAN_GRID_MODE", "legacy")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, MaxWorkers, cfg.Pipeline.Workers)
	assert.Equal(t, 0.55, cfg.Pipeline.IoUThreshold)
	assert.Equal(t, 3*time.Second, cfg.Imagery.Timeout)
	assert.Equal(t, GridModeLegacy, cfg.Grid.Mode)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solarscan.yaml")
	yaml := []byte("server:\n  port: \":9090\"\nlanduse:\n  near_distance_m: 80\n  rio_geojson: /data/rio.geojson\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 80.0, cfg.LandUse.NearDistanceM)
	assert.Equal(t, "/data/rio.geojson", cfg.LandUse.RioGeoJSON)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	cfg.Grid.Mode = "hexagonal"
	cfg.Pipeline.IoUThreshold = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid.mode")
	assert.Contains(t, err.Error(), "iou_threshold")
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, DefaultWorkers, ClampWorkers(0))
	assert.Equal(t, MinWorkers, ClampWorkers(-3))
	assert.Equal(t, 12, ClampWorkers(12))
	assert.Equal(t, MaxWorkers, ClampWorkers(100))
}
