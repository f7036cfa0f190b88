package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/solarscan-backend-go/internal/config"
	"github.com/jengzang/solarscan-backend-go/internal/database"
	"github.com/jengzang/solarscan-backend-go/internal/landuse"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Database.Path = database.MemoryPath
	cfg.Server.Mode = "test"
	return cfg
}

func TestNewWiresService(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Service)
	assert.Equal(t, 6, a.Runner.Config().Workers)
	assert.Equal(t, 20, a.Runner.Config().Zoom)

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"runs":{}`)

	w = httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestLandUseChainOrder(t *testing.T) {
	cfg := testConfig().LandUse
	cfg.RioGeoJSON = "rio.geojson"
	cfg.SPGeoJSON = "sp.geojson"
	cfg.OverpassEndpoints = nil

	files := landuse.NewFileCache(2)
	defer files.Stop()
	chain := landUseChain(cfg, files, logging.NewNop())

	assert.True(t, chain.Covers(-22.99, -43.37))
	assert.True(t, chain.Covers(-23.55, -46.63))
	assert.False(t, chain.Covers(48.85, 2.35), "only OSM covers points outside the local files")

	cfg.OverpassEndpoints = []string{"https://overpass.example/api/interpreter"}
	assert.True(t, landUseChain(cfg, files, logging.NewNop()).Covers(48.85, 2.35))
}
