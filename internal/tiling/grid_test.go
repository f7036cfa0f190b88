package tiling

import (
	"math"
	"testing"

	"github.com/jengzang/solarscan-backend-go/internal/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLat = -22.994598
	testLon = -43.377366
)

func TestGenerateGridEndToEndScenario(t *testing.T) {
	g := GenerateGrid(testLat, testLon, 500, 20, 640)

	require.GreaterOrEqual(t, len(g.Tiles), 9)
	assert.Equal(t, g.Rows*g.Cols, len(g.Tiles))

	seen := make(map[[2]int]bool)
	for i, tile := range g.Tiles {
		key := [2]int{tile.Row, tile.Col}
		assert.False(t, seen[key], "duplicate cell %v", key)
		seen[key] = true
		assert.Equal(t, i+1, tile.Index)
		assert.Equal(t, tile.Row*g.Cols+tile.Col+1, tile.Index)
	}
}

func TestGenerateGridOrientation(t *testing.T) {
	g := GenerateGrid(testLat, testLon, 300, 20, 640)
	first, last := g.Tiles[0], g.Tiles[len(g.Tiles)-1]

	// row 0 is north, col 0 is west
	assert.Greater(t, first.Lat, last.Lat)
	assert.Less(t, first.Lon, last.Lon)

	cr, cc := g.Center()
	center := g.Tiles[cr*g.Cols+cc]
	assert.InDelta(t, testLat, center.Lat, 1e-9)
	assert.InDelta(t, testLon, center.Lon, 1e-9)
}

func TestGenerateGridDeterministic(t *testing.T) {
	a := GenerateGrid(testLat, testLon, 750, 19, 640)
	b := GenerateGrid(testLat, testLon, 750, 19, 640)
	assert.Equal(t, a, b)
}

func TestGenerateGridMinimumThreeByThree(t *testing.T) {
	for _, r := range []float64{0, 1, 10} {
		g := GenerateGrid(testLat, testLon, r, 18, 640)
		assert.Equal(t, 3, g.Rows, "radius %v", r)
		assert.Len(t, g.Tiles, 9)
	}
}

func TestGenerateGridGrowsWithRadius(t *testing.T) {
	small := GenerateGrid(testLat, testLon, 200, 20, 640)
	large := GenerateGrid(testLat, testLon, 800, 20, 640)
	assert.Greater(t, len(large.Tiles), len(small.Tiles))
}

func TestHalfExtent(t *testing.T) {
	fp := TileFootprint(0, 20, 640)
	assert.Equal(t, 1, HalfExtent(0, fp*0.5, fp))
	assert.Equal(t, 2, HalfExtent(0, fp*1.5, fp))
	assert.Equal(t, 1, HalfExtent(0, 0, fp))
	// at 60 degrees the cos correction doubles the count
	assert.Equal(t, 2, HalfExtent(60, fp*0.99, fp))
}

// every point within the radius falls inside at least one tile
func TestGenerateGridCoverage(t *testing.T) {
	cases := []struct {
		lat, lon, radius float64
		zoom             int
	}{
		{testLat, testLon, 500, 20},
		{testLat, testLon, 1500, 19},
		{0, 0, 300, 20},
		{60, 10, 400, 19},
		{-45, 170, 250, 20},
	}
	for _, c := range cases {
		g := GenerateGrid(c.lat, c.lon, c.radius, c.zoom, 640)
		half := ProjectedSpan(c.zoom, 640) / 2

		for bearing := 0.0; bearing < 360; bearing += 15 {
			for _, frac := range []float64{0.25, 0.5, 0.9, 1.0} {
				pLat, pLon := spatial.DestinationPoint(c.lat, c.lon, bearing, c.radius*frac)
				px, py := spatial.ToProjectedMeters(pLat, pLon)

				covered := false
				for _, tile := range g.Tiles {
					tx, ty := spatial.ToProjectedMeters(tile.Lat, tile.Lon)
					if math.Abs(px-tx) <= half && math.Abs(py-ty) <= half {
						covered = true
						break
					}
				}
				if !covered {
					t.Fatalf("point at bearing %v, %vm from (%v,%v) not covered", bearing, c.radius*frac, c.lat, c.lon)
				}
			}
		}
	}
}

func TestGenerateLegacyGrid(t *testing.T) {
	g := GenerateLegacyGrid(testLat, testLon, 1500, 20, 640)
	require.Len(t, g.Tiles, 9)
	assert.Equal(t, 3, g.Rows)

	center := g.Tiles[4]
	assert.Equal(t, 5, center.Index)
	assert.InDelta(t, testLat, center.Lat, 1e-12)
	assert.InDelta(t, testLon, center.Lon, 1e-12)

	// neighbors sit half of the radius (in degrees) away
	assert.InDelta(t, 1500/legacyMetersPerDegree/2, g.Tiles[1].Lat-testLat, 1e-12)
	assert.Less(t, g.Tiles[3].Lon, testLon)
}

func TestGenerateValidatesInput(t *testing.T) {
	_, err := Generate(95, 0, 500, Options{Zoom: 20, TileSize: 640})
	assert.Error(t, err)

	_, err = Generate(0, 0, 500, Options{Zoom: 20})
	assert.Error(t, err)

	g, err := Generate(testLat, testLon, 5000, Options{Zoom: 20, TileSize: 640, Legacy: true})
	require.NoError(t, err)
	assert.Len(t, g.Tiles, 9)
}
