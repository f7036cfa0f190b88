// Package tiling lays out the satellite tiles that cover a circular area of
// interest and decides the order they are processed in.
package tiling

import (
	"fmt"
	"math"

	"github.com/jengzang/solarscan-backend-go/internal/spatial"
)

// legacyMetersPerDegree is the degree length used by the fixed 3x3 layout.
const legacyMetersPerDegree = 111139.0

// Tile is one image position in the grid. Row 0 is the northernmost row and
// Col 0 the westernmost column; Index is row-major starting at 1.
type Tile struct {
	Row   int     `json:"row"`
	Col   int     `json:"col"`
	Index int     `json:"tile_index"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// Grid is an ordered tile layout with its dimensions.
type Grid struct {
	Tiles []Tile `json:"tiles"`
	Rows  int    `json:"rows"`
	Cols  int    `json:"cols"`
	Zoom  int    `json:"zoom"`
	// FootprintM is the ground width of one tile in meters.
	FootprintM float64 `json:"footprint_m"`
}

// Center returns the designated center cell.
func (g Grid) Center() (row, col int) {
	return g.Rows / 2, g.Cols / 2
}

// Options controls grid generation.
type Options struct {
	Zoom     int
	TileSize int
	Legacy   bool
}

// Generate builds a grid for the given center and radius using the
// configured mode.
func Generate(lat, lon, radiusM float64, opts Options) (Grid, error) {
	if !spatial.ValidLatLon(lat, lon) {
		return Grid{}, fmt.Errorf("invalid center (%v, %v)", lat, lon)
	}
	if opts.TileSize <= 0 {
		return Grid{}, fmt.Errorf("invalid tile size %d", opts.TileSize)
	}
	if opts.Legacy {
		return GenerateLegacyGrid(lat, lon, radiusM, opts.Zoom, opts.TileSize), nil
	}
	return GenerateGrid(lat, lon, radiusM, opts.Zoom, opts.TileSize), nil
}

// TileFootprint returns the ground width in meters covered by one tile of
// tileSize pixels at the given latitude and zoom.
func TileFootprint(lat float64, zoom, tileSize int) float64 {
	return float64(tileSize) * spatial.MetersPerPixel(lat, zoom)
}

// HalfExtent returns how many tiles are needed on each side of the center
// tile to cover radiusM. It is never below 1, so the smallest grid is 3x3.
func HalfExtent(lat, radiusM, footprintM float64) int {
	if footprintM <= 0 || radiusM <= 0 {
		return 1
	}
	cosLat := math.Cos(spatial.ClampLat(lat) * math.Pi / 180)
	n := int(math.Ceil(radiusM / cosLat / footprintM))
	if n < 1 {
		n = 1
	}
	return n
}

// GenerateGrid produces the radius-adaptive grid. Tile centers sit at integer
// multiples of the footprint from the center in projected meters, rows from
// north to south and columns from west to east.
func GenerateGrid(lat, lon, radiusM float64, zoom, tileSize int) Grid {
	footprint := TileFootprint(lat, zoom, tileSize)
	half := HalfExtent(lat, radiusM, footprint)

	// A tile spans footprint/cos(lat) projected meters, so stepping by the
	// ground footprint leaves a deliberate overlap between neighbors.
	step := footprint

	cx, cy := spatial.ToProjectedMeters(lat, lon)
	side := 2*half + 1
	tiles := make([]Tile, 0, side*side)
	for row := 0; row < side; row++ {
		dy := float64(half-row) * step
		for col := 0; col < side; col++ {
			dx := float64(col-half) * step
			tLat, tLon := spatial.FromProjectedMeters(cx+dx, cy+dy)
			tiles = append(tiles, Tile{
				Row:   row,
				Col:   col,
				Index: row*side + col + 1,
				Lat:   tLat,
				Lon:   tLon,
			})
		}
	}

	return Grid{Tiles: tiles, Rows: side, Cols: side, Zoom: zoom, FootprintM: footprint}
}

// GenerateLegacyGrid produces the fixed 3x3 layout. Neighbors sit half the
// radius (in degrees) away from the center regardless of zoom.
func GenerateLegacyGrid(lat, lon, radiusM float64, zoom, tileSize int) Grid {
	deltaLat := radiusM / legacyMetersPerDegree
	deltaLon := radiusM / (legacyMetersPerDegree * math.Cos(spatial.ClampLat(lat)*math.Pi/180))
	stepLat, stepLon := deltaLat/2, deltaLon/2

	tiles := make([]Tile, 0, 9)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			tiles = append(tiles, Tile{
				Row:   row,
				Col:   col,
				Index: row*3 + col + 1,
				Lat:   lat + float64(1-row)*stepLat,
				Lon:   lon + float64(col-1)*stepLon,
			})
		}
	}

	return Grid{Tiles: tiles, Rows: 3, Cols: 3, Zoom: zoom, FootprintM: TileFootprint(lat, zoom, tileSize)}
}

// ProjectedSpan returns the width of one tile in projected meters.
func ProjectedSpan(zoom, tileSize int) float64 {
	return float64(tileSize) * spatial.MetersPerPixel(0, zoom)
}
