package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	// MercatorRadius is the sphere radius used by Web-Mercator tiles.
	MercatorRadius = orb.EarthRadius

	// MaxMercatorLat keeps projection math away from the poles.
	MaxMercatorLat = 85.05

	// BaseTileSize is the pixel width of a zoom-0 Web-Mercator tile.
	BaseTileSize = 256
)

// ClampLat limits a latitude to [-MaxMercatorLat, MaxMercatorLat].
func ClampLat(lat float64) float64 {
	return math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
}

// MetersPerPixel returns the ground resolution of a Web-Mercator tile pixel
// at the given latitude and zoom.
func MetersPerPixel(lat float64, zoom int) float64 {
	latRad := ClampLat(lat) * math.Pi / 180
	return math.Cos(latRad) * 2 * math.Pi * MercatorRadius / (BaseTileSize * math.Exp2(float64(zoom)))
}

// ToProjectedMeters projects lat/lon to spherical Web-Mercator meters.
func ToProjectedMeters(lat, lon float64) (x, y float64) {
	p := project.WGS84.ToMercator(orb.Point{lon, ClampLat(lat)})
	return p[0], p[1]
}

// FromProjectedMeters is the inverse of ToProjectedMeters.
func FromProjectedMeters(x, y float64) (lat, lon float64) {
	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p[1], p[0]
}

// OffsetMeters moves a point by (dx, dy) meters in projected space.
// dy grows northwards.
func OffsetMeters(lat, lon, dx, dy float64) (float64, float64) {
	x, y := ToProjectedMeters(lat, lon)
	return FromProjectedMeters(x+dx, y+dy)
}
