package spatial

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const (
	EarthRadiusMeters = 6371000.0 // mean radius, used for great-circle distances
	MetersPerDegree   = 111320.0  // one degree of latitude
)

// HaversineDistance returns the great-circle distance in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return AngleToMeters(s2.LatLngFromDegrees(lat1, lon1).Distance(s2.LatLngFromDegrees(lat2, lon2)).Radians())
}

// DestinationPoint moves distance meters from a point along bearing
// (degrees clockwise from north).
func DestinationPoint(lat, lon, bearing, distance float64) (float64, float64) {
	start := s2.LatLngFromDegrees(lat, lon)
	phi, lambda := start.Lat.Radians(), start.Lng.Radians()
	theta := (s1.Angle(bearing) * s1.Degree).Radians()
	delta := MetersToAngle(distance)

	sinPhi2 := math.Sin(phi)*math.Cos(delta) + math.Cos(phi)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	lambda2 := lambda + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(phi), math.Cos(delta)-math.Sin(phi)*sinPhi2)

	dest := s2.LatLng{Lat: s1.Angle(phi2), Lng: s1.Angle(lambda2)}
	return dest.Lat.Degrees(), dest.Lng.Degrees()
}

// MetersToAngle converts a ground distance to radians on the mean-radius sphere.
func MetersToAngle(m float64) float64 {
	return m / EarthRadiusMeters
}

// AngleToMeters is the inverse of MetersToAngle.
func AngleToMeters(rad float64) float64 {
	return rad * EarthRadiusMeters
}
