package spatial

import (
	"fmt"
	"strings"
)

const (
	geohashAlphabet     = "0123456789bcdefghjkmnpqrstuvwxyz"
	maxGeohashPrecision = 12
)

// geohashCellM is the approximate equatorial cell width per precision,
// index 0 unused.
var geohashCellM = [maxGeohashPrecision + 1]float64{
	0, 5000000, 625000, 123000, 19500, 3900, 610, 120, 19, 3.7, 0.6, 0.12, 0.019,
}

// EncodeGeohash returns the geohash of a point, precision clamped to [1,12].
func EncodeGeohash(lat, lon float64, precision int) string {
	precision = max(1, min(precision, maxGeohashPrecision))

	lo := [2]float64{-180, -90} // lon, lat
	hi := [2]float64{180, 90}
	val := [2]float64{lon, lat}

	var sb strings.Builder
	sb.Grow(precision)
	axis := 0
	for sb.Len() < precision {
		var idx byte
		for i := 0; i < 5; i++ {
			mid := (lo[axis] + hi[axis]) / 2
			idx <<= 1
			if val[axis] > mid {
				idx |= 1
				lo[axis] = mid
			} else {
				hi[axis] = mid
			}
			axis ^= 1
		}
		sb.WriteByte(geohashAlphabet[idx])
	}
	return sb.String()
}

// DecodeGeohash returns the center of a geohash cell. Characters outside the
// alphabet are ignored.
func DecodeGeohash(hash string) (lat, lon float64) {
	lo := [2]float64{-180, -90}
	hi := [2]float64{180, 90}
	axis := 0
	for _, r := range hash {
		idx := strings.IndexRune(geohashAlphabet, r)
		if idx < 0 {
			continue
		}
		for bit := 4; bit >= 0; bit-- {
			mid := (lo[axis] + hi[axis]) / 2
			if idx&(1<<bit) != 0 {
				lo[axis] = mid
			} else {
				hi[axis] = mid
			}
			axis ^= 1
		}
	}
	return (lo[1] + hi[1]) / 2, (lo[0] + hi[0]) / 2
}

// GeohashPrecisionForDistance returns the coarsest precision whose cell is no
// wider than distanceMeters.
func GeohashPrecisionForDistance(distanceMeters float64) int {
	for p := 1; p <= maxGeohashPrecision; p++ {
		if geohashCellM[p] <= distanceMeters {
			return p
		}
	}
	return maxGeohashPrecision
}

// TileKey identifies a tile image request. Centers closer than the geohash
// cell chosen for the tile's pixel size share a key.
func TileKey(lat, lon float64, zoom, size, scale int) string {
	precision := GeohashPrecisionForDistance(MetersPerPixel(lat, zoom))
	return fmt.Sprintf("%s-z%d-s%d-x%d", EncodeGeohash(lat, lon, precision), zoom, size, scale)
}
