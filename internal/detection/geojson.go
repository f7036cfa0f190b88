package detection

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToFeatureCollection exports detections as GeoJSON points.
func ToFeatureCollection(dets []Detection) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, d := range dets {
		f := geojson.NewFeature(orb.Point{d.Lon, d.Lat})
		f.Properties["confidence"] = d.Confidence
		f.Properties["tile_index"] = d.TileIndex
		if d.GeoFallback {
			f.Properties["geo_fallback"] = true
		}
		if d.LandUse != "" {
			f.Properties["landuse"] = d.LandUse
			f.Properties["landuse_confidence"] = d.LandUseConfidence
		}
		if d.LandUseNearM != nil {
			f.Properties["landuse_near_m"] = *d.LandUseNearM
		}
		fc.Append(f)
	}
	return fc
}
