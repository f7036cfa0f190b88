// Package detection holds the pixel-space detection model and the steps that
// turn per-tile detections into geolocated, de-duplicated panels.
package detection

// Box is the canonical pixel-space bounding box, x1 <= x2 and y1 <= y2.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Center returns the box center in pixels.
func (b Box) Center() (cx, cy float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Land-use match confidence tags written by the spatial join.
const (
	MatchContains = "contains"
	MatchNear     = "near"
	MatchNone     = "none"
)

// Detection is one detected panel. The detector fills the pixel fields, the
// pipeline adds the tile fields and coordinates, and the spatial join adds
// the land-use fields.
type Detection struct {
	Box        *Box    `json:"box,omitempty"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	Class      string  `json:"class,omitempty"`

	TileIndex   int     `json:"tile_index"`
	TileRow     int     `json:"tile_row"`
	TileCol     int     `json:"tile_col"`
	TileLat     float64 `json:"tile_lat"`
	TileLon     float64 `json:"tile_lon"`
	TileZoom    int     `json:"tile_zoom"`
	ImageWidth  int     `json:"tile_image_width"`
	ImageHeight int     `json:"tile_image_height"`

	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	GeoFallback bool    `json:"geo_fallback,omitempty"`

	LandUse           string   `json:"landuse,omitempty"`
	LandUseConfidence string   `json:"landuse_confidence,omitempty"`
	LandUseNearM      *float64 `json:"landuse_near_m,omitempty"`
}
