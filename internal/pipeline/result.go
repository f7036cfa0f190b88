package pipeline

import (
	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/impact"
	"github.com/jengzang/solarscan-backend-go/internal/landuse"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/tiling"
)

// TileFailure records a tile excluded from aggregation.
type TileFailure struct {
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	TileIndex int    `json:"tile_index"`
	Error     string `json:"error"`
}

// Stats summarizes a run.
type Stats struct {
	TilesTotal    int               `json:"tiles_total"`
	TilesOK       int               `json:"tiles_ok"`
	TilesFailed   int               `json:"tiles_failed"`
	RawDetections int               `json:"raw_detections"`
	Detections    int               `json:"detections"`
	GeoFallbacks  int               `json:"geo_fallbacks"`
	Confidence    detection.Metrics `json:"confidence"`
	DurationMS    int64             `json:"duration_ms"`
}

// LandUseSummary describes the polygons used by the join.
type LandUseSummary struct {
	Provider   string                `json:"provider"`
	Region     string                `json:"region,omitempty"`
	Success    bool                  `json:"success"`
	Polygons   int                   `json:"polygons"`
	Skipped    int                   `json:"skipped_polygons"`
	Diagnostic string                `json:"diagnostic,omitempty"`
	Counts     map[landuse.Label]int `json:"counts"`
}

// Result is the outcome of one analysis. A non-empty Error means the input
// was rejected and the other fields are mostly empty.
type Result struct {
	RunID            string                 `json:"run_id"`
	Input            models.SubstationInput `json:"input"`
	Grid             tiling.Grid            `json:"tile_grid"`
	Detections       []detection.Detection  `json:"detections"`
	JoinedDetections []detection.Detection  `json:"joined_detections"`
	FailedTiles      []TileFailure          `json:"failed_tiles,omitempty"`
	Stats            Stats                  `json:"stats"`
	LandUse          LandUseSummary         `json:"landuse"`
	Impact           *impact.Assessment     `json:"impact,omitempty"`
	Report           *impact.Report         `json:"report,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

// Failed reports whether the input was rejected.
func (r Result) Failed() bool { return r.Error != "" }
