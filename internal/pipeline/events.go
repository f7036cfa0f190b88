package pipeline

import (
	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/impact"
)

// EventType names a streamed event.
type EventType string

const (
	EventSubStart  EventType = "sub_start"
	EventGridReady EventType = "grid_ready"
	EventTileReady EventType = "tile_ready"
	EventTileFail  EventType = "tile_fail"
	EventDetAdd    EventType = "det_add"
	EventProgress  EventType = "progress"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Terminal reports whether no event follows this one.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// Event is one message of a streamed analysis. Data holds the payload type
// matching Type.
type Event struct {
	Type  EventType   `json:"type"`
	RunID string      `json:"run_id"`
	SubID string      `json:"sub_id"`
	Seq   int         `json:"seq"`
	Data  interface{} `json:"data"`
}

// SubStart opens a stream.
type SubStart struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	RadiusM float64 `json:"radius_m"`
}

// GridReady announces the tile layout.
type GridReady struct {
	TileCount  int     `json:"tile_count"`
	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
	Zoom       int     `json:"zoom"`
	FootprintM float64 `json:"footprint_m"`
}

// TileReady reports a processed tile. ImageRef is the cache key the image
// can be fetched under.
type TileReady struct {
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	TileIndex int     `json:"tile_index"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	ImageRef  string  `json:"image_ref"`
}

// TileFail reports a tile that could not be processed.
type TileFail struct {
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	TileIndex int    `json:"tile_index"`
	Error     string `json:"error"`
}

// DetAdd adds NewDet and retracts ReplacedID; either may be null.
type DetAdd struct {
	NewDet     *detection.MosaicBox `json:"new_det"`
	ReplacedID *string              `json:"replaced_id"`
}

// Progress counts finished tiles.
type Progress struct {
	Done               int     `json:"done"`
	Total              int     `json:"total"`
	DetectionsEmitted  int     `json:"detections_emitted"`
	// DetectionsUnplaced counts detections with no box. They never get a
	// det_add but are part of the final summary.
	DetectionsUnplaced int     `json:"detections_unplaced"`
	Pct                float64 `json:"pct"`
}

// Done closes a successful stream.
type Done struct {
	Summary Summary `json:"summary"`
}

// Summary is the final state of a streamed run.
type Summary struct {
	Stats       Stats                 `json:"stats"`
	Kept        []detection.MosaicBox `json:"kept"`
	LandUse     LandUseSummary        `json:"landuse"`
	Report      *impact.Report        `json:"report,omitempty"`
	FailedTiles []TileFailure         `json:"failed_tiles,omitempty"`
}

// ErrorData closes a failed stream.
type ErrorData struct {
	Message string `json:"message"`
}
