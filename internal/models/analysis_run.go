package models

import "time"

// AnalysisRun is one persisted analysis of a substation area.
type AnalysisRun struct {
	ID    int64  `json:"id" db:"id"`
	RunID string `json:"run_id" db:"run_id"`

	// Input
	SubstationID string  `json:"sub_id" db:"sub_id"`
	Lat          float64 `json:"lat" db:"lat"`
	Lon          float64 `json:"lon" db:"lon"`
	RadiusM      float64 `json:"radius_m" db:"radius_m"`
	Mode         string  `json:"mode" db:"mode"` // batch, stream

	// Status
	Status          string `json:"status" db:"status"` // pending, running, completed, failed
	ProgressPercent int    `json:"progress_percent" db:"progress_percent"`

	// Execution info
	TotalTiles  int   `json:"total_tiles" db:"total_tiles"`
	FailedTiles int   `json:"failed_tiles" db:"failed_tiles"`
	Detections  int   `json:"detections" db:"detections"`
	StartTime   int64 `json:"start_time,omitempty" db:"start_time"` // Unix timestamp
	EndTime     int64 `json:"end_time,omitempty" db:"end_time"`     // Unix timestamp

	// Results
	ResultJSON   string `json:"-" db:"result_json"`
	ReportJSON   string `json:"-" db:"report_json"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RunMode constants
const (
	RunModeBatch  = "batch"
	RunModeStream = "stream"
)

// TaskStatus constants
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// RunFilter narrows AnalysisRun listings.
type RunFilter struct {
	SubstationID string `form:"sub_id"`
	Status       string `form:"status"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}
