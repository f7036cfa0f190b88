package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/solarscan-backend-go/internal/database"
	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("analysis run not found")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

const runColumns = `id, run_id, sub_id, lat, lon, radius_m, mode, status, progress_percent,
	total_tiles, failed_tiles, detections, start_time, end_time,
	result_json, report_json, error_message, created_at, updated_at`

// AnalysisRunRepository handles database operations for analysis runs
type AnalysisRunRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAnalysisRunRepository creates a new analysis run repository
func NewAnalysisRunRepository(db *sql.DB) *AnalysisRunRepository {
	return &AnalysisRunRepository{db: db, now: time.Now}
}

// Create inserts a pending run and sets run.ID.
func (r *AnalysisRunRepository) Create(run *models.AnalysisRun) error {
	if run.Status == "" {
		run.Status = models.TaskStatusPending
	}
	if run.Mode == "" {
		run.Mode = models.RunModeBatch
	}

	query := `
		INSERT INTO analysis_runs (
			run_id, sub_id, lat, lon, radius_m, mode, status, progress_percent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		run.RunID,
		run.SubstationID,
		run.Lat,
		run.Lon,
		run.RadiusM,
		run.Mode,
		run.Status,
		run.ProgressPercent,
	)
	if err != nil {
		return fmt.Errorf("failed to create analysis run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// GetByRunID retrieves a run by its public id.
func (r *AnalysisRunRepository) GetByRunID(runID string) (*models.AnalysisRun, error) {
	row := r.db.QueryRow("SELECT "+runColumns+" FROM analysis_runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis run: %w", err)
	}
	return run, nil
}

// List retrieves runs newest first.
func (r *AnalysisRunRepository) List(filter models.RunFilter) ([]*models.AnalysisRun, error) {
	query := "SELECT " + runColumns + " FROM analysis_runs WHERE 1=1"

	args := []interface{}{}
	if filter.SubstationID != "" {
		query += " AND sub_id = ?"
		args = append(args, filter.SubstationID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.AnalysisRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkRunning records the start of a run and its tile count.
func (r *AnalysisRunRepository) MarkRunning(runID string, totalTiles int) error {
	query := `
		UPDATE analysis_runs
		SET status = ?, total_tiles = ?, start_time = ?, updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ?
	`
	return r.exec("mark run as running", query, models.TaskStatusRunning, totalTiles, r.now().Unix(), runID)
}

// UpdateProgress stores the completion percentage.
func (r *AnalysisRunRepository) UpdateProgress(runID string, percent int) error {
	query := `
		UPDATE analysis_runs
		SET progress_percent = ?, updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ?
	`
	return r.exec("update run progress", query, percent, runID)
}

// RunOutcome is what a finished run persists.
type RunOutcome struct {
	TotalTiles  int
	FailedTiles int
	Detections  []detection.Detection
	ResultJSON  string
	ReportJSON  string
}

// MarkCompleted stores the outcome and the joined detections in one
// transaction.
func (r *AnalysisRunRepository) MarkCompleted(runID string, out RunOutcome) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE analysis_runs
			SET status = ?, progress_percent = 100, total_tiles = ?, failed_tiles = ?,
				detections = ?, end_time = ?, result_json = ?, report_json = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE run_id = ?
		`, models.TaskStatusCompleted, out.TotalTiles, out.FailedTiles, len(out.Detections),
			r.now().Unix(), out.ResultJSON, out.ReportJSON, runID)
		if err != nil {
			return fmt.Errorf("failed to mark run as completed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}

		if _, err := tx.Exec("DELETE FROM run_detections WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear run detections: %w", err)
		}
		stmt, err := tx.Prepare(`
			INSERT INTO run_detections (
				run_id, tile_index, confidence, lat, lon, geo_fallback, landuse, landuse_confidence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare detection insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range out.Detections {
			landUse, conf := d.LandUse, d.LandUseConfidence
			if landUse == "" {
				landUse = "unknown"
			}
			if conf == "" {
				conf = detection.MatchNone
			}
			if _, err := stmt.Exec(runID, d.TileIndex, d.Confidence, d.Lat, d.Lon, d.GeoFallback, landUse, conf); err != nil {
				return fmt.Errorf("failed to insert detection: %w", err)
			}
		}
		return nil
	})
}

// MarkFailed marks a run as failed with an error message
func (r *AnalysisRunRepository) MarkFailed(runID string, errorMessage string) error {
	query := `
		UPDATE analysis_runs
		SET status = ?, end_time = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ?
	`
	return r.exec("mark run as failed", query, models.TaskStatusFailed, r.now().Unix(), errorMessage, runID)
}

// ListDetections returns the stored detections of a run in tile order.
func (r *AnalysisRunRepository) ListDetections(runID string) ([]detection.Detection, error) {
	rows, err := r.db.Query(`
		SELECT tile_index, confidence, lat, lon, geo_fallback, landuse, landuse_confidence
		FROM run_detections
		WHERE run_id = ?
		ORDER BY tile_index, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run detections: %w", err)
	}
	defer rows.Close()

	dets := []detection.Detection{}
	for rows.Next() {
		var d detection.Detection
		if err := rows.Scan(&d.TileIndex, &d.Confidence, &d.Lat, &d.Lon, &d.GeoFallback, &d.LandUse, &d.LandUseConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		dets = append(dets, d)
	}
	return dets, rows.Err()
}

// CountByStatus returns the number of runs per status.
func (r *AnalysisRunRepository) CountByStatus() (map[string]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM analysis_runs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count analysis runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan run count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *AnalysisRunRepository) exec(what, query string, args ...interface{}) error {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %v", ErrNotFound, args[len(args)-1])
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.AnalysisRun, error) {
	run := &models.AnalysisRun{}
	err := row.Scan(
		&run.ID,
		&run.RunID,
		&run.SubstationID,
		&run.Lat,
		&run.Lon,
		&run.RadiusM,
		&run.Mode,
		&run.Status,
		&run.ProgressPercent,
		&run.TotalTiles,
		&run.FailedTiles,
		&run.Detections,
		&run.StartTime,
		&run.EndTime,
		&run.ResultJSON,
		&run.ReportJSON,
		&run.ErrorMessage,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
