package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness and database reachability.
type HealthHandler struct {
	db      *sql.DB
	version string
	started time.Time
	runs    func() (map[string]int, error)
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *sql.DB, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, started: time.Now()}
}

// WithRunCounts adds per-status run counts to the report.
func (h *HealthHandler) WithRunCounts(fn func() (map[string]int, error)) *HealthHandler {
	h.runs = fn
	return h
}

// Check answers 200 when the database responds and 503 otherwise.
// GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	status, code := "ok", http.StatusOK
	dbStatus := "disabled"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		dbStatus = "ok"
		if err := h.db.PingContext(ctx); err != nil {
			status, code, dbStatus = "degraded", http.StatusServiceUnavailable, err.Error()
		}
	}

	body := gin.H{
		"status":         status,
		"message":        "SolarScan API is running",
		"version":        h.version,
		"database":       dbStatus,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.runs != nil && code == http.StatusOK {
		if counts, err := h.runs(); err == nil {
			body["runs"] = counts
		}
	}
	c.JSON(code, body)
}
