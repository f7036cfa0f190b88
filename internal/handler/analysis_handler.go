package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/pipeline"
	"github.com/jengzang/solarscan-backend-go/internal/repository"
	"github.com/jengzang/solarscan-backend-go/internal/service"
	"github.com/jengzang/solarscan-backend-go/pkg/response"
)

// MaxBatchSize bounds one batch request.
const MaxBatchSize = 100

// StreamOptions tunes the server-sent event stream.
type StreamOptions struct {
	RetryMS   int
	KeepAlive time.Duration
}

// AnalysisHandler handles HTTP requests for analyses
type AnalysisHandler struct {
	service *service.AnalysisService
	logger  logging.Logger
	stream  StreamOptions
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(svc *service.AnalysisService, opts StreamOptions, logger logging.Logger) *AnalysisHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.RetryMS <= 0 {
		opts.RetryMS = 1500
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	return &AnalysisHandler{service: svc, logger: logger.Named("analysis_handler"), stream: opts}
}

// Create runs one analysis. With ?async=true it is queued and a 202 with
// the pending run is returned instead.
// POST /api/v1/analyses
func (h *AnalysisHandler) Create(c *gin.Context) {
	var in models.SubstationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		run, err := h.service.Submit(in)
		switch {
		case models.IsValidationError(err):
			response.Invalid(c, err)
		case errors.Is(err, service.ErrShuttingDown):
			response.ServiceUnavailable(c, err.Error())
		case err != nil:
			response.InternalError(c, err.Error())
		default:
			response.Accepted(c, run)
		}
		return
	}

	res, err := h.service.Run(c.Request.Context(), in)
	if err != nil {
		response.Invalid(c, err)
		return
	}
	response.Success(c, res)
}

// BatchRequest is the body of a batch analysis.
type BatchRequest struct {
	Substations []models.SubstationInput `json:"substations" binding:"required"`
}

// Batch runs several analyses. Each input succeeds or fails on its own.
// POST /api/v1/analyses/batch
func (h *AnalysisHandler) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Substations) == 0 {
		response.BadRequest(c, "substations must not be empty")
		return
	}
	if len(req.Substations) > MaxBatchSize {
		response.BadRequest(c, fmt.Sprintf("at most %d substations per batch", MaxBatchSize))
		return
	}

	response.Success(c, h.service.RunBatch(c.Request.Context(), req.Substations))
}

// Get returns a stored run.
// GET /api/v1/analyses/:run_id
func (h *AnalysisHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Param("run_id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	response.Success(c, view)
}

// List returns stored runs, newest first.
// GET /api/v1/analyses
func (h *AnalysisHandler) List(c *gin.Context) {
	var filter models.RunFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query: "+err.Error())
		return
	}
	runs, err := h.service.List(filter)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"runs": runs, "count": len(runs)})
}

// Detections returns the joined detections of a run, as GeoJSON with
// ?format=geojson.
// GET /api/v1/analyses/:run_id/detections
func (h *AnalysisHandler) Detections(c *gin.Context) {
	dets, err := h.service.Detections(c.Param("run_id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, detection.ToFeatureCollection(dets))
		return
	}
	response.Success(c, dets)
}

func (h *AnalysisHandler) storeError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	response.InternalError(c, err.Error())
}

// Stream runs one analysis and pushes its events as server-sent events.
// The input comes from the query string so EventSource can open it.
// GET /api/v1/analyses/stream?id_subestacao=&lat=&lon=&raio_m=
func (h *AnalysisHandler) Stream(c *gin.Context) {
	var in models.SubstationInput
	if err := c.ShouldBindQuery(&in); err != nil {
		response.BadRequest(c, "Invalid query: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	events := make(chan pipeline.Event, 64)
	go func() {
		defer close(events)
		h.service.Stream(ctx, in, func(e pipeline.Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
	}()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.stream.RetryMS)
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.stream.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("stream client gone", logging.Err(ctx.Err()))
			return
		case <-keepAlive.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			c.Writer.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			c.Render(-1, sse.Event{Id: strconv.Itoa(e.Seq), Event: string(e.Type), Data: e})
			c.Writer.Flush()
		}
	}
}
