package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/service"
	"github.com/jengzang/solarscan-backend-go/internal/tiling"
	"github.com/jengzang/solarscan-backend-go/pkg/response"
)

// GridHandler previews tile layouts without fetching imagery.
type GridHandler struct {
	service *service.AnalysisService
}

// NewGridHandler creates a new grid handler
func NewGridHandler(svc *service.AnalysisService) *GridHandler {
	return &GridHandler{service: svc}
}

// GridPreview is a grid with the order tiles would be processed in.
type GridPreview struct {
	tiling.Grid
	Order []int `json:"order"`
}

// Preview returns the grid an analysis of the input would use.
// POST /api/v1/grid
func (h *GridHandler) Preview(c *gin.Context) {
	var in models.SubstationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	grid, err := h.service.Grid(in)
	if err != nil {
		response.Invalid(c, err)
		return
	}

	ordered := tiling.OrderCenterOut(grid.Tiles)
	order := make([]int, len(ordered))
	for i, t := range ordered {
		order[i] = t.Index
	}
	response.Success(c, GridPreview{Grid: grid, Order: order})
}

// TileStore looks up a cached tile image by key.
type TileStore interface {
	Peek(key string) ([]byte, bool)
}

// TileHandler serves tile images that are still cached.
type TileHandler struct {
	tiles TileStore
}

// NewTileHandler creates a new tile handler
func NewTileHandler(tiles TileStore) *TileHandler {
	return &TileHandler{tiles: tiles}
}

// Get serves the image referenced by a tile_ready event.
// GET /api/v1/tiles/:key
func (h *TileHandler) Get(c *gin.Context) {
	img, ok := h.tiles.Peek(c.Param("key"))
	if !ok {
		response.NotFound(c, "tile not cached")
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, http.DetectContentType(img), img)
}
