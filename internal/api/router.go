package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/solarscan-backend-go/internal/handler"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/metrics"
	"github.com/jengzang/solarscan-backend-go/internal/middleware"
)

// Deps bundles what the router wires into handlers.
type Deps struct {
	Analysis    *handler.AnalysisHandler
	Grid        *handler.GridHandler
	Tiles       *handler.TileHandler
	Health      *handler.HealthHandler
	Metrics     *metrics.Metrics
	MetricsPath string
	Limiter     *middleware.RateLimiter
	JWTSecret   string
	Logger      logging.Logger
}

// SetupRouter 设置路由
func SetupRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.MetricsPath == "" {
		d.MetricsPath = "/metrics"
	}
	r := gin.New()

	var recorder middleware.RequestRecorder
	if d.Metrics != nil {
		recorder = d.Metrics
	}
	r.Use(middleware.Recovery(d.Logger), middleware.Logger(d.Logger, recorder))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", d.Health.Check)
	if d.Metrics != nil {
		r.GET(d.MetricsPath, gin.WrapH(d.Metrics.Handler()))
	}

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(middleware.Auth(d.JWTSecret))
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter))
	}
	{
		analyses := api.Group("/analyses")
		{
			analyses.POST("", d.Analysis.Create)
			analyses.GET("", d.Analysis.List)
			analyses.POST("/batch", d.Analysis.Batch)
			analyses.GET("/stream", d.Analysis.Stream)
			analyses.GET("/ws", d.Analysis.WebSocket)
			analyses.GET("/:run_id", d.Analysis.Get)
			analyses.GET("/:run_id/detections", d.Analysis.Detections)
		}

		api.POST("/grid", d.Grid.Preview)
		api.GET("/tiles/:key", d.Tiles.Get)
	}

	return r
}
