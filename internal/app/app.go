// Package app assembles the service from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/solarscan-backend-go/internal/api"
	"github.com/jengzang/solarscan-backend-go/internal/cache"
	"github.com/jengzang/solarscan-backend-go/internal/config"
	"github.com/jengzang/solarscan-backend-go/internal/database"
	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/handler"
	"github.com/jengzang/solarscan-backend-go/internal/imagery"
	"github.com/jengzang/solarscan-backend-go/internal/landuse"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/metrics"
	"github.com/jengzang/solarscan-backend-go/internal/middleware"
	"github.com/jengzang/solarscan-backend-go/internal/pipeline"
	"github.com/jengzang/solarscan-backend-go/internal/repository"
	"github.com/jengzang/solarscan-backend-go/internal/service"
)

const shutdownTimeout = 30 * time.Second

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *metrics.Metrics
	DB      *sql.DB
	Runner  *pipeline.Runner
	Service *service.AnalysisService

	runs    *repository.AnalysisRunRepository
	tiles   *imagery.CachedFetcher
	closers []func()
}

// New opens the database, runs migrations and builds the pipeline.
func New(cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	a.Metrics = metrics.New(metrics.Options{EnableProcessMetrics: true, EnableGoMetrics: true})

	db, err := database.Open(database.Config{Path: cfg.Database.Path}, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, func() { _ = db.Close() })

	if err := database.NewMigrationManager(db, logger).RunMigrations(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	tileCache := cache.NewLRU[[]byte]("tiles", cfg.Imagery.CacheSize,
		cache.WithTTL(cfg.Imagery.CacheTTL),
		cache.WithObserver(a.Metrics.RecordCacheAccess))
	a.closers = append(a.closers, tileCache.Stop)

	static := imagery.NewStaticMapsClient(cfg.Imagery.BaseURL, cfg.Imagery.APIKey, cfg.Imagery.Timeout, logger)
	retrying := imagery.NewRetryingFetcher(static, imagery.RetryConfig{
		MaxAttempts:    cfg.Imagery.MaxRetries,
		AttemptTimeout: cfg.Imagery.Timeout,
	}, logger)
	a.tiles = imagery.NewCachedFetcher(retrying, tileCache).
		WithLoadTimeout(time.Duration(cfg.Imagery.MaxRetries+1) * cfg.Imagery.Timeout)

	detector := detection.NewHTTPDetector(cfg.Detector.Endpoint, cfg.Detector.MinConfidence, cfg.Detector.Timeout, logger)

	files := landuse.NewFileCache(8, cache.WithTTL(time.Hour), cache.WithObserver(a.Metrics.RecordCacheAccess))
	a.closers = append(a.closers, files.Stop)

	a.Runner = pipeline.NewRunner(a.tiles, detector, landUseChain(cfg.LandUse, files, logger),
		pipeline.FromAppConfig(cfg),
		pipeline.WithLogger(logger),
		pipeline.WithObserver(a.Metrics))

	a.runs = repository.NewAnalysisRunRepository(db)
	a.Service = service.NewAnalysisService(a.Runner, a.runs, logger)
	return a, nil
}

// landUseChain orders the local GeoJSON sources from most to least specific
// and falls back to OpenStreetMap.
func landUseChain(cfg config.LandUseConfig, files *landuse.FileCache, logger logging.Logger) *landuse.Chain {
	var providers []landuse.Provider
	add := func(name, path string, region landuse.Region, mapper landuse.Mapper) {
		if path != "" {
			providers = append(providers, landuse.NewGeoJSONProvider(name, path, region, mapper, files))
		}
	}
	add("DATA.RIO", cfg.RioGeoJSON, landuse.RegionRio, landuse.RioMapper)
	add("GEOJSON_RJ", cfg.RJGeoJSON, landuse.RegionRJ, landuse.GenericMapper)
	add("GEOJSON_SP", cfg.SPGeoJSON, landuse.RegionSP, landuse.GenericMapper)
	add("GEOJSON_MG", cfg.MGGeoJSON, landuse.RegionMG, landuse.GenericMapper)

	providers = append(providers, landuse.NewOverpassProvider(landuse.OverpassConfig{
		Endpoints: cfg.OverpassEndpoints,
		Timeout:   cfg.OverpassTimeout,
		Attempts:  cfg.OverpassAttempts,
	}, logger))
	return landuse.NewChain(logger, providers...)
}

// Router builds the HTTP handler tree.
func (a *App) Router() *gin.Engine {
	gin.SetMode(a.Config.Server.Mode)

	limiter := middleware.NewRateLimiter(a.Config.Server.RateLimit, a.Config.Server.RateWindow)
	a.closers = append(a.closers, limiter.Stop)

	return api.SetupRouter(api.Deps{
		Analysis: handler.NewAnalysisHandler(a.Service, handler.StreamOptions{
			RetryMS:   a.Config.Server.SSERetryMS,
			KeepAlive: a.Config.Server.KeepAlive,
		}, a.Logger),
		Grid:        handler.NewGridHandler(a.Service),
		Tiles:       handler.NewTileHandler(a.tiles),
		Health:      handler.NewHealthHandler(a.DB, a.Config.Pipeline.Version).WithRunCounts(a.runs.CountByStatus),
		Metrics:     a.Metrics,
		MetricsPath: a.Config.Server.MetricsPath,
		Limiter:     limiter,
		JWTSecret:   a.Config.Auth.JWTSecret,
		Logger:      a.Logger,
	})
}

// Serve runs the HTTP server until ctx is cancelled, then drains queued
// analyses and in-flight requests.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server starting", logging.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down server: %w", err))
	}
	if err := a.Service.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain analyses: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases caches, limiter and database.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
