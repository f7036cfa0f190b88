package config

import "time"

const (
	GridModeAdaptive = "adaptive"
	GridModeLegacy   = "legacy"

	DefaultPort           = ":8080"
	DefaultMode           = "release"
	DefaultRateLimit      = 120
	DefaultRateWindow     = time.Minute
	DefaultKeepAlive      = 15 * time.Second
	DefaultSSERetryMS     = 1500
	DefaultMetricsPath    = "/metrics"
	DefaultDBPath         = "./data/solarscan.db"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultImageryBaseURL = "https://maps.googleapis.com/maps/api/staticmap"
	DefaultZoom           = 20
	DefaultTileSize       = 640
	DefaultScale          = 1
	DefaultFetchTimeout   = 15 * time.Second
	DefaultMaxRetries     = 3
	DefaultCacheSize      = 512
	DefaultCacheTTL       = 30 * time.Minute
	DefaultMinConfidence  = 0.5
	DefaultDetectTimeout  = 30 * time.Second
	DefaultWorkers        = 6
	MinWorkers            = 1
	MaxWorkers            = 32
	DefaultIoUThreshold   = 0.5
	DefaultRadiusM        = 1500.0
	DefaultMaxRadiusM     = 5000.0
	DefaultNearDistanceM  = 60.0
	DefaultOverpassWait   = 25 * time.Second
	DefaultOverpassTries  = 3
	PipelineVersion       = "solarscan-go/1.0"
)

var DefaultOverpassEndpoints = []string{
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass-api.de/api/interpreter",
	"https://overpass.nchc.org.tw/api/interpreter",
}

// defaultValues is registered on viper so every key is visible to env overrides.
var defaultValues = map[string]interface{}{
	"server.port":                 DefaultPort,
	"server.mode":                 DefaultMode,
	"server.rate_limit":           DefaultRateLimit,
	"server.rate_window":          DefaultRateWindow,
	"server.keep_alive":           DefaultKeepAlive,
	"server.sse_retry_ms":         DefaultSSERetryMS,
	"server.metrics_path":         DefaultMetricsPath,
	"database.path":               DefaultDBPath,
	"auth.jwt_secret":             "",
	"log.level":                   DefaultLogLevel,
	"log.format":                  DefaultLogFormat,
	"imagery.base_url":            DefaultImageryBaseURL,
	"imagery.api_key":             "",
	"imagery.zoom":                DefaultZoom,
	"imagery.size":                DefaultTileSize,
	"imagery.scale":               DefaultScale,
	"imagery.timeout":             DefaultFetchTimeout,
	"imagery.max_retries":         DefaultMaxRetries,
	"imagery.cache_size":          DefaultCacheSize,
	"imagery.cache_ttl":           DefaultCacheTTL,
	"detector.endpoint":           "",
	"detector.min_confidence":     DefaultMinConfidence,
	"detector.timeout":            DefaultDetectTimeout,
	"grid.mode":                   GridModeAdaptive,
	"pipeline.workers":            DefaultWorkers,
	"pipeline.iou_threshold":      DefaultIoUThreshold,
	"pipeline.default_radius_m":   DefaultRadiusM,
	"pipeline.max_radius_m":       DefaultMaxRadiusM,
	"pipeline.version":            PipelineVersion,
	"landuse.near_distance_m":     DefaultNearDistanceM,
	"landuse.rio_geojson":         "",
	"landuse.rj_geojson":          "",
	"landuse.sp_geojson":          "",
	"landuse.mg_geojson":          "",
	"landuse.overpass_endpoints":  DefaultOverpassEndpoints,
	"landuse.overpass_timeout":    DefaultOverpassWait,
	"landuse.overpass_attempts":   DefaultOverpassTries,
}

// ApplyDefaults fills zero values and clamps the worker count.
func ApplyDefaults(c *Config) {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.Mode == "" {
		c.Server.Mode = DefaultMode
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = DefaultRateLimit
	}
	if c.Server.RateWindow <= 0 {
		c.Server.RateWindow = DefaultRateWindow
	}
	if c.Server.KeepAlive <= 0 {
		c.Server.KeepAlive = DefaultKeepAlive
	}
	if c.Server.SSERetryMS <= 0 {
		c.Server.SSERetryMS = DefaultSSERetryMS
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Imagery.BaseURL == "" {
		c.Imagery.BaseURL = DefaultImageryBaseURL
	}
	if c.Imagery.Zoom == 0 {
		c.Imagery.Zoom = DefaultZoom
	}
	if c.Imagery.Size == 0 {
		c.Imagery.Size = DefaultTileSize
	}
	if c.Imagery.Scale <= 0 {
		c.Imagery.Scale = DefaultScale
	}
	if c.Imagery.Timeout <= 0 {
		c.Imagery.Timeout = DefaultFetchTimeout
	}
	if c.Imagery.MaxRetries <= 0 {
		c.Imagery.MaxRetries = DefaultMaxRetries
	}
	if c.Imagery.CacheSize <= 0 {
		c.Imagery.CacheSize = DefaultCacheSize
	}
	if c.Imagery.CacheTTL <= 0 {
		c.Imagery.CacheTTL = DefaultCacheTTL
	}
	if c.Detector.MinConfidence <= 0 {
		c.Detector.MinConfidence = DefaultMinConfidence
	}
	if c.Detector.Timeout <= 0 {
		c.Detector.Timeout = DefaultDetectTimeout
	}
	if c.Grid.Mode == "" {
		c.Grid.Mode = GridModeAdaptive
	}
	c.Pipeline.Workers = ClampWorkers(c.Pipeline.Workers)
	if c.Pipeline.IoUThreshold == 0 {
		c.Pipeline.IoUThreshold = DefaultIoUThreshold
	}
	if c.Pipeline.DefaultRadiusM <= 0 {
		c.Pipeline.DefaultRadiusM = DefaultRadiusM
	}
	if c.Pipeline.MaxRadiusM <= 0 {
		c.Pipeline.MaxRadiusM = DefaultMaxRadiusM
	}
	if c.Pipeline.Version == "" {
		c.Pipeline.Version = PipelineVersion
	}
	if c.LandUse.NearDistanceM == 0 {
		c.LandUse.NearDistanceM = DefaultNearDistanceM
	}
	if len(c.LandUse.OverpassEndpoints) == 0 {
		c.LandUse.OverpassEndpoints = append([]string(nil), DefaultOverpassEndpoints...)
	}
	if c.LandUse.OverpassTimeout <= 0 {
		c.LandUse.OverpassTimeout = DefaultOverpassWait
	}
	if c.LandUse.OverpassAttempts <= 0 {
		c.LandUse.OverpassAttempts = DefaultOverpassTries
	}
}

// ClampWorkers bounds a worker count to [MinWorkers, MaxWorkers]; zero means default.
func ClampWorkers(n int) int {
	switch {
	case n == 0:
		return DefaultWorkers
	case n < MinWorkers:
		return MinWorkers
	case n > MaxWorkers:
		return MaxWorkers
	}
	return n
}
