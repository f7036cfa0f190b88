package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      logging.Config `mapstructure:"log"`
	Imagery  ImageryConfig  `mapstructure:"imagery"`
	Detector DetectorConfig `mapstructure:"detector"`
	Grid     GridConfig     `mapstructure:"grid"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	LandUse  LandUseConfig  `mapstructure:"landuse"`
}

type ServerConfig struct {
	Port        string        `mapstructure:"port"`
	Mode        string        `mapstructure:"mode"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
	KeepAlive   time.Duration `mapstructure:"keep_alive"`
	SSERetryMS  int           `mapstructure:"sse_retry_ms"`
	MetricsPath string        `mapstructure:"metrics_path"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig enables bearer JWT checks on /api/v1 when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ImageryConfig describes the satellite tile source.
type ImageryConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Zoom       int           `mapstructure:"zoom"`
	Size       int           `mapstructure:"size"`
	Scale      int           `mapstructure:"scale"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	CacheSize  int64         `mapstructure:"cache_size"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type DetectorConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// GridConfig selects between the radius-adaptive grid and the fixed 3x3 one.
type GridConfig struct {
	Mode string `mapstructure:"mode"`
}

type PipelineConfig struct {
	Workers        int     `mapstructure:"workers"`
	IoUThreshold   float64 `mapstructure:"iou_threshold"`
	DefaultRadiusM float64 `mapstructure:"default_radius_m"`
	MaxRadiusM     float64 `mapstructure:"max_radius_m"`
	Version        string  `mapstructure:"version"`
}

type LandUseConfig struct {
	NearDistanceM     float64       `mapstructure:"near_distance_m"`
	RioGeoJSON        string        `mapstructure:"rio_geojson"`
	RJGeoJSON         string        `mapstructure:"rj_geojson"`
	SPGeoJSON         string        `mapstructure:"sp_geojson"`
	MGGeoJSON         string        `mapstructure:"mg_geojson"`
	OverpassEndpoints []string      `mapstructure:"overpass_endpoints"`
	OverpassTimeout   time.Duration `mapstructure:"overpass_timeout"`
	OverpassAttempts  int           `mapstructure:"overpass_attempts"`
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port must not be empty"))
	}
	if c.Imagery.Zoom < 0 || c.Imagery.Zoom > 22 {
		errs = append(errs, fmt.Errorf("imagery.zoom out of range: %d", c.Imagery.Zoom))
	}
	if c.Imagery.Size <= 0 {
		errs = append(errs, fmt.Errorf("imagery.size must be positive: %d", c.Imagery.Size))
	}
	if c.Grid.Mode != GridModeAdaptive && c.Grid.Mode != GridModeLegacy {
		errs = append(errs, fmt.Errorf("grid.mode must be %q or %q, got %q", GridModeAdaptive, GridModeLegacy, c.Grid.Mode))
	}
	if c.Pipeline.IoUThreshold <= 0 || c.Pipeline.IoUThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.iou_threshold must be in (0,1]: %v", c.Pipeline.IoUThreshold))
	}
	if c.LandUse.NearDistanceM < 0 {
		errs = append(errs, fmt.Errorf("landuse.near_distance_m must not be negative: %v", c.LandUse.NearDistanceM))
	}
	if c.Pipeline.DefaultRadiusM > c.Pipeline.MaxRadiusM {
		errs = append(errs, fmt.Errorf("pipeline.default_radius_m %v exceeds max_radius_m %v", c.Pipeline.DefaultRadiusM, c.Pipeline.MaxRadiusM))
	}
	return errors.Join(errs...)
}
