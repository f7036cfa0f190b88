package pipeline

import (
	"time"

	"github.com/jengzang/solarscan-backend-go/internal/config"
	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/landuse"
)

// Config holds the knobs a Runner needs.
type Config struct {
	Zoom     int
	TileSize int
	Scale    int
	// Legacy selects the fixed 3x3 grid.
	Legacy bool

	Workers       int
	IoUThreshold  float64
	NearDistanceM float64
	// TileTimeout bounds fetch plus detection for one tile.
	TileTimeout time.Duration

	DefaultRadiusM float64
	MaxRadiusM     float64
	Version        string
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Zoom:           config.DefaultZoom,
		TileSize:       config.DefaultTileSize,
		Scale:          config.DefaultScale,
		Workers:        config.DefaultWorkers,
		IoUThreshold:   detection.DefaultIoUThreshold,
		NearDistanceM:  landuse.DefaultNearDistanceM,
		TileTimeout:    2 * time.Minute,
		DefaultRadiusM: config.DefaultRadiusM,
		MaxRadiusM:     config.DefaultMaxRadiusM,
		Version:        config.PipelineVersion,
	}
}

// FromAppConfig derives runner settings from the application config.
func FromAppConfig(c *config.Config) Config {
	tileTimeout := time.Duration(c.Imagery.MaxRetries)*c.Imagery.Timeout + c.Detector.Timeout
	return Config{
		Zoom:           c.Imagery.Zoom,
		TileSize:       c.Imagery.Size,
		Scale:          c.Imagery.Scale,
		Legacy:         c.Grid.Mode == config.GridModeLegacy,
		Workers:        c.Pipeline.Workers,
		IoUThreshold:   c.Pipeline.IoUThreshold,
		NearDistanceM:  c.LandUse.NearDistanceM,
		TileTimeout:    tileTimeout,
		DefaultRadiusM: c.Pipeline.DefaultRadiusM,
		MaxRadiusM:     c.Pipeline.MaxRadiusM,
		Version:        c.Pipeline.Version,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Zoom == 0 {
		c.Zoom = d.Zoom
	}
	if c.TileSize <= 0 {
		c.TileSize = d.TileSize
	}
	if c.Scale <= 0 {
		c.Scale = d.Scale
	}
	c.Workers = config.ClampWorkers(c.Workers)
	if c.IoUThreshold <= 0 {
		c.IoUThreshold = d.IoUThreshold
	}
	if c.NearDistanceM < 0 {
		c.NearDistanceM = 0
	}
	if c.TileTimeout <= 0 {
		c.TileTimeout = d.TileTimeout
	}
	if c.DefaultRadiusM <= 0 {
		c.DefaultRadiusM = d.DefaultRadiusM
	}
	if c.Version == "" {
		c.Version = d.Version
	}
	return c
}
