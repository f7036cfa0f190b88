package landuse

import (
	"context"
	"fmt"

	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/spatial"
)

// Result is what a provider returns for one query. Providers never return
// errors; a failure is Success=false with a Diagnostic.
type Result struct {
	Polygons   []Polygon `json:"-"`
	Success    bool      `json:"success"`
	Provider   string    `json:"provider"`
	Region     string    `json:"region"`
	Diagnostic string    `json:"diagnostic,omitempty"`
}

// Provider supplies land-use polygons around a point.
type Provider interface {
	Name() string
	Covers(lat, lon float64) bool
	Polygons(ctx context.Context, lat, lon, radiusM float64) Result
}

// Region is a named coverage box.
type Region struct {
	Name string
	Box  spatial.BoundingBox
}

// Known coverage regions.
var (
	RegionRio = Region{Name: "RIO", Box: spatial.BoundingBox{MinLon: -43.80, MinLat: -23.10, MaxLon: -43.05, MaxLat: -22.75}}
	RegionRJ  = Region{Name: "RJ", Box: spatial.BoundingBox{MinLon: -44.9, MinLat: -23.4, MaxLon: -40.8, MaxLat: -20.7}}
	RegionSP  = Region{Name: "SP", Box: spatial.BoundingBox{MinLon: -53.1, MinLat: -25.5, MaxLon: -44.0, MaxLat: -19.6}}
	RegionMG  = Region{Name: "MG", Box: spatial.BoundingBox{MinLon: -51.3, MinLat: -23.2, MaxLon: -39.8, MaxLat: -13.8}}
)

// Chain asks providers in order and returns the first successful non-empty
// result. Providers that do not cover the point are skipped.
type Chain struct {
	providers []Provider
	logger    logging.Logger
}

// NewChain creates a chain over providers.
func NewChain(logger logging.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Chain{providers: providers, logger: logger.Named("landuse")}
}

// Name implements Provider.
func (c *Chain) Name() string { return "CHAIN" }

// Covers implements Provider.
func (c *Chain) Covers(lat, lon float64) bool {
	for _, p := range c.providers {
		if p.Covers(lat, lon) {
			return true
		}
	}
	return false
}

// Polygons implements Provider.
func (c *Chain) Polygons(ctx context.Context, lat, lon, radiusM float64) Result {
	var last Result
	tried := 0
	for _, p := range c.providers {
		if ctx.Err() != nil {
			return Result{Provider: c.Name(), Diagnostic: ctx.Err().Error()}
		}
		if !p.Covers(lat, lon) {
			continue
		}
		tried++

		res := p.Polygons(ctx, lat, lon, radiusM)
		if res.Success && len(res.Polygons) > 0 {
			c.logger.Debug("land-use resolved",
				logging.String("provider", res.Provider),
				logging.String("region", res.Region),
				logging.Int("polygons", len(res.Polygons)),
			)
			return res
		}
		c.logger.Info("land-use provider returned nothing",
			logging.String("provider", p.Name()),
			logging.String("diagnostic", res.Diagnostic),
		)
		last = res
	}

	diag := "no provider covers the point"
	if tried > 0 {
		diag = fmt.Sprintf("%d provider(s) exhausted", tried)
		if last.Diagnostic != "" {
			diag += ": " + last.Diagnostic
		}
	}
	return Result{Provider: c.Name(), Diagnostic: diag}
}

// StaticProvider serves a fixed polygon set. It covers every point.
type StaticProvider struct {
	Label    string
	Features []Polygon
}

// Name implements Provider.
func (s StaticProvider) Name() string {
	if s.Label == "" {
		return "STATIC"
	}
	return s.Label
}

// Covers implements Provider.
func (s StaticProvider) Covers(_, _ float64) bool { return true }

// Polygons implements Provider.
func (s StaticProvider) Polygons(_ context.Context, _, _, _ float64) Result {
	return Result{Polygons: s.Features, Success: true, Provider: s.Name()}
}
