package landuse

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/solarscan-backend-go/internal/cache"
	"github.com/jengzang/solarscan-backend-go/internal/spatial"
)

// indexedFeature keeps a polygon next to its bound for cheap filtering.
type indexedFeature struct {
	polygon Polygon
	bound   orb.Bound
}

// GeoJSONProvider serves polygons from a GeoJSON file restricted to a region.
type GeoJSONProvider struct {
	name   string
	path   string
	region Region
	mapper Mapper
	files  *FileCache
}

// NewGeoJSONProvider creates a provider for path. files may be shared
// between providers; a nil cache parses the file on every query.
func NewGeoJSONProvider(name, path string, region Region, mapper Mapper, files *FileCache) *GeoJSONProvider {
	if mapper == nil {
		mapper = GenericMapper
	}
	return &GeoJSONProvider{name: name, path: path, region: region, mapper: mapper, files: files}
}

// FileCache holds parsed GeoJSON files and is shared between providers.
type FileCache struct {
	lru *cache.LRU[[]indexedFeature]
}

// NewFileCache creates a cache for at most maxFiles parsed files.
func NewFileCache(maxFiles int64, opts ...cache.Option) *FileCache {
	opts = append([]cache.Option{cache.WithItemsToPrune(1)}, opts...)
	return &FileCache{lru: cache.NewLRU[[]indexedFeature]("landuse_geojson", maxFiles, opts...)}
}

// Len returns the number of cached files.
func (f *FileCache) Len() int { return f.lru.Len() }

// Stop releases the cache worker.
func (f *FileCache) Stop() { f.lru.Stop() }

// Name implements Provider.
func (g *GeoJSONProvider) Name() string { return g.name }

// Covers implements Provider.
func (g *GeoJSONProvider) Covers(lat, lon float64) bool {
	return g.path != "" && g.region.Box.Contains(lat, lon)
}

// Polygons implements Provider.
func (g *GeoJSONProvider) Polygons(ctx context.Context, lat, lon, radiusM float64) Result {
	res := Result{Provider: g.name, Region: g.region.Name}

	features, err := g.load(ctx)
	if err != nil {
		res.Diagnostic = err.Error()
		return res
	}

	query := spatial.BoundAroundPoint(lat, lon, radiusM).Bound()
	for _, f := range features {
		if f.bound.Intersects(query) {
			res.Polygons = append(res.Polygons, f.polygon)
		}
	}
	res.Success = true
	if len(res.Polygons) == 0 {
		res.Diagnostic = "no polygons intersect the query area"
	}
	return res
}

func (g *GeoJSONProvider) load(ctx context.Context) ([]indexedFeature, error) {
	if g.files == nil {
		return parseGeoJSONFile(g.path, g.mapper)
	}
	return g.files.lru.GetOrLoad(ctx, g.name+"|"+g.path, func(context.Context) ([]indexedFeature, error) {
		return parseGeoJSONFile(g.path, g.mapper)
	})
}

func parseGeoJSONFile(path string, mapper Mapper) ([]indexedFeature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseGeoJSON(data, mapper)
}

// parseGeoJSON keeps Polygon and MultiPolygon features and labels them with
// mapper.
func parseGeoJSON(data []byte, mapper Mapper) ([]indexedFeature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	out := make([]indexedFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		out = append(out, indexedFeature{
			polygon: Polygon{Geometry: f.Geometry, Label: mapper(f.Properties)},
			bound:   f.Geometry.Bound(),
		})
	}
	return out, nil
}
