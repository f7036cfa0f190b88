package imagery

import (
	"context"
	"time"

	"github.com/jengzang/solarscan-backend-go/internal/cache"
	"github.com/jengzang/solarscan-backend-go/internal/spatial"
)

// DefaultLoadTimeout bounds one shared upstream fetch.
const DefaultLoadTimeout = 2 * time.Minute

// CachedFetcher serves repeated tiles from an injected LRU. Concurrent misses
// for the same tile trigger a single upstream fetch that outlives any one
// caller; it is bounded by the load timeout instead.
type CachedFetcher struct {
	next        Fetcher
	cache       *cache.LRU[[]byte]
	loadTimeout time.Duration
}

// NewCachedFetcher wraps next with c. A nil cache disables caching.
func NewCachedFetcher(next Fetcher, c *cache.LRU[[]byte]) *CachedFetcher {
	return &CachedFetcher{next: next, cache: c, loadTimeout: DefaultLoadTimeout}
}

// WithLoadTimeout sets the bound on a shared upstream fetch.
func (f *CachedFetcher) WithLoadTimeout(d time.Duration) *CachedFetcher {
	if d > 0 {
		f.loadTimeout = d
	}
	return f
}

// FetchTile implements Fetcher.
func (f *CachedFetcher) FetchTile(ctx context.Context, lat, lon float64, zoom, size, scale int) ([]byte, error) {
	if f.cache == nil {
		return f.next.FetchTile(ctx, lat, lon, zoom, size, scale)
	}
	key := spatial.TileKey(lat, lon, zoom, size, scale)
	return f.cache.GetOrLoad(ctx, key, func(loadCtx context.Context) ([]byte, error) {
		loadCtx, cancel := context.WithTimeout(loadCtx, f.loadTimeout)
		defer cancel()
		return f.next.FetchTile(loadCtx, lat, lon, zoom, size, scale)
	})
}

// Peek returns a cached tile without fetching.
func (f *CachedFetcher) Peek(key string) ([]byte, bool) {
	if f.cache == nil {
		return nil, false
	}
	return f.cache.Get(key)
}
