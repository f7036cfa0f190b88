// Package imagery fetches satellite tile images. The base client talks to a
// static-maps HTTP API; retry and caching are layered on as wrappers.
package imagery

import (
	"context"
	"errors"
)

// ErrRetryable marks failures worth another attempt: throttling, server
// errors and network faults.
var ErrRetryable = errors.New("retryable imagery error")

// Fetcher returns the encoded image for the tile centered at lat/lon.
type Fetcher interface {
	FetchTile(ctx context.Context, lat, lon float64, zoom, size, scale int) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, lat, lon float64, zoom, size, scale int) ([]byte, error)

func (f FetcherFunc) FetchTile(ctx context.Context, lat, lon float64, zoom, size, scale int) ([]byte, error) {
	return f(ctx, lat, lon, zoom, size, scale)
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
