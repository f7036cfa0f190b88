package imagery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

const maxImageBytes = 16 << 20

// StaticMapsClient fetches satellite images from a Google Static Maps style
// endpoint.
type StaticMapsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logging.Logger
}

// NewStaticMapsClient creates a client. timeout bounds each request.
func NewStaticMapsClient(baseURL, apiKey string, timeout time.Duration, logger logging.Logger) *StaticMapsClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StaticMapsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("imagery"),
	}
}

// TileURL builds the request URL for one tile.
func (c *StaticMapsClient) TileURL(lat, lon float64, zoom, size, scale int) string {
	q := url.Values{}
	q.Set("center", strconv.FormatFloat(lat, 'f', 7, 64)+","+strconv.FormatFloat(lon, 'f', 7, 64))
	q.Set("zoom", strconv.Itoa(zoom))
	q.Set("size", fmt.Sprintf("%dx%d", size, size))
	q.Set("scale", strconv.Itoa(scale))
	q.Set("maptype", "satellite")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + q.Encode()
}

// FetchTile implements Fetcher.
func (c *StaticMapsClient) FetchTile(ctx context.Context, lat, lon float64, zoom, size, scale int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TileURL(lat, lon, zoom, size, scale), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tile request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tile body: %v", ErrRetryable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tile request failed with status %d", resp.StatusCode)
	}

	if !isImage(resp.Header.Get("Content-Type"), body) {
		return nil, fmt.Errorf("tile response is not an image (%s)", resp.Header.Get("Content-Type"))
	}
	c.logger.Debug("tile fetched",
		logging.Float64("lat", lat),
		logging.Float64("lon", lon),
		logging.Int("bytes", len(body)),
	)
	return body, nil
}

func isImage(contentType string, body []byte) bool {
	if len(body) == 0 {
		return false
	}
	if strings.HasPrefix(contentType, "image/") {
		return true
	}
	return strings.HasPrefix(http.DetectContentType(body), "image/")
}
