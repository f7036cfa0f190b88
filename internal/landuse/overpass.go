package landuse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"

	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

const overpassUserAgent = "SolarScan/1.0 (+go)"

// OverpassConfig configures an OverpassProvider.
type OverpassConfig struct {
	Endpoints []string
	Timeout   time.Duration
	Attempts  int
	Region    string
	// InitialInterval is the first backoff delay between attempts.
	InitialInterval time.Duration
}

// OverpassProvider queries OpenStreetMap landuse ways and relations. It
// covers every point and is meant to sit last in a Chain.
type OverpassProvider struct {
	cfg    OverpassConfig
	client *http.Client
	logger logging.Logger
}

// NewOverpassProvider creates a provider; endpoints are tried in order.
func NewOverpassProvider(cfg OverpassConfig, logger logging.Logger) *OverpassProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 600 * time.Millisecond
	}
	if cfg.Region == "" {
		cfg.Region = "BR"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OverpassProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("overpass"),
	}
}

// Name implements Provider.
func (o *OverpassProvider) Name() string { return "OSM" }

// Covers implements Provider.
func (o *OverpassProvider) Covers(_, _ float64) bool { return len(o.cfg.Endpoints) > 0 }

// Polygons implements Provider.
func (o *OverpassProvider) Polygons(ctx context.Context, lat, lon, radiusM float64) Result {
	res := Result{Provider: o.Name(), Region: o.cfg.Region}

	query := BuildOverpassQuery(lat, lon, radiusM)
	var lastErr error
	for _, endpoint := range o.cfg.Endpoints {
		data, err := o.fetch(ctx, endpoint, query)
		if err != nil {
			lastErr = err
			o.logger.Warn("endpoint failed", logging.String("endpoint", endpoint), logging.Err(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		polygons, err := ParseOverpass(data)
		if err != nil {
			lastErr = err
			continue
		}
		o.logger.Info("landuse polygons fetched",
			logging.String("endpoint", endpoint),
			logging.Int("polygons", len(polygons)),
		)
		res.Polygons = polygons
		res.Success = true
		if len(polygons) == 0 {
			res.Diagnostic = "no landuse polygons in radius"
		}
		return res
	}

	if lastErr == nil {
		lastErr = errors.New("no endpoints configured")
	}
	res.Diagnostic = fmt.Sprintf("overpass: %v", lastErr)
	return res
}

func (o *OverpassProvider) fetch(ctx context.Context, endpoint, query string) ([]byte, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.InitialInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.cfg.Attempts-1)), ctx)

	var body []byte
	op := func() error {
		b, err := o.post(ctx, endpoint, query)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		o.logger.Debug("retrying", logging.String("endpoint", endpoint), logging.Err(err), logging.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (o *OverpassProvider) post(ctx context.Context, endpoint, query string) ([]byte, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", overpassUserAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	if !json.Valid(body) {
		return nil, backoff.Permanent(errors.New("response is not JSON"))
	}
	return body, nil
}

// BuildOverpassQuery returns the query for landuse ways and relations within
// radiusM of the point.
func BuildOverpassQuery(lat, lon, radiusM float64) string {
	r := int(radiusM)
	if r < 1 {
		r = 1
	}
	return fmt.Sprintf(`[out:json][timeout:25];
(
  way["landuse"](around:%d,%f,%f);
  relation["landuse"](around:%d,%f,%f);
);
out geom;`, r, lat, lon, r, lat, lon)
}

type overpassNode struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type overpassMember struct {
	Type     string         `json:"type"`
	Role     string         `json:"role"`
	Geometry []overpassNode `json:"geometry"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []overpassNode    `json:"geometry"`
	Members  []overpassMember  `json:"members"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// ParseOverpass converts an Overpass "out geom" response into labeled
// polygons. Ways become polygons; a relation's closed outer members become
// a multipolygon. Rings with fewer than four points after closing are
// dropped.
func ParseOverpass(data []byte) ([]Polygon, error) {
	var resp overpassResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}

	var out []Polygon
	for _, el := range resp.Elements {
		props := make(map[string]interface{}, len(el.Tags))
		for k, v := range el.Tags {
			props[k] = v
		}
		label := OSMMapper(props)

		if ring, ok := closedRing(el.Geometry); ok {
			out = append(out, Polygon{Geometry: orb.Polygon{ring}, Label: label})
			continue
		}

		var mp orb.MultiPolygon
		for _, m := range el.Members {
			if m.Role != "" && m.Role != "outer" {
				continue
			}
			if ring, ok := closedRing(m.Geometry); ok {
				mp = append(mp, orb.Polygon{ring})
			}
		}
		switch len(mp) {
		case 0:
		case 1:
			out = append(out, Polygon{Geometry: mp[0], Label: label})
		default:
			out = append(out, Polygon{Geometry: mp, Label: label})
		}
	}
	return out, nil
}

func closedRing(nodes []overpassNode) (orb.Ring, bool) {
	if len(nodes) < 3 {
		return nil, false
	}
	ring := make(orb.Ring, 0, len(nodes)+1)
	for _, n := range nodes {
		if n.Lat == nil || n.Lon == nil {
			continue
		}
		ring = append(ring, orb.Point{*n.Lon, *n.Lat})
	}
	if len(ring) < 3 {
		return nil, false
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	if len(ring) < 4 {
		return nil, false
	}
	return ring, true
}
