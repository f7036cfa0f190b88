// Package pipeline runs an analysis end to end: grid, concurrent tile
// fetch and detection, cross-tile dedup, land-use join and impact.
package pipeline

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/imagery"
	"github.com/jengzang/solarscan-backend-go/internal/landuse"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/spatial"
	"github.com/jengzang/solarscan-backend-go/internal/tiling"
)

// Runner executes analyses. It is safe for concurrent use; each run gets
// its own deduplicator.
type Runner struct {
	fetcher  imagery.Fetcher
	detector detection.Detector
	landuse  landuse.Provider
	cfg      Config
	logger   logging.Logger
	observer Observer
	now      func() time.Time
	newRunID func() string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock overrides the time source used for reports.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(gen func() string) Option {
	return func(r *Runner) { r.newRunID = gen }
}

// NewRunner wires the collaborators. A nil land-use provider labels every
// detection unknown.
func NewRunner(fetcher imagery.Fetcher, detector detection.Detector, provider landuse.Provider, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		fetcher:  fetcher,
		detector: detector,
		landuse:  provider,
		cfg:      cfg.withDefaults(),
		logger:   logging.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("pipeline")
	return r
}

// Config returns the effective settings.
func (r *Runner) Config() Config { return r.cfg }

// Grid builds the tile layout for an input using the configured mode.
func (r *Runner) Grid(in models.SubstationInput) (tiling.Grid, error) {
	return tiling.Generate(in.Lat, in.Lon, in.RadiusM, tiling.Options{
		Zoom:     r.cfg.Zoom,
		TileSize: r.cfg.TileSize,
		Legacy:   r.cfg.Legacy,
	})
}

type runIDKey struct{}

// ContextWithRunID makes the next run started with ctx use id instead of a
// generated one.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func (r *Runner) runID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return r.newRunID()
}

// Prepare normalizes and validates an input the way a run would.
func (r *Runner) Prepare(in models.SubstationInput) (models.SubstationInput, error) {
	return r.prepare(in)
}

// prepare normalizes and validates an input.
func (r *Runner) prepare(in models.SubstationInput) (models.SubstationInput, error) {
	in.Normalize(r.cfg.DefaultRadiusM)
	if err := in.Validate(r.cfg.MaxRadiusM); err != nil {
		return in, err
	}
	return in, nil
}

// tileOutcome is what one worker produces.
type tileOutcome struct {
	tile       tiling.Tile
	imageRef   string
	detections []detection.Detection
	metrics    detection.Metrics
	err        error
}

// processTile fetches and analyzes one tile. Errors are carried in the
// outcome, never returned, so siblings keep running.
func (r *Runner) processTile(ctx context.Context, t tiling.Tile) tileOutcome {
	start := time.Now()
	out := tileOutcome{tile: t}

	tctx, cancel := context.WithTimeout(ctx, r.cfg.TileTimeout)
	defer cancel()

	img, err := r.fetcher.FetchTile(tctx, t.Lat, t.Lon, r.cfg.Zoom, r.cfg.TileSize, r.cfg.Scale)
	if err != nil {
		out.err = err
		outcome := OutcomeFailed
		if ctx.Err() != nil {
			outcome = OutcomeCancelled
		}
		r.observer.TileProcessed(outcome, time.Since(start))
		r.logger.Warn("tile failed",
			logging.Int("tile_index", t.Index),
			logging.Int("row", t.Row),
			logging.Int("col", t.Col),
			logging.Err(err),
		)
		return out
	}
	out.imageRef = spatial.TileKey(t.Lat, t.Lon, r.cfg.Zoom, r.cfg.TileSize, r.cfg.Scale)

	dets, m := r.detector.Detect(tctx, img)
	w, h := r.imageSize(img)
	scale := float64(r.cfg.Scale)
	for i := range dets {
		if scale > 1 && dets[i].Box != nil {
			b := *dets[i].Box
			dets[i].Box = &detection.Box{X1: b.X1 / scale, Y1: b.Y1 / scale, X2: b.X2 / scale, Y2: b.Y2 / scale}
		}
		detection.Geolocate(&dets[i], t.Index, t.Row, t.Col, t.Lat, t.Lon, r.cfg.Zoom, w, h)
	}
	out.detections = dets
	out.metrics = m

	r.observer.TileProcessed(OutcomeOK, time.Since(start))
	r.observer.DetectionsFound(len(dets))
	return out
}

// imageSize returns the logical tile size in pixels. The encoded image is
// trusted first; the requested size is the fallback.
func (r *Runner) imageSize(img []byte) (int, int) {
	w, h := r.cfg.TileSize*r.cfg.Scale, r.cfg.TileSize*r.cfg.Scale
	if c, _, err := image.DecodeConfig(bytes.NewReader(img)); err == nil && c.Width > 0 && c.Height > 0 {
		w, h = c.Width, c.Height
	}
	return w / r.cfg.Scale, h / r.cfg.Scale
}

// runTiles processes tiles on a bounded pool, submitting in the given
// order, and hands every outcome to collect from a single goroutine.
func (r *Runner) runTiles(ctx context.Context, tiles []tiling.Tile, collect func(tileOutcome)) {
	results := make(chan tileOutcome)

	go func() {
		var g errgroup.Group
		g.SetLimit(r.cfg.Workers)
		for _, t := range tiles {
			t := t
			g.Go(func() error {
				results <- r.processTile(ctx, t)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for o := range results {
		collect(o)
	}
}

// polygonsAsync starts the land-use lookup so it overlaps the tile work.
func (r *Runner) polygonsAsync(ctx context.Context, in models.SubstationInput) <-chan landuse.Result {
	ch := make(chan landuse.Result, 1)
	go func() {
		if r.landuse == nil {
			ch <- landuse.Result{Provider: "NONE", Diagnostic: "no land-use provider configured"}
			return
		}
		ch <- r.landuse.Polygons(ctx, in.Lat, in.Lon, in.RadiusM)
	}()
	return ch
}

// join labels detections and summarizes the polygon source.
func (r *Runner) join(dets []detection.Detection, lu landuse.Result) ([]detection.Detection, LandUseSummary) {
	idx := landuse.NewIndex(lu.Polygons, r.cfg.NearDistanceM)
	joined := idx.Annotate(dets)
	return joined, LandUseSummary{
		Provider:   lu.Provider,
		Region:     lu.Region,
		Success:    lu.Success,
		Polygons:   len(lu.Polygons),
		Skipped:    idx.Skipped(),
		Diagnostic: lu.Diagnostic,
		Counts:     landuse.CountByLabel(joined),
	}
}

func tileFailure(o tileOutcome) TileFailure {
	return TileFailure{Row: o.tile.Row, Col: o.tile.Col, TileIndex: o.tile.Index, Error: o.err.Error()}
}
