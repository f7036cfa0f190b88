package pipeline

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/impact"
	"github.com/jengzang/solarscan-backend-go/internal/landuse"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/tiling"
)

// RunAnalysis runs one input to completion. It never returns an error:
// rejected inputs come back with Result.Error set, failed tiles are listed
// in FailedTiles, and a failed land-use lookup labels everything unknown.
func (r *Runner) RunAnalysis(ctx context.Context, in models.SubstationInput) Result {
	start := time.Now()
	res := Result{RunID: r.runID(ctx), Input: in}
	log := r.logger.With(logging.String("run_id", res.RunID), logging.String("sub_id", in.ID))

	in, err := r.prepare(in)
	res.Input = in
	if err != nil {
		res.Error = err.Error()
		r.observer.RunFinished(models.RunModeBatch, OutcomeFailed, time.Since(start))
		log.Warn("input rejected", logging.Err(err))
		return res
	}

	grid, err := r.Grid(in)
	if err != nil {
		res.Error = err.Error()
		r.observer.RunFinished(models.RunModeBatch, OutcomeFailed, time.Since(start))
		return res
	}
	res.Grid = grid
	log.Info("analysis started",
		logging.Int("tiles", len(grid.Tiles)),
		logging.Float64("radius_m", in.RadiusM),
	)

	polygons := r.polygonsAsync(ctx, in)

	outcomes := make([]tileOutcome, 0, len(grid.Tiles))
	r.runTiles(ctx, tiling.OrderCenterOut(grid.Tiles), func(o tileOutcome) {
		outcomes = append(outcomes, o)
	})
	// completion order is arbitrary; aggregate in grid order
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].tile.Index < outcomes[j].tile.Index })

	var raw []detection.Detection
	for _, o := range outcomes {
		if o.err != nil {
			res.FailedTiles = append(res.FailedTiles, tileFailure(o))
			continue
		}
		raw = append(raw, o.detections...)
	}

	res.Detections = r.dedupBatch(raw, grid)
	r.finish(&res, raw, <-polygons, start)

	outcome := OutcomeOK
	if ctx.Err() != nil {
		outcome = OutcomeCancelled
	}
	r.observer.RunFinished(models.RunModeBatch, outcome, time.Since(start))
	log.Info("analysis finished",
		logging.Int("detections", len(res.Detections)),
		logging.Int("failed_tiles", len(res.FailedTiles)),
		logging.String("landuse_provider", res.LandUse.Provider),
		logging.Int64("duration_ms", res.Stats.DurationMS),
	)
	return res
}

// RunBatch analyzes inputs concurrently, one Result per input in input
// order. A rejected input never affects its siblings.
func (r *Runner) RunBatch(ctx context.Context, inputs []models.SubstationInput) []Result {
	results := make([]Result, len(inputs))
	// each input gets its own generated id
	ctx = ContextWithRunID(ctx, "")

	var g errgroup.Group
	g.SetLimit(batchParallelism(r.cfg.Workers))
	for i := range inputs {
		i := i
		g.Go(func() error {
			results[i] = r.RunAnalysis(ctx, inputs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// batchParallelism keeps total tile concurrency near the worker budget.
func batchParallelism(workers int) int {
	n := workers / 3
	if n < 1 {
		n = 1
	}
	return n
}

// dedupBatch collapses detections seen by overlapping tiles. Detections
// without a box cannot be placed on the mosaic and are kept as they are.
func (r *Runner) dedupBatch(raw []detection.Detection, grid tiling.Grid) []detection.Detection {
	d := detection.NewDeduplicator(r.cfg.IoUThreshold)
	byID := make(map[string]detection.Detection)
	var unplaced []detection.Detection

	for _, det := range raw {
		box, ok := mosaicBox(det, grid)
		if !ok {
			unplaced = append(unplaced, det)
			continue
		}
		dec := d.Offer(box)
		r.recordDecision(dec)
		if !dec.Accepted {
			continue
		}
		if dec.Replaced != nil {
			delete(byID, dec.Replaced.ID)
		}
		byID[dec.Kept.ID] = det
	}

	out := make([]detection.Detection, 0, d.Len()+len(unplaced))
	for _, k := range d.Snapshot() {
		out = append(out, byID[k.ID])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TileIndex < out[j].TileIndex })
	return append(out, unplaced...)
}

func (r *Runner) recordDecision(dec detection.Decision) {
	switch {
	case !dec.Accepted:
		r.observer.DedupDecision(DedupRejected)
	case dec.Replaced != nil:
		r.observer.DedupDecision(DedupReplaced)
	default:
		r.observer.DedupDecision(DedupKept)
	}
}

// mosaicBox places a detection on the grid's mosaic canvas.
func mosaicBox(det detection.Detection, grid tiling.Grid) (detection.MosaicBox, bool) {
	n := grid.Rows
	if grid.Cols > n {
		n = grid.Cols
	}
	pct, ok := detection.ToMosaicPercent(det.TileRow, det.TileCol, n, det.Box, det.ImageWidth, det.ImageHeight)
	if !ok {
		return detection.MosaicBox{}, false
	}
	return detection.MosaicBox{
		BBoxPct:    pct,
		Confidence: det.Confidence,
		TileIndex:  det.TileIndex,
		Lat:        det.Lat,
		Lon:        det.Lon,
	}, true
}

// finish runs the join barrier and everything downstream of it.
func (r *Runner) finish(res *Result, raw []detection.Detection, lu landuse.Result, start time.Time) {
	res.JoinedDetections, res.LandUse = r.join(res.Detections, lu)

	assessment := impact.Assess(res.JoinedDetections)
	report := impact.NewReport(res.Input.ID, res.Input.Lat, res.Input.Lon, res.LandUse.Counts,
		len(res.Detections), assessment, r.cfg.Version, r.now())
	res.Impact = &assessment
	res.Report = &report

	res.Stats = r.stats(res.Grid, res.FailedTiles, raw, res.Detections, time.Since(start))
}

func (r *Runner) stats(grid tiling.Grid, failed []TileFailure, raw, kept []detection.Detection, took time.Duration) Stats {
	fallbacks := 0
	for _, d := range kept {
		if d.GeoFallback {
			fallbacks++
		}
	}
	return Stats{
		TilesTotal:    len(grid.Tiles),
		TilesOK:       len(grid.Tiles) - len(failed),
		TilesFailed:   len(failed),
		RawDetections: len(raw),
		Detections:    len(kept),
		GeoFallbacks:  fallbacks,
		Confidence:    detection.ComputeMetrics(kept, 0),
		DurationMS:    took.Milliseconds(),
	}
}
