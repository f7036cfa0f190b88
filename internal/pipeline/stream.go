package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/tiling"
)

// Stream runs one input and reports it through emit as it happens. Tiles
// are submitted center-out; a tile's tile_ready precedes its det_add events.
// emit is never called concurrently and the last event is always done or
// error. The returned Result matches what RunAnalysis would report, except
// that Detections are the boxes kept by the incremental deduplicator.
// Detections without a box cannot be placed on the mosaic, so they skip
// det_add and are reported through Progress.DetectionsUnplaced and the
// final summary.
func (r *Runner) Stream(ctx context.Context, in models.SubstationInput, emit func(Event)) Result {
	start := time.Now()
	res := Result{RunID: r.runID(ctx), Input: in}

	seq := 0
	send := func(t EventType, data interface{}) {
		seq++
		emit(Event{Type: t, RunID: res.RunID, SubID: in.ID, Seq: seq, Data: data})
	}
	fail := func(err error) Result {
		res.Error = err.Error()
		send(EventError, ErrorData{Message: res.Error})
		r.observer.RunFinished(models.RunModeStream, OutcomeFailed, time.Since(start))
		return res
	}
	log := r.logger.With(logging.String("run_id", res.RunID), logging.String("sub_id", in.ID))

	in, err := r.prepare(in)
	res.Input = in
	if err != nil {
		log.Warn("input rejected", logging.Err(err))
		return fail(err)
	}
	send(EventSubStart, SubStart{Lat: in.Lat, Lon: in.Lon, RadiusM: in.RadiusM})

	grid, err := r.Grid(in)
	if err != nil {
		return fail(err)
	}
	res.Grid = grid
	send(EventGridReady, GridReady{
		TileCount:  len(grid.Tiles),
		Rows:       grid.Rows,
		Cols:       grid.Cols,
		Zoom:       grid.Zoom,
		FootprintM: grid.FootprintM,
	})

	polygons := r.polygonsAsync(ctx, in)

	dedup := detection.NewDeduplicator(r.cfg.IoUThreshold)
	byID := make(map[string]detection.Detection)
	var raw, unplaced []detection.Detection
	finished, emitted := 0, 0
	total := len(grid.Tiles)

	r.runTiles(ctx, tiling.OrderCenterOut(grid.Tiles), func(o tileOutcome) {
		finished++
		if o.err != nil {
			f := tileFailure(o)
			res.FailedTiles = append(res.FailedTiles, f)
			send(EventTileFail, TileFail(f))
		} else {
			send(EventTileReady, TileReady{
				Row:       o.tile.Row,
				Col:       o.tile.Col,
				TileIndex: o.tile.Index,
				Lat:       o.tile.Lat,
				Lon:       o.tile.Lon,
				ImageRef:  o.imageRef,
			})
			raw = append(raw, o.detections...)
			for _, det := range o.detections {
				box, ok := mosaicBox(det, grid)
				if !ok {
					unplaced = append(unplaced, det)
					continue
				}
				dec := dedup.Offer(box)
				r.recordDecision(dec)
				if !dec.Accepted {
					continue
				}
				var replaced *string
				if dec.Replaced != nil {
					id := dec.Replaced.ID
					replaced = &id
					delete(byID, id)
				}
				byID[dec.Kept.ID] = det
				kept := dec.Kept
				send(EventDetAdd, DetAdd{NewDet: &kept, ReplacedID: replaced})
				emitted++
			}
		}
		send(EventProgress, Progress{
			Done:               finished,
			Total:              total,
			DetectionsEmitted:  emitted,
			DetectionsUnplaced: len(unplaced),
			Pct:                math.Round(float64(finished)/float64(total)*1000) / 10,
		})
	})

	if ctx.Err() != nil {
		log.Warn("stream cancelled", logging.Err(ctx.Err()))
		res.Error = fmt.Sprintf("analysis cancelled: %v", ctx.Err())
		send(EventError, ErrorData{Message: res.Error})
		r.observer.RunFinished(models.RunModeStream, OutcomeCancelled, time.Since(start))
		return res
	}

	sort.Slice(res.FailedTiles, func(i, j int) bool { return res.FailedTiles[i].TileIndex < res.FailedTiles[j].TileIndex })
	kept := dedup.Snapshot()
	for _, k := range kept {
		res.Detections = append(res.Detections, byID[k.ID])
	}
	res.Detections = append(res.Detections, unplaced...)
	r.finish(&res, raw, <-polygons, start)

	send(EventDone, Done{Summary: Summary{
		Stats:       res.Stats,
		Kept:        kept,
		LandUse:     res.LandUse,
		Report:      res.Report,
		FailedTiles: res.FailedTiles,
	}})
	r.observer.RunFinished(models.RunModeStream, OutcomeOK, time.Since(start))
	log.Info("stream finished",
		logging.Int("detections", len(res.Detections)),
		logging.Int("failed_tiles", len(res.FailedTiles)),
	)
	return res
}
