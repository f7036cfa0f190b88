package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/imagery"
	"github.com/jengzang/solarscan-backend-go/internal/models"
)

// collector records events and flags concurrent emits.
type collector struct {
	events     []Event
	inflight   int32
	concurrent bool
}

func (c *collector) emit(e Event) {
	if atomic.AddInt32(&c.inflight, 1) > 1 {
		c.concurrent = true
	}
	time.Sleep(time.Microsecond)
	c.events = append(c.events, e)
	atomic.AddInt32(&c.inflight, -1)
}

func (c *collector) ofType(t EventType) []Event {
	var out []Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func legacyConfig(workers int) Config {
	cfg := testConfig()
	cfg.Legacy = true
	cfg.Workers = workers
	return cfg
}

func TestStreamEventOrder(t *testing.T) {
	cfg := legacyConfig(4)
	grid, err := NewRunner(okFetcher, nil, nil, cfg).Grid(scenario)
	require.NoError(t, err)

	center := detection.Detection{Confidence: 0.8, Box: &detection.Box{X1: 310, Y1: 310, X2: 330, Y2: 330}}
	r := NewRunner(okFetcher, perTile(everyTile(grid, center)), nil, cfg, fixedRunIDs())

	var c collector
	res := r.Stream(context.Background(), scenario, c.emit)
	require.Empty(t, res.Error)
	assert.False(t, c.concurrent)

	require.GreaterOrEqual(t, len(c.events), 3)
	assert.Equal(t, EventSubStart, c.events[0].Type)
	assert.Equal(t, EventGridReady, c.events[1].Type)
	assert.Equal(t, 9, c.events[1].Data.(GridReady).TileCount)
	assert.Equal(t, EventDone, c.events[len(c.events)-1].Type)

	ready := make(map[int]bool)
	for i, e := range c.events {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, scenario.ID, e.SubID)
		switch e.Type {
		case EventTileReady:
			ready[e.Data.(TileReady).TileIndex] = true
		case EventDetAdd:
			add := e.Data.(DetAdd)
			require.NotNil(t, add.NewDet)
			assert.True(t, ready[add.NewDet.TileIndex], "det_add before tile_ready for tile %d", add.NewDet.TileIndex)
			assert.Nil(t, add.ReplacedID)
		}
		if i < len(c.events)-1 {
			assert.False(t, e.Type.Terminal(), "terminal event at %d", i)
		}
	}

	progress := c.ofType(EventProgress)
	require.Len(t, progress, 9)
	last := progress[8].Data.(Progress)
	assert.Equal(t, 9, last.Done)
	assert.Equal(t, 9, last.Total)
	assert.Equal(t, 9, last.DetectionsEmitted)
	assert.Equal(t, 100.0, last.Pct)
	assert.Equal(t, 11.1, progress[0].Data.(Progress).Pct)

	done := c.events[len(c.events)-1].Data.(Done)
	assert.Len(t, done.Summary.Kept, 9)
	assert.Equal(t, 9, done.Summary.Stats.Detections)
	require.NotNil(t, done.Summary.Report)
	assert.Equal(t, 9, done.Summary.Report.PanelCount)
	assert.Len(t, res.Detections, 9)
}

func TestStreamCountsUnplacedDetections(t *testing.T) {
	cfg := legacyConfig(2)
	grid, err := NewRunner(okFetcher, nil, nil, cfg).Grid(scenario)
	require.NoError(t, err)

	boxed := detection.Detection{Confidence: 0.8, Box: &detection.Box{X1: 310, Y1: 310, X2: 330, Y2: 330}}
	boxless := detection.Detection{Confidence: 0.5}
	r := NewRunner(okFetcher, perTile(everyTile(grid, boxed, boxless)), nil, cfg)

	var c collector
	res := r.Stream(context.Background(), scenario, c.emit)
	require.Empty(t, res.Error)

	assert.Len(t, c.ofType(EventDetAdd), 9)
	progress := c.ofType(EventProgress)
	require.Len(t, progress, 9)
	last := progress[8].Data.(Progress)
	assert.Equal(t, 9, last.DetectionsEmitted)
	assert.Equal(t, 9, last.DetectionsUnplaced)
	for i, e := range progress {
		assert.Equal(t, i+1, e.Data.(Progress).DetectionsUnplaced)
	}

	done := c.events[len(c.events)-1].Data.(Done)
	assert.Len(t, done.Summary.Kept, 9)
	assert.Equal(t, last.DetectionsEmitted+last.DetectionsUnplaced, done.Summary.Stats.Detections)
	assert.Len(t, res.Detections, 18)
}

func TestStreamStartsAtCenter(t *testing.T) {
	r := NewRunner(okFetcher, perTile(nil), nil, legacyConfig(1))

	var c collector
	r.Stream(context.Background(), scenario, c.emit)

	ready := c.ofType(EventTileReady)
	require.Len(t, ready, 9)
	first := ready[0].Data.(TileReady)
	assert.Equal(t, 1, first.Row)
	assert.Equal(t, 1, first.Col)
	assert.Equal(t, 5, first.TileIndex)
	assert.NotEmpty(t, first.ImageRef)
}

func TestStreamRetractsReplacedDetection(t *testing.T) {
	cfg := legacyConfig(1)
	grid, err := NewRunner(okFetcher, nil, nil, cfg).Grid(scenario)
	require.NoError(t, err)

	// the center tile runs first and sees the weaker copy
	west, center := grid.Tiles[3], grid.Tiles[4]
	table := map[string][]detection.Detection{
		string(tileImage(center.Lat, center.Lon)): {{Confidence: 0.6, Box: &detection.Box{X1: -40, Y1: 100, X2: 60, Y2: 160}}},
		string(tileImage(west.Lat, west.Lon)):     {{Confidence: 0.9, Box: &detection.Box{X1: 600, Y1: 100, X2: 700, Y2: 160}}},
	}
	r := NewRunner(okFetcher, perTile(table), nil, cfg)

	var c collector
	res := r.Stream(context.Background(), scenario, c.emit)
	require.Empty(t, res.Error)

	adds := c.ofType(EventDetAdd)
	require.Len(t, adds, 2)
	first, second := adds[0].Data.(DetAdd), adds[1].Data.(DetAdd)
	assert.Equal(t, "d1", first.NewDet.ID)
	assert.Nil(t, first.ReplacedID)
	assert.Equal(t, "d2", second.NewDet.ID)
	require.NotNil(t, second.ReplacedID)
	assert.Equal(t, "d1", *second.ReplacedID)

	require.Len(t, res.Detections, 1)
	assert.Equal(t, 0.9, res.Detections[0].Confidence)
	assert.Equal(t, west.Index, res.Detections[0].TileIndex)
}

func TestStreamReportsTileFailures(t *testing.T) {
	failing := imagery.FetcherFunc(func(ctx context.Context, lat, lon float64, z, s, sc int) ([]byte, error) {
		if lat > scenario.Lat {
			return nil, assert.AnError
		}
		return okFetcher(ctx, lat, lon, z, s, sc)
	})
	r := NewRunner(failing, perTile(nil), nil, legacyConfig(3))

	var c collector
	res := r.Stream(context.Background(), scenario, c.emit)
	require.Empty(t, res.Error)

	fails := c.ofType(EventTileFail)
	require.Len(t, fails, 3)
	for _, e := range fails {
		f := e.Data.(TileFail)
		assert.Equal(t, 0, f.Row)
		assert.Equal(t, assert.AnError.Error(), f.Error)
	}
	assert.Len(t, c.ofType(EventTileReady), 6)
	assert.Len(t, c.ofType(EventProgress), 9)
	assert.Equal(t, EventDone, c.events[len(c.events)-1].Type)
	require.Len(t, res.FailedTiles, 3)
	assert.Equal(t, 1, res.FailedTiles[0].TileIndex)
}

func TestStreamCancelledEndsWithError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(okFetcher, perTile(nil), nil, legacyConfig(2))
	var c collector
	res := r.Stream(ctx, scenario, c.emit)

	require.NotEmpty(t, c.events)
	last := c.events[len(c.events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Data.(ErrorData).Message, "analysis cancelled")
	assert.Contains(t, res.Error, "context canceled")
	assert.Empty(t, c.ofType(EventDone))
}

func TestStreamRejectsInvalidInput(t *testing.T) {
	r := NewRunner(okFetcher, perTile(nil), nil, legacyConfig(2))
	var c collector
	res := r.Stream(context.Background(), models.SubstationInput{ID: "X", Lat: 95, Lon: 0, RadiusM: 100}, c.emit)

	require.Len(t, c.events, 1)
	assert.Equal(t, EventError, c.events[0].Type)
	assert.Contains(t, c.events[0].Data.(ErrorData).Message, "lat out of range")
	assert.True(t, res.Failed())
}
