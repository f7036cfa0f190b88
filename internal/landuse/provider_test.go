package landuse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name   string
	covers bool
	result Result
	calls  int32
}

func (f *fakeProvider) Name() string                 { return f.name }
func (f *fakeProvider) Covers(_, _ float64) bool     { return f.covers }
func (f *fakeProvider) Polygons(_ context.Context, _, _, _ float64) Result {
	atomic.AddInt32(&f.calls, 1)
	r := f.result
	r.Provider = f.name
	return r
}

func TestChainFirstNonEmptyWins(t *testing.T) {
	uncovered := &fakeProvider{name: "A", covers: false, result: Result{Success: true, Polygons: fixturePolygons()}}
	empty := &fakeProvider{name: "B", covers: true, result: Result{Success: true}}
	failed := &fakeProvider{name: "C", covers: true, result: Result{Diagnostic: "boom"}}
	good := &fakeProvider{name: "D", covers: true, result: Result{Success: true, Polygons: fixturePolygons()}}
	after := &fakeProvider{name: "E", covers: true, result: Result{Success: true, Polygons: fixturePolygons()}}

	res := NewChain(nil, uncovered, empty, failed, good, after).Polygons(context.Background(), -22.9, -43.2, 1500)
	assert.True(t, res.Success)
	assert.Equal(t, "D", res.Provider)
	assert.Len(t, res.Polygons, 2)

	assert.Zero(t, atomic.LoadInt32(&uncovered.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&empty.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&failed.calls))
	assert.Zero(t, atomic.LoadInt32(&after.calls))
}

func TestChainExhausted(t *testing.T) {
	failed := &fakeProvider{name: "C", covers: true, result: Result{Diagnostic: "boom"}}
	res := NewChain(nil, failed).Polygons(context.Background(), 0, 0, 100)
	assert.False(t, res.Success)
	assert.Empty(t, res.Polygons)
	assert.Contains(t, res.Diagnostic, "boom")

	res = NewChain(nil).Polygons(context.Background(), 0, 0, 100)
	assert.False(t, res.Success)
	assert.Equal(t, "no provider covers the point", res.Diagnostic)
}

func TestChainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	good := &fakeProvider{name: "D", covers: true, result: Result{Success: true, Polygons: fixturePolygons()}}
	res := NewChain(nil, good).Polygons(ctx, 0, 0, 100)
	assert.False(t, res.Success)
	assert.Zero(t, atomic.LoadInt32(&good.calls))
}

func TestRegionsCoverKnownPoints(t *testing.T) {
	assert.True(t, RegionRio.Box.Contains(-22.9068, -43.1729))
	assert.True(t, RegionRJ.Box.Contains(-22.9068, -43.1729))
	assert.True(t, RegionSP.Box.Contains(-23.5505, -46.6333))
	assert.True(t, RegionMG.Box.Contains(-19.9167, -43.9345))
	assert.False(t, RegionRio.Box.Contains(-23.5505, -46.6333))
}

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"usoagregad": "Áreas residenciais"},
     "geometry": {"type": "Polygon", "coordinates": [[[-43.210,-22.910],[-43.200,-22.910],[-43.200,-22.900],[-43.210,-22.900],[-43.210,-22.910]]]}},
    {"type": "Feature", "properties": {"usoagregad": "Áreas industriais"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[-43.205,-22.905],[-43.195,-22.905],[-43.195,-22.895],[-43.205,-22.895],[-43.205,-22.905]]]]}},
    {"type": "Feature", "properties": {"usoagregad": "Áreas industriais"},
     "geometry": {"type": "Polygon", "coordinates": [[[-44.0,-23.0],[-43.99,-23.0],[-43.99,-22.99],[-44.0,-22.99],[-44.0,-23.0]]]}},
    {"type": "Feature", "properties": {"name": "a point"},
     "geometry": {"type": "Point", "coordinates": [-43.2,-22.9]}}
  ]
}`

func writeGeoJSON(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rio.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleGeoJSON), 0o644))
	return path
}

func TestGeoJSONProvider(t *testing.T) {
	path := writeGeoJSON(t)
	files := NewFileCache(4)
	defer files.Stop()

	p := NewGeoJSONProvider("DATA.RIO", path, RegionRio, RioMapper, files)
	require.True(t, p.Covers(-22.9, -43.2))
	assert.False(t, p.Covers(-23.55, -46.63))

	res := p.Polygons(context.Background(), -22.9025, -43.2025, 1500)
	require.True(t, res.Success)
	assert.Equal(t, "DATA.RIO", res.Provider)
	assert.Equal(t, "RIO", res.Region)
	require.Len(t, res.Polygons, 2)
	assert.Equal(t, Residential, res.Polygons[0].Label)
	assert.Equal(t, Industrial, res.Polygons[1].Label)
	assert.Equal(t, 1, files.Len())

	require.NoError(t, os.Remove(path))
	again := p.Polygons(context.Background(), -22.9025, -43.2025, 1500)
	assert.True(t, again.Success, "parsed file should be served from cache")
	assert.Len(t, again.Polygons, 2)
}

func TestGeoJSONProviderFailures(t *testing.T) {
	missing := NewGeoJSONProvider("GEOJSON_SP", filepath.Join(t.TempDir(), "nope.geojson"), RegionSP, nil, nil)
	res := missing.Polygons(context.Background(), -23.55, -46.63, 1000)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Diagnostic)

	bad := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	res = NewGeoJSONProvider("GEOJSON_SP", bad, RegionSP, nil, nil).Polygons(context.Background(), -23.55, -46.63, 1000)
	assert.False(t, res.Success)

	assert.False(t, NewGeoJSONProvider("GEOJSON_MG", "", RegionMG, nil, nil).Covers(-19.9, -43.9))
}

const sampleOverpass = `{
  "elements": [
    {"type": "way", "id": 1, "tags": {"landuse": "industrial"},
     "geometry": [{"lat": -22.905, "lon": -43.205}, {"lat": -22.905, "lon": -43.195}, {"lat": -22.895, "lon": -43.195}, {"lat": -22.895, "lon": -43.205}]},
    {"type": "way", "id": 2, "tags": {"landuse": "retail"},
     "geometry": [{"lat": -22.91, "lon": -43.21}, {"lat": -22.91, "lon": -43.20}]},
    {"type": "relation", "id": 3, "tags": {"landuse": "residential"},
     "members": [
       {"type": "way", "role": "outer", "geometry": [{"lat": -22.92, "lon": -43.22}, {"lat": -22.92, "lon": -43.21}, {"lat": -22.91, "lon": -43.21}, {"lat": -22.92, "lon": -43.22}]},
       {"type": "way", "role": "inner", "geometry": [{"lat": -22.918, "lon": -43.218}, {"lat": -22.918, "lon": -43.212}, {"lat": -22.912, "lon": -43.212}]}
     ]}
  ]
}`

func TestParseOverpass(t *testing.T) {
	polys, err := ParseOverpass([]byte(sampleOverpass))
	require.NoError(t, err)
	require.Len(t, polys, 2)

	assert.Equal(t, Industrial, polys[0].Label)
	ring := polys[0].Geometry.(orb.Polygon)[0]
	assert.Len(t, ring, 5)
	assert.True(t, ring.Closed())

	assert.Equal(t, Residential, polys[1].Label)
	_, isPolygon := polys[1].Geometry.(orb.Polygon)
	assert.True(t, isPolygon)

	_, err = ParseOverpass([]byte("<html>"))
	assert.Error(t, err)
}

func TestBuildOverpassQuery(t *testing.T) {
	q := BuildOverpassQuery(-22.9, -43.2, 1500.7)
	assert.Contains(t, q, "[out:json][timeout:25];")
	assert.Contains(t, q, `way["landuse"](around:1500,-22.900000,-43.200000);`)
	assert.Contains(t, q, `relation["landuse"](around:1500,-22.900000,-43.200000);`)
	assert.Contains(t, q, "out geom;")
	assert.Contains(t, BuildOverpassQuery(0, 0, 0), "around:1,")
}

func TestOverpassProviderFallsBackAcrossEndpoints(t *testing.T) {
	var downCalls, upCalls int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&downCalls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&upCalls, 1)
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		if err != nil || !strings.Contains(form.Get("data"), "out geom;") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleOverpass))
	}))
	defer up.Close()

	p := NewOverpassProvider(OverpassConfig{
		Endpoints:       []string{down.URL, up.URL},
		Attempts:        3,
		Timeout:         2 * time.Second,
		InitialInterval: time.Millisecond,
	}, nil)

	res := p.Polygons(context.Background(), -22.9, -43.2, 1500)
	require.True(t, res.Success, res.Diagnostic)
	assert.Equal(t, "OSM", res.Provider)
	assert.Equal(t, "BR", res.Region)
	assert.Len(t, res.Polygons, 2)
	assert.EqualValues(t, 3, atomic.LoadInt32(&downCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&upCalls))
}

func TestOverpassProviderAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	p := NewOverpassProvider(OverpassConfig{Endpoints: []string{srv.URL}, Attempts: 2, InitialInterval: time.Millisecond}, nil)
	res := p.Polygons(context.Background(), -22.9, -43.2, 1500)
	assert.False(t, res.Success)
	assert.Empty(t, res.Polygons)
	assert.Contains(t, res.Diagnostic, "not JSON")
}

func TestOverpassProviderDoesNotRetryPermanentFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		diag    string
	}{
		{"bad request", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}, "status 400"},
		{"html body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>busy</html>"))
		}, "not JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var badCalls, upCalls int32
			bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&badCalls, 1)
				tt.handler(w, r)
			}))
			defer bad.Close()
			up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				atomic.AddInt32(&upCalls, 1)
				_, _ = w.Write([]byte(sampleOverpass))
			}))
			defer up.Close()

			p := NewOverpassProvider(OverpassConfig{
				Endpoints:       []string{bad.URL, up.URL},
				Attempts:        3,
				InitialInterval: time.Millisecond,
			}, nil)
			res := p.Polygons(context.Background(), -22.9, -43.2, 1500)
			require.True(t, res.Success, res.Diagnostic)
			assert.EqualValues(t, 1, atomic.LoadInt32(&badCalls), "permanent failures move on to the next endpoint")
			assert.EqualValues(t, 1, atomic.LoadInt32(&upCalls))

			alone := NewOverpassProvider(OverpassConfig{Endpoints: []string{bad.URL}, Attempts: 3, InitialInterval: time.Millisecond}, nil)
			res = alone.Polygons(context.Background(), -22.9, -43.2, 1500)
			assert.False(t, res.Success)
			assert.Contains(t, res.Diagnostic, tt.diag)
			assert.EqualValues(t, 2, atomic.LoadInt32(&badCalls))
		})
	}
}
