package detection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMetrics(t *testing.T) {
	dets := []Detection{{Confidence: 0.6}, {Confidence: 0.8}, {Confidence: 1.0}}
	m := ComputeMetrics(dets, 1500*time.Microsecond)

	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 0.8, m.ConfidenceMean)
	assert.Equal(t, 0.6, m.ConfidenceMin)
	assert.Equal(t, 1.0, m.ConfidenceMax)
	assert.Equal(t, 0.2, m.ConfidenceStd)
	assert.Equal(t, 1.5, m.InferenceTimeMS)
}

func TestComputeMetricsEdgeCases(t *testing.T) {
	assert.Equal(t, Metrics{}, ComputeMetrics(nil, 0))

	one := ComputeMetrics([]Detection{{Confidence: 0.75}}, 0)
	assert.Equal(t, 1, one.Total)
	assert.Equal(t, 0.75, one.ConfidenceMean)
	assert.Equal(t, 0.0, one.ConfidenceStd)
}

func TestHTTPDetector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detections":[
			{"x":10,"y":10,"width":20,"height":20,"confidence":0.9},
			{"bbox":[100,100,140,150],"confidence":0.3}
		]}`))
	}))
	defer srv.Close()

	det := NewHTTPDetector(srv.URL, 0.5, time.Second, nil)
	dets, m := det.Detect(context.Background(), []byte{0x89, 'P', 'N', 'G'})

	require.Len(t, dets, 1)
	assert.Equal(t, Box{X1: 10, Y1: 10, X2: 30, Y2: 30}, *dets[0].Box)
	assert.Equal(t, 1, m.Total)
}

func TestHTTPDetectorSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	det := NewHTTPDetector(srv.URL, 0.5, time.Second, nil)
	dets, m := det.Detect(context.Background(), []byte("img"))
	assert.Empty(t, dets)
	assert.Equal(t, 0, m.Total)

	dets, _ = det.Detect(context.Background(), nil)
	assert.Empty(t, dets)
}

func TestToFeatureCollection(t *testing.T) {
	near := 12.5
	fc := ToFeatureCollection([]Detection{
		{Lat: -22.9, Lon: -43.3, Confidence: 0.9, LandUse: "industrial", LandUseConfidence: MatchNear, LandUseNearM: &near},
		{Lat: -22.8, Lon: -43.2, GeoFallback: true},
	})
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "industrial", fc.Features[0].Properties["landuse"])
	assert.Equal(t, 12.5, fc.Features[0].Properties["landuse_near_m"])
	assert.Equal(t, true, fc.Features[1].Properties["geo_fallback"])
}
