package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeShapes(t *testing.T) {
	want := &Box{X1: 10, Y1: 20, X2: 50, Y2: 80}
	tests := []struct {
		name string
		raw  map[string]interface{}
	}{
		{"bbox list", map[string]interface{}{"bbox": []interface{}{10.0, 20.0, 50.0, 80.0}}},
		{"xyxy list", map[string]interface{}{"xyxy": []interface{}{10.0, 20.0, 50.0, 80.0}}},
		{"box object", map[string]interface{}{"box": map[string]interface{}{"x1": 10.0, "y1": 20.0, "x2": 50.0, "y2": 80.0}}},
		{"flat corners", map[string]interface{}{"x1": 10.0, "y1": 20.0, "x2": 50.0, "y2": 80.0}},
		{"xywh list", map[string]interface{}{"xywh": []interface{}{10.0, 20.0, 40.0, 60.0}}},
		{"x y width height", map[string]interface{}{"x": 10.0, "y": 20.0, "width": 40.0, "height": 60.0}},
		{"swapped corners", map[string]interface{}{"bbox": []interface{}{50.0, 80.0, 10.0, 20.0}}},
		{"string numbers", map[string]interface{}{"x": "10", "y": "20", "width": "40", "height": "60"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Normalize(tt.raw)
			require.NotNil(t, d.Box)
			assert.Equal(t, want, d.Box)
		})
	}
}

func TestNormalizeWithoutBox(t *testing.T) {
	d := Normalize(map[string]interface{}{"confidence": 0.8, "bbox": []interface{}{1.0, 2.0}})
	assert.Nil(t, d.Box)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, -1, d.ClassID)
}

func TestNormalizeConfidenceAndClass(t *testing.T) {
	d := Normalize(map[string]interface{}{"score": 0.7, "cls": 2.0, "class": "solar_panel"})
	assert.Equal(t, 0.7, d.Confidence)
	assert.Equal(t, 2, d.ClassID)
	assert.Equal(t, "solar_panel", d.Class)
}

func TestNormalizeJSON(t *testing.T) {
	bare := []byte(`[{"x":1,"y":2,"width":3,"height":4,"confidence":0.9,"class_id":0}]`)
	dets, err := NormalizeJSON(bare)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, Box{X1: 1, Y1: 2, X2: 4, Y2: 6}, *dets[0].Box)
	assert.Equal(t, 0, dets[0].ClassID)

	wrapped := []byte(`{"detections":[{"xyxy":[0,0,10,10],"conf":0.6}]}`)
	dets, err = NormalizeJSON(wrapped)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 0.6, dets[0].Confidence)

	_, err = NormalizeJSON([]byte(`not json`))
	assert.Error(t, err)
}
