package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMosaicPercent(t *testing.T) {
	box := &Box{X1: 320, Y1: 160, X2: 480, Y2: 320}
	got, ok := ToMosaicPercent(1, 2, 3, box, 640, 640)
	assert.True(t, ok)

	slice := 100.0 / 3
	assert.InDelta(t, 2*slice+0.5*slice, got.Left, 1e-9)
	assert.InDelta(t, slice+0.25*slice, got.Top, 1e-9)
	assert.InDelta(t, 0.25*slice, got.Width, 1e-9)
	assert.InDelta(t, 0.25*slice, got.Height, 1e-9)
}

func TestToMosaicPercentClamps(t *testing.T) {
	// box runs past the right and bottom edge of the last tile
	box := &Box{X1: 600, Y1: 600, X2: 900, Y2: 900}
	got, ok := ToMosaicPercent(2, 2, 3, box, 640, 640)
	assert.True(t, ok)
	assert.LessOrEqual(t, got.Left+got.Width, 100.0+1e-9)
	assert.LessOrEqual(t, got.Top+got.Height, 100.0+1e-9)

	// negative pixel coordinates clamp to the canvas origin
	neg := &Box{X1: -100, Y1: -100, X2: 10, Y2: 10}
	got, ok = ToMosaicPercent(0, 0, 3, neg, 640, 640)
	assert.True(t, ok)
	assert.Equal(t, 0.0, got.Left)
	assert.Equal(t, 0.0, got.Top)
}

func TestToMosaicPercentRejects(t *testing.T) {
	_, ok := ToMosaicPercent(0, 0, 3, nil, 640, 640)
	assert.False(t, ok)
	_, ok = ToMosaicPercent(0, 0, 3, &Box{X2: 1, Y2: 1}, 0, 640)
	assert.False(t, ok)
	_, ok = ToMosaicPercent(0, 0, 3, &Box{X2: 1, Y2: 1}, 640, -1)
	assert.False(t, ok)
	_, ok = ToMosaicPercent(0, 0, 0, &Box{X2: 1, Y2: 1}, 640, 640)
	assert.False(t, ok)
}
