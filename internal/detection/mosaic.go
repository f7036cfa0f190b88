package detection

import "math"

// PercentBox is a box in mosaic percent space, every edge within [0,100].
type PercentBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns Width*Height.
func (p PercentBox) Area() float64 { return p.Width * p.Height }

// ToMosaicPercent maps a pixel box inside the tile at (row, col) of an n×n
// mosaic into percentages of the whole canvas. It returns false when the
// box is missing, the image size is not positive or n < 1.
func ToMosaicPercent(row, col, n int, box *Box, imgW, imgH int) (PercentBox, bool) {
	if box == nil || imgW <= 0 || imgH <= 0 || n < 1 {
		return PercentBox{}, false
	}

	slice := 100 / float64(n)
	w, h := float64(imgW), float64(imgH)

	left := float64(col)*slice + box.X1/w*slice
	top := float64(row)*slice + box.Y1/h*slice
	width := box.Width() / w * slice
	height := box.Height() / h * slice

	left = clamp(left, 0, 100)
	top = clamp(top, 0, 100)
	width = clamp(width, 0, 100-left)
	height = clamp(height, 0, 100-top)

	return PercentBox{Left: left, Top: top, Width: width, Height: height}, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
