package tiling

import "sort"

// OrderCenterOut returns a copy of tiles sorted by Manhattan distance from
// the grid's center cell, ties broken by (row, col).
func OrderCenterOut(tiles []Tile) []Tile {
	out := make([]Tile, len(tiles))
	copy(out, tiles)
	if len(out) == 0 {
		return out
	}

	maxRow, maxCol := 0, 0
	for _, t := range out {
		if t.Row > maxRow {
			maxRow = t.Row
		}
		if t.Col > maxCol {
			maxCol = t.Col
		}
	}
	cr, cc := maxRow/2, maxCol/2

	dist := func(t Tile) int {
		return abs(t.Row-cr) + abs(t.Col-cc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := dist(out[i]), dist(out[j])
		if di != dj {
			return di < dj
		}
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
