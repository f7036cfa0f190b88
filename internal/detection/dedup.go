package detection

import (
	"fmt"
	"math"
	"sync"
)

// DefaultIoUThreshold is the overlap at which two mosaic boxes are taken to
// be the same panel.
const DefaultIoUThreshold = 0.5

// MosaicBox is a detection kept by the Deduplicator.
type MosaicBox struct {
	ID         string     `json:"id"`
	BBoxPct    PercentBox `json:"bbox_pct"`
	Confidence float64    `json:"confidence"`
	TileIndex  int        `json:"tile_index,omitempty"`
	Lat        float64    `json:"lat,omitempty"`
	Lon        float64    `json:"lon,omitempty"`
}

// Decision is the outcome of offering a box to the Deduplicator.
type Decision struct {
	Accepted bool
	// Kept is the newly stored box when Accepted.
	Kept MosaicBox
	// Replaced is the box that Kept superseded; its id must be retracted.
	Replaced *MosaicBox
}

// IoU returns the intersection-over-union of two boxes. Boxes with a
// non-positive area and disjoint boxes score 0.
func IoU(a, b PercentBox) float64 {
	areaA, areaB := a.Area(), b.Area()
	if a.Width <= 0 || a.Height <= 0 || b.Width <= 0 || b.Height <= 0 {
		return 0
	}

	ix := math.Min(a.Left+a.Width, b.Left+b.Width) - math.Max(a.Left, b.Left)
	iy := math.Min(a.Top+a.Height, b.Top+b.Height) - math.Max(a.Top, b.Top)
	if ix <= 0 || iy <= 0 {
		return 0
	}

	inter := ix * iy
	return inter / (areaA + areaB - inter)
}

// Deduplicator keeps one box per physical panel across overlapping tiles.
// It is safe for concurrent use; one instance serves one analysis run.
type Deduplicator struct {
	mu        sync.Mutex
	threshold float64
	nextID    int
	kept      []MosaicBox
}

// NewDeduplicator returns a Deduplicator; a non-positive threshold selects
// DefaultIoUThreshold.
func NewDeduplicator(threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultIoUThreshold
	}
	return &Deduplicator{threshold: threshold}
}

// Add offers a bare box and confidence.
func (d *Deduplicator) Add(box PercentBox, confidence float64) Decision {
	return d.Offer(MosaicBox{BBoxPct: box, Confidence: confidence})
}

// Offer compares c against every kept box. Below the threshold c is a new
// panel. At or above it, c replaces the best match only with a strictly
// higher confidence and gets a fresh id; otherwise c is rejected. Any ID on
// c is ignored.
func (d *Deduplicator) Offer(c MosaicBox) Decision {
	d.mu.Lock()
	defer d.mu.Unlock()

	best, bestIoU := -1, 0.0
	for i, k := range d.kept {
		if v := IoU(c.BBoxPct, k.BBoxPct); v > bestIoU {
			best, bestIoU = i, v
		}
	}

	if best < 0 || bestIoU < d.threshold {
		c.ID = d.newID()
		d.kept = append(d.kept, c)
		return Decision{Accepted: true, Kept: c}
	}

	old := d.kept[best]
	if c.Confidence <= old.Confidence {
		return Decision{}
	}
	c.ID = d.newID()
	d.kept[best] = c
	return Decision{Accepted: true, Kept: c, Replaced: &old}
}

// Snapshot returns a copy of the kept boxes.
func (d *Deduplicator) Snapshot() []MosaicBox {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]MosaicBox, len(d.kept))
	copy(out, d.kept)
	return out
}

// Len returns the number of kept boxes.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.kept)
}

func (d *Deduplicator) newID() string {
	d.nextID++
	return fmt.Sprintf("d%d", d.nextID)
}
