package landuse

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/jengzang/solarscan-backend-go/internal/detection"
	"github.com/jengzang/solarscan-backend-go/internal/spatial"
)

// DefaultNearDistanceM is how far outside every polygon a point may be and
// still take the nearest polygon's label.
const DefaultNearDistanceM = 60.0

// nearTieM treats two candidates this close in distance as equally near.
const nearTieM = 0.01

// boundaryTolerance counts a point this close to a polygon edge as inside it.
const boundaryTolerance = s1.Angle(1e-9)

// Match is the land-use resolved for one point.
type Match struct {
	Label      Label
	Confidence string
	// NearM is set for proximity matches only.
	NearM *float64
}

// Index is a read-only spatial index over land-use polygons. After NewIndex
// returns it may be queried from several goroutines.
type Index struct {
	shapes   *s2.ShapeIndex
	labels   map[s2.Shape]Label
	byID     map[int32]Label
	maxNearM float64
	skipped  int
}

// NewIndex indexes polygons. Geometries that cannot be repaired are skipped
// and counted in Skipped.
func NewIndex(polygons []Polygon, maxNearM float64) *Index {
	if maxNearM < 0 {
		maxNearM = 0
	}
	idx := &Index{
		shapes:   s2.NewShapeIndex(),
		labels:   make(map[s2.Shape]Label),
		byID:     make(map[int32]Label),
		maxNearM: maxNearM,
	}

	for _, p := range polygons {
		converted, err := toS2(p.Geometry)
		if err != nil {
			idx.skipped++
			continue
		}
		label := ParseLabel(string(p.Label))
		for _, sp := range converted {
			id := idx.shapes.Add(sp)
			idx.labels[sp] = label
			idx.byID[id] = label
		}
	}
	idx.shapes.Build()
	return idx
}

// Len returns the number of indexed shapes.
func (x *Index) Len() int { return len(x.byID) }

// Skipped returns how many input polygons were dropped as invalid.
func (x *Index) Skipped() int { return x.skipped }

// Match resolves the label at lat/lon. Containing polygons win by priority
// (industrial short-circuits); otherwise the nearest polygon within the
// proximity limit is used; otherwise Unknown.
func (x *Index) Match(lat, lon float64) Match {
	none := Match{Label: Unknown, Confidence: detection.MatchNone}
	if x == nil || len(x.byID) == 0 {
		return none
	}

	pt := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))

	if l, ok := x.containing(pt); ok {
		return Match{Label: l, Confidence: detection.MatchContains}
	}

	if l, dist, ok := x.nearest(pt); ok {
		return Match{Label: l, Confidence: detection.MatchNear, NearM: &dist}
	}
	return none
}

// containing resolves the polygons that contain pt or have it on their
// boundary. Interior containment alone is semi-open, so a point on an edge
// shared by two polygons would otherwise belong to only one of them.
func (x *Index) containing(pt s2.Point) (Label, bool) {
	best, found := Unknown, false
	consider := func(l Label) {
		if !found || l.Priority() > best.Priority() {
			best, found = l, true
		}
	}

	q := s2.NewContainsPointQuery(x.shapes, s2.VertexModelClosed)
	for _, shape := range q.ContainingShapes(pt) {
		if l, ok := x.labels[shape]; ok {
			consider(l)
		}
		if best == Industrial {
			return best, true
		}
	}

	limit := s1.ChordAngleFromAngle(boundaryTolerance).Successor()
	opts := s2.NewClosestEdgeQueryOptions().DistanceLimit(limit).IncludeInteriors(false)
	for _, r := range s2.NewClosestEdgeQuery(x.shapes, opts).FindEdges(s2.NewMinDistanceToPointTarget(pt)) {
		if r.IsEmpty() {
			continue
		}
		if l, ok := x.byID[r.ShapeID()]; ok {
			consider(l)
		}
	}
	return best, found
}

func (x *Index) nearest(pt s2.Point) (Label, float64, bool) {
	if x.maxNearM <= 0 {
		return Unknown, 0, false
	}

	limit := s1.ChordAngleFromAngle(s1.Angle(spatial.MetersToAngle(x.maxNearM))).Successor()
	opts := s2.NewClosestEdgeQueryOptions().DistanceLimit(limit).IncludeInteriors(false)
	q := s2.NewClosestEdgeQuery(x.shapes, opts)

	perShape := make(map[int32]float64)
	for _, r := range q.FindEdges(s2.NewMinDistanceToPointTarget(pt)) {
		if r.IsEmpty() {
			continue
		}
		d := spatial.AngleToMeters(r.Distance().Angle().Radians())
		if cur, ok := perShape[r.ShapeID()]; !ok || d < cur {
			perShape[r.ShapeID()] = d
		}
	}

	best, bestDist, found := Unknown, math.Inf(1), false
	for id, d := range perShape {
		if d > x.maxNearM {
			continue
		}
		l := x.byID[id]
		switch {
		case !found, d < bestDist-nearTieM:
			best, bestDist, found = l, d, true
		case math.Abs(d-bestDist) <= nearTieM && l.Priority() > best.Priority():
			best, bestDist = l, math.Min(d, bestDist)
		}
	}
	return best, bestDist, found
}

// Join labels every detection from its lat/lon. The output has the same
// length and order as the input, and every element carries a label.
func Join(dets []detection.Detection, polygons []Polygon, maxNearM float64) []detection.Detection {
	return NewIndex(polygons, maxNearM).Annotate(dets)
}

// Annotate labels a copy of dets using the index.
func (x *Index) Annotate(dets []detection.Detection) []detection.Detection {
	out := make([]detection.Detection, len(dets))
	for i, d := range dets {
		m := x.Match(d.Lat, d.Lon)
		d.LandUse = string(m.Label)
		d.LandUseConfidence = m.Confidence
		d.LandUseNearM = m.NearM
		out[i] = d
	}
	return out
}

// CountByLabel counts detections per land-use label.
func CountByLabel(dets []detection.Detection) map[Label]int {
	counts := make(map[Label]int)
	for _, d := range dets {
		l := Label(d.LandUse)
		if l == "" {
			l = Unknown
		}
		counts[l]++
	}
	return counts
}
