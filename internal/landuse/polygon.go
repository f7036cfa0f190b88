package landuse

import (
	"errors"
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// Polygon is a land-use area. Geometry is an orb.Polygon or orb.MultiPolygon
// in lon/lat.
type Polygon struct {
	Geometry orb.Geometry `json:"geometry"`
	Label    Label        `json:"landuse"`
}

var errDegenerate = errors.New("degenerate ring")

// toS2 converts a polygonal geometry. Each polygon of a MultiPolygon becomes
// its own s2 polygon. Invalid input is repaired once: duplicate vertices are
// dropped and, if the result is still invalid, the ring is replaced by its
// convex hull.
func toS2(g orb.Geometry) ([]*s2.Polygon, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		p, err := polygonToS2(geom)
		if err != nil {
			return nil, err
		}
		return []*s2.Polygon{p}, nil
	case orb.MultiPolygon:
		out := make([]*s2.Polygon, 0, len(geom))
		var lastErr error
		for _, poly := range geom {
			p, err := polygonToS2(poly)
			if err != nil {
				lastErr = err
				continue
			}
			out = append(out, p)
		}
		if len(out) == 0 {
			if lastErr == nil {
				lastErr = errDegenerate
			}
			return nil, lastErr
		}
		return out, nil
	case nil:
		return nil, errors.New("missing geometry")
	}
	return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
}

func polygonToS2(poly orb.Polygon) (*s2.Polygon, error) {
	if len(poly) == 0 {
		return nil, errDegenerate
	}

	loops := make([]*s2.Loop, 0, len(poly))
	for i, ring := range poly {
		loop, err := ringToLoop(ring)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("outer ring: %w", err)
			}
			// a broken hole is dropped rather than losing the whole area
			continue
		}
		loops = append(loops, loop)
	}

	p := s2.PolygonFromLoops(loops)
	if err := p.Validate(); err == nil {
		return p, nil
	}

	// holes that cross the shell: keep the shell's hull only
	hull, err := hullLoop(ringPoints(poly[0]))
	if err != nil {
		return nil, err
	}
	p = s2.PolygonFromLoops([]*s2.Loop{hull})
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid polygon after repair: %w", err)
	}
	return p, nil
}

func ringToLoop(ring orb.Ring) (*s2.Loop, error) {
	pts := ringPoints(ring)
	if len(pts) < 3 {
		return nil, errDegenerate
	}
	if selfIntersects(pts) {
		return hullLoop(pts)
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	if err := loop.Validate(); err == nil {
		return loop, nil
	}
	return hullLoop(pts)
}

// maxCrossingCheck bounds the quadratic crossing test.
const maxCrossingCheck = 4096

// selfIntersects reports whether two non-adjacent edges of the closed ring
// cross. Rings above maxCrossingCheck vertices are assumed simple.
func selfIntersects(pts []s2.Point) bool {
	n := len(pts)
	if n < 4 || n > maxCrossingCheck {
		return false
	}
	for i := 0; i < n; i++ {
		crosser := s2.NewEdgeCrosser(pts[i], pts[(i+1)%n])
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if crosser.CrossingSign(pts[j], pts[(j+1)%n]) == s2.Cross {
				return true
			}
		}
	}
	return false
}

func hullLoop(pts []s2.Point) (*s2.Loop, error) {
	if len(pts) < 3 {
		return nil, errDegenerate
	}
	q := s2.NewConvexHullQuery()
	for _, p := range pts {
		q.AddPoint(p)
	}
	hull := q.ConvexHull()
	if hull.IsEmpty() || hull.IsFull() || hull.NumVertices() < 3 {
		return nil, errDegenerate
	}
	if err := hull.Validate(); err != nil {
		return nil, err
	}
	return hull, nil
}

// ringPoints converts a ring to s2 points, dropping the closing vertex and
// consecutive duplicates.
func ringPoints(ring orb.Ring) []s2.Point {
	pts := make([]s2.Point, 0, len(ring))
	for _, p := range ring {
		sp := s2.PointFromLatLng(s2.LatLngFromDegrees(p[1], p[0]))
		if n := len(pts); n > 0 && pts[n-1].ApproxEqual(sp) {
			continue
		}
		pts = append(pts, sp)
	}
	for len(pts) > 1 && pts[len(pts)-1].ApproxEqual(pts[0]) {
		pts = pts[:len(pts)-1]
	}
	return pts
}
