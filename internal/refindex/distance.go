package refindex

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// geometryDistance computes the minimum planar distance between a candidate
// geometry and a reference geometry. Returns a negative value for
// unsupported geometry combinations.
//
// For polylines that do not cross, the closest pair of points always
// involves a vertex of one of them, so the minimum over vertex-to-line
// distances in both directions is exact; no segment-segment routine needed.
func geometryDistance(candidate, ref orb.Geometry) float64 {
	cLines := asLines(candidate)
	if cLines == nil {
		return -1
	}

	switch r := ref.(type) {
	case orb.Point:
		return linesToPoint(cLines, r)
	case orb.LineString:
		return linesToLines(cLines, orb.MultiLineString{r})
	case orb.MultiLineString:
		return linesToLines(cLines, r)
	case orb.Polygon:
		return linesToPolygon(cLines, r)
	case orb.MultiPolygon:
		best := math.Inf(1)
		for _, p := range r {
			if d := linesToPolygon(cLines, p); d < best {
				best = d
			}
		}
		if math.IsInf(best, 1) {
			return -1
		}
		return best
	default:
		return -1
	}
}

// asLines normalizes a candidate geometry into polyline form. A bare point
// becomes a degenerate two-point line so the same distance paths apply.
func asLines(g orb.Geometry) orb.MultiLineString {
	switch v := g.(type) {
	case orb.LineString:
		if len(v) == 0 {
			return nil
		}
		if len(v) == 1 {
			return orb.MultiLineString{{v[0], v[0]}}
		}
		return orb.MultiLineString{v}
	case orb.MultiLineString:
		var out orb.MultiLineString
		for _, ls := range v {
			if sub := asLines(ls); sub != nil {
				out = append(out, sub...)
			}
		}
		return out
	case orb.Point:
		return orb.MultiLineString{{v, v}}
	default:
		return nil
	}
}

func linesToPoint(lines orb.MultiLineString, p orb.Point) float64 {
	best := math.Inf(1)
	for _, line := range lines {
		if d := planar.DistanceFrom(line, p); d < best {
			best = d
		}
	}
	return best
}

func linesToLines(a, b orb.MultiLineString) float64 {
	for _, la := range a {
		for _, lb := range b {
			if polylinesCross(la, lb) {
				return 0
			}
		}
	}

	best := math.Inf(1)
	for _, la := range a {
		for _, p := range la {
			for _, lb := range b {
				if d := planar.DistanceFrom(lb, p); d < best {
					best = d
				}
			}
		}
	}
	for _, lb := range b {
		for _, p := range lb {
			for _, la := range a {
				if d := planar.DistanceFrom(la, p); d < best {
					best = d
				}
			}
		}
	}
	return best
}

func linesToPolygon(lines orb.MultiLineString, poly orb.Polygon) float64 {
	if len(poly) == 0 {
		return -1
	}
	// Inside the polygon, or crossing its boundary, means distance zero.
	for _, line := range lines {
		for _, p := range line {
			if planar.PolygonContains(poly, p) {
				return 0
			}
		}
	}

	best := math.Inf(1)
	for _, ring := range poly {
		d := linesToLines(lines, orb.MultiLineString{orb.LineString(ring)})
		if d == 0 {
			return 0
		}
		if d < best {
			best = d
		}
	}
	return best
}

func polylinesCross(a, b orb.LineString) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// boundDistance is the minimum distance between two envelopes; zero when
// they overlap. Always a lower bound on the true geometry distance.
func boundDistance(a, b orb.Bound) float64 {
	dx := math.Max(0, math.Max(b.Min[0]-a.Max[0], a.Min[0]-b.Max[0]))
	dy := math.Max(0, math.Max(b.Min[1]-a.Max[1], a.Min[1]-b.Max[1]))
	return math.Hypot(dx, dy)
}
