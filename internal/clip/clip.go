// Package clip trims route lines to a borough boundary polygon. Clipping
// runs at commit time only; live editing is never blocked by the boundary.
package clip

import (
	"errors"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrEmptyClip reports a route that lies entirely outside the boundary.
// Commits that clip to nothing are rejected with this error.
var ErrEmptyClip = errors.New("route lies entirely outside the borough boundary")

// ToBoundary intersects a line with the interior of a boundary polygon and
// returns the disjoint in-boundary pieces. A route that exits and re-enters
// the borough yields multiple parts; they are kept together as one
// multi-part geometry. Coordinates are carried through at input precision,
// with no snapping or rounding.
func ToBoundary(line orb.LineString, boundary orb.Polygon) orb.MultiLineString {
	if len(line) < 2 || len(boundary) == 0 {
		return nil
	}

	var out orb.MultiLineString
	var current orb.LineString

	flush := func() {
		if len(current) >= 2 {
			out = append(out, current)
		}
		current = nil
	}

	for i := 0; i+1 < len(line); i++ {
		a, b := line[i], line[i+1]
		for _, piece := range insideSpans(a, b, boundary) {
			start := lerp(a, b, piece.t0)
			end := lerp(a, b, piece.t1)
			if start == end {
				continue
			}
			if len(current) > 0 && current[len(current)-1] == start {
				current = append(current, end)
				continue
			}
			flush()
			current = orb.LineString{start, end}
		}
	}
	flush()

	return mergeAdjacent(out)
}

// ToBoundaries clips against every polygon of a multi-polygon boundary and
// concatenates the results.
func ToBoundaries(line orb.LineString, boundary orb.MultiPolygon) orb.MultiLineString {
	var out orb.MultiLineString
	for _, poly := range boundary {
		out = append(out, ToBoundary(line, poly)...)
	}
	return out
}

// MultiToBoundaries clips every part of a multi-part line.
func MultiToBoundaries(ml orb.MultiLineString, boundary orb.MultiPolygon) orb.MultiLineString {
	var out orb.MultiLineString
	for _, line := range ml {
		out = append(out, ToBoundaries(line, boundary)...)
	}
	return out
}

type span struct {
	t0, t1 float64
}

// insideSpans returns the parameter intervals of segment a-b that lie inside
// the polygon. The segment is cut at every crossing of a boundary edge and
// each piece is classified by testing its midpoint.
func insideSpans(a, b orb.Point, poly orb.Polygon) []span {
	params := []float64{0, 1}
	for _, ring := range poly {
		for j := 0; j+1 < len(ring); j++ {
			params = append(params, segmentParams(a, b, ring[j], ring[j+1])...)
		}
	}
	sort.Float64s(params)

	var out []span
	for i := 0; i+1 < len(params); i++ {
		t0, t1 := params[i], params[i+1]
		if t1-t0 < 1e-12 {
			continue
		}
		mid := lerp(a, b, (t0+t1)/2)
		if planar.PolygonContains(poly, mid) {
			if n := len(out); n > 0 && out[n-1].t1 == t0 {
				out[n-1].t1 = t1
			} else {
				out = append(out, span{t0, t1})
			}
		}
	}
	return out
}

// segmentParams returns the parameters along a-b at which it meets edge c-d,
// clamped to [0,1]. Collinear overlap contributes both overlap endpoints so
// the span classification still cuts correctly.
func segmentParams(a, b, c, d orb.Point) []float64 {
	r := orb.Point{b[0] - a[0], b[1] - a[1]}
	s := orb.Point{d[0] - c[0], d[1] - c[1]}
	denom := cross(r, s)
	acx := orb.Point{c[0] - a[0], c[1] - a[1]}

	if denom == 0 {
		if cross(acx, r) != 0 {
			return nil // parallel, no overlap
		}
		rr := r[0]*r[0] + r[1]*r[1]
		if rr == 0 {
			return nil
		}
		t0 := (acx[0]*r[0] + acx[1]*r[1]) / rr
		t1 := t0 + (s[0]*r[0]+s[1]*r[1])/rr
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t1 < 0 || t0 > 1 {
			return nil
		}
		return []float64{clamp01(t0), clamp01(t1)}
	}

	t := cross(acx, s) / denom
	u := cross(acx, r) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return nil
	}
	return []float64{t}
}

func cross(a, b orb.Point) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

func lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// mergeAdjacent joins consecutive parts whose endpoints touch. Pieces split
// only by a boundary vertex on the line are stitched back together.
func mergeAdjacent(parts orb.MultiLineString) orb.MultiLineString {
	if len(parts) < 2 {
		return parts
	}
	out := orb.MultiLineString{parts[0]}
	for _, part := range parts[1:] {
		last := out[len(out)-1]
		if last[len(last)-1] == part[0] {
			out[len(out)-1] = append(last, part[1:]...)
		} else {
			out = append(out, part)
		}
	}
	return out
}
