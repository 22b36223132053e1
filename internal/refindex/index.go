// Package refindex holds the read-only spatial index over the reference
// datasets (designated cycle routes and ownership polygons) and the matchers
// that propose route metadata from it. The index is built exactly once at
// startup and is safe for concurrent queries; no write path exists.
package refindex

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/geom"
)

// ErrEmptyDataset reports a reference dataset with no usable geometry. The
// caller disables the corresponding matcher for the session rather than
// crashing.
var ErrEmptyDataset = errors.New("reference dataset contains no usable geometry")

// Entry wraps one reference geometry with its envelope and source record
// attributes. The geometry is stored pre-projected into planar metres.
type Entry struct {
	Ordinal   int
	Label     string
	Programme string
	Geometry  orb.Geometry
	Bound     orb.Bound
}

// Match is one nearest-neighbour result.
type Match struct {
	Entry    *Entry
	Distance float64
}

// Index is an immutable envelope-pruned index over reference geometries.
type Index struct {
	entries []Entry
}

// Build constructs the index from a feature collection, splitting multi-part
// geometries into one entry per part and projecting everything with proj.
// Features without geometry are skipped; an entirely empty result is an
// error so the caller can disable the matcher.
func Build(fc *geojson.FeatureCollection, proj orb.Projection) (*Index, error) {
	if fc == nil {
		return nil, ErrEmptyDataset
	}

	var entries []Entry
	for _, feat := range fc.Features {
		if feat == nil || feat.Geometry == nil {
			continue
		}
		label := strings.TrimSpace(feat.Properties.MustString("Label", ""))
		programme := strings.TrimSpace(feat.Properties.MustString("Programme", ""))
		for _, part := range splitParts(feat.Geometry) {
			projected := geom.Project(part, proj)
			entries = append(entries, Entry{
				Ordinal:   len(entries),
				Label:     label,
				Programme: programme,
				Geometry:  projected,
				Bound:     projected.Bound(),
			})
		}
	}
	if len(entries) == 0 {
		return nil, ErrEmptyDataset
	}
	return &Index{entries: entries}, nil
}

// Len reports the number of indexed entries. A nil index has zero entries.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Nearest returns up to k entries ordered by non-decreasing minimum planar
// distance to g, ties broken by ordinal. The candidate geometry must already
// be in the index's projected space. Envelope distance prunes entries that
// cannot beat the current k-th best, so results stay exact.
func (ix *Index) Nearest(g orb.Geometry, k int) []Match {
	if ix == nil || len(ix.entries) == 0 || g == nil || k <= 0 {
		return nil
	}

	gb := g.Bound()
	var best []Match // sorted ascending, len <= k

	for i := range ix.entries {
		e := &ix.entries[i]
		if len(best) == k {
			worst := best[len(best)-1].Distance
			if boundDistance(e.Bound, gb) > worst {
				continue
			}
		}
		d := geometryDistance(g, e.Geometry)
		if d < 0 {
			continue
		}
		best = insertMatch(best, Match{Entry: e, Distance: d}, k)
	}
	return best
}

// Within returns every entry whose minimum distance to g is at most radius,
// ordered by distance then ordinal.
func (ix *Index) Within(g orb.Geometry, radius float64) []Match {
	if ix == nil || len(ix.entries) == 0 || g == nil || radius < 0 {
		return nil
	}

	gb := g.Bound()
	var out []Match
	for i := range ix.entries {
		e := &ix.entries[i]
		if boundDistance(e.Bound, gb) > radius {
			continue
		}
		d := geometryDistance(g, e.Geometry)
		if d < 0 || d > radius {
			continue
		}
		out = insertMatch(out, Match{Entry: e, Distance: d}, len(ix.entries))
	}
	return out
}

func insertMatch(list []Match, m Match, k int) []Match {
	pos := len(list)
	for pos > 0 {
		prev := list[pos-1]
		if prev.Distance < m.Distance ||
			(prev.Distance == m.Distance && prev.Entry.Ordinal < m.Entry.Ordinal) {
			break
		}
		pos--
	}
	list = append(list, Match{})
	copy(list[pos+1:], list[pos:])
	list[pos] = m
	if len(list) > k {
		list = list[:k]
	}
	return list
}

func splitParts(g orb.Geometry) []orb.Geometry {
	switch v := g.(type) {
	case orb.MultiLineString:
		out := make([]orb.Geometry, 0, len(v))
		for _, ls := range v {
			if len(ls) >= 2 {
				out = append(out, ls)
			}
		}
		return out
	case orb.MultiPolygon:
		out := make([]orb.Geometry, 0, len(v))
		for _, p := range v {
			if len(p) > 0 {
				out = append(out, p)
			}
		}
		return out
	case orb.Collection:
		var out []orb.Geometry
		for _, sub := range v {
			out = append(out, splitParts(sub)...)
		}
		return out
	case orb.LineString:
		if len(v) < 2 {
			return nil
		}
		return []orb.Geometry{v}
	case orb.Polygon:
		if len(v) == 0 {
			return nil
		}
		return []orb.Geometry{v}
	case orb.Point:
		return []orb.Geometry{v}
	default:
		return nil
	}
}

func (e *Entry) String() string {
	return fmt.Sprintf("entry %d label=%q", e.Ordinal, e.Label)
}
