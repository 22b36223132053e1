package refindex

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/geom"
)

func identity() orb.Projection {
	return geom.Identity()
}

func lineFeature(label string, line orb.LineString) *geojson.Feature {
	f := geojson.NewFeature(line)
	f.Properties["Label"] = label
	return f
}

func buildLines(t *testing.T, features ...*geojson.Feature) *Index {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	ix, err := Build(fc, identity())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ix
}

func TestBuildEmptyDataset(t *testing.T) {
	if _, err := Build(geojson.NewFeatureCollection(), identity()); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	if _, err := Build(nil, identity()); err == nil {
		t.Fatal("expected error for nil collection")
	}
}

func TestBuildSplitsMultiParts(t *testing.T) {
	f := geojson.NewFeature(orb.MultiLineString{
		{{0, 0}, {1, 0}},
		{{5, 5}, {6, 5}},
	})
	f.Properties["Label"] = "CS1"

	ix := buildLines(t, f)
	if ix.Len() != 2 {
		t.Fatalf("expected 2 entries from a 2-part line, got %d", ix.Len())
	}
}

func TestNearestOrderingAndExactness(t *testing.T) {
	ix := buildLines(t,
		lineFeature("far", orb.LineString{{0, 10}, {1, 10}}),
		lineFeature("near", orb.LineString{{0, 1}, {1, 1}}),
		lineFeature("mid", orb.LineString{{0, 5}, {1, 5}}),
	)

	candidate := orb.LineString{{0, 0}, {1, 0}}
	got := ix.Nearest(candidate, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Fatalf("distances not non-decreasing: %v", got)
		}
	}
	if got[0].Entry.Label != "near" || got[1].Entry.Label != "mid" || got[2].Entry.Label != "far" {
		t.Fatalf("unexpected ordering: %s %s %s",
			got[0].Entry.Label, got[1].Entry.Label, got[2].Entry.Label)
	}

	// k=1 must be a true minimum over the whole index.
	top := ix.Nearest(candidate, 1)
	if len(top) != 1 || top[0].Entry.Label != "near" {
		t.Fatalf("k=1 did not return the closest entry: %v", top)
	}
	if top[0].Distance != 1 {
		t.Fatalf("expected distance 1, got %f", top[0].Distance)
	}
}

func TestNearestTieBreaksByOrdinal(t *testing.T) {
	ix := buildLines(t,
		lineFeature("a", orb.LineString{{0, 1}, {1, 1}}),
		lineFeature("b", orb.LineString{{0, -1}, {1, -1}}),
	)

	got := ix.Nearest(orb.LineString{{0, 0}, {1, 0}}, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].Entry.Ordinal != 0 || got[1].Entry.Ordinal != 1 {
		t.Fatalf("equal distances must order by ordinal, got %d then %d",
			got[0].Entry.Ordinal, got[1].Entry.Ordinal)
	}
}

func TestNearestIntersectingLineIsZero(t *testing.T) {
	ix := buildLines(t, lineFeature("x", orb.LineString{{0, -1}, {0, 1}}))

	got := ix.Nearest(orb.LineString{{-1, 0}, {1, 0}}, 1)
	if len(got) != 1 || got[0].Distance != 0 {
		t.Fatalf("crossing lines must be at distance 0, got %v", got)
	}
}

func TestWithinPolygonDistances(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}))
	ix, err := Build(fc, identity())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	inside := orb.LineString{{2, 2}, {3, 3}}
	if got := ix.Within(inside, 5); len(got) != 1 || got[0].Distance != 0 {
		t.Fatalf("line inside polygon should be distance 0, got %v", got)
	}

	outside := orb.LineString{{13, 0}, {13, 10}}
	got := ix.Within(outside, 5)
	if len(got) != 1 {
		t.Fatalf("expected polygon within radius, got %v", got)
	}
	if got[0].Distance != 3 {
		t.Fatalf("expected distance 3 to the edge, got %f", got[0].Distance)
	}

	if got := ix.Within(outside, 2); len(got) != 0 {
		t.Fatalf("expected nothing within radius 2, got %v", got)
	}
}

func TestNearestOnNilIndex(t *testing.T) {
	var ix *Index
	if got := ix.Nearest(orb.LineString{{0, 0}, {1, 1}}, 3); got != nil {
		t.Fatalf("nil index must return no matches, got %v", got)
	}
	if ix.Len() != 0 {
		t.Fatal("nil index must report zero length")
	}
}
