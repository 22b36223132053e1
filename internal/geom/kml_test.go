package geom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

const boundaryKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Folder>
      <Placemark>
        <name>Richmond upon Thames</name>
        <Polygon>
          <outerBoundaryIs><LinearRing>
            <coordinates>
              -0.33,51.40,0 -0.25,51.40,0 -0.25,51.47,0 -0.33,51.47,0 -0.33,51.40,0
            </coordinates>
          </LinearRing></outerBoundaryIs>
          <innerBoundaryIs><LinearRing>
            <coordinates>
              -0.30,51.42,0 -0.28,51.42,0 -0.28,51.44,0 -0.30,51.44,0 -0.30,51.42,0
            </coordinates>
          </LinearRing></innerBoundaryIs>
        </Polygon>
      </Placemark>
      <Placemark>
        <name>Thames Path</name>
        <LineString>
          <coordinates>-0.32,51.41 -0.26,51.45</coordinates>
        </LineString>
      </Placemark>
    </Folder>
  </Document>
</kml>`

func TestParseKMLPlacemarks(t *testing.T) {
	named, err := ParseKML([]byte(boundaryKML))
	if err != nil {
		t.Fatalf("ParseKML: %v", err)
	}
	if len(named) != 2 {
		t.Fatalf("expected 2 geometries, got %d", len(named))
	}

	poly, ok := named[0].Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("expected Polygon, got %T", named[0].Geometry)
	}
	if named[0].Name != "Richmond upon Thames" {
		t.Fatalf("unexpected name %q", named[0].Name)
	}
	if len(poly) != 2 {
		t.Fatalf("expected outer ring plus one hole, got %d rings", len(poly))
	}
	for i, ring := range poly {
		if ring[0] != ring[len(ring)-1] {
			t.Fatalf("ring %d is not closed", i)
		}
	}

	line, ok := named[1].Geometry.(orb.LineString)
	if !ok {
		t.Fatalf("expected LineString, got %T", named[1].Geometry)
	}
	if len(line) != 2 {
		t.Fatalf("expected 2 points, got %d", len(line))
	}
}

func TestParseKMLFallbackOnMalformedMarkup(t *testing.T) {
	// Unclosed Placemark tag breaks the structured decode; the raw
	// coordinate scan must still recover the geometry.
	malformed := `<?xml version="1.0"?>
<kml><Document><Placemark><name>broken
  <LineString><coordinates>-0.1,51.5 -0.2,51.6 -0.3,51.7</coordinates></LineString>
</Placemark></Document></kml>`

	named, err := ParseKML([]byte(malformed))
	if err != nil {
		t.Fatalf("expected fallback to recover, got error: %v", err)
	}
	if len(named) != 1 {
		t.Fatalf("expected 1 recovered geometry, got %d", len(named))
	}
	line, ok := named[0].Geometry.(orb.LineString)
	if !ok {
		t.Fatalf("expected LineString, got %T", named[0].Geometry)
	}
	if len(line) != 3 {
		t.Fatalf("expected 3 points, got %d", len(line))
	}
}

func TestParseKMLNoGeometry(t *testing.T) {
	if _, err := ParseKML([]byte("not kml at all")); err == nil {
		t.Fatal("expected error for non-kml input with no coordinates")
	}
}

func TestLoadKMLBoundaries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boroughs.kml")
	if err := os.WriteFile(path, []byte(boundaryKML), 0o644); err != nil {
		t.Fatal(err)
	}

	boundaries, err := LoadKMLBoundaries(path)
	if err != nil {
		t.Fatalf("LoadKMLBoundaries: %v", err)
	}
	mp, ok := boundaries["Richmond upon Thames"]
	if !ok {
		t.Fatalf("missing borough, got keys %v", keys(boundaries))
	}
	if len(mp) != 1 {
		t.Fatalf("expected 1 polygon, got %d", len(mp))
	}
	// The line placemark must not appear as a boundary.
	if _, ok := boundaries["Thames Path"]; ok {
		t.Fatal("line placemark leaked into boundaries")
	}
}

func keys(m map[string]orb.MultiPolygon) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
