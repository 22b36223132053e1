package store

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/editor"
)

func sampleRoute() *editor.Route {
	return &editor.Route{
		GUID:        "7c9a1f8e-0000-0000-0000-000000000001",
		ID:          "apple-red-date",
		Name:        "Chapel Road",
		Geometry:    orb.MultiLineString{{{-0.3, 51.4}, {-0.29, 51.41}}},
		Designation: "CS3",
		Ownership:   "TFL",
		OneWay:      "OneWay",
		History:     "2026-08-25: created by alice",
		WhenCreated: "2026-08-25",
		LastEdited:  "2026-08-25",
	}
}

func TestRouteRowRoundTrip(t *testing.T) {
	want := sampleRoute()

	row, err := RowFromRoute(want, "Richmond upon Thames", 3)
	if err != nil {
		t.Fatalf("RowFromRoute: %v", err)
	}
	if !strings.HasPrefix(row.Geometry, "SRID=4326;") {
		t.Fatalf("geometry not EWKT: %q", row.Geometry)
	}
	if row.Borough != "Richmond upon Thames" || row.Position != 3 {
		t.Fatalf("unexpected row placement: %+v", row)
	}

	got, err := RouteFromRow(row)
	if err != nil {
		t.Fatalf("RouteFromRow: %v", err)
	}
	if got.GUID != want.GUID || got.ID != want.ID || got.Name != want.Name {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if got.Designation != "CS3" || got.Ownership != "TFL" {
		t.Fatalf("attributes lost: %+v", got)
	}
	if len(got.Geometry) != 1 || got.Geometry[0][0] != want.Geometry[0][0] {
		t.Fatalf("geometry mangled: %v", got.Geometry)
	}
}

func TestRouteFromRowPromotesLineString(t *testing.T) {
	row := RouteRow{
		GUID:     "7c9a1f8e-0000-0000-0000-000000000002",
		Geometry: "SRID=4326;LINESTRING(-0.3 51.4,-0.29 51.41)",
	}
	got, err := RouteFromRow(row)
	if err != nil {
		t.Fatalf("RouteFromRow: %v", err)
	}
	if len(got.Geometry) != 1 || len(got.Geometry[0]) != 2 {
		t.Fatalf("expected single-part multi, got %v", got.Geometry)
	}
}

func TestRouteFromRowRejectsBadGeometry(t *testing.T) {
	for _, geometry := range []string{
		"",
		"SRID=4326;POINT(0 0)",
		"not wkt at all",
	} {
		row := RouteRow{GUID: "bad", Geometry: geometry}
		if _, err := RouteFromRow(row); err == nil {
			t.Fatalf("expected error for %q", geometry)
		}
	}
}

func TestRowFromRouteRejectsEmpty(t *testing.T) {
	if _, err := RowFromRoute(&editor.Route{GUID: "g"}, "b", 0); err == nil {
		t.Fatal("expected error for empty geometry")
	}
	if _, err := RowFromRoute(&editor.Route{}, "b", 0); err == nil {
		t.Fatal("expected error for missing guid")
	}
}
