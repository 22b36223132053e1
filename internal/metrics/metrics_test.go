package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.ObserveBridgeMessage("selected_route", "inbound", "applied")
	m.IncStaleDiscard()
	m.ObserveCommit("ok")
	m.ObserveClipSegments(2)
	m.ObserveMatcherDuration("designation", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics handler, got %d", rec.Code)
	}
}

func TestHandlerExposesInstruments(t *testing.T) {
	m := New()
	m.ObserveBridgeMessage("created_geojson", "inbound", "applied")
	m.IncStaleDiscard()
	m.ObserveCommit("rejected_empty_clip")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"tracks_bridge_messages_total",
		"tracks_bridge_stale_discards_total",
		"tracks_route_commits_total",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
