package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, UserAgent: "tracks-core-test"}, zerolog.Nop())
}

func TestStreetNamePrefersRoad(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "tracks-core-test" {
			t.Errorf("missing user agent, got %q", got)
		}
		if r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"address":{"suburb":"Ham","road":"Chapel Road"}}`))
	})

	name, err := c.StreetName(context.Background(), 51.43, -0.31)
	if err != nil {
		t.Fatalf("StreetName: %v", err)
	}
	if name != "Chapel Road" {
		t.Fatalf("expected road over suburb, got %q", name)
	}
}

func TestStreetNameFallsBackThroughKeys(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"address":{"cycleway":"Thames Path","suburb":"Ham"}}`))
	})

	name, err := c.StreetName(context.Background(), 51.43, -0.31)
	if err != nil {
		t.Fatalf("StreetName: %v", err)
	}
	if name != "Thames Path" {
		t.Fatalf("expected cycleway, got %q", name)
	}
}

func TestStreetNameNoResult(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	})

	name, err := c.StreetName(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("StreetName: %v", err)
	}
	if name != "" {
		t.Fatalf("expected empty name, got %q", name)
	}
}

func TestStreetNameServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := c.StreetName(context.Background(), 51.43, -0.31); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestCacheKeyRounding(t *testing.T) {
	a := cacheKey(51.430001, -0.310001)
	b := cacheKey(51.430004, -0.310004)
	if a != b {
		t.Fatalf("nearby points must share a key: %q vs %q", a, b)
	}
}
