package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/clip"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/editor"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func lineGeom(pts ...orb.Point) *geojson.Geometry {
	return geojson.NewGeometry(orb.LineString(pts))
}

func newTestSession(opts Options) (*Session, *testClock, *[]Command) {
	boundary := orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}}
	d := editor.New("Testborough", boundary, zerolog.Nop())
	s := NewSession(d, opts, zerolog.Nop(), nil)
	clk := &testClock{t: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
	s.now = clk.now
	sent := &[]Command{}
	s.sink = func(c Command) { *sent = append(*sent, c) }
	return s, clk, sent
}

func commandsOfKind(sent []Command, kind CommandKind) []Command {
	var out []Command
	for _, c := range sent {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestSelectionAppliedWhenIdle(t *testing.T) {
	s, _, _ := newTestSession(Options{})
	r := s.dataset.Create(orb.LineString{{0.1, 0.1}, {0.2, 0.2}}, "alice")

	s.handle(Message{Kind: KindSelectedRoute, RouteID: r.GUID, Seq: 1})
	if s.selected != r.GUID {
		t.Fatalf("expected selection %s, got %q", r.GUID, s.selected)
	}

	s.handle(Message{Kind: KindSelectedRoute, RouteID: "nope", Seq: 2})
	if s.selected != r.GUID {
		t.Fatal("unknown-route selection must not clear the current one")
	}
}

func TestCreateEmitsUpdateAndCorrectiveSelection(t *testing.T) {
	s, _, sent := newTestSession(Options{})

	s.handle(Message{Kind: KindCreatedGeoJSON, TempID: "tmp-1", Geometry: lineGeom(orb.Point{0.2, 0.2}, orb.Point{0.8, 0.8}), Seq: 1})

	if s.state != StateAwaitingCreate {
		t.Fatalf("expected awaiting state, got %v", s.state)
	}
	created := commandsOfKind(*sent, CommandCreatedUpdate)
	if len(created) != 1 || created[0].TempID != "tmp-1" {
		t.Fatalf("expected one created_update for tmp-1, got %+v", created)
	}
	selects := commandsOfKind(*sent, CommandSelectRoute)
	if len(selects) != 1 || selects[0].RouteID != s.createdGUID {
		t.Fatalf("expected corrective selection of %s, got %+v", s.createdGUID, selects)
	}
	if created[0].Seq >= selects[0].Seq {
		t.Fatalf("command sequence not monotonic: %d then %d", created[0].Seq, selects[0].Seq)
	}
	if s.selected != s.createdGUID {
		t.Fatal("created route must become the selection")
	}
}

func TestStaleSelectionDiscardedInsideWindow(t *testing.T) {
	s, clk, sent := newTestSession(Options{})
	other := s.dataset.Create(orb.LineString{{0.1, 0.1}, {0.2, 0.2}}, "alice")

	s.handle(Message{Kind: KindCreatedGeoJSON, TempID: "tmp-1", Geometry: lineGeom(orb.Point{0.3, 0.3}, orb.Point{0.7, 0.7}), Seq: 1})
	createdGUID := s.createdGUID
	before := len(*sent)

	// A selection for a different route lands 200ms after the create. It
	// is a stale echo of the promotion, not a user intent.
	clk.advance(200 * time.Millisecond)
	s.handle(Message{Kind: KindSelectedRoute, RouteID: other.GUID, Seq: 2})

	if s.selected != createdGUID {
		t.Fatalf("stale selection must be discarded; panel shows %q", s.selected)
	}
	if len(*sent) != before {
		t.Fatalf("discard must emit nothing, got %+v", (*sent)[before:])
	}

	// Past the window the same selection is genuine.
	clk.advance(900 * time.Millisecond)
	s.handle(Message{Kind: KindSelectedRoute, RouteID: other.GUID, Seq: 3})
	if s.selected != other.GUID {
		t.Fatalf("post-window selection must apply, panel shows %q", s.selected)
	}
	if s.state != StateIdle {
		t.Fatalf("expected idle after window, got %v", s.state)
	}
}

func TestCreateRejectsBadGeometry(t *testing.T) {
	s, _, sent := newTestSession(Options{})

	s.handle(Message{Kind: KindCreatedGeoJSON, TempID: "tmp-1", Seq: 1})

	if s.state != StateIdle {
		t.Fatal("rejected create must not open the confirmation window")
	}
	if s.dataset.Len() != 0 {
		t.Fatal("rejected create must not add a route")
	}
	discards := commandsOfKind(*sent, CommandDiscardCreated)
	if len(discards) != 1 || discards[0].TempID != "tmp-1" {
		t.Fatalf("expected discard_created for tmp-1, got %+v", *sent)
	}
}

func TestEditAppliesGeometry(t *testing.T) {
	s, _, _ := newTestSession(Options{})
	r := s.dataset.Create(orb.LineString{{0.1, 0.1}, {0.2, 0.2}}, "alice")

	s.handle(Message{Kind: KindEditedGeoJSON, RouteID: r.GUID, Geometry: lineGeom(orb.Point{0.3, 0.3}, orb.Point{0.9, 0.9}), Seq: 2})

	got, _ := s.dataset.Get(r.GUID)
	if got.Geometry[0][1] != (orb.Point{0.9, 0.9}) {
		t.Fatalf("edit not applied: %v", got.Geometry)
	}
}

func TestCoalesceKeepsLastWritePerRoute(t *testing.T) {
	s, _, _ := newTestSession(Options{})
	batch := []Message{
		{Kind: KindEditedGeoJSON, RouteID: "a", Geometry: lineGeom(orb.Point{0, 0}, orb.Point{1, 1}), Seq: 1},
		{Kind: KindSelectedRoute, RouteID: "b", Seq: 2},
		{Kind: KindEditedGeoJSON, RouteID: "a", Geometry: lineGeom(orb.Point{0, 0}, orb.Point{2, 2}), Seq: 3},
		{Kind: KindEditedGeoJSON, RouteID: "c", Geometry: lineGeom(orb.Point{0, 0}, orb.Point{3, 3}), Seq: 4},
	}

	out := s.coalesce(batch)
	if len(out) != 3 {
		t.Fatalf("expected 3 survivors, got %d: %+v", len(out), out)
	}
	if out[0].Seq != 2 || out[1].Seq != 3 || out[2].Seq != 4 {
		t.Fatalf("wrong survivors: %+v", out)
	}
}

func TestDeliverStampsMonotonicSequence(t *testing.T) {
	s, _, _ := newTestSession(Options{})
	s.Deliver(Message{Kind: KindSelectedRoute, RouteID: "a"})
	s.Deliver(Message{Kind: KindSelectedRoute, RouteID: "b"})

	first := <-s.inbound
	second := <-s.inbound
	if first.Seq == 0 || second.Seq != first.Seq+1 {
		t.Fatalf("sequence not monotonic: %d, %d", first.Seq, second.Seq)
	}
	if first.ReceivedAt.IsZero() {
		t.Fatal("ReceivedAt not stamped")
	}
}

func TestGridDeleteEmitsRemove(t *testing.T) {
	s, _, sent := newTestSession(Options{})
	r := s.dataset.Create(orb.LineString{{0.1, 0.1}, {0.2, 0.2}}, "alice")
	s.selected = r.GUID

	s.handle(Message{Kind: KindGridDelete, RouteID: r.GUID, Seq: 1})

	if s.dataset.Len() != 0 {
		t.Fatal("route not deleted")
	}
	if s.selected != "" {
		t.Fatal("deleting the selected route must clear the selection")
	}
	removes := commandsOfKind(*sent, CommandRemoveRoute)
	if len(removes) != 1 || removes[0].RouteID != r.GUID {
		t.Fatalf("expected remove_route, got %+v", *sent)
	}
}

func TestCommitRouteClipsAndReplies(t *testing.T) {
	s, _, _ := newTestSession(Options{})
	cmds := make(chan Command, 8)
	s.sink = func(c Command) { cmds <- c }
	r := s.dataset.Create(orb.LineString{{0.5, -0.5}, {0.5, 1.5}}, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	got, err := s.CommitRoute(context.Background(), r.GUID)
	if err != nil {
		t.Fatalf("CommitRoute: %v", err)
	}
	want := orb.LineString{{0.5, 0}, {0.5, 1}}
	if len(got.Geometry) != 1 || got.Geometry[0][0] != want[0] || got.Geometry[0][1] != want[1] {
		t.Fatalf("expected clip to %v, got %v", want, got.Geometry)
	}

	select {
	case c := <-cmds:
		if c.Kind != CommandReplaceGeometry || c.RouteID != r.GUID {
			t.Fatalf("expected replace_geometry for %s, got %+v", r.GUID, c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no replace_geometry command emitted")
	}
}

func TestCommitRouteRejectsEmptyClip(t *testing.T) {
	s, _, _ := newTestSession(Options{})
	cmds := make(chan Command, 8)
	s.sink = func(c Command) { cmds <- c }
	r := s.dataset.Create(orb.LineString{{2, 2}, {3, 3}}, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	if _, err := s.CommitRoute(context.Background(), r.GUID); !errors.Is(err, clip.ErrEmptyClip) {
		t.Fatalf("expected ErrEmptyClip, got %v", err)
	}
	select {
	case c := <-cmds:
		t.Fatalf("rejected commit must emit nothing, got %+v", c)
	default:
	}
}

func TestClearSinkOnlyDetachesOwnInstallation(t *testing.T) {
	s, _, _ := newTestSession(Options{})
	first := make(chan Command, 4)
	second := make(chan Command, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	oldGen := s.SetSink(func(c Command) { first <- c })
	s.SetSink(func(c Command) { second <- c })

	// The replaced connection tears down after the replacement is live.
	s.ClearSink(oldGen)
	s.SetStyle("designation")

	select {
	case c := <-second:
		if c.Kind != CommandSetRouteStyle {
			t.Fatalf("expected set_route_style, got %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live sink detached by stale teardown")
	}
	select {
	case c := <-first:
		t.Fatalf("replaced sink still receiving: %+v", c)
	default:
	}
}

type fakeGeocoder struct{ name string }

func (g fakeGeocoder) StreetName(context.Context, float64, float64) (string, error) {
	return g.name, nil
}

func TestStreetNameRejoinsSessionLoop(t *testing.T) {
	boundary := orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}}
	d := editor.New("Testborough", boundary, zerolog.Nop())
	s := NewSession(d, Options{User: "alice", Geocoder: fakeGeocoder{name: "Chapel Road"}}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Deliver(Message{Kind: KindCreatedGeoJSON, TempID: "tmp-1", Geometry: lineGeom(orb.Point{0.2, 0.2}, orb.Point{0.8, 0.8})})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		routes, err := s.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if len(routes) == 1 && routes[0].Name == "Chapel Road" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("street name never applied")
}
