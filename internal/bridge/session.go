package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/clip"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/editor"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/geom"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/metrics"
)

// Geocoder resolves a street name for a coordinate. Lookups run off the
// session loop; results rejoin through Dispatch.
type Geocoder interface {
	StreetName(ctx context.Context, lat, lon float64) (string, error)
}

// Options configures a Session. Zero values get sensible defaults.
type Options struct {
	// CreateConfirmWindow is how long after a create the session keeps
	// discarding inbound selections as stale echoes. Defaults to 1s.
	CreateConfirmWindow time.Duration
	// QueueSize is the inbound message buffer. Defaults to 64.
	QueueSize int
	// User is stamped into route history lines. Defaults to "unknown".
	User string
	// GeocodeTimeout bounds each street-name lookup. Defaults to 5s.
	GeocodeTimeout time.Duration

	Designation editor.Suggester
	Ownership   editor.Suggester
	Geocoder    Geocoder
}

// Session owns the working dataset and applies all bridge traffic on a
// single loop. Host-originated work rejoins the loop through Dispatch, so
// the dataset is never touched concurrently.
type Session struct {
	log     zerolog.Logger
	dataset *editor.Dataset
	metrics *metrics.Metrics
	opts    Options

	inbound chan Message
	calls   chan func()
	sink    func(Command)
	sinkGen uint64
	sinkSeq atomic.Uint64

	state       State
	createdGUID string
	createdAt   time.Time
	selected    string

	seq atomic.Uint64
	now func() time.Time
}

// NewSession wires a session over the dataset. Run must be started before
// messages flow.
func NewSession(dataset *editor.Dataset, opts Options, log zerolog.Logger, m *metrics.Metrics) *Session {
	if opts.CreateConfirmWindow <= 0 {
		opts.CreateConfirmWindow = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.User == "" {
		opts.User = "unknown"
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = 5 * time.Second
	}
	return &Session{
		log:     log,
		dataset: dataset,
		metrics: m,
		opts:    opts,
		inbound: make(chan Message, opts.QueueSize),
		calls:   make(chan func(), 32),
		state:   StateIdle,
		now:     time.Now,
	}
}

// SetSink installs the outbound command sink, typically the active
// websocket writer. The swap happens on the loop. The returned token
// identifies this installation for ClearSink.
func (s *Session) SetSink(send func(Command)) uint64 {
	gen := s.sinkSeq.Add(1)
	s.Dispatch(func() {
		s.sink = send
		s.sinkGen = gen
	})
	return gen
}

// ClearSink detaches the sink, but only if it is still the installation
// identified by gen. A connection tearing down after a newer one has taken
// over must not detach the live sink.
func (s *Session) ClearSink(gen uint64) {
	s.Dispatch(func() {
		if s.sinkGen != gen {
			return
		}
		s.sink = nil
		s.sinkGen = 0
	})
}

// Deliver stamps and queues one inbound message. Safe from any goroutine.
func (s *Session) Deliver(m Message) {
	m.Seq = s.seq.Add(1)
	m.ReceivedAt = s.now()
	s.inbound <- m
}

// Dispatch runs fn on the session loop. This is the only way host-side
// code (HTTP handlers, geocode callbacks) may touch the dataset.
func (s *Session) Dispatch(fn func()) {
	s.calls <- fn
}

// Run consumes messages and dispatched calls until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info().Str("state", s.state.String()).Msg("bridge session started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("bridge session stopped")
			return ctx.Err()
		case fn := <-s.calls:
			fn()
		case m := <-s.inbound:
			for _, bm := range s.drainFrom(m) {
				s.handle(bm)
			}
		}
	}
}

// drainFrom collects everything already queued behind the first message and
// coalesces geometry bursts so only the final state per route is applied.
func (s *Session) drainFrom(first Message) []Message {
	batch := []Message{first}
	for {
		select {
		case m := <-s.inbound:
			batch = append(batch, m)
		default:
			return s.coalesce(batch)
		}
	}
}

func (s *Session) coalesce(batch []Message) []Message {
	if len(batch) < 2 {
		return batch
	}
	type key struct {
		kind Kind
		id   string
	}
	latest := make(map[key]int, len(batch))
	for i, m := range batch {
		if m.Kind == KindEditedGeoJSON || m.Kind == KindCreatedGeoJSON {
			latest[key{m.Kind, m.RouteID + "/" + m.TempID}] = i
		}
	}
	out := make([]Message, 0, len(batch))
	for i, m := range batch {
		if m.Kind == KindEditedGeoJSON || m.Kind == KindCreatedGeoJSON {
			if latest[key{m.Kind, m.RouteID + "/" + m.TempID}] != i {
				// This is the only record of a superseded message, so it
				// stays visible at the default log level.
				s.log.Info().
					Uint64("seq", m.Seq).
					Str("kind", string(m.Kind)).
					Str("id", m.RouteID).
					Msg("bridge message superseded in queue")
				s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "superseded")
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func (s *Session) handle(m Message) {
	s.maybeExpireWindow()
	// Every message is logged with its sequence marker so event ordering
	// can be reconstructed from a default-level log.
	s.log.Info().
		Uint64("seq", m.Seq).
		Str("kind", string(m.Kind)).
		Str("state", s.state.String()).
		Msg("bridge message received")

	switch m.Kind {
	case KindSelectedRoute:
		s.handleSelected(m)
	case KindEditedGeoJSON:
		s.handleEdited(m)
	case KindCreatedGeoJSON:
		s.handleCreated(m)
	case KindGridSelect:
		outcome := "applied"
		if !s.applySelection(m.RouteID, "grid") {
			outcome = "unknown_route"
		}
		s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", outcome)
		if outcome == "applied" {
			s.emit(Command{Kind: CommandSelectRoute, RouteID: m.RouteID})
		}
	case KindGridDelete:
		s.handleGridDelete(m)
	default:
		s.log.Warn().Uint64("seq", m.Seq).Str("kind", string(m.Kind)).Msg("unknown bridge message kind")
		s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "unknown_kind")
	}
}

// maybeExpireWindow returns the session to idle once the create window has
// elapsed. Checked lazily on every message; no timer needed.
func (s *Session) maybeExpireWindow() {
	if s.state == StateAwaitingCreate && s.now().Sub(s.createdAt) >= s.opts.CreateConfirmWindow {
		s.state = StateIdle
		s.log.Debug().Str("guid", s.createdGUID).Msg("create confirmation window elapsed")
	}
}

func (s *Session) handleSelected(m Message) {
	if s.state == StateAwaitingCreate {
		// Map-side selection events raised while a created layer is being
		// promoted refer to whatever was under the cursor, not the new
		// route. The host already issued the authoritative selection.
		s.log.Warn().
			Uint64("seq", m.Seq).
			Str("id", m.RouteID).
			Str("created_guid", s.createdGUID).
			Dur("age", s.now().Sub(s.createdAt)).
			Msg("stale selection discarded inside create window")
		s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "discarded_stale")
		s.metrics.IncStaleDiscard()
		return
	}
	outcome := "applied"
	if !s.applySelection(m.RouteID, "map") {
		outcome = "unknown_route"
	}
	s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", outcome)
}

func (s *Session) applySelection(guid, origin string) bool {
	r, ok := s.dataset.Get(guid)
	if !ok {
		s.log.Warn().Str("guid", guid).Str("origin", origin).Msg("selection for unknown route")
		return false
	}
	s.selected = guid
	s.log.Info().Str("guid", guid).Str("id", r.ID).Str("origin", origin).Msg("route selected")
	return true
}

func (s *Session) handleEdited(m Message) {
	line, err := lineFromGeometry(m.Geometry)
	if err != nil {
		s.log.Warn().Uint64("seq", m.Seq).Str("id", m.RouteID).Err(err).Msg("edit rejected")
		s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "rejected_geometry")
		return
	}
	if err := s.dataset.UpdateGeometry(m.RouteID, line); err != nil {
		s.log.Warn().Uint64("seq", m.Seq).Str("id", m.RouteID).Err(err).Msg("edit for unknown route")
		s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "unknown_route")
		return
	}
	s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "applied")
	s.log.Info().Uint64("seq", m.Seq).Str("guid", m.RouteID).Int("points", len(line)).Msg("geometry edit applied")
}

func (s *Session) handleCreated(m Message) {
	line, err := lineFromGeometry(m.Geometry)
	if err != nil {
		s.log.Warn().Uint64("seq", m.Seq).Str("temp_id", m.TempID).Err(err).Msg("create rejected")
		s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "rejected_geometry")
		s.emit(Command{Kind: CommandDiscardCreated, TempID: m.TempID})
		return
	}

	r := s.dataset.Create(line, s.opts.User)
	s.state = StateAwaitingCreate
	s.createdGUID = r.GUID
	s.createdAt = s.now()
	s.selected = r.GUID
	s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "applied")

	s.emit(Command{
		Kind:     CommandCreatedUpdate,
		RouteID:  r.GUID,
		TempID:   m.TempID,
		Geometry: geojson.NewGeometry(r.Geometry),
		Properties: map[string]any{
			"id":       r.ID,
			"name":     r.Name,
			"length_m": geom.MultiLineLengthM(r.Geometry),
		},
	})
	// Corrective selection: whatever the map thinks got clicked during
	// layer promotion, the new route is what the edit panel must show.
	s.emit(Command{Kind: CommandSelectRoute, RouteID: r.GUID})

	if s.opts.Geocoder != nil {
		s.lookupStreetName(r.GUID, line[0])
	}
}

// lookupStreetName names a freshly created route after the street its first
// point lies on. The lookup runs off-loop and rejoins through Dispatch; a
// user rename that lands first wins.
func (s *Session) lookupStreetName(guid string, start orb.Point) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.GeocodeTimeout)
		defer cancel()
		name, err := s.opts.Geocoder.StreetName(ctx, start.Lat(), start.Lon())
		if err != nil {
			s.log.Debug().Str("guid", guid).Err(err).Msg("street name lookup failed")
			return
		}
		if name == "" {
			return
		}
		s.Dispatch(func() {
			r, ok := s.dataset.Get(guid)
			if !ok || r.Name != "New Route" {
				return
			}
			if err := s.dataset.Rename(guid, name); err != nil {
				return
			}
			s.log.Info().Str("guid", guid).Str("name", name).Msg("street name applied")
		})
	}()
}

func (s *Session) handleGridDelete(m Message) {
	if !s.dataset.Delete(m.RouteID) {
		s.log.Warn().Uint64("seq", m.Seq).Str("id", m.RouteID).Msg("delete for unknown route")
		s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "unknown_route")
		return
	}
	if s.selected == m.RouteID {
		s.selected = ""
	}
	s.metrics.ObserveBridgeMessage(string(m.Kind), "inbound", "applied")
	s.emit(Command{Kind: CommandRemoveRoute, RouteID: m.RouteID})
}

func (s *Session) emit(c Command) {
	c.Seq = s.seq.Add(1)
	c.SentAt = s.now()
	s.log.Info().
		Uint64("seq", c.Seq).
		Str("kind", string(c.Kind)).
		Str("id", c.RouteID).
		Msg("bridge command sent")
	s.metrics.ObserveBridgeMessage(string(c.Kind), "outbound", "sent")
	if s.sink != nil {
		s.sink(c)
	}
}

// CommitRoute finalizes a route on the session loop and pushes the clipped
// geometry back to the map. Callers get a private clone.
func (s *Session) CommitRoute(ctx context.Context, guid string) (*editor.Route, error) {
	type result struct {
		route *editor.Route
		err   error
	}
	ch := make(chan result, 1)
	s.Dispatch(func() {
		r, err := s.dataset.Commit(guid, s.opts.User, s.opts.Designation, s.opts.Ownership)
		switch {
		case err == nil:
			s.metrics.ObserveCommit("ok")
			s.metrics.ObserveClipSegments(len(r.Geometry))
			s.emit(Command{
				Kind:     CommandReplaceGeometry,
				RouteID:  guid,
				Geometry: geojson.NewGeometry(r.Geometry),
				Properties: map[string]any{
					"length_m": geom.MultiLineLengthM(r.Geometry),
				},
			})
			r = r.Clone()
		case errors.Is(err, clip.ErrEmptyClip):
			s.metrics.ObserveCommit("rejected_empty_clip")
		default:
			s.metrics.ObserveCommit("error")
		}
		ch <- result{route: r, err: err}
	})
	select {
	case res := <-ch:
		return res.route, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns clones of every route in stable order.
func (s *Session) Snapshot(ctx context.Context) ([]*editor.Route, error) {
	ch := make(chan []*editor.Route, 1)
	s.Dispatch(func() {
		routes := s.dataset.Routes()
		out := make([]*editor.Route, len(routes))
		for i, r := range routes {
			out[i] = r.Clone()
		}
		ch <- out
	})
	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DiscardUnsaved restores the dataset to its last saved state and reports
// how many routes remain. The map re-fetches the full route set afterwards.
func (s *Session) DiscardUnsaved(ctx context.Context) (int, error) {
	ch := make(chan int, 1)
	s.Dispatch(func() {
		s.dataset.DiscardUnsaved()
		s.state = StateIdle
		s.selected = ""
		s.log.Info().Int("routes", s.dataset.Len()).Msg("unsaved changes discarded")
		ch <- s.dataset.Len()
	})
	select {
	case n := <-ch:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// MarkSaved rebaselines the dataset after a successful persistence write.
func (s *Session) MarkSaved(ctx context.Context) error {
	done := make(chan struct{})
	s.Dispatch(func() {
		s.dataset.MarkSaved()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetStyle pushes a route colouring scheme to the map.
func (s *Session) SetStyle(scheme string) {
	s.Dispatch(func() {
		s.emit(Command{
			Kind:       CommandSetRouteStyle,
			Properties: map[string]any{"scheme": scheme},
		})
	})
}

func lineFromGeometry(g *geojson.Geometry) (orb.LineString, error) {
	if g == nil {
		return nil, errors.New("missing geometry")
	}
	switch gg := g.Geometry().(type) {
	case orb.LineString:
		if len(gg) < 2 {
			return nil, errors.New("degenerate line")
		}
		return gg, nil
	case orb.MultiLineString:
		if len(gg) == 1 && len(gg[0]) >= 2 {
			return gg[0], nil
		}
		return nil, errors.New("multi-part geometry not editable")
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", gg)
	}
}
