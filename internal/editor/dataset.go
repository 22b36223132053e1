package editor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/clip"
)

// ErrNotFound reports an operation against a GUID the dataset does not hold.
var ErrNotFound = errors.New("route not found")

// Suggester proposes an attribute value for a candidate geometry. The
// matchers in refindex satisfy this; a nil Suggester means the feature is
// disabled for the session.
type Suggester interface {
	Suggest(g orb.Geometry) (string, bool)
}

// Dataset is the working route set for one borough. Provisional edits land
// immediately; the borough-containment invariant is enforced only at commit.
type Dataset struct {
	borough  string
	boundary orb.MultiPolygon
	routes    map[string]*Route
	order     []string
	baseline  map[string]*Route
	baseOrder []string
	dirty     bool
	log      zerolog.Logger
	now      func() time.Time
}

// New creates an empty dataset for the borough.
func New(borough string, boundary orb.MultiPolygon, log zerolog.Logger) *Dataset {
	return &Dataset{
		borough:  borough,
		boundary: boundary,
		routes:   make(map[string]*Route),
		baseline: make(map[string]*Route),
		log:      log,
		now:      time.Now,
	}
}

// Load replaces the dataset contents with persisted routes and resets the
// unsaved-changes baseline.
func (d *Dataset) Load(routes []*Route) {
	d.routes = make(map[string]*Route, len(routes))
	d.order = d.order[:0]
	for _, r := range routes {
		if r == nil || r.GUID == "" {
			continue
		}
		d.routes[r.GUID] = r
		d.order = append(d.order, r.GUID)
	}
	d.rebaseline()
	d.dirty = false
}

// Borough returns the active borough name.
func (d *Dataset) Borough() string { return d.borough }

// Boundary returns the borough's authoritative outline.
func (d *Dataset) Boundary() orb.MultiPolygon { return d.boundary }

// Dirty reports whether uncommitted-to-storage changes exist.
func (d *Dataset) Dirty() bool { return d.dirty }

// Len returns the number of routes.
func (d *Dataset) Len() int { return len(d.order) }

// Get looks up a route by GUID.
func (d *Dataset) Get(guid string) (*Route, bool) {
	r, ok := d.routes[guid]
	return r, ok
}

// Routes returns the routes in stable insertion order.
func (d *Dataset) Routes() []*Route {
	out := make([]*Route, 0, len(d.order))
	for _, guid := range d.order {
		out = append(out, d.routes[guid])
	}
	return out
}

// Create adds a provisional route for a newly drawn line. The geometry is
// stored as drawn; clipping waits for commit.
func (d *Dataset) Create(line orb.LineString, user string) *Route {
	today := dateString(d.now())
	r := &Route{
		GUID:        uuid.NewString(),
		ID:          GenerateRouteID(),
		Name:        "New Route",
		OneWay:      "OneWay",
		Geometry:    orb.MultiLineString{line},
		History:     fmt.Sprintf("%s: created by %s", today, orUnknown(user)),
		WhenCreated: today,
		LastEdited:  today,
	}
	d.routes[r.GUID] = r
	d.order = append(d.order, r.GUID)
	d.dirty = true
	d.log.Info().Str("guid", r.GUID).Str("id", r.ID).Int("points", len(line)).Msg("route created")
	return r
}

// UpdateGeometry applies a provisional geometry edit.
func (d *Dataset) UpdateGeometry(guid string, line orb.LineString) error {
	r, ok := d.routes[guid]
	if !ok {
		return fmt.Errorf("route %s: %w", guid, ErrNotFound)
	}
	r.Geometry = orb.MultiLineString{line}
	d.dirty = true
	return nil
}

// Rename sets the free-text name.
func (d *Dataset) Rename(guid, name string) error {
	r, ok := d.routes[guid]
	if !ok {
		return fmt.Errorf("route %s: %w", guid, ErrNotFound)
	}
	r.Name = name
	d.dirty = true
	return nil
}

// Delete removes a route outright.
func (d *Dataset) Delete(guid string) bool {
	if _, ok := d.routes[guid]; !ok {
		return false
	}
	delete(d.routes, guid)
	for i, g := range d.order {
		if g == guid {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.dirty = true
	d.log.Info().Str("guid", guid).Msg("route deleted")
	return true
}

// Commit finalizes a route: clip to the borough boundary, fill blank
// designation/ownership from the matchers, stamp history. A route that clips
// to nothing is rejected with clip.ErrEmptyClip and left untouched.
func (d *Dataset) Commit(guid, user string, designation, ownership Suggester) (*Route, error) {
	r, ok := d.routes[guid]
	if !ok {
		return nil, fmt.Errorf("route %s: %w", guid, ErrNotFound)
	}

	clipped := clip.MultiToBoundaries(r.Geometry, d.boundary)
	if len(clipped) == 0 {
		d.log.Warn().Str("guid", guid).Msg("commit rejected: route outside borough boundary")
		return nil, clip.ErrEmptyClip
	}
	// Multi-part results are kept as one multi-part route rather than being
	// split or reduced to the longest part.
	r.Geometry = clipped

	if r.Designation == "" && designation != nil {
		if label, ok := designation.Suggest(clipped); ok {
			r.Designation = label
		}
	}
	if r.Ownership == "" && ownership != nil {
		if tag, ok := ownership.Suggest(clipped); ok {
			r.Ownership = tag
		}
	}

	d.stampHistory(r, user)
	d.dirty = true
	d.log.Info().
		Str("guid", guid).
		Int("parts", len(clipped)).
		Str("designation", r.Designation).
		Str("ownership", r.Ownership).
		Msg("route committed")
	return r, nil
}

// DiscardUnsaved restores the last loaded/saved state.
func (d *Dataset) DiscardUnsaved() {
	d.routes = make(map[string]*Route, len(d.baseline))
	for guid, r := range d.baseline {
		d.routes[guid] = r.Clone()
	}
	// Saved order is part of the baseline; losing it would reshuffle the
	// persisted rows on the next save.
	d.order = append(d.order[:0], d.baseOrder...)
	d.dirty = false
}

// MarkSaved records the current state as the new baseline after a
// successful persistence write.
func (d *Dataset) MarkSaved() {
	d.rebaseline()
	d.dirty = false
}

func (d *Dataset) rebaseline() {
	d.baseline = make(map[string]*Route, len(d.routes))
	for guid, r := range d.routes {
		d.baseline[guid] = r.Clone()
	}
	d.baseOrder = append(d.baseOrder[:0], d.order...)
}

func (d *Dataset) stampHistory(r *Route, user string) {
	today := dateString(d.now())
	line := fmt.Sprintf("%s: edited by %s", today, orUnknown(user))
	if r.History == "" {
		r.History = line
	} else {
		r.History = line + "\n" + r.History
	}
	r.LastEdited = today
	if r.WhenCreated == "" {
		r.WhenCreated = today
	}
}

func orUnknown(user string) string {
	if user == "" {
		return "unknown"
	}
	return user
}
