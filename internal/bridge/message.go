// Package bridge implements the message protocol between the sandboxed map
// surface and the host session. The map runs in an isolated frame and talks
// only through asynchronous messages; the session consumes them on a single
// loop and keeps the working dataset consistent despite races and staleness.
package bridge

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// Kind tags an inbound message from the map surface.
type Kind string

const (
	// KindSelectedRoute reports a click/selection on an existing route.
	KindSelectedRoute Kind = "selected_route"
	// KindEditedGeoJSON carries the full edited geometry for a route.
	KindEditedGeoJSON Kind = "edited_geojson"
	// KindCreatedGeoJSON carries a newly drawn geometry.
	KindCreatedGeoJSON Kind = "created_geojson"
	// KindGridSelect is a grid-originated navigation to a route. Routing it
	// through the bridge avoids the feedback loops per-row reactive
	// bindings would create.
	KindGridSelect Kind = "grid_select"
	// KindGridDelete is a grid-originated delete.
	KindGridDelete Kind = "grid_delete"
)

// Message is one inbound bridge event. Geometry payloads are always full
// geometries, never diffs. Messages are transient; nothing here persists.
type Message struct {
	Kind     Kind              `json:"kind"`
	RouteID  string            `json:"id,omitempty"`
	TempID   string            `json:"temp_id,omitempty"`
	Geometry *geojson.Geometry `json:"geometry,omitempty"`

	Seq        uint64    `json:"seq,omitempty"`
	ReceivedAt time.Time `json:"-"`
}

// CommandKind tags an outbound command to the map surface.
type CommandKind string

const (
	// CommandReplaceGeometry redraws one route's geometry in place.
	CommandReplaceGeometry CommandKind = "replace_geometry"
	// CommandCreatedUpdate promotes a temp drawing to a real route layer.
	CommandCreatedUpdate CommandKind = "created_update"
	// CommandDiscardCreated removes a temp drawing that was rejected.
	CommandDiscardCreated CommandKind = "discard_created"
	// CommandSelectRoute is the host's explicit selection, including the
	// corrective selection issued after a create.
	CommandSelectRoute CommandKind = "select_route"
	// CommandRemoveRoute drops a deleted route's layer.
	CommandRemoveRoute CommandKind = "remove_route"
	// CommandSetRouteStyle pushes a style scheme change.
	CommandSetRouteStyle CommandKind = "set_route_style"
)

// Command is one outbound bridge event.
type Command struct {
	Kind       CommandKind       `json:"kind"`
	RouteID    string            `json:"id,omitempty"`
	TempID     string            `json:"temp_id,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`

	Seq    uint64    `json:"seq"`
	SentAt time.Time `json:"sent_at"`
}

// State is the per-session protocol state.
type State int

const (
	// StateIdle is the initial and terminal state.
	StateIdle State = iota
	// StateAwaitingCreate is held for a short window after a create
	// message; inbound selections inside the window are stale echoes of
	// the creation and are discarded.
	StateAwaitingCreate
)

func (s State) String() string {
	switch s {
	case StateAwaitingCreate:
		return "awaiting_create_confirmation"
	default:
		return "idle"
	}
}
