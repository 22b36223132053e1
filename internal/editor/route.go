// Package editor owns the in-memory working dataset for the active borough.
// Routes are mutated only through the dataset's operations, and only ever
// from the bridge session loop; no locking is needed.
package editor

import (
	"time"

	"github.com/paulmach/orb"
)

// Route is one editable cycle-track record. Attribute names mirror the
// spreadsheet columns they round-trip through.
type Route struct {
	GUID            string
	ID              string // generated word slug, user-editable
	Name            string
	Comment         string
	Geometry        orb.MultiLineString
	Designation     string
	Ownership       string
	OneWay          string
	Flow            string
	Protection      string
	YearBuilt       string
	YearBuiltBefore bool
	AuditedInPerson bool
	AuditedOnline   bool
	Rejected        bool
	History         string
	WhenCreated     string
	LastEdited      string
}

// Clone returns a deep copy, geometry included.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	out := *r
	out.Geometry = make(orb.MultiLineString, len(r.Geometry))
	for i, line := range r.Geometry {
		out.Geometry[i] = append(orb.LineString(nil), line...)
	}
	return &out
}

func dateString(t time.Time) string {
	return t.Format("2006-01-02")
}
