package refindex

import (
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/geom"
)

// DesignationMatcher proposes a reference designation label for a candidate
// route. The representative geometry is the full candidate line: the minimum
// distance is taken over every segment, matching how the reference corridors
// are drawn. First-point or centroid policies misfire when a route starts
// away from the corridor it follows.
type DesignationMatcher struct {
	index       *Index
	proj        orb.Projection
	maxDistance float64
	log         zerolog.Logger
}

// NewDesignationMatcher wires a matcher over a built index. A nil index
// produces a matcher that always answers "no suggestion"; that is how a
// failed reference load degrades.
func NewDesignationMatcher(ix *Index, proj orb.Projection, maxDistanceM float64, log zerolog.Logger) *DesignationMatcher {
	return &DesignationMatcher{index: ix, proj: proj, maxDistance: maxDistanceM, log: log}
}

// Suggest returns the label of the nearest labelled reference line when it
// lies within the configured distance. The boolean is false when there is no
// suggestion; that is a normal outcome, not an error.
func (m *DesignationMatcher) Suggest(g orb.Geometry) (string, bool) {
	if m == nil || m.index.Len() == 0 {
		return "", false
	}
	candidate := m.projectCandidate(g)
	if candidate == nil {
		m.log.Warn().Msg("designation: malformed candidate geometry, no suggestion")
		return "", false
	}

	// Labelled entries only; pull a few extra in case the closest entries
	// are unlabelled fragments.
	for _, match := range m.index.Nearest(candidate, 8) {
		if match.Entry.Label == "" {
			continue
		}
		if match.Distance > m.maxDistance {
			m.log.Debug().
				Int("entry", match.Entry.Ordinal).
				Str("label", match.Entry.Label).
				Float64("distance_m", match.Distance).
				Float64("threshold_m", m.maxDistance).
				Msg("designation: nearest labelled entry beyond threshold")
			return "", false
		}
		m.log.Info().
			Int("entry", match.Entry.Ordinal).
			Str("label", match.Entry.Label).
			Str("programme", match.Entry.Programme).
			Float64("distance_m", match.Distance).
			Msg("designation: matched")
		return match.Entry.Label, true
	}
	return "", false
}

func (m *DesignationMatcher) projectCandidate(g orb.Geometry) orb.Geometry {
	lines := asLines(g)
	if lines == nil {
		return nil
	}
	if m.proj == nil {
		return lines
	}
	return geom.Project(lines, m.proj)
}

// OwnershipMatcher tags a route with a fixed asset-owning authority when it
// intersects, or lies within a buffer distance of, an ownership polygon.
type OwnershipMatcher struct {
	index       *Index
	proj        orb.Projection
	maxDistance float64
	buffer      float64
	tag         string
	log         zerolog.Logger
}

// NewOwnershipMatcher wires an ownership matcher. buffer widens the
// candidate prefilter; maxDistanceM is the match threshold.
func NewOwnershipMatcher(ix *Index, proj orb.Projection, maxDistanceM, bufferM float64, tag string, log zerolog.Logger) *OwnershipMatcher {
	if bufferM < maxDistanceM {
		bufferM = maxDistanceM
	}
	return &OwnershipMatcher{index: ix, proj: proj, maxDistance: maxDistanceM, buffer: bufferM, tag: tag, log: log}
}

// Suggest returns the authority tag when the candidate lies within the
// configured distance of any ownership polygon. The matched entry ordinal
// and computed distance are logged either way; that trace is how ownership
// decisions get debugged offline.
func (m *OwnershipMatcher) Suggest(g orb.Geometry) (string, bool) {
	if m == nil || m.index.Len() == 0 {
		return "", false
	}
	lines := asLines(g)
	if lines == nil {
		m.log.Warn().Msg("ownership: malformed candidate geometry, no suggestion")
		return "", false
	}
	var candidate orb.Geometry = lines
	if m.proj != nil {
		candidate = geom.Project(lines, m.proj)
	}

	matches := m.index.Within(candidate, m.buffer)
	m.log.Debug().Int("candidates", len(matches)).Float64("buffer_m", m.buffer).Msg("ownership: prefilter")
	for _, match := range matches {
		if match.Distance <= m.maxDistance {
			m.log.Info().
				Int("entry", match.Entry.Ordinal).
				Float64("distance_m", match.Distance).
				Float64("threshold_m", m.maxDistance).
				Str("tag", m.tag).
				Msg("ownership: matched")
			return m.tag, true
		}
	}

	if nearest := m.index.Nearest(candidate, 1); len(nearest) > 0 {
		m.log.Info().
			Int("entry", nearest[0].Entry.Ordinal).
			Float64("distance_m", nearest[0].Distance).
			Float64("threshold_m", m.maxDistance).
			Msg("ownership: no match, nearest polygon logged")
	}
	return "", false
}
