// Package geom converts between the external geometry encodings the editor
// meets (KML reference files, GeoJSON on the map bridge, EWKT in storage) and
// the internal orb model. All conversions are pure functions.
package geom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// Format tags a supported external geometry encoding.
type Format string

const (
	// FormatKML is import-only (reference boundary files).
	FormatKML Format = "kml"
	// FormatGeoJSON is the wire format for the map bridge.
	FormatGeoJSON Format = "geojson"
	// FormatEWKT is WKT with an SRID prefix, used for storage and export.
	FormatEWKT Format = "ewkt"
)

// StorageSRID is the spatial reference id written on exported EWKT.
const StorageSRID = 4326

// ErrConversion reports a malformed or unsupported external geometry.
var ErrConversion = errors.New("geometry conversion failed")

// ToInternal decodes external geometry bytes in the given format.
func ToInternal(data []byte, f Format) (orb.Geometry, error) {
	switch f {
	case FormatKML:
		named, err := ParseKML(data)
		if err != nil {
			return nil, err
		}
		if len(named) == 0 {
			return nil, fmt.Errorf("%w: kml contains no geometry", ErrConversion)
		}
		if len(named) == 1 {
			return named[0].Geometry, nil
		}
		coll := make(orb.Collection, 0, len(named))
		for _, n := range named {
			coll = append(coll, n.Geometry)
		}
		return coll, nil
	case FormatGeoJSON:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		return g.Geometry(), nil
	case FormatEWKT:
		g, _, err := UnmarshalEWKT(string(data))
		return g, err
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrConversion, f)
	}
}

// ToExternal encodes an internal geometry into the given format. KML is
// import-only and rejected here.
func ToExternal(g orb.Geometry, f Format) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil geometry", ErrConversion)
	}
	switch f {
	case FormatGeoJSON:
		return geojson.NewGeometry(g).MarshalJSON()
	case FormatEWKT:
		return []byte(MarshalEWKT(g, StorageSRID)), nil
	case FormatKML:
		return nil, fmt.Errorf("%w: kml is import-only", ErrConversion)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrConversion, f)
	}
}

// MarshalEWKT renders a geometry as "SRID=<n>;<wkt>".
func MarshalEWKT(g orb.Geometry, srid int) string {
	return "SRID=" + strconv.Itoa(srid) + ";" + wkt.MarshalString(g)
}

// UnmarshalEWKT parses extended WKT. A missing SRID prefix is accepted and
// reported as SRID 0.
func UnmarshalEWKT(s string) (orb.Geometry, int, error) {
	srid := 0
	body := strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(body, "SRID="); ok {
		idText, wktText, found := strings.Cut(rest, ";")
		if !found {
			return nil, 0, fmt.Errorf("%w: ewkt missing geometry after srid", ErrConversion)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idText))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: bad srid %q", ErrConversion, idText)
		}
		srid = id
		body = strings.TrimSpace(wktText)
	}
	g, err := wkt.Unmarshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	return g, srid, nil
}

// StripEWKT removes a leading "SRID=<n>;" marker, if present.
func StripEWKT(s string) string {
	if strings.HasPrefix(s, "SRID=") {
		if _, rest, ok := strings.Cut(s, ";"); ok {
			return rest
		}
	}
	return s
}
