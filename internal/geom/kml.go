package geom

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// NamedGeometry pairs a KML placemark name with its decoded geometry.
type NamedGeometry struct {
	Name     string
	Geometry orb.Geometry
}

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlFolder struct {
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name          string            `xml:"name"`
	LineString    *kmlLineString    `xml:"LineString"`
	Polygon       *kmlPolygon       `xml:"Polygon"`
	MultiGeometry *kmlMultiGeometry `xml:"MultiGeometry"`
}

type kmlMultiGeometry struct {
	LineStrings []kmlLineString `xml:"LineString"`
	Polygons    []kmlPolygon    `xml:"Polygon"`
}

type kmlLineString struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlBoundary   `xml:"outerBoundaryIs"`
	Inner []kmlBoundary `xml:"innerBoundaryIs"`
}

type kmlBoundary struct {
	Ring kmlLinearRing `xml:"LinearRing"`
}

type kmlLinearRing struct {
	Coordinates string `xml:"coordinates"`
}

// ParseKML decodes placemark geometries from a KML document. The structured
// decode is attempted first; when it fails, or yields nothing, the raw
// <coordinates> text is scanned directly. Losing a record on import is worse
// than taking the slow path, so the fallback always runs before an error is
// returned.
func ParseKML(data []byte) ([]NamedGeometry, error) {
	out, err := parseKMLStrict(data)
	if err == nil && len(out) > 0 {
		return out, nil
	}

	fallback := scanCoordinateBlocks(data)
	if len(fallback) > 0 {
		return fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	return nil, nil
}

func parseKMLStrict(data []byte) ([]NamedGeometry, error) {
	var root kmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	var out []NamedGeometry
	var walk func(folders []kmlFolder, placemarks []kmlPlacemark)
	walk = func(folders []kmlFolder, placemarks []kmlPlacemark) {
		for _, pm := range placemarks {
			if g := placemarkGeometry(pm); g != nil {
				out = append(out, NamedGeometry{Name: strings.TrimSpace(pm.Name), Geometry: g})
			}
		}
		for _, f := range folders {
			walk(f.Folders, f.Placemarks)
		}
	}
	walk(root.Document.Folders, root.Document.Placemarks)
	return out, nil
}

func placemarkGeometry(pm kmlPlacemark) orb.Geometry {
	switch {
	case pm.LineString != nil:
		if line := parseCoordinateText(pm.LineString.Coordinates); len(line) >= 2 {
			return line
		}
	case pm.Polygon != nil:
		if poly := assemblePolygon(*pm.Polygon); len(poly) > 0 {
			return poly
		}
	case pm.MultiGeometry != nil:
		var lines orb.MultiLineString
		for _, ls := range pm.MultiGeometry.LineStrings {
			if line := parseCoordinateText(ls.Coordinates); len(line) >= 2 {
				lines = append(lines, line)
			}
		}
		var polys orb.MultiPolygon
		for _, p := range pm.MultiGeometry.Polygons {
			if poly := assemblePolygon(p); len(poly) > 0 {
				polys = append(polys, poly)
			}
		}
		switch {
		case len(polys) > 0 && len(lines) == 0:
			return polys
		case len(lines) > 0 && len(polys) == 0:
			return lines
		case len(lines) > 0 && len(polys) > 0:
			return orb.Collection{lines, polys}
		}
	}
	return nil
}

// assemblePolygon builds the polygon one ring at a time: outer boundary
// first, then each hole. Handing a full multi-ring structure to a single
// constructor is exactly the path that breaks on some runtime/library
// combinations, so ring-by-ring is the portable contract here.
func assemblePolygon(p kmlPolygon) orb.Polygon {
	outer := parseCoordinateText(p.Outer.Ring.Coordinates)
	if len(outer) < 3 {
		return nil
	}
	poly := orb.Polygon{closeRing(orb.Ring(outer))}
	for _, inner := range p.Inner {
		ring := parseCoordinateText(inner.Ring.Coordinates)
		if len(ring) < 3 {
			continue
		}
		poly = append(poly, closeRing(orb.Ring(ring)))
	}
	return poly
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) >= 2 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// parseCoordinateText parses the KML coordinate syntax: whitespace-separated
// tuples of "lon,lat[,alt]".
func parseCoordinateText(text string) orb.LineString {
	var line orb.LineString
	for _, tuple := range strings.Fields(text) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lon, errLon := strconv.ParseFloat(parts[0], 64)
		lat, errLat := strconv.ParseFloat(parts[1], 64)
		if errLon != nil || errLat != nil {
			continue
		}
		line = append(line, orb.Point{lon, lat})
	}
	return line
}

// scanCoordinateBlocks is the raw-text fallback: it pulls every
// <coordinates> block out of the document without caring about the
// surrounding structure. Placemark names are not recoverable on this path.
func scanCoordinateBlocks(data []byte) []NamedGeometry {
	var out []NamedGeometry
	rest := data
	for {
		start := bytes.Index(rest, []byte("<coordinates>"))
		if start < 0 {
			break
		}
		rest = rest[start+len("<coordinates>"):]
		end := bytes.Index(rest, []byte("</coordinates>"))
		if end < 0 {
			break
		}
		if line := parseCoordinateText(string(rest[:end])); len(line) >= 2 {
			out = append(out, NamedGeometry{Geometry: line})
		}
		rest = rest[end:]
	}
	return out
}

// LoadKMLBoundaries reads a KML file of named boundary polygons (the borough
// outlines) and returns them keyed by placemark name. Line placemarks are
// ignored.
func LoadKMLBoundaries(path string) (map[string]orb.MultiPolygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	named, err := ParseKML(data)
	if err != nil {
		return nil, err
	}

	out := make(map[string]orb.MultiPolygon)
	for _, n := range named {
		if n.Name == "" {
			continue
		}
		switch g := n.Geometry.(type) {
		case orb.Polygon:
			out[n.Name] = append(out[n.Name], g)
		case orb.MultiPolygon:
			out[n.Name] = append(out[n.Name], g...)
		case orb.Collection:
			for _, sub := range g {
				switch sg := sub.(type) {
				case orb.Polygon:
					out[n.Name] = append(out[n.Name], sg)
				case orb.MultiPolygon:
					out[n.Name] = append(out[n.Name], sg...)
				}
			}
		}
	}
	return out, nil
}
