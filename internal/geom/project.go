package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const earthRadiusM = 6371000.0

// Equirectangular returns a projection from lon/lat degrees into planar
// metres, centred on the given latitude. It is the working projection for
// every distance computed by the matchers; distances in raw degrees distort
// badly at London latitudes.
func Equirectangular(lat0 float64) orb.Projection {
	cosLat := math.Cos(lat0 * math.Pi / 180)
	return func(p orb.Point) orb.Point {
		return orb.Point{
			p[0] * math.Pi / 180 * earthRadiusM * cosLat,
			p[1] * math.Pi / 180 * earthRadiusM,
		}
	}
}

// Identity passes coordinates through unchanged. Useful where reference data
// is already planar.
func Identity() orb.Projection {
	return func(p orb.Point) orb.Point { return p }
}

// Project applies the projection to a copy of the geometry.
func Project(g orb.Geometry, proj orb.Projection) orb.Geometry {
	return project.Geometry(orb.Clone(g), proj)
}

// SampleLat returns the latitude of the first coordinate found in the
// geometry, used to centre the projection on the dataset.
func SampleLat(g orb.Geometry, fallback float64) float64 {
	switch v := g.(type) {
	case orb.Point:
		return v[1]
	case orb.LineString:
		if len(v) > 0 {
			return v[0][1]
		}
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) > 0 {
				return ls[0][1]
			}
		}
	case orb.Ring:
		if len(v) > 0 {
			return v[0][1]
		}
	case orb.Polygon:
		for _, r := range v {
			if len(r) > 0 {
				return r[0][1]
			}
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if lat := SampleLat(p, math.NaN()); !math.IsNaN(lat) {
				return lat
			}
		}
	case orb.Collection:
		for _, sub := range v {
			if lat := SampleLat(sub, math.NaN()); !math.IsNaN(lat) {
				return lat
			}
		}
	}
	return fallback
}

// LineLengthM sums the haversine length of a line drawn in lon/lat degrees.
func LineLengthM(line orb.LineString) float64 {
	total := 0.0
	for i := 0; i+1 < len(line); i++ {
		total += haversineM(line[i], line[i+1])
	}
	return total
}

// MultiLineLengthM sums LineLengthM over every part.
func MultiLineLengthM(ml orb.MultiLineString) float64 {
	total := 0.0
	for _, line := range ml {
		total += LineLengthM(line)
	}
	return total
}

func haversineM(a, b orb.Point) float64 {
	lat1 := a[1] * math.Pi / 180
	lat2 := b[1] * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b[0] - a[0]) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}
