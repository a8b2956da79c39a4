// Package geodesy provides the inverse geodesic primitive used for distance
// measurements between lat/lon fixes.
package geodesy

import (
	"fmt"
	"math"

	"github.com/tidwall/geodesic"
)

// Conversion factors
const (
	MetersPerNM     = 1852.0 // Meters per nautical mile
	EarthRadiusMean = 6371000.0
	QuarterMeridian = 10001965.729 // WGS84 equator to pole, meters
)

// Model names accepted by ByName
const (
	ModelWGS84  = "wgs84"
	ModelSphere = "sphere"
)

// Geodesic solves the inverse problem between two points. Arguments are in
// lon/lat order; azimuths are in degrees clockwise from north and the
// distance is in meters. The back azimuth is the bearing at point 2 pointing
// back towards point 1.
type Geodesic interface {
	Inverse(lon1, lat1, lon2, lat2 float64) (fwdAz, backAz, dist float64)
}

// ByName returns the earth model with the given name
func ByName(name string) (Geodesic, error) {
	switch name {
	case ModelWGS84, "":
		return WGS84, nil
	case ModelSphere:
		return MeanSphere, nil
	default:
		return nil, fmt.Errorf("unknown earth model %q (want %s or %s)", name, ModelWGS84, ModelSphere)
	}
}

// Ellipsoid solves geodesics on an oblate ellipsoid (Karney's algorithm)
type Ellipsoid struct {
	e *geodesic.Ellipsoid
}

// WGS84 is the ellipsoid used for all GPS fixes
var WGS84 = Ellipsoid{e: geodesic.WGS84}

// Inverse implements Geodesic
func (g Ellipsoid) Inverse(lon1, lat1, lon2, lat2 float64) (float64, float64, float64) {
	var s12, azi1, azi2 float64
	g.e.Inverse(lat1, lon1, lat2, lon2, &s12, &azi1, &azi2)
	return azi1, normalizeAzimuth(azi2 + 180), s12
}

// Direct returns the point reached from (lat, lon) after travelling dist
// meters along the given azimuth
func (g Ellipsoid) Direct(lat, lon, azimuth, dist float64) (float64, float64) {
	var lat2, lon2 float64
	g.e.Direct(lat, lon, azimuth, dist, &lat2, &lon2, nil)
	return lat2, lon2
}

// Sphere approximates the earth as a sphere of the given radius
type Sphere struct {
	Radius float64
}

// MeanSphere uses the mean earth radius
var MeanSphere = Sphere{Radius: EarthRadiusMean}

// Inverse implements Geodesic
func (s Sphere) Inverse(lon1, lat1, lon2, lat2 float64) (float64, float64, float64) {
	fwd := initialBearing(lat1, lon1, lat2, lon2)
	back := normalizeAzimuth(initialBearing(lat2, lon2, lat1, lon1))
	return normalizeAzimuth(fwd), back, s.haversine(lat1, lon1, lat2, lon2)
}

func (s Sphere) haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180.0

	lat1Rad := lat1 * rad
	lat2Rad := lat2 * rad

	dlon := (lon2 - lon1) * rad
	dlat := lat2Rad - lat1Rad

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return s.Radius * c
}

// initialBearing returns the bearing in degrees from point 1 to point 2
// (0 = North, 90 = East), in [0, 360)
func initialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	y := math.Sin(lon2Rad-lon1Rad) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(lon2Rad-lon1Rad)
	bearing := math.Atan2(y, x) * 180.0 / math.Pi

	return math.Mod(bearing+360.0, 360.0)
}

// NormalizeLon maps a longitude in degrees to (-180, 180]
func NormalizeLon(deg float64) float64 {
	return normalizeAzimuth(deg)
}

// normalizeAzimuth maps an angle in degrees to (-180, 180]
func normalizeAzimuth(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// Distances returns the distance from the center to every point. lats and
// lons must have the same length.
func Distances(g Geodesic, centerLat, centerLon float64, lats, lons []float64) []float64 {
	d := make([]float64, len(lats))
	for i := range lats {
		_, _, d[i] = g.Inverse(lons[i], lats[i], centerLon, centerLat)
	}
	return d
}

// MetersToNM converts meters to nautical miles
func MetersToNM(meters float64) float64 {
	return meters / MetersPerNM
}
