package physics

import (
	"fmt"
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	G         = 9.80665  // Gravity (m/s^2)
	KnotsToMs = 0.514444 // Conversion factor from Knots to m/s
)

// MagneticVariation returns the magnetic declination in degrees (+East, -West)
// at a position and time. altM is meters above the WGS84 ellipsoid.
func MagneticVariation(lat, lon, altM float64, t time.Time) (float64, error) {
	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, t)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate magnetic field: %w", err)
	}
	return mag.D(), nil
}

// BankAngle returns the bank angle in degrees of a coordinated turn flown at
// speed (m/s) on a circle of the given radius (m)
// Formula: tan(phi) = v^2 / (g * r)
func BankAngle(speedMs, radiusM float64) float64 {
	if radiusM <= 0 {
		return 90
	}
	return math.Atan(speedMs*speedMs/(G*radiusM)) * 180 / math.Pi
}
