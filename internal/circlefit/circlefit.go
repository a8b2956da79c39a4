// Package circlefit recovers the center and radius of circular flight
// patterns from lat/lon fixes.
package circlefit

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/yegors/flightseg/internal/geodesy"
)

var (
	// ErrInsufficientPoints is returned when fewer than 3 distinct points are given
	ErrInsufficientPoints = errors.New("circle fit needs at least 3 distinct points")
	// ErrNoConsensus is returned when no RANSAC trial produced a usable circle
	ErrNoConsensus = errors.New("no trial produced a usable circle")
)

// Default RANSAC parameters
const (
	DefaultTolerance = 1000.0 // meters
	DefaultTrials    = 100
	DefaultSeed      = 1
)

// Point is a WGS84 position in degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Circle is a fitted circle. Radius is in meters. Inliers is the number of
// points the fit was computed from.
type Circle struct {
	Lat     float64 `json:"clat"`
	Lon     float64 `json:"clon"`
	Radius  float64 `json:"radius"`
	Inliers int     `json:"inliers"`
}

// Params controls the RANSAC search
type Params struct {
	Tolerance float64 `json:"tolerance_m"` // max |radius - distance| of an inlier, meters
	Trials    int     `json:"trials"`
}

// DefaultParams returns a 1 km tolerance over 100 trials
func DefaultParams() Params {
	return Params{Tolerance: DefaultTolerance, Trials: DefaultTrials}
}

// NewRand returns a random source for RANSAC seeded with seed. Equal seeds
// give equal fits.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Fit finds the center minimizing the standard deviation of the geodesic
// distances to all points, starting from their mean position. The radius is
// the mean distance at the optimum.
//
// The antipode of a center fits equally well, so the search is confined to
// centers less than a quarter meridian from the points on average.
func Fit(g geodesy.Geodesic, pts []Point) (Circle, error) {
	if distinctCount(pts, 3) < 3 {
		return Circle{}, ErrInsufficientPoints
	}

	lats, lons := split(pts)
	cost := func(x []float64) float64 {
		if math.Abs(x[0]) > 90 {
			return math.Inf(1)
		}
		d := geodesy.Distances(g, x[0], x[1], lats, lons)
		if stat.Mean(d, nil) > geodesy.QuarterMeridian {
			return math.Inf(1)
		}
		sd := stat.PopStdDev(d, nil)
		if math.IsNaN(sd) {
			return math.Inf(1)
		}
		return sd
	}

	x0 := []float64{stat.Mean(lats, nil), meanLon(lons)}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 100,
		},
	}
	result, err := optimize.Minimize(optimize.Problem{Func: cost}, x0, settings, &optimize.NelderMead{})
	if err != nil && result == nil {
		return Circle{}, err
	}

	clat, clon := result.X[0], geodesy.NormalizeLon(result.X[1])
	d := geodesy.Distances(g, clat, clon, lats, lons)
	return Circle{
		Lat:     clat,
		Lon:     clon,
		Radius:  stat.Mean(d, nil),
		Inliers: len(pts),
	}, nil
}

// RANSAC fits a circle robust to outliers. Each trial fits 3 distinct random
// points and counts the points whose distance to the candidate center is
// within the tolerance of its radius. The first trial with the highest count
// wins, and the result is refit on its inliers. Trials drawing the same
// position twice are skipped.
func RANSAC(g geodesy.Geodesic, pts []Point, p Params, rng *rand.Rand) (Circle, error) {
	if distinctCount(pts, 3) < 3 {
		return Circle{}, ErrInsufficientPoints
	}
	if p.Tolerance <= 0 {
		p.Tolerance = DefaultTolerance
	}
	if p.Trials <= 0 {
		p.Trials = DefaultTrials
	}
	lats, lons := split(pts)

	var best Circle
	bestCount := -1
	sample := make([]Point, 3)
	for range p.Trials {
		i, j, k := pick3(rng, len(pts))
		sample[0], sample[1], sample[2] = pts[i], pts[j], pts[k]
		if distinctCount(sample, 3) < 3 {
			continue
		}
		candidate, err := Fit(g, sample)
		if err != nil {
			continue
		}
		n := countInliers(geodesy.Distances(g, candidate.Lat, candidate.Lon, lats, lons), candidate.Radius, p.Tolerance)
		if n > bestCount {
			best, bestCount = candidate, n
		}
	}
	if bestCount < 0 {
		return Circle{}, ErrNoConsensus
	}

	d := geodesy.Distances(g, best.Lat, best.Lon, lats, lons)
	inliers := make([]Point, 0, bestCount)
	for i, dist := range d {
		if math.Abs(best.Radius-dist) <= p.Tolerance {
			inliers = append(inliers, pts[i])
		}
	}
	circle, err := Fit(g, inliers)
	if errors.Is(err, ErrInsufficientPoints) {
		return Circle{}, ErrNoConsensus
	}
	return circle, err
}

func countInliers(d []float64, radius, tolerance float64) int {
	n := 0
	for _, dist := range d {
		if math.Abs(radius-dist) <= tolerance {
			n++
		}
	}
	return n
}

// pick3 draws 3 distinct indices below n uniformly without replacement
func pick3(rng *rand.Rand, n int) (int, int, int) {
	i := rng.IntN(n)
	j := rng.IntN(n - 1)
	if j >= i {
		j++
	}
	k := rng.IntN(n - 2)
	lo, hi := min(i, j), max(i, j)
	if k >= lo {
		k++
	}
	if k >= hi {
		k++
	}
	return i, j, k
}

// distinctCount counts distinct positions, stopping once limit is reached
func distinctCount(pts []Point, limit int) int {
	seen := make(map[Point]struct{}, limit)
	for _, p := range pts {
		seen[p] = struct{}{}
		if len(seen) >= limit {
			break
		}
	}
	return len(seen)
}

// meanLon is the circular mean of the longitudes, so points on both sides of
// the antimeridian average to a position between them
func meanLon(lons []float64) float64 {
	var sin, cos float64
	for _, lon := range lons {
		r := lon * math.Pi / 180
		sin += math.Sin(r)
		cos += math.Cos(r)
	}
	return math.Atan2(sin, cos) * 180 / math.Pi
}

func split(pts []Point) (lats, lons []float64) {
	lats = make([]float64, len(pts))
	lons = make([]float64, len(pts))
	for i, p := range pts {
		lats[i] = p.Lat
		lons[i] = p.Lon
	}
	return lats, lons
}
