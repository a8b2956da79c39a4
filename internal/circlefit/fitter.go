package circlefit

import (
	"errors"
	"time"

	"github.com/yegors/flightseg/internal/flight"
	"github.com/yegors/flightseg/internal/geodesy"
	"github.com/yegors/flightseg/internal/metrics"
	"github.com/yegors/flightseg/internal/nav"
	"github.com/yegors/flightseg/pkg/logger"
)

// Fitter runs RANSAC fits over flight segments
type Fitter struct {
	logger *logger.Logger
	geod   geodesy.Geodesic
	params Params
	seed   uint64
}

// NewFitter creates a fitter. Every fit draws from a fresh source seeded with
// seed, so a segment always gets the same circle.
func NewFitter(log *logger.Logger, g geodesy.Geodesic, params Params, seed uint64) *Fitter {
	if g == nil {
		g = geodesy.WGS84
	}
	if params.Tolerance <= 0 {
		params.Tolerance = DefaultTolerance
	}
	if params.Trials <= 0 {
		params.Trials = DefaultTrials
	}
	return &Fitter{
		logger: log.Named("circlefit"),
		geod:   g,
		params: params,
		seed:   seed,
	}
}

// Params returns the RANSAC parameters in use
func (f *Fitter) Params() Params {
	return f.params
}

// Seed returns the seed every fit starts from
func (f *Fitter) Seed() uint64 {
	return f.seed
}

// WithParams returns a fitter on the same earth model with other RANSAC
// parameters and seed
func (f *Fitter) WithParams(params Params, seed uint64) *Fitter {
	out := *f
	if params.Tolerance > 0 {
		out.params.Tolerance = params.Tolerance
	}
	if params.Trials > 0 {
		out.params.Trials = params.Trials
	}
	out.seed = seed
	return &out
}

// FitPoints runs RANSAC over pts and records the outcome
func (f *Fitter) FitPoints(pts []Point) (Circle, error) {
	began := time.Now()
	circle, err := RANSAC(f.geod, pts, f.params, NewRand(f.seed))
	metrics.CircleFitDuration.Observe(time.Since(began).Seconds())

	switch {
	case err == nil:
		metrics.CircleFitsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrInsufficientPoints):
		metrics.CircleFitsTotal.WithLabelValues("insufficient_points").Inc()
	case errors.Is(err, ErrNoConsensus):
		metrics.CircleFitsTotal.WithLabelValues("no_consensus").Inc()
	default:
		metrics.CircleFitsTotal.WithLabelValues("error").Inc()
	}
	return circle, err
}

// FitSegment fits the track samples inside the segment window
func (f *Fitter) FitSegment(seg flight.Segment, track nav.Track) (Circle, error) {
	start, ok := seg.Start()
	if !ok {
		return Circle{}, errors.New("segment has no valid start")
	}
	end, ok := seg.End()
	if !ok {
		return Circle{}, errors.New("segment has no valid end")
	}
	return f.FitPoints(TrackPoints(track.Slice(start, end)))
}

// Attach returns copies of the segments where every circle or circling
// segment carries the fitted clat, clon and radius. Segments that cannot be
// fitted are logged and returned unchanged.
func (f *Fitter) Attach(segments []flight.Segment, track nav.Track) []flight.Segment {
	out := make([]flight.Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg
		if !flight.KindsIsCircle(seg.Kinds()) {
			continue
		}
		id, _ := seg.SegmentID()
		circle, err := f.FitSegment(seg, track)
		if err != nil {
			f.logger.Warn("Circle fit failed",
				logger.String("segment_id", id),
				logger.Error(err))
			continue
		}

		fitted := seg.Clone()
		fitted[flight.KeyCircleLat] = circle.Lat
		fitted[flight.KeyCircleLon] = circle.Lon
		fitted[flight.KeyRadius] = circle.Radius
		out[i] = fitted

		f.logger.Debug("Circle fitted",
			logger.String("segment_id", id),
			logger.Float64("clat", circle.Lat),
			logger.Float64("clon", circle.Lon),
			logger.Float64("radius", circle.Radius),
			logger.Float64("radius_nm", geodesy.MetersToNM(circle.Radius)),
			logger.Int("inliers", circle.Inliers))
	}
	return out
}

// TrackPoints converts track samples to fit points
func TrackPoints(track nav.Track) []Point {
	lats, lons := track.LatLon()
	pts := make([]Point, len(track))
	for i := range pts {
		pts[i] = Point{Lat: lats[i], Lon: lons[i]}
	}
	return pts
}
