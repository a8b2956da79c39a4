// Package verify runs the consistency checker over whole flight files,
// pairing each segment with its slice of the navigation track and the
// dropsondes launched inside it.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/flightseg/internal/checker"
	"github.com/yegors/flightseg/internal/circlefit"
	"github.com/yegors/flightseg/internal/flight"
	"github.com/yegors/flightseg/internal/metrics"
	"github.com/yegors/flightseg/internal/nav"
	"github.com/yegors/flightseg/pkg/logger"
)

// ErrIncomplete is returned for flights without a platform or flight id,
// which are needed to look up the track and the sondes
var ErrIncomplete = errors.New("flight has no platform or flight_id")

// SegmentReport holds the diagnostics of one segment
type SegmentReport struct {
	Index     int               `json:"index"`
	SegmentID string            `json:"segment_id,omitempty"`
	Warnings  []string          `json:"warnings"`
	Sondes    int               `json:"sondes"`
	Samples   int               `json:"samples"`
	Circle    *circlefit.Circle `json:"circle,omitempty"`
}

// Report is the outcome of verifying one flight
type Report struct {
	FlightID       string          `json:"flight_id"`
	Platform       string          `json:"platform"`
	Source         string          `json:"source,omitempty"` // file the flight was read from
	FlightWarnings []string        `json:"flight_warnings"`
	Segments       []SegmentReport `json:"segments"`
	CheckedAt      time.Time       `json:"checked_at"`

	// Corrected is the flight with malformed segment fields removed and,
	// when fitting is enabled, circle fits attached
	Corrected flight.Flight `json:"-"`
}

// SegmentWarningCount returns the number of segment diagnostics
func (r *Report) SegmentWarningCount() int {
	n := 0
	for _, seg := range r.Segments {
		n += len(seg.Warnings)
	}
	return n
}

// WarningCount returns the number of flight and segment diagnostics
func (r *Report) WarningCount() int {
	return len(r.FlightWarnings) + r.SegmentWarningCount()
}

// Option configures a Verifier
type Option func(*Verifier)

// WithCheckerOptions passes options to every flight checker
func WithCheckerOptions(opts ...checker.Option) Option {
	return func(v *Verifier) {
		v.checkerOpts = append(v.checkerOpts, opts...)
	}
}

// WithFitter attaches RANSAC circle fits to circle segments
func WithFitter(f *circlefit.Fitter) Option {
	return func(v *Verifier) {
		v.fitter = f
	}
}

// Verifier checks flights against one sonde inventory and track source
type Verifier struct {
	source      nav.Source
	sondes      []flight.Sonde
	checkerOpts []checker.Option
	fitter      *circlefit.Fitter

	logger        *logger.Logger
	flightLogger  *logger.Logger
	segmentLogger *logger.Logger
}

// NewVerifier creates a verifier
func NewVerifier(source nav.Source, sondes []flight.Sonde, log *logger.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		source:        source,
		sondes:        sondes,
		logger:        log.Named("verify"),
		flightLogger:  log.Named("flight"),
		segmentLogger: log.Named("segment"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyFile loads and verifies a flight file
func (v *Verifier) VerifyFile(ctx context.Context, path string) (*Report, error) {
	f, err := flight.LoadFlight(path)
	if err != nil {
		return nil, err
	}
	report, err := v.Verify(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	report.Source = path
	return report, nil
}

// Verify checks a flight and all its segments. Diagnostics are logged as
// warnings and collected in the report; an error means the flight could not
// be checked at all.
func (v *Verifier) Verify(ctx context.Context, f flight.Flight) (*Report, error) {
	c := checker.ForFlight(f, v.checkerOpts...)

	flightWarnings := c.CheckFlight(f)
	for _, warning := range flightWarnings {
		v.flightLogger.Warn(warning)
	}
	metrics.DiagnosticsTotal.WithLabelValues("flight").Add(float64(len(flightWarnings)))

	flightID, idOK := f.FlightID()
	platform, platformOK := f.Platform()
	if !idOK || !platformOK {
		return nil, ErrIncomplete
	}

	track, err := v.source.Track(ctx, platform, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to load track: %w", err)
	}
	sondes := flight.FilterPlatform(v.sondes, platform)

	report := &Report{
		FlightID:       flightID,
		Platform:       platform,
		FlightWarnings: nonNil(flightWarnings),
		Segments:       []SegmentReport{},
		CheckedAt:      time.Now().UTC(),
	}

	segments := f.Segments()
	corrected := make([]flight.Segment, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		segTrack := nav.Track{}
		sondesByFlag := flight.SondesByFlag{}
		start, startOK := seg.Start()
		end, endOK := seg.End()
		if startOK && endOK {
			segTrack = track.Slice(start, end)
			sondesByFlag = flight.GroupByFlag(sondes, start, end)
		}

		warnings, fixed := c.CheckSegment(seg, segTrack, sondesByFlag)
		id, _ := seg.SegmentID()
		for _, warning := range warnings {
			v.segmentLogger.Warn(warning, logger.String("segment_id", id))
		}
		metrics.SegmentsChecked.Inc()
		metrics.DiagnosticsTotal.WithLabelValues("segment").Add(float64(len(warnings)))

		segReport := SegmentReport{
			Index:     i,
			SegmentID: id,
			Warnings:  nonNil(warnings),
			Sondes:    sondesByFlag.Count(),
			Samples:   len(segTrack),
		}

		if v.fitter != nil && flight.KindsIsCircle(fixed.Kinds()) && startOK && endOK {
			circle, err := v.fitter.FitPoints(circlefit.TrackPoints(segTrack))
			if err != nil {
				v.logger.Warn("Circle fit failed",
					logger.String("segment_id", id),
					logger.Error(err))
			} else {
				fixed[flight.KeyCircleLat] = circle.Lat
				fixed[flight.KeyCircleLon] = circle.Lon
				fixed[flight.KeyRadius] = circle.Radius
				segReport.Circle = &circle
			}
		}

		corrected[i] = fixed
		report.Segments = append(report.Segments, segReport)
	}
	report.Corrected = f.WithSegments(corrected)

	v.logger.Info("Verified flight",
		logger.String("flight_id", flightID),
		logger.Int("flight_warnings", len(report.FlightWarnings)),
		logger.Int("segment_warnings", report.SegmentWarningCount()))

	return report, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
