package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yegors/flightseg/internal/checker"
	"github.com/yegors/flightseg/internal/circlefit"
	"github.com/yegors/flightseg/internal/flight"
	"github.com/yegors/flightseg/internal/geodesy"
	"github.com/yegors/flightseg/internal/nav"
	"github.com/yegors/flightseg/pkg/logger"
)

const flightYAML = `
platform: HALO
flight_id: HALO-20240816a
segments:
  - segment_id: HALO-20240816a_c1
    start: 2024-08-16T12:00:00Z
    end: 2024-08-16T13:00:00Z
    kinds: [circle]
    irregularities: []
    dropsondes:
      GOOD: [S1, S2]
  - segment_id: HALO-20240816a_c2
    start: 2024-08-16T14:00:00Z
    end: 2024-08-16T15:00:00Z
    kinds: [circle]
    irregularities: []
    dropsondes:
      GOOD: [S3]
`

var t0 = time.Date(2024, 8, 16, 12, 0, 0, 0, time.UTC)

type memSource map[string]nav.Track

func (m memSource) Track(_ context.Context, platform, flightID string) (nav.Track, error) {
	track, ok := m[platform+"/"+flightID]
	if !ok {
		return nil, nav.ErrTrackNotFound
	}
	return track, nil
}

// circleTrack flies a 100 km circle during the first segment
func circleTrack() nav.Track {
	var track nav.Track
	for i := range 60 {
		lat, lon := geodesy.WGS84.Direct(13.3, -57.7, float64(i)*6, 100e3)
		track = append(track, nav.Sample{Time: t0.Add(time.Duration(i) * time.Minute), Lat: lat, Lon: lon, Alt: 10000})
	}
	return track
}

func inventory() []flight.Sonde {
	return []flight.Sonde{
		{SondeID: "S1", Platform: "HALO", Flag: "GOOD", LaunchTime: t0.Add(time.Minute)},
		{SondeID: "S2", Platform: "HALO", Flag: "GOOD", LaunchTime: t0.Add(30 * time.Minute)},
		// launched exactly at the segment end, belongs to no segment
		{SondeID: "S9", Platform: "HALO", Flag: "GOOD", LaunchTime: t0.Add(time.Hour)},
		{SondeID: "S3", Platform: "HALO", Flag: "GOOD", LaunchTime: t0.Add(2*time.Hour + 58*time.Second)},
		{SondeID: "P1", Platform: "P3", Flag: "GOOD", LaunchTime: t0.Add(5 * time.Minute)},
	}
}

func decode(t *testing.T, doc string) flight.Flight {
	t.Helper()
	f, err := flight.DecodeFlight(strings.NewReader(doc))
	require.NoError(t, err)
	return f
}

func TestVerify(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.FromZap(zap.New(core))
	src := memSource{"HALO/HALO-20240816a": circleTrack()}

	v := NewVerifier(src, inventory(), log)
	report, err := v.Verify(context.Background(), decode(t, flightYAML))
	require.NoError(t, err)

	assert.Equal(t, "HALO-20240816a", report.FlightID)
	assert.Equal(t, "HALO", report.Platform)
	assert.Empty(t, report.FlightWarnings)
	require.Len(t, report.Segments, 2)

	first := report.Segments[0]
	assert.Equal(t, "HALO-20240816a_c1", first.SegmentID)
	assert.Empty(t, first.Warnings)
	assert.Equal(t, 2, first.Sondes)
	assert.Equal(t, 60, first.Samples)
	assert.Nil(t, first.Circle)

	second := report.Segments[1]
	assert.Equal(t, []string{checker.MsgTimeToFirstSonde}, second.Warnings)
	assert.Equal(t, 1, report.WarningCount())

	segmentLogs := logs.FilterLoggerName("segment").All()
	require.Len(t, segmentLogs, 1)
	assert.Equal(t, zapcore.WarnLevel, segmentLogs[0].Level)
	assert.Equal(t, checker.MsgTimeToFirstSonde, segmentLogs[0].Message)
	assert.Equal(t, "HALO-20240816a_c2", segmentLogs[0].ContextMap()["segment_id"])
}

func TestVerifyFlightWarnings(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	v := NewVerifier(memSource{}, nil, logger.FromZap(zap.New(core)))

	_, err := v.Verify(context.Background(), flight.Flight{"segments": []any{}})
	assert.ErrorIs(t, err, ErrIncomplete)

	flightLogs := logs.FilterLoggerName("flight").All()
	require.Len(t, flightLogs, 2)
	assert.Equal(t, checker.MsgFlightIDMissing, flightLogs[0].Message)
	assert.Equal(t, checker.MsgPlatformMissing, flightLogs[1].Message)
}

func TestVerifyMissingTrack(t *testing.T) {
	v := NewVerifier(memSource{}, inventory(), logger.NewNop())
	_, err := v.Verify(context.Background(), decode(t, flightYAML))
	assert.True(t, errors.Is(err, nav.ErrTrackNotFound))
}

func TestVerifyCorrectsAndFits(t *testing.T) {
	src := memSource{"HALO/HALO-20240816a": circleTrack()}
	fitter := circlefit.NewFitter(logger.NewNop(), geodesy.WGS84, circlefit.DefaultParams(), circlefit.DefaultSeed)
	v := NewVerifier(src, inventory(), logger.NewNop(),
		WithFitter(fitter),
		WithCheckerOptions(checker.WithTTFS(58*time.Second, time.Second)),
	)

	f := decode(t, flightYAML)
	segments := f.Segments()
	segments[1]["irregularities"] = "none"

	report, err := v.Verify(context.Background(), f)
	require.NoError(t, err)

	// the first sonde of the first circle is now two seconds late
	assert.Equal(t, []string{checker.MsgTimeToFirstSonde}, report.Segments[0].Warnings)
	assert.Equal(t, []string{checker.MsgIrregularitiesList}, report.Segments[1].Warnings)

	require.NotNil(t, report.Segments[0].Circle)
	assert.InDelta(t, 100e3, report.Segments[0].Circle.Radius, 1.0)
	// no samples in the second window
	assert.Nil(t, report.Segments[1].Circle)

	corrected := report.Corrected.Segments()
	require.Len(t, corrected, 2)
	assert.Contains(t, corrected[0], "radius")
	assert.NotContains(t, corrected[1], "irregularities")
	assert.Equal(t, "none", segments[1]["irregularities"])
}

func TestVerifyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "HALO-20240816a.yaml")
	require.NoError(t, os.WriteFile(path, []byte(flightYAML), 0o644))

	v := NewVerifier(memSource{"HALO/HALO-20240816a": circleTrack()}, inventory(), logger.NewNop())
	report, err := v.VerifyFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, report.Source)

	_, err = v.VerifyFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
