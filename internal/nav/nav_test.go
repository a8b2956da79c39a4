package nav

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 8, 16, 12, 0, 0, 0, time.UTC)

func sampleTrack() Track {
	track := make(Track, 5)
	for i := range track {
		track[i] = Sample{
			Time: t0.Add(time.Duration(i) * time.Minute),
			Lat:  13 + float64(i)*0.01,
			Lon:  -57 - float64(i)*0.01,
			Alt:  10000,
		}
	}
	return track
}

func TestSliceIsInclusive(t *testing.T) {
	track := sampleTrack()

	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"exact bounds", t0.Add(time.Minute), t0.Add(3 * time.Minute), 3},
		{"between samples", t0.Add(30 * time.Second), t0.Add(150 * time.Second), 2},
		{"whole track", t0.Add(-time.Hour), t0.Add(time.Hour), 5},
		{"single instant", t0.Add(2 * time.Minute), t0.Add(2 * time.Minute), 1},
		{"before track", t0.Add(-2 * time.Hour), t0.Add(-time.Hour), 0},
		{"inverted", t0.Add(3 * time.Minute), t0.Add(time.Minute), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, track.Slice(tt.start, tt.end), tt.want)
		})
	}
}

func TestLatLonAndBounds(t *testing.T) {
	track := sampleTrack()
	lats, lons := track.LatLon()
	require.Len(t, lats, 5)
	assert.InDelta(t, 13.02, lats[2], 1e-12)
	assert.InDelta(t, -57.04, lons[4], 1e-12)

	first, last, ok := track.Bounds()
	require.True(t, ok)
	assert.Equal(t, t0, first)
	assert.Equal(t, t0.Add(4*time.Minute), last)

	_, _, ok = Track{}.Bounds()
	assert.False(t, ok)
}

func TestCSVRoundTrip(t *testing.T) {
	track := sampleTrack()
	track[1].Heading = 271.5
	track[1].Roll = -20.25

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, track))
	assert.True(t, strings.HasPrefix(buf.String(), "time,lat,lon,alt,heading,roll,pitch\n"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, track, got)
}

func TestReadCSV(t *testing.T) {
	t.Run("sorts and tolerates missing optional columns", func(t *testing.T) {
		in := "lat,lon,time\n" +
			"13.1,-57.1,2024-08-16T12:01:00Z\n" +
			"13.0,-57.0,2024-08-16T12:00:00Z\n"
		track, err := ReadCSV(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, track, 2)
		assert.Equal(t, t0, track[0].Time)
		assert.Equal(t, 13.0, track[0].Lat)
		assert.Zero(t, track[0].Alt)
	})

	t.Run("empty input", func(t *testing.T) {
		track, err := ReadCSV(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, track)
	})

	t.Run("missing required column", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("time,lat\n"))
		assert.ErrorContains(t, err, `missing column "lon"`)
	})

	t.Run("bad number", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("time,lat,lon\n2024-08-16T12:00:00Z,x,1\n"))
		assert.ErrorContains(t, err, "line 2: invalid lat")
	})
}

func TestCSVDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "HALO"), 0o755))
	f, err := os.Create(filepath.Join(dir, "HALO", "HALO-20240816a.csv"))
	require.NoError(t, err)
	require.NoError(t, WriteCSV(f, sampleTrack()))
	require.NoError(t, f.Close())

	src := NewCSVDirSource(dir)
	track, err := src.Track(context.Background(), "HALO", "HALO-20240816a")
	require.NoError(t, err)
	assert.Len(t, track, 5)

	_, err = src.Track(context.Background(), "HALO", "HALO-20240818a")
	assert.True(t, errors.Is(err, ErrTrackNotFound))
}

func TestHTTPSource(t *testing.T) {
	var body bytes.Buffer
	require.NoError(t, WriteCSV(&body, sampleTrack()))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracks/HALO/flaky.csv":
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write(body.Bytes())
		case "/tracks/HALO/forbidden.csv":
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL+"/tracks", HTTPOptions{
		Timeout:         time.Second,
		MaxElapsed:      5 * time.Second,
		InitialInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	t.Run("retries server errors", func(t *testing.T) {
		calls.Store(0)
		track, err := src.Track(context.Background(), "HALO", "flaky")
		require.NoError(t, err)
		assert.Len(t, track, 5)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("not found is permanent", func(t *testing.T) {
		_, err := src.Track(context.Background(), "HALO", "missing")
		assert.True(t, errors.Is(err, ErrTrackNotFound))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		calls.Store(0)
		_, err := src.Track(context.Background(), "HALO", "forbidden")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 403")
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestHTTPSourceRetriesTransportErrors(t *testing.T) {
	var body bytes.Buffer
	require.NoError(t, WriteCSV(&body, sampleTrack()))

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// drop the connection without a response
			if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
				conn.Close()
			}
			return
		}
		_, _ = w.Write(body.Bytes())
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, HTTPOptions{
		Timeout:         time.Second,
		MaxElapsed:      5 * time.Second,
		InitialInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	track, err := src.Track(context.Background(), "HALO", "HALO-20240816a")
	require.NoError(t, err)
	assert.Len(t, track, 5)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestHTTPSourceStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, HTTPOptions{MaxElapsed: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Track(ctx, "HALO", "HALO-20240816a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestNewHTTPSourceRejectsRelativeURL(t *testing.T) {
	_, err := NewHTTPSource("tracks/", HTTPOptions{})
	assert.Error(t, err)
}
