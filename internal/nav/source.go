package nav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/yegors/flightseg/internal/metrics"
)

// ErrTrackNotFound is returned when no track exists for a platform/flight
var ErrTrackNotFound = errors.New("track not found")

// Source provides the navigation track of a flight
type Source interface {
	Track(ctx context.Context, platform, flightID string) (Track, error)
}

// RangeSource is a Source that can load the samples in [start, end] without
// reading the whole track. Zero bounds are open.
type RangeSource interface {
	Source
	TrackRange(ctx context.Context, platform, flightID string, start, end time.Time) (Track, error)
}

// CSVDirSource reads tracks from <dir>/<platform>/<flight_id>.csv
type CSVDirSource struct {
	Dir string
}

// NewCSVDirSource creates a source rooted at dir
func NewCSVDirSource(dir string) *CSVDirSource {
	return &CSVDirSource{Dir: dir}
}

// Track implements Source
func (s *CSVDirSource) Track(ctx context.Context, platform, flightID string) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.Dir, platform, flightID+".csv")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			metrics.TrackFetchesTotal.WithLabelValues("csv", "not_found").Inc()
			return nil, fmt.Errorf("%s/%s: %w", platform, flightID, ErrTrackNotFound)
		}
		metrics.TrackFetchesTotal.WithLabelValues("csv", "error").Inc()
		return nil, fmt.Errorf("failed to open track: %w", err)
	}
	defer f.Close()

	track, err := ReadCSV(f)
	if err != nil {
		metrics.TrackFetchesTotal.WithLabelValues("csv", "error").Inc()
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	metrics.TrackFetchesTotal.WithLabelValues("csv", "ok").Inc()
	return track, nil
}

// HTTPOptions tunes an HTTPSource
type HTTPOptions struct {
	Timeout         time.Duration // per request
	MaxElapsed      time.Duration // retry budget, 0 keeps the backoff default
	InitialInterval time.Duration // first retry delay, 0 keeps the backoff default
}

// HTTPSource fetches tracks as CSV from <base>/<platform>/<flight_id>.csv.
// Transport failures, rate limiting and server errors are retried with
// exponential backoff.
type HTTPSource struct {
	baseURL *url.URL
	client  *http.Client
	opts    HTTPOptions
}

// NewHTTPSource creates a source for the given archive base URL
func NewHTTPSource(baseURL string, opts HTTPOptions) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &HTTPSource{
		baseURL: u,
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
	}, nil
}

// Track implements Source
func (s *HTTPSource) Track(ctx context.Context, platform, flightID string) (Track, error) {
	target := s.baseURL.JoinPath(platform, flightID+".csv").String()

	var track Track
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch track: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%s/%s: %w", platform, flightID, ErrTrackNotFound))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("fetch track: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch track: status %d: %s", resp.StatusCode, string(b)))
		}

		track, err = ReadCSV(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("parse track: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	if s.opts.MaxElapsed > 0 {
		bo.MaxElapsedTime = s.opts.MaxElapsed
	}
	if s.opts.InitialInterval > 0 {
		bo.InitialInterval = s.opts.InitialInterval
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		status := "error"
		if errors.Is(err, ErrTrackNotFound) {
			status = "not_found"
		}
		metrics.TrackFetchesTotal.WithLabelValues("http", status).Inc()
		return nil, err
	}
	metrics.TrackFetchesTotal.WithLabelValues("http", "ok").Inc()
	return track, nil
}
