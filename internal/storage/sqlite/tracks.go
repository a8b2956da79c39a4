package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/yegors/flightseg/internal/metrics"
	"github.com/yegors/flightseg/internal/nav"
	"github.com/yegors/flightseg/pkg/logger"
)

// FlightRef summarizes the stored track of one flight
type FlightRef struct {
	Platform string    `json:"platform"`
	FlightID string    `json:"flight_id"`
	Samples  int       `json:"samples"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// TrackStorage stores navigation tracks, one sample per row
type TrackStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTrackStorage creates the track storage on an open database
func NewTrackStorage(db *sql.DB, log *logger.Logger) (*TrackStorage, error) {
	storage := &TrackStorage{
		db:     db,
		logger: log.Named("sqlite-track"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *TrackStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS nav_samples (
			platform TEXT NOT NULL,
			flight_id TEXT NOT NULL,
			time_ns INTEGER NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			alt REAL NOT NULL,
			heading REAL NOT NULL,
			roll REAL NOT NULL,
			pitch REAL NOT NULL,
			PRIMARY KEY (platform, flight_id, time_ns)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create nav_samples table: %w", err)
	}
	return nil
}

// SaveTrack replaces the stored track of a flight
func (s *TrackStorage) SaveTrack(ctx context.Context, platform, flightID string, track nav.Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nav_samples WHERE platform = ? AND flight_id = ?`, platform, flightID); err != nil {
		return fmt.Errorf("failed to delete previous track: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO nav_samples
		(platform, flight_id, time_ns, lat, lon, alt, heading, roll, pitch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sample := range track {
		if _, err := stmt.ExecContext(ctx,
			platform, flightID, sample.Time.UnixNano(),
			sample.Lat, sample.Lon, sample.Alt,
			sample.Heading, sample.Roll, sample.Pitch,
		); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit track: %w", err)
	}

	s.logger.Info("Stored track",
		logger.String("platform", platform),
		logger.String("flight_id", flightID),
		logger.Int("samples", len(track)))
	return nil
}

// Track returns the full track of a flight. It implements nav.Source.
func (s *TrackStorage) Track(ctx context.Context, platform, flightID string) (nav.Track, error) {
	track, err := s.query(ctx,
		`WHERE platform = ? AND flight_id = ?`,
		platform, flightID)
	switch {
	case err != nil:
		metrics.TrackFetchesTotal.WithLabelValues("sqlite", "error").Inc()
		return nil, err
	case len(track) == 0:
		metrics.TrackFetchesTotal.WithLabelValues("sqlite", "not_found").Inc()
		return nil, fmt.Errorf("%s/%s: %w", platform, flightID, nav.ErrTrackNotFound)
	}
	metrics.TrackFetchesTotal.WithLabelValues("sqlite", "ok").Inc()
	return track, nil
}

// TrackRange returns the samples with start <= time <= end. Zero bounds are
// open. It implements nav.RangeSource.
func (s *TrackStorage) TrackRange(ctx context.Context, platform, flightID string, start, end time.Time) (nav.Track, error) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !start.IsZero() {
		lo = start.UnixNano()
	}
	if !end.IsZero() {
		hi = end.UnixNano()
	}

	track, err := s.query(ctx,
		`WHERE platform = ? AND flight_id = ? AND time_ns >= ? AND time_ns <= ?`,
		platform, flightID, lo, hi)
	if err != nil || len(track) > 0 {
		return track, err
	}

	// an empty window of a stored flight is not an error
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nav_samples WHERE platform = ? AND flight_id = ?`,
		platform, flightID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%s/%s: %w", platform, flightID, nav.ErrTrackNotFound)
	}
	return track, nil
}

func (s *TrackStorage) query(ctx context.Context, where string, args ...any) (nav.Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time_ns, lat, lon, alt, heading, roll, pitch FROM nav_samples `+where+` ORDER BY time_ns`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	defer rows.Close()

	track := nav.Track{}
	for rows.Next() {
		var sample nav.Sample
		var ns int64
		if err := rows.Scan(&ns, &sample.Lat, &sample.Lon, &sample.Alt, &sample.Heading, &sample.Roll, &sample.Pitch); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.Time = time.Unix(0, ns).UTC()
		track = append(track, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track: %w", err)
	}
	return track, nil
}

// Flights lists the stored tracks
func (s *TrackStorage) Flights(ctx context.Context) ([]FlightRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, flight_id, COUNT(*), MIN(time_ns), MAX(time_ns)
		FROM nav_samples
		GROUP BY platform, flight_id
		ORDER BY platform, flight_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	flights := []FlightRef{}
	for rows.Next() {
		var ref FlightRef
		var start, end int64
		if err := rows.Scan(&ref.Platform, &ref.FlightID, &ref.Samples, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		ref.Start = time.Unix(0, start).UTC()
		ref.End = time.Unix(0, end).UTC()
		flights = append(flights, ref)
	}
	return flights, rows.Err()
}
