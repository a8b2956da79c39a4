package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/flightseg/pkg/logger"
)

// ReportRecord is a stored verification report. Body holds the report as
// JSON.
type ReportRecord struct {
	ID           int64           `json:"id"`
	FlightID     string          `json:"flight_id"`
	Platform     string          `json:"platform"`
	CheckedAt    time.Time       `json:"checked_at"`
	WarningCount int             `json:"warning_count"`
	Body         json.RawMessage `json:"report"`
}

// ReportStorage stores verification reports
type ReportStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewReportStorage creates the report storage on an open database
func NewReportStorage(db *sql.DB, log *logger.Logger) (*ReportStorage, error) {
	storage := &ReportStorage{
		db:     db,
		logger: log.Named("sqlite-report"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *ReportStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS verification_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			checked_at TEXT NOT NULL,
			warning_count INTEGER NOT NULL,
			body TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create verification_reports table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_reports_flight_id ON verification_reports(flight_id)`)
	if err != nil {
		return fmt.Errorf("failed to create flight_id index: %w", err)
	}
	return nil
}

// SaveReport stores a report and returns its id
func (s *ReportStorage) SaveReport(ctx context.Context, record *ReportRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_reports
		(flight_id, platform, checked_at, warning_count, body)
		VALUES (?, ?, ?, ?, ?)`,
		record.FlightID,
		record.Platform,
		record.CheckedAt.UTC().Format(time.RFC3339Nano),
		record.WarningCount,
		string(record.Body),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	s.logger.Debug("Stored verification report",
		logger.Int64("id", id),
		logger.String("flight_id", record.FlightID),
		logger.Int("warnings", record.WarningCount))
	return id, nil
}

// Reports returns stored reports, newest first
func (s *ReportStorage) Reports(ctx context.Context, limit, offset int) ([]*ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flight_id, platform, checked_at, warning_count, body
		FROM verification_reports
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	records := []*ReportRecord{}
	for rows.Next() {
		record, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Report returns one report by id
func (s *ReportStorage) Report(ctx context.Context, id int64) (*ReportRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, flight_id, platform, checked_at, warning_count, body
		FROM verification_reports
		WHERE id = ?`,
		id,
	)
	record, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	return record, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*ReportRecord, error) {
	var record ReportRecord
	var checkedAt, body string
	if err := row.Scan(
		&record.ID,
		&record.FlightID,
		&record.Platform,
		&checkedAt,
		&record.WarningCount,
		&body,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	var err error
	record.CheckedAt, err = time.Parse(time.RFC3339Nano, checkedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse checked_at: %w", err)
	}
	record.Body = json.RawMessage(body)
	return &record, nil
}
