package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/yegors/flightseg/internal/compile"
	"github.com/yegors/flightseg/internal/config"
	"github.com/yegors/flightseg/internal/flight"
	"github.com/yegors/flightseg/internal/nav"
	"github.com/yegors/flightseg/internal/storage/sqlite"
	"github.com/yegors/flightseg/pkg/logger"
)

// errVerifyFailed signals that verify found warnings or unreadable flights.
// Details have already been logged.
var errVerifyFailed = errors.New("verification failed")

// VerifyCmd checks flight files
type VerifyCmd struct {
	Files  []string `arg:"" type:"existingfile" help:"Flight files to verify"`
	Sondes string   `help:"Dropsonde inventory (defaults to sondes.inventory_path)" type:"existingfile"`
	Fit    bool     `help:"Attach circle fits to circle segments while verifying"`
	Store  bool     `help:"Store the reports in the database"`
}

// Run verifies every file and fails when any diagnostic was reported
func (c *VerifyCmd) Run(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sondes, err := app.loadSondes(c.Sondes)
	if err != nil {
		return err
	}

	var tracks *sqlite.TrackStorage
	var reports *sqlite.ReportStorage
	if c.Store || app.cfg.Navigation.Source == config.NavSourceSQLite {
		db, err := app.openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if tracks, err = sqlite.NewTrackStorage(db, app.log); err != nil {
			return err
		}
		if c.Store {
			if reports, err = sqlite.NewReportStorage(db, app.log); err != nil {
				return err
			}
		}
	}

	source, err := app.navSource(tracks)
	if err != nil {
		return err
	}
	v := app.verifier(source, sondes, c.Fit)

	warnings, failures := 0, 0
	for _, path := range c.Files {
		report, err := v.VerifyFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			app.log.Error("Failed to verify flight", logger.String("path", path), logger.Error(err))
			failures++
			continue
		}
		warnings += report.WarningCount()

		if reports != nil {
			body, err := json.Marshal(report)
			if err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			if _, err := reports.SaveReport(ctx, &sqlite.ReportRecord{
				FlightID:     report.FlightID,
				Platform:     report.Platform,
				CheckedAt:    report.CheckedAt,
				WarningCount: report.WarningCount(),
				Body:         body,
			}); err != nil {
				return err
			}
		}
	}

	app.log.Info("Verification finished",
		logger.Int("files", len(c.Files)),
		logger.Int("warnings", warnings),
		logger.Int("failures", failures))

	if warnings > 0 || failures > 0 {
		return errVerifyFailed
	}
	return nil
}

// CompileCmd merges flight files
type CompileCmd struct {
	Files  []string `arg:"" type:"existingfile" help:"Flight files to merge"`
	Output string   `short:"o" help:"Output file (default stdout)" type:"path"`
}

// Run writes the merged document
func (c *CompileCmd) Run(app *App) error {
	flights := make([]flight.Flight, 0, len(c.Files))
	for _, path := range c.Files {
		f, err := flight.LoadFlight(path)
		if err != nil {
			return err
		}
		flights = append(flights, f)
	}

	doc, err := compile.Compile(flights)
	if err != nil {
		return err
	}

	return writeOutput(c.Output, func(w io.Writer) error {
		return compile.Write(w, doc)
	})
}

// FitCmd attaches circle fits to a flight file
type FitCmd struct {
	File   string `arg:"" type:"existingfile" help:"Flight file"`
	Track  string `help:"Navigation track CSV (defaults to the configured source)" type:"existingfile"`
	Output string `short:"o" help:"Output file (default stdout)" type:"path"`
}

// Run fits every circle segment and writes the flight
func (c *FitCmd) Run(app *App) error {
	f, err := flight.LoadFlight(c.File)
	if err != nil {
		return err
	}

	track, err := c.loadTrack(app, f)
	if err != nil {
		return err
	}

	fitted := f.WithSegments(app.fitter().Attach(f.Segments(), track))
	return writeOutput(c.Output, func(w io.Writer) error {
		return flight.EncodeFlight(w, fitted)
	})
}

func (c *FitCmd) loadTrack(app *App, f flight.Flight) (nav.Track, error) {
	if c.Track != "" {
		return readTrackFile(c.Track)
	}

	platform, platformOK := f.Platform()
	flightID, idOK := f.FlightID()
	if !platformOK || !idOK {
		return nil, fmt.Errorf("%s: flight has no platform or flight_id, pass --track", c.File)
	}

	var tracks *sqlite.TrackStorage
	if app.cfg.Navigation.Source == config.NavSourceSQLite {
		db, err := app.openDB()
		if err != nil {
			return nil, err
		}
		defer db.Close()
		if tracks, err = sqlite.NewTrackStorage(db, app.log); err != nil {
			return nil, err
		}
	}
	source, err := app.navSource(tracks)
	if err != nil {
		return nil, err
	}
	return source.Track(context.Background(), platform, flightID)
}

// ImportTrackCmd stores a navigation track CSV
type ImportTrackCmd struct {
	Platform string `arg:"" help:"Platform name, e.g. HALO"`
	FlightID string `arg:"" name:"flight" help:"Flight id"`
	CSV      string `arg:"" type:"existingfile" help:"Track CSV with a time,lat,lon header"`
}

// Run replaces the stored track of the flight
func (c *ImportTrackCmd) Run(app *App) error {
	track, err := readTrackFile(c.CSV)
	if err != nil {
		return err
	}

	db, err := app.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	tracks, err := sqlite.NewTrackStorage(db, app.log)
	if err != nil {
		return err
	}
	if err := tracks.SaveTrack(context.Background(), c.Platform, c.FlightID, track); err != nil {
		return err
	}

	start, end, _ := track.Bounds()
	app.log.Info("Imported track",
		logger.String("platform", c.Platform),
		logger.String("flight_id", c.FlightID),
		logger.Int("samples", len(track)),
		logger.Time("start", start),
		logger.Time("end", end))
	return nil
}

func readTrackFile(path string) (nav.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track: %w", err)
	}
	defer f.Close()

	track, err := nav.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return track, nil
}

// writeOutput writes to path, or stdout when path is empty
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
