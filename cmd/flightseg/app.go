package main

import (
	"database/sql"
	"fmt"

	"github.com/yegors/flightseg/internal/checker"
	"github.com/yegors/flightseg/internal/circlefit"
	"github.com/yegors/flightseg/internal/config"
	"github.com/yegors/flightseg/internal/flight"
	"github.com/yegors/flightseg/internal/geodesy"
	"github.com/yegors/flightseg/internal/nav"
	"github.com/yegors/flightseg/internal/storage/sqlite"
	"github.com/yegors/flightseg/internal/verify"
	"github.com/yegors/flightseg/pkg/logger"
)

// App carries what every command needs
type App struct {
	cfg *config.Config
	log *logger.Logger
}

// openDB opens the configured database
func (a *App) openDB() (*sql.DB, error) {
	db, err := sqlite.Open(a.cfg.Storage.SQLitePath, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// navSource returns the configured navigation source. tracks serves the
// sqlite source and may be nil for the others.
func (a *App) navSource(tracks *sqlite.TrackStorage) (nav.Source, error) {
	nc := a.cfg.Navigation
	switch nc.Source {
	case config.NavSourceCSV:
		a.log.Debug("Using CSV navigation source", logger.String("dir", nc.CSVDir))
		return nav.NewCSVDirSource(nc.CSVDir), nil
	case config.NavSourceHTTP:
		a.log.Debug("Using HTTP navigation source", logger.String("base_url", nc.BaseURL))
		return nav.NewHTTPSource(nc.BaseURL, nav.HTTPOptions{
			Timeout:    nc.RequestTimeout(),
			MaxElapsed: nc.MaxElapsed(),
		})
	default:
		if tracks == nil {
			return nil, fmt.Errorf("navigation source %q needs the database", nc.Source)
		}
		return tracks, nil
	}
}

// loadSondes reads the inventory at path, or the configured one
func (a *App) loadSondes(path string) ([]flight.Sonde, error) {
	if path == "" {
		path = a.cfg.Sondes.InventoryPath
	}
	sondes, err := flight.LoadSondes(path)
	if err != nil {
		return nil, err
	}
	flight.SortByLaunch(sondes)
	a.log.Debug("Loaded sonde inventory",
		logger.String("path", path),
		logger.Int("sondes", len(sondes)))
	return sondes, nil
}

func (a *App) fitter() *circlefit.Fitter {
	params := circlefit.Params{
		Tolerance: a.cfg.CircleFit.ToleranceM,
		Trials:    a.cfg.CircleFit.Trials,
	}
	g, err := geodesy.ByName(a.cfg.CircleFit.EarthModel)
	if err != nil {
		// Validate rejects unknown models
		a.log.Warn("Falling back to WGS84", logger.Error(err))
		g = geodesy.WGS84
	}
	return circlefit.NewFitter(a.log, g, params, a.cfg.CircleFit.Seed)
}

func (a *App) checkerOptions() []checker.Option {
	expected, tolerance := a.cfg.Checker.TTFS()
	return []checker.Option{
		checker.WithTTFS(expected, tolerance),
		checker.WithPrefixes(a.cfg.Checker.SAMPrefix, a.cfg.Checker.TTFSPrefix),
	}
}

// verifier builds a verifier. Circle fits are attached when fit is set or
// configured.
func (a *App) verifier(source nav.Source, sondes []flight.Sonde, fit bool) *verify.Verifier {
	opts := []verify.Option{verify.WithCheckerOptions(a.checkerOptions()...)}
	if fit || a.cfg.CircleFit.Attach {
		opts = append(opts, verify.WithFitter(a.fitter()))
	}
	return verify.NewVerifier(source, sondes, a.log, opts...)
}
