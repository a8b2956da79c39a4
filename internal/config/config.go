package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/flightseg/internal/geodesy"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server     ServerConfig     `toml:"server"`     // HTTP server settings
	Logging    LoggingConfig    `toml:"logging"`    // Application logging settings
	Storage    StorageConfig    `toml:"storage"`    // Data persistence settings
	Navigation NavigationConfig `toml:"navigation"` // Where navigation tracks come from
	Sondes     SondesConfig     `toml:"sondes"`     // Dropsonde inventory settings
	Checker    CheckerConfig    `toml:"checker"`    // Segment consistency checker settings
	CircleFit  CircleFitConfig  `toml:"circle_fit"` // Robust circle fit settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console or json
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Database holding imported tracks and verification reports
}

// Navigation sources
const (
	NavSourceSQLite = "sqlite"
	NavSourceCSV    = "csv"
	NavSourceHTTP   = "http"
)

// NavigationConfig selects and tunes the navigation track source
type NavigationConfig struct {
	// Allowed values:
	// - "sqlite": tracks imported with the import-track command
	// - "csv": one file per flight at <csv_dir>/<platform>/<flight_id>.csv
	// - "http": the same layout served below base_url
	Source                string `toml:"source"`
	CSVDir                string `toml:"csv_dir"`
	BaseURL               string `toml:"base_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"` // Per request timeout for the http source
	MaxElapsedSeconds     int    `toml:"max_elapsed_seconds"`     // Total retry budget for the http source
	CacheMinutes          int    `toml:"cache_minutes"`           // How long the server keeps fetched csv/http tracks (0 = no cache)
}

// SondesConfig contains dropsonde inventory settings
type SondesConfig struct {
	InventoryPath string `toml:"inventory_path"` // sondes.yaml
}

// CheckerConfig contains the segment checker tolerances
type CheckerConfig struct {
	TTFSExpectedSeconds  float64 `toml:"ttfs_expected_seconds"`  // Expected delay between circle start and first sonde
	TTFSToleranceSeconds float64 `toml:"ttfs_tolerance_seconds"` // Allowed deviation from the expected delay
	SAMPrefix            string  `toml:"sam_prefix"`             // Irregularity prefix suppressing sonde consistency warnings
	TTFSPrefix           string  `toml:"ttfs_prefix"`            // Irregularity prefix suppressing the time to first sonde warning
}

// CircleFitConfig contains the RANSAC circle fit settings
type CircleFitConfig struct {
	ToleranceM float64 `toml:"tolerance_m"` // Max distance of an inlier from the candidate circle, meters
	Trials     int     `toml:"trials"`      // Number of random 3 point samples
	Seed       uint64  `toml:"seed"`        // Random seed, fits are reproducible for equal seeds
	Attach     bool    `toml:"attach"`      // Attach clat/clon/radius to circle segments during verify
	EarthModel string  `toml:"earth_model"` // "wgs84" (geodesic on the ellipsoid) or "sphere" (haversine, faster)
}

// Default returns a configuration with every setting at its default
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			Host:               "127.0.0.1",
			CORSAllowedOrigins: []string{"*"},
			ReadTimeoutSecs:    30,
			WriteTimeoutSecs:   60,
			IdleTimeoutSecs:    120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			SQLitePath: "data/flightseg.db",
		},
		Navigation: NavigationConfig{
			Source:                NavSourceSQLite,
			CSVDir:                "data/navdata",
			RequestTimeoutSeconds: 30,
			MaxElapsedSeconds:     120,
			CacheMinutes:          10,
		},
		Sondes: SondesConfig{
			InventoryPath: "sondes.yaml",
		},
		Checker: CheckerConfig{
			TTFSExpectedSeconds:  60,
			TTFSToleranceSeconds: 0.75,
			SAMPrefix:            "SAM",
			TTFSPrefix:           "TTFS",
		},
		CircleFit: CircleFitConfig{
			ToleranceM: 1000,
			Trials:     100,
			Seed:       1,
			EarthModel: geodesy.ModelWGS84,
		},
	}
}

// Load loads the configuration from a TOML file. Settings missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}

// LoadWithFallback loads the configuration from the first existing file of
// preferredPath, configs/config.toml and config.toml
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in unset values
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must be 0 or greater")
	}

	// Validate logging config
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (must be console or json)", c.Logging.Format)
	}

	if err := c.ValidateNavigation(); err != nil {
		return err
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/flightseg.db"
	}

	if err := c.ValidateChecker(); err != nil {
		return err
	}

	return c.ValidateCircleFit()
}

// ValidateNavigation validates the navigation source configuration
func (c *Config) ValidateNavigation() error {
	if c.Navigation.Source == "" {
		c.Navigation.Source = NavSourceSQLite
	}
	if c.Navigation.RequestTimeoutSeconds == 0 {
		c.Navigation.RequestTimeoutSeconds = 30
	}
	if c.Navigation.MaxElapsedSeconds == 0 {
		c.Navigation.MaxElapsedSeconds = 120
	}
	if c.Navigation.RequestTimeoutSeconds < 0 || c.Navigation.MaxElapsedSeconds < 0 {
		return fmt.Errorf("navigation timeouts must be greater than 0")
	}
	if c.Navigation.CacheMinutes < 0 {
		return fmt.Errorf("navigation cache_minutes must not be negative: %d", c.Navigation.CacheMinutes)
	}

	switch c.Navigation.Source {
	case NavSourceSQLite:
	case NavSourceCSV:
		if c.Navigation.CSVDir == "" {
			return fmt.Errorf("navigation csv_dir is required when source is csv")
		}
	case NavSourceHTTP:
		u, err := url.Parse(c.Navigation.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("navigation base_url must be an absolute url when source is http: %q", c.Navigation.BaseURL)
		}
	default:
		return fmt.Errorf("invalid navigation source: %s (must be sqlite, csv or http)", c.Navigation.Source)
	}
	return nil
}

// ValidateChecker validates the checker tolerances
func (c *Config) ValidateChecker() error {
	if c.Checker.TTFSExpectedSeconds == 0 {
		c.Checker.TTFSExpectedSeconds = 60
	}
	if c.Checker.TTFSToleranceSeconds == 0 {
		c.Checker.TTFSToleranceSeconds = 0.75
	}
	if c.Checker.TTFSExpectedSeconds < 0 || c.Checker.TTFSToleranceSeconds < 0 {
		return fmt.Errorf("checker ttfs values must be positive")
	}
	if c.Checker.SAMPrefix == "" {
		c.Checker.SAMPrefix = "SAM"
	}
	if c.Checker.TTFSPrefix == "" {
		c.Checker.TTFSPrefix = "TTFS"
	}
	return nil
}

// ValidateCircleFit validates the circle fit settings
func (c *Config) ValidateCircleFit() error {
	if c.CircleFit.ToleranceM == 0 {
		c.CircleFit.ToleranceM = 1000
	}
	if c.CircleFit.ToleranceM < 0 {
		return fmt.Errorf("circle_fit tolerance_m must be positive: %f", c.CircleFit.ToleranceM)
	}
	if c.CircleFit.Trials == 0 {
		c.CircleFit.Trials = 100
	}
	if c.CircleFit.Trials < 0 {
		return fmt.Errorf("circle_fit trials must be positive: %d", c.CircleFit.Trials)
	}
	if c.CircleFit.Seed == 0 {
		c.CircleFit.Seed = 1
	}
	if c.CircleFit.EarthModel == "" {
		c.CircleFit.EarthModel = geodesy.ModelWGS84
	}
	if _, err := geodesy.ByName(c.CircleFit.EarthModel); err != nil {
		return fmt.Errorf("invalid circle_fit earth_model: %w", err)
	}
	return nil
}

// TTFS returns the checker's expected time to first sonde and its tolerance
func (c CheckerConfig) TTFS() (time.Duration, time.Duration) {
	return seconds(c.TTFSExpectedSeconds), seconds(c.TTFSToleranceSeconds)
}

// RequestTimeout returns the per request timeout of the http source
func (c NavigationConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// MaxElapsed returns the retry budget of the http source
func (c NavigationConfig) MaxElapsed() time.Duration {
	return time.Duration(c.MaxElapsedSeconds) * time.Second
}

// CacheTTL returns how long fetched tracks are kept
func (c NavigationConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheMinutes) * time.Minute
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
