package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	expected, tolerance := cfg.Checker.TTFS()
	assert.Equal(t, 60*time.Second, expected)
	assert.Equal(t, 750*time.Millisecond, tolerance)
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[navigation]
source = "csv"
csv_dir = "/srv/navdata"

[circle_fit]
trials = 250
attach = true
earth_model = "sphere"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, NavSourceCSV, cfg.Navigation.Source)
	assert.Equal(t, "/srv/navdata", cfg.Navigation.CSVDir)
	assert.Equal(t, 250, cfg.CircleFit.Trials)
	assert.Equal(t, 1000.0, cfg.CircleFit.ToleranceM)
	assert.True(t, cfg.CircleFit.Attach)
	assert.Equal(t, "sphere", cfg.CircleFit.EarthModel)
	assert.Equal(t, "SAM", cfg.Checker.SAMPrefix)
	assert.Equal(t, 30*time.Second, cfg.Navigation.RequestTimeout())
	assert.Equal(t, 10*time.Minute, cfg.Navigation.CacheTTL())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "config file not found")

	_, err = Load(writeConfig(t, "[server\nport = 1"))
	assert.ErrorContains(t, err, "failed to decode config file")
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"debug\"\n")
	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = LoadWithFallback(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorContains(t, err, "config file not found in any of the expected locations")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid logging level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging format"},
		{"unknown source", func(c *Config) { c.Navigation.Source = "ftp" }, "invalid navigation source"},
		{"csv without dir", func(c *Config) {
			c.Navigation.Source = NavSourceCSV
			c.Navigation.CSVDir = ""
		}, "csv_dir is required"},
		{"http without url", func(c *Config) { c.Navigation.Source = NavSourceHTTP }, "base_url must be an absolute url"},
		{"negative cache", func(c *Config) { c.Navigation.CacheMinutes = -1 }, "cache_minutes must not be negative"},
		{"negative tolerance", func(c *Config) { c.CircleFit.ToleranceM = -1 }, "tolerance_m must be positive"},
		{"negative trials", func(c *Config) { c.CircleFit.Trials = -5 }, "trials must be positive"},
		{"unknown earth model", func(c *Config) { c.CircleFit.EarthModel = "flat" }, "invalid circle_fit earth_model"},
		{"http ok", func(c *Config) {
			c.Navigation.Source = NavSourceHTTP
			c.Navigation.BaseURL = "https://navdata.example.org/tracks"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateFillsZeroValues(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 8080}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, NavSourceSQLite, cfg.Navigation.Source)
	assert.Equal(t, 0.75, cfg.Checker.TTFSToleranceSeconds)
	assert.Equal(t, "TTFS", cfg.Checker.TTFSPrefix)
	assert.Equal(t, 100, cfg.CircleFit.Trials)
	assert.Equal(t, uint64(1), cfg.CircleFit.Seed)
	assert.Equal(t, "wgs84", cfg.CircleFit.EarthModel)
}
