package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/yegors/flightseg/internal/config"
	"github.com/yegors/flightseg/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

// CLI is the command line of flightseg
type CLI struct {
	Config   string           `help:"Path to configuration file (optional - will search in configs/ and root directory)" type:"path"`
	LogLevel string           `help:"Override the configured log level (debug, info, warn, error)" name:"log-level"`
	Version  kong.VersionFlag `help:"Print the version and exit"`

	Verify      VerifyCmd      `cmd:"" help:"Check flight segment files against navigation data and dropsondes"`
	Compile     CompileCmd     `cmd:"" help:"Merge flight files into one document"`
	Fit         FitCmd         `cmd:"" help:"Attach circle fits to the circle segments of a flight file"`
	ImportTrack ImportTrackCmd `cmd:"" name:"import-track" help:"Import a navigation track CSV into the database"`
	Serve       ServeCmd       `cmd:"" help:"Run the HTTP API"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("flightseg"),
		kong.Description("Flight segment consistency checker and circle fitter"),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
	)

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(cli.Config)
	if err != nil {
		if cli.Config != "" {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	app := &App{cfg: cfg, log: log}
	err = kctx.Run(app)
	log.Sync()
	if err != nil {
		if !errors.Is(err, errVerifyFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
