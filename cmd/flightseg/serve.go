package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/flightseg/internal/api"
	"github.com/yegors/flightseg/internal/config"
	"github.com/yegors/flightseg/internal/nav"
	"github.com/yegors/flightseg/internal/storage/sqlite"
	"github.com/yegors/flightseg/internal/websocket"
	"github.com/yegors/flightseg/pkg/logger"
)

// ServeCmd runs the HTTP API
type ServeCmd struct {
	Sondes string `help:"Dropsonde inventory (defaults to sondes.inventory_path)" type:"existingfile"`
}

// Run serves until SIGINT or SIGTERM
func (c *ServeCmd) Run(app *App) error {
	log := app.log
	cfg := app.cfg

	log.Info("Starting flightseg server",
		logger.String("version", Version),
		logger.String("navigation_source", cfg.Navigation.Source))

	sondes, err := app.loadSondes(c.Sondes)
	if err != nil {
		return err
	}

	db, err := app.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	tracks, err := sqlite.NewTrackStorage(db, log)
	if err != nil {
		return err
	}
	reports, err := sqlite.NewReportStorage(db, log)
	if err != nil {
		return err
	}

	source, err := app.navSource(tracks)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cache csv and http tracks
	if ttl := cfg.Navigation.CacheTTL(); ttl > 0 && cfg.Navigation.Source != config.NavSourceSQLite {
		cached := nav.NewCachedSource(source, ttl, log)
		go purgeLoop(ctx, cached, ttl, log)
		source = cached
	}

	// Create and start WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run(ctx)

	fitter := app.fitter()
	handler := api.NewHandler(cfg, app.verifier(source, sondes, false), source, fitter, tracks, reports, wsServer, log)
	router := api.NewRouter(handler, cfg, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
		return err
	}

	log.Info("Server fully stopped")
	return nil
}

// purgeLoop drops expired tracks until ctx is done
func purgeLoop(ctx context.Context, cache *nav.CachedSource, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := cache.Purge(); n > 0 {
				log.Debug("Purged cached tracks", logger.Int("count", n))
			}
		}
	}
}
